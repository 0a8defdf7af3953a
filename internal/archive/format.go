// Package archive reads and writes the store-only zip subset used for asset
// snapshots.
//
// Entries are never compressed and carry zeroed timestamps, so identical
// entry lists always produce identical bytes. Any standard zip reader can
// open the output.
package archive

import (
	"errors"
	"fmt"
)

const (
	localHeaderSig = 0x04034b50
	centralDirSig  = 0x02014b50
	endOfDirSig    = 0x06054b50

	zipVersion  = 20
	methodStore = 0

	localHeaderLen = 30
	centralDirLen  = 46
	endOfDirLen    = 22

	// flagDataDescriptor marks entries whose sizes follow the payload.
	flagDataDescriptor = 0x0008

	maxUint16 = 1<<16 - 1
	maxUint32 = 1<<32 - 1
)

// MetaName is the conventional name of the manifest entry.
const MetaName = "meta.json"

// Entry is one named payload in an archive.
type Entry struct {
	Name string
	Data []byte
}

var (
	// ErrDuplicateEntry is returned when two entries share a name.
	ErrDuplicateEntry = errors.New("duplicate archive entry")

	// ErrInvalidName is returned for empty or directory entry names.
	ErrInvalidName = errors.New("invalid archive entry name")

	// ErrTooLarge is returned when an archive exceeds the 32-bit format limits.
	ErrTooLarge = errors.New("archive exceeds format limits")

	// ErrChecksum is returned when a payload does not match its recorded CRC-32.
	ErrChecksum = errors.New("archive entry checksum mismatch")
)

// UnsupportedMethodError reports an entry stored with a compression method
// other than store.
type UnsupportedMethodError struct {
	Name   string
	Method uint16
}

func (e *UnsupportedMethodError) Error() string {
	return fmt.Sprintf("unsupported compression method %d for entry %q", e.Method, e.Name)
}

// UnsafePathError reports an entry name that would escape the destination
// root or uses reserved path syntax.
type UnsafePathError struct {
	Name string
}

func (e *UnsafePathError) Error() string {
	return fmt.Sprintf("unsafe archive path %q", e.Name)
}

// FormatError reports structurally invalid archive bytes.
type FormatError struct {
	Offset int64
	Msg    string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("malformed archive at offset %d; %s", e.Offset, e.Msg)
}
