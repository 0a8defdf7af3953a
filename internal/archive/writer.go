package archive

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// centralRecord is what the writer remembers about each local header so the
// central directory can point back at it.
type centralRecord struct {
	name   []byte
	crc    uint32
	size   uint32
	offset uint32
}

// Write encodes entries, in order, as a store-only archive.
func Write(w io.Writer, entries []Entry) error {
	if err := validateEntries(entries); err != nil {
		return err
	}
	if len(entries) > maxUint16 {
		return fmt.Errorf("%d entries; %w", len(entries), ErrTooLarge)
	}

	cw := &countingWriter{w: w}
	records := make([]centralRecord, 0, len(entries))

	for _, e := range entries {
		if uint64(len(e.Data)) > maxUint32 || cw.n > maxUint32 {
			return fmt.Errorf("entry %q; %w", e.Name, ErrTooLarge)
		}

		rec := centralRecord{
			name:   []byte(e.Name),
			crc:    crc32.ChecksumIEEE(e.Data),
			size:   uint32(len(e.Data)),
			offset: uint32(cw.n),
		}

		if err := writeLocalHeader(cw, rec); err != nil {
			return fmt.Errorf("failed to write local header for %q; %w", e.Name, err)
		}
		if _, err := cw.Write(e.Data); err != nil {
			return fmt.Errorf("failed to write payload for %q; %w", e.Name, err)
		}

		records = append(records, rec)
	}

	cdOffset := cw.n
	for _, rec := range records {
		if err := writeCentralRecord(cw, rec); err != nil {
			return fmt.Errorf("failed to write central directory; %w", err)
		}
	}
	cdSize := cw.n - cdOffset

	if cdOffset > maxUint32 || cdSize > maxUint32 {
		return ErrTooLarge
	}

	return writeEndOfDir(cw, uint16(len(records)), uint32(cdSize), uint32(cdOffset))
}

// WriteFile writes entries to path, creating parent directories as needed.
// The archive is written to a temporary sibling and renamed into place.
func WriteFile(path string, entries []Entry) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create archive directory; %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*.zip.tmp")
	if err != nil {
		return fmt.Errorf("failed to create archive file; %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	bw := bufio.NewWriter(tmp)
	if err := Write(bw, entries); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to flush archive; %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close archive; %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to move archive into place; %w", err)
	}
	return nil
}

func validateEntries(entries []Entry) error {
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if e.Name == "" || strings.HasSuffix(e.Name, "/") || len(e.Name) > maxUint16 {
			return fmt.Errorf("%q; %w", e.Name, ErrInvalidName)
		}
		if _, ok := seen[e.Name]; ok {
			return fmt.Errorf("%q; %w", e.Name, ErrDuplicateEntry)
		}
		seen[e.Name] = struct{}{}
	}
	return nil
}

func writeLocalHeader(w io.Writer, rec centralRecord) error {
	var b [localHeaderLen]byte
	le := binary.LittleEndian
	le.PutUint32(b[0:], localHeaderSig)
	le.PutUint16(b[4:], zipVersion)
	le.PutUint16(b[6:], 0) // flags
	le.PutUint16(b[8:], methodStore)
	le.PutUint16(b[10:], 0) // mod time
	le.PutUint16(b[12:], 0) // mod date
	le.PutUint32(b[14:], rec.crc)
	le.PutUint32(b[18:], rec.size)
	le.PutUint32(b[22:], rec.size)
	le.PutUint16(b[26:], uint16(len(rec.name)))
	le.PutUint16(b[28:], 0) // extra length

	if _, err := w.Write(b[:]); err != nil {
		return err
	}
	_, err := w.Write(rec.name)
	return err
}

func writeCentralRecord(w io.Writer, rec centralRecord) error {
	var b [centralDirLen]byte
	le := binary.LittleEndian
	le.PutUint32(b[0:], centralDirSig)
	le.PutUint16(b[4:], zipVersion) // made by
	le.PutUint16(b[6:], zipVersion) // needed
	le.PutUint16(b[8:], 0)
	le.PutUint16(b[10:], methodStore)
	le.PutUint16(b[12:], 0)
	le.PutUint16(b[14:], 0)
	le.PutUint32(b[16:], rec.crc)
	le.PutUint32(b[20:], rec.size)
	le.PutUint32(b[24:], rec.size)
	le.PutUint16(b[28:], uint16(len(rec.name)))
	le.PutUint16(b[30:], 0) // extra
	le.PutUint16(b[32:], 0) // comment
	le.PutUint16(b[34:], 0) // disk start
	le.PutUint16(b[36:], 0) // internal attrs
	le.PutUint32(b[38:], 0) // external attrs
	le.PutUint32(b[42:], rec.offset)

	if _, err := w.Write(b[:]); err != nil {
		return err
	}
	_, err := w.Write(rec.name)
	return err
}

func writeEndOfDir(w io.Writer, count uint16, cdSize, cdOffset uint32) error {
	var b [endOfDirLen]byte
	le := binary.LittleEndian
	le.PutUint32(b[0:], endOfDirSig)
	le.PutUint16(b[4:], 0)
	le.PutUint16(b[6:], 0)
	le.PutUint16(b[8:], count)
	le.PutUint16(b[10:], count)
	le.PutUint32(b[12:], cdSize)
	le.PutUint32(b[16:], cdOffset)
	le.PutUint16(b[20:], 0)

	_, err := w.Write(b[:])
	return err
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
