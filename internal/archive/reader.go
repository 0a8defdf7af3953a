package archive

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
)

// Read decodes the entries of an archive by walking its local headers in
// order. Reading stops at the first central directory or end-of-directory
// record. Directory entries are returned as-is; callers decide whether to
// keep them.
func Read(r io.Reader) ([]Entry, error) {
	br := &offsetReader{r: bufio.NewReader(r)}
	var entries []Entry

	for {
		var sigBuf [4]byte
		start := br.n
		if _, err := io.ReadFull(br, sigBuf[:]); err != nil {
			if errors.Is(err, io.EOF) && len(entries) > 0 {
				return entries, nil
			}
			return nil, &FormatError{Offset: start, Msg: "failed to read signature"}
		}

		sig := binary.LittleEndian.Uint32(sigBuf[:])
		switch sig {
		case centralDirSig, endOfDirSig:
			return entries, nil
		case localHeaderSig:
		default:
			return nil, &FormatError{Offset: start, Msg: fmt.Sprintf("unexpected signature 0x%08x", sig)}
		}

		e, err := readLocalEntry(br, start)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
}

// ReadFile opens path and decodes its entries.
func ReadFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive; %w", err)
	}
	defer f.Close()

	return Read(f)
}

func readLocalEntry(r *offsetReader, start int64) (Entry, error) {
	var b [localHeaderLen - 4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return Entry{}, &FormatError{Offset: start, Msg: "truncated local header"}
	}

	le := binary.LittleEndian
	flags := le.Uint16(b[2:])
	method := le.Uint16(b[4:])
	crc := le.Uint32(b[10:])
	compSize := le.Uint32(b[14:])
	nameLen := le.Uint16(b[22:])
	extraLen := le.Uint16(b[24:])

	name := make([]byte, nameLen)
	if _, err := io.ReadFull(r, name); err != nil {
		return Entry{}, &FormatError{Offset: start, Msg: "truncated entry name"}
	}
	if _, err := io.CopyN(io.Discard, r, int64(extraLen)); err != nil {
		return Entry{}, &FormatError{Offset: start, Msg: "truncated extra field"}
	}

	if method != methodStore {
		return Entry{}, &UnsupportedMethodError{Name: string(name), Method: method}
	}
	if flags&flagDataDescriptor != 0 {
		return Entry{}, &FormatError{Offset: start, Msg: fmt.Sprintf("entry %q uses a trailing data descriptor", name)}
	}

	// The declared size is untrusted; grow with the bytes actually present.
	data, err := io.ReadAll(io.LimitReader(r, int64(compSize)))
	if err != nil || len(data) != int(compSize) {
		return Entry{}, &FormatError{Offset: start, Msg: fmt.Sprintf("truncated payload for %q", name)}
	}
	if crc32.ChecksumIEEE(data) != crc {
		return Entry{}, fmt.Errorf("entry %q; %w", name, ErrChecksum)
	}

	return Entry{Name: string(name), Data: data}, nil
}

type offsetReader struct {
	r io.Reader
	n int64
}

func (o *offsetReader) Read(p []byte) (int, error) {
	n, err := o.r.Read(p)
	o.n += int64(n)
	return n, err
}
