// Package hashing computes the content digests that identify exported assets.
//
// BLAKE3 is the primary digest used for identity and server existence checks.
// SHA-256 is carried alongside it in archive metadata for older consumers and
// is computed on a best-effort basis.
package hashing

import (
	"errors"
	"fmt"
	"hash"
	"io"
	"os"

	sha256 "github.com/minio/sha256-simd"
	"github.com/zeebo/blake3"
)

// ChunkSize is the read buffer size used when streaming files into a hasher.
const ChunkSize = 1 << 20

// pathSeparator is written between a manifest path and its file bytes.
var pathSeparator = []byte{0x00}

// ErrManifestMismatch is returned when relative and absolute path lists differ in length.
var ErrManifestMismatch = errors.New("relative and absolute path lists differ in length")

// IOError reports a failure to open or read a file being hashed.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("failed to hash %s; %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Digests holds the hashes recorded for one exported asset.
type Digests struct {
	MainBLAKE3 string
	// MainSHA256 is empty when the secondary digest could not be computed.
	MainSHA256 string
	FullBLAKE3 string
}

// HashFile returns the lowercase hex BLAKE3 digest of the file at path.
func HashFile(path string) (string, error) {
	return hashFileWith(blake3.New(), path)
}

// HashFileSHA256 returns the lowercase hex SHA-256 digest of the file at path.
func HashFileSHA256(path string) (string, error) {
	return hashFileWith(sha256.New(), path)
}

// HashFiles returns the combined BLAKE3 digest over an ordered manifest.
//
// For each entry the relative path, a zero byte and the file contents are
// written in order. Files that cannot be opened contribute only their path
// and separator.
func HashFiles(rel, abs []string) (string, error) {
	if len(rel) != len(abs) {
		return "", ErrManifestMismatch
	}

	h := blake3.New()
	buf := make([]byte, ChunkSize)

	for i := range rel {
		_, _ = h.Write([]byte(rel[i]))
		_, _ = h.Write(pathSeparator)

		f, err := os.Open(abs[i])
		if err != nil {
			continue
		}
		_ = copyChunked(h, f, buf)
		_ = f.Close()
	}

	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// Compute produces the full digest set for an asset whose primary file is
// mainFile and whose dependency files are given by rel and abs.
// Only a failure to hash the primary file is returned as an error.
func Compute(mainFile string, rel, abs []string) (Digests, error) {
	var d Digests

	main, err := HashFile(mainFile)
	if err != nil {
		return d, err
	}
	d.MainBLAKE3 = main

	if sum, err := HashFileSHA256(mainFile); err == nil {
		d.MainSHA256 = sum
	}

	full, err := HashFiles(rel, abs)
	if err != nil {
		return d, err
	}
	d.FullBLAKE3 = full

	return d, nil
}

func hashFileWith(h hash.Hash, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", &IOError{Path: path, Err: err}
	}
	defer f.Close()

	if err := copyChunked(h, f, make([]byte, ChunkSize)); err != nil {
		return "", &IOError{Path: path, Err: err}
	}

	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// copyChunked feeds r into w one bounded read at a time.
func copyChunked(w io.Writer, r io.Reader, buf []byte) error {
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
