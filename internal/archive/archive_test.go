package archive

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEntries() []Entry {
	return []Entry{
		{Name: MetaName, Data: []byte(`{"hash_main_blake3":"abc"}`)},
		{Name: "0.webp", Data: []byte{0x52, 0x49, 0x46, 0x46}},
		{Name: "1.webp", Data: nil},
	}
}

func encode(t *testing.T, entries []Entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, entries))
	return buf.Bytes()
}

func TestWriteRead_RoundTrip(t *testing.T) {
	entries := sampleEntries()
	data := encode(t, entries)

	got, err := Read(bytes.NewReader(data))
	require.NoError(t, err)
	require.Len(t, got, len(entries))
	for i := range entries {
		assert.Equal(t, entries[i].Name, got[i].Name)
		assert.Equal(t, len(entries[i].Data), len(got[i].Data))
		assert.True(t, bytes.Equal(entries[i].Data, got[i].Data))
	}
}

func TestWrite_Deterministic(t *testing.T) {
	a := encode(t, sampleEntries())
	b := encode(t, sampleEntries())
	assert.Equal(t, a, b)
}

func TestWrite_LocalHeaderLayout(t *testing.T) {
	payload := []byte("hello")
	data := encode(t, []Entry{{Name: "a.txt", Data: payload}})

	le := binary.LittleEndian
	assert.Equal(t, uint32(localHeaderSig), le.Uint32(data[0:]))
	assert.Equal(t, uint16(20), le.Uint16(data[4:]))
	assert.Equal(t, uint16(0), le.Uint16(data[6:]))
	assert.Equal(t, uint16(0), le.Uint16(data[8:]))
	assert.Equal(t, uint16(0), le.Uint16(data[10:]))
	assert.Equal(t, uint16(0), le.Uint16(data[12:]))
	assert.Equal(t, crc32.ChecksumIEEE(payload), le.Uint32(data[14:]))
	assert.Equal(t, uint32(5), le.Uint32(data[18:]))
	assert.Equal(t, uint32(5), le.Uint32(data[22:]))
	assert.Equal(t, uint16(5), le.Uint16(data[26:]))
	assert.Equal(t, uint16(0), le.Uint16(data[28:]))
	assert.Equal(t, "a.txt", string(data[30:35]))
	assert.Equal(t, "hello", string(data[35:40]))

	// Central directory follows the only local entry.
	cd := data[40:]
	assert.Equal(t, uint32(centralDirSig), le.Uint32(cd[0:]))
	assert.Equal(t, uint16(20), le.Uint16(cd[4:]))
	assert.Equal(t, uint16(20), le.Uint16(cd[6:]))
	assert.Equal(t, uint32(0), le.Uint32(cd[42:]))

	eocd := data[len(data)-endOfDirLen:]
	assert.Equal(t, uint32(endOfDirSig), le.Uint32(eocd[0:]))
	assert.Equal(t, uint16(1), le.Uint16(eocd[8:]))
	assert.Equal(t, uint16(1), le.Uint16(eocd[10:]))
	assert.Equal(t, uint32(centralDirLen+5), le.Uint32(eocd[12:]))
	assert.Equal(t, uint32(40), le.Uint32(eocd[16:]))
	assert.Len(t, data, 40+centralDirLen+5+endOfDirLen)
}

func TestWrite_ReadableByStandardReader(t *testing.T) {
	entries := sampleEntries()
	data := encode(t, entries)

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Len(t, zr.File, len(entries))

	for i, f := range zr.File {
		assert.Equal(t, entries[i].Name, f.Name)
		assert.Equal(t, zip.Store, f.Method)

		rc, err := f.Open()
		require.NoError(t, err)
		got, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		assert.True(t, bytes.Equal(entries[i].Data, got))
	}
}

func TestWrite_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		entries []Entry
		wantErr error
	}{
		{"duplicate", []Entry{{Name: "a"}, {Name: "a"}}, ErrDuplicateEntry},
		{"empty name", []Entry{{Name: ""}}, ErrInvalidName},
		{"directory", []Entry{{Name: "dir/"}}, ErrInvalidName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Write(io.Discard, tt.entries)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestWriteFile_CreatesParents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export", "Props", "abc.zip")
	require.NoError(t, WriteFile(path, sampleEntries()))

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestRead_Empty(t *testing.T) {
	data := encode(t, nil)
	got, err := Read(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRead_UnexpectedSignature(t *testing.T) {
	_, err := Read(bytes.NewReader([]byte{0xde, 0xad, 0xbe, 0xef, 0, 0}))
	var fe *FormatError
	assert.True(t, errors.As(err, &fe))
}

func TestRead_Truncated(t *testing.T) {
	data := encode(t, sampleEntries())
	_, err := Read(bytes.NewReader(data[:40]))
	var fe *FormatError
	assert.True(t, errors.As(err, &fe))
}

func TestRead_OversizedDeclaredPayload(t *testing.T) {
	le := binary.LittleEndian
	header := make([]byte, localHeaderLen)
	le.PutUint32(header[0:], localHeaderSig)
	le.PutUint32(header[18:], 0xF0000000)
	le.PutUint16(header[26:], 1)
	data := append(header, 'a')
	data = append(data, "abcd"...)

	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	_, err := Read(bytes.NewReader(data))
	runtime.ReadMemStats(&after)

	var fe *FormatError
	require.True(t, errors.As(err, &fe))
	assert.Contains(t, fe.Msg, "truncated payload")
	assert.Less(t, after.TotalAlloc-before.TotalAlloc, uint64(16<<20))
}

func TestRead_ChecksumMismatch(t *testing.T) {
	data := encode(t, []Entry{{Name: "a.uasset", Data: []byte("payload")}})
	data[localHeaderLen+len("a.uasset")] ^= 0xFF

	_, err := Read(bytes.NewReader(data))
	assert.ErrorIs(t, err, ErrChecksum)
}

func TestRead_UnsupportedMethod(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.CreateHeader(&zip.FileHeader{Name: "a.uasset", Method: zip.Deflate})
	require.NoError(t, err)
	_, err = w.Write(bytes.Repeat([]byte("x"), 64))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, err = Read(bytes.NewReader(buf.Bytes()))
	var me *UnsupportedMethodError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, zip.Deflate, me.Method)
}
