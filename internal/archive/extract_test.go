package archive

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRescanner struct {
	calls [][]string
}

func (r *recordingRescanner) Rescan(ctx context.Context, files []string) error {
	r.calls = append(r.calls, append([]string(nil), files...))
	return nil
}

func extract(t *testing.T, dest string, entries []Entry, opts ExtractOptions) (*ExtractResult, error) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, entries))
	return Extract(context.Background(), &buf, dest, opts)
}

func TestExtract_StagingSplice(t *testing.T) {
	dest := t.TempDir()
	res, err := extract(t, dest, []Entry{
		{Name: "MyProject/Content/Meshes/Cube.uasset", Data: []byte("cube")},
	}, ExtractOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)

	got, err := os.ReadFile(filepath.Join(dest, "MyProject", "Meshes", "Cube.uasset"))
	require.NoError(t, err)
	assert.Equal(t, "cube", string(got))
}

func TestExtract_UnsafePaths(t *testing.T) {
	tests := []string{
		"../../etc/passwd.uasset",
		"C:/Windows/evil.uasset",
		"Props/C:stream.uasset",
		"Props/./A.uasset",
		`Props\..\..\A.uasset`,
	}

	for _, name := range tests {
		t.Run(name, func(t *testing.T) {
			dest := t.TempDir()
			_, err := extract(t, dest, []Entry{
				{Name: "Safe/First.uasset", Data: []byte("ok")},
				{Name: name, Data: []byte("bad")},
			}, ExtractOptions{})

			var upe *UnsafePathError
			require.True(t, errors.As(err, &upe), "expected UnsafePathError, got %v", err)
			assert.Equal(t, name, upe.Name)

			// Nothing is written when any entry is unsafe.
			_, statErr := os.Stat(filepath.Join(dest, "Safe", "First.uasset"))
			assert.True(t, os.IsNotExist(statErr))
		})
	}
}

func TestExtract_SkipsNonImportable(t *testing.T) {
	dest := t.TempDir()
	res, err := extract(t, dest, []Entry{
		{Name: "Props/readme.txt", Data: []byte("text")},
		{Name: "Props/A.uasset", Data: []byte("a")},
		{Name: "Props/A.uexp", Data: []byte("ax")},
	}, ExtractOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Imported)
	assert.Equal(t, 1, res.Skipped)

	_, err = os.Stat(filepath.Join(dest, "Props", "readme.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestExtract_Modes(t *testing.T) {
	dest := t.TempDir()
	existing := filepath.Join(dest, "Props", "A.uasset")
	require.NoError(t, os.MkdirAll(filepath.Dir(existing), 0755))
	require.NoError(t, os.WriteFile(existing, []byte("old"), 0644))

	entries := []Entry{{Name: "Props/A.uasset", Data: []byte("new")}}

	res, err := extract(t, dest, entries, ExtractOptions{Mode: ModeSkipExisting})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Imported)
	assert.Equal(t, 1, res.Skipped)
	got, _ := os.ReadFile(existing)
	assert.Equal(t, "old", string(got))

	res, err = extract(t, dest, entries, ExtractOptions{Mode: ModeOverwrite})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)
	got, _ = os.ReadFile(existing)
	assert.Equal(t, "new", string(got))
}

func TestExtract_SingleRescanForPrimaryFiles(t *testing.T) {
	dest := t.TempDir()
	rescanner := &recordingRescanner{}

	res, err := extract(t, dest, []Entry{
		{Name: "Props/A.uasset", Data: []byte("a")},
		{Name: "Props/A.uexp", Data: []byte("ax")},
		{Name: "Maps/Level.umap", Data: []byte("m")},
	}, ExtractOptions{Rescanner: rescanner})
	require.NoError(t, err)

	require.Len(t, rescanner.calls, 1)
	assert.Equal(t, []string{
		filepath.Join(dest, "Props", "A.uasset"),
		filepath.Join(dest, "Maps", "Level.umap"),
	}, rescanner.calls[0])
	assert.Equal(t, rescanner.calls[0], res.Rescanned)
}

func TestExtract_NoRescanWhenNothingWritten(t *testing.T) {
	rescanner := &recordingRescanner{}
	_, err := extract(t, t.TempDir(), []Entry{{Name: "notes.md", Data: []byte("x")}}, ExtractOptions{Rescanner: rescanner})
	require.NoError(t, err)
	assert.Empty(t, rescanner.calls)
}

func TestImportRelPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"MyProject/Content/Meshes/Cube.uasset", "MyProject/Meshes/Cube.uasset"},
		{"Content/Meshes/Cube.uasset", "Meshes/Cube.uasset"},
		{"MyProject/content/Cube.uasset", "MyProject/Cube.uasset"},
		{`Pack\Meshes\Cube.uasset`, "Pack/Meshes/Cube.uasset"},
		{"/Pack/Cube.uasset", "Pack/Cube.uasset"},
		{"Pack/Meshes/Content/Cube.uasset", "Pack/Meshes/Content/Cube.uasset"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ImportRelPath(tt.in))
		})
	}
}

func TestIsSafePath(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"Pack/A.uasset", true},
		{"/Pack/A.uasset", true},
		{"", false},
		{"/", false},
		{"..", false},
		{"Pack/../A.uasset", false},
		{"D:A.uasset", false},
		{"./A.uasset", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSafePath(tt.in))
		})
	}
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("skip")
	require.NoError(t, err)
	assert.Equal(t, ModeSkipExisting, m)

	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeOverwrite, m)

	_, err = ParseMode("merge")
	assert.Error(t, err)
}
