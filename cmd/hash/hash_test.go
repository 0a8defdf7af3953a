package hash

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/leefowlercu/asset-snapshot/internal/hashing"
	"github.com/leefowlercu/asset-snapshot/internal/testutil"
)

func setupProject(t *testing.T) (*testutil.TestEnv, string) {
	t.Helper()
	env := testutil.NewTestEnv(t)
	env.WriteRegistry(`assets:
  - object_path: /Game/Props/Chair.Chair
    class: StaticMesh
    dependencies: [/Game/Materials/Wood]
  - object_path: /Game/Materials/Wood.Wood
    class: Material
`)
	main := env.WriteContentFile("Props/Chair.uasset", []byte("chair-main"))
	env.WriteContentFile("Materials/Wood.uasset", []byte("wood-main"))
	return env, main
}

func TestHashCommand(t *testing.T) {
	_, main := setupProject(t)
	want, err := hashing.HashFile(main)
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}

	var stdout bytes.Buffer
	cmd := createTestCommand()
	cmd.SetOut(&stdout)
	cmd.SetArgs([]string{"/Game/Props/Chair.Chair", "--files"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("hash failed: %v", err)
	}

	output := stdout.String()
	for _, s := range []string{want, "StaticMesh", "Props/Chair.uasset", "Materials/Wood.uasset"} {
		if !strings.Contains(output, s) {
			t.Errorf("output missing %q:\n%s", s, output)
		}
	}
}

func TestHashCommand_JSON(t *testing.T) {
	_, main := setupProject(t)
	want, _ := hashing.HashFile(main)

	var stdout bytes.Buffer
	cmd := createTestCommand()
	cmd.SetOut(&stdout)
	cmd.SetArgs([]string{"/Game/Props/Chair.Chair", "--json"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("hash failed: %v", err)
	}

	var got hashOutput
	if err := json.Unmarshal(stdout.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, stdout.String())
	}
	if got.HashMain != want {
		t.Errorf("hash_main_blake3 = %q, want %q", got.HashMain, want)
	}
	if len(got.Packages) != 2 {
		t.Errorf("packages = %v, want chair and wood", got.Packages)
	}
	if got.HashFull == "" || got.HashFull == got.HashMain {
		t.Errorf("closure digest should differ from main digest, got %q", got.HashFull)
	}
}

func TestHashCommand_UnknownAsset(t *testing.T) {
	setupProject(t)

	cmd := createTestCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"/Game/Props/Nope.Nope"})

	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("expected not found error, got %v", err)
	}
}

func createTestCommand() *cobra.Command {
	hashFiles = false
	hashJSON = false

	cmd := &cobra.Command{
		Use:     HashCmd.Use,
		Args:    HashCmd.Args,
		PreRunE: HashCmd.PreRunE,
		RunE:    HashCmd.RunE,
	}
	cmd.Flags().BoolVarP(&hashFiles, "files", "f", false, "")
	cmd.Flags().BoolVar(&hashJSON, "json", false, "")
	return cmd
}
