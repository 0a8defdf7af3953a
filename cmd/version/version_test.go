package version

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/leefowlercu/asset-snapshot/internal/version"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	versionJSON = false
	buf := new(bytes.Buffer)
	VersionCmd.SetOut(buf)
	VersionCmd.SetArgs(append([]string{}, args...))

	if err := VersionCmd.Execute(); err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	return buf.String()
}

func TestVersionCommandOutput(t *testing.T) {
	output := execute(t)

	requiredLabels := []string{"Version:", "Git Commit:", "Build Date:", "Go:", "Platform:"}
	for _, label := range requiredLabels {
		if !strings.Contains(output, label) {
			t.Errorf("version output missing label %q", label)
		}
	}
}

func TestVersionCommandOutputFormat(t *testing.T) {
	lines := strings.Split(strings.TrimSpace(execute(t)), "\n")

	if len(lines) != 5 {
		t.Errorf("version output has %d lines, expected 5", len(lines))
	}
	for i, line := range lines {
		if !strings.Contains(line, ":") {
			t.Errorf("line %d missing colon separator: %q", i+1, line)
		}
	}
}

func TestVersionCommandJSON(t *testing.T) {
	output := execute(t, "--json")

	var info version.Info
	if err := json.Unmarshal([]byte(output), &info); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, output)
	}
	if info != version.Get() {
		t.Errorf("JSON info = %+v, want %+v", info, version.Get())
	}
}
