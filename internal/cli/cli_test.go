package cli

import (
	"bytes"
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSetupLoggingJSON(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	lf := RegisterLogFlags(fs)
	if err := fs.Parse([]string{"-v", "-log-format", "json"}); err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	var buf bytes.Buffer
	if err := lf.SetupLogging(&buf); err != nil {
		t.Fatalf("SetupLogging returned error: %v", err)
	}
	slog.Debug("apdu", "cmd", "9060000000")
	if !strings.Contains(buf.String(), `"cmd":"9060000000"`) {
		t.Fatalf("debug record missing from %q", buf.String())
	}
}

func TestSetupLoggingRejectsUnknownFormat(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	lf := RegisterLogFlags(fs)
	if err := fs.Parse([]string{"-log-format", "xml"}); err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if err := lf.SetupLogging(&bytes.Buffer{}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestDefaultConfigPathFallsBackToCwd(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd returned error: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir returned error: %v", err)
	}

	name := "boltcard-test-config.yaml"
	if err := os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	got, err := DefaultConfigPath(name)
	if err != nil {
		t.Fatalf("DefaultConfigPath returned error: %v", err)
	}
	if filepath.Base(got) != name || !FileExists(got) {
		t.Fatalf("path = %q", got)
	}
}
