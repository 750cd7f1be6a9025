// Package cli holds the flag, logging and config-discovery plumbing shared
// by the operator tools.
package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// LogFlags are the logging flags every tool accepts.
type LogFlags struct {
	Verbose *bool
	Format  *string
}

// RegisterLogFlags adds -v and -log-format to fs.
func RegisterLogFlags(fs *flag.FlagSet) LogFlags {
	return LogFlags{
		Verbose: fs.Bool("v", false, "enable debug logging"),
		Format:  fs.String("log-format", "text", "log format: text or json"),
	}
}

// SetupLogging installs the default slog logger writing to w.
func (f LogFlags) SetupLogging(w io.Writer) error {
	level := slog.LevelInfo
	if *f.Verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	switch *f.Format {
	case "text":
		slog.SetDefault(slog.New(slog.NewTextHandler(w, opts)))
	case "json":
		slog.SetDefault(slog.New(slog.NewJSONHandler(w, opts)))
	default:
		return fmt.Errorf("unknown log format %q (want text or json)", *f.Format)
	}
	return nil
}

// DefaultConfigPath looks for name next to the executable, then in the
// working directory. The executable location is returned when neither exists.
func DefaultConfigPath(name string) (string, error) {
	exePath, err := os.Executable()
	if err != nil {
		return "", err
	}
	exeConfigPath := filepath.Join(filepath.Dir(exePath), name)
	if FileExists(exeConfigPath) {
		return exeConfigPath, nil
	}

	// Fallback for `go run`, where the executable is placed in a temp directory.
	cwd, err := os.Getwd()
	if err != nil {
		return exeConfigPath, nil
	}
	cwdConfigPath := filepath.Join(cwd, name)
	if FileExists(cwdConfigPath) {
		return cwdConfigPath, nil
	}
	return exeConfigPath, nil
}

// FileExists reports whether path names a regular file.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
