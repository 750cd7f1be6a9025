package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/barnettlynn/boltcard/pkg/boltcard"
	"github.com/barnettlynn/boltcard/pkg/ntag424"
)

// Config selects where the card keys come from. A wipe code file wins over
// individual key files; with neither, the tool asks for the wipe code.
type Config struct {
	WipeCodeFile string        `yaml:"wipe_code_file,omitempty"`
	Keys         KeysConfig    `yaml:"keys,omitempty"`
	Runtime      RuntimeConfig `yaml:"runtime"`
}

type KeysConfig struct {
	K0File  string `yaml:"k0_file,omitempty"`
	K1File  string `yaml:"k1_file,omitempty"`
	K2File  string `yaml:"k2_file,omitempty"`
	K3File  string `yaml:"k3_file,omitempty"`
	K4File  string `yaml:"k4_file,omitempty"`
	Version *int   `yaml:"version,omitempty"`
}

type RuntimeConfig struct {
	ReaderIndex *int          `yaml:"reader_index"`
	WaitTimeout time.Duration `yaml:"wait_timeout,omitempty"`
	// KeyDir holds candidate .hex keys tried against slot 0 when
	// authentication fails.
	KeyDir string `yaml:"key_dir,omitempty"`
}

// Source reports where keys are read from.
type Source int

const (
	SourcePrompt Source = iota
	SourceWipeCode
	SourceKeyFiles
)

func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	cfg.applyDefaults()
	cfg.resolvePaths(path)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Keys.K0File == "" {
		return
	}
	if strings.TrimSpace(c.Keys.K3File) == "" {
		c.Keys.K3File = c.Keys.K1File
	}
	if strings.TrimSpace(c.Keys.K4File) == "" {
		c.Keys.K4File = c.Keys.K2File
	}
}

// Source reports which key source the config selects.
func (c *Config) Source() Source {
	switch {
	case c.WipeCodeFile != "":
		return SourceWipeCode
	case c.Keys.K0File != "":
		return SourceKeyFiles
	default:
		return SourcePrompt
	}
}

func (c *Config) Validate() error {
	switch c.Source() {
	case SourceWipeCode:
		if err := validateReadableFile(c.WipeCodeFile, "config.wipe_code_file"); err != nil {
			return err
		}
	case SourceKeyFiles:
		for i, path := range c.KeyFiles() {
			field := fmt.Sprintf("config.keys.k%d_file", i)
			if strings.TrimSpace(path) == "" {
				return fmt.Errorf("%s is required when k0_file is set", field)
			}
			if err := validateReadableFile(path, field); err != nil {
				return err
			}
		}
	}
	if c.Keys.Version != nil && (*c.Keys.Version < 0 || *c.Keys.Version > 0xFF) {
		return fmt.Errorf("config.keys.version must be 0..255")
	}

	if c.Runtime.ReaderIndex == nil {
		return fmt.Errorf("config.runtime.reader_index is required")
	}
	if *c.Runtime.ReaderIndex < 0 {
		return fmt.Errorf("config.runtime.reader_index must be >= 0")
	}
	if c.Runtime.WaitTimeout < 0 {
		return fmt.Errorf("config.runtime.wait_timeout must be >= 0")
	}
	if dir := c.Runtime.KeyDir; dir != "" {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("config.runtime.key_dir: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("config.runtime.key_dir must be a directory")
		}
	}
	return nil
}

func (c *Config) KeyFiles() []string {
	return []string{c.Keys.K0File, c.Keys.K1File, c.Keys.K2File, c.Keys.K3File, c.Keys.K4File}
}

// LoadKeys returns the five card keys and the key version from the
// configured source. It fails for SourcePrompt.
func (c *Config) LoadKeys() ([][]byte, byte, error) {
	switch c.Source() {
	case SourceWipeCode:
		data, err := os.ReadFile(c.WipeCodeFile)
		if err != nil {
			return nil, 0, fmt.Errorf("read wipe code: %w", err)
		}
		return KeysFromWipeCode(data)
	case SourceKeyFiles:
		keys := make([][]byte, 0, boltcard.KeyCount)
		for i, path := range c.KeyFiles() {
			k, err := ntag424.LoadKeyHexFile(path)
			if err != nil {
				return nil, 0, fmt.Errorf("k%d: %w", i, err)
			}
			keys = append(keys, k)
		}
		return keys, c.keyVersion(), nil
	default:
		return nil, 0, fmt.Errorf("no key source configured")
	}
}

// KeysFromWipeCode parses a wipe code document into keys and version.
func KeysFromWipeCode(data []byte) ([][]byte, byte, error) {
	wc, err := boltcard.ParseWipeCode(data)
	if err != nil {
		return nil, 0, err
	}
	keys, err := wc.Keys()
	if err != nil {
		return nil, 0, err
	}
	if wc.Version < 0 || wc.Version > 0xFF {
		return nil, 0, fmt.Errorf("wipe code version %d out of range", wc.Version)
	}
	return keys, byte(wc.Version), nil
}

func (c *Config) keyVersion() byte {
	if c.Keys.Version == nil {
		return boltcard.DefaultKeyVersion
	}
	return byte(*c.Keys.Version)
}

func (c *Config) resolvePaths(configPath string) {
	configDir := filepath.Dir(configPath)
	c.WipeCodeFile = resolvePath(configDir, c.WipeCodeFile)
	c.Keys.K0File = resolvePath(configDir, c.Keys.K0File)
	c.Keys.K1File = resolvePath(configDir, c.Keys.K1File)
	c.Keys.K2File = resolvePath(configDir, c.Keys.K2File)
	c.Keys.K3File = resolvePath(configDir, c.Keys.K3File)
	c.Keys.K4File = resolvePath(configDir, c.Keys.K4File)
	c.Runtime.KeyDir = resolvePath(configDir, c.Runtime.KeyDir)
}

func resolvePath(baseDir, path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" || filepath.IsAbs(trimmed) {
		return trimmed
	}
	return filepath.Clean(filepath.Join(baseDir, trimmed))
}

func validateReadableFile(path string, field string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s must point to a file, got directory", field)
	}
	return nil
}
