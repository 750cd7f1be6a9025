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

type Config struct {
	URL     string        `yaml:"url"`
	Keys    KeysConfig    `yaml:"keys"`
	Runtime RuntimeConfig `yaml:"runtime"`
}

// KeysConfig names the hex files of the five application keys. k3 and k4
// default to k1 and k2, the layout LNbits hands out.
type KeysConfig struct {
	K0File  string `yaml:"k0_file"`
	K1File  string `yaml:"k1_file"`
	K2File  string `yaml:"k2_file"`
	K3File  string `yaml:"k3_file,omitempty"`
	K4File  string `yaml:"k4_file,omitempty"`
	Version *int   `yaml:"version,omitempty"`
}

type RuntimeConfig struct {
	ReaderIndex *int          `yaml:"reader_index"`
	WaitTimeout time.Duration `yaml:"wait_timeout,omitempty"`
	WipeCodeDir string        `yaml:"wipe_code_dir,omitempty"`
}

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
	if strings.TrimSpace(c.Keys.K3File) == "" {
		c.Keys.K3File = c.Keys.K1File
	}
	if strings.TrimSpace(c.Keys.K4File) == "" {
		c.Keys.K4File = c.Keys.K2File
	}
	if c.Keys.Version == nil {
		v := int(boltcard.DefaultKeyVersion)
		c.Keys.Version = &v
	}
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.URL) == "" {
		return fmt.Errorf("config.url is required")
	}
	if _, err := boltcard.BuildURLTemplate(c.URL); err != nil {
		return fmt.Errorf("config.url: %w", err)
	}

	for i, path := range c.KeyFiles() {
		field := fmt.Sprintf("config.keys.k%d_file", i)
		if strings.TrimSpace(path) == "" {
			return fmt.Errorf("%s is required", field)
		}
		if err := validateReadableFile(path, field); err != nil {
			return err
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
	if dir := c.Runtime.WipeCodeDir; dir != "" {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("config.runtime.wipe_code_dir: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("config.runtime.wipe_code_dir must be a directory")
		}
	}
	return nil
}

// KeyFiles returns the key file paths in slot order.
func (c *Config) KeyFiles() []string {
	return []string{c.Keys.K0File, c.Keys.K1File, c.Keys.K2File, c.Keys.K3File, c.Keys.K4File}
}

// LoadKeys reads the five keys in slot order.
func (c *Config) LoadKeys() ([][]byte, error) {
	keys := make([][]byte, 0, boltcard.KeyCount)
	for i, path := range c.KeyFiles() {
		k, err := ntag424.LoadKeyHexFile(path)
		if err != nil {
			return nil, fmt.Errorf("k%d: %w", i, err)
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// KeyVersion returns the key version to write.
func (c *Config) KeyVersion() byte {
	if c.Keys.Version == nil {
		return boltcard.DefaultKeyVersion
	}
	return byte(*c.Keys.Version)
}

func (c *Config) resolvePaths(configPath string) {
	configDir := filepath.Dir(configPath)
	c.Keys.K0File = resolvePath(configDir, c.Keys.K0File)
	c.Keys.K1File = resolvePath(configDir, c.Keys.K1File)
	c.Keys.K2File = resolvePath(configDir, c.Keys.K2File)
	c.Keys.K3File = resolvePath(configDir, c.Keys.K3File)
	c.Keys.K4File = resolvePath(configDir, c.Keys.K4File)
	c.Runtime.WipeCodeDir = resolvePath(configDir, c.Runtime.WipeCodeDir)
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
