package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Log        LogConfig        `yaml:"log"`
	HTTP       HTTPConfig       `yaml:"http"`
	WebDAV     WebDAVConfig     `yaml:"webdav"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Fuse       FuseConfig       `yaml:"fuse"`
	Cache      CacheConfig      `yaml:"cache"`
	Decompiler DecompilerConfig `yaml:"decompiler"`
	Watch      WatchConfig      `yaml:"watch"`
	Archives   []ArchiveConfig  `yaml:"archives"`
}

type LogConfig struct {
	Debug      bool   `yaml:"debug"`
	Path       string `yaml:"path"` // directory for the rotating log file, empty disables it
	MaxBackups int    `yaml:"max_backups"`
	MaxSize    int    `yaml:"max_size"` // MB
	MaxAge     int    `yaml:"max_age"`  // days
}

type HTTPConfig struct {
	Port int `yaml:"port"`
}

type WebDAVConfig struct {
	Port int    `yaml:"port"`
	User string `yaml:"user"`
	Pass string `yaml:"pass"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type FuseConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type CacheConfig struct {
	// Path of the persistent decompiled-source store, empty disables it.
	Path string `yaml:"path"`
}

type DecompilerConfig struct {
	Indent      string `yaml:"indent"`
	Header      bool   `yaml:"header"`
	SortMembers bool   `yaml:"sort_members"`
}

type WatchConfig struct {
	Enabled bool `yaml:"enabled"`
}

// ArchiveConfig exposes one archive under a mount name.
type ArchiveConfig struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// DefaultConfig returns configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			MaxBackups: 2,
			MaxSize:    50,
			MaxAge:     30,
		},
		HTTP: HTTPConfig{
			Port: 4444,
		},
		WebDAV: WebDAVConfig{
			Port: 36911,
		},
		Metrics: MetricsConfig{
			Port: 9090,
		},
		Fuse: FuseConfig{
			Path: "./classfs-mount",
		},
		Decompiler: DecompilerConfig{
			Indent: "    ",
			Header: true,
		},
		Watch: WatchConfig{
			Enabled: true,
		},
	}
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Use defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the archive list for unusable mount names.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Archives))
	for i, a := range c.Archives {
		switch {
		case a.Name == "":
			return fmt.Errorf("archives[%d]: empty name", i)
		case strings.Contains(a.Name, "/"):
			return fmt.Errorf("archives[%d]: name %q contains '/'", i, a.Name)
		case a.Path == "":
			return fmt.Errorf("archives[%d]: empty path", i)
		case seen[a.Name]:
			return fmt.Errorf("archives[%d]: duplicate name %q", i, a.Name)
		}
		seen[a.Name] = true
	}
	return nil
}

// EnsureDirectories creates required directories
func (c *Config) EnsureDirectories() error {
	var dirs []string
	if c.Log.Path != "" {
		dirs = append(dirs, c.Log.Path)
	}
	if c.Cache.Path != "" {
		dirs = append(dirs, filepath.Dir(c.Cache.Path))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	return nil
}
