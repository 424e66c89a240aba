package engine

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config controls engine behavior. All fields have working defaults.
type Config struct {
	// DatabasePath is the sqlite file backing the conversation store.
	DatabasePath string `yaml:"database_path"`

	// PageSize is how many groups each category fetches per page.
	PageSize int `yaml:"page_size"`

	// DisplayCount is the target size of the initial published list; the
	// merged first pages are truncated to this.
	DisplayCount int `yaml:"display_count"`

	// DebounceMS is the window used to coalesce bursts of storage
	// invalidation signals before triggering a refresh.
	DebounceMS int `yaml:"debounce_ms"`

	// DefaultDialingPrefix is assumed for bare national phone numbers
	// during identity normalization (e.g. "+1").
	DefaultDialingPrefix string `yaml:"default_dialing_prefix"`

	// DisplaynameTemplate renders participant display names. Fields:
	// {{.Name}} (cached contact name) and {{.Address}} (formatted address).
	DisplaynameTemplate string `yaml:"displayname_template"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		DatabasePath:         "unichat.db",
		PageSize:             100,
		DisplayCount:         100,
		DebounceMS:           100,
		DefaultDialingPrefix: "+1",
		DisplaynameTemplate:  "{{.Name}}",
	}
}

// LoadConfig reads a YAML config file and applies defaults for any field
// left unset. A missing file yields the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.DatabasePath == "" {
		c.DatabasePath = def.DatabasePath
	}
	if c.PageSize <= 0 {
		c.PageSize = def.PageSize
	}
	if c.DisplayCount <= 0 {
		c.DisplayCount = def.DisplayCount
	}
	if c.DebounceMS <= 0 {
		c.DebounceMS = def.DebounceMS
	}
	if c.DefaultDialingPrefix == "" {
		c.DefaultDialingPrefix = def.DefaultDialingPrefix
	}
	if c.DisplaynameTemplate == "" {
		c.DisplaynameTemplate = def.DisplaynameTemplate
	}
}
