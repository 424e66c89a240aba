package engine

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg != DefaultConfig() {
		t.Errorf("config = %+v, want defaults", cfg)
	}
}

func TestLoadConfigPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "unichat.yaml")
	data := "database_path: /tmp/custom.db\npage_size: 25\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DatabasePath != "/tmp/custom.db" || cfg.PageSize != 25 {
		t.Errorf("explicit fields not applied: %+v", cfg)
	}
	def := DefaultConfig()
	if cfg.DebounceMS != def.DebounceMS || cfg.DisplaynameTemplate != def.DisplaynameTemplate {
		t.Errorf("unset fields not defaulted: %+v", cfg)
	}
}

func TestLoadConfigBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "unichat.yaml")
	if err := os.WriteFile(path, []byte("page_size: [not a number"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected parse error")
	}
}
