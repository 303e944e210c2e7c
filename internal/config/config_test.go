package config

import (
	"os"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	os.Unsetenv("PYXISEXT_PORT")
	os.Unsetenv("PYXISEXT_LOG_LEVEL")
	os.Unsetenv("PYXISEXT_STORE_PATH")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Port != 8088 {
		t.Errorf("Port = %v, want 8088", cfg.Port)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %v, want info", cfg.LogLevel)
	}
	if cfg.StorePath != "./data/extensions.db" {
		t.Errorf("StorePath = %v, want ./data/extensions.db", cfg.StorePath)
	}
	if cfg.HostLocale != "en" {
		t.Errorf("HostLocale = %v, want en", cfg.HostLocale)
	}
	if cfg.LogBufferCapacity != 500 {
		t.Errorf("LogBufferCapacity = %v, want 500", cfg.LogBufferCapacity)
	}
}

func TestLoadHonorsEnvironmentOverrides(t *testing.T) {
	os.Setenv("PYXISEXT_STORE_PATH", "./test-data/ext.db")
	os.Setenv("PYXISEXT_HOST_LOCALE", "ja-JP")
	defer func() {
		os.Unsetenv("PYXISEXT_STORE_PATH")
		os.Unsetenv("PYXISEXT_HOST_LOCALE")
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.StorePath != "./test-data/ext.db" {
		t.Errorf("StorePath = %v, want ./test-data/ext.db", cfg.StorePath)
	}
	if cfg.HostLocale != "ja-JP" {
		t.Errorf("HostLocale = %v, want ja-JP", cfg.HostLocale)
	}
}

func TestCORSOriginsDefault(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	found := false
	for _, origin := range cfg.CORSOrigins {
		if origin == "http://localhost:5173" {
			found = true
			break
		}
	}
	if !found {
		t.Error("default CORS origin 'http://localhost:5173' not found")
	}
}
