package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadServerConfig_Defaults(t *testing.T) {
	tmpDir := t.TempDir()
	result, err := LoadServerConfig(tmpDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.CommandPrefix != "!" {
		t.Errorf("expected default command prefix '!', got %q", result.CommandPrefix)
	}
	if result.BcryptCacheSize != 256 {
		t.Errorf("expected default bcrypt cache size 256, got %d", result.BcryptCacheSize)
	}
	if result.Domain != "localhost" {
		t.Errorf("expected default domain localhost, got %s", result.Domain)
	}
}

func TestLoadServerConfig_PartialOverlayPreservesDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := map[string]interface{}{
		"domain": "osu.example.com",
	}
	data, _ := json.Marshal(cfg)
	os.WriteFile(filepath.Join(tmpDir, "config.json"), data, 0644)

	result, err := LoadServerConfig(tmpDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Domain != "osu.example.com" {
		t.Errorf("expected domain osu.example.com, got %s", result.Domain)
	}
	if result.CommandPrefix != "!" {
		t.Errorf("expected default command prefix to be preserved, got %q", result.CommandPrefix)
	}
	if result.BcryptCacheSize != 256 {
		t.Errorf("expected default bcrypt cache size to be preserved, got %d", result.BcryptCacheSize)
	}
}

func TestLoadServerConfig_CustomValues(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := map[string]interface{}{
		"domain":          "test.osu",
		"commandPrefix":   ".",
		"bcryptCacheSize": 512,
		"debug":           true,
	}
	data, _ := json.Marshal(cfg)
	os.WriteFile(filepath.Join(tmpDir, "config.json"), data, 0644)

	result, err := LoadServerConfig(tmpDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.CommandPrefix != "." {
		t.Errorf("expected command prefix '.', got %q", result.CommandPrefix)
	}
	if result.BcryptCacheSize != 512 {
		t.Errorf("expected bcrypt cache size 512, got %d", result.BcryptCacheSize)
	}
	if !result.Debug {
		t.Error("expected debug to be true")
	}
}

func TestLoadServerConfig_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	os.WriteFile(filepath.Join(tmpDir, "config.json"), []byte("{not json"), 0644)

	_, err := LoadServerConfig(tmpDir)
	if err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestDisallowedNames_MissingFile(t *testing.T) {
	result, err := DisallowedNames(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("unexpected error for missing file: %v", err)
	}
	if len(result) != 0 {
		t.Errorf("expected 0 names for missing file, got %d", len(result))
	}
}

func TestDisallowedNames_ValidFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "disallowed.json")
	data, _ := json.Marshal([]string{"admin", "peppy", "bancho"})
	os.WriteFile(path, data, 0644)

	result, err := DisallowedNames(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 3 {
		t.Fatalf("expected 3 names, got %d", len(result))
	}
	if result[0] != "admin" {
		t.Errorf("expected first name 'admin', got %s", result[0])
	}
}

func TestLoadTemplates_Defaults(t *testing.T) {
	tmpDir := t.TempDir()
	result, err := LoadTemplates(tmpDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.WelcomeChatMessage == "" {
		t.Error("expected a non-empty default welcome chat message")
	}
}

func TestLoadTemplates_CustomValues(t *testing.T) {
	tmpDir := t.TempDir()
	content := "welcomeChatMessage: \"Hello, custom world!\"\n"
	os.WriteFile(filepath.Join(tmpDir, "templates.yaml"), []byte(content), 0644)

	result, err := LoadTemplates(tmpDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.WelcomeChatMessage != "Hello, custom world!" {
		t.Errorf("expected custom welcome chat message, got %q", result.WelcomeChatMessage)
	}
	if result.RestrictedNotice == "" {
		t.Error("expected RestrictedNotice default to be preserved")
	}
}
