// Package config loads bancho3's JSON server configuration and its YAML
// message templates.
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds server-wide settings read from config.json.
type ServerConfig struct {
	Domain              string `json:"domain"`
	ListenAddr          string `json:"listenAddr"`
	HealthAddr          string `json:"healthAddr,omitempty"`
	CommandPrefix       string `json:"commandPrefix"`
	MenuIconURL         string `json:"menuIconUrl"`
	MenuIconText        string `json:"menuIconText"`
	BcryptCacheSize     int    `json:"bcryptCacheSize"`
	Debug               bool   `json:"debug"`
	EnforceChangelog    bool   `json:"enforceChangelog"`
	ChangelogURL        string `json:"changelogUrl,omitempty"`
	DiscordWebhookURL   string `json:"discordWebhookUrl,omitempty"`
	DisallowedNamesPath string `json:"disallowedNamesPath,omitempty"`
	BotUserID           int32  `json:"botUserId"`
}

// LoadServerConfig reads config.json from configPath, overlaying it on top
// of the built-in defaults. A missing file is not an error.
func LoadServerConfig(configPath string) (ServerConfig, error) {
	filePath := filepath.Join(configPath, "config.json")
	log.Printf("INFO: loading server configuration from %s", filePath)

	defaultConfig := ServerConfig{
		Domain:           "localhost",
		ListenAddr:       ":13381",
		HealthAddr:       ":13382",
		CommandPrefix:    "!",
		MenuIconURL:      "",
		MenuIconText:     "",
		BcryptCacheSize:  256,
		Debug:            false,
		EnforceChangelog: false,
		BotUserID:        1,
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("WARN: config.json not found at %s, using defaults", filePath)
			return defaultConfig, nil
		}
		return defaultConfig, fmt.Errorf("failed to read config file %s: %w", filePath, err)
	}

	cfg := defaultConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		log.Printf("ERROR: failed to parse config JSON from %s: %v. Using defaults.", filePath, err)
		return defaultConfig, fmt.Errorf("failed to parse config JSON from %s: %w", filePath, err)
	}

	log.Printf("INFO: server configuration loaded from %s", filePath)
	return cfg, nil
}

// SaveServerConfig writes cfg back to config.json in configPath.
func SaveServerConfig(configPath string, cfg ServerConfig) error {
	filePath := filepath.Join(configPath, "config.json")
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal server config: %w", err)
	}
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", filePath, err)
	}
	log.Printf("INFO: server configuration saved to %s", filePath)
	return nil
}

// DisallowedNames loads the list of disallowed display names from a file
// holding a JSON array of strings.
// A missing file yields an empty list, not an error.
func DisallowedNames(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read disallowed names file %s: %w", path, err)
	}
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, fmt.Errorf("failed to parse disallowed names JSON from %s: %w", path, err)
	}
	return names, nil
}

// Templates holds operator-facing text fragments (welcome chat message,
// notification strings) loaded from a YAML file alongside config.json.
// Kept as YAML (rather than folded into config.json) so operators can write
// multi-line chat text without JSON escaping noise.
type Templates struct {
	WelcomeNotification string `yaml:"welcomeNotification"`
	WelcomeChatMessage  string `yaml:"welcomeChatMessage"`
	RestrictedNotice    string `yaml:"restrictedNotice"`
	ContactStaffNotice  string `yaml:"contactStaffNotice"`
}

func defaultTemplates() Templates {
	return Templates{
		WelcomeNotification: "Welcome back!",
		WelcomeChatMessage:  "Welcome to the server.",
		RestrictedNotice:    "Your account is currently restricted.",
		ContactStaffNotice:  "Please contact staff to resolve this issue.",
	}
}

// LoadTemplates reads templates.yaml from configPath, overlaying it on the
// built-in defaults. A missing file is not an error.
func LoadTemplates(configPath string) (Templates, error) {
	filePath := filepath.Join(configPath, "templates.yaml")
	tpl := defaultTemplates()

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return tpl, nil
		}
		return tpl, fmt.Errorf("failed to read templates file %s: %w", filePath, err)
	}

	if err := yaml.Unmarshal(data, &tpl); err != nil {
		return tpl, fmt.Errorf("failed to parse templates YAML from %s: %w", filePath, err)
	}
	return tpl, nil
}
