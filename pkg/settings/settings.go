// Package settings manages persistent user settings for the provtest CLI.
package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// EnvPath overrides the settings file location.
const EnvPath = "PROVTEST_SETTINGS"

// DefaultSuitesDir is used when neither a flag, the environment, nor the
// settings file names a suites directory.
const DefaultSuitesDir = "suites"

// DefaultReportsDir holds generated reports.
const DefaultReportsDir = "reports"

// DefaultAuditLog is the audit log file name under the reports directory.
const DefaultAuditLog = "audit.jsonl"

// Settings holds persistent user preferences
type Settings struct {
	// DefaultInventory is the inventory file used when --inventory is not given
	DefaultInventory string `json:"default_inventory,omitempty"`

	// SuitesDir overrides the default suites directory
	SuitesDir string `json:"suites_dir,omitempty"`

	// ReportsDir is where --report and --junit paths without a directory go
	ReportsDir string `json:"reports_dir,omitempty"`

	// PuppetBin overrides the inventory's puppet binary
	PuppetBin string `json:"puppet_bin,omitempty"`

	// AuditLog is the JSON-lines file recording changes pushed to targets
	AuditLog string `json:"audit_log,omitempty"`
}

// DefaultSettingsPath returns the default path for the settings file
func DefaultSettingsPath() string {
	if p := os.Getenv(EnvPath); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "provtest_settings.json"
	}
	return filepath.Join(home, ".provtest", "settings.json")
}

// Load reads settings from the default location
func Load() (*Settings, error) {
	return LoadFrom(DefaultSettingsPath())
}

// LoadFrom reads settings from a specific path
func LoadFrom(path string) (*Settings, error) {
	s := &Settings{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return empty settings if file doesn't exist
			return s, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, s); err != nil {
		return nil, err
	}

	return s, nil
}

// Save writes settings to the default location
func (s *Settings) Save() error {
	return s.SaveTo(DefaultSettingsPath())
}

// SaveTo writes settings to a specific path
func (s *Settings) SaveTo(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// GetSuitesDir returns the suites directory (with fallback)
func (s *Settings) GetSuitesDir() string {
	if s.SuitesDir != "" {
		return s.SuitesDir
	}
	return DefaultSuitesDir
}

// GetReportsDir returns the reports directory (with fallback)
func (s *Settings) GetReportsDir() string {
	if s.ReportsDir != "" {
		return s.ReportsDir
	}
	return DefaultReportsDir
}

// GetAuditLog returns the audit log path, defaulting to the reports directory.
func (s *Settings) GetAuditLog() string {
	if s.AuditLog != "" {
		return s.AuditLog
	}
	return filepath.Join(s.GetReportsDir(), DefaultAuditLog)
}

// Set assigns a setting by its JSON key. It reports false for unknown keys.
func (s *Settings) Set(key, value string) bool {
	switch key {
	case "default_inventory":
		s.DefaultInventory = value
	case "suites_dir":
		s.SuitesDir = value
	case "reports_dir":
		s.ReportsDir = value
	case "puppet_bin":
		s.PuppetBin = value
	case "audit_log":
		s.AuditLog = value
	default:
		return false
	}
	return true
}

// Keys lists the keys accepted by Set.
func Keys() []string {
	return []string{"default_inventory", "suites_dir", "reports_dir", "puppet_bin", "audit_log"}
}

// Clear resets all settings to defaults
func (s *Settings) Clear() {
	*s = Settings{}
}

// Resolve returns the first non-empty value: flag, then the environment
// variable env, then the setting, then def.
func Resolve(flag, env, setting, def string) string {
	if flag != "" {
		return flag
	}
	if env != "" {
		if v := os.Getenv(env); v != "" {
			return v
		}
	}
	if setting != "" {
		return setting
	}
	return def
}
