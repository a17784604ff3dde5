package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// SwitchKey is the runtime switch key inside the switch file.
const SwitchKey = "sync_enabled"

// RuntimeSwitch is an operator-editable JSON document that turns background
// sync on or off without a restart.
//
// The file is read fresh on every call. A missing file, an unreadable file,
// a missing key or a value that is not a boolean all mean "enabled": the
// switch can only turn sync off when it says so unambiguously.
type RuntimeSwitch struct {
	path string
}

// NewRuntimeSwitch returns a switch backed by the JSON file at path.
func NewRuntimeSwitch(path string) *RuntimeSwitch {
	return &RuntimeSwitch{path: path}
}

// Path returns the backing file.
func (s *RuntimeSwitch) Path() string { return s.path }

// SyncEnabled reports the current value of sync_enabled.
func (s *RuntimeSwitch) SyncEnabled() bool {
	if s == nil || s.path == "" {
		return true
	}

	v := viper.New()
	v.SetConfigFile(s.path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return true
	}
	if !v.IsSet(SwitchKey) {
		return true
	}

	switch val := v.Get(SwitchKey).(type) {
	case bool:
		return val
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(val))
		if err != nil {
			return true
		}
		return b
	case float64:
		return val != 0
	case int:
		return val != 0
	case int64:
		return val != 0
	}
	return true
}

// SetSyncEnabled writes sync_enabled, keeping the other keys and their
// values. The file is rewritten as indented JSON with sorted keys.
func (s *RuntimeSwitch) SetSyncEnabled(enabled bool) error {
	doc := make(map[string]any)
	if data, err := os.ReadFile(s.path); err == nil && len(strings.TrimSpace(string(data))) > 0 {
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("failed to parse %s: %w", s.path, err)
		}
	}
	doc[SwitchKey] = enabled

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode switch file: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create switch directory: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write switch file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace switch file: %w", err)
	}
	return nil
}
