package formula

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// LoadTab reads the INSTALL_RECEIPT.json sidecar for an installed keg.
// A missing tab is not an error — it simply means no options were recorded.
func LoadTab(path string) (*Tab, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Tab{}, nil
		}
		return nil, fmt.Errorf("failed to read tab: %w", err)
	}
	var tab Tab
	if err := json.Unmarshal(data, &tab); err != nil {
		return nil, fmt.Errorf("failed to parse tab %s: %w", path, err)
	}
	return &tab, nil
}

// Save writes the tab sidecar atomically (write-then-rename) so a crash
// mid-write never leaves a truncated receipt behind.
func (t *Tab) Save(path string) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal tab: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create keg directory: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write tab: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to finalize tab: %w", err)
	}
	return nil
}
