package refuel

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fleetops/fuelsight/internal/models"
)

// fallbackFile is the on-disk mirror of learned thresholds, used when the
// store is unavailable at startup.
type fallbackFile struct {
	Thresholds []models.AdaptiveThreshold `json:"thresholds"`
}

// SaveThresholds writes the learned thresholds to path atomically.
func SaveThresholds(path string, thresholds []models.AdaptiveThreshold) error {
	if path == "" {
		return nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create threshold dir: %w", err)
		}
	}

	data, err := json.MarshalIndent(fallbackFile{Thresholds: thresholds}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal thresholds: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write thresholds: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace thresholds: %w", err)
	}
	return nil
}

// LoadThresholds reads thresholds from path. A missing file is not an error.
func LoadThresholds(path string) ([]models.AdaptiveThreshold, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read thresholds: %w", err)
	}

	var file fallbackFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse thresholds: %w", err)
	}
	return file.Thresholds, nil
}
