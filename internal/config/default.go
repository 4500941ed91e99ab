package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/afero"
)

//go:embed config-example.yaml
var exampleConfig string

// WriteExample creates an example config file at path unless a file exists
// there already. It returns the expanded path and whether a file was written.
func WriteExample(afs afero.Fs, path string) (string, bool, error) {
	expanded := ExpandTilde(path)

	exists, err := afero.Exists(afs, expanded)
	if err != nil {
		return "", false, err
	}
	if exists {
		return expanded, false, nil
	}

	dir := filepath.Dir(expanded)
	if err := afs.MkdirAll(dir, 0o755); err != nil {
		return "", false, fmt.Errorf("failed to create config directory %s: %w", dir, err)
	}
	if err := afero.WriteFile(afs, expanded, []byte(exampleConfig), 0o644); err != nil {
		return "", false, fmt.Errorf("failed to create example config %s: %w", expanded, err)
	}

	slog.Info("created example config", "path", expanded)
	return expanded, true, nil
}
