package config

import (
	"os"
	"path/filepath"
	"strings"
)

// Dir is the per-user state directory, ~/.wingterm. WTERM_HOME overrides it.
func Dir() (string, error) {
	if dir := os.Getenv("WTERM_HOME"); dir != "" {
		return dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".wingterm"), nil
}

// InDir joins name onto Dir.
func InDir(name string) (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// DefaultPath is the config file location.
func DefaultPath() (string, error) {
	return InDir("config.yaml")
}

// EnsureDir creates Dir if needed.
func EnsureDir() error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o700)
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
