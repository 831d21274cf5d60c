package config

import (
	"os"
	"path/filepath"
	"strings"
)

// Version is stamped at build time with -ldflags "-X macroind/internal/config.Version=..."
var Version string

const fallbackVersion = "0.1.0"

// GetVersion returns the build version, then APP_VERSION, then the VERSION file
func GetVersion() string {
	if Version != "" {
		return Version
	}

	// Set by CI/CD
	if envVersion := os.Getenv("APP_VERSION"); envVersion != "" {
		return envVersion
	}

	return readVersionFile(".", "..", filepath.Join("..", ".."))
}

// readVersionFile returns the first non-empty VERSION file found in dirs
func readVersionFile(dirs ...string) string {
	for _, dir := range dirs {
		content, err := os.ReadFile(filepath.Join(dir, "VERSION"))
		if err != nil {
			continue
		}
		if v := strings.TrimSpace(string(content)); v != "" {
			return v
		}
	}
	return fallbackVersion
}
