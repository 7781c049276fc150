package config

import (
	"os"
	"path/filepath"
)

// ForgePath returns the state directory for Forge.
// It uses $FORGE_PATH if set, otherwise defaults to .forge in the
// working directory, keeping state project-local.
func ForgePath() string {
	if v := os.Getenv("FORGE_PATH"); v != "" {
		return v
	}
	return filepath.Join(".", ".forge")
}

// ConfigPath returns the path to the Forge config file.
func ConfigPath() string {
	return "forge.jsonc"
}

// RulesPath returns the path to the delegation rule table.
func RulesPath() string {
	return "droids.yaml"
}

// AuditPath returns the path to the NDJSON audit log.
func AuditPath() string {
	return filepath.Join(ForgePath(), "logs", "audit.ndjson")
}

// DotenvPath returns the path to the Forge .env file.
func DotenvPath() string {
	return filepath.Join(ForgePath(), ".env")
}
