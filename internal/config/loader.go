package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/marcozac/go-jsonc"
)

var envTemplateRe = regexp.MustCompile(`\$\{\{\s*\.Env\.(\w+)\s*\}\}`)

// Load reads a JSONC config file, strips comments, expands ${{ .Env.VAR }} templates,
// unmarshals it into Config, and applies defaults. A missing file yields a
// default config so a bare working tree still works.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := &Config{}
			applyDefaults(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variable templates (before stripping, since templates are in strings)
	expanded := expandEnvTemplates(string(data))

	var cfg Config
	if err := jsonc.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// expandEnvTemplates replaces ${{ .Env.VAR }} with the env var value.
func expandEnvTemplates(s string) string {
	return envTemplateRe.ReplaceAllStringFunc(s, func(match string) string {
		parts := envTemplateRe.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		return os.Getenv(parts[1])
	})
}

// applyDefaults fills in zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if len(cfg.Documents) == 0 {
		cfg.Documents = []string{"TASKS.md"}
	}
	if cfg.Rules == "" {
		cfg.Rules = RulesPath()
	}
	if cfg.Audit == "" {
		cfg.Audit = AuditPath()
	}
	if cfg.Lock.Timeout <= 0 {
		cfg.Lock.Timeout = Duration(30 * time.Second)
	}
	if cfg.Lock.StaleAfter <= 0 {
		cfg.Lock.StaleAfter = Duration(300 * time.Second)
	}
	if cfg.Lock.PollInterval <= 0 {
		cfg.Lock.PollInterval = Duration(250 * time.Millisecond)
	}
	if cfg.Events.BufferSize <= 0 {
		cfg.Events.BufferSize = 1024
	}
	if cfg.Gateway.Host == "" {
		cfg.Gateway.Host = "127.0.0.1"
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = 18520
	}
}
