package config

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Reloader re-reads forge.jsonc and the .env file on demand, swapping the
// active config atomically. Long-running commands trigger it on SIGHUP so
// rule and document changes land without a restart.
type Reloader struct {
	configPath string
	dotenvPath string
	active     atomic.Pointer[Config]
	mu         sync.Mutex // serializes Reload and listener registration
	listeners  []func(*Config)
}

// NewReloader creates a Reloader holding initial as the active config.
func NewReloader(configPath, dotenvPath string, initial *Config) *Reloader {
	r := &Reloader{
		configPath: configPath,
		dotenvPath: dotenvPath,
	}
	r.active.Store(initial)
	return r
}

// Current returns the active config. Lock-free.
func (r *Reloader) Current() *Config {
	return r.active.Load()
}

// OnReload registers a callback invoked after each successful reload with
// the freshly loaded config.
func (r *Reloader) OnReload(fn func(*Config)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Reload re-reads the .env file in override mode, loads the config again so
// env templates re-expand against the fresh environment, then swaps it in
// and notifies listeners. On error the previous config stays active.
func (r *Reloader) Reload() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ReloadDotenv(r.dotenvPath); err != nil {
		return fmt.Errorf("reload dotenv: %w", err)
	}

	cfg, err := Load(r.configPath)
	if err != nil {
		return fmt.Errorf("reload config: %w", err)
	}

	r.active.Store(cfg)
	slog.Info("config reloaded", "path", r.configPath)

	for _, fn := range r.listeners {
		fn(cfg)
	}
	return nil
}
