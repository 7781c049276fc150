package config

import "time"

// Config is the root configuration for Forge.
type Config struct {
	Documents []string         `json:"documents"` // task documents processed by run/watch
	Rules     string           `json:"rules"`     // path to the droids.yaml routing table
	Audit     string           `json:"audit"`     // path to the NDJSON audit log
	Lock      LockConfig       `json:"lock"`
	Handler   HandlerConfig    `json:"handler"`
	Events    EventsConfig     `json:"events"`
	Gateway   GatewayConfig    `json:"gateway"`
	Schedules []ScheduleConfig `json:"schedules,omitempty"`
}

// LockConfig tunes the sentinel-file lock manager.
type LockConfig struct {
	Timeout      Duration `json:"timeout,omitempty"`       // max wait to acquire (default 30s)
	StaleAfter   Duration `json:"stale_after,omitempty"`   // marker age before reclamation (default 300s)
	PollInterval Duration `json:"poll_interval,omitempty"` // acquisition retry interval (default 250ms)
}

// HandlerConfig configures the external task handler command.
type HandlerConfig struct {
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
	WorkDir string   `json:"work_dir,omitempty"`
	Timeout Duration `json:"timeout,omitempty"` // per-task deadline (0 = none)
}

// EventsConfig holds event bus settings.
type EventsConfig struct {
	BufferSize int `json:"buffer_size"`
}

// GatewayConfig holds the gateway server settings.
type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// ScheduleConfig triggers a processing cycle for one document on a cadence.
// Exactly one of Cron or Every should be set.
type ScheduleConfig struct {
	Document string   `json:"document"`
	Cron     string   `json:"cron,omitempty"`  // standard 5-field cron expression
	Every    Duration `json:"every,omitempty"` // fixed interval
}

// Duration wraps time.Duration for JSON unmarshaling.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	// Remove quotes
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}
