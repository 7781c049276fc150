// Package lockfile provides mutual exclusion over a file path using an
// on-disk sentinel marker. At most one non-expired lock exists per resource;
// markers older than the staleness threshold are reclaimed.
package lockfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/droidforge/forge/internal/events"
)

// ErrLockTimeout is the sentinel wrapped by TimeoutError.
var ErrLockTimeout = errors.New("lock acquire timeout")

// TimeoutError reports a failed acquisition, naming the resource and the
// holder that was blocking it.
type TimeoutError struct {
	Resource string
	Holder   string
	Waited   time.Duration
}

func (e *TimeoutError) Error() string {
	if e.Holder != "" {
		return fmt.Sprintf("acquire %s: timed out after %s (held by %s)", e.Resource, e.Waited, e.Holder)
	}
	return fmt.Sprintf("acquire %s: timed out after %s", e.Resource, e.Waited)
}

func (e *TimeoutError) Unwrap() error { return ErrLockTimeout }

// Info is the JSON content of a lock marker.
type Info struct {
	HolderID   string    `json:"holder_id"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	PID        int       `json:"pid"`
}

// Lock represents exclusive mutation rights over one resource.
type Lock struct {
	Resource   string
	HolderID   string
	AcquiredAt time.Time
	ExpiresAt  time.Time

	markerPath string
	mgr        *Manager
}

// Config holds tunables for a Manager. Zero values fall back to defaults.
type Config struct {
	Bus          *events.Bus
	RunID        string
	Timeout      time.Duration // max wait in Acquire
	StaleAfter   time.Duration // marker age before reclamation
	PollInterval time.Duration
}

const (
	DefaultTimeout      = 30 * time.Second
	DefaultStaleAfter   = 300 * time.Second
	DefaultPollInterval = 250 * time.Millisecond
)

// Manager acquires and releases sentinel-file locks.
type Manager struct {
	bus          *events.Bus
	runID        string
	timeout      time.Duration
	staleAfter   time.Duration
	pollInterval time.Duration
}

// NewManager creates a Manager, applying defaults for unset config fields.
func NewManager(cfg Config) *Manager {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Manager{
		bus:          cfg.Bus,
		runID:        cfg.RunID,
		timeout:      cfg.Timeout,
		staleAfter:   cfg.StaleAfter,
		pollInterval: cfg.PollInterval,
	}
}

// MarkerPath returns the sentinel path guarding a resource.
func MarkerPath(resource string) string {
	return resource + ".lock"
}

// Acquire takes the lock on resource for holderID, waiting up to the
// configured timeout. The context cancels an in-progress wait.
func (m *Manager) Acquire(ctx context.Context, resource, holderID string) (*Lock, error) {
	return m.AcquireTimeout(ctx, resource, holderID, m.timeout)
}

// AcquireTimeout is Acquire with an explicit per-call timeout.
func (m *Manager) AcquireTimeout(ctx context.Context, resource, holderID string, timeout time.Duration) (*Lock, error) {
	marker := MarkerPath(resource)
	start := time.Now()
	deadline := start.Add(timeout)

	for {
		lock, err := m.tryCreate(marker, resource, holderID)
		if err == nil {
			m.publish(events.LockAcquiredPayload{
				Resource: resource,
				HolderID: holderID,
				WaitedMs: time.Since(start).Milliseconds(),
			})
			return lock, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("create lock marker %s: %w", marker, err)
		}

		// Marker exists: check for staleness, otherwise wait.
		info, infoErr := m.readInfo(marker)
		if infoErr == nil {
			if age := time.Since(info.AcquiredAt); age > m.staleAfter {
				m.reclaim(marker, resource, info, age)
				continue
			}
		} else if os.IsNotExist(infoErr) {
			continue // released between create attempt and read
		}

		if time.Now().After(deadline) {
			holder := ""
			if infoErr == nil {
				holder = info.HolderID
			}
			waited := time.Since(start)
			m.publish(events.LockTimeoutPayload{
				Resource:      resource,
				HolderID:      holderID,
				CurrentHolder: holder,
				WaitedMs:      waited.Milliseconds(),
			})
			return nil, &TimeoutError{Resource: resource, Holder: holder, Waited: waited}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.pollInterval):
		}
	}
}

// Release deletes the marker only if it still identifies the lock's holder.
// A mismatch (the lock was reclaimed by someone else) is logged and audited
// but not an error. The check and the remove are not atomic: a reclaim that
// lands between them would have this Remove delete the new holder's marker.
// Sentinel files offer no compare-and-delete, so the window stays; the
// staleness threshold makes it unreachable for live holders in practice.
func (m *Manager) Release(l *Lock) error {
	info, err := m.readInfo(l.markerPath)
	if err != nil {
		m.denyRelease(l, "")
		return nil
	}
	if info.HolderID != l.HolderID {
		m.denyRelease(l, info.HolderID)
		return nil
	}

	if err := os.Remove(l.markerPath); err != nil {
		return fmt.Errorf("remove lock marker %s: %w", l.markerPath, err)
	}

	m.publish(events.LockReleasedPayload{
		Resource: l.Resource,
		HolderID: l.HolderID,
	})
	return nil
}

// Inspect reads the current marker for a resource. Returns nil if unlocked.
func (m *Manager) Inspect(resource string) (*Info, error) {
	info, err := m.readInfo(MarkerPath(resource))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return info, nil
}

// ClearIfStale removes a marker whose age exceeds the staleness threshold.
// Reports whether a marker was reclaimed.
func (m *Manager) ClearIfStale(resource string) (bool, error) {
	marker := MarkerPath(resource)
	info, err := m.readInfo(marker)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	age := time.Since(info.AcquiredAt)
	if age <= m.staleAfter {
		return false, nil
	}
	m.reclaim(marker, resource, info, age)
	return true, nil
}

func (m *Manager) tryCreate(marker, resource, holderID string) (*Lock, error) {
	f, err := os.OpenFile(marker, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	info := Info{
		HolderID:   holderID,
		AcquiredAt: now,
		ExpiresAt:  now.Add(m.staleAfter),
		PID:        os.Getpid(),
	}
	data, _ := json.Marshal(info)
	if _, err := f.Write(append(data, '\n')); err != nil {
		f.Close()
		os.Remove(marker)
		return nil, fmt.Errorf("write lock marker: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(marker)
		return nil, fmt.Errorf("close lock marker: %w", err)
	}

	return &Lock{
		Resource:   resource,
		HolderID:   holderID,
		AcquiredAt: info.AcquiredAt,
		ExpiresAt:  info.ExpiresAt,
		markerPath: marker,
		mgr:        m,
	}, nil
}

func (m *Manager) readInfo(marker string) (*Info, error) {
	data, err := os.ReadFile(marker)
	if err != nil {
		return nil, err
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		// Corrupt marker: treat as held by an unknown holder since its
		// creation time so staleness can still reclaim it.
		st, statErr := os.Stat(marker)
		if statErr != nil {
			return nil, statErr
		}
		return &Info{AcquiredAt: st.ModTime()}, nil
	}
	return &info, nil
}

func (m *Manager) reclaim(marker, resource string, info *Info, age time.Duration) {
	slog.Warn("reclaiming stale lock",
		"resource", resource,
		"previous_holder", info.HolderID,
		"age", age.Round(time.Second))

	_ = os.Remove(marker)

	m.publish(events.LockStaleReclaimedPayload{
		Resource:       resource,
		PreviousHolder: info.HolderID,
		AgeSeconds:     int64(age.Seconds()),
	})
}

func (m *Manager) denyRelease(l *Lock, currentHolder string) {
	slog.Warn("release denied: lock no longer owned",
		"resource", l.Resource,
		"holder_id", l.HolderID,
		"current_holder", currentHolder)

	m.publish(events.LockReleaseDeniedPayload{
		Resource:      l.Resource,
		HolderID:      l.HolderID,
		CurrentHolder: currentHolder,
	})
}

func (m *Manager) publish(payload events.EventPayload) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(events.NewTypedEventWithRun(events.SourceLock, payload, m.runID))
}
