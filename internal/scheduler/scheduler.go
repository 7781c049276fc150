package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/droidforge/forge/internal/events"
)

// DefaultCooldown is the minimum interval between two triggers of the same entry.
const DefaultCooldown = 60 * time.Second

// TriggerFunc runs one processing cycle for a document. Invoked off the
// scheduler goroutine; implementations handle their own locking.
type TriggerFunc func(ctx context.Context, document string)

// DocumentSchedule describes one schedule entry. Exactly one of Cron or
// Every should be set.
type DocumentSchedule struct {
	Document string
	Cron     string
	Every    time.Duration
}

// Config holds dependencies for the scheduler.
type Config struct {
	Bus       *events.Bus
	Trigger   TriggerFunc
	Schedules []DocumentSchedule
}

// runtimeEntry is the internal representation of a schedule entry.
type runtimeEntry struct {
	id       string
	document string
	cron     *CronExpr
	every    time.Duration
	cooldown time.Duration
	lastRun  time.Time
	running  bool
}

// Scheduler triggers processing cycles on cron expressions and fixed intervals.
type Scheduler struct {
	bus     *events.Bus
	trigger TriggerFunc

	mu      sync.Mutex
	entries map[string]*runtimeEntry

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a Scheduler from the given schedule entries. Entries with an
// invalid cron expression are rejected.
func New(cfg Config) (*Scheduler, error) {
	s := &Scheduler{
		bus:     cfg.Bus,
		trigger: cfg.Trigger,
		entries: make(map[string]*runtimeEntry),
		done:    make(chan struct{}),
	}

	for i, ds := range cfg.Schedules {
		if ds.Document == "" {
			return nil, fmt.Errorf("schedule %d: missing document", i)
		}
		if ds.Cron == "" && ds.Every <= 0 {
			return nil, fmt.Errorf("schedule %d (%s): needs cron or every", i, ds.Document)
		}

		re := &runtimeEntry{
			id:       fmt.Sprintf("sched_%d_%s", i, ds.Document),
			document: ds.Document,
			every:    ds.Every,
			cooldown: DefaultCooldown,
		}
		if ds.Every > 0 && ds.Every < re.cooldown {
			re.cooldown = ds.Every
		}
		if ds.Cron != "" {
			expr, err := ParseCron(ds.Cron)
			if err != nil {
				return nil, fmt.Errorf("schedule %d (%s): %w", i, ds.Document, err)
			}
			re.cron = expr
		}
		s.entries[re.id] = re
	}
	return s, nil
}

// Start begins the cron and interval tickers.
func (s *Scheduler) Start() {
	slog.Info("scheduler started", "entries", len(s.entries))
	go s.cronLoop()
	go s.intervalLoop()
}

// Stop halts the scheduler and waits for in-flight cycles to finish.
func (s *Scheduler) Stop() {
	close(s.done)
	s.wg.Wait()
	slog.Info("scheduler stopped")
}

// Len returns the number of registered entries.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Scheduler) cronLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			s.checkCron(now)
		}
	}
}

func (s *Scheduler) intervalLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			s.checkIntervals(now)
		}
	}
}

func (s *Scheduler) checkCron(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, entry := range s.entries {
		if entry.cron == nil {
			continue
		}
		if !entry.cron.Matches(now) {
			continue
		}
		if now.Sub(entry.lastRun) < entry.cooldown {
			continue
		}
		s.triggerEntry(entry, "cron")
	}
}

func (s *Scheduler) checkIntervals(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, entry := range s.entries {
		if entry.every <= 0 {
			continue
		}
		if now.Sub(entry.lastRun) < entry.every {
			continue
		}
		s.triggerEntry(entry, "interval")
	}
}

// triggerEntry fires a cycle for the entry's document. Caller must hold s.mu.
// A document whose previous cycle is still running is skipped, not queued.
func (s *Scheduler) triggerEntry(re *runtimeEntry, trigger string) {
	if re.running {
		slog.Warn("scheduler: cycle still running, skipping trigger",
			"id", re.id, "document", re.document)
		return
	}
	re.lastRun = time.Now()
	re.running = true

	if s.bus != nil {
		s.bus.Publish(events.NewTypedEvent(events.SourceScheduler, events.ScheduleTriggeredPayload{
			EntryID:  re.id,
			Document: re.document,
			Trigger:  trigger,
		}))
	}
	slog.Info("scheduler: triggered", "id", re.id, "document", re.document, "trigger", trigger)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			re.running = false
			s.mu.Unlock()
		}()
		s.trigger(context.Background(), re.document)
	}()
}
