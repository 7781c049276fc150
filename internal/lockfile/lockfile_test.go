package lockfile

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/droidforge/forge/internal/events"
)

func testManager(t *testing.T, bus *events.Bus) *Manager {
	t.Helper()
	return NewManager(Config{
		Bus:          bus,
		RunID:        "r-test",
		Timeout:      2 * time.Second,
		StaleAfter:   time.Hour,
		PollInterval: 10 * time.Millisecond,
	})
}

func TestAcquireRelease(t *testing.T) {
	resource := filepath.Join(t.TempDir(), "tasks.md")
	m := testManager(t, nil)

	lock, err := m.Acquire(context.Background(), resource, "holder-1")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	if _, err := os.Stat(MarkerPath(resource)); err != nil {
		t.Fatalf("marker missing: %v", err)
	}
	if lock.HolderID != "holder-1" {
		t.Errorf("holder = %q", lock.HolderID)
	}
	if !lock.ExpiresAt.After(lock.AcquiredAt) {
		t.Error("expiry not after acquisition")
	}

	if err := m.Release(lock); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := os.Stat(MarkerPath(resource)); !os.IsNotExist(err) {
		t.Error("marker should be gone after release")
	}
}

func TestSecondAcquireBlocksUntilRelease(t *testing.T) {
	resource := filepath.Join(t.TempDir(), "tasks.md")
	m := testManager(t, nil)

	first, err := m.Acquire(context.Background(), resource, "holder-1")
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	acquired := make(chan *Lock, 1)
	go func() {
		second, err := m.Acquire(context.Background(), resource, "holder-2")
		if err != nil {
			t.Errorf("second acquire: %v", err)
			acquired <- nil
			return
		}
		acquired <- second
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire succeeded while lock held")
	case <-time.After(100 * time.Millisecond):
	}

	if err := m.Release(first); err != nil {
		t.Fatalf("release: %v", err)
	}

	select {
	case second := <-acquired:
		if second == nil {
			t.Fatal("second acquire failed")
		}
		_ = m.Release(second)
	case <-time.After(time.Second):
		t.Fatal("second acquire never completed after release")
	}
}

func TestAcquireExclusiveUnderContention(t *testing.T) {
	resource := filepath.Join(t.TempDir(), "tasks.md")
	m := testManager(t, nil)

	var mu sync.Mutex
	holders := 0
	maxHolders := 0

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lock, err := m.Acquire(context.Background(), resource, "h")
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			mu.Lock()
			holders++
			if holders > maxHolders {
				maxHolders = holders
			}
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			holders--
			mu.Unlock()
			_ = m.Release(lock)
		}()
	}
	wg.Wait()

	if maxHolders != 1 {
		t.Errorf("observed %d concurrent holders, want 1", maxHolders)
	}
}

func TestAcquireTimeout(t *testing.T) {
	resource := filepath.Join(t.TempDir(), "tasks.md")
	m := testManager(t, nil)

	first, err := m.Acquire(context.Background(), resource, "holder-1")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer m.Release(first)

	_, err = m.AcquireTimeout(context.Background(), resource, "holder-2", 50*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout")
	}
	if !errors.Is(err, ErrLockTimeout) {
		t.Errorf("expected ErrLockTimeout, got %v", err)
	}
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("expected *TimeoutError, got %T", err)
	}
	if te.Holder != "holder-1" {
		t.Errorf("timeout should name the current holder, got %q", te.Holder)
	}
}

func TestAcquireCancellation(t *testing.T) {
	resource := filepath.Join(t.TempDir(), "tasks.md")
	m := testManager(t, nil)

	first, err := m.Acquire(context.Background(), resource, "holder-1")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer m.Release(first)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	_, err = m.Acquire(ctx, resource, "holder-2")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestStaleReclaim(t *testing.T) {
	resource := filepath.Join(t.TempDir(), "tasks.md")
	bus := events.NewBus(64)
	m := NewManager(Config{
		Bus:          bus,
		StaleAfter:   50 * time.Millisecond,
		Timeout:      2 * time.Second,
		PollInterval: 10 * time.Millisecond,
	})

	// Plant a marker old enough to be stale.
	info := Info{
		HolderID:   "dead-holder",
		AcquiredAt: time.Now().Add(-time.Minute),
		ExpiresAt:  time.Now().Add(-time.Minute + 50*time.Millisecond),
	}
	data, _ := json.Marshal(info)
	if err := os.WriteFile(MarkerPath(resource), data, 0o644); err != nil {
		t.Fatal(err)
	}

	lock, err := m.Acquire(context.Background(), resource, "holder-2")
	if err != nil {
		t.Fatalf("acquire should reclaim stale marker: %v", err)
	}
	defer m.Release(lock)

	bus.Close()
	var reclaims int
	for _, e := range bus.History(64) {
		if e.Type == events.EventLockStaleReclaimed {
			reclaims++
		}
	}
	if reclaims != 1 {
		t.Errorf("expected exactly 1 lock.stale_reclaimed event, got %d", reclaims)
	}
}

func TestReleaseAfterReclaimIsDenied(t *testing.T) {
	resource := filepath.Join(t.TempDir(), "tasks.md")
	bus := events.NewBus(64)
	m := testManager(t, bus)

	lock, err := m.Acquire(context.Background(), resource, "holder-1")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	// Simulate reclamation by another holder.
	info := Info{HolderID: "holder-2", AcquiredAt: time.Now()}
	data, _ := json.Marshal(info)
	if err := os.WriteFile(MarkerPath(resource), data, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := m.Release(lock); err != nil {
		t.Fatalf("release should fail silently-but-logged: %v", err)
	}
	if _, err := os.Stat(MarkerPath(resource)); err != nil {
		t.Error("marker of the new holder must not be deleted")
	}

	bus.Close()
	var denied int
	for _, e := range bus.History(64) {
		if e.Type == events.EventLockReleaseDenied {
			denied++
		}
	}
	if denied != 1 {
		t.Errorf("expected 1 lock.release_denied event, got %d", denied)
	}
}

func TestInspect(t *testing.T) {
	resource := filepath.Join(t.TempDir(), "tasks.md")
	m := testManager(t, nil)

	if info, err := m.Inspect(resource); err != nil || info != nil {
		t.Fatalf("expected unlocked resource, got %v, %v", info, err)
	}

	lock, _ := m.Acquire(context.Background(), resource, "holder-1")
	defer m.Release(lock)

	info, err := m.Inspect(resource)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if info == nil || info.HolderID != "holder-1" {
		t.Errorf("inspect = %+v", info)
	}
}

func TestClearIfStale(t *testing.T) {
	resource := filepath.Join(t.TempDir(), "tasks.md")
	m := NewManager(Config{StaleAfter: 50 * time.Millisecond, PollInterval: 10 * time.Millisecond})

	info := Info{HolderID: "dead", AcquiredAt: time.Now().Add(-time.Minute)}
	data, _ := json.Marshal(info)
	if err := os.WriteFile(MarkerPath(resource), data, 0o644); err != nil {
		t.Fatal(err)
	}

	cleared, err := m.ClearIfStale(resource)
	if err != nil || !cleared {
		t.Fatalf("expected reclaim, got %v, %v", cleared, err)
	}
	if _, err := os.Stat(MarkerPath(resource)); !os.IsNotExist(err) {
		t.Error("marker should be removed")
	}

	// Fresh marker is left alone.
	info.AcquiredAt = time.Now()
	data, _ = json.Marshal(info)
	os.WriteFile(MarkerPath(resource), data, 0o644)
	cleared, err = m.ClearIfStale(resource)
	if err != nil || cleared {
		t.Fatalf("fresh marker reclaimed: %v, %v", cleared, err)
	}
}
