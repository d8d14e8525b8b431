package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"devteam/pkg/proto"
)

func TestCreateSeedsSession(t *testing.T) {
	store := NewMemoryStore()
	id, err := store.Create("Build a todo app")
	if err != nil {
		t.Fatal(err)
	}

	snap, err := store.Get(id)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Status != proto.StatusRunning {
		t.Errorf("status = %s", snap.Status)
	}
	if snap.Node != "pm" {
		t.Errorf("node = %s", snap.Node)
	}
	if len(snap.Log) != 1 || snap.Log[0] != "**Human**: Build a todo app" {
		t.Errorf("log = %v", snap.Log)
	}
}

func TestGetUnknownSession(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAdvanceClaimExclusive(t *testing.T) {
	store := NewMemoryStore()
	id, _ := store.Create("x")

	if err := store.BeginAdvance(id); err != nil {
		t.Fatal(err)
	}
	if err := store.BeginAdvance(id); !errors.Is(err, ErrBusy) {
		t.Errorf("second claim should fail with ErrBusy, got %v", err)
	}

	store.EndAdvance(id)
	if err := store.BeginAdvance(id); err != nil {
		t.Errorf("claim after release should succeed: %v", err)
	}
}

func TestSnapshotIsolation(t *testing.T) {
	store := NewMemoryStore()
	id, _ := store.Create("x")

	snap, _ := store.Get(id)
	snap.Log = append(snap.Log, "tampered")
	snap.Artifacts["evil"] = "data"

	fresh, _ := store.Get(id)
	if len(fresh.Log) != 1 {
		t.Error("snapshot mutation leaked into store")
	}
	if len(fresh.Artifacts) != 0 {
		t.Error("artifact mutation leaked into store")
	}
}

func TestUpdateAppendsIncrementally(t *testing.T) {
	store := NewMemoryStore()
	id, _ := store.Create("x")

	if err := store.Update(id, func(s *Session) {
		s.Log = append(s.Log, "**Sofia**: working on it")
		s.Artifacts["main.py"] = "v1"
	}); err != nil {
		t.Fatal(err)
	}
	if err := store.Update(id, func(s *Session) {
		s.Artifacts["main.py"] = "v2"
	}); err != nil {
		t.Fatal(err)
	}

	snap, _ := store.Get(id)
	if len(snap.Log) != 2 {
		t.Errorf("log = %v", snap.Log)
	}
	// Later artifact writes replace earlier ones.
	if snap.Artifacts["main.py"] != "v2" {
		t.Errorf("artifact = %q", snap.Artifacts["main.py"])
	}
	if len(snap.Artifacts) != 1 {
		t.Errorf("expected exactly one artifact, got %d", len(snap.Artifacts))
	}
}

func TestConcurrentClaimsOnlyOneWins(t *testing.T) {
	store := NewMemoryStore()
	id, _ := store.Create("x")

	const goroutines = 16
	var wg sync.WaitGroup
	wins := make(chan struct{}, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if store.BeginAdvance(id) == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	count := 0
	for range wins {
		count++
	}
	if count != 1 {
		t.Errorf("exactly one claim should win, got %d", count)
	}
}

func TestEvictIdle(t *testing.T) {
	store := NewMemoryStore()
	oldID, _ := store.Create("old")
	busyID, _ := store.Create("busy")

	// Age both sessions past the TTL, then mark one as advancing.
	for _, id := range []string{oldID, busyID} {
		_ = store.Update(id, func(s *Session) {})
	}
	store.mu.Lock()
	for _, id := range []string{oldID, busyID} {
		store.sessions[id].UpdatedAt = time.Now().UTC().Add(-time.Hour)
	}
	store.sessions[busyID].advancing = true
	store.mu.Unlock()

	if evicted := store.EvictIdle(time.Minute); evicted != 1 {
		t.Errorf("evicted = %d, want 1", evicted)
	}
	if _, err := store.Get(oldID); !errors.Is(err, ErrNotFound) {
		t.Error("idle session should be gone")
	}
	if _, err := store.Get(busyID); err != nil {
		t.Error("advancing session must survive eviction")
	}
}

func TestEvictDisabled(t *testing.T) {
	store := NewMemoryStore()
	_, _ = store.Create("x")
	if evicted := store.EvictIdle(0); evicted != 0 {
		t.Errorf("ttl 0 should disable eviction, evicted %d", evicted)
	}
}
