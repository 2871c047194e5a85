package presence

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"
)

func TestRegistry_SessionLifecycleEdges(t *testing.T) {
	t.Parallel()

	r, rec := newRecordedRegistry(t)

	r.Register(42, "s1")
	rec.expect(t, "after s1", Transition{UserID: 42, Online: true})

	r.Register(42, "s2")
	rec.expect(t, "after s2", Transition{UserID: 42, Online: true})

	if !r.Unregister("s1") {
		t.Fatalf("s1 should be known")
	}
	rec.expect(t, "after unregister s1", Transition{UserID: 42, Online: true})
	if !r.IsOnline(42) {
		t.Fatalf("user 42 should still be online")
	}

	if !r.Unregister("s2") {
		t.Fatalf("s2 should be known")
	}
	rec.expect(t, "after unregister s2",
		Transition{UserID: 42, Online: true},
		Transition{UserID: 42, Online: false},
	)
	if r.IsOnline(42) || r.OnlineCount() != 0 {
		t.Fatalf("user 42 should be offline")
	}
}

func TestRegistry_RegisterIsIdempotent(t *testing.T) {
	t.Parallel()

	r, rec := newRecordedRegistry(t)

	r.Register(1, "tab")
	r.Register(1, "tab")

	if got := r.Sessions(1); len(got) != 1 || got[0] != "tab" {
		t.Fatalf("sessions=%v want [tab]", got)
	}
	rec.expect(t, "double register", Transition{UserID: 1, Online: true})

	if r.Unregister("unknown") {
		t.Fatalf("unknown session should report false")
	}
	r.Unregister("tab")
	if r.Unregister("tab") {
		t.Fatalf("second unregister should report false")
	}
	rec.expect(t, "double unregister",
		Transition{UserID: 1, Online: true},
		Transition{UserID: 1, Online: false},
	)
}

func TestRegistry_SessionMovesBetweenUsers(t *testing.T) {
	t.Parallel()

	r, rec := newRecordedRegistry(t)

	r.Register(1, "shared")
	r.Register(2, "shared")

	if r.IsOnline(1) || !r.IsOnline(2) {
		t.Fatalf("session should belong to user 2 only")
	}
	if owner, ok := r.OwnerOf("shared"); !ok || owner != 2 {
		t.Fatalf("owner=%d ok=%v want 2", owner, ok)
	}
	rec.expect(t, "move",
		Transition{UserID: 1, Online: true},
		Transition{UserID: 1, Online: false},
		Transition{UserID: 2, Online: true},
	)
}

func TestRegistry_ConcurrentChurnKeepsEdgesConsistent(t *testing.T) {
	t.Parallel()

	r, rec := newRecordedRegistry(t)

	const (
		users      = 4
		perUser    = 3
		goroutines = 16
		steps      = 2000
	)

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(seed uint64) {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(seed, seed*7+1))
			for i := 0; i < steps; i++ {
				uid := int64(rng.IntN(users))
				sid := fmt.Sprintf("u%d-s%d", uid, rng.IntN(perUser))
				if rng.IntN(2) == 0 {
					r.Register(uid, sid)
				} else {
					r.Unregister(sid)
				}
			}
		}(uint64(g + 1))
	}
	wg.Wait()
	r.Flush()

	perUserEvents := map[int64][]bool{}
	for _, tr := range rec.snapshot() {
		perUserEvents[tr.UserID] = append(perUserEvents[tr.UserID], tr.Online)
	}

	online := 0
	for uid := int64(0); uid < users; uid++ {
		events := perUserEvents[uid]
		for i, ev := range events {
			if ev != (i%2 == 0) {
				t.Fatalf("user %d: event %d online=%v breaks online/offline alternation", uid, i, ev)
			}
		}

		hasSessions := len(r.Sessions(uid)) > 0
		if r.IsOnline(uid) != hasSessions {
			t.Fatalf("user %d: IsOnline=%v but sessions=%v", uid, r.IsOnline(uid), r.Sessions(uid))
		}
		endsOnline := len(events)%2 == 1
		if endsOnline != hasSessions {
			t.Fatalf("user %d: %d events but sessions=%v", uid, len(events), r.Sessions(uid))
		}
		for _, sid := range r.Sessions(uid) {
			if owner, ok := r.OwnerOf(sid); !ok || owner != uid {
				t.Fatalf("session %s listed for %d but owned by %d (ok=%v)", sid, uid, owner, ok)
			}
		}
		if hasSessions {
			online++
		}
	}
	if r.OnlineCount() != online {
		t.Fatalf("OnlineCount=%d want %d", r.OnlineCount(), online)
	}
}

func TestRegistry_ReclaimIdleSessions(t *testing.T) {
	t.Parallel()

	clock := &testClock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	rec := &recorder{}
	r := NewRegistry(nil, WithClock(clock.Now))
	r.OnTransition(rec.record)
	rec.flush = r.Flush
	t.Cleanup(r.Close)

	r.Register(5, "old")
	clock.Advance(10 * time.Minute)
	r.Register(5, "new")
	clock.Advance(10 * time.Minute)
	if !r.Touch("new") {
		t.Fatalf("touch of live session should succeed")
	}
	if r.Touch("missing") {
		t.Fatalf("touch of unknown session should fail")
	}

	if n := r.ReclaimIdle(15 * time.Minute); n != 1 {
		t.Fatalf("reclaimed=%d want 1", n)
	}
	if got := r.Sessions(5); len(got) != 1 || got[0] != "new" {
		t.Fatalf("sessions=%v want [new]", got)
	}
	rec.expect(t, "partial reclaim", Transition{UserID: 5, Online: true})

	clock.Advance(time.Hour)
	if n := r.ReclaimIdle(15 * time.Minute); n != 1 {
		t.Fatalf("reclaimed=%d want 1", n)
	}
	rec.expect(t, "full reclaim",
		Transition{UserID: 5, Online: true},
		Transition{UserID: 5, Online: false},
	)
	if r.ReclaimIdle(0) != 0 {
		t.Fatalf("non-positive idle ttl must be a no-op")
	}
}

func TestRegistry_ForceOffline(t *testing.T) {
	t.Parallel()

	r, rec := newRecordedRegistry(t)

	r.Register(9, "a")
	r.Register(9, "b")
	r.Register(9, "c")

	if n := r.ForceOffline(9); n != 3 {
		t.Fatalf("removed=%d want 3", n)
	}
	if n := r.ForceOffline(9); n != 0 {
		t.Fatalf("second force offline removed=%d want 0", n)
	}
	if _, ok := r.OwnerOf("b"); ok {
		t.Fatalf("session b should be gone")
	}
	rec.expect(t, "force offline",
		Transition{UserID: 9, Online: true},
		Transition{UserID: 9, Online: false},
	)
}

func TestRegistry_CleanupInactiveSessionsIsNoopWhenConsistent(t *testing.T) {
	t.Parallel()

	r, _ := newRecordedRegistry(t)
	r.Register(1, "a")
	r.Register(2, "b")
	r.Unregister("b")

	if n := r.CleanupInactiveSessions(); n != 0 {
		t.Fatalf("cleanup removed %d entries, want 0", n)
	}

	// An empty set can only appear through a missed disconnect path.
	r.sessions.Store(3, nil)
	if n := r.CleanupInactiveSessions(); n != 1 {
		t.Fatalf("cleanup removed %d entries, want 1", n)
	}
	if r.OnlineCount() != 1 {
		t.Fatalf("OnlineCount=%d want 1", r.OnlineCount())
	}
}

func TestRegistry_RegisterOwnedRefusesForeignSession(t *testing.T) {
	t.Parallel()

	r, rec := newRecordedRegistry(t)

	if !r.RegisterOwned(1, "tab") {
		t.Fatalf("fresh session should register")
	}
	if !r.RegisterOwned(1, "tab") {
		t.Fatalf("own session should re-register")
	}
	if r.RegisterOwned(2, "tab") {
		t.Fatalf("foreign session must be refused")
	}
	if owner, _ := r.OwnerOf("tab"); owner != 1 {
		t.Fatalf("owner=%d want 1", owner)
	}
	if r.RegisterOwned(2, "") {
		t.Fatalf("empty session id must be refused")
	}
	rec.expect(t, "refused takeover", Transition{UserID: 1, Online: true})
}

func TestRegistry_RegisterOwnedRaceHasOneWinner(t *testing.T) {
	t.Parallel()

	for round := 0; round < 50; round++ {
		r := NewRegistry(nil)
		sid := fmt.Sprintf("contested-%d", round)

		var (
			wg   sync.WaitGroup
			wins [2]bool
		)
		for i := range wins {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				wins[i] = r.RegisterOwned(int64(i+1), sid)
			}(i)
		}
		wg.Wait()

		if wins[0] == wins[1] {
			t.Fatalf("round %d: wins=%v want exactly one", round, wins)
		}
		owner, _ := r.OwnerOf(sid)
		winner := int64(1)
		if wins[1] {
			winner = 2
		}
		if owner != winner || !r.IsOnline(winner) || r.IsOnline(3-winner) {
			t.Fatalf("round %d: owner=%d winner=%d", round, owner, winner)
		}
		r.Close()
	}
}

func TestRegistry_HookDoesNotBlockCallers(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	rec := &recorder{}
	r := NewRegistry(nil)
	r.OnTransition(func(tr Transition) {
		<-gate
		rec.record(tr)
	})
	t.Cleanup(r.Close)

	done := make(chan struct{})
	go func() {
		r.Register(7, "x1")
		r.Unregister("x1")
		r.Register(8, "y1")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("register/unregister waited for the transition hook")
	}

	close(gate)
	rec.flush = r.Flush
	rec.expect(t, "after release",
		Transition{UserID: 7, Online: true},
		Transition{UserID: 7, Online: false},
		Transition{UserID: 8, Online: true},
	)
	got := rec.snapshot()
	for i := 1; i < len(got); i++ {
		if got[i].Seq <= got[i-1].Seq {
			t.Fatalf("transitions out of order: %+v", got)
		}
	}
}

func TestRegistry_HookSeesPublishedSessions(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	t.Cleanup(r.Close)

	var (
		mu   sync.Mutex
		seen []string
	)
	r.OnTransition(func(tr Transition) {
		if !tr.Online {
			return
		}
		mu.Lock()
		seen = r.Sessions(tr.UserID)
		mu.Unlock()
	})

	r.Register(42, "s1")
	r.Flush()

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 || seen[0] != "s1" {
		t.Fatalf("hook saw sessions %v, want [s1]", seen)
	}
}

func TestRegistry_HookPanicKeepsDispatching(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	r := NewRegistry(nil)
	r.OnTransition(func(tr Transition) {
		if tr.UserID == 1 {
			panic("boom")
		}
		rec.record(tr)
	})
	rec.flush = r.Flush
	t.Cleanup(r.Close)

	r.Register(1, "a")
	r.Register(2, "b")
	rec.expect(t, "after panic", Transition{UserID: 2, Online: true})
}

func TestRegistry_CloseStopsHook(t *testing.T) {
	t.Parallel()

	r, rec := newRecordedRegistry(t)
	r.Register(1, "a")
	r.Close()
	r.Close()

	r.Register(2, "b")
	r.Flush()
	if !r.IsOnline(2) {
		t.Fatalf("registry must keep working after Close")
	}
	rec.expect(t, "after close", Transition{UserID: 1, Online: true})
}

type recorder struct {
	mu     sync.Mutex
	events []Transition
	flush  func()
}

func (r *recorder) record(t Transition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, t)
}

func (r *recorder) snapshot() []Transition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Transition(nil), r.events...)
}

func (r *recorder) expect(t *testing.T, step string, want ...Transition) {
	t.Helper()

	if r.flush != nil {
		r.flush()
	}
	got := r.snapshot()
	if len(got) != len(want) {
		t.Fatalf("%s: got %d events %+v, want %d", step, len(got), got, len(want))
	}
	for i := range want {
		if got[i].UserID != want[i].UserID || got[i].Online != want[i].Online {
			t.Fatalf("%s: event %d = %+v want %+v", step, i, got[i], want[i])
		}
	}
}

func newRecordedRegistry(t *testing.T) (*Registry, *recorder) {
	t.Helper()

	rec := &recorder{}
	r := NewRegistry(nil)
	r.OnTransition(rec.record)
	rec.flush = r.Flush
	t.Cleanup(r.Close)
	return r, rec
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
