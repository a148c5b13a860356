package session

import (
	"sync"
	"testing"
)

func TestIsValidSessionID(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want bool
	}{
		{"empty", "", false},
		{"simple", "abc123", true},
		{"with allowed punctuation", "session-id_v1.2", true},
		{"too long", string(make([]byte, 257)), false},
		{"exactly max length", func() string {
			b := make([]byte, 256)
			for i := range b {
				b[i] = 'a'
			}
			return string(b)
		}(), true},
		{"contains space", "bad id", false},
		{"contains slash", "bad/id", false},
		{"contains newline", "bad\nid", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidSessionID(tt.id); got != tt.want {
				t.Errorf("IsValidSessionID(%q) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}

func TestManager_HappyPathLifecycle(t *testing.T) {
	m := NewManager(DefaultConfig())

	var transitions [][2]State
	m.OnStateChange(func(old, new State) {
		transitions = append(transitions, [2]State{old, new})
	})

	var established string
	m.OnSessionEstablished(func(id string) { established = id })

	m.BeginConnect()
	if m.State() != Connecting {
		t.Fatalf("state = %v, want Connecting", m.State())
	}

	if !m.ConnectionEstablished("sess-1") {
		t.Fatal("ConnectionEstablished returned false")
	}
	if m.State() != Connected {
		t.Fatalf("state = %v, want Connected", m.State())
	}
	if established != "sess-1" {
		t.Fatalf("established = %q, want sess-1", established)
	}

	m.BeginClose()
	m.CloseComplete()
	if m.State() != Disconnected {
		t.Fatalf("state = %v, want Disconnected", m.State())
	}
	if id, ok := m.SessionID(); ok || id != "" {
		t.Fatalf("SessionID after close = (%q, %v), want (\"\", false)", id, ok)
	}

	want := [][2]State{
		{Disconnected, Connecting},
		{Connecting, Connected},
		{Connected, Closing},
		{Closing, Disconnected},
	}
	if len(transitions) != len(want) {
		t.Fatalf("got %d transitions, want %d: %v", len(transitions), len(want), transitions)
	}
	for i, w := range want {
		if transitions[i] != w {
			t.Errorf("transition[%d] = %v, want %v", i, transitions[i], w)
		}
	}
}

func TestManager_ConnectionEstablishedRejectsInvalidSessionID(t *testing.T) {
	m := NewManager(DefaultConfig())
	m.BeginConnect()
	if m.ConnectionEstablished("bad id with spaces") {
		t.Fatal("ConnectionEstablished accepted an invalid session id")
	}
	if m.State() != Connecting {
		t.Fatalf("state = %v, want Connecting (transition must not occur)", m.State())
	}
}

func TestManager_ConnectionEstablishedWrongState(t *testing.T) {
	m := NewManager(DefaultConfig())
	// Still Disconnected; establishing should be refused.
	if m.ConnectionEstablished("sess-1") {
		t.Fatal("ConnectionEstablished succeeded from Disconnected")
	}
}

func TestManager_SessionExpiredPreservesLastEventID(t *testing.T) {
	m := NewManager(DefaultConfig())
	m.BeginConnect()
	m.ConnectionEstablished("sess-1")
	m.RecordEventID("evt-42")

	var lostReason string
	m.OnSessionLost(func(reason string) { lostReason = reason })

	m.SessionExpired()

	if m.State() != Reconnecting {
		t.Fatalf("state = %v, want Reconnecting", m.State())
	}
	if _, ok := m.SessionID(); ok {
		t.Fatal("session id should be cleared on expiry")
	}
	if id, ok := m.LastEventID(); !ok || id != "evt-42" {
		t.Fatalf("LastEventID = (%q, %v), want (evt-42, true)", id, ok)
	}
	if lostReason == "" {
		t.Fatal("expected session-lost callback to fire")
	}
}

func TestManager_ReconnectExhaustedFiresBeforeStateChange(t *testing.T) {
	cfg := Config{MaxReconnectAttempts: 1}
	m := NewManager(cfg)
	m.BeginConnect()
	m.ConnectionEstablished("sess-1")
	m.SessionExpired() // reconnect_count -> 1, state Reconnecting

	var order []string
	m.OnReconnectExhausted(func() { order = append(order, "exhausted") })
	m.OnStateChange(func(old, new State) {
		if new == Failed {
			order = append(order, "failed")
		}
	})

	m.ConnectionFailed("boom")

	if m.State() != Failed {
		t.Fatalf("state = %v, want Failed", m.State())
	}
	if len(order) != 2 || order[0] != "exhausted" || order[1] != "failed" {
		t.Fatalf("callback order = %v, want [exhausted failed]", order)
	}
}

func TestManager_ResetOnlyFiresWhenStateChanges(t *testing.T) {
	m := NewManager(DefaultConfig())
	fired := 0
	m.OnStateChange(func(old, new State) { fired++ })

	m.Reset() // already Disconnected, must not fire
	if fired != 0 {
		t.Fatalf("Reset from Disconnected fired %d times, want 0", fired)
	}

	m.BeginConnect()
	m.Reset()
	if fired != 2 { // BeginConnect + Reset
		t.Fatalf("fired = %d, want 2", fired)
	}
	if m.State() != Disconnected {
		t.Fatalf("state = %v, want Disconnected", m.State())
	}
}

// TestManager_CallbacksRunWithoutLock verifies a callback can call back into
// the Manager (e.g. to query State) without deadlocking, which requires
// every transition method to release its mutex before invoking observers.
func TestManager_CallbacksRunWithoutLock(t *testing.T) {
	m := NewManager(DefaultConfig())
	done := make(chan struct{})
	m.OnStateChange(func(old, new State) {
		_ = m.State()
		_, _ = m.SessionID()
		close(done)
	})
	m.BeginConnect()
	select {
	case <-done:
	default:
		t.Fatal("callback did not run synchronously")
	}
}

func TestManager_ConcurrentTransitionsAreSafe(t *testing.T) {
	m := NewManager(DefaultConfig())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.BeginConnect()
			m.ConnectionEstablished("sess-x")
			m.BeginClose()
			m.CloseComplete()
		}()
	}
	wg.Wait()
}
