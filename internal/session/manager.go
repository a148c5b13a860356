// Package session implements the client-side connection state machine: the
// Disconnected/Connecting/Connected/Reconnecting/Closing/Failed lifecycle a
// transport drives as it opens, loses, and re-establishes a session with a
// server.
package session

import (
	"strings"
	"sync"
)

// State is the closed set of lifecycle states a Manager can occupy.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
	Closing
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case Closing:
		return "closing"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// StateChangeFunc observes every accepted transition.
type StateChangeFunc func(old, new State)

// EstablishedFunc observes a session becoming usable, carrying the
// server-assigned session id.
type EstablishedFunc func(sessionID string)

// LostFunc observes a session being invalidated by the peer (e.g. an HTTP
// 404 where a session was previously established).
type LostFunc func(reason string)

// ReconnectExhaustedFunc observes the reconnect-attempt budget running out.
type ReconnectExhaustedFunc func()

// Config controls reconnect budgeting. MaxReconnectAttempts of 0 means
// unlimited.
type Config struct {
	MaxReconnectAttempts int
}

// DefaultConfig matches the defaults of the reference client.
func DefaultConfig() Config {
	return Config{MaxReconnectAttempts: 5}
}

// Manager owns session identity and lifecycle state for one client
// connection. All mutation methods are safe for concurrent use; observer
// callbacks are always invoked with the internal lock released, so a
// callback may itself call back into the Manager without deadlocking.
type Manager struct {
	config Config

	mu             sync.Mutex
	state          State
	sessionID      string
	hasSessionID   bool
	lastEventID    string
	hasLastEventID bool
	lastError      string
	reconnectCount int

	stateChangeCBs       []StateChangeFunc
	establishedCBs       []EstablishedFunc
	lostCBs              []LostFunc
	reconnectExhaustedCBs []ReconnectExhaustedFunc
}

// NewManager constructs a Manager in the Disconnected state.
func NewManager(config Config) *Manager {
	return &Manager{config: config}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SessionID returns the server-assigned session id and whether one is set.
func (m *Manager) SessionID() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID, m.hasSessionID
}

// LastError returns the most recent failure message, if any.
func (m *Manager) LastError() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastError
}

// ReconnectCount returns the number of reconnect attempts made since the
// last CloseComplete or Reset. ConnectionEstablished does not clear it.
func (m *Manager) ReconnectCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reconnectCount
}

// LastEventID returns the last SSE event id recorded for resumption.
func (m *Manager) LastEventID() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastEventID, m.hasLastEventID
}

// IsValidSessionID reports whether s is non-empty, at most 256 characters,
// and drawn only from [A-Za-z0-9._-]. Anything else risks header or log
// injection if echoed back by a misbehaving or malicious server.
func IsValidSessionID(s string) bool {
	if s == "" || len(s) > 256 {
		return false
	}
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-' || c == '_' || c == '.':
		default:
			return false
		}
	}
	return true
}

// BeginConnect transitions Disconnected -> Connecting. No-op from any other
// state.
func (m *Manager) BeginConnect() {
	var cbs []StateChangeFunc
	var old, new State
	fire := false

	m.mu.Lock()
	if m.state == Disconnected {
		old, new = m.state, Connecting
		m.state = new
		cbs = append(cbs, m.stateChangeCBs...)
		fire = true
	}
	m.mu.Unlock()

	if fire {
		m.fireStateChange(old, new, cbs)
	}
}

// ConnectionEstablished transitions Connecting|Reconnecting -> Connected,
// recording sessionID. It returns false without changing state if sessionID
// fails validation or the current state doesn't permit the transition.
func (m *Manager) ConnectionEstablished(sessionID string) bool {
	if !IsValidSessionID(sessionID) {
		return false
	}

	var stateCBs []StateChangeFunc
	var establishedCBs []EstablishedFunc
	var old, new State
	fire := false

	m.mu.Lock()
	if m.state == Connecting || m.state == Reconnecting {
		m.sessionID = sessionID
		m.hasSessionID = true
		m.lastError = ""

		old, new = m.state, Connected
		m.state = new
		stateCBs = append(stateCBs, m.stateChangeCBs...)
		establishedCBs = append(establishedCBs, m.establishedCBs...)
		fire = true
	}
	m.mu.Unlock()

	if !fire {
		return false
	}
	m.fireStateChange(old, new, stateCBs)
	m.fireEstablished(sessionID, establishedCBs)
	return true
}

// ConnectionFailed transitions Connecting|Reconnecting -> Failed, recording
// errMessage. If the reconnect-attempt budget is already exhausted, the
// ReconnectExhausted observers fire before the state-change observers.
func (m *Manager) ConnectionFailed(errMessage string) {
	var stateCBs []StateChangeFunc
	var exhaustedCBs []ReconnectExhaustedFunc
	var old, new State
	fireState := false
	fireExhausted := false

	m.mu.Lock()
	if m.state == Connecting || m.state == Reconnecting {
		m.lastError = errMessage

		if m.config.MaxReconnectAttempts > 0 && m.reconnectCount >= m.config.MaxReconnectAttempts {
			exhaustedCBs = append(exhaustedCBs, m.reconnectExhaustedCBs...)
			fireExhausted = true
		}

		old, new = m.state, Failed
		m.state = new
		stateCBs = append(stateCBs, m.stateChangeCBs...)
		fireState = true
	}
	m.mu.Unlock()

	if fireExhausted {
		m.fireReconnectExhausted(exhaustedCBs)
	}
	if fireState {
		m.fireStateChange(old, new, stateCBs)
	}
}

// SessionExpired transitions Connected -> Reconnecting, clearing the
// session id but preserving the last event id for resumption. Call this on
// a 404 that arrives after a session had been established.
func (m *Manager) SessionExpired() {
	var stateCBs []StateChangeFunc
	var lostCBs []LostFunc
	var old, new State
	fire := false

	m.mu.Lock()
	if m.state == Connected {
		m.hasSessionID = false
		m.sessionID = ""
		m.reconnectCount++

		old, new = m.state, Reconnecting
		m.state = new
		stateCBs = append(stateCBs, m.stateChangeCBs...)
		lostCBs = append(lostCBs, m.lostCBs...)
		fire = true
	}
	m.mu.Unlock()

	if fire {
		m.fireLost("session expired (404)", lostCBs)
		m.fireStateChange(old, new, stateCBs)
	}
}

// BeginClose transitions Connected -> Closing.
func (m *Manager) BeginClose() {
	var cbs []StateChangeFunc
	var old, new State
	fire := false

	m.mu.Lock()
	if m.state == Connected {
		old, new = m.state, Closing
		m.state = new
		cbs = append(cbs, m.stateChangeCBs...)
		fire = true
	}
	m.mu.Unlock()

	if fire {
		m.fireStateChange(old, new, cbs)
	}
}

// CloseComplete transitions Closing -> Disconnected, clearing session
// identity and the reconnect counter.
func (m *Manager) CloseComplete() {
	var cbs []StateChangeFunc
	var old, new State
	fire := false

	m.mu.Lock()
	if m.state == Closing {
		m.hasSessionID = false
		m.sessionID = ""
		m.hasLastEventID = false
		m.lastEventID = ""
		m.reconnectCount = 0

		old, new = m.state, Disconnected
		m.state = new
		cbs = append(cbs, m.stateChangeCBs...)
		fire = true
	}
	m.mu.Unlock()

	if fire {
		m.fireStateChange(old, new, cbs)
	}
}

// BeginReconnect transitions Failed -> Reconnecting, incrementing the
// reconnect counter for this attempt.
func (m *Manager) BeginReconnect() {
	var cbs []StateChangeFunc
	var old, new State
	fire := false

	m.mu.Lock()
	if m.state == Failed {
		m.reconnectCount++

		old, new = m.state, Reconnecting
		m.state = new
		cbs = append(cbs, m.stateChangeCBs...)
		fire = true
	}
	m.mu.Unlock()

	if fire {
		m.fireStateChange(old, new, cbs)
	}
}

// Reset forces the Manager back to Disconnected from any state, clearing
// all session identity and counters. State-change observers only fire if
// the state actually changed.
func (m *Manager) Reset() {
	var cbs []StateChangeFunc
	var old State
	fire := false

	m.mu.Lock()
	m.hasSessionID = false
	m.sessionID = ""
	m.hasLastEventID = false
	m.lastEventID = ""
	m.lastError = ""
	m.reconnectCount = 0

	old = m.state
	m.state = Disconnected
	if old != Disconnected {
		cbs = append(cbs, m.stateChangeCBs...)
		fire = true
	}
	m.mu.Unlock()

	if fire {
		m.fireStateChange(old, Disconnected, cbs)
	}
}

// RecordEventID remembers the last SSE event id seen, for Last-Event-ID
// resumption on reconnect.
func (m *Manager) RecordEventID(eventID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastEventID = eventID
	m.hasLastEventID = true
}

// ClearLastEventID discards the resumption cursor, forcing a fresh stream
// on the next connect.
func (m *Manager) ClearLastEventID() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastEventID = ""
	m.hasLastEventID = false
}

// OnStateChange registers an observer for every accepted transition.
func (m *Manager) OnStateChange(f StateChangeFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stateChangeCBs = append(m.stateChangeCBs, f)
}

// OnSessionEstablished registers an observer fired after ConnectionEstablished.
func (m *Manager) OnSessionEstablished(f EstablishedFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.establishedCBs = append(m.establishedCBs, f)
}

// OnSessionLost registers an observer fired by SessionExpired.
func (m *Manager) OnSessionLost(f LostFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lostCBs = append(m.lostCBs, f)
}

// OnReconnectExhausted registers an observer fired when ConnectionFailed
// finds the reconnect budget spent.
func (m *Manager) OnReconnectExhausted(f ReconnectExhaustedFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconnectExhaustedCBs = append(m.reconnectExhaustedCBs, f)
}

func (m *Manager) fireStateChange(old, new State, cbs []StateChangeFunc) {
	for _, cb := range cbs {
		cb(old, new)
	}
}

func (m *Manager) fireEstablished(id string, cbs []EstablishedFunc) {
	for _, cb := range cbs {
		cb(id)
	}
}

func (m *Manager) fireLost(reason string, cbs []LostFunc) {
	for _, cb := range cbs {
		cb(reason)
	}
}

func (m *Manager) fireReconnectExhausted(cbs []ReconnectExhaustedFunc) {
	for _, cb := range cbs {
		cb()
	}
}

// sanitizeForLog strips characters outside the safe session-id set so an
// invalid id rejected by IsValidSessionID can still be mentioned in an error
// without itself becoming a log-injection vector.
func sanitizeForLog(s string) string {
	var b strings.Builder
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_', c == '.':
			b.WriteRune(c)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
