package hidhost

import (
	"time"

	"github.com/google/uuid"
)

// SessionState is the lifecycle state of a HID session.
type SessionState uint8

const (
	SessionOpening SessionState = iota
	SessionOpen
	SessionClosed
)

func (s SessionState) String() string {
	switch s {
	case SessionOpening:
		return "opening"
	case SessionOpen:
		return "open"
	case SessionClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is one HID connection attempt and, if it opened, the connection.
type Session struct {
	ID        uuid.UUID
	Round     uint64
	Address   Address
	Name      string
	Transport Transport
	State     SessionState
	WasOpen   bool // the session reached SessionOpen at some point
	Started   time.Time
	Opened    time.Time
	Ended     time.Time
	Reports   uint64
}

// Registry holds the discovery target and the session to it. At most one
// session is active at a time; closed sessions move to History.
type Registry struct {
	round   uint64
	target  Address
	hasTgt  bool
	current *Session
	History []*Session
}

// NewRound starts a new discovery round and forgets the previous target.
func (r *Registry) NewRound() uint64 {
	r.round++
	r.hasTgt = false
	r.target = Address{}
	return r.round
}

// Round returns the current discovery round number.
func (r *Registry) Round() uint64 {
	return r.round
}

// SelectTarget records addr as this round's target. It succeeds once per
// round; later calls return false and leave the target unchanged.
func (r *Registry) SelectTarget(addr Address) bool {
	if r.hasTgt {
		return false
	}
	r.target = addr
	r.hasTgt = true
	return true
}

// Target returns the address selected in the current round.
func (r *Registry) Target() (Address, bool) {
	return r.target, r.hasTgt
}

// Begin creates an opening session for addr. It returns nil if a session is
// still active.
func (r *Registry) Begin(addr Address, transport Transport, now time.Time) *Session {
	if r.current != nil {
		return nil
	}
	r.current = &Session{
		ID:        uuid.New(),
		Round:     r.round,
		Address:   addr,
		Transport: transport,
		State:     SessionOpening,
		Started:   now,
	}
	return r.current
}

// Active returns the active session for addr, or nil.
func (r *Registry) Active(addr Address) *Session {
	if r.current == nil || r.current.Address != addr {
		return nil
	}
	return r.current
}

// Current returns the active session, or nil.
func (r *Registry) Current() *Session {
	return r.current
}

// end closes the active session and appends it to History.
func (r *Registry) end(s *Session, now time.Time) {
	s.State = SessionClosed
	s.Ended = now
	if r.current == s {
		r.current = nil
	}
	r.History = append(r.History, s)
}
