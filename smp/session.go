package smp

import (
	"fmt"
	"time"

	"github.com/rigado/blesec"
)

// Outcome is the state of a pairing session.
type Outcome int

const (
	Pending Outcome = iota
	AwaitingInput
	Confirmed
	Cancelled
	TimedOut
)

var outcomeStrings = map[Outcome]string{
	Pending:       "pending",
	AwaitingInput: "awaiting input",
	Confirmed:     "confirmed",
	Cancelled:     "cancelled",
	TimedOut:      "timed out",
}

func (o Outcome) String() string {
	if s, ok := outcomeStrings[o]; ok {
		return s
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Terminal reports whether no further transitions are possible.
func (o Outcome) Terminal() bool {
	return o == Cancelled || o == TimedOut
}

// Link is the read-only view of a connection the authenticator needs.
type Link interface {
	Handle() blesec.Handle
	Peer() blesec.PeerIdentity
}

// Session tracks one authentication in progress. Sessions are only mutated
// on the device work queue; observers receive copies.
type Session struct {
	id         uint64
	handle     blesec.Handle
	peer       blesec.PeerIdentity
	method     blesec.PairingMethod
	passkey    uint32
	hasPasskey bool
	outcome    Outcome
	reason     blesec.CancelReason
	started    time.Time
}

func (s *Session) ID() uint64                   { return s.id }
func (s *Session) Handle() blesec.Handle        { return s.handle }
func (s *Session) Peer() blesec.PeerIdentity    { return s.peer }
func (s *Session) Method() blesec.PairingMethod { return s.method }
func (s *Session) Outcome() Outcome             { return s.outcome }
func (s *Session) Started() time.Time           { return s.started }

// Passkey returns the displayed or compared passkey, if any.
func (s *Session) Passkey() (uint32, bool) {
	return s.passkey, s.hasPasskey
}

// Reason is meaningful once the outcome is Cancelled or TimedOut.
func (s *Session) Reason() blesec.CancelReason {
	return s.reason
}

// Err is nil unless the session was cancelled or timed out.
func (s *Session) Err() error {
	if !s.outcome.Terminal() {
		return nil
	}
	return &blesec.PairingCancelledError{Peer: s.peer, Reason: s.reason}
}

func (s *Session) String() string {
	if s.hasPasskey {
		return fmt.Sprintf("session %d handle %d peer %s %s passkey %06d %s",
			s.id, s.handle, s.peer, s.method, s.passkey, s.outcome)
	}
	return fmt.Sprintf("session %d handle %d peer %s %s %s",
		s.id, s.handle, s.peer, s.method, s.outcome)
}

func (s *Session) snapshot() Session {
	return *s
}
