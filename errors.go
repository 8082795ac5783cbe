package blesec

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrAlreadyConnected  = errors.New("already connected")
	ErrNotConnected      = errors.New("not connected")
	ErrPairingInProgress = errors.New("pairing already in progress")
	ErrNoSession         = errors.New("no pairing session")
	ErrStackBusy         = errors.New("stack busy")
	ErrQueueFull         = errors.New("work queue full")
	ErrClosed            = errors.New("closed")
)

// StackInitError is fatal: the host stack could not be enabled.
type StackInitError struct {
	Err error
}

func (e *StackInitError) Error() string {
	return fmt.Sprintf("bluetooth init failed: %v", e.Err)
}

func IsStackInit(err error) bool {
	_, ok := errors.Cause(err).(*StackInitError)
	return ok
}

// ConnectionConflictError is returned when a connection arrives while another
// one is active. The active connection is left untouched.
type ConnectionConflictError struct {
	Active   Handle
	Rejected Handle
	Peer     PeerIdentity
}

func (e *ConnectionConflictError) Error() string {
	return fmt.Sprintf("%v: handle %d active, rejecting handle %d from %s",
		ErrAlreadyConnected, e.Active, e.Rejected, e.Peer)
}

// Cause lets errors.Cause reach the sentinel.
func (e *ConnectionConflictError) Cause() error {
	return ErrAlreadyConnected
}

func IsConnectionConflict(err error) bool {
	for err != nil {
		if _, ok := err.(*ConnectionConflictError); ok {
			return true
		}
		c, ok := err.(interface{ Cause() error })
		if !ok {
			return false
		}
		err = c.Cause()
	}
	return false
}

// CancelReason says why a pairing session ended without confirmation.
type CancelReason int

const (
	CancelByPeer CancelReason = iota
	CancelRejected
	CancelTimeout
	CancelUnsupported
	CancelDisconnected
	CancelFailed
	CancelStackError
)

var cancelReasonStrings = map[CancelReason]string{
	CancelByPeer:       "cancelled by peer",
	CancelRejected:     "rejected by user",
	CancelTimeout:      "confirmation timed out",
	CancelUnsupported:  "method not supported",
	CancelDisconnected: "disconnected",
	CancelFailed:       "pairing failed",
	CancelStackError:   "stack error",
}

func (r CancelReason) String() string {
	if s, ok := cancelReasonStrings[r]; ok {
		return s
	}
	return fmt.Sprintf("cancel reason %d", int(r))
}

// PairingCancelledError reports a session that ended without confirmation.
type PairingCancelledError struct {
	Peer   PeerIdentity
	Reason CancelReason
}

func (e *PairingCancelledError) Error() string {
	return fmt.Sprintf("pairing with %s cancelled: %s", e.Peer, e.Reason)
}

func IsPairingCancelled(err error) bool {
	_, ok := errors.Cause(err).(*PairingCancelledError)
	return ok
}

// SecurityElevationError reports a link that did not reach its target level.
type SecurityElevationError struct {
	Handle Handle
	Target SecurityLevel
	Level  SecurityLevel
	Status SecurityErr
	Err    error
}

func (e *SecurityElevationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("security elevation to %s failed on handle %d: %v", e.Target, e.Handle, e.Err)
	}
	return fmt.Sprintf("security elevation to %s failed on handle %d: reached %s (%s)",
		e.Target, e.Handle, e.Level, e.Status)
}

func IsSecurityElevation(err error) bool {
	_, ok := errors.Cause(err).(*SecurityElevationError)
	return ok
}

// BondClearError is logged at boot; it never stops startup.
type BondClearError struct {
	Peer *PeerIdentity
	Err  error
}

func (e *BondClearError) Error() string {
	if e.Peer == nil {
		return fmt.Sprintf("failed to clear bonds: %v", e.Err)
	}
	return fmt.Sprintf("failed to clear bond for %s: %v", *e.Peer, e.Err)
}
