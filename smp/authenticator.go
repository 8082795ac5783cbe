package smp

import (
	"time"

	"github.com/pkg/errors"
	"github.com/rigado/blesec"
)

// DefaultTimeout bounds how long a passkey confirmation waits for the user.
const DefaultTimeout = 30 * time.Second

// Responder is the part of the stack the authenticator answers to.
type Responder interface {
	ConfirmPairing(h blesec.Handle) error
	CancelPairing(h blesec.Handle) error
}

// Prompter collects the user's decision for a session awaiting input.
type Prompter interface {
	Await(id uint64, passkey uint32)
	Cancel(id uint64)
}

type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d, like time.AfterFunc.
type AfterFunc func(d time.Duration, f func()) Timer

func defaultAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type Config struct {
	Policy   Policy
	Stack    Responder
	Prompter Prompter
	Display  blesec.PasskeyDisplay
	Timeout  time.Duration

	// Post marshals timer expiry onto the work queue and must not drop it
	// while the queue is running. Nil runs it inline.
	Post      func(func()) error
	AfterFunc AfterFunc

	// OnChange receives a copy of the session after every transition.
	OnChange func(Session)
	Logger   blesec.Logger
}

// Authenticator runs the pairing decision points for the configured policy.
// All methods must be called from the device work queue.
type Authenticator struct {
	policy    Policy
	stack     Responder
	prompter  Prompter
	display   blesec.PasskeyDisplay
	timeout   time.Duration
	post      func(func()) error
	afterFunc AfterFunc
	onChange  func(Session)
	log       blesec.Logger

	session *Session
	timer   Timer
	nextID  uint64
}

func NewAuthenticator(cfg Config) (*Authenticator, error) {
	if cfg.Policy == nil {
		return nil, errors.New("authenticator: no policy")
	}
	if cfg.Stack == nil {
		return nil, errors.New("authenticator: no stack")
	}

	a := &Authenticator{
		policy:    cfg.Policy,
		stack:     cfg.Stack,
		prompter:  cfg.Prompter,
		display:   cfg.Display,
		timeout:   cfg.Timeout,
		post:      cfg.Post,
		afterFunc: cfg.AfterFunc,
		onChange:  cfg.OnChange,
		log:       cfg.Logger,
	}

	if a.timeout <= 0 {
		a.timeout = DefaultTimeout
	}
	if a.afterFunc == nil {
		a.afterFunc = defaultAfterFunc
	}
	if a.log == nil {
		a.log = blesec.ComponentLogger("smp")
	}

	return a, nil
}

func (a *Authenticator) Policy() Policy {
	return a.policy
}

// SetPrompter attaches the user input once it exists.
func (a *Authenticator) SetPrompter(p Prompter) {
	a.prompter = p
}

// Pending returns the session in progress, or nil.
func (a *Authenticator) Pending() *Session {
	return a.session
}

// PairingRequested opens a session for l. A second session is refused while
// one exists; methods the policy cannot serve are cancelled at the stack.
func (a *Authenticator) PairingRequested(l Link, m blesec.PairingMethod) (*Session, error) {
	if a.session != nil {
		a.log.Warnf("pairing request from %s rejected, %s", l.Peer(), a.session)
		return nil, errors.Wrapf(blesec.ErrPairingInProgress, "handle %d", l.Handle())
	}

	if !a.policy.Supports(m) {
		a.log.Warnf("%s pairing with %s not supported by %s policy, cancelling",
			m, l.Peer(), a.policy.Capability())
		if err := a.stack.CancelPairing(l.Handle()); err != nil {
			a.log.Errorf("cancel pairing on handle %d: %v", l.Handle(), err)
		}
		return nil, &blesec.PairingCancelledError{Peer: l.Peer(), Reason: blesec.CancelUnsupported}
	}

	a.nextID++
	s := &Session{
		id:      a.nextID,
		handle:  l.Handle(),
		peer:    l.Peer(),
		method:  m,
		outcome: Pending,
		started: time.Now(),
	}
	a.session = s
	a.log.Infof("pairing requested: %s", s)
	a.changed(s)

	if m == blesec.MethodJustWorks {
		a.confirm(s)
	}

	return s, nil
}

// PasskeyDisplay hands passkey to the display. The session is confirmed
// locally; the peer enters the number.
func (a *Authenticator) PasskeyDisplay(l Link, passkey uint32) (*Session, error) {
	return a.passkey(l, blesec.MethodPasskeyDisplay, passkey)
}

// PasskeyConfirm shows passkey and waits for the user to accept or reject
// it, bounded by the configured timeout.
func (a *Authenticator) PasskeyConfirm(l Link, passkey uint32) (*Session, error) {
	return a.passkey(l, blesec.MethodPasskeyConfirm, passkey)
}

// PasskeyEntry asks for a passkey typed on this device. None of the policies
// have a keyboard, so the request is cancelled.
func (a *Authenticator) PasskeyEntry(l Link) (*Session, error) {
	return a.ensure(l, blesec.MethodPasskeyEntry)
}

func (a *Authenticator) passkey(l Link, m blesec.PairingMethod, passkey uint32) (*Session, error) {
	if passkey > MaxPasskey {
		a.log.Errorf("invalid passkey %d from stack for %s, cancelling", passkey, l.Peer())
		if s := a.session; s != nil && s.handle == l.Handle() {
			a.cancel(s, Cancelled, blesec.CancelStackError, true)
		} else if err := a.stack.CancelPairing(l.Handle()); err != nil {
			a.log.Errorf("cancel pairing on handle %d: %v", l.Handle(), err)
		}
		return nil, errors.Errorf("passkey %d out of range", passkey)
	}

	s, err := a.ensure(l, m)
	if err != nil {
		return nil, err
	}

	s.passkey, s.hasPasskey = passkey, true
	a.show(s)

	if a.policy.AutoConfirm(m) {
		a.confirm(s)
		return s, nil
	}

	s.outcome = AwaitingInput
	id := s.id
	a.timer = a.afterFunc(a.timeout, func() { a.scheduleExpire(id) })
	if a.prompter != nil {
		a.prompter.Await(id, passkey)
	}
	a.log.Infof("waiting up to %s for confirmation: %s", a.timeout, s)
	a.changed(s)

	return s, nil
}

// ensure returns the pending session for l, creating it when the stack skipped
// the explicit pairing request.
func (a *Authenticator) ensure(l Link, m blesec.PairingMethod) (*Session, error) {
	s := a.session
	if s == nil {
		return a.PairingRequested(l, m)
	}

	if s.handle != l.Handle() {
		return nil, errors.Wrapf(blesec.ErrPairingInProgress, "handle %d", l.Handle())
	}

	if s.outcome != Pending {
		a.log.Errorf("%s prompt for %s while session %d is %s, cancelling",
			m, s.peer, s.id, s.outcome)
		a.cancel(s, Cancelled, blesec.CancelStackError, true)
		return nil, s.Err()
	}

	if s.method != m {
		if !a.policy.Supports(m) {
			a.log.Warnf("%s pairing with %s not supported by %s policy, cancelling",
				m, s.peer, a.policy.Capability())
			a.cancel(s, Cancelled, blesec.CancelUnsupported, true)
			return nil, s.Err()
		}
		a.log.Debugf("session %d method %s -> %s", s.id, s.method, m)
		s.method = m
	}

	return s, nil
}

// Confirm accepts the passkey of session id.
func (a *Authenticator) Confirm(id uint64) error {
	s, err := a.awaiting(id)
	if err != nil {
		return err
	}

	a.stopTimer()
	a.log.Infof("passkey %06d accepted for %s", s.passkey, s.peer)
	a.confirm(s)
	return nil
}

// Reject refuses the passkey of session id and cancels the pairing.
func (a *Authenticator) Reject(id uint64) error {
	s, err := a.awaiting(id)
	if err != nil {
		return err
	}

	a.cancel(s, Cancelled, blesec.CancelRejected, true)
	return nil
}

func (a *Authenticator) awaiting(id uint64) (*Session, error) {
	s := a.session
	if s == nil || s.id != id {
		return nil, errors.Wrapf(blesec.ErrNoSession, "session %d", id)
	}
	if s.outcome != AwaitingInput {
		return nil, errors.Errorf("session %d is %s", id, s.outcome)
	}
	return s, nil
}

// CancelledByPeer ends the session on h; the stack already knows.
func (a *Authenticator) CancelledByPeer(h blesec.Handle) error {
	s := a.session
	if s == nil || s.handle != h {
		a.log.Debugf("pairing cancel on handle %d with no session", h)
		return blesec.ErrNoSession
	}

	a.cancel(s, Cancelled, blesec.CancelByPeer, false)
	return nil
}

// Complete releases the session on h once the stack reports the pairing
// finished. A non-nil err marks it failed.
func (a *Authenticator) Complete(h blesec.Handle, err error) {
	s := a.session
	if s == nil || s.handle != h {
		return
	}

	if err != nil {
		a.log.Warnf("pairing with %s failed: %v", s.peer, err)
		a.cancel(s, Cancelled, blesec.CancelFailed, false)
		return
	}

	a.stopTimer()
	if s.outcome == AwaitingInput && a.prompter != nil {
		a.prompter.Cancel(s.id)
	}
	s.outcome = Confirmed
	a.session = nil
	a.log.Infof("pairing complete: %s", s)
	a.changed(s)
}

// Abort tears down the session on h because the link is gone.
func (a *Authenticator) Abort(h blesec.Handle) {
	s := a.session
	if s == nil || s.handle != h {
		return
	}

	a.cancel(s, Cancelled, blesec.CancelDisconnected, false)
}

func (a *Authenticator) scheduleExpire(id uint64) {
	if a.post == nil {
		a.expire(id)
		return
	}

	if err := a.post(func() { a.expire(id) }); err != nil {
		a.log.Errorf("failed to schedule pairing timeout for session %d: %v", id, err)
	}
}

func (a *Authenticator) expire(id uint64) {
	s := a.session
	if s == nil || s.id != id || s.outcome != AwaitingInput {
		return
	}

	a.timer = nil
	a.cancel(s, TimedOut, blesec.CancelTimeout, true)
}

// confirm moves s to Confirmed and answers the stack. The session stays open
// until the stack reports completion.
func (a *Authenticator) confirm(s *Session) {
	s.outcome = Confirmed
	if s.method != blesec.MethodPasskeyDisplay {
		if err := a.stack.ConfirmPairing(s.handle); err != nil {
			a.log.Errorf("confirm pairing on handle %d: %v", s.handle, err)
			a.cancel(s, Cancelled, blesec.CancelStackError, true)
			return
		}
	}
	a.changed(s)
}

func (a *Authenticator) cancel(s *Session, outcome Outcome, reason blesec.CancelReason, tellStack bool) {
	a.stopTimer()

	awaiting := s.outcome == AwaitingInput
	s.outcome = outcome
	s.reason = reason

	if tellStack {
		if err := a.stack.CancelPairing(s.handle); err != nil {
			a.log.Errorf("cancel pairing on handle %d: %v", s.handle, err)
		}
	}

	if awaiting && a.prompter != nil {
		a.prompter.Cancel(s.id)
	}

	if a.session == s {
		a.session = nil
	}
	a.log.Warnf("%v", s.Err())
	a.changed(s)
}

func (a *Authenticator) stopTimer() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}

func (a *Authenticator) show(s *Session) {
	if a.display != nil {
		a.display(s.peer, s.passkey)
		return
	}
	a.log.Infof("passkey for %s: %06d", s.peer, s.passkey)
}

func (a *Authenticator) changed(s *Session) {
	if a.onChange != nil {
		a.onChange(s.snapshot())
	}
}
