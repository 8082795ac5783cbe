// Package connection owns the single active peer connection.
package connection

import (
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rigado/blesec"
	"github.com/rigado/blesec/security"
)

// FailurePolicy decides what happens to a link that fails security
// elevation.
type FailurePolicy int

const (
	FailDisconnect FailurePolicy = iota
	FailContinue
)

func (p FailurePolicy) String() string {
	if p == FailContinue {
		return "continue"
	}
	return "disconnect"
}

func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "disconnect", "":
		return FailDisconnect, nil
	case "continue":
		return FailContinue, nil
	}
	return FailDisconnect, errors.Errorf("invalid security failure policy %q", s)
}

type Disconnecter interface {
	Disconnect(h blesec.Handle, reason uint8) error
}

type Negotiator interface {
	Request(h blesec.Handle, target blesec.SecurityLevel) error
	LevelChanged(h blesec.Handle, level blesec.SecurityLevel, status blesec.SecurityErr) security.Result
	Forget(h blesec.Handle)
}

// Aborter tears down the pairing session of a link that went away.
type Aborter interface {
	Abort(h blesec.Handle)
}

type Advertiser interface {
	Restart() error
}

type Config struct {
	Stack      Disconnecter
	Negotiator Negotiator
	Sessions   Aborter
	Advertiser Advertiser
	Target     blesec.SecurityLevel
	OnFailure  FailurePolicy
	Logger     blesec.Logger
}

// Supervisor owns the active Connection. Its On* methods must be called from
// the device work queue; Current and Subscribe are safe anywhere.
type Supervisor struct {
	stack      Disconnecter
	negotiator Negotiator
	sessions   Aborter
	advertiser Advertiser
	target     blesec.SecurityLevel
	onFailure  FailurePolicy
	log        blesec.Logger

	mu   sync.RWMutex
	conn *Connection
	subs []func(Event)
}

func NewSupervisor(cfg Config) (*Supervisor, error) {
	if cfg.Stack == nil || cfg.Negotiator == nil {
		return nil, errors.New("supervisor: stack and negotiator required")
	}
	if !cfg.Target.Valid() {
		return nil, errors.Errorf("supervisor: invalid target level %d", int(cfg.Target))
	}

	s := &Supervisor{
		stack:      cfg.Stack,
		negotiator: cfg.Negotiator,
		sessions:   cfg.Sessions,
		advertiser: cfg.Advertiser,
		target:     cfg.Target,
		onFailure:  cfg.OnFailure,
		log:        cfg.Logger,
	}
	if s.log == nil {
		s.log = blesec.ComponentLogger("connection")
	}

	return s, nil
}

// Subscribe registers fn for every connection event.
func (s *Supervisor) Subscribe(fn func(Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}

// Current returns a copy of the active connection, or nil when idle.
func (s *Supervisor) Current() *Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.conn == nil {
		return nil
	}
	return s.conn.copy()
}

// active returns the live connection for h, or nil.
func (s *Supervisor) active(h blesec.Handle) *Connection {
	if s.conn == nil || s.conn.handle != h {
		return nil
	}
	return s.conn
}

// OnConnected takes ownership of a new link and starts security elevation. A
// link arriving while another is active is refused and dropped at the stack;
// the active one is left untouched.
func (s *Supervisor) OnConnected(peer blesec.PeerIdentity, h blesec.Handle) (*Connection, error) {
	s.mu.Lock()
	if cur := s.conn; cur != nil {
		s.mu.Unlock()

		err := &blesec.ConnectionConflictError{Active: cur.handle, Rejected: h, Peer: peer}
		s.log.Warnf("%v", err)
		if h != cur.handle {
			if derr := s.stack.Disconnect(h, blesec.ReasonLimitedResources); derr != nil {
				s.log.Errorf("failed to drop handle %d: %v", h, derr)
			}
		}
		s.emit(Event{Type: EventConflict, Handle: h, Peer: peer, Err: err})
		return nil, err
	}

	s.conn = &Connection{
		handle:   h,
		peer:     peer,
		level:    blesec.SecurityNone,
		security: security.Unsecured,
		state:    Connected,
		since:    time.Now(),
	}
	view := s.conn.copy()
	s.mu.Unlock()

	s.log.Infof("connected: %s", view)
	s.emit(Event{Type: EventConnected, Handle: h, Peer: peer, Level: view.level})

	if err := s.negotiator.Request(h, s.target); err != nil {
		s.failed(h, err)
		return view, nil
	}

	secured := false
	s.update(h, func(c *Connection) {
		if c.level < s.target {
			c.security = security.Negotiating
		} else {
			c.security = security.Secured
			secured = true
		}
	})
	if secured {
		s.emit(Event{Type: EventSecured, Handle: h, Peer: peer, Level: view.level})
	}

	return view, nil
}

// OnConnectFailed logs a failed connection attempt and resumes advertising.
func (s *Supervisor) OnConnectFailed(peer blesec.PeerIdentity, status uint8) {
	s.log.Warnf("connection from %s failed: %s", peer, blesec.ReasonString(status))
	s.restartAdvertising()
}

// OnDisconnected releases the connection for h. The pairing session is torn
// down before the connection goes away.
func (s *Supervisor) OnDisconnected(h blesec.Handle, reason uint8) error {
	s.mu.Lock()
	c := s.active(h)
	if c == nil {
		s.mu.Unlock()
		s.log.Debugf("disconnect for unknown handle %d: %s", h, blesec.ReasonString(reason))
		return errors.Wrapf(blesec.ErrNotConnected, "handle %d", h)
	}
	c.state = Disconnecting
	s.mu.Unlock()

	if s.sessions != nil {
		s.sessions.Abort(h)
	}
	s.negotiator.Forget(h)

	s.mu.Lock()
	c.state = Disconnected
	view := c.copy()
	s.conn = nil
	s.mu.Unlock()

	s.log.Infof("disconnected: %s (%s)", view, blesec.ReasonString(reason))
	s.emit(Event{Type: EventDisconnected, Handle: h, Peer: view.peer, Level: view.level, Reason: reason})

	s.restartAdvertising()
	return nil
}

// OnSecurityChanged records the new level of h and applies the failure
// policy when the target was not reached.
func (s *Supervisor) OnSecurityChanged(h blesec.Handle, level blesec.SecurityLevel, status blesec.SecurityErr) (security.Result, error) {
	s.mu.RLock()
	c := s.active(h)
	s.mu.RUnlock()
	if c == nil {
		s.log.Warnf("security change on unknown handle %d", h)
		return security.Result{}, errors.Wrapf(blesec.ErrNotConnected, "handle %d", h)
	}

	r := s.negotiator.LevelChanged(h, level, status)
	s.update(h, func(c *Connection) {
		c.level = r.Level
		c.security = r.State
	})

	if r.Secured() {
		s.emit(Event{Type: EventSecured, Handle: h, Peer: c.peer, Level: r.Level})
		return r, nil
	}

	s.failed(h, r.Err)
	return r, r.Err
}

func (s *Supervisor) failed(h blesec.Handle, err error) {
	var peer blesec.PeerIdentity
	var level blesec.SecurityLevel
	disconnect := s.onFailure == FailDisconnect

	s.update(h, func(c *Connection) {
		c.security = security.Failed
		peer, level = c.peer, c.level
		if disconnect {
			c.state = Disconnecting
		}
	})

	s.emit(Event{Type: EventSecurityFailed, Handle: h, Peer: peer, Level: level, Err: err})

	if !disconnect {
		s.log.Warnf("continuing unauthenticated on handle %d: %v", h, err)
		return
	}

	s.log.Warnf("disconnecting handle %d: %v", h, err)
	if derr := s.stack.Disconnect(h, blesec.ReasonAuthFailure); derr != nil {
		s.log.Errorf("failed to disconnect handle %d: %v", h, derr)
	}
}

func (s *Supervisor) update(h blesec.Handle, fn func(c *Connection)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c := s.active(h); c != nil {
		fn(c)
	}
}

func (s *Supervisor) restartAdvertising() {
	if s.advertiser == nil {
		return
	}
	if err := s.advertiser.Restart(); err != nil {
		s.log.Errorf("failed to restart advertising: %v", err)
	}
}

func (s *Supervisor) emit(e Event) {
	s.mu.RLock()
	subs := make([]func(Event), len(s.subs))
	copy(subs, s.subs)
	s.mu.RUnlock()

	for _, fn := range subs {
		fn(e)
	}
}
