// Package sim is an in-process Bluetooth stack. It plays both the controller
// and a scripted central so the device can be run without a radio.
package sim

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/rigado/blesec"
	"github.com/rigado/blesec/smp"
	"github.com/rigado/blesec/task"
)

// Host receives stack events. The device implements it; every method must
// return without blocking.
type Host interface {
	Connected(peer blesec.PeerIdentity, h blesec.Handle)
	ConnectFailed(peer blesec.PeerIdentity, status uint8)
	Disconnected(h blesec.Handle, reason uint8)
	SecurityChanged(h blesec.Handle, level blesec.SecurityLevel, status blesec.SecurityErr)
	PairingRequested(h blesec.Handle, m blesec.PairingMethod)
	PasskeyDisplay(h blesec.Handle, passkey uint32)
	PasskeyConfirm(h blesec.Handle, passkey uint32)
	PasskeyEntry(h blesec.Handle)
	PairingCancelled(h blesec.Handle)
	PairingComplete(h blesec.Handle, bonded bool)
	PairingFailed(h blesec.Handle, status blesec.SecurityErr)
}

type Config struct {
	Address    blesec.PeerIdentity
	Capability blesec.IOCapability

	// Bonds receives the keys of bonded pairings.
	Bonds blesec.BondManager

	// EnableErr is returned by Enable.
	EnableErr error
	Logger    blesec.Logger
}

type link struct {
	handle  blesec.Handle
	peer    Peer
	level   blesec.SecurityLevel
	pairing *pairing
}

// Counters are the calls the device made into the stack.
type Counters struct {
	Confirms    int
	Cancels     int
	Disconnects int
}

type Stack struct {
	cfg      Config
	localCap byte
	log      blesec.Logger
	q        *task.Queue

	mu          sync.Mutex
	host        Host
	enabled     bool
	advertising bool
	payload     []byte
	links       map[blesec.Handle]*link
	nextHandle  blesec.Handle
	counters    Counters
}

func New(cfg Config) (*Stack, error) {
	c, err := smp.IoCap(cfg.Capability)
	if err != nil {
		return nil, err
	}
	if cfg.Bonds == nil {
		return nil, errors.New("sim: no bond manager")
	}

	s := &Stack{
		cfg:        cfg,
		localCap:   c,
		log:        cfg.Logger,
		q:          task.NewQueue("sim"),
		links:      map[blesec.Handle]*link{},
		nextHandle: 1,
	}
	if s.log == nil {
		s.log = blesec.ComponentLogger("sim")
	}

	return s, nil
}

// Attach connects the host and starts the event loop.
func (s *Stack) Attach(h Host) error {
	s.mu.Lock()
	s.host = h
	s.mu.Unlock()
	return s.q.Start(64)
}

func (s *Stack) Close() error {
	if !s.q.Active() {
		return nil
	}
	return s.q.Stop(blesec.ErrClosed)
}

func (s *Stack) Counters() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters
}

func (s *Stack) Advertising() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.advertising
}

// Payload returns the current advertising data.
func (s *Stack) Payload() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.payload...)
}

// Level returns the security level of h.
func (s *Stack) Level(h blesec.Handle) (blesec.SecurityLevel, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.links[h]
	if !ok {
		return 0, false
	}
	return l.level, true
}

// post runs fn on the stack loop with the lock held.
func (s *Stack) post(fn func(h Host)) error {
	return s.q.Post(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.host != nil {
			fn(s.host)
		}
	})
}

func (s *Stack) Enable() error {
	if s.cfg.EnableErr != nil {
		return s.cfg.EnableErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = true
	s.log.Infof("enabled as %s", s.cfg.Address)
	return nil
}

func (s *Stack) StartAdvertising(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled {
		return errors.New("sim: stack not enabled")
	}
	s.advertising = true
	s.payload = append([]byte(nil), payload...)
	return nil
}

func (s *Stack) StopAdvertising() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advertising = false
	return nil
}

// Connect brings in a connection from p. Advertising stops, as a controller
// does when a connectable advertisement is answered.
func (s *Stack) Connect(p Peer) (blesec.Handle, error) {
	s.mu.Lock()
	if !s.advertising {
		s.mu.Unlock()
		return 0, errors.New("sim: not advertising")
	}
	s.advertising = false

	h := s.nextHandle
	s.nextHandle++
	s.links[h] = &link{handle: h, peer: p, level: blesec.SecurityNone}
	s.mu.Unlock()

	s.log.Infof("connection from %s on handle %d", p.addr(), h)
	return h, s.post(func(host Host) {
		host.Connected(p.addr(), h)
	})
}

// PeerDisconnect drops h from the peer side.
func (s *Stack) PeerDisconnect(h blesec.Handle, reason uint8) error {
	return s.post(func(host Host) {
		if _, ok := s.links[h]; !ok {
			return
		}
		delete(s.links, h)
		host.Disconnected(h, reason)
	})
}

func (s *Stack) Disconnect(h blesec.Handle, reason uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counters.Disconnects++
	if _, ok := s.links[h]; !ok {
		return errors.Wrapf(blesec.ErrNotConnected, "handle %d", h)
	}
	delete(s.links, h)

	s.log.Infof("disconnecting handle %d: %s", h, blesec.ReasonString(reason))
	return s.q.Post(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.host != nil {
			s.host.Disconnected(h, blesec.ReasonLocalHostTerm)
		}
	})
}

// SetSecurity starts elevation as the peripheral's security request would:
// an existing bond is reused, anything else is paired.
func (s *Stack) SetSecurity(h blesec.Handle, level blesec.SecurityLevel) error {
	s.mu.Lock()
	_, ok := s.links[h]
	s.mu.Unlock()
	if !ok {
		return errors.Wrapf(blesec.ErrNotConnected, "handle %d", h)
	}

	return s.post(func(host Host) {
		l, ok := s.links[h]
		if !ok || l.pairing != nil {
			return
		}

		if info, err := s.cfg.Bonds.Find(l.peer.Identity); err == nil && info.Level() >= level {
			s.log.Infof("encrypting handle %d with stored key", h)
			l.level = info.Level()
			host.SecurityChanged(h, l.level, blesec.SecurityErrSuccess)
			return
		}

		s.pair(host, l, level)
	})
}

func (s *Stack) pair(host Host, l *link, level blesec.SecurityLevel) {
	p := l.peer
	mitm := p.MITM || level >= blesec.SecurityAuthenticated

	m, err := smp.PairingMethod(s.localCap, p.IOCap, p.SecureConnections, mitm)
	if err != nil {
		s.fail(host, l, blesec.SecurityErrInvalidParam, err)
		return
	}

	if level >= blesec.SecurityAuthenticated && !m.Authenticated() ||
		level >= blesec.SecurityLESecure && !p.SecureConnections {
		s.fail(host, l, blesec.SecurityErrAuthRequirement,
			errors.Errorf("%s pairing cannot reach %s", m, level))
		return
	}

	pr, err := newPairing(p, s.cfg.Address, s.localCap, m)
	if err != nil {
		s.fail(host, l, blesec.SecurityErrUnspecified, err)
		return
	}
	l.pairing = pr

	s.log.Infof("pairing handle %d: %s", l.handle, m)
	host.PairingRequested(l.handle, m)

	switch m {
	case blesec.MethodPasskeyConfirm:
		host.PasskeyConfirm(l.handle, pr.passkey)
	case blesec.MethodPasskeyDisplay:
		host.PasskeyDisplay(l.handle, pr.passkey)
		// the peer types the displayed key
		s.complete(host, l)
	case blesec.MethodPasskeyEntry:
		host.PasskeyEntry(l.handle)
	}
}

func (s *Stack) ConfirmPairing(h blesec.Handle) error {
	s.mu.Lock()
	s.counters.Confirms++
	l, ok := s.links[h]
	s.mu.Unlock()
	if !ok {
		return errors.Wrapf(blesec.ErrNotConnected, "handle %d", h)
	}

	return s.post(func(host Host) {
		if l.pairing == nil || s.links[h] != l {
			return
		}
		s.complete(host, l)
	})
}

// CancelPairing fails the pairing on h. A peer that disconnects on cancel
// does so inside the same job, so the device sees the failure and the
// disconnect back to back.
func (s *Stack) CancelPairing(h blesec.Handle) error {
	s.mu.Lock()
	s.counters.Cancels++
	s.mu.Unlock()

	return s.post(func(host Host) {
		l, ok := s.links[h]
		if !ok {
			return
		}
		l.pairing = nil

		host.PairingFailed(h, blesec.SecurityErrAuthFail)
		host.SecurityChanged(h, l.level, blesec.SecurityErrAuthFail)

		if l.peer.DisconnectOnCancel {
			delete(s.links, h)
			host.Disconnected(h, blesec.ReasonAuthFailure)
		}
	})
}

func (s *Stack) complete(host Host, l *link) {
	pr := l.pairing
	l.pairing = nil

	ltk, err := pr.ltk()
	if err != nil {
		s.fail(host, l, blesec.SecurityErrAuthFail, err)
		return
	}

	level := pr.level()
	if l.peer.Bonding {
		info := blesec.NewBondInfo(ltk, l.peer.Identity.IRK(), level, !pr.secure)
		if err := s.cfg.Bonds.Save(l.peer.Identity, info); err != nil {
			s.log.Errorf("failed to save bond for %s: %v", l.peer.Identity, err)
		}
	}

	l.level = level
	host.PairingComplete(l.handle, l.peer.Bonding)
	host.SecurityChanged(l.handle, level, blesec.SecurityErrSuccess)
}

func (s *Stack) fail(host Host, l *link, status blesec.SecurityErr, err error) {
	s.log.Warnf("pairing on handle %d failed: %v", l.handle, err)
	l.pairing = nil
	host.PairingFailed(l.handle, status)
	host.SecurityChanged(l.handle, l.level, status)
}
