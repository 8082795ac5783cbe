// Package peripheral wires the link security components into one device
// driven by a host stack.
package peripheral

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rigado/blesec"
	"github.com/rigado/blesec/adv"
	"github.com/rigado/blesec/bond"
	"github.com/rigado/blesec/config"
	"github.com/rigado/blesec/connection"
	"github.com/rigado/blesec/input"
	"github.com/rigado/blesec/security"
	"github.com/rigado/blesec/smp"
	"github.com/rigado/blesec/task"
)

const (
	defaultQueueDepth = 64
	eventBufferSize   = 64
)

type resolver interface {
	Resolve(a blesec.Addr) (blesec.PeerIdentity, bool)
}

// Device is a peripheral that accepts one connection and raises it to the
// configured security level. The methods called by the stack never block;
// their work runs on the device queue.
type Device struct {
	cfg   config.Config
	stack blesec.Stack
	log   blesec.Logger

	bonds        blesec.BondStore
	serviceInit  func() error
	settingsLoad func() error
	display      blesec.PasskeyDisplay
	depth        int

	q          *task.Queue
	advertiser *adv.Advertiser
	negotiator *security.Negotiator
	auth       *smp.Authenticator
	router     *input.Router
	supervisor *connection.Supervisor

	mu     sync.Mutex
	events chan Event
	subs   []func(Event)
	closed bool
}

func New(cfg config.Config, stack blesec.Stack, opts ...blesec.Option) (*Device, error) {
	if stack == nil {
		return nil, errors.New("no stack")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	d := &Device{
		cfg:    cfg,
		stack:  stack,
		log:    blesec.ComponentLogger("device"),
		depth:  defaultQueueDepth,
		events: make(chan Event, eventBufferSize),
	}

	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}

	if err := blesec.SetLogLevel(cfg.LogLevel); err != nil {
		return nil, err
	}

	if d.bonds == nil {
		d.bonds = bond.New(cfg.BondFile)
	}

	d.q = task.NewQueue("device")

	services, err := cfg.Services()
	if err != nil {
		return nil, err
	}
	d.advertiser, err = adv.NewAdvertiser(stack, cfg.DeviceName, services...)
	if err != nil {
		return nil, err
	}

	d.negotiator = security.NewNegotiator(stack, cfg.TargetSecurityLevel)

	d.router, err = input.NewRouter(d.q.Post, nil, cfg.Debounce)
	if err != nil {
		return nil, err
	}

	policy, err := smp.NewPolicy(cfg.IOCapability)
	if err != nil {
		return nil, err
	}

	d.auth, err = smp.NewAuthenticator(smp.Config{
		Policy:   policy,
		Stack:    stack,
		Prompter: d.router,
		Display:  d.display,
		Timeout:  cfg.PairingTimeout,
		Post:     d.q.Push,
		OnChange: func(s smp.Session) { d.emit(sessionEvent(s)) },
		Logger:   d.log.ChildLogger(map[string]interface{}{"component": "smp"}),
	})
	if err != nil {
		return nil, err
	}
	d.router.SetDecider(d.auth)

	d.supervisor, err = connection.NewSupervisor(connection.Config{
		Stack:      stack,
		Negotiator: d.negotiator,
		Sessions:   d.auth,
		Advertiser: d.advertiser,
		Target:     cfg.TargetSecurityLevel,
		OnFailure:  cfg.SecurityFailure,
		Logger:     d.log.ChildLogger(map[string]interface{}{"component": "connection"}),
	})
	if err != nil {
		return nil, err
	}
	d.supervisor.Subscribe(func(e connection.Event) { d.emit(connEvent(e)) })

	return d, nil
}

// Start runs the boot sequence on the device queue: enable the stack,
// register services, load settings, clear bonds when configured and start
// advertising. Only a *blesec.StackInitError leaves the device unusable.
func (d *Device) Start(ctx context.Context) error {
	if err := d.q.Start(d.depth); err != nil {
		return err
	}

	d.log.ChildLogger(d.cfg.Fields()).Info("starting")

	select {
	case err := <-d.q.Enqueue(d.boot):
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Device) boot() error {
	if err := d.stack.Enable(); err != nil {
		err = &blesec.StackInitError{Err: err}
		d.log.Errorf("%v", err)
		return err
	}
	d.log.Info("bluetooth initialized")

	if d.serviceInit != nil {
		if err := d.serviceInit(); err != nil {
			d.log.Errorf("service init failed: %v", err)
		}
	}

	if d.settingsLoad != nil {
		if err := d.settingsLoad(); err != nil {
			d.log.Errorf("settings load failed: %v", err)
		}
	}

	if d.cfg.ClearBondsOnBoot {
		if err := d.bonds.ClearAll(); err != nil {
			d.log.Errorf("%v", err)
		}
	}

	if err := d.advertiser.Start(); err != nil {
		d.log.Errorf("%v", err)
		return err
	}

	return nil
}

// Close stops the device queue. Pending work fails with blesec.ErrClosed.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.events)
	d.mu.Unlock()

	if !d.q.Active() {
		return nil
	}
	return d.q.Stop(blesec.ErrClosed)
}

// Events returns a buffered channel of device events. Events are dropped
// when nobody keeps up.
func (d *Device) Events() <-chan Event {
	return d.events
}

// Subscribe registers fn; it runs on the device queue.
func (d *Device) Subscribe(fn func(Event)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subs = append(d.subs, fn)
}

func (d *Device) emit(e Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}

	for _, fn := range d.subs {
		fn(e)
	}

	select {
	case d.events <- e:
	default:
		d.log.Warnf("event dropped: %s", e)
	}
}

// Current returns the active connection, or nil.
func (d *Device) Current() *connection.Connection {
	return d.supervisor.Current()
}

// Bonds returns the bond store.
func (d *Device) Bonds() blesec.BondStore {
	return d.bonds
}

// Inputs is fed by buttons or other accept/reject sources.
func (d *Device) Inputs() input.Inputs {
	return d.router
}

func (d *Device) Accept() {
	d.router.OnAccept()
}

func (d *Device) Reject() {
	d.router.OnReject()
}

// post runs fn on the device queue. Stack callbacks bypass the queue depth
// so a burst of input cannot starve lifecycle handling. Failures are logged;
// a stack callback has nowhere to return them.
func (d *Device) post(what string, fn func()) {
	if err := d.q.Push(fn); err != nil {
		d.log.Errorf("dropped %s: %v", what, err)
	}
}

// link returns the active connection if it is h, or nil.
func (d *Device) link(h blesec.Handle) *connection.Connection {
	c := d.supervisor.Current()
	if c == nil || c.Handle() != h {
		return nil
	}
	return c
}

func (d *Device) resolve(peer blesec.PeerIdentity) blesec.PeerIdentity {
	if peer.AddrType() != blesec.AddrRandom || !peer.Addr().Resolvable() {
		return peer
	}
	r, ok := d.bonds.(resolver)
	if !ok {
		return peer
	}
	if id, ok := r.Resolve(peer.Addr()); ok {
		d.log.Infof("resolved %s to bonded identity %s", peer, id)
		return id
	}
	return peer
}

// Connected reports a new link from peer. A resolvable private address is
// mapped to the bonded identity it resolves to.
func (d *Device) Connected(peer blesec.PeerIdentity, h blesec.Handle) {
	d.post("connected", func() {
		if _, err := d.supervisor.OnConnected(d.resolve(peer), h); err != nil {
			d.log.Debugf("connect on handle %d: %v", h, err)
		}
	})
}

func (d *Device) ConnectFailed(peer blesec.PeerIdentity, status uint8) {
	d.post("connect failed", func() {
		d.supervisor.OnConnectFailed(peer, status)
	})
}

func (d *Device) Disconnected(h blesec.Handle, reason uint8) {
	d.post("disconnected", func() {
		if err := d.supervisor.OnDisconnected(h, reason); err != nil {
			d.log.Debugf("%v", err)
		}
	})
}

// SecurityChanged reports the link level after an elevation attempt. A
// session still open on h is completed first.
func (d *Device) SecurityChanged(h blesec.Handle, level blesec.SecurityLevel, status blesec.SecurityErr) {
	d.post("security changed", func() {
		if s := d.auth.Pending(); s != nil && s.Handle() == h {
			var err error
			if status != blesec.SecurityErrSuccess {
				err = &blesec.SecurityElevationError{Handle: h, Level: level, Status: status}
			}
			d.auth.Complete(h, err)
		}

		if _, err := d.supervisor.OnSecurityChanged(h, level, status); err != nil {
			d.log.Debugf("security change on handle %d: %v", h, err)
		}
	})
}

// onLink runs fn with the active connection for h. Pairing on a link the
// device does not own is cancelled at the stack.
func (d *Device) onLink(what string, h blesec.Handle, fn func(l smp.Link) error) {
	d.post(what, func() {
		c := d.link(h)
		if c == nil {
			d.log.Warnf("%s on unknown handle %d, cancelling", what, h)
			if err := d.stack.CancelPairing(h); err != nil {
				d.log.Errorf("cancel pairing on handle %d: %v", h, err)
			}
			return
		}
		if err := fn(c); err != nil {
			d.log.Debugf("%s on handle %d: %v", what, h, err)
		}
	})
}

func (d *Device) PairingRequested(h blesec.Handle, m blesec.PairingMethod) {
	d.onLink("pairing request", h, func(l smp.Link) error {
		_, err := d.auth.PairingRequested(l, m)
		return err
	})
}

func (d *Device) PasskeyDisplay(h blesec.Handle, passkey uint32) {
	d.onLink("passkey display", h, func(l smp.Link) error {
		_, err := d.auth.PasskeyDisplay(l, passkey)
		return err
	})
}

func (d *Device) PasskeyConfirm(h blesec.Handle, passkey uint32) {
	d.onLink("passkey confirm", h, func(l smp.Link) error {
		_, err := d.auth.PasskeyConfirm(l, passkey)
		return err
	})
}

func (d *Device) PasskeyEntry(h blesec.Handle) {
	d.onLink("passkey entry", h, func(l smp.Link) error {
		_, err := d.auth.PasskeyEntry(l)
		return err
	})
}

// PairingCancelled reports that the peer or the stack abandoned pairing.
func (d *Device) PairingCancelled(h blesec.Handle) {
	d.post("pairing cancelled", func() {
		if err := d.auth.CancelledByPeer(h); err != nil {
			d.log.Debugf("pairing cancelled on handle %d: %v", h, err)
		}
	})
}

func (d *Device) PairingComplete(h blesec.Handle, bonded bool) {
	d.post("pairing complete", func() {
		if c := d.link(h); c != nil {
			d.log.Infof("pairing complete with %s, bonded %t", c.Peer(), bonded)
		}
		d.auth.Complete(h, nil)
	})
}

func (d *Device) PairingFailed(h blesec.Handle, status blesec.SecurityErr) {
	d.post("pairing failed", func() {
		d.auth.Complete(h, &blesec.SecurityElevationError{Handle: h, Status: status})
	})
}

// ClearBond removes the bond for peer.
func (d *Device) ClearBond(peer blesec.PeerIdentity) error {
	return d.q.Run(func() error {
		return d.bonds.ClearOne(peer)
	})
}

// ClearBonds removes every stored bond.
func (d *Device) ClearBonds() error {
	return d.q.Run(d.bonds.ClearAll)
}
