package adv

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/rigado/blesec"
)

type Starter interface {
	StartAdvertising(payload []byte) error
	StopAdvertising() error
}

// Advertiser advertises the device name and any service UUIDs, general
// discoverable and LE only.
type Advertiser struct {
	stack  Starter
	packet *Packet
	log    blesec.Logger

	mu     sync.Mutex
	active bool
}

// NewAdvertiser builds the payload. A name that only fails to fit because of
// the service UUIDs is sent as a shortened name.
func NewAdvertiser(stack Starter, name string, services ...UUID128) (*Advertiser, error) {
	p, err := NewPacket(Flags(FlagGeneralDiscoverable | FlagBREDRNotSupported))
	if err != nil {
		return nil, err
	}
	if len(services) > 0 {
		if err := p.Append(AllUUID128(services...)); err != nil {
			return nil, errors.Wrapf(err, "%d service uuids", len(services))
		}
	}

	err = p.Append(CompleteName(name))
	if err == ErrNotFit && len(services) > 0 {
		room := MaxEIRPacketLength - p.Len() - 2
		if room > 0 && room < len(name) {
			err = p.Append(ShortName(name[:room]))
		}
	}
	if err != nil {
		return nil, errors.Wrapf(err, "advertising name %q", name)
	}

	log := blesec.ComponentLogger("adv")
	if p.LocalName() != name {
		log.Warnf("advertising name %q shortened to %q", name, p.LocalName())
	}

	return &Advertiser{
		stack:  stack,
		packet: p,
		log:    log,
	}, nil
}

func (a *Advertiser) Payload() []byte {
	return a.packet.Bytes()
}

func (a *Advertiser) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

func (a *Advertiser) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.active {
		return nil
	}
	return a.start()
}

// Restart starts advertising again after a connection ended. The stack
// stops connectable advertising by itself when a peer connects.
func (a *Advertiser) Restart() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.stack.StopAdvertising(); err != nil {
		a.log.Debugf("stop before restart: %v", err)
	}
	a.active = false
	return a.start()
}

func (a *Advertiser) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.active {
		return nil
	}
	if err := a.stack.StopAdvertising(); err != nil {
		return errors.Wrap(err, "advertising failed to stop")
	}
	a.active = false
	a.log.Info("advertising stopped")
	return nil
}

func (a *Advertiser) start() error {
	if err := a.stack.StartAdvertising(a.packet.Bytes()); err != nil {
		return errors.Wrap(err, "advertising failed to start")
	}
	a.active = true
	a.log.Infof("advertising as %q", a.packet.LocalName())
	return nil
}
