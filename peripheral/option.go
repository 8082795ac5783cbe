package peripheral

import (
	"github.com/pkg/errors"
	"github.com/rigado/blesec"
)

// SetLogger replaces the device logger.
func (d *Device) SetLogger(l blesec.Logger) error {
	if l == nil {
		return errors.New("nil logger")
	}
	d.log = l
	return nil
}

// SetBondStore overrides the file store built from the configuration.
func (d *Device) SetBondStore(bs blesec.BondStore) error {
	if bs == nil {
		return errors.New("nil bond store")
	}
	d.bonds = bs
	return nil
}

// SetServiceInit registers the GATT service setup.
func (d *Device) SetServiceInit(fn func() error) error {
	d.serviceInit = fn
	return nil
}

// SetSettingsLoad registers the persisted settings loader.
func (d *Device) SetSettingsLoad(fn func() error) error {
	d.settingsLoad = fn
	return nil
}

// SetPasskeyDisplay sets the passkey display collaborator.
func (d *Device) SetPasskeyDisplay(fn blesec.PasskeyDisplay) error {
	d.display = fn
	return nil
}

// SetQueueDepth overrides the work queue depth.
func (d *Device) SetQueueDepth(depth int) error {
	if depth <= 0 {
		return errors.Errorf("invalid queue depth %d", depth)
	}
	d.depth = depth
	return nil
}
