package blesec

// DeviceOption is implemented by the device to allow configuration options.
type DeviceOption interface {
	SetLogger(Logger) error
	SetBondStore(BondStore) error
	SetServiceInit(func() error) error
	SetSettingsLoad(func() error) error
	SetPasskeyDisplay(PasskeyDisplay) error
	SetQueueDepth(int) error
}

// An Option is a configuration function, which configures the device.
type Option func(DeviceOption) error

// OptLogger replaces the package logger for one device.
func OptLogger(l Logger) Option {
	return func(opt DeviceOption) error {
		return opt.SetLogger(l)
	}
}

// OptBondStore sets where bonds are kept. The same store should be handed to
// the stack so that completed pairings are persisted in it.
func OptBondStore(bs BondStore) Option {
	return func(opt DeviceOption) error {
		return opt.SetBondStore(bs)
	}
}

// OptServiceInit registers the GATT service setup run once before
// advertising starts.
func OptServiceInit(fn func() error) Option {
	return func(opt DeviceOption) error {
		return opt.SetServiceInit(fn)
	}
}

// OptSettingsLoad registers the persisted settings loader run at boot.
func OptSettingsLoad(fn func() error) Option {
	return func(opt DeviceOption) error {
		return opt.SetSettingsLoad(fn)
	}
}

// OptPasskeyDisplay sets the collaborator that shows passkeys.
func OptPasskeyDisplay(fn PasskeyDisplay) Option {
	return func(opt DeviceOption) error {
		return opt.SetPasskeyDisplay(fn)
	}
}

// OptQueueDepth overrides the work queue depth.
func OptQueueDepth(depth int) Option {
	return func(opt DeviceOption) error {
		return opt.SetQueueDepth(depth)
	}
}
