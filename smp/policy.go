package smp

import (
	"fmt"

	"github.com/rigado/blesec"
)

// Policy is one IO capability variant. Exactly one is selected when the
// device is configured.
type Policy interface {
	Capability() blesec.IOCapability

	// Supports reports whether the policy can take part in method.
	Supports(m blesec.PairingMethod) bool

	// AutoConfirm reports whether method completes without the user.
	AutoConfirm(m blesec.PairingMethod) bool
}

// NewPolicy returns the policy for a configured capability.
func NewPolicy(c blesec.IOCapability) (Policy, error) {
	switch c {
	case blesec.IOCapJustWorks:
		return justWorksPolicy{}, nil
	case blesec.IOCapDisplay:
		return displayPolicy{}, nil
	case blesec.IOCapConfirm:
		return confirmPolicy{}, nil
	}
	return nil, fmt.Errorf("no pairing policy for %v", c)
}

// justWorksPolicy has no input and no output: encryption only.
type justWorksPolicy struct{}

func (justWorksPolicy) Capability() blesec.IOCapability { return blesec.IOCapJustWorks }

func (justWorksPolicy) Supports(m blesec.PairingMethod) bool {
	return m == blesec.MethodJustWorks
}

func (justWorksPolicy) AutoConfirm(m blesec.PairingMethod) bool { return true }

// displayPolicy shows a passkey the peer types in.
type displayPolicy struct{}

func (displayPolicy) Capability() blesec.IOCapability { return blesec.IOCapDisplay }

func (displayPolicy) Supports(m blesec.PairingMethod) bool {
	return m == blesec.MethodJustWorks || m == blesec.MethodPasskeyDisplay
}

func (displayPolicy) AutoConfirm(m blesec.PairingMethod) bool { return true }

// confirmPolicy shows a passkey and asks the user whether it matches.
type confirmPolicy struct{}

func (confirmPolicy) Capability() blesec.IOCapability { return blesec.IOCapConfirm }

func (confirmPolicy) Supports(m blesec.PairingMethod) bool {
	return m != blesec.MethodPasskeyEntry
}

func (confirmPolicy) AutoConfirm(m blesec.PairingMethod) bool {
	return m != blesec.MethodPasskeyConfirm
}
