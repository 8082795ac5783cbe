package smp

import (
	"fmt"

	"github.com/rigado/blesec"
)

// SMP IO capability values carried in Pairing Request / Response.
const (
	IoCapDisplayOnly     = 0x00
	IoCapDisplayYesNo    = 0x01
	IoCapKeyboardOnly    = 0x02
	IoCapNoInputNoOutput = 0x03
	IoCapKeyboardDisplay = 0x04
	IoCapsReservedStart  = 0x05
)

// ioCapFor maps the configured capability onto the value the stack
// advertises.
var ioCapFor = map[blesec.IOCapability]byte{
	blesec.IOCapJustWorks: IoCapNoInputNoOutput,
	blesec.IOCapDisplay:   IoCapDisplayOnly,
	blesec.IOCapConfirm:   IoCapDisplayYesNo,
}

// IoCap returns the SMP IO capability for a configured capability.
func IoCap(c blesec.IOCapability) (byte, error) {
	v, ok := ioCapFor[c]
	if !ok {
		return 0, fmt.Errorf("unknown io capability %v", c)
	}
	return v, nil
}

const (
	justWorks = iota
	numericComp
	passkey
)

// Core spec v5.0 Vol 3, Part H, 2.3.5.1
// Tables 2.6, 2.7, and 2.8, indexed [responder][initiator]
var ioCapsTableSC = [][]int{
	{justWorks, justWorks, passkey, justWorks, passkey},
	{justWorks, numericComp, passkey, justWorks, numericComp},
	{passkey, passkey, passkey, justWorks, passkey},
	{justWorks, justWorks, justWorks, justWorks, justWorks},
	{passkey, numericComp, passkey, justWorks, numericComp},
}

var ioCapsTableLegacy = [][]int{
	{justWorks, justWorks, passkey, justWorks, passkey},
	{justWorks, justWorks, passkey, justWorks, passkey},
	{passkey, passkey, passkey, justWorks, passkey},
	{justWorks, justWorks, justWorks, justWorks, justWorks},
	{passkey, passkey, passkey, justWorks, passkey},
}

// PairingMethod picks the association model from the responder's point of
// view (this device is always the responder). mitm is true when either side
// requested MITM protection.
func PairingMethod(local, remote byte, secure, mitm bool) (blesec.PairingMethod, error) {
	if local >= IoCapsReservedStart || remote >= IoCapsReservedStart {
		return blesec.MethodJustWorks, fmt.Errorf("invalid io capabilities: local %x remote %x", local, remote)
	}

	if !mitm {
		return blesec.MethodJustWorks, nil
	}

	table := ioCapsTableSC
	if !secure {
		table = ioCapsTableLegacy
	}

	switch table[local][remote] {
	case numericComp:
		return blesec.MethodPasskeyConfirm, nil
	case passkey:
		if displays(local, remote) {
			return blesec.MethodPasskeyDisplay, nil
		}
		return blesec.MethodPasskeyEntry, nil
	default:
		return blesec.MethodJustWorks, nil
	}
}

// displays reports whether the local side shows the passkey in a passkey
// entry exchange.
func displays(local, remote byte) bool {
	switch local {
	case IoCapDisplayOnly, IoCapDisplayYesNo:
		return true
	case IoCapKeyboardDisplay:
		return remote == IoCapKeyboardOnly
	}
	return false
}

// LevelFor is the security level a completed pairing yields.
func LevelFor(m blesec.PairingMethod, secure bool) blesec.SecurityLevel {
	switch {
	case !m.Authenticated():
		return blesec.SecurityEncrypted
	case secure:
		return blesec.SecurityLESecure
	default:
		return blesec.SecurityAuthenticated
	}
}
