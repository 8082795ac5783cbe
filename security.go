package blesec

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// SecurityLevel is the link security tier (mode 1 levels 1-4).
type SecurityLevel int

const (
	SecurityNone          SecurityLevel = 1 // no encryption
	SecurityEncrypted     SecurityLevel = 2 // encryption, no MITM protection
	SecurityAuthenticated SecurityLevel = 3 // encryption with MITM protection
	SecurityLESecure      SecurityLevel = 4 // LE Secure Connections with MITM protection
)

var securityLevelStrings = map[SecurityLevel]string{
	SecurityNone:          "L1 none",
	SecurityEncrypted:     "L2 encrypted",
	SecurityAuthenticated: "L3 authenticated",
	SecurityLESecure:      "L4 le secure",
}

func (l SecurityLevel) String() string {
	if s, ok := securityLevelStrings[l]; ok {
		return s
	}
	return fmt.Sprintf("L%d invalid", int(l))
}

func (l SecurityLevel) Valid() bool {
	return l >= SecurityNone && l <= SecurityLESecure
}

// SecurityErr is the status the stack reports with a security change.
type SecurityErr int

const (
	SecurityErrSuccess SecurityErr = iota
	SecurityErrAuthFail
	SecurityErrPinOrKeyMissing
	SecurityErrOOBNotAvailable
	SecurityErrAuthRequirement
	SecurityErrPairNotSupported
	SecurityErrPairNotAllowed
	SecurityErrInvalidParam
	SecurityErrUnspecified
)

var securityErrStrings = []string{
	"success",
	"authentication failure",
	"pin or key missing",
	"oob not available",
	"authentication requirements",
	"pairing not supported",
	"pairing not allowed",
	"invalid parameters",
	"unspecified",
}

func (e SecurityErr) String() string {
	if int(e) >= 0 && int(e) < len(securityErrStrings) {
		return securityErrStrings[e]
	}
	return fmt.Sprintf("security err %d", int(e))
}

// IOCapability selects the pairing policy the device implements.
type IOCapability int

const (
	IOCapJustWorks IOCapability = iota // NoInputNoOutput
	IOCapDisplay                       // DisplayOnly
	IOCapConfirm                       // DisplayYesNo
)

var ioCapStrings = map[IOCapability]string{
	IOCapJustWorks: "JustWorks",
	IOCapDisplay:   "Display",
	IOCapConfirm:   "Confirm",
}

func (c IOCapability) String() string {
	if s, ok := ioCapStrings[c]; ok {
		return s
	}
	return fmt.Sprintf("iocap(%d)", int(c))
}

// ParseIOCapability accepts the configuration names, case-insensitive.
func ParseIOCapability(s string) (IOCapability, error) {
	for c, name := range ioCapStrings {
		if strings.EqualFold(s, name) {
			return c, nil
		}
	}
	return 0, errors.Errorf("invalid io capability: %s", s)
}

// PairingMethod is the association model the stack negotiated.
type PairingMethod int

const (
	MethodJustWorks PairingMethod = iota
	MethodPasskeyDisplay
	MethodPasskeyConfirm
	MethodPasskeyEntry
)

var pairingMethodStrings = map[PairingMethod]string{
	MethodJustWorks:      "just works",
	MethodPasskeyDisplay: "passkey display",
	MethodPasskeyConfirm: "passkey confirm",
	MethodPasskeyEntry:   "passkey entry",
}

func (m PairingMethod) String() string {
	if s, ok := pairingMethodStrings[m]; ok {
		return s
	}
	return fmt.Sprintf("method(%d)", int(m))
}

// Authenticated reports whether the method provides MITM protection.
func (m PairingMethod) Authenticated() bool {
	return m != MethodJustWorks
}

// Handle is a connection handle assigned by the stack.
type Handle uint16

// HCI disconnect reasons used by this package.
const (
	ReasonAuthFailure       uint8 = 0x05
	ReasonRemoteUserTerm    uint8 = 0x13
	ReasonLocalHostTerm     uint8 = 0x16
	ReasonLimitedResources  uint8 = 0x0d
	ReasonConnectionTimeout uint8 = 0x08
)

var reasonStrings = map[uint8]string{
	ReasonAuthFailure:       "auth failure",
	ReasonRemoteUserTerm:    "remote user terminated",
	ReasonLocalHostTerm:     "local host terminated",
	ReasonLimitedResources:  "limited resources",
	ReasonConnectionTimeout: "connection timeout",
}

// ReasonString names an HCI disconnect reason.
func ReasonString(r uint8) string {
	if s, ok := reasonStrings[r]; ok {
		return s
	}
	return fmt.Sprintf("reason 0x%02x", r)
}
