package blesec

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// AddrType is the LE address type reported with a connection.
type AddrType uint8

const (
	AddrPublic AddrType = 0x00
	AddrRandom AddrType = 0x01
)

func (t AddrType) String() string {
	switch t {
	case AddrPublic:
		return "public"
	case AddrRandom:
		return "random"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// ParseAddrType accepts "public" or "random".
func ParseAddrType(s string) (AddrType, error) {
	switch strings.ToLower(s) {
	case "public", "":
		return AddrPublic, nil
	case "random":
		return AddrRandom, nil
	}
	return 0, errors.Errorf("invalid address type: %s", s)
}

// Addr is a device address, most significant byte first (the order it is
// printed in).
type Addr [6]byte

// ParseAddr parses "aa:bb:cc:dd:ee:ff" (separators optional).
func ParseAddr(s string) (Addr, error) {
	var a Addr
	hexStr := strings.Replace(strings.ToLower(s), ":", "", -1)
	b, err := hex.DecodeString(hexStr)
	if err != nil {
		return a, errors.Wrapf(err, "invalid address %q", s)
	}
	if len(b) != len(a) {
		return a, errors.Errorf("invalid address %q: want 6 bytes, got %d", s, len(b))
	}
	copy(a[:], b)
	return a, nil
}

func (a Addr) String() string {
	parts := make([]string, len(a))
	for i, v := range a {
		parts[i] = fmt.Sprintf("%02x", v)
	}
	return strings.Join(parts, ":")
}

func (a Addr) Bytes() []byte {
	out := make([]byte, len(a))
	copy(out, a[:])
	return out
}

// Resolvable reports whether a random address is a resolvable private address
// (two most significant bits 0b01).
func (a Addr) Resolvable() bool {
	return a[0]&0xc0 == 0x40
}

// PeerIdentity identifies a remote device. It is a value type; the IRK is
// copied on the way in and out.
type PeerIdentity struct {
	addr     Addr
	addrType AddrType
	irk      []byte
}

func NewPeerIdentity(addr Addr, t AddrType) PeerIdentity {
	return PeerIdentity{addr: addr, addrType: t}
}

// ParsePeerIdentity parses an address string of a given type.
func ParsePeerIdentity(addr string, t AddrType) (PeerIdentity, error) {
	a, err := ParseAddr(addr)
	if err != nil {
		return PeerIdentity{}, err
	}
	return NewPeerIdentity(a, t), nil
}

// WithIRK returns a copy associated with the identity resolving key irk.
func (p PeerIdentity) WithIRK(irk []byte) PeerIdentity {
	if len(irk) == 0 {
		p.irk = nil
		return p
	}
	p.irk = append([]byte(nil), irk...)
	return p
}

func (p PeerIdentity) Addr() Addr         { return p.addr }
func (p PeerIdentity) AddrType() AddrType { return p.addrType }

func (p PeerIdentity) IRK() []byte {
	if p.irk == nil {
		return nil
	}
	return append([]byte(nil), p.irk...)
}

// Key is the stable string a bond is stored under.
func (p PeerIdentity) Key() string {
	return p.addr.String() + "/" + p.addrType.String()
}

// Equal compares address and address type; the IRK is an association, not
// part of the identity.
func (p PeerIdentity) Equal(o PeerIdentity) bool {
	return p.addr == o.addr && p.addrType == o.addrType
}

func (p PeerIdentity) String() string {
	return p.Key()
}
