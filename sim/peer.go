package sim

import (
	"github.com/rigado/blesec"
	"github.com/rigado/blesec/smp"
)

// Peer describes the central that connects to the simulated stack.
type Peer struct {
	Identity blesec.PeerIdentity

	// RPA, when set, is the resolvable private address the peer connects
	// from instead of its identity address.
	RPA *blesec.Addr

	// IOCap is the SMP IO capability of the peer (smp.IoCap* values).
	IOCap             byte
	SecureConnections bool
	MITM              bool
	Bonding           bool

	// DisconnectOnCancel drops the link with an authentication failure when
	// pairing is cancelled, as most centrals do.
	DisconnectOnCancel bool

	// FixedPasskey replaces the generated passkey or comparison value.
	FixedPasskey *uint32

	// TypedPasskey is what the peer enters for a displayed passkey. A value
	// that differs from the display fails the DHKey check.
	TypedPasskey *uint32
}

// DefaultPeer is a phone: display with yes/no, secure connections, bonding.
func DefaultPeer(id blesec.PeerIdentity) Peer {
	return Peer{
		Identity:           id,
		IOCap:              smp.IoCapDisplayYesNo,
		SecureConnections:  true,
		MITM:               true,
		Bonding:            true,
		DisconnectOnCancel: true,
	}
}

// addr is the address the peer is seen with over the air.
func (p Peer) addr() blesec.PeerIdentity {
	if p.RPA == nil {
		return p.Identity
	}
	return blesec.NewPeerIdentity(*p.RPA, blesec.AddrRandom)
}

// addrLE is address || type in the little endian order the toolbox expects.
func addrLE(a blesec.Addr, t blesec.AddrType) []byte {
	out := make([]byte, 0, 7)
	for i := len(a) - 1; i >= 0; i-- {
		out = append(out, a[i])
	}
	return append(out, byte(t))
}
