package sim

import (
	"github.com/pkg/errors"
	"github.com/rigado/blesec"
	"github.com/rigado/blesec/smp"
)

// pairing holds both ends of one LE pairing. The peer is the initiator (a),
// the simulated controller the responder (b).
type pairing struct {
	method  blesec.PairingMethod
	secure  bool
	passkey uint32

	// typed is the passkey the peer enters for a displayed key
	typed uint32

	a *smp.Exchange
	b *smp.Exchange
}

func newPairing(p Peer, local blesec.PeerIdentity, localCap byte, m blesec.PairingMethod) (*pairing, error) {
	pr := &pairing{
		method: m,
		secure: p.SecureConnections,
	}
	if !pr.secure {
		return pr, pr.passkeyFor(p)
	}

	addrA := addrLE(p.addr().Addr(), p.addr().AddrType())
	addrB := addrLE(local.Addr(), local.AddrType())
	capA := []byte{p.IOCap, 0x00, authReq(p)}
	capB := []byte{localCap, 0x00, 0x0d}

	var err error
	if pr.a, err = smp.NewExchange(true, addrA, capA); err != nil {
		return nil, err
	}
	if pr.b, err = smp.NewExchange(false, addrB, capB); err != nil {
		return nil, err
	}

	// public key exchange, then the responder commits to its nonce before
	// the nonces are swapped
	if err := pr.a.SetPeer(pr.b.PublicKey(), addrB, capB); err != nil {
		return nil, errors.Wrap(err, "initiator")
	}
	if err := pr.b.SetPeer(pr.a.PublicKey(), addrA, capA); err != nil {
		return nil, errors.Wrap(err, "responder")
	}
	cb, err := pr.b.Commitment()
	if err != nil {
		return nil, err
	}
	if err := pr.a.SetPeerNonce(pr.b.Nonce(), cb); err != nil {
		return nil, errors.Wrap(err, "initiator")
	}
	if err := pr.b.SetPeerNonce(pr.a.Nonce(), nil); err != nil {
		return nil, errors.Wrap(err, "responder")
	}

	return pr, pr.passkeyFor(p)
}

func (pr *pairing) passkeyFor(p Peer) error {
	var err error
	switch {
	case p.FixedPasskey != nil:
		pr.passkey = *p.FixedPasskey
	case pr.method == blesec.MethodPasskeyConfirm && pr.secure:
		// Va and Vb, which the user compares on both screens
		var va uint32
		if va, err = pr.a.Compare(); err != nil {
			return err
		}
		if pr.passkey, err = pr.b.Compare(); err != nil {
			return err
		}
		if va != pr.passkey {
			return errors.Errorf("comparison values differ: %06d %06d", va, pr.passkey)
		}
	case pr.method == blesec.MethodPasskeyDisplay, pr.method == blesec.MethodPasskeyEntry:
		if pr.passkey, err = smp.GeneratePasskey(); err != nil {
			return err
		}
	}

	pr.typed = pr.passkey
	if p.TypedPasskey != nil {
		pr.typed = *p.TypedPasskey
	}
	return nil
}

// ltk runs the DHKey checks of authentication stage 2 in both directions and
// returns the long term key.
func (pr *pairing) ltk() ([]byte, error) {
	if !pr.secure {
		// legacy keys are not derived from the exchange
		return smp.Nonce()
	}

	// ra and rb are the passkey for passkey methods, zero otherwise
	var ra, rb uint32
	if pr.method == blesec.MethodPasskeyDisplay || pr.method == blesec.MethodPasskeyEntry {
		ra, rb = pr.typed, pr.passkey
	}

	ea, err := pr.a.DHKeyCheck(ra)
	if err != nil {
		return nil, err
	}
	if err := pr.b.VerifyDHKeyCheck(rb, ea); err != nil {
		return nil, errors.Wrap(err, "responder")
	}

	eb, err := pr.b.DHKeyCheck(rb)
	if err != nil {
		return nil, err
	}
	if err := pr.a.VerifyDHKeyCheck(ra, eb); err != nil {
		return nil, errors.Wrap(err, "initiator")
	}

	return pr.b.LTK(), nil
}

func (pr *pairing) level() blesec.SecurityLevel {
	return smp.LevelFor(pr.method, pr.secure)
}

func authReq(p Peer) byte {
	var v byte
	if p.Bonding {
		v |= 0x01
	}
	if p.MITM {
		v |= 0x04
	}
	if p.SecureConnections {
		v |= 0x08
	}
	return v
}
