package smp

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

var errNoPeer = errors.New("exchange: peer key and nonce required")

// Exchange is one side of an LE Secure Connections pairing. It holds the key
// agreement, the responder commitment, the numeric comparison value and the
// DHKey checks that close authentication stage 2. All values are little
// endian.
type Exchange struct {
	initiator bool

	keys  *keyPair
	nonce []byte
	addr  []byte
	ioCap []byte

	peerKey   []byte
	peerNonce []byte
	peerAddr  []byte
	peerIOCap []byte

	dhKey  []byte
	macKey []byte
	ltk    []byte
}

// NewExchange starts a pairing for the device at addr (6 byte address then
// the type byte) announcing ioCap (IO capability, OOB flag, AuthReq).
func NewExchange(initiator bool, addr, ioCap []byte) (*Exchange, error) {
	if len(addr) != 7 || len(ioCap) != 3 {
		return nil, errors.New("exchange: address or io capability length")
	}

	keys, err := newKeyPair()
	if err != nil {
		return nil, err
	}
	nonce, err := Nonce()
	if err != nil {
		return nil, err
	}

	return &Exchange{
		initiator: initiator,
		keys:      keys,
		nonce:     nonce,
		addr:      addr,
		ioCap:     ioCap,
	}, nil
}

// PublicKey is the X || Y key sent to the peer.
func (x *Exchange) PublicKey() []byte {
	return x.keys.xy
}

func (x *Exchange) Nonce() []byte {
	return x.nonce
}

// SetPeer records the peer's public key, address and io capability and
// computes the DHKey.
func (x *Exchange) SetPeer(key, addr, ioCap []byte) error {
	if len(addr) != 7 || len(ioCap) != 3 {
		return errors.New("exchange: peer address or io capability length")
	}

	dh, err := x.keys.dhKey(key)
	if err != nil {
		return err
	}

	x.peerKey, x.peerAddr, x.peerIOCap, x.dhKey = key, addr, ioCap, dh
	return nil
}

// Commitment is Cb = f4(PKbx, PKax, Nb, 0), sent by the responder before the
// nonces are revealed.
func (x *Exchange) Commitment() ([]byte, error) {
	if x.initiator {
		return nil, errors.New("exchange: only the responder commits")
	}
	if x.peerKey == nil {
		return nil, errNoPeer
	}
	return f4(x.keys.x(), x.peerKey[:32], x.nonce, 0)
}

// SetPeerNonce records the peer's nonce. The initiator checks it against the
// responder's commitment c; the responder passes nil.
func (x *Exchange) SetPeerNonce(n, c []byte) error {
	if len(n) != 16 {
		return errors.Errorf("exchange: nonce length %d", len(n))
	}
	if x.peerKey == nil {
		return errNoPeer
	}

	if x.initiator {
		exp, err := f4(x.peerKey[:32], x.keys.x(), n, 0)
		if err != nil {
			return err
		}
		if !bytes.Equal(exp, c) {
			return errors.Errorf("confirm mismatch, exp %x got %x", exp, c)
		}
	}

	x.peerNonce = n
	return nil
}

// Compare is the six digit value both sides show for numeric comparison,
// g2(PKax, PKbx, Na, Nb).
func (x *Exchange) Compare() (uint32, error) {
	if x.peerKey == nil || x.peerNonce == nil {
		return 0, errNoPeer
	}
	pka, pkb := x.ab(x.keys.x(), x.peerKey[:32])
	na, nb := x.ab(x.nonce, x.peerNonce)
	return g2(pka, pkb, na, nb)
}

// DHKeyCheck derives the MacKey and LTK and returns this side's check:
// Ea = f6(MacKey, Na, Nb, rb, IOcapA, A, B) from the initiator and
// Eb = f6(MacKey, Nb, Na, ra, IOcapB, B, A) from the responder. passkey is
// zero unless a passkey method was used.
func (x *Exchange) DHKeyCheck(passkey uint32) ([]byte, error) {
	if err := x.derive(); err != nil {
		return nil, err
	}
	return f6(x.macKey, x.nonce, x.peerNonce, passkeyR(passkey), x.ioCap, x.addr, x.peerAddr)
}

// VerifyDHKeyCheck checks the value the peer sent against the one derived
// locally.
func (x *Exchange) VerifyDHKeyCheck(passkey uint32, check []byte) error {
	if err := x.derive(); err != nil {
		return err
	}

	exp, err := f6(x.macKey, x.peerNonce, x.nonce, passkeyR(passkey), x.peerIOCap, x.peerAddr, x.addr)
	if err != nil {
		return err
	}
	if !bytes.Equal(exp, check) {
		return errors.Errorf("dhkey check mismatch, exp %x got %x", exp, check)
	}
	return nil
}

// LTK is nil until a DHKey check has been computed or verified.
func (x *Exchange) LTK() []byte {
	return x.ltk
}

// derive runs MacKey || LTK = f5(DHKey, Na, Nb, A, B) once.
func (x *Exchange) derive() error {
	if x.ltk != nil {
		return nil
	}
	if x.peerKey == nil || x.peerNonce == nil {
		return errNoPeer
	}

	na, nb := x.ab(x.nonce, x.peerNonce)
	a, b := x.ab(x.addr, x.peerAddr)
	mk, ltk, err := f5(x.dhKey, na, nb, a, b)
	if err != nil {
		return err
	}
	x.macKey, x.ltk = mk, ltk
	return nil
}

// ab orders a local and peer value as initiator, responder.
func (x *Exchange) ab(local, peer []byte) ([]byte, []byte) {
	if x.initiator {
		return local, peer
	}
	return peer, local
}

func passkeyR(passkey uint32) []byte {
	r := make([]byte, 16)
	binary.LittleEndian.PutUint32(r, passkey)
	return r
}
