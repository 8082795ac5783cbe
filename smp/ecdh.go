package smp

import (
	"bytes"
	"crypto"
	"crypto/elliptic"
	"crypto/rand"

	"github.com/pkg/errors"
	"github.com/wsddn/go-ecdh"
)

var p256 = ecdh.NewEllipticECDH(elliptic.P256())

// keyPair is a P-256 key pair. Public keys travel as 64 byte X || Y with each
// coordinate little endian, as in the Pairing Public Key PDU.
type keyPair struct {
	public  crypto.PublicKey
	private crypto.PrivateKey
	xy      []byte
}

func newKeyPair() (*keyPair, error) {
	prv, pub, err := p256.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "p256 key")
	}
	return &keyPair{public: pub, private: prv, xy: encodePoint(pub)}, nil
}

// x is the coordinate f4 and g2 take.
func (k *keyPair) x() []byte {
	return k.xy[:32]
}

// dhKey computes the shared secret with remote, an X || Y public key.
func (k *keyPair) dhKey(remote []byte) ([]byte, error) {
	if bytes.Equal(remote, k.xy) {
		return nil, errors.New("remote public key matches local public key")
	}
	pub, err := decodePoint(remote)
	if err != nil {
		return nil, err
	}
	s, err := p256.GenerateSharedSecret(k.private, pub)
	if err != nil {
		return nil, errors.Wrap(err, "dhkey")
	}
	return swapBuf(s), nil
}

// encodePoint drops the uncompressed point header and swaps each coordinate.
func encodePoint(k crypto.PublicKey) []byte {
	b := p256.Marshal(k)[1:]
	return append(swapBuf(b[:32]), swapBuf(b[32:])...)
}

func decodePoint(xy []byte) (crypto.PublicKey, error) {
	if len(xy) != 64 {
		return nil, errors.Errorf("public key length %d", len(xy))
	}

	r := make([]byte, 0, 65)
	r = append(r, 0x04)
	r = append(r, swapBuf(xy[:32])...)
	r = append(r, swapBuf(xy[32:])...)

	k, ok := p256.Unmarshal(r)
	if !ok {
		return nil, errors.New("public key is not a P-256 point")
	}
	return k, nil
}
