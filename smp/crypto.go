package smp

import (
	"crypto/aes"
	"encoding/binary"

	"github.com/aead/cmac"
	"github.com/pkg/errors"
)

// Inputs and outputs of the toolbox functions below are little endian, the
// order they travel in SMP PDUs, unless stated otherwise. Exchange is the
// entry point for pairing; ah backs the private address helpers.

// f4 computes the LE Secure Connections confirm value.
func f4(u, v, x []byte, z uint8) ([]byte, error) {
	if len(u) != 32 || len(v) != 32 || len(x) != 16 {
		return nil, errors.New("f4: length error")
	}

	m := make([]byte, 0, 65)
	m = append(m, z)
	m = append(m, v...)
	m = append(m, u...)

	return aesCMAC(x, m)
}

// f5 derives the MacKey and LTK from the DHKey. a1 and a2 are the 7 byte
// address || type values of the initiator and responder.
func f5(w, n1, n2, a1, a2 []byte) ([]byte, []byte, error) {
	switch {
	case len(w) != 32:
		return nil, nil, errors.New("f5: length error w")
	case len(n1) != 16:
		return nil, nil, errors.New("f5: length error n1")
	case len(n2) != 16:
		return nil, nil, errors.New("f5: length error n2")
	case len(a1) != 7:
		return nil, nil, errors.New("f5: length error a1")
	case len(a2) != 7:
		return nil, nil, errors.New("f5: length error a2")
	}

	btle := []byte{0x65, 0x6c, 0x74, 0x62}
	salt := []byte{0xbe, 0x83, 0x60, 0x5a, 0xdb, 0x0b, 0x37, 0x60,
		0x38, 0xa5, 0xf5, 0xaa, 0x91, 0x83, 0x88, 0x6c}
	length := []byte{0x00, 0x01}

	t, err := aesCMAC(salt, w)
	if err != nil {
		return nil, nil, errors.Wrap(err, "f5: key T")
	}

	m := make([]byte, 0, 53)
	m = append(m, length...)
	m = append(m, a2...)
	m = append(m, a1...)
	m = append(m, n2...)
	m = append(m, n1...)
	m = append(m, btle...)
	m = append(m, 0x00)

	macKey, err := aesCMAC(t, m)
	if err != nil {
		return nil, nil, errors.Wrap(err, "f5: mackey")
	}

	// counter 1 selects the LTK
	m[52] = 0x01

	ltk, err := aesCMAC(t, m)
	if err != nil {
		return nil, nil, errors.Wrap(err, "f5: ltk")
	}

	return macKey, ltk, nil
}

// f6 computes the DHKey check value.
func f6(w, n1, n2, r, ioCap, a1, a2 []byte) ([]byte, error) {
	if len(w) != 16 || len(n1) != 16 || len(n2) != 16 || len(r) != 16 || len(ioCap) != 3 || len(a1) != 7 || len(a2) != 7 {
		return nil, errors.New("f6: length error")
	}

	m := make([]byte, 0, 65)
	m = append(m, a2...)
	m = append(m, a1...)
	m = append(m, ioCap...)
	m = append(m, r...)
	m = append(m, n2...)
	m = append(m, n1...)

	return aesCMAC(w, m)
}

// g2 computes the six digit numeric comparison value.
func g2(u, v, x, y []byte) (uint32, error) {
	if len(u) != 32 || len(v) != 32 || len(x) != 16 || len(y) != 16 {
		return 0, errors.New("g2: length error")
	}

	m := make([]byte, 0, 80)
	m = append(m, y...)
	m = append(m, v...)
	m = append(m, u...)

	h, err := aesCMAC(x, m)
	if err != nil {
		return 0, err
	}

	out := binary.LittleEndian.Uint32(h[:4])
	return out % 1000000, nil
}

// ah is the random address hash function: e(k, r') mod 2^24.
func ah(k, r []byte) ([]byte, error) {
	if len(k) != 16 || len(r) != 3 {
		return nil, errors.New("ah: length error")
	}

	// r' = padding || r, big endian for the cipher
	rp := make([]byte, 16)
	copy(rp[13:], swapBuf(r))

	out, err := aes128(swapBuf(k), rp)
	if err != nil {
		return nil, err
	}

	return swapBuf(out[13:]), nil
}

func aesCMAC(key, msg []byte) ([]byte, error) {
	mCipher, err := aes.NewCipher(swapBuf(key))
	if err != nil {
		return nil, err
	}

	mMac, err := cmac.New(mCipher)
	if err != nil {
		return nil, err
	}

	mMac.Write(swapBuf(msg))

	return swapBuf(mMac.Sum(nil)), nil
}

func aes128(key, msg []byte) ([]byte, error) {
	mCipher, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 16)
	mCipher.Encrypt(out, msg)
	return out, nil
}

func swapBuf(in []byte) []byte {
	a := make([]byte, 0, len(in))
	a = append(a, in...)
	for i := len(a)/2 - 1; i >= 0; i-- {
		opp := len(a) - 1 - i
		a[i], a[opp] = a[opp], a[i]
	}

	return a
}
