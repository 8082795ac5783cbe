package smp

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/rigado/blesec"
)

// MaxPasskey is the largest six digit passkey.
const MaxPasskey = 999999

// GeneratePasskey returns a uniformly distributed passkey in 0..999999.
func GeneratePasskey() (uint32, error) {
	b := make([]byte, 4)
	// rejection sampling keeps the distribution flat
	limit := uint32(0xffffffff - (0xffffffff % (MaxPasskey + 1)))
	for {
		if _, err := rand.Read(b); err != nil {
			return 0, err
		}
		v := binary.LittleEndian.Uint32(b)
		if v < limit {
			return v % (MaxPasskey + 1), nil
		}
	}
}

// Nonce returns a 16 byte random value.
func Nonce() ([]byte, error) {
	r := make([]byte, 16)
	if _, err := rand.Read(r); err != nil {
		return nil, err
	}
	return r, nil
}

// GenerateIRK returns a random identity resolving key (little endian).
func GenerateIRK() ([]byte, error) {
	return Nonce()
}

// GenerateRPA derives a fresh resolvable private address from irk.
func GenerateRPA(irk []byte) (blesec.Addr, error) {
	var a blesec.Addr
	prand := make([]byte, 3)
	if _, err := rand.Read(prand); err != nil {
		return a, err
	}
	// little endian: the top two bits of the most significant byte are 0b01
	prand[2] = (prand[2] & 0x3f) | 0x40

	hash, err := ah(irk, prand)
	if err != nil {
		return a, err
	}

	// Addr is most significant byte first: prand || hash
	copy(a[0:3], swapBuf(prand))
	copy(a[3:6], swapBuf(hash))
	return a, nil
}

// ResolveRPA reports whether a was generated from irk.
func ResolveRPA(irk []byte, a blesec.Addr) bool {
	if len(irk) != 16 || !a.Resolvable() {
		return false
	}

	prand := swapBuf(a[0:3])
	hash, err := ah(irk, prand)
	if err != nil {
		return false
	}

	return string(swapBuf(hash)) == string(a[3:6])
}
