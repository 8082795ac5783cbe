package adv

import (
	"encoding/hex"
	"strings"

	"github.com/pkg/errors"
)

// UUID128 is a 128-bit service UUID in the little endian order it is
// advertised in.
type UUID128 [16]byte

// ParseUUID128 accepts the canonical 8-4-4-4-12 form, dashes optional.
func ParseUUID128(s string) (UUID128, error) {
	var u UUID128
	b, err := hex.DecodeString(strings.Replace(s, "-", "", -1))
	if err != nil {
		return u, errors.Wrapf(err, "uuid %q", s)
	}
	if len(b) != len(u) {
		return u, errors.Errorf("uuid %q: want 16 bytes, got %d", s, len(b))
	}
	for i := range b {
		u[i] = b[len(b)-1-i]
	}
	return u, nil
}

func (u UUID128) String() string {
	b := make([]byte, len(u))
	for i := range u {
		b[i] = u[len(u)-1-i]
	}
	h := hex.EncodeToString(b)
	return h[:8] + "-" + h[8:12] + "-" + h[12:16] + "-" + h[16:20] + "-" + h[20:]
}
