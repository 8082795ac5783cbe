// Package adv builds the advertising payload and keeps the device
// advertising while it is idle.
package adv

import (
	"fmt"

	"github.com/pkg/errors"
)

// MaxEIRPacketLength is the maximum legacy advertising payload.
const MaxEIRPacketLength = 31

// AD types, CSS v6 Part A.
const (
	typeFlags            = 0x01
	typeAllUUID128       = 0x07
	typeShortName        = 0x08
	typeCompleteName     = 0x09
	typeTxPower          = 0x0a
	typeManufacturerData = 0xff
)

// Flags bits.
const (
	FlagLimitedDiscoverable = 0x01
	FlagGeneralDiscoverable = 0x02
	FlagBREDRNotSupported   = 0x04
)

var (
	ErrNotFit  = errors.New("field doesn't fit in the advertising payload")
	ErrInvalid = errors.New("invalid advertising field")
)

// Packet is an advertising payload of length/type/value records.
type Packet struct {
	b []byte
	m map[byte][]byte
}

// NewPacket returns a packet with fields appended in order.
func NewPacket(fields ...Field) (*Packet, error) {
	p := &Packet{b: make([]byte, 0, MaxEIRPacketLength)}
	for _, f := range fields {
		if err := f(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Parse decodes a received payload.
func Parse(b []byte) (*Packet, error) {
	if len(b) > MaxEIRPacketLength {
		return nil, ErrNotFit
	}

	m, err := decode(b)
	if err != nil {
		return nil, errors.Wrap(err, "pdu decode")
	}

	out := make([]byte, len(b))
	copy(out, b)
	return &Packet{b: out, m: m}, nil
}

// Bytes returns the bytes of the packet.
func (p *Packet) Bytes() []byte {
	return p.b
}

func (p *Packet) Len() int {
	return len(p.b)
}

// Field is an advertising field which can be appended to a packet.
type Field func(p *Packet) error

// Append appends a field to the packet. It returns ErrNotFit if the field
// doesn't fit into the packet, and leaves the packet intact.
func (p *Packet) Append(f Field) error {
	return f(p)
}

func (p *Packet) append(typ byte, b []byte) error {
	if p.Len()+1+1+len(b) > MaxEIRPacketLength {
		return ErrNotFit
	}
	p.b = append(p.b, byte(len(b)+1))
	p.b = append(p.b, typ)
	p.b = append(p.b, b...)

	if p.m == nil {
		p.m = map[byte][]byte{}
	}
	p.m[typ] = b
	return nil
}

func Flags(f byte) Field {
	return func(p *Packet) error {
		return p.append(typeFlags, []byte{f})
	}
}

// CompleteName is a complete local name.
func CompleteName(n string) Field {
	return func(p *Packet) error {
		if n == "" {
			return ErrInvalid
		}
		return p.append(typeCompleteName, []byte(n))
	}
}

// ShortName is a shortened local name.
func ShortName(n string) Field {
	return func(p *Packet) error {
		if n == "" {
			return ErrInvalid
		}
		return p.append(typeShortName, []byte(n))
	}
}

// AllUUID128 is the complete list of 128-bit service UUIDs.
func AllUUID128(u ...UUID128) Field {
	return func(p *Packet) error {
		if len(u) == 0 {
			return ErrInvalid
		}
		b := make([]byte, 0, 16*len(u))
		for _, v := range u {
			b = append(b, v[:]...)
		}
		return p.append(typeAllUUID128, b)
	}
}

// ManufacturerData is manufacturer specific data.
func ManufacturerData(id uint16, b []byte) Field {
	return func(p *Packet) error {
		d := append([]byte{uint8(id), uint8(id >> 8)}, b...)
		return p.append(typeManufacturerData, d)
	}
}

// Flags returns the flags of the packet.
func (p *Packet) Flags() (flags byte, present bool) {
	if b, ok := p.m[typeFlags]; ok && len(b) > 0 {
		return b[0], true
	}
	return 0, false
}

// LocalName returns the complete name, or the short name if that is all the
// packet carries.
func (p *Packet) LocalName() string {
	if b, ok := p.m[typeCompleteName]; ok {
		return string(b)
	}
	return string(p.m[typeShortName])
}

// TxPower returns the TxPower, if it presents.
func (p *Packet) TxPower() (power int, present bool) {
	if b, ok := p.m[typeTxPower]; ok && len(b) > 0 {
		return int(int8(b[0])), true
	}
	return 0, false
}

// UUIDs128 returns the complete list of 128-bit service UUIDs.
func (p *Packet) UUIDs128() []UUID128 {
	b := p.m[typeAllUUID128]
	var out []UUID128
	for ; len(b) >= 16; b = b[16:] {
		var u UUID128
		copy(u[:], b)
		out = append(out, u)
	}
	return out
}

// ManufacturerData returns the ManufacturerData field if it presents.
func (p *Packet) ManufacturerData() []byte {
	return p.m[typeManufacturerData]
}

func decode(pdu []byte) (map[byte][]byte, error) {
	if pdu == nil {
		return nil, fmt.Errorf("nil pdu")
	}

	m := make(map[byte][]byte)
	for i := 0; i < len(pdu); {
		// length @ offset 0, type @ offset 1, data follows
		length := int(pdu[i])
		if length == 0 {
			// early terminator, the rest is padding
			break
		}

		if i+length >= len(pdu) {
			return nil, fmt.Errorf("buffer overflow: want %v, have %v", i+length+1, len(pdu))
		}

		typ := pdu[i+1]
		data := pdu[i+2 : i+1+length]
		if typ == typeFlags && len(data) < 1 {
			return nil, fmt.Errorf("adv type %v: min length 1, have %v", typ, len(data))
		}
		m[typ] = data

		i += length + 1
	}

	return m, nil
}
