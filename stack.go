package blesec

// Stack is the host Bluetooth stack this package drives. Calls are made from
// the device work queue and must not block on radio events; results arrive
// later through the device's callback methods.
type Stack interface {
	// Enable brings the stack up.
	Enable() error

	StartAdvertising(payload []byte) error
	StopAdvertising() error

	// SetSecurity starts elevating the link to level. ErrStackBusy marks a
	// transient refusal.
	SetSecurity(h Handle, level SecurityLevel) error

	// ConfirmPairing accepts the pairing awaiting a decision on h (just works
	// or passkey comparison).
	ConfirmPairing(h Handle) error

	// CancelPairing aborts any pairing in progress on h.
	CancelPairing(h Handle) error

	Disconnect(h Handle, reason uint8) error
}

// BondManager persists pairing keys. The stack saves through it when a
// pairing completes with bonding.
type BondManager interface {
	Find(peer PeerIdentity) (BondInfo, error)
	Save(peer PeerIdentity, bond BondInfo) error
	Exists(peer PeerIdentity) bool
	Delete(peer PeerIdentity) error
}

type BondInfo interface {
	LongTermKey() []byte
	IdentityKey() []byte
	Level() SecurityLevel
	Legacy() bool
}

type bondInfo struct {
	longTermKey []byte
	irk         []byte
	level       SecurityLevel
	legacy      bool
}

func NewBondInfo(longTermKey, irk []byte, level SecurityLevel, legacy bool) BondInfo {
	return &bondInfo{
		longTermKey: longTermKey,
		irk:         irk,
		level:       level,
		legacy:      legacy,
	}
}

func (b *bondInfo) LongTermKey() []byte {
	return b.longTermKey
}

func (b *bondInfo) IdentityKey() []byte {
	return b.irk
}

func (b *bondInfo) Level() SecurityLevel {
	return b.level
}

func (b *bondInfo) Legacy() bool {
	return b.legacy
}

// BondStore is the bond policy surface the device uses at boot and on
// request: existence checks and clearing.
type BondStore interface {
	BondManager
	Has(peer PeerIdentity) bool
	ClearOne(peer PeerIdentity) error
	ClearAll() error
}

// PasskeyDisplay shows a passkey to the user.
type PasskeyDisplay func(peer PeerIdentity, passkey uint32)
