package bond

import (
	"encoding/hex"
	"io/ioutil"
	"os"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/rigado/blesec"
	"github.com/rigado/blesec/smp"
)

// DefaultFilename is used when no bond file is configured.
const DefaultFilename = "bonds.json"

var ErrNotFound = errors.New("bond not found")

type bondFile struct {
	Bonds []remoteKeyInfo `json:"bonds"`
}

type remoteKeyInfo struct {
	Address     string `json:"address"`
	AddressType string `json:"addressType"`
	LongTermKey string `json:"longTermKey"`
	IdentityKey string `json:"identityKey,omitempty"`
	Level       int    `json:"level"`
	Legacy      bool   `json:"legacy"`
}

// Record is one stored bond.
type Record struct {
	Peer blesec.PeerIdentity
	Info blesec.BondInfo
}

// Store keeps bonds in a JSON file, at most one per peer identity.
type Store struct {
	filename string
	lock     sync.RWMutex
	log      blesec.Logger
}

func New(filename string) *Store {
	if filename == "" {
		filename = DefaultFilename
	}
	return &Store{
		filename: filename,
		log:      blesec.ComponentLogger("bond"),
	}
}

func (s *Store) Filename() string {
	return s.filename
}

func (s *Store) Exists(peer blesec.PeerIdentity) bool {
	s.lock.RLock()
	defer s.lock.RUnlock()

	bonds, err := s.load()
	if err != nil {
		s.log.Errorf("exists %s: %v", peer, err)
		return false
	}

	return indexOf(bonds, peer) >= 0
}

// Has reports whether peer is bonded.
func (s *Store) Has(peer blesec.PeerIdentity) bool {
	return s.Exists(peer)
}

func (s *Store) Find(peer blesec.PeerIdentity) (blesec.BondInfo, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	bonds, err := s.load()
	if err != nil {
		return nil, err
	}

	i := indexOf(bonds, peer)
	if i < 0 {
		return nil, errors.Wrapf(ErrNotFound, "%s", peer)
	}

	r, err := bonds.Bonds[i].record()
	if err != nil {
		return nil, errors.Wrapf(err, "bond for %s", peer)
	}
	return r.Info, nil
}

// Save stores bond for peer, replacing any existing bond of that identity.
func (s *Store) Save(peer blesec.PeerIdentity, bond blesec.BondInfo) error {
	if bond == nil {
		return errors.New("empty bond information")
	}
	if len(bond.LongTermKey()) != 16 {
		return errors.Errorf("invalid long term key length %d", len(bond.LongTermKey()))
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	bonds, err := s.load()
	if err != nil {
		return err
	}

	rki := createRemoteKeyInfo(peer, bond)
	if i := indexOf(bonds, peer); i >= 0 {
		s.log.Infof("replacing bond for %s", peer)
		bonds.Bonds[i] = rki
	} else {
		bonds.Bonds = append(bonds.Bonds, rki)
	}

	if err := s.store(bonds); err != nil {
		return err
	}

	s.log.Infof("bond saved for %s at %s", peer, bond.Level())
	return nil
}

func (s *Store) Delete(peer blesec.PeerIdentity) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	bonds, err := s.load()
	if err != nil {
		return err
	}

	i := indexOf(bonds, peer)
	if i < 0 {
		return errors.Wrapf(ErrNotFound, "%s", peer)
	}

	bonds.Bonds = append(bonds.Bonds[:i], bonds.Bonds[i+1:]...)
	return s.store(bonds)
}

// ClearOne removes the bond for peer. Clearing an unbonded peer is not an
// error.
func (s *Store) ClearOne(peer blesec.PeerIdentity) error {
	err := s.Delete(peer)
	if errors.Cause(err) == ErrNotFound {
		return nil
	}
	if err != nil {
		p := peer
		return &blesec.BondClearError{Peer: &p, Err: err}
	}

	s.log.Infof("bond cleared for %s", peer)
	return nil
}

// ClearAll removes every bond.
func (s *Store) ClearAll() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	err := os.Remove(s.filename)
	if err != nil && !os.IsNotExist(err) {
		return &blesec.BondClearError{Err: err}
	}

	s.log.Info("all bonds cleared")
	return nil
}

// List returns every stored bond in file order. Unreadable records are
// skipped.
func (s *Store) List() ([]Record, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	bonds, err := s.load()
	if err != nil {
		return nil, err
	}

	out := make([]Record, 0, len(bonds.Bonds))
	for _, b := range bonds.Bonds {
		r, err := b.record()
		if err != nil {
			s.log.Warnf("skipping bond %s: %v", b.Address, err)
			continue
		}
		out = append(out, r)
	}

	return out, nil
}

// Resolve maps a resolvable private address to the bonded identity whose IRK
// generated it.
func (s *Store) Resolve(a blesec.Addr) (blesec.PeerIdentity, bool) {
	if !a.Resolvable() {
		return blesec.PeerIdentity{}, false
	}

	recs, err := s.List()
	if err != nil {
		s.log.Errorf("resolve %s: %v", a, err)
		return blesec.PeerIdentity{}, false
	}

	for _, r := range recs {
		irk := r.Info.IdentityKey()
		if len(irk) == 0 {
			continue
		}
		if smp.ResolveRPA(irk, a) {
			return r.Peer.WithIRK(irk), true
		}
	}

	return blesec.PeerIdentity{}, false
}

func indexOf(bonds *bondFile, peer blesec.PeerIdentity) int {
	addr := peer.Addr().String()
	t := peer.AddrType().String()
	for i, b := range bonds.Bonds {
		if b.Address == addr && b.AddressType == t {
			return i
		}
	}
	return -1
}

func createRemoteKeyInfo(peer blesec.PeerIdentity, bond blesec.BondInfo) remoteKeyInfo {
	rki := remoteKeyInfo{
		Address:     peer.Addr().String(),
		AddressType: peer.AddrType().String(),
		LongTermKey: hex.EncodeToString(bond.LongTermKey()),
		Level:       int(bond.Level()),
		Legacy:      bond.Legacy(),
	}

	irk := bond.IdentityKey()
	if len(irk) == 0 {
		irk = peer.IRK()
	}
	if len(irk) > 0 {
		rki.IdentityKey = hex.EncodeToString(irk)
	}

	return rki
}

func (rki remoteKeyInfo) record() (Record, error) {
	t, err := blesec.ParseAddrType(rki.AddressType)
	if err != nil {
		return Record{}, err
	}

	peer, err := blesec.ParsePeerIdentity(rki.Address, t)
	if err != nil {
		return Record{}, err
	}

	ltk, err := hex.DecodeString(rki.LongTermKey)
	if err != nil {
		return Record{}, errors.Wrap(err, "failed to decode long term key")
	}

	var irk []byte
	if rki.IdentityKey != "" {
		irk, err = hex.DecodeString(rki.IdentityKey)
		if err != nil {
			return Record{}, errors.Wrap(err, "invalid identity key in bond file")
		}
		peer = peer.WithIRK(irk)
	}

	level := blesec.SecurityLevel(rki.Level)
	if !level.Valid() {
		return Record{}, errors.Errorf("invalid security level %d in bond file", rki.Level)
	}

	return Record{
		Peer: peer,
		Info: blesec.NewBondInfo(ltk, irk, level, rki.Legacy),
	}, nil
}

func (s *Store) load() (*bondFile, error) {
	var bonds bondFile

	in, err := ioutil.ReadFile(s.filename)
	if os.IsNotExist(err) {
		return &bonds, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read bond file")
	}

	if len(in) > 0 {
		if err := jsoniter.Unmarshal(in, &bonds); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal bond file")
		}
	}

	return &bonds, nil
}

func (s *Store) store(bonds *bondFile) error {
	out, err := jsoniter.MarshalIndent(bonds, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal bonds")
	}

	if err := ioutil.WriteFile(s.filename, out, 0644); err != nil {
		return errors.Wrap(err, "failed to update bond file")
	}

	return nil
}
