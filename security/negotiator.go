// Package security tracks link security elevation per connection.
package security

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"github.com/rigado/blesec"
)

type State int

const (
	Unsecured State = iota
	Negotiating
	Secured
	Failed
)

var stateStrings = map[State]string{
	Unsecured:   "unsecured",
	Negotiating: "negotiating",
	Secured:     "secured",
	Failed:      "failed",
}

func (s State) String() string {
	if v, ok := stateStrings[s]; ok {
		return v
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Requester starts security elevation on a link.
type Requester interface {
	SetSecurity(h blesec.Handle, level blesec.SecurityLevel) error
}

// Result is the negotiation state of one link.
type Result struct {
	Handle blesec.Handle
	State  State
	Target blesec.SecurityLevel
	Level  blesec.SecurityLevel

	// Err is a *blesec.SecurityElevationError when State is Failed.
	Err error
}

func (r Result) Secured() bool {
	return r.State == Secured
}

func (r Result) String() string {
	if r.Err != nil {
		return fmt.Sprintf("handle %d %s: %v", r.Handle, r.State, r.Err)
	}
	return fmt.Sprintf("handle %d %s at %s (target %s)", r.Handle, r.State, r.Level, r.Target)
}

// Negotiator drives each link from Unsecured to Secured or Failed.
type Negotiator struct {
	stack  Requester
	target blesec.SecurityLevel
	log    blesec.Logger

	mu    sync.Mutex
	links map[blesec.Handle]*Result
}

// NewNegotiator returns a negotiator that uses target for links whose level
// changes before a request was made.
func NewNegotiator(stack Requester, target blesec.SecurityLevel) *Negotiator {
	return &Negotiator{
		stack:  stack,
		target: target,
		log:    blesec.ComponentLogger("security"),
		links:  map[blesec.Handle]*Result{},
	}
}

func (n *Negotiator) Target() blesec.SecurityLevel {
	return n.target
}

func (n *Negotiator) link(h blesec.Handle) *Result {
	r, ok := n.links[h]
	if !ok {
		r = &Result{Handle: h, State: Unsecured, Target: n.target, Level: blesec.SecurityNone}
		n.links[h] = r
	}
	return r
}

// Request asks the stack to raise h to target. A busy stack gets one more
// attempt; any other error fails the link.
func (n *Negotiator) Request(h blesec.Handle, target blesec.SecurityLevel) error {
	if !target.Valid() {
		return errors.Errorf("invalid target security level %d", int(target))
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	r := n.link(h)
	r.Target = target
	r.Err = nil

	if r.Level >= target {
		r.State = Secured
		n.log.Debugf("handle %d already at %s", h, r.Level)
		return nil
	}

	r.State = Negotiating
	n.log.Infof("requesting %s on handle %d", target, h)

	err := n.stack.SetSecurity(h, target)
	if errors.Cause(err) == blesec.ErrStackBusy {
		n.log.Warnf("stack busy raising handle %d to %s, retrying", h, target)
		err = n.stack.SetSecurity(h, target)
	}

	if err != nil {
		r.State = Failed
		r.Err = &blesec.SecurityElevationError{
			Handle: h,
			Target: target,
			Level:  r.Level,
			Status: blesec.SecurityErrUnspecified,
			Err:    err,
		}
		n.log.Errorf("%v", r.Err)
		return r.Err
	}

	return nil
}

// LevelChanged records the level the stack reports for h.
func (n *Negotiator) LevelChanged(h blesec.Handle, level blesec.SecurityLevel, status blesec.SecurityErr) Result {
	n.mu.Lock()
	defer n.mu.Unlock()

	r := n.link(h)
	if level.Valid() {
		r.Level = level
	}

	if status != blesec.SecurityErrSuccess || r.Level < r.Target {
		r.State = Failed
		r.Err = &blesec.SecurityElevationError{
			Handle: h,
			Target: r.Target,
			Level:  r.Level,
			Status: status,
		}
		n.log.Warnf("%v", r.Err)
		return *r
	}

	r.State = Secured
	r.Err = nil
	n.log.Infof("handle %d secured at %s", h, r.Level)
	return *r
}

// State returns the negotiation state of h.
func (n *Negotiator) State(h blesec.Handle) (Result, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	r, ok := n.links[h]
	if !ok {
		return Result{}, false
	}
	return *r, true
}

// Forget drops all state for h.
func (n *Negotiator) Forget(h blesec.Handle) {
	n.mu.Lock()
	defer n.mu.Unlock()

	delete(n.links, h)
}
