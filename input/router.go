// Package input turns accept/reject edges from buttons, a serial board or a
// terminal into decisions for the pending pairing session.
package input

import (
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rigado/blesec"
)

// DefaultDebounce is the minimum spacing between two edges on one line.
const DefaultDebounce = 50 * time.Millisecond

// Decider resolves a session awaiting user input.
type Decider interface {
	Confirm(id uint64) error
	Reject(id uint64) error
}

// Inputs is what a source drives.
type Inputs interface {
	OnAccept()
	OnReject()
}

// Router delivers at most one decision to the session it was armed for.
// OnAccept and OnReject never block and may be called from any goroutine;
// everything else runs on the work queue passed to NewRouter.
type Router struct {
	post     func(func()) error
	decider  Decider
	debounce int64
	log      blesec.Logger
	now      func() time.Time

	lastAccept int64
	lastReject int64

	// queue owned
	armed     bool
	id        uint64
	passkey   uint32
	delivered bool
}

func NewRouter(post func(func()) error, d Decider, debounce time.Duration) (*Router, error) {
	if post == nil {
		return nil, errors.New("router: no work queue")
	}
	if debounce < 0 {
		return nil, errors.Errorf("router: negative debounce %s", debounce)
	}

	return &Router{
		post:     post,
		decider:  d,
		debounce: int64(debounce),
		log:      blesec.ComponentLogger("input"),
		now:      time.Now,
	}, nil
}

// SetDecider attaches the authenticator once it exists.
func (r *Router) SetDecider(d Decider) {
	r.decider = d
}

func (r *Router) OnAccept() {
	r.edge(&r.lastAccept, true)
}

func (r *Router) OnReject() {
	r.edge(&r.lastReject, false)
}

func (r *Router) edge(last *int64, accept bool) {
	now := r.now().UnixNano()
	prev := atomic.LoadInt64(last)
	if prev != 0 && now-prev < r.debounce {
		return
	}
	// a concurrent edge on the same line won
	if !atomic.CompareAndSwapInt64(last, prev, now) {
		return
	}

	if err := r.post(func() { r.deliver(accept) }); err != nil {
		r.log.Warnf("dropped input edge: %v", err)
	}
}

func (r *Router) deliver(accept bool) {
	if !r.armed || r.delivered {
		r.log.Debugf("no pending confirmation, ignoring %s", decision(accept))
		return
	}
	r.delivered = true
	r.armed = false

	if r.decider == nil {
		r.log.Errorf("no decider for session %d", r.id)
		return
	}

	var err error
	if accept {
		err = r.decider.Confirm(r.id)
	} else {
		err = r.decider.Reject(r.id)
	}
	if err != nil {
		r.log.Warnf("%s session %d: %v", decision(accept), r.id, err)
	}
}

// Await arms the router for session id.
func (r *Router) Await(id uint64, passkey uint32) {
	r.armed = true
	r.delivered = false
	r.id = id
	r.passkey = passkey
	r.log.Infof("confirm passkey %06d: press accept or reject", passkey)
}

// Cancel disarms the router if it is still waiting on session id.
func (r *Router) Cancel(id uint64) {
	if r.armed && r.id == id {
		r.armed = false
		r.log.Infof("confirmation for session %d cancelled", id)
	}
}

// Pending returns the session the router is armed for.
func (r *Router) Pending() (id uint64, passkey uint32, ok bool) {
	return r.id, r.passkey, r.armed
}

func decision(accept bool) string {
	if accept {
		return "accept"
	}
	return "reject"
}
