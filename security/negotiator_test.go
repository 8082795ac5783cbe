package security

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/rigado/blesec"
)

type fakeRequester struct {
	errs  []error
	calls int
}

func (f *fakeRequester) SetSecurity(h blesec.Handle, level blesec.SecurityLevel) error {
	f.calls++
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

func TestNegotiatorSecured(t *testing.T) {
	req := &fakeRequester{}
	n := NewNegotiator(req, blesec.SecurityLESecure)

	if err := n.Request(1, blesec.SecurityLESecure); err != nil {
		t.Fatal(err)
	}
	if r, _ := n.State(1); r.State != Negotiating {
		t.Fatalf("state %s", r.State)
	}

	r := n.LevelChanged(1, blesec.SecurityLESecure, blesec.SecurityErrSuccess)
	if !r.Secured() || r.Level != blesec.SecurityLESecure {
		t.Fatalf("got %s", r)
	}

	n.Forget(1)
	if _, ok := n.State(1); ok {
		t.Fatal("state survived Forget")
	}
}

func TestNegotiatorInsufficientLevel(t *testing.T) {
	n := NewNegotiator(&fakeRequester{}, blesec.SecurityLESecure)

	if err := n.Request(1, blesec.SecurityAuthenticated); err != nil {
		t.Fatal(err)
	}

	r := n.LevelChanged(1, blesec.SecurityEncrypted, blesec.SecurityErrSuccess)
	if r.State != Failed {
		t.Fatalf("got %s", r)
	}
	if !blesec.IsSecurityElevation(r.Err) {
		t.Fatalf("err %v", r.Err)
	}

	// a later change that reaches the target recovers
	r = n.LevelChanged(1, blesec.SecurityAuthenticated, blesec.SecurityErrSuccess)
	if !r.Secured() {
		t.Fatalf("got %s", r)
	}
}

func TestNegotiatorPeerRejectNoRetry(t *testing.T) {
	req := &fakeRequester{}
	n := NewNegotiator(req, blesec.SecurityLESecure)

	if err := n.Request(1, blesec.SecurityLESecure); err != nil {
		t.Fatal(err)
	}
	r := n.LevelChanged(1, blesec.SecurityNone, blesec.SecurityErrAuthFail)
	if r.State != Failed {
		t.Fatalf("got %s", r)
	}
	if req.calls != 1 {
		t.Fatalf("stack called %d times", req.calls)
	}
	e := r.Err.(*blesec.SecurityElevationError)
	if e.Status != blesec.SecurityErrAuthFail {
		t.Fatalf("status %s", e.Status)
	}
}

func TestNegotiatorRetriesBusyOnce(t *testing.T) {
	req := &fakeRequester{errs: []error{errors.Wrap(blesec.ErrStackBusy, "smp")}}
	n := NewNegotiator(req, blesec.SecurityLESecure)

	if err := n.Request(1, blesec.SecurityLESecure); err != nil {
		t.Fatal(err)
	}
	if req.calls != 2 {
		t.Fatalf("stack called %d times", req.calls)
	}

	req = &fakeRequester{errs: []error{blesec.ErrStackBusy, blesec.ErrStackBusy}}
	n = NewNegotiator(req, blesec.SecurityLESecure)
	err := n.Request(1, blesec.SecurityLESecure)
	if !blesec.IsSecurityElevation(err) {
		t.Fatalf("expected elevation error, got %v", err)
	}
	if req.calls != 2 {
		t.Fatalf("stack called %d times", req.calls)
	}
	if r, _ := n.State(1); r.State != Failed {
		t.Fatalf("state %s", r.State)
	}
}

func TestNegotiatorNoRetryOnOtherErrors(t *testing.T) {
	req := &fakeRequester{errs: []error{blesec.ErrNotConnected}}
	n := NewNegotiator(req, blesec.SecurityLESecure)

	if err := n.Request(1, blesec.SecurityLESecure); err == nil {
		t.Fatal("expected error")
	}
	if req.calls != 1 {
		t.Fatalf("stack called %d times", req.calls)
	}
}

func TestNegotiatorLowTargetAlreadyMet(t *testing.T) {
	req := &fakeRequester{}
	n := NewNegotiator(req, blesec.SecurityNone)

	if err := n.Request(1, blesec.SecurityNone); err != nil {
		t.Fatal(err)
	}
	if req.calls != 0 {
		t.Fatal("stack asked for L1")
	}
	if r, _ := n.State(1); !r.Secured() {
		t.Fatalf("state %s", r.State)
	}

	if err := n.Request(1, blesec.SecurityLevel(9)); err == nil {
		t.Fatal("invalid target accepted")
	}
}
