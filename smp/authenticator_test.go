package smp

import (
	"testing"
	"time"

	"github.com/rigado/blesec"
)

type fakeResponder struct {
	confirms []blesec.Handle
	cancels  []blesec.Handle
}

func (f *fakeResponder) ConfirmPairing(h blesec.Handle) error {
	f.confirms = append(f.confirms, h)
	return nil
}

func (f *fakeResponder) CancelPairing(h blesec.Handle) error {
	f.cancels = append(f.cancels, h)
	return nil
}

type fakePrompter struct {
	awaiting map[uint64]uint32
	cancels  []uint64
}

func (f *fakePrompter) Await(id uint64, passkey uint32) {
	if f.awaiting == nil {
		f.awaiting = map[uint64]uint32{}
	}
	f.awaiting[id] = passkey
}

func (f *fakePrompter) Cancel(id uint64) {
	delete(f.awaiting, id)
	f.cancels = append(f.cancels, id)
}

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

type fakeLink struct {
	h    blesec.Handle
	peer blesec.PeerIdentity
}

func (l fakeLink) Handle() blesec.Handle     { return l.h }
func (l fakeLink) Peer() blesec.PeerIdentity { return l.peer }

type authFixture struct {
	auth     *Authenticator
	stack    *fakeResponder
	prompter *fakePrompter
	timers   []*fakeTimer
	changes  []Session
	shown    []uint32
}

func newAuthFixture(t *testing.T, c blesec.IOCapability) *authFixture {
	t.Helper()
	p, err := NewPolicy(c)
	if err != nil {
		t.Fatal(err)
	}

	fx := &authFixture{stack: &fakeResponder{}, prompter: &fakePrompter{}}
	fx.auth, err = NewAuthenticator(Config{
		Policy:   p,
		Stack:    fx.stack,
		Prompter: fx.prompter,
		Display:  func(_ blesec.PeerIdentity, pk uint32) { fx.shown = append(fx.shown, pk) },
		AfterFunc: func(d time.Duration, f func()) Timer {
			tm := &fakeTimer{d: d, f: f}
			fx.timers = append(fx.timers, tm)
			return tm
		},
		OnChange: func(s Session) { fx.changes = append(fx.changes, s) },
	})
	if err != nil {
		t.Fatal(err)
	}
	return fx
}

func (fx *authFixture) last() *Session {
	s := fx.changes[len(fx.changes)-1]
	return &s
}

func testLink(t *testing.T) fakeLink {
	p, err := blesec.ParsePeerIdentity("c0:11:22:33:44:01", blesec.AddrRandom)
	if err != nil {
		t.Fatal(err)
	}
	return fakeLink{h: 1, peer: p}
}

func TestAuthJustWorksConfirmsImmediately(t *testing.T) {
	fx := newAuthFixture(t, blesec.IOCapJustWorks)
	l := testLink(t)

	s, err := fx.auth.PairingRequested(l, blesec.MethodJustWorks)
	if err != nil {
		t.Fatal(err)
	}
	if s.Outcome() != Confirmed {
		t.Fatalf("outcome %s, exp confirmed", s.Outcome())
	}
	if len(fx.stack.confirms) != 1 {
		t.Fatalf("confirms %v", fx.stack.confirms)
	}

	fx.auth.Complete(l.h, nil)
	if fx.auth.Pending() != nil {
		t.Fatal("session not released on completion")
	}
}

func TestAuthUnsupportedMethodCancels(t *testing.T) {
	fx := newAuthFixture(t, blesec.IOCapJustWorks)
	l := testLink(t)

	_, err := fx.auth.PairingRequested(l, blesec.MethodPasskeyConfirm)
	if !blesec.IsPairingCancelled(err) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if len(fx.stack.cancels) != 1 {
		t.Fatalf("cancels %v", fx.stack.cancels)
	}
	if fx.auth.Pending() != nil {
		t.Fatal("unsupported method left a session")
	}
}

func TestAuthPasskeyEntryIsCancelled(t *testing.T) {
	fx := newAuthFixture(t, blesec.IOCapConfirm)
	l := testLink(t)

	if _, err := fx.auth.PairingRequested(l, blesec.MethodPasskeyConfirm); err != nil {
		t.Fatal(err)
	}
	_, err := fx.auth.PasskeyEntry(l)
	if !blesec.IsPairingCancelled(err) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if fx.last().Reason() != blesec.CancelUnsupported {
		t.Fatalf("reason %s", fx.last().Reason())
	}
	if len(fx.stack.cancels) != 1 {
		t.Fatalf("cancels %v", fx.stack.cancels)
	}
}

func TestAuthDisplayConfirmsWithoutUser(t *testing.T) {
	fx := newAuthFixture(t, blesec.IOCapDisplay)
	l := testLink(t)

	s, err := fx.auth.PasskeyDisplay(l, 123456)
	if err != nil {
		t.Fatal(err)
	}
	if s.Outcome() != Confirmed {
		t.Fatalf("outcome %s", s.Outcome())
	}
	if len(fx.shown) != 1 || fx.shown[0] != 123456 {
		t.Fatalf("shown %v", fx.shown)
	}
	if len(fx.stack.confirms) != 0 {
		t.Fatal("display method must not confirm at the stack")
	}
	if len(fx.timers) != 0 {
		t.Fatal("no timer expected for display")
	}
}

func TestAuthConfirmAccept(t *testing.T) {
	fx := newAuthFixture(t, blesec.IOCapConfirm)
	l := testLink(t)

	s, err := fx.auth.PasskeyConfirm(l, 482913)
	if err != nil {
		t.Fatal(err)
	}
	if s.Outcome() != AwaitingInput {
		t.Fatalf("outcome %s", s.Outcome())
	}
	if pk, ok := fx.prompter.awaiting[s.ID()]; !ok || pk != 482913 {
		t.Fatalf("prompter not armed: %v", fx.prompter.awaiting)
	}
	if len(fx.timers) != 1 || fx.timers[0].d != DefaultTimeout {
		t.Fatalf("timer not started with default timeout")
	}

	if err := fx.auth.Confirm(s.ID()); err != nil {
		t.Fatal(err)
	}
	if !fx.timers[0].stopped {
		t.Fatal("timer not stopped")
	}
	if len(fx.stack.confirms) != 1 || fx.stack.confirms[0] != l.h {
		t.Fatalf("confirms %v", fx.stack.confirms)
	}
	if fx.last().Outcome() != Confirmed {
		t.Fatalf("outcome %s", fx.last().Outcome())
	}

	// a second decision for the same session is refused
	if err := fx.auth.Confirm(s.ID()); err == nil {
		t.Fatal("second confirm accepted")
	}

	// late expiry after confirmation is a no-op
	fx.timers[0].f()
	if len(fx.stack.cancels) != 0 {
		t.Fatalf("cancel issued after confirm: %v", fx.stack.cancels)
	}
}

func TestAuthPromptAfterConfirmCancels(t *testing.T) {
	fx := newAuthFixture(t, blesec.IOCapConfirm)
	l := testLink(t)

	s, err := fx.auth.PasskeyConfirm(l, 482913)
	if err != nil {
		t.Fatal(err)
	}
	if err := fx.auth.Confirm(s.ID()); err != nil {
		t.Fatal(err)
	}

	// a repeated prompt for a confirmed session is a stack fault
	if _, err := fx.auth.PasskeyConfirm(l, 482913); !blesec.IsPairingCancelled(err) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if len(fx.stack.cancels) != 1 || fx.stack.cancels[0] != l.h {
		t.Fatalf("cancels %v", fx.stack.cancels)
	}
	last := fx.last()
	if last.Outcome() != Cancelled || last.Reason() != blesec.CancelStackError {
		t.Fatalf("got %s / %s", last.Outcome(), last.Reason())
	}
	if fx.auth.Pending() != nil {
		t.Fatal("session not released")
	}
}

func TestAuthConfirmReject(t *testing.T) {
	fx := newAuthFixture(t, blesec.IOCapConfirm)
	l := testLink(t)

	s, err := fx.auth.PasskeyConfirm(l, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := fx.auth.Reject(s.ID()); err != nil {
		t.Fatal(err)
	}

	if len(fx.stack.cancels) != 1 {
		t.Fatalf("cancels %v", fx.stack.cancels)
	}
	last := fx.last()
	if last.Outcome() != Cancelled || last.Reason() != blesec.CancelRejected {
		t.Fatalf("got %s / %s", last.Outcome(), last.Reason())
	}
	if fx.auth.Pending() != nil {
		t.Fatal("session not released")
	}
}

func TestAuthTimeoutCancelsOnce(t *testing.T) {
	fx := newAuthFixture(t, blesec.IOCapConfirm)
	l := testLink(t)

	s, err := fx.auth.PasskeyConfirm(l, 654321)
	if err != nil {
		t.Fatal(err)
	}

	fx.timers[0].f()
	fx.timers[0].f()

	if len(fx.stack.cancels) != 1 {
		t.Fatalf("expected exactly one cancel, got %v", fx.stack.cancels)
	}
	last := fx.last()
	if last.Outcome() != TimedOut || last.Reason() != blesec.CancelTimeout {
		t.Fatalf("got %s / %s", last.Outcome(), last.Reason())
	}
	if _, ok := fx.prompter.awaiting[s.ID()]; ok {
		t.Fatal("prompter still armed after timeout")
	}
	if err := fx.auth.Confirm(s.ID()); err == nil {
		t.Fatal("confirm accepted after timeout")
	}
}

func TestAuthTimeoutPostedToQueue(t *testing.T) {
	p, _ := NewPolicy(blesec.IOCapConfirm)
	stack := &fakeResponder{}
	var posted []func()
	var timer *fakeTimer

	a, err := NewAuthenticator(Config{
		Policy: p,
		Stack:  stack,
		Post: func(f func()) error {
			posted = append(posted, f)
			return nil
		},
		AfterFunc: func(d time.Duration, f func()) Timer {
			timer = &fakeTimer{d: d, f: f}
			return timer
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := a.PasskeyConfirm(testLink(t), 7); err != nil {
		t.Fatal(err)
	}

	timer.f()
	if len(stack.cancels) != 0 {
		t.Fatal("expiry ran outside the queue")
	}
	if len(posted) != 1 {
		t.Fatalf("posted %d jobs", len(posted))
	}

	posted[0]()
	if len(stack.cancels) != 1 {
		t.Fatalf("cancels %v", stack.cancels)
	}
}

func TestAuthSecondSessionRefused(t *testing.T) {
	fx := newAuthFixture(t, blesec.IOCapConfirm)
	l := testLink(t)

	if _, err := fx.auth.PasskeyConfirm(l, 1); err != nil {
		t.Fatal(err)
	}

	other := fakeLink{h: 2, peer: l.peer}
	if _, err := fx.auth.PasskeyConfirm(other, 2); err == nil {
		t.Fatal("second session accepted")
	}
	if _, err := fx.auth.PairingRequested(other, blesec.MethodJustWorks); err == nil {
		t.Fatal("second request accepted")
	}
}

func TestAuthInvalidPasskey(t *testing.T) {
	fx := newAuthFixture(t, blesec.IOCapConfirm)
	l := testLink(t)

	if _, err := fx.auth.PasskeyConfirm(l, MaxPasskey+1); err == nil {
		t.Fatal("accepted passkey above 999999")
	}
	if len(fx.stack.cancels) != 1 {
		t.Fatalf("cancels %v", fx.stack.cancels)
	}
	if fx.auth.Pending() != nil {
		t.Fatal("invalid passkey left a session")
	}
}

func TestAuthAbortAndPeerCancel(t *testing.T) {
	fx := newAuthFixture(t, blesec.IOCapConfirm)
	l := testLink(t)

	s, err := fx.auth.PasskeyConfirm(l, 5)
	if err != nil {
		t.Fatal(err)
	}

	fx.auth.Abort(l.h)
	if len(fx.stack.cancels) != 0 {
		t.Fatal("abort must not call the stack")
	}
	if fx.last().Reason() != blesec.CancelDisconnected {
		t.Fatalf("reason %s", fx.last().Reason())
	}
	if len(fx.prompter.cancels) != 1 || fx.prompter.cancels[0] != s.ID() {
		t.Fatalf("prompter cancels %v", fx.prompter.cancels)
	}

	if _, err := fx.auth.PasskeyConfirm(l, 6); err != nil {
		t.Fatal(err)
	}
	if err := fx.auth.CancelledByPeer(l.h); err != nil {
		t.Fatal(err)
	}
	if fx.last().Reason() != blesec.CancelByPeer {
		t.Fatalf("reason %s", fx.last().Reason())
	}
	if err := fx.auth.CancelledByPeer(l.h); err == nil {
		t.Fatal("expected ErrNoSession")
	}
}

func TestAuthCompleteWithError(t *testing.T) {
	fx := newAuthFixture(t, blesec.IOCapJustWorks)
	l := testLink(t)

	if _, err := fx.auth.PairingRequested(l, blesec.MethodJustWorks); err != nil {
		t.Fatal(err)
	}
	fx.auth.Complete(l.h, blesec.ErrStackBusy)

	last := fx.last()
	if last.Outcome() != Cancelled || last.Reason() != blesec.CancelFailed {
		t.Fatalf("got %s / %s", last.Outcome(), last.Reason())
	}
	if last.Err() == nil {
		t.Fatal("expected session error")
	}
}
