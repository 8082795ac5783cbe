package smp

import (
	"testing"

	"github.com/rigado/blesec"
)

func TestGeneratePasskey(t *testing.T) {
	for i := 0; i < 1000; i++ {
		pk, err := GeneratePasskey()
		if err != nil {
			t.Fatal(err)
		}
		if pk > MaxPasskey {
			t.Fatalf("passkey %d out of range", pk)
		}
	}
}

func TestRPAResolve(t *testing.T) {
	irk, err := GenerateIRK()
	if err != nil {
		t.Fatal(err)
	}

	a, err := GenerateRPA(irk)
	if err != nil {
		t.Fatal(err)
	}

	if !a.Resolvable() {
		t.Fatalf("%s is not a resolvable private address", a)
	}
	if !ResolveRPA(irk, a) {
		t.Fatalf("%s did not resolve with its irk", a)
	}

	other, err := GenerateIRK()
	if err != nil {
		t.Fatal(err)
	}
	if ResolveRPA(other, a) {
		t.Fatalf("%s resolved with an unrelated irk", a)
	}
}

func TestResolveRPAKnownAddress(t *testing.T) {
	// prand 0x708194, hash 0x0dfbaa
	irk := s2h(t, true, "ec0234a357c8ad05341010a60a397d9b")
	a, err := blesec.ParseAddr("70:81:94:0d:fb:aa")
	if err != nil {
		t.Fatal(err)
	}

	if !ResolveRPA(irk, a) {
		t.Fatalf("%s did not resolve", a)
	}

	a[5] ^= 0x01
	if ResolveRPA(irk, a) {
		t.Fatalf("%s resolved after corrupting the hash", a)
	}
}
