package smp

import (
	"bytes"
	"encoding/hex"
	"testing"
)

func s2h(t *testing.T, swap bool, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("s2h %q: %v", s, err)
	}
	if swap {
		return swapBuf(b)
	}
	return b
}

func TestAesCMAC(t *testing.T) {
	// RFC 4493 example 2, fed little endian
	key := s2h(t, true, "2b7e151628aed2a6abf7158809cf4f3c")
	msg := s2h(t, true, "6bc1bee22e409f96e93d7e117393172a")
	exp := s2h(t, true, "070a16b46b4d4144f79bdd9dd04a287c")

	r, err := aesCMAC(key, msg)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(r, exp) {
		t.Fatalf("\ngot %x\nexp %x", r, exp)
	}
}

var (
	testU = []byte{
		0xe6, 0x9d, 0x35, 0x0e, 0x48, 0x01, 0x03, 0xcc,
		0xdb, 0xfd, 0xf4, 0xac, 0x11, 0x91, 0xf4, 0xef,
		0xb9, 0xa5, 0xf9, 0xe9, 0xa7, 0x83, 0x2c, 0x5e,
		0x2c, 0xbe, 0x97, 0xf2, 0xd2, 0x03, 0xb0, 0x20,
	}
	testV = []byte{
		0xfd, 0xc5, 0x7f, 0xf4, 0x49, 0xdd, 0x4f, 0x6b,
		0xfb, 0x7c, 0x9d, 0xf1, 0xc2, 0x9a, 0xcb, 0x59,
		0x2a, 0xe7, 0xd4, 0xee, 0xfb, 0xfc, 0x0a, 0x90,
		0x9a, 0xbb, 0xf6, 0x32, 0x3d, 0x8b, 0x18, 0x55,
	}
	testX = []byte{
		0xab, 0xae, 0x2b, 0x71, 0xec, 0xb2, 0xff, 0xff,
		0x3e, 0x73, 0x77, 0xd1, 0x54, 0x84, 0xcb, 0xd5,
	}
	testY = []byte{
		0xcf, 0xc4, 0x3d, 0xff, 0xf7, 0x83, 0x65, 0x21,
		0x6e, 0x5f, 0xa7, 0x25, 0xcc, 0xe7, 0xe8, 0xa6,
	}
	testW = []byte{
		0x98, 0xa6, 0xbf, 0x73, 0xf3, 0x34, 0x8d, 0x86,
		0xf1, 0x66, 0xf8, 0xb4, 0x13, 0x6b, 0x79, 0x99,
		0x9b, 0x7d, 0x39, 0x0a, 0xa6, 0x10, 0x10, 0x34,
		0x05, 0xad, 0xc8, 0x57, 0xa3, 0x34, 0x02, 0xec,
	}
	testA1 = []byte{0xce, 0xbf, 0x37, 0x37, 0x12, 0x56, 0x00}
	testA2 = []byte{0xc1, 0xcf, 0x2d, 0x70, 0x13, 0xa7, 0x00}
)

func TestF4(t *testing.T) {
	exp := []byte{
		0x2d, 0x87, 0x74, 0xa9, 0xbe, 0xa1, 0xed, 0xf1,
		0x1c, 0xbd, 0xa9, 0x07, 0xf1, 0x16, 0xc9, 0xf2,
	}

	out, err := f4(testU, testV, testX, 0)
	if err != nil {
		t.Fatal("f4 calc failed:", err)
	}
	if !bytes.Equal(out, exp) {
		t.Fatalf("incorrect f4 output %x", out)
	}

	if _, err := f4(testU[:31], testV, testX, 0); err == nil {
		t.Fatal("expected length error")
	}
}

func TestF5(t *testing.T) {
	expLTK := []byte{
		0x38, 0x0a, 0x75, 0x94, 0xb5, 0x22, 0x05, 0x98,
		0x23, 0xcd, 0xd7, 0x69, 0x11, 0x79, 0x86, 0x69,
	}
	expMacKey := []byte{
		0x20, 0x6e, 0x63, 0xce, 0x20, 0x6a, 0x3f, 0xfd,
		0x02, 0x4a, 0x08, 0xa1, 0x76, 0xf1, 0x65, 0x29,
	}

	macKey, ltk, err := f5(testW, testX, testY, testA1, testA2)
	if err != nil {
		t.Fatal("f5 calc failed:", err)
	}
	if !bytes.Equal(macKey, expMacKey) {
		t.Fatal("incorrect f5 macKey:", hex.EncodeToString(macKey))
	}
	if !bytes.Equal(ltk, expLTK) {
		t.Fatal("incorrect f5 ltk:", hex.EncodeToString(ltk))
	}
}

func TestF5CapturedDHKey(t *testing.T) {
	na := s2h(t, false, "fa9d22d0f2ecfbf7960a76aa9925f18f")
	nb := s2h(t, false, "b30214a4b530db3fcb65e88164321de2")
	a := []byte{0x94, 0x54, 0x93, 0x93, 0x54, 0x94, 0}
	b := []byte{0x32, 0x49, 0xba, 0x7a, 0x74, 0xc5, 1}
	dhk := s2h(t, false, "93796F44E2963CE0176190A5A65AA883E4D6ADEEAC51FBA46507774E8AE84BDC")

	_, ltk, err := f5(dhk, na, nb, a, b)
	if err != nil {
		t.Fatal(err)
	}

	exp := s2h(t, false, "3ea2200172d747c1102854108cfcda87")
	if !bytes.Equal(exp, ltk) {
		t.Fatalf("\ngot %v\nexp %v", hex.EncodeToString(ltk), hex.EncodeToString(exp))
	}
}

func TestF6(t *testing.T) {
	w := []byte{
		0x20, 0x6e, 0x63, 0xce, 0x20, 0x6a, 0x3f, 0xfd,
		0x02, 0x4a, 0x08, 0xa1, 0x76, 0xf1, 0x65, 0x29,
	}
	r := []byte{
		0xc8, 0x0f, 0x2d, 0x0c, 0xd2, 0x42, 0xda, 0x08,
		0x54, 0xbb, 0x53, 0xb4, 0x3b, 0x34, 0xa3, 0x12,
	}
	ioCap := []byte{0x02, 0x01, 0x01}
	exp := []byte{
		0x61, 0x8f, 0x95, 0xda, 0x09, 0x0b, 0x6c, 0xd2,
		0xc5, 0xe8, 0xd0, 0x9c, 0x98, 0x73, 0xc4, 0xe3,
	}

	res, err := f6(w, testX, testY, r, ioCap, testA1, testA2)
	if err != nil {
		t.Fatal("incorrect f6 operation:", err)
	}
	if !bytes.Equal(res, exp) {
		t.Fatal("incorrect f6 output:", hex.EncodeToString(res))
	}
}

func TestG2(t *testing.T) {
	val, err := g2(testU, testV, testX, testY)
	if err != nil {
		t.Fatal("failed to calc g2:", err)
	}
	if exp := uint32(0x2f9ed5ba % 1000000); val != exp {
		t.Fatalf("incorrect g2 output %d, exp %d", val, exp)
	}
	if val > MaxPasskey {
		t.Fatalf("g2 value %d is not six digits", val)
	}
}

func TestAh(t *testing.T) {
	irk := s2h(t, true, "ec0234a357c8ad05341010a60a397d9b")
	prand := []byte{0x94, 0x81, 0x70}

	hash, err := ah(irk, prand)
	if err != nil {
		t.Fatal(err)
	}

	exp := []byte{0xaa, 0xfb, 0x0d}
	if !bytes.Equal(hash, exp) {
		t.Fatalf("\ngot %x\nexp %x", hash, exp)
	}
}

func TestConfirmFromCapture(t *testing.T) {
	// public keys, random and confirm value from a btmon capture of an
	// LE Secure Connections pairing
	lxy := s2h(t, false, "2924dce60c38fdffe4bfa07134ea4cf238904695d7b8512b7c73ad3af2d1e789b9b7293371c2ede8cec34a8d2de8038bacac3b520fbb52c53aefe2c67e8b3661")
	rxy := s2h(t, false, "88287228a0d516fa458abc3a3264a0db65a92b8e8a53343e866eaed4b461b9c547fee8404d3a3a753e17a759ed747b7458bc5452bd4c8e69c636eeda851fb3a8")
	rrand := s2h(t, false, "e194607e5c588d24e6e22b5470f0b3c3")
	rconf := s2h(t, false, "a6c760d1be58d9b859e9823df9ab1c97")

	for _, xy := range [][]byte{lxy, rxy} {
		k, err := decodePoint(xy)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(encodePoint(k), xy) {
			t.Fatalf("public key did not round trip: %x", xy)
		}
	}

	// Cb = f4(PKbx, PKax, Nb, 0)
	conf, err := f4(rxy[:32], lxy[:32], rrand, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(conf, rconf) {
		t.Fatalf("confirm mismatch, exp %x got %x", rconf, conf)
	}

	bad := append([]byte(nil), lxy...)
	bad[0] ^= 0x01
	if _, err := decodePoint(bad); err == nil {
		t.Fatal("point off the curve accepted")
	}
}

func TestDHKeyAgreement(t *testing.T) {
	a, err := newKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	b, err := newKeyPair()
	if err != nil {
		t.Fatal(err)
	}

	ka, err := a.dhKey(b.xy)
	if err != nil {
		t.Fatal(err)
	}
	kb, err := b.dhKey(a.xy)
	if err != nil {
		t.Fatal(err)
	}

	if len(ka) != 32 || !bytes.Equal(ka, kb) {
		t.Fatalf("dhkey mismatch\n%x\n%x", ka, kb)
	}

	if _, err := a.dhKey(b.x()); err == nil {
		t.Fatal("expected error for short public key")
	}
	if _, err := a.dhKey(a.xy); err == nil {
		t.Fatal("expected error for a reflected public key")
	}
}
