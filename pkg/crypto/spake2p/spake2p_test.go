package spake2p

import (
	"bytes"
	"crypto/elliptic"
	"errors"
	"math/big"
	"testing"
)

func testScalars(t *testing.T, seed byte) (w0, w1, L []byte) {
	t.Helper()
	n := elliptic.P256().Params().N
	a := new(big.Int).SetBytes(bytes.Repeat([]byte{seed}, 40))
	b := new(big.Int).SetBytes(bytes.Repeat([]byte{seed + 1}, 40))
	w0 = a.Mod(a, n).FillBytes(make([]byte, GroupSizeBytes))
	w1 = b.Mod(b, n).FillBytes(make([]byte, GroupSizeBytes))
	x, y := elliptic.P256().ScalarBaseMult(w1)
	L = encodePoint(&point{x: x, y: y})
	return w0, w1, L
}

func runExchange(t *testing.T, prover, verifier *SPAKE2P, ctxP, ctxV []byte) error {
	t.Helper()
	Y, err := verifier.GenerateShare()
	if err != nil {
		t.Fatalf("verifier GenerateShare: %v", err)
	}
	X, err := prover.GenerateShare()
	if err != nil {
		t.Fatalf("prover GenerateShare: %v", err)
	}
	if err := prover.ProcessPeerShare(ctxP, Y); err != nil {
		t.Fatalf("prover ProcessPeerShare: %v", err)
	}
	cA, _ := prover.Confirmation()
	if err := verifier.ProcessPeerShare(ctxV, X); err != nil {
		t.Fatalf("verifier ProcessPeerShare: %v", err)
	}
	if err := verifier.VerifyPeerConfirmation(cA); err != nil {
		return err
	}
	cB, _ := verifier.Confirmation()
	return prover.VerifyPeerConfirmation(cB)
}

func TestExchange(t *testing.T) {
	w0, w1, L := testScalars(t, 0x11)
	p, err := NewProver([]byte("centre"), []byte("accessory"), w0, w1)
	if err != nil {
		t.Fatal(err)
	}
	v, err := NewVerifier([]byte("centre"), []byte("accessory"), w0, L)
	if err != nil {
		t.Fatal(err)
	}
	ctx := []byte("context")
	if err := runExchange(t, p, v, ctx, ctx); err != nil {
		t.Fatalf("exchange failed: %v", err)
	}

	ke := p.SharedSecret()
	if len(ke) != 16 || !bytes.Equal(ke, v.SharedSecret()) {
		t.Fatalf("shared secrets differ: %x vs %x", ke, v.SharedSecret())
	}
}

func TestExchange_WrongPassword(t *testing.T) {
	w0, w1, _ := testScalars(t, 0x11)
	w0b, _, Lb := testScalars(t, 0x21)
	p, _ := NewProver(nil, nil, w0, w1)
	v, _ := NewVerifier(nil, nil, w0b, Lb)

	if err := runExchange(t, p, v, nil, nil); !errors.Is(err, ErrConfirmationFailed) {
		t.Fatalf("err = %v, want ErrConfirmationFailed", err)
	}
}

func TestExchange_ContextMismatch(t *testing.T) {
	w0, w1, L := testScalars(t, 0x11)
	p, _ := NewProver(nil, nil, w0, w1)
	v, _ := NewVerifier(nil, nil, w0, L)

	if err := runExchange(t, p, v, []byte("a"), []byte("b")); !errors.Is(err, ErrConfirmationFailed) {
		t.Fatalf("err = %v, want ErrConfirmationFailed", err)
	}
}

func TestStateOrdering(t *testing.T) {
	w0, w1, _ := testScalars(t, 0x11)
	p, _ := NewProver(nil, nil, w0, w1)

	if _, err := p.Confirmation(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Confirmation before share: %v", err)
	}
	if err := p.ProcessPeerShare(nil, make([]byte, PointSizeBytes)); !errors.Is(err, ErrInvalidState) {
		t.Errorf("ProcessPeerShare before share: %v", err)
	}
	if p.SharedSecret() != nil {
		t.Error("SharedSecret available before exchange")
	}
	if _, err := p.GenerateShare(); err != nil {
		t.Fatal(err)
	}
	if _, err := p.GenerateShare(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second GenerateShare: %v", err)
	}
	bad := make([]byte, PointSizeBytes)
	bad[0] = 0x04
	if err := p.ProcessPeerShare(nil, bad); !errors.Is(err, ErrInvalidPointOnCurve) {
		t.Errorf("off-curve share: %v", err)
	}
}

func TestDestroy(t *testing.T) {
	w0, w1, L := testScalars(t, 0x11)
	p, _ := NewProver(nil, nil, w0, w1)
	v, _ := NewVerifier(nil, nil, w0, L)
	if err := runExchange(t, p, v, nil, nil); err != nil {
		t.Fatal(err)
	}
	ke := p.ke
	p.Destroy()
	if !bytes.Equal(ke, make([]byte, len(ke))) {
		t.Error("Ke not wiped")
	}
	if p.SharedSecret() != nil {
		t.Error("SharedSecret after Destroy")
	}
	if _, err := p.Confirmation(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Confirmation after Destroy: %v", err)
	}
}
