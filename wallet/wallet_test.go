package wallet

import (
	"bytes"
	"testing"
)

func TestSign_Deterministic(t *testing.T) {
	kp, err := NewKeyPair()
	if err != nil {
		t.Fatalf("NewKeyPair failed: %v", err)
	}
	msg := []byte("fixed activation message")
	a, err := kp.Sign(msg)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	b, err := kp.Sign(msg)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("ed25519 signing must be deterministic")
	}
	if !Verify(kp.Identity(), msg, a) {
		t.Fatalf("Verify rejected a valid signature")
	}
	if Verify(kp.Identity(), []byte("other message"), a) {
		t.Fatalf("Verify accepted a signature over different bytes")
	}
}

func TestFromSeed_RoundTrip(t *testing.T) {
	kp, err := NewKeyPair()
	if err != nil {
		t.Fatalf("NewKeyPair failed: %v", err)
	}
	back, err := FromSeed(kp.Seed())
	if err != nil {
		t.Fatalf("FromSeed failed: %v", err)
	}
	if back.Identity() != kp.Identity() {
		t.Fatalf("seed round trip changed identity")
	}
	if _, err := FromSeed([]byte("short")); err == nil {
		t.Fatalf("FromSeed accepted a short seed")
	}
}

func TestIdentity_StringRoundTrip(t *testing.T) {
	kp, err := NewKeyPair()
	if err != nil {
		t.Fatalf("NewKeyPair failed: %v", err)
	}
	id := kp.Identity()
	back, err := ParseIdentity(id.String())
	if err != nil {
		t.Fatalf("ParseIdentity failed: %v", err)
	}
	if back != id {
		t.Fatalf("identity string round trip mismatch")
	}
}

func TestKeyStore(t *testing.T) {
	ks, err := OpenKeyStore(t.TempDir())
	if err != nil {
		t.Fatalf("OpenKeyStore failed: %v", err)
	}

	created, err := ks.Create("alice")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	loaded, err := ks.Load("alice")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Identity() != created.Identity() {
		t.Fatalf("loaded identity differs from created")
	}

	// Create must never overwrite an existing seed.
	if _, err := ks.Create("alice"); err == nil {
		t.Fatalf("Create overwrote an existing identity")
	}

	if _, err := ks.Create("bad name!"); err == nil {
		t.Fatalf("Create accepted an invalid name")
	}

	names, err := ks.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(names) != 1 || names[0] != "alice" {
		t.Fatalf("List = %v, want [alice]", names)
	}
}

func TestReceipt_SignVerify(t *testing.T) {
	kp, err := NewKeyPair()
	if err != nil {
		t.Fatalf("NewKeyPair failed: %v", err)
	}
	rk, err := NewReceiptKey()
	if err != nil {
		t.Fatalf("NewReceiptKey failed: %v", err)
	}

	r := Receipt{Identity: kp.Identity(), Timestamp: 1700000000}
	copy(r.Fingerprint[:], bytes.Repeat([]byte{0x42}, 32))

	sig := rk.Sign(r)
	if err := VerifyReceipt(r, rk.PublicKey(), sig); err != nil {
		t.Fatalf("VerifyReceipt rejected a valid receipt: %v", err)
	}

	tampered := r
	tampered.Timestamp++
	if err := VerifyReceipt(tampered, rk.PublicKey(), sig); err == nil {
		t.Fatalf("VerifyReceipt accepted a tampered receipt")
	}
	if err := VerifyReceipt(r, "ed25519:AAAA", sig); err == nil {
		t.Fatalf("VerifyReceipt accepted an unsupported key encoding")
	}
}
