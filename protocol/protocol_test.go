package protocol

import (
	"context"
	"errors"
	"testing"

	"xdao.co/void/envelope"
	"xdao.co/void/ledger"
	"xdao.co/void/seal"
	"xdao.co/void/storage/memory"
	"xdao.co/void/wallet"
)

func newClient(t *testing.T, l ledger.Ledger, blobs *memory.Store) (*Client, wallet.Identity) {
	t.Helper()
	kp, err := wallet.NewKeyPair()
	if err != nil {
		t.Fatalf("NewKeyPair: %v", err)
	}
	c := New(kp, l, blobs)
	c.now = func() int64 { return 1700000000 }
	return c, kp.Identity()
}

func newWorld(t *testing.T) (*Client, wallet.Identity, ledger.Ledger, *memory.Store) {
	t.Helper()
	l := ledger.NewMemory()
	blobs := memory.New()
	c, id := newClient(t, l, blobs)
	return c, id, l, blobs
}

func TestCommitmentAtMostOnce(t *testing.T) {
	c, id, l, _ := newWorld(t)
	ctx := context.Background()

	data := []byte("whistleblower dossier, draft 3")
	f, err := c.CreateCommitment(ctx, data)
	if err != nil {
		t.Fatalf("CreateCommitment: %v", err)
	}
	if f != FingerprintOf(data) {
		t.Fatalf("fingerprint mismatch")
	}

	got, err := c.VerifyCommitment(ctx, f)
	if err != nil {
		t.Fatalf("VerifyCommitment: %v", err)
	}
	if got.Owner != id || got.Timestamp != 1700000000 {
		t.Fatalf("unexpected commitment: %+v", got)
	}

	// Same content, any identity: refused.
	other, _ := newClient(t, l, memory.New())
	if _, err := other.CreateCommitment(ctx, data); !IsKind(err, KindConflict) {
		t.Fatalf("duplicate commitment: got %v, want KindConflict", err)
	}

	// First record untouched by the rejected attempt.
	again, err := c.VerifyCommitment(ctx, f)
	if err != nil {
		t.Fatalf("VerifyCommitment after conflict: %v", err)
	}
	if again.Owner != id {
		t.Fatalf("commitment owner changed after rejected duplicate")
	}
}

func TestVerifyUnknownFingerprint(t *testing.T) {
	c, _, _, _ := newWorld(t)
	_, err := c.VerifyCommitment(context.Background(), FingerprintOf([]byte("never stamped")))
	if !IsKind(err, KindNotFound) {
		t.Fatalf("got %v, want KindNotFound", err)
	}
}

func TestCommitmentReceipt(t *testing.T) {
	c, id, _, _ := newWorld(t)
	ctx := context.Background()

	f, err := c.CreateCommitment(ctx, []byte("receipt fodder"))
	if err != nil {
		t.Fatalf("CreateCommitment: %v", err)
	}
	receipt, err := c.CommitmentReceipt(ctx, f)
	if err != nil {
		t.Fatalf("CommitmentReceipt: %v", err)
	}
	if receipt.Identity != id || receipt.Fingerprint != f {
		t.Fatalf("receipt does not match the ledger record")
	}

	rk, err := wallet.NewReceiptKey()
	if err != nil {
		t.Fatalf("NewReceiptKey: %v", err)
	}
	signed := rk.Sign(receipt)
	if err := wallet.VerifyReceipt(receipt, rk.PublicKey(), signed); err != nil {
		t.Fatalf("receipt signature did not verify: %v", err)
	}
}

func TestNamespaceLifecycle(t *testing.T) {
	c, id, l, blobs := newWorld(t)
	ctx := context.Background()

	grant, err := c.CreateNamespace(ctx, "tips", "Tip Line", "sealed drop box")
	if err != nil {
		t.Fatalf("CreateNamespace: %v", err)
	}
	if len(grant.PrivateKey) != seal.PrivateKeySize {
		t.Fatalf("private key is %d bytes, want %d", len(grant.PrivateKey), seal.PrivateKeySize)
	}
	if grant.Namespace.Admin != id || !grant.Namespace.Active {
		t.Fatalf("unexpected grant namespace: %+v", grant.Namespace)
	}

	if _, err := c.CreateNamespace(ctx, "tips", "", ""); !IsKind(err, KindConflict) {
		t.Fatalf("duplicate slug: got %v, want KindConflict", err)
	}

	// Validation failures never touch key generation or the ledger.
	long := make([]byte, MaxSlugLen+1)
	for i := range long {
		long[i] = 'x'
	}
	if _, err := c.CreateNamespace(ctx, string(long), "", ""); !IsKind(err, KindInvalid) {
		t.Fatalf("oversized slug: got %v, want KindInvalid", err)
	}

	// Non-admin cannot deactivate.
	stranger, _ := newClient(t, l, blobs)
	if err := stranger.DeactivateNamespace(ctx, "tips"); !IsKind(err, KindPolicy) {
		t.Fatalf("stranger deactivate: got %v, want KindPolicy", err)
	}

	if err := c.DeactivateNamespace(ctx, "tips"); err != nil {
		t.Fatalf("DeactivateNamespace: %v", err)
	}
	if err := c.DeactivateNamespace(ctx, "tips"); !IsKind(err, KindPolicy) {
		t.Fatalf("second deactivate: got %v, want KindPolicy", err)
	}

	ns, err := c.GetNamespace(ctx, "tips")
	if err != nil {
		t.Fatalf("GetNamespace: %v", err)
	}
	if ns.Active {
		t.Fatalf("namespace still active after deactivation")
	}
}

func TestSubmitSequencing(t *testing.T) {
	c, _, l, blobs := newWorld(t)
	ctx := context.Background()

	grant, err := c.CreateNamespace(ctx, "leaks", "Leaks", "")
	if err != nil {
		t.Fatalf("CreateNamespace: %v", err)
	}

	submitter, sid := newClient(t, l, blobs)
	for want := uint64(0); want < 3; want++ {
		env := envelope.Envelope{Message: "drop " + string(rune('a'+want))}
		id, err := submitter.Submit(ctx, "leaks", env)
		if err != nil {
			t.Fatalf("Submit %d: %v", want, err)
		}
		if id != want {
			t.Fatalf("submission id = %d, want %d", id, want)
		}
	}

	ns, err := c.GetNamespace(ctx, "leaks")
	if err != nil {
		t.Fatalf("GetNamespace: %v", err)
	}
	if ns.SubmissionCount != 3 {
		t.Fatalf("counter = %d, want 3", ns.SubmissionCount)
	}

	sub, err := c.GetSubmission(ctx, "leaks", 1)
	if err != nil {
		t.Fatalf("GetSubmission: %v", err)
	}
	if sub.Submitter != sid || sub.ID != 1 {
		t.Fatalf("unexpected submission: %+v", sub)
	}

	// Admin decrypts with the granted private key.
	kp, err := seal.ParsePrivateKey(grant.PrivateKey)
	if err != nil {
		t.Fatalf("ParsePrivateKey: %v", err)
	}
	env, err := c.Decrypt(ctx, sub.Locator, kp)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if env.Message != "drop b" {
		t.Fatalf("decrypted message = %q", env.Message)
	}

	if _, err := c.GetSubmission(ctx, "leaks", 99); !IsKind(err, KindNotFound) {
		t.Fatalf("missing submission: got %v, want KindNotFound", err)
	}
}

func TestSubmitClosedNamespace(t *testing.T) {
	c, _, l, blobs := newWorld(t)
	ctx := context.Background()

	if _, err := c.CreateNamespace(ctx, "gone", "", ""); err != nil {
		t.Fatalf("CreateNamespace: %v", err)
	}
	if err := c.DeactivateNamespace(ctx, "gone"); err != nil {
		t.Fatalf("DeactivateNamespace: %v", err)
	}

	submitter, _ := newClient(t, l, blobs)
	before := blobs.Len()
	if _, err := submitter.Submit(ctx, "gone", envelope.Envelope{Message: "too late"}); !IsKind(err, KindPolicy) {
		t.Fatalf("closed submit: got %v, want KindPolicy", err)
	}
	if blobs.Len() != before {
		t.Fatalf("closed submit stored a blob")
	}

	if _, err := submitter.Submit(ctx, "ghost", envelope.Envelope{}); !IsKind(err, KindNotFound) {
		t.Fatalf("unknown slug: got %v, want KindNotFound", err)
	}
}

// conflictingLedger injects sequence conflicts into Apply before
// delegating, to exercise the counter-refresh retry.
type conflictingLedger struct {
	ledger.Ledger
	conflicts int
	applies   int
}

func (c *conflictingLedger) Apply(ctx context.Context, tx ledger.Transaction) error {
	c.applies++
	if c.conflicts > 0 {
		c.conflicts--
		return ledger.ErrStale
	}
	return c.Ledger.Apply(ctx, tx)
}

func TestSubmitRetriesLostSequenceRaceOnce(t *testing.T) {
	c, _, l, blobs := newWorld(t)
	ctx := context.Background()

	if _, err := c.CreateNamespace(ctx, "contested", "", ""); err != nil {
		t.Fatalf("CreateNamespace: %v", err)
	}

	cl := &conflictingLedger{Ledger: l, conflicts: 1}
	submitter, _ := newClient(t, cl, blobs)
	id, err := submitter.Submit(ctx, "contested", envelope.Envelope{Message: "first"})
	if err != nil {
		t.Fatalf("Submit after one conflict: %v", err)
	}
	if id != 0 {
		t.Fatalf("submission id = %d after refresh, want 0", id)
	}
	if cl.applies != 2 {
		t.Fatalf("ledger applies = %d, want 2 (one conflict, one retry)", cl.applies)
	}

	if _, err := c.GetSubmission(ctx, "contested", 0); err != nil {
		t.Fatalf("GetSubmission after retried submit: %v", err)
	}
}

func TestSubmitSurfacesSecondConflict(t *testing.T) {
	c, _, l, blobs := newWorld(t)
	ctx := context.Background()

	if _, err := c.CreateNamespace(ctx, "contested", "", ""); err != nil {
		t.Fatalf("CreateNamespace: %v", err)
	}

	cl := &conflictingLedger{Ledger: l, conflicts: 2}
	submitter, _ := newClient(t, cl, blobs)
	if _, err := submitter.Submit(ctx, "contested", envelope.Envelope{Message: "never lands"}); !IsKind(err, KindConflict) {
		t.Fatalf("twice-conflicted submit: got %v, want KindConflict", err)
	}
	if cl.applies != 2 {
		t.Fatalf("ledger applies = %d, want 2 (no third attempt)", cl.applies)
	}

	ns, err := c.GetNamespace(ctx, "contested")
	if err != nil {
		t.Fatalf("GetNamespace: %v", err)
	}
	if ns.SubmissionCount != 0 {
		t.Fatalf("counter = %d after failed submit, want 0", ns.SubmissionCount)
	}
}

func TestSendRetriesLostSequenceRaceOnce(t *testing.T) {
	l := ledger.NewMemory()
	blobs := memory.New()
	ctx := context.Background()

	bob, bobID := newClient(t, l, blobs)
	if _, err := bob.ActivateInbox(ctx); err != nil {
		t.Fatalf("ActivateInbox: %v", err)
	}

	cl := &conflictingLedger{Ledger: l, conflicts: 1}
	alice, _ := newClient(t, cl, blobs)
	id, err := alice.Send(ctx, bobID, envelope.Envelope{Message: "first"}, false)
	if err != nil {
		t.Fatalf("Send after one conflict: %v", err)
	}
	if id != 0 {
		t.Fatalf("message id = %d after refresh, want 0", id)
	}
	if cl.applies != 2 {
		t.Fatalf("ledger applies = %d, want 2 (one conflict, one retry)", cl.applies)
	}

	if _, err := bob.GetMessage(ctx, bobID, 0); err != nil {
		t.Fatalf("GetMessage after retried send: %v", err)
	}
}

func TestSendSurfacesSecondConflict(t *testing.T) {
	l := ledger.NewMemory()
	blobs := memory.New()
	ctx := context.Background()

	bob, bobID := newClient(t, l, blobs)
	if _, err := bob.ActivateInbox(ctx); err != nil {
		t.Fatalf("ActivateInbox: %v", err)
	}

	cl := &conflictingLedger{Ledger: l, conflicts: 2}
	alice, _ := newClient(t, cl, blobs)
	if _, err := alice.Send(ctx, bobID, envelope.Envelope{Message: "never lands"}, false); !IsKind(err, KindConflict) {
		t.Fatalf("twice-conflicted send: got %v, want KindConflict", err)
	}
	if cl.applies != 2 {
		t.Fatalf("ledger applies = %d, want 2 (no third attempt)", cl.applies)
	}

	if _, err := bob.GetMessage(ctx, bobID, 0); !IsKind(err, KindNotFound) {
		t.Fatalf("message after failed send: got %v, want KindNotFound", err)
	}
}

func TestInboxActivationIdempotent(t *testing.T) {
	c, id, _, _ := newWorld(t)
	ctx := context.Background()

	first, err := c.ActivateInbox(ctx)
	if err != nil {
		t.Fatalf("ActivateInbox: %v", err)
	}
	second, err := c.ActivateInbox(ctx)
	if err != nil {
		t.Fatalf("second ActivateInbox: %v", err)
	}
	if string(first) != string(second) {
		t.Fatalf("reactivation produced a different key")
	}

	inbox, err := c.GetInbox(ctx, id)
	if err != nil {
		t.Fatalf("GetInbox: %v", err)
	}
	if string(inbox.EncryptionKey[:]) != string(first) {
		t.Fatalf("recorded key differs from returned key")
	}
}

func TestDirectMessageRoundTrip(t *testing.T) {
	l := ledger.NewMemory()
	blobs := memory.New()
	ctx := context.Background()

	bob, bobID := newClient(t, l, blobs)
	if _, err := bob.ActivateInbox(ctx); err != nil {
		t.Fatalf("ActivateInbox: %v", err)
	}

	alice, aliceID := newClient(t, l, blobs)
	env := envelope.Envelope{
		Message: "meet at the usual place",
		Attachments: []envelope.Attachment{
			{Name: "map.png", ContentType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}},
		},
	}
	id, err := alice.Send(ctx, bobID, env, false)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if id != 0 {
		t.Fatalf("first message id = %d, want 0", id)
	}

	msg, err := bob.GetMessage(ctx, bobID, 0)
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if msg.Sender != aliceID || msg.Recipient != bobID {
		t.Fatalf("unexpected message: %+v", msg)
	}

	// Bob re-derives the inbox key, as on a fresh device.
	kp, err := bob.DeriveInboxKey()
	if err != nil {
		t.Fatalf("DeriveInboxKey: %v", err)
	}
	got, err := bob.Decrypt(ctx, msg.Locator, kp)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if got.Message != env.Message || len(got.Attachments) != 1 || got.Attachments[0].Name != "map.png" {
		t.Fatalf("decrypted envelope = %+v", got)
	}

	// Eve holds a different wallet; her derived key must not open it.
	eve, _ := newClient(t, l, blobs)
	evekp, err := eve.DeriveInboxKey()
	if err != nil {
		t.Fatalf("eve DeriveInboxKey: %v", err)
	}
	if _, err := eve.Decrypt(ctx, msg.Locator, evekp); !IsKind(err, KindAuthentication) {
		t.Fatalf("eve decrypt: got %v, want KindAuthentication", err)
	}
}

func TestSendRequiresInbox(t *testing.T) {
	c, _, l, blobs := newWorld(t)
	ctx := context.Background()

	_, strangerID := newClient(t, l, blobs)
	if _, err := c.Send(ctx, strangerID, envelope.Envelope{Message: "hello?"}, false); !IsKind(err, KindNotFound) {
		t.Fatalf("send without inbox: got %v, want KindNotFound", err)
	}
}

func TestBurn(t *testing.T) {
	l := ledger.NewMemory()
	blobs := memory.New()
	ctx := context.Background()

	bob, bobID := newClient(t, l, blobs)
	if _, err := bob.ActivateInbox(ctx); err != nil {
		t.Fatalf("ActivateInbox: %v", err)
	}
	alice, _ := newClient(t, l, blobs)
	if _, err := alice.Send(ctx, bobID, envelope.Envelope{Message: "this will self-destruct"}, true); err != nil {
		t.Fatalf("Send: %v", err)
	}

	// Only the recipient may burn.
	if err := alice.Burn(ctx, 0); !IsKind(err, KindNotFound) {
		// Alice's own inbox address has no message 0.
		t.Fatalf("sender burn: got %v, want KindNotFound", err)
	}

	if err := bob.Burn(ctx, 0); err != nil {
		t.Fatalf("Burn: %v", err)
	}
	msg, err := bob.GetMessage(ctx, bobID, 0)
	if err != nil {
		t.Fatalf("GetMessage after burn: %v", err)
	}
	if !msg.Burned || !msg.BurnAfterReading {
		t.Fatalf("burn flags not set: %+v", msg)
	}

	if err := bob.Burn(ctx, 0); !IsKind(err, KindPolicy) {
		t.Fatalf("double burn: got %v, want KindPolicy", err)
	}

	// Burn flips a flag; the sealed blob survives.
	if blobs.Len() != 1 {
		t.Fatalf("blob count = %d after burn, want 1", blobs.Len())
	}
}

func TestVouchCycle(t *testing.T) {
	c, id, _, _ := newWorld(t)
	ctx := context.Background()

	f := FingerprintOf([]byte("attested content"))
	ok, err := c.Vouched(ctx, id, f)
	if err != nil || ok {
		t.Fatalf("Vouched before vouch = %v, %v", ok, err)
	}

	if err := c.Vouch(ctx, f); err != nil {
		t.Fatalf("Vouch: %v", err)
	}
	if err := c.Vouch(ctx, f); !IsKind(err, KindConflict) {
		t.Fatalf("double vouch: got %v, want KindConflict", err)
	}
	if ok, _ := c.Vouched(ctx, id, f); !ok {
		t.Fatalf("Vouched after vouch = false")
	}

	if err := c.Unvouch(ctx, f); err != nil {
		t.Fatalf("Unvouch: %v", err)
	}
	if err := c.Unvouch(ctx, f); !IsKind(err, KindNotFound) {
		t.Fatalf("double unvouch: got %v, want KindNotFound", err)
	}

	// The address is free again.
	if err := c.Vouch(ctx, f); err != nil {
		t.Fatalf("re-vouch: %v", err)
	}
}

func TestRecordCodecs(t *testing.T) {
	var owner wallet.Identity
	copy(owner[:], []byte("owner-identity-owner-identity-00"))
	var peer wallet.Identity
	copy(peer[:], []byte("peer-identity-peer-identity-0000"))
	f := FingerprintOf([]byte("codec"))

	ns := Namespace{
		Slug:            "codec",
		Name:            "Codec Test",
		Description:     "round trip",
		Admin:           owner,
		SubmissionCount: 42,
		CreatedAt:       123456789,
		Active:          true,
	}
	ns.EncryptionKey[0] = 0x04
	got, err := decodeNamespace(ns.encode())
	if err != nil {
		t.Fatalf("decodeNamespace: %v", err)
	}
	if got != ns {
		t.Fatalf("namespace round trip: %+v != %+v", got, ns)
	}

	msg := DirectMessage{
		ID:               7,
		Sender:           owner,
		Recipient:        peer,
		Locator:          "bafkreidemo",
		BurnAfterReading: true,
		Burned:           false,
		Timestamp:        99,
	}
	gotMsg, err := decodeDirectMessage(msg.encode())
	if err != nil {
		t.Fatalf("decodeDirectMessage: %v", err)
	}
	if gotMsg != msg {
		t.Fatalf("message round trip: %+v != %+v", gotMsg, msg)
	}

	att := Attestation{Voucher: owner, Fingerprint: f, Timestamp: 5}
	gotAtt, err := decodeAttestation(att.encode())
	if err != nil {
		t.Fatalf("decodeAttestation: %v", err)
	}
	if gotAtt != att {
		t.Fatalf("attestation round trip: %+v != %+v", gotAtt, att)
	}

	// Truncated input fails cleanly rather than panicking.
	raw := ns.encode()
	if _, err := decodeNamespace(raw[:len(raw)-3]); err == nil {
		t.Fatalf("truncated namespace decoded")
	}
	if _, err := decodeCommitment(nil); err == nil {
		t.Fatalf("nil commitment decoded")
	}
}

func TestErrorKinds(t *testing.T) {
	c, _, _, _ := newWorld(t)
	ctx := context.Background()

	_, err := c.VerifyCommitment(ctx, Fingerprint{})
	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("error is not *Error: %v", err)
	}
	if perr.Kind != KindNotFound || perr.Op == "" {
		t.Fatalf("unexpected error shape: %+v", perr)
	}
	if IsKind(err, KindConflict) {
		t.Fatalf("IsKind matched the wrong kind")
	}
}
