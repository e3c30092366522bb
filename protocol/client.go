package protocol

import (
	"context"
	"errors"
	"fmt"
	"time"

	"xdao.co/void/envelope"
	"xdao.co/void/ledger"
	"xdao.co/void/seal"
	"xdao.co/void/storage"
	"xdao.co/void/wallet"
)

// Client orchestrates commitments over a wallet, a ledger, and a blob
// store. Within one operation the chain is strictly sequential: seal,
// then store the blob, then write the ledger record referencing the
// locator. The ledger write never precedes blob storage, so a reader can
// never observe a dangling locator.
type Client struct {
	signer wallet.Signer
	ledger ledger.Ledger
	blobs  storage.BlobStore

	// now is the timestamp source; overridable in tests.
	now func() int64
}

// New constructs a client for the given collaborators.
func New(signer wallet.Signer, l ledger.Ledger, blobs storage.BlobStore) *Client {
	return &Client{
		signer: signer,
		ledger: l,
		blobs:  blobs,
		now:    func() int64 { return time.Now().Unix() },
	}
}

// NamespaceGrant is the result of creating a namespace. PrivateKey is the
// recipient private scalar, disclosed exactly once here and never
// persisted anywhere by the protocol: if the caller loses it, submissions
// to this namespace are unrecoverable.
type NamespaceGrant struct {
	Namespace  Namespace
	PrivateKey []byte
}

// CreateCommitment registers a proof that data existed now. The content
// itself never leaves the caller; only its fingerprint goes on the
// ledger.
func (c *Client) CreateCommitment(ctx context.Context, data []byte) (Fingerprint, error) {
	const op = "create commitment"
	f := FingerprintOf(data)

	record := Commitment{Fingerprint: f, Owner: c.signer.Identity(), Timestamp: c.now()}
	err := c.ledger.Apply(ctx, ledger.Transaction{Creates: []ledger.Account{{
		Address:   CommitmentAddress(f),
		Tag:       "proof",
		Owner:     record.Owner,
		CreatedAt: record.Timestamp,
		Data:      record.encode(),
	}}})
	if err != nil {
		if errors.Is(err, ledger.ErrOccupied) {
			return f, wrapError(KindConflict, op, "fingerprint "+f.String()+" already committed", err)
		}
		return Fingerprint{}, wrapError(KindTransport, op, "ledger write failed", err)
	}
	return f, nil
}

// VerifyCommitment reports the commitment recorded for a fingerprint.
// Absence surfaces as KindNotFound; callers branch on it, since "this
// content was never stamped" is an answer, not a failure.
func (c *Client) VerifyCommitment(ctx context.Context, f Fingerprint) (Commitment, error) {
	const op = "verify commitment"
	acct, err := c.ledger.Get(ctx, CommitmentAddress(f))
	if err != nil {
		if errors.Is(err, ledger.ErrAbsent) {
			return Commitment{}, wrapError(KindNotFound, op, "fingerprint "+f.String()+" not committed", err)
		}
		return Commitment{}, wrapError(KindTransport, op, "ledger read failed", err)
	}
	record, err := decodeCommitment(acct.Data)
	if err != nil {
		return Commitment{}, wrapError(KindTransport, op, "corrupt commitment record", err)
	}
	return record, nil
}

// CommitmentReceipt builds an exportable receipt for a verified
// commitment, ready for signing with a wallet.ReceiptKey.
func (c *Client) CommitmentReceipt(ctx context.Context, f Fingerprint) (wallet.Receipt, error) {
	record, err := c.VerifyCommitment(ctx, f)
	if err != nil {
		return wallet.Receipt{}, err
	}
	return wallet.Receipt{
		Identity:    record.Owner,
		Fingerprint: record.Fingerprint,
		Timestamp:   record.Timestamp,
	}, nil
}

// CreateNamespace opens a drop box under slug. The returned grant carries
// the one-time private-key disclosure; see NamespaceGrant.
func (c *Client) CreateNamespace(ctx context.Context, slug, name, description string) (NamespaceGrant, error) {
	const op = "create namespace"
	if slug == "" {
		return NamespaceGrant{}, newError(KindInvalid, op, "slug cannot be empty")
	}
	if len(slug) > MaxSlugLen {
		return NamespaceGrant{}, newError(KindInvalid, op, fmt.Sprintf("slug is %d chars (max %d)", len(slug), MaxSlugLen))
	}
	if len(name) > MaxNameLen {
		return NamespaceGrant{}, newError(KindInvalid, op, fmt.Sprintf("name is %d chars (max %d)", len(name), MaxNameLen))
	}
	if len(description) > MaxDescriptionLen {
		return NamespaceGrant{}, newError(KindInvalid, op, fmt.Sprintf("description is %d chars (max %d)", len(description), MaxDescriptionLen))
	}

	kp, err := seal.GenerateRecipientKey()
	if err != nil {
		return NamespaceGrant{}, wrapError(KindDerivation, op, "recipient key generation failed", err)
	}

	record := Namespace{
		Slug:        slug,
		Name:        name,
		Description: description,
		Admin:       c.signer.Identity(),
		CreatedAt:   c.now(),
		Active:      true,
	}
	copy(record.EncryptionKey[:], kp.PublicKey())

	err = c.ledger.Apply(ctx, ledger.Transaction{Creates: []ledger.Account{{
		Address:   NamespaceAddress(slug),
		Tag:       "org",
		Owner:     record.Admin,
		CreatedAt: record.CreatedAt,
		Data:      record.encode(),
	}}})
	if err != nil {
		if errors.Is(err, ledger.ErrOccupied) {
			return NamespaceGrant{}, wrapError(KindConflict, op, "slug "+slug+" already exists", err)
		}
		return NamespaceGrant{}, wrapError(KindTransport, op, "ledger write failed", err)
	}
	return NamespaceGrant{Namespace: record, PrivateKey: kp.PrivateKey()}, nil
}

// GetNamespace reads the namespace registered under slug.
func (c *Client) GetNamespace(ctx context.Context, slug string) (Namespace, error) {
	const op = "get namespace"
	acct, err := c.ledger.Get(ctx, NamespaceAddress(slug))
	if err != nil {
		if errors.Is(err, ledger.ErrAbsent) {
			return Namespace{}, wrapError(KindNotFound, op, "unknown slug "+slug, err)
		}
		return Namespace{}, wrapError(KindTransport, op, "ledger read failed", err)
	}
	record, err := decodeNamespace(acct.Data)
	if err != nil {
		return Namespace{}, wrapError(KindTransport, op, "corrupt namespace record", err)
	}
	return record, nil
}

// DeactivateNamespace soft-closes a namespace: existing submissions stay
// readable, new ones are refused. Admin only; one-directional.
func (c *Client) DeactivateNamespace(ctx context.Context, slug string) error {
	const op = "deactivate namespace"
	record, err := c.GetNamespace(ctx, slug)
	if err != nil {
		return err
	}
	if record.Admin != c.signer.Identity() {
		return newError(KindPolicy, op, "only the admin may deactivate "+slug)
	}
	if !record.Active {
		return newError(KindPolicy, op, "namespace "+slug+" is already inactive")
	}

	prev := record.encode()
	record.Active = false
	err = c.ledger.Apply(ctx, ledger.Transaction{Updates: []ledger.Update{{
		Address: NamespaceAddress(slug),
		Prev:    prev,
		Next:    record.encode(),
	}}})
	if err != nil {
		if errors.Is(err, ledger.ErrStale) {
			return wrapError(KindConflict, op, "namespace "+slug+" changed concurrently", err)
		}
		return wrapError(KindTransport, op, "ledger write failed", err)
	}
	return nil
}

// Submit seals an envelope for a namespace's recipient key, stores the
// sealed blob, and records the submission under the next sequence id.
// A lost sequence race is retried exactly once after re-reading the
// counter; a second conflict surfaces to the caller.
func (c *Client) Submit(ctx context.Context, slug string, env envelope.Envelope) (uint64, error) {
	const op = "submit"

	record, err := c.GetNamespace(ctx, slug)
	if err != nil {
		return 0, err
	}
	if !record.Active {
		return 0, newError(KindPolicy, op, "namespace "+slug+" is not accepting submissions")
	}

	locator, err := c.sealAndStore(op, env, record.EncryptionKey[:])
	if err != nil {
		return 0, err
	}

	nsAddr := NamespaceAddress(slug)
	for attempt := 0; attempt < 2; attempt++ {
		id := record.SubmissionCount
		sub := Submission{
			ID:        id,
			Namespace: nsAddr,
			Locator:   locator,
			Submitter: c.signer.Identity(),
			Timestamp: c.now(),
		}

		prev := record.encode()
		next := record
		next.SubmissionCount++

		err = c.ledger.Apply(ctx, ledger.Transaction{
			Creates: []ledger.Account{{
				Address:   SubmissionAddress(nsAddr, id),
				Tag:       "submission",
				Owner:     sub.Submitter,
				CreatedAt: sub.Timestamp,
				Data:      sub.encode(),
			}},
			Updates: []ledger.Update{{Address: nsAddr, Prev: prev, Next: next.encode()}},
		})
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, ledger.ErrStale) && !errors.Is(err, ledger.ErrOccupied) {
			return 0, wrapError(KindTransport, op, "ledger write failed", err)
		}

		// Lost the sequence race; refresh the counter and try once more.
		record, err = c.GetNamespace(ctx, slug)
		if err != nil {
			return 0, err
		}
		if !record.Active {
			return 0, newError(KindPolicy, op, "namespace "+slug+" is not accepting submissions")
		}
	}
	return 0, newError(KindConflict, op, "submission to "+slug+" conflicted twice; try again")
}

// GetSubmission reads one submission of a namespace by sequence id.
func (c *Client) GetSubmission(ctx context.Context, slug string, id uint64) (Submission, error) {
	const op = "get submission"
	acct, err := c.ledger.Get(ctx, SubmissionAddress(NamespaceAddress(slug), id))
	if err != nil {
		if errors.Is(err, ledger.ErrAbsent) {
			return Submission{}, wrapError(KindNotFound, op, fmt.Sprintf("%s has no submission %d", slug, id), err)
		}
		return Submission{}, wrapError(KindTransport, op, "ledger read failed", err)
	}
	record, err := decodeSubmission(acct.Data)
	if err != nil {
		return Submission{}, wrapError(KindTransport, op, "corrupt submission record", err)
	}
	return record, nil
}

// ActivateInbox derives the caller's inbox encryption key from a wallet
// signature over the fixed activation message and records the public
// half. Reactivation with the same wallet is idempotent in effect: the
// derivation is deterministic, so the existing record already holds the
// re-derived key.
func (c *Client) ActivateInbox(ctx context.Context) ([]byte, error) {
	const op = "activate inbox"

	kp, err := c.deriveInboxKey(op)
	if err != nil {
		return nil, err
	}
	pub := kp.PublicKey()
	owner := c.signer.Identity()

	record := Inbox{Owner: owner, CreatedAt: c.now()}
	copy(record.EncryptionKey[:], pub)

	err = c.ledger.Apply(ctx, ledger.Transaction{Creates: []ledger.Account{{
		Address:   InboxAddress(owner),
		Tag:       "inbox",
		Owner:     owner,
		CreatedAt: record.CreatedAt,
		Data:      record.encode(),
	}}})
	if err == nil {
		return pub, nil
	}
	if !errors.Is(err, ledger.ErrOccupied) {
		return nil, wrapError(KindTransport, op, "ledger write failed", err)
	}

	existing, gerr := c.GetInbox(ctx, owner)
	if gerr != nil {
		return nil, gerr
	}
	if string(existing.EncryptionKey[:]) != string(pub) {
		return nil, wrapError(KindConflict, op, "inbox exists with a different encryption key", err)
	}
	return pub, nil
}

// GetInbox reads an identity's inbox.
func (c *Client) GetInbox(ctx context.Context, owner wallet.Identity) (Inbox, error) {
	const op = "get inbox"
	acct, err := c.ledger.Get(ctx, InboxAddress(owner))
	if err != nil {
		if errors.Is(err, ledger.ErrAbsent) {
			return Inbox{}, wrapError(KindNotFound, op, "no inbox for "+owner.String(), err)
		}
		return Inbox{}, wrapError(KindTransport, op, "ledger read failed", err)
	}
	record, err := decodeInbox(acct.Data)
	if err != nil {
		return Inbox{}, wrapError(KindTransport, op, "corrupt inbox record", err)
	}
	return record, nil
}

// Send seals an envelope for a recipient's inbox key and records the
// message under the next sequence id, with the same single-retry
// discipline as Submit. The recipient must have activated their inbox.
func (c *Client) Send(ctx context.Context, recipient wallet.Identity, env envelope.Envelope, burnAfterReading bool) (uint64, error) {
	const op = "send"

	inbox, err := c.GetInbox(ctx, recipient)
	if err != nil {
		return 0, err
	}

	locator, err := c.sealAndStore(op, env, inbox.EncryptionKey[:])
	if err != nil {
		return 0, err
	}

	inboxAddr := InboxAddress(recipient)
	for attempt := 0; attempt < 2; attempt++ {
		id := inbox.MessageCount
		msg := DirectMessage{
			ID:               id,
			Sender:           c.signer.Identity(),
			Recipient:        recipient,
			Locator:          locator,
			BurnAfterReading: burnAfterReading,
			Timestamp:        c.now(),
		}

		prev := inbox.encode()
		next := inbox
		next.MessageCount++

		err = c.ledger.Apply(ctx, ledger.Transaction{
			Creates: []ledger.Account{{
				Address:   MessageAddress(recipient, id),
				Tag:       "dm",
				Owner:     msg.Sender,
				CreatedAt: msg.Timestamp,
				Data:      msg.encode(),
			}},
			Updates: []ledger.Update{{Address: inboxAddr, Prev: prev, Next: next.encode()}},
		})
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, ledger.ErrStale) && !errors.Is(err, ledger.ErrOccupied) {
			return 0, wrapError(KindTransport, op, "ledger write failed", err)
		}

		inbox, err = c.GetInbox(ctx, recipient)
		if err != nil {
			return 0, err
		}
	}
	return 0, newError(KindConflict, op, "message to "+recipient.String()+" conflicted twice; try again")
}

// GetMessage reads one direct message by recipient and sequence id.
func (c *Client) GetMessage(ctx context.Context, recipient wallet.Identity, id uint64) (DirectMessage, error) {
	const op = "get message"
	acct, err := c.ledger.Get(ctx, MessageAddress(recipient, id))
	if err != nil {
		if errors.Is(err, ledger.ErrAbsent) {
			return DirectMessage{}, wrapError(KindNotFound, op, fmt.Sprintf("no message %d for %s", id, recipient), err)
		}
		return DirectMessage{}, wrapError(KindTransport, op, "ledger read failed", err)
	}
	record, err := decodeDirectMessage(acct.Data)
	if err != nil {
		return DirectMessage{}, wrapError(KindTransport, op, "corrupt message record", err)
	}
	return record, nil
}

// Burn marks one of the caller's received messages as destroyed. The
// transition is one-directional and not idempotent: burning an already
// burned message is refused, since it signals a logic error upstream.
// The sealed blob is not erased; burn is a visibility flag, not a
// deletion guarantee.
func (c *Client) Burn(ctx context.Context, id uint64) error {
	const op = "burn"
	recipient := c.signer.Identity()

	msg, err := c.GetMessage(ctx, recipient, id)
	if err != nil {
		return err
	}
	if msg.Recipient != recipient {
		return newError(KindPolicy, op, "only the recipient may burn a message")
	}
	if msg.Burned {
		return newError(KindPolicy, op, fmt.Sprintf("message %d is already burned", id))
	}

	prev := msg.encode()
	msg.Burned = true
	err = c.ledger.Apply(ctx, ledger.Transaction{Updates: []ledger.Update{{
		Address: MessageAddress(recipient, id),
		Prev:    prev,
		Next:    msg.encode(),
	}}})
	if err != nil {
		if errors.Is(err, ledger.ErrStale) {
			return newError(KindPolicy, op, fmt.Sprintf("message %d is already burned", id))
		}
		return wrapError(KindTransport, op, "ledger write failed", err)
	}
	return nil
}

// DeriveInboxKey re-derives the caller's inbox key pair for decryption,
// e.g. on a new device. Nothing is read from or written to the ledger.
func (c *Client) DeriveInboxKey() (*seal.KeyPair, error) {
	return c.deriveInboxKey("derive inbox key")
}

// Decrypt fetches a sealed blob by its locator and unseals it with the
// given key pair. Wrong-key and tampered-data failures surface as
// KindAuthentication, distinct from the blob being unavailable.
func (c *Client) Decrypt(ctx context.Context, locator string, kp *seal.KeyPair) (envelope.Envelope, error) {
	const op = "decrypt"

	id, err := storage.ParseLocator(locator)
	if err != nil {
		return envelope.Envelope{}, wrapError(KindInvalid, op, "invalid locator "+locator, err)
	}
	blob, err := c.blobs.Get(id)
	if err != nil {
		if storage.IsNotFound(err) {
			return envelope.Envelope{}, wrapError(KindNotFound, op, "locator "+locator+" not found in any store", err)
		}
		return envelope.Envelope{}, wrapError(KindTransport, op, "locator "+locator+" could not be fetched", err)
	}

	packet, err := seal.ParsePacket(blob)
	if err != nil {
		return envelope.Envelope{}, wrapError(KindAuthentication, op, "locator "+locator+" holds a malformed packet", err)
	}
	plaintext, err := seal.Unseal(packet, kp)
	if err != nil {
		if errors.Is(err, seal.ErrAuthentication) {
			return envelope.Envelope{}, wrapError(KindAuthentication, op, "locator "+locator+" failed authentication", err)
		}
		return envelope.Envelope{}, wrapError(KindAuthentication, op, "unseal failed", err)
	}
	env, err := envelope.Decode(plaintext)
	if err != nil {
		return envelope.Envelope{}, wrapError(KindInvalid, op, "sealed payload is not a valid envelope", err)
	}
	return env, nil
}

// Vouch stakes the caller's identity against a fingerprint. Vouching
// twice without unvouching is a conflict.
func (c *Client) Vouch(ctx context.Context, f Fingerprint) error {
	const op = "vouch"
	voucher := c.signer.Identity()

	record := Attestation{Voucher: voucher, Fingerprint: f, Timestamp: c.now()}
	err := c.ledger.Apply(ctx, ledger.Transaction{Creates: []ledger.Account{{
		Address:   AttestationAddress(voucher, f),
		Tag:       "vouch",
		Owner:     voucher,
		CreatedAt: record.Timestamp,
		Data:      record.encode(),
	}}})
	if err != nil {
		if errors.Is(err, ledger.ErrOccupied) {
			return wrapError(KindConflict, op, "already vouching for "+f.String(), err)
		}
		return wrapError(KindTransport, op, "ledger write failed", err)
	}
	return nil
}

// Unvouch withdraws the caller's attestation, freeing the address for a
// future re-vouch.
func (c *Client) Unvouch(ctx context.Context, f Fingerprint) error {
	const op = "unvouch"
	voucher := c.signer.Identity()

	err := c.ledger.Apply(ctx, ledger.Transaction{Deletes: []ledger.Delete{{
		Address: AttestationAddress(voucher, f),
	}}})
	if err != nil {
		if errors.Is(err, ledger.ErrAbsent) {
			return wrapError(KindNotFound, op, "not vouching for "+f.String(), err)
		}
		return wrapError(KindTransport, op, "ledger write failed", err)
	}
	return nil
}

// Vouched reports whether voucher currently attests to f.
func (c *Client) Vouched(ctx context.Context, voucher wallet.Identity, f Fingerprint) (bool, error) {
	const op = "vouched"
	_, err := c.ledger.Get(ctx, AttestationAddress(voucher, f))
	if err != nil {
		if errors.Is(err, ledger.ErrAbsent) {
			return false, nil
		}
		return false, wrapError(KindTransport, op, "ledger read failed", err)
	}
	return true, nil
}

func (c *Client) deriveInboxKey(op string) (*seal.KeyPair, error) {
	sig, err := c.signer.Sign([]byte(seal.ActivationMessage))
	if err != nil {
		// The signer declining is a cancellation, not a protocol failure.
		return nil, wrapError(KindPolicy, op, "signature request declined", err)
	}
	kp, err := seal.DeriveRecipientKey(sig)
	if err != nil {
		return nil, wrapError(KindDerivation, op, "inbox key derivation failed", err)
	}
	return kp, nil
}

// sealAndStore runs the first two links of the commitment chain: seal the
// envelope for the recipient key, persist the sealed bytes, return the
// locator for the ledger record.
func (c *Client) sealAndStore(op string, env envelope.Envelope, recipientKey []byte) (string, error) {
	plaintext, err := env.Encode()
	if err != nil {
		return "", wrapError(KindInvalid, op, "invalid envelope", err)
	}
	packet, err := seal.Seal(plaintext, recipientKey)
	if err != nil {
		return "", wrapError(KindInvalid, op, "sealing failed", err)
	}
	id, err := c.blobs.Put(packet.Encode())
	if err != nil {
		return "", wrapError(KindTransport, op, "sealed blob could not be stored", err)
	}
	locator := id.String()
	if len(locator) > MaxLocatorLen {
		return "", newError(KindInvalid, op, fmt.Sprintf("locator is %d chars (max %d)", len(locator), MaxLocatorLen))
	}
	return locator, nil
}
