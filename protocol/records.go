// Package protocol implements the content-commitment instructions and
// their on-ledger records: proof-of-existence commitments, namespace drop
// boxes, sealed submissions, inbox messaging with burn-after-reading, and
// toggleable attestations.
//
// Records have fixed binary layouts so that every implementation reads
// the same account bytes; layouts never change shape, they gain new tags.
package protocol

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"xdao.co/void/address"
	"xdao.co/void/wallet"
)

// Field caps, shared with every other implementation of the protocol.
const (
	MaxSlugLen        = 32
	MaxNameLen        = 64
	MaxDescriptionLen = 256
	MaxLocatorLen     = 64
)

// EncryptionKeySize is the width of a recipient public key as stored in
// namespace and inbox records (uncompressed P-256 point).
const EncryptionKeySize = 65

// A Fingerprint is the 32-byte content hash that identifies committed
// content without revealing it.
type Fingerprint [32]byte

// FingerprintOf computes the fingerprint of arbitrary content.
func FingerprintOf(data []byte) Fingerprint {
	return Fingerprint(sha256.Sum256(data))
}

func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// ParseFingerprint decodes the hex form of a fingerprint.
func ParseFingerprint(s string) (Fingerprint, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("protocol: invalid fingerprint hex: %w", err)
	}
	if len(raw) != len(Fingerprint{}) {
		return Fingerprint{}, fmt.Errorf("protocol: fingerprint must be %d bytes, got %d", len(Fingerprint{}), len(raw))
	}
	var f Fingerprint
	copy(f[:], raw)
	return f, nil
}

// Address derivations. These are the only lookup mechanism the protocol
// has: the seeds are the query.

func CommitmentAddress(f Fingerprint) address.Address {
	return address.Derive(address.TagProof, f[:])
}

func NamespaceAddress(slug string) address.Address {
	return address.Derive(address.TagNamespace, []byte(slug))
}

func SubmissionAddress(namespace address.Address, id uint64) address.Address {
	return address.Derive(address.TagSubmission, namespace[:], address.Uint64Seed(id))
}

func InboxAddress(owner wallet.Identity) address.Address {
	return address.Derive(address.TagInbox, owner[:])
}

func MessageAddress(recipient wallet.Identity, id uint64) address.Address {
	return address.Derive(address.TagMessage, recipient[:], address.Uint64Seed(id))
}

func AttestationAddress(voucher wallet.Identity, f Fingerprint) address.Address {
	return address.Derive(address.TagVouch, voucher[:], f[:])
}

// A Commitment asserts that specific content existed at a time. Never
// mutated, never deleted.
type Commitment struct {
	Fingerprint Fingerprint
	Owner       wallet.Identity
	Timestamp   int64
}

// A Namespace is a named collection accepting sealed submissions.
type Namespace struct {
	Slug            string
	Name            string
	Description     string
	EncryptionKey   [EncryptionKeySize]byte
	Admin           wallet.Identity
	SubmissionCount uint64
	CreatedAt       int64
	Active          bool
}

// A Submission is one sealed payload delivered into a namespace.
type Submission struct {
	ID        uint64
	Namespace address.Address
	Locator   string
	Submitter wallet.Identity
	Timestamp int64
}

// An Inbox is a recipient's standing encryption endpoint.
type Inbox struct {
	Owner         wallet.Identity
	EncryptionKey [EncryptionKeySize]byte
	MessageCount  uint64
	CreatedAt     int64
}

// A DirectMessage is one sealed message delivered to an inbox. Burned is
// the only mutable field, settable exactly once by the recipient.
type DirectMessage struct {
	ID               uint64
	Sender           wallet.Identity
	Recipient        wallet.Identity
	Locator          string
	BurnAfterReading bool
	Burned           bool
	Timestamp        int64
}

// An Attestation stakes an identity against a fingerprint. The only
// record permitted deletion: unvouching frees the address for a future
// re-vouch.
type Attestation struct {
	Voucher     wallet.Identity
	Fingerprint Fingerprint
	Timestamp   int64
}

// Binary codecs. Layout per record: fixed-width fields in declaration
// order, integers little-endian, strings with a 16-bit length prefix,
// booleans one byte.

func appendString(b []byte, s string) []byte {
	b = binary.LittleEndian.AppendUint16(b, uint16(len(s)))
	return append(b, s...)
}

func appendBool(b []byte, v bool) []byte {
	if v {
		return append(b, 1)
	}
	return append(b, 0)
}

// reader consumes a record payload and remembers the first failure, so
// decoders read field by field and check once at the end.
type reader struct {
	buf []byte
	bad bool
}

func (r *reader) take(n int) []byte {
	if r.bad || len(r.buf) < n {
		r.bad = true
		return make([]byte, n)
	}
	out := r.buf[:n]
	r.buf = r.buf[n:]
	return out
}

func (r *reader) uint64() uint64 {
	return binary.LittleEndian.Uint64(r.take(8))
}

func (r *reader) int64() int64 {
	return int64(r.uint64())
}

func (r *reader) bool() bool {
	return r.take(1)[0] != 0
}

func (r *reader) string() string {
	n := int(binary.LittleEndian.Uint16(r.take(2)))
	return string(r.take(n))
}

func (r *reader) identity() wallet.Identity {
	var id wallet.Identity
	copy(id[:], r.take(wallet.IdentitySize))
	return id
}

func (r *reader) fingerprint() Fingerprint {
	var f Fingerprint
	copy(f[:], r.take(len(Fingerprint{})))
	return f
}

func (r *reader) address() address.Address {
	var a address.Address
	copy(a[:], r.take(address.Size))
	return a
}

func (r *reader) finish(record string) error {
	if r.bad || len(r.buf) != 0 {
		return fmt.Errorf("protocol: malformed %s record", record)
	}
	return nil
}

func (c Commitment) encode() []byte {
	out := make([]byte, 0, 72)
	out = append(out, c.Fingerprint[:]...)
	out = append(out, c.Owner[:]...)
	out = binary.LittleEndian.AppendUint64(out, uint64(c.Timestamp))
	return out
}

func decodeCommitment(b []byte) (Commitment, error) {
	r := &reader{buf: b}
	c := Commitment{
		Fingerprint: r.fingerprint(),
		Owner:       r.identity(),
		Timestamp:   r.int64(),
	}
	return c, r.finish("commitment")
}

func (n Namespace) encode() []byte {
	out := make([]byte, 0, 128+len(n.Slug)+len(n.Name)+len(n.Description))
	out = appendString(out, n.Slug)
	out = appendString(out, n.Name)
	out = appendString(out, n.Description)
	out = append(out, n.EncryptionKey[:]...)
	out = append(out, n.Admin[:]...)
	out = binary.LittleEndian.AppendUint64(out, n.SubmissionCount)
	out = binary.LittleEndian.AppendUint64(out, uint64(n.CreatedAt))
	out = appendBool(out, n.Active)
	return out
}

func decodeNamespace(b []byte) (Namespace, error) {
	r := &reader{buf: b}
	n := Namespace{
		Slug:        r.string(),
		Name:        r.string(),
		Description: r.string(),
	}
	copy(n.EncryptionKey[:], r.take(EncryptionKeySize))
	n.Admin = r.identity()
	n.SubmissionCount = r.uint64()
	n.CreatedAt = r.int64()
	n.Active = r.bool()
	return n, r.finish("namespace")
}

func (s Submission) encode() []byte {
	out := make([]byte, 0, 88+len(s.Locator))
	out = binary.LittleEndian.AppendUint64(out, s.ID)
	out = append(out, s.Namespace[:]...)
	out = appendString(out, s.Locator)
	out = append(out, s.Submitter[:]...)
	out = binary.LittleEndian.AppendUint64(out, uint64(s.Timestamp))
	return out
}

func decodeSubmission(b []byte) (Submission, error) {
	r := &reader{buf: b}
	s := Submission{
		ID:        r.uint64(),
		Namespace: r.address(),
		Locator:   r.string(),
		Submitter: r.identity(),
		Timestamp: r.int64(),
	}
	return s, r.finish("submission")
}

func (i Inbox) encode() []byte {
	out := make([]byte, 0, 116)
	out = append(out, i.Owner[:]...)
	out = append(out, i.EncryptionKey[:]...)
	out = binary.LittleEndian.AppendUint64(out, i.MessageCount)
	out = binary.LittleEndian.AppendUint64(out, uint64(i.CreatedAt))
	return out
}

func decodeInbox(b []byte) (Inbox, error) {
	r := &reader{buf: b}
	var i Inbox
	i.Owner = r.identity()
	copy(i.EncryptionKey[:], r.take(EncryptionKeySize))
	i.MessageCount = r.uint64()
	i.CreatedAt = r.int64()
	return i, r.finish("inbox")
}

func (m DirectMessage) encode() []byte {
	out := make([]byte, 0, 92+len(m.Locator))
	out = binary.LittleEndian.AppendUint64(out, m.ID)
	out = append(out, m.Sender[:]...)
	out = append(out, m.Recipient[:]...)
	out = appendString(out, m.Locator)
	out = appendBool(out, m.BurnAfterReading)
	out = appendBool(out, m.Burned)
	out = binary.LittleEndian.AppendUint64(out, uint64(m.Timestamp))
	return out
}

func decodeDirectMessage(b []byte) (DirectMessage, error) {
	r := &reader{buf: b}
	m := DirectMessage{
		ID:        r.uint64(),
		Sender:    r.identity(),
		Recipient: r.identity(),
		Locator:   r.string(),
	}
	m.BurnAfterReading = r.bool()
	m.Burned = r.bool()
	m.Timestamp = r.int64()
	return m, r.finish("direct message")
}

func (a Attestation) encode() []byte {
	out := make([]byte, 0, 72)
	out = append(out, a.Voucher[:]...)
	out = append(out, a.Fingerprint[:]...)
	out = binary.LittleEndian.AppendUint64(out, uint64(a.Timestamp))
	return out
}

func decodeAttestation(b []byte) (Attestation, error) {
	r := &reader{buf: b}
	a := Attestation{
		Voucher:     r.identity(),
		Fingerprint: r.fingerprint(),
		Timestamp:   r.int64(),
	}
	return a, r.finish("attestation")
}
