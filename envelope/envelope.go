// Package envelope defines the structured plaintext sealed by the
// encryption engine: a free-text message plus zero or more file
// attachments, encoded as JSON before sealing so any implementation can
// decode it after unsealing.
package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Field caps. Submissions above these limits are rejected before any
// sealing or storage happens.
const (
	MaxMessageLen    = 64 * 1024
	MaxAttachments   = 16
	MaxAttachmentLen = 8 * 1024 * 1024
	MaxNameLen       = 255
)

var ErrTooLarge = errors.New("envelope: field exceeds size cap")

// An Attachment is one named file carried inside an envelope.
type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType,omitempty"`
	// Data is base64-encoded by encoding/json.
	Data []byte `json:"data"`
}

// An Envelope is the plaintext unit of delivery.
type Envelope struct {
	Message     string       `json:"message"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Validate checks the size caps.
func (e Envelope) Validate() error {
	if len(e.Message) > MaxMessageLen {
		return fmt.Errorf("%w: message is %d bytes (max %d)", ErrTooLarge, len(e.Message), MaxMessageLen)
	}
	if len(e.Attachments) > MaxAttachments {
		return fmt.Errorf("%w: %d attachments (max %d)", ErrTooLarge, len(e.Attachments), MaxAttachments)
	}
	for _, a := range e.Attachments {
		if len(a.Name) > MaxNameLen {
			return fmt.Errorf("%w: attachment name is %d bytes (max %d)", ErrTooLarge, len(a.Name), MaxNameLen)
		}
		if len(a.Data) > MaxAttachmentLen {
			return fmt.Errorf("%w: attachment %q is %d bytes (max %d)", ErrTooLarge, a.Name, len(a.Data), MaxAttachmentLen)
		}
	}
	return nil
}

// Encode validates and serializes the envelope.
func (e Envelope) Encode() ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(e)
}

// Decode deserializes an envelope and re-checks the size caps, so a peer
// cannot smuggle oversized fields past a decoding client.
func Decode(b []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return Envelope{}, fmt.Errorf("envelope: decode: %w", err)
	}
	if err := e.Validate(); err != nil {
		return Envelope{}, err
	}
	return e, nil
}
