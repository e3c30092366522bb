package envelope

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	e := Envelope{
		Message: "see attached",
		Attachments: []Attachment{
			{Name: "report.pdf", ContentType: "application/pdf", Data: []byte{1, 2, 3}},
		},
	}
	b, err := e.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	got, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got.Message != e.Message {
		t.Fatalf("message mismatch: %q", got.Message)
	}
	if len(got.Attachments) != 1 || got.Attachments[0].Name != "report.pdf" {
		t.Fatalf("attachment lost: %+v", got.Attachments)
	}
	if !bytes.Equal(got.Attachments[0].Data, []byte{1, 2, 3}) {
		t.Fatalf("attachment bytes mismatch")
	}
}

func TestValidate_Caps(t *testing.T) {
	cases := []struct {
		name string
		e    Envelope
	}{
		{"message too long", Envelope{Message: strings.Repeat("x", MaxMessageLen+1)}},
		{"too many attachments", Envelope{Attachments: make([]Attachment, MaxAttachments+1)}},
		{"attachment name too long", Envelope{Attachments: []Attachment{{Name: strings.Repeat("n", MaxNameLen+1)}}}},
	}
	for _, tc := range cases {
		if err := tc.e.Validate(); !errors.Is(err, ErrTooLarge) {
			t.Fatalf("%s: got %v, want ErrTooLarge", tc.name, err)
		}
		if _, err := tc.e.Encode(); !errors.Is(err, ErrTooLarge) {
			t.Fatalf("%s: Encode got %v, want ErrTooLarge", tc.name, err)
		}
	}
}

func TestDecode_RejectsOversized(t *testing.T) {
	b := []byte(`{"message":"` + strings.Repeat("y", MaxMessageLen+1) + `"}`)
	if _, err := Decode(b); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("Decode accepted oversized message: %v", err)
	}
	if _, err := Decode([]byte("not json")); err == nil {
		t.Fatalf("Decode accepted malformed JSON")
	}
}
