package flight

import (
	"bytes"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/flight/flightsql"
)

// TestStripFramePrefix tests removal of the cache-tier ticket frame.
func TestStripFramePrefix(t *testing.T) {
	tests := []struct {
		name   string
		ticket string
		want   string
	}{
		{name: "Framed", ticket: `{"tier":"cache"}payload`, want: "payload"},
		{name: "FrameOnly", ticket: `{}`, want: ""},
		{name: "Unframed", ticket: "payload", want: "payload"},
		{name: "BraceInside", ticket: "pay}load", want: "pay}load"},
		{name: "Unterminated", ticket: "{payload", want: "{payload"},
		{name: "Empty", ticket: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StripFramePrefix([]byte(tt.ticket))
			if string(got) != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

// TestStripFramePrefixIdempotent tests that re-applying the fixup to its own
// output changes nothing.
func TestStripFramePrefixIdempotent(t *testing.T) {
	inner, err := flightsql.CreateStatementQueryTicket([]byte("0f9e3c1a-statement"))
	if err != nil {
		t.Fatalf("Failed to create ticket: %v", err)
	}
	framed := append([]byte(`{"firecache":true}`), inner...)

	once := StripFramePrefix(framed)
	if !bytes.Equal(once, inner) {
		t.Fatalf("Expected inner ticket after one pass, got %q", once)
	}
	for i := range 3 {
		again := StripFramePrefix(once)
		if !bytes.Equal(again, once) {
			t.Fatalf("Pass %d changed the ticket: %q", i+2, again)
		}
		once = again
	}
}

// TestStripFrame tests fixups with a configurable frame opener.
func TestStripFrame(t *testing.T) {
	tests := []struct {
		name   string
		opener byte
		ticket string
		want   string
	}{
		{name: "AnyOpener", opener: 0, ticket: "tier}payload", want: "payload"},
		{name: "AnyOpenerBrace", opener: 0, ticket: `{"tier":1}payload`, want: "payload"},
		{name: "AnyOpenerNoClose", opener: 0, ticket: "payload", want: "payload"},
		{name: "Bracket", opener: '[', ticket: "[tier}payload", want: "payload"},
		{name: "BracketMismatch", opener: '[', ticket: "tier}payload", want: "tier}payload"},
		{name: "Empty", opener: 0, ticket: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StripFrame(tt.opener).Fix([]byte(tt.ticket))
			if string(got) != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

// TestTicketFixupFor tests the per-backend fixup selection.
func TestTicketFixupFor(t *testing.T) {
	framed := []byte("{frame}data")

	if got := TicketFixupFor(Primary).Fix(framed); !bytes.Equal(got, framed) {
		t.Errorf("Primary must not rewrite tickets, got %q", got)
	}
	if got := TicketFixupFor(Secondary).Fix(framed); string(got) != "data" {
		t.Errorf("Secondary must strip the frame, got %q", got)
	}
}

// TestBackendString tests backend labels used in logs.
func TestBackendString(t *testing.T) {
	if Primary.String() != "primary" || Secondary.String() != "secondary" {
		t.Errorf("Unexpected labels %q, %q", Primary, Secondary)
	}
	if Backend(9).String() != "unknown" {
		t.Errorf("Expected unknown, got %q", Backend(9))
	}
}
