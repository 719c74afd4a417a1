package flight

import "bytes"

// Backend identifies which Spice tier an executor talks to.
type Backend int

const (
	// Primary is the query backend ("flight").
	Primary Backend = iota
	// Secondary is the cache-tier backend ("firecache").
	Secondary
)

func (b Backend) String() string {
	switch b {
	case Primary:
		return "primary"
	case Secondary:
		return "secondary"
	default:
		return "unknown"
	}
}

// TicketFixup rewrites a ticket between planning and fetching.
// Implementations must be idempotent on their own output.
type TicketFixup interface {
	Fix(ticket []byte) []byte
}

// TicketFixupFunc adapts a function to TicketFixup.
type TicketFixupFunc func(ticket []byte) []byte

// Fix calls f(ticket).
func (f TicketFixupFunc) Fix(ticket []byte) []byte { return f(ticket) }

// IdentityFixup leaves tickets unchanged.
var IdentityFixup TicketFixup = TicketFixupFunc(func(ticket []byte) []byte { return ticket })

// FramePrefixFixup applies StripFramePrefix.
var FramePrefixFixup TicketFixup = TicketFixupFunc(StripFramePrefix)

// StripFramePrefix removes a leading "{...}" frame, everything through the
// first '}', from a ticket issued by the cache tier.
//
// Only tickets starting with '{' are touched. Statement tickets are protobuf
// and may carry '}' bytes of their own, so without that guard a second pass
// would cut into the payload. Use StripFrame(0) for backends that frame
// tickets without a leading '{'.
func StripFramePrefix(ticket []byte) []byte {
	return stripFrame(ticket, '{')
}

// StripFrame returns a fixup that removes everything through the first '}'
// of tickets starting with opener. An opener of 0 strips any ticket that
// contains '}'; that fixup is idempotent only for payloads without '}'.
func StripFrame(opener byte) TicketFixup {
	return TicketFixupFunc(func(ticket []byte) []byte {
		return stripFrame(ticket, opener)
	})
}

func stripFrame(ticket []byte, opener byte) []byte {
	if len(ticket) == 0 {
		return ticket
	}
	if opener != 0 && ticket[0] != opener {
		return ticket
	}
	end := bytes.IndexByte(ticket, '}')
	if end < 0 {
		return ticket
	}
	return ticket[end+1:]
}

// TicketFixupFor returns the fixup a backend's tickets need.
func TicketFixupFor(b Backend) TicketFixup {
	if b == Secondary {
		return FramePrefixFixup
	}
	return IdentityFixup
}
