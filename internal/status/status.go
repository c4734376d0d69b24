// ABOUTME: Message status machine enforcing forward-only delivery transitions
// ABOUTME: pending -> sent -> delivered -> read, with failed terminal from pending/sent

package status

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned when a status change would move a message
// backward, skip a state, or leave a terminal state.
var ErrInvalidTransition = errors.New("invalid status transition")

// Message delivery statuses.
const (
	Pending   = "pending"
	Sent      = "sent"
	Delivered = "delivered"
	Read      = "read"
	Failed    = "failed"
)

// Message directions.
const (
	DirectionIncoming = "incoming"
	DirectionOutgoing = "outgoing"
)

// allowed maps each status to the set of statuses reachable from it.
// Terminal statuses (read, failed) have no entry.
var allowed = map[string]map[string]bool{
	Pending:   {Sent: true, Failed: true},
	Sent:      {Delivered: true, Failed: true},
	Delivered: {Read: true},
}

// Valid reports whether s is a known message status.
func Valid(s string) bool {
	switch s {
	case Pending, Sent, Delivered, Read, Failed:
		return true
	}
	return false
}

// Validate checks that a message may move from current to target.
// Incoming messages are created in delivered and may only advance to read;
// pending and sent belong exclusively to the outbound flow.
func Validate(direction, current, target string) error {
	if !Valid(target) {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, target)
	}
	if direction == DirectionIncoming && (target == Pending || target == Sent) {
		return fmt.Errorf("%w: %q cannot be applied to an incoming message", ErrInvalidTransition, target)
	}
	if !allowed[current][target] {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, target)
	}
	return nil
}

// Initial returns the status a freshly appended message starts in.
// Outbound messages await gateway acknowledgment; inbound messages have
// already been received by the time the engine sees them.
func Initial(direction string) string {
	if direction == DirectionIncoming {
		return Delivered
	}
	return Pending
}

// Terminal reports whether no further transition can leave s.
func Terminal(s string) bool {
	return len(allowed[s]) == 0
}
