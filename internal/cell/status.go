package cell

import (
	"fmt"
	"strings"
)

// Status is the membership state of a cell.
type Status int

const (
	// Unknown is the zero value and never stored.
	Unknown Status = iota
	// Active cells are confirmed reachable and fully participating.
	Active
	// Pending cells are joining and not yet confirmed reachable.
	Pending
	// Inactive cells are suspected unreachable. Reversible.
	Inactive
	// Gone cells departed or were expelled. Terminal.
	Gone
)

// String returns the string representation of Status.
func (s Status) String() string {
	switch s {
	case Active:
		return "active"
	case Pending:
		return "pending"
	case Inactive:
		return "inactive"
	case Gone:
		return "gone"
	default:
		return "unknown"
	}
}

// IsValid reports whether s is one of the four membership states.
func (s Status) IsValid() bool {
	return s >= Active && s <= Gone
}

// IsTerminal reports whether no transition may leave s.
func (s Status) IsTerminal() bool {
	return s == Gone
}

// ParseStatus parses the output of Status.String.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "active":
		return Active, nil
	case "pending":
		return Pending, nil
	case "inactive":
		return Inactive, nil
	case "gone":
		return Gone, nil
	default:
		return Unknown, fmt.Errorf("unknown status %q", s)
	}
}

// Statuses lists every valid status in declaration order.
func Statuses() []Status {
	return []Status{Active, Pending, Inactive, Gone}
}
