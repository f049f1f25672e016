package identity

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalid is returned by Parse for text that is not an identity.
var ErrInvalid = errors.New("invalid cell identity")

// ID identifies a cell. The zero value is not a valid identity.
type ID struct {
	Timestamp uint64 // unix milliseconds at creation
	Tag       uuid.UUID
}

// New creates an identity stamped with the current time.
func New() ID {
	return At(uint64(time.Now().UnixMilli()))
}

// At creates an identity with an explicit timestamp and a fresh random tag.
func At(ts uint64) ID {
	return ID{Timestamp: ts, Tag: uuid.New()}
}

// IsZero reports whether id is the zero value.
func (id ID) IsZero() bool {
	return id == ID{}
}

// Compare returns -1, 0 or +1. Timestamps are compared first, the tag breaks ties.
func (id ID) Compare(other ID) int {
	switch {
	case id.Timestamp < other.Timestamp:
		return -1
	case id.Timestamp > other.Timestamp:
		return 1
	}
	return bytes.Compare(id.Tag[:], other.Tag[:])
}

// Less reports whether id sorts before other.
func (id ID) Less(other ID) bool {
	return id.Compare(other) < 0
}

// Time returns the creation time encoded in the identity.
func (id ID) Time() time.Time {
	return time.UnixMilli(int64(id.Timestamp))
}

// String returns "<timestamp>+<uuid>".
func (id ID) String() string {
	return strconv.FormatUint(id.Timestamp, 10) + "+" + id.Tag.String()
}

// Parse is the inverse of String.
func Parse(s string) (ID, error) {
	tsPart, tagPart, ok := strings.Cut(strings.TrimSpace(s), "+")
	if !ok {
		return ID{}, fmt.Errorf("%w: %q (expected <timestamp>+<uuid>)", ErrInvalid, s)
	}
	ts, err := strconv.ParseUint(tsPart, 10, 64)
	if err != nil {
		return ID{}, fmt.Errorf("%w: timestamp %q: %w", ErrInvalid, tsPart, err)
	}
	tag, err := uuid.Parse(tagPart)
	if err != nil {
		return ID{}, fmt.Errorf("%w: tag %q: %w", ErrInvalid, tagPart, err)
	}
	return ID{Timestamp: ts, Tag: tag}, nil
}

// MustParse is like Parse but panics on error. Intended for tests and constants.
func MustParse(s string) ID {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}
