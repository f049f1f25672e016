package discovery

import (
	"fmt"
	"net/netip"
	"strings"

	"pollux/internal/identity"
)

// DefaultPrefix is the key prefix under which cells register.
const DefaultPrefix = "/pollux/cells/"

// NormalizePrefix returns prefix with exactly one trailing slash, or
// DefaultPrefix when it is empty.
func NormalizePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return DefaultPrefix
	}
	return strings.TrimRight(prefix, "/") + "/"
}

// Key returns the registration key of id.
func Key(prefix string, id identity.ID) string {
	return NormalizePrefix(prefix) + id.String()
}

// ParseKey extracts the cell identity from a registration key.
func ParseKey(prefix, key string) (identity.ID, error) {
	rest, ok := strings.CutPrefix(key, NormalizePrefix(prefix))
	if !ok {
		return identity.ID{}, fmt.Errorf("key %q is outside prefix %q", key, prefix)
	}
	return identity.Parse(rest)
}

// ParseEndpoint parses a registered endpoint value.
func ParseEndpoint(value []byte) (netip.AddrPort, error) {
	ap, err := netip.ParseAddrPort(strings.TrimSpace(string(value)))
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("invalid endpoint %q: %w", value, err)
	}
	return ap, nil
}
