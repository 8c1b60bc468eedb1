package store

import (
	"strings"

	"github.com/systmms/vaultlease/internal/errors"
)

// Root is the address of the whole store.
const Root = "."

// Address locates a value in the store. A nil or empty Address is the root.
type Address []string

// ParseAddress splits a dotted address ("db.primary") into its segments.
// "" and "." yield the root.
func ParseAddress(s string) (Address, error) {
	if s == "" || s == Root {
		return nil, nil
	}
	segments := strings.Split(s, ".")
	for _, seg := range segments {
		if seg == "" || strings.TrimSpace(seg) != seg {
			return nil, errors.Invalid("secret address", "malformed address "+s)
		}
	}
	return Address(segments), nil
}

// Literal is an address made of one segment, dots included. Secrets watched
// without an explicit address are stored under their source path this way.
func Literal(key string) Address {
	if key == "" || key == Root {
		return nil
	}
	return Address{key}
}

// IsRoot reports whether a addresses the whole store.
func (a Address) IsRoot() bool {
	return len(a) == 0
}

func (a Address) String() string {
	if a.IsRoot() {
		return Root
	}
	return strings.Join(a, ".")
}
