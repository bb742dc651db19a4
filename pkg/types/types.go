package types

import (
	"strings"

	"github.com/google/uuid"
)

// ID names a globally addressable resource (actor, object, activity).
// IDs compare by value and are never mutated once built.
type ID string

// NewID builds an ID from any string-like value
func NewID(s string) ID {
	return ID(s)
}

// NewActivityID mints a fresh activity ID under base, e.g.
// https://blog.example/activities/7c9e6679-7425-40de-944b-e07fc1f90ae7
func NewActivityID(base string) ID {
	return ID(strings.TrimRight(base, "/") + "/" + uuid.NewString())
}

func (id ID) String() string {
	return string(id)
}

// IsZero reports whether the ID is empty
func (id ID) IsZero() bool {
	return id == ""
}

// IntoID is implemented by domain values that can be referred to by ID
type IntoID interface {
	IntoID() ID
}

// DeliveryTarget is anything an activity can be delivered to
type DeliveryTarget interface {
	// IsLocal reports whether the target lives on this instance
	IsLocal() bool

	// InboxURL is the per-actor inbox
	InboxURL() string

	// SharedInboxURL is the per-instance inbox, if the target advertises one
	SharedInboxURL() (string, bool)
}

// Signer produces detached signatures on behalf of one key
type Signer interface {
	// KeyID is the dereferenceable identifier of the public key
	KeyID() string

	// Sign signs an arbitrary byte string
	Sign(data []byte) ([]byte, error)
}
