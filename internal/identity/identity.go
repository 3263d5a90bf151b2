// Package identity classifies session identifiers once per job so
// downstream stages never re-check identifier shape themselves.
package identity

import (
	"fmt"

	"github.com/google/uuid"
)

// SessionID is a tagged session identifier: canonical when the raw
// value is a server-issued UUID, provisional when it is a
// client-generated placeholder (typically a timestamp string from an
// offline-created session).
type SessionID struct {
	raw       string
	canonical bool
}

// Classify decides whether a raw identifier is canonical or
// provisional. It is pure and total; any non-UUID string is a valid
// provisional identifier.
func Classify(raw string) SessionID {
	if _, err := uuid.Parse(raw); err == nil {
		return SessionID{raw: raw, canonical: true}
	}
	return SessionID{raw: raw, canonical: false}
}

// String returns the raw identifier value.
func (s SessionID) String() string { return s.raw }

// Canonical reports whether the identifier is a server-issued UUID.
func (s SessionID) Canonical() bool { return s.canonical }

// StoragePrefix returns the object-store prefix for this session's
// derived artifacts. Provisional sessions write under a segregated
// pending path so a later promotion can be served by re-submitting
// the same raw asset under the canonical id.
func (s SessionID) StoragePrefix() string {
	if s.canonical {
		return fmt.Sprintf("sessions/%s", s.raw)
	}
	return fmt.Sprintf("pending/%s", s.raw)
}
