package identity

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestClassifyCanonical(t *testing.T) {
	id := uuid.New().String()
	sid := Classify(id)

	assert.True(t, sid.Canonical())
	assert.Equal(t, id, sid.String())
	assert.Equal(t, "sessions/"+id, sid.StoragePrefix())
}

func TestClassifyProvisional(t *testing.T) {
	cases := []string{
		"1750991604496", // client timestamp id
		"local-session-1",
		"",
		"not-a-uuid-at-all",
	}

	for _, raw := range cases {
		sid := Classify(raw)
		assert.False(t, sid.Canonical(), "raw=%q", raw)
		assert.Equal(t, raw, sid.String())
		assert.Equal(t, "pending/"+raw, sid.StoragePrefix())
	}
}

func TestClassifyUUIDVariants(t *testing.T) {
	// uuid.Parse accepts several textual encodings; all count as canonical.
	assert.True(t, Classify("6ba7b810-9dad-11d1-80b4-00c04fd430c8").Canonical())
	assert.True(t, Classify("{6ba7b810-9dad-11d1-80b4-00c04fd430c8}").Canonical())

	// Truncated or malformed UUIDs stay provisional.
	assert.False(t, Classify("6ba7b810-9dad-11d1-80b4").Canonical())
}
