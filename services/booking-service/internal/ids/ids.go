package ids

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// Generator mints primary keys and external references.
type Generator interface {
	NewID() string
	// Ref returns prefix followed by a random token, e.g. "pay_9f86d081884c7d65".
	Ref(prefix string) string
}

// UUID is the production Generator.
type UUID struct{}

func (UUID) NewID() string { return uuid.NewString() }

func (UUID) Ref(prefix string) string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return prefix + hex.EncodeToString(b[:])
}
