// Package uuid wraps github.com/google/uuid and standardizes on UUIDv7, so
// identifiers sort by creation time.
package uuid

import (
	"encoding/binary"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// UUID represents a UUID
type UUID = uuid.UUID

// NullUUID represents a UUID that may be null
type NullUUID = uuid.NullUUID

// Nil is the zero UUID
var Nil = uuid.Nil

// New returns a new random (version 7) UUID
func New() UUID {
	uuidv7, err := uuid.NewV7()
	if err != nil {
		panic(err)
	}
	return uuidv7
}

// NewRandom returns a new random (version 7) UUID
func NewRandom() (UUID, error) {
	return uuid.NewV7()
}

// Parse parses a UUID string
func Parse(s string) (UUID, error) {
	return uuid.Parse(s)
}

// MustParse parses a UUID string and panics if the string is not a valid UUID
func MustParse(s string) UUID {
	return uuid.MustParse(s)
}

// IsUUIDv7 checks if the given UUID is a valid UUIDv7
func IsUUIDv7(id UUID) bool {
	return id.Version() == uuid.Version(7)
}

// GetTimestampFromUUID extracts the timestamp from a UUIDv7 and returns it as a time.Time
func GetTimestampFromUUID(u UUID) time.Time {
	tsMillis := binary.BigEndian.Uint64(u[0:8]) >> 16 // Top 48 bits = timestamp in milliseconds
	return time.UnixMilli(int64(tsMillis))
}

// HexPrefix returns the first n characters of the UUID's 32-character hex
// form, without dashes. Used to derive short identifiers from row ids.
func HexPrefix(u UUID, n int) string {
	h := hex.EncodeToString(u[:])
	if n > len(h) {
		n = len(h)
	}
	return h[:n]
}
