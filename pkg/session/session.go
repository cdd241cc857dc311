package session

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// CookieName is the cookie that carries the session identifier.
const CookieName = "portier_session"

// DefaultTTL is how long a persisted login stays valid unless a store is
// configured otherwise.
const DefaultTTL = 24 * time.Hour

// ErrNotFound is returned by Load when no entry exists for the session ID,
// including entries that have expired.
var ErrNotFound = errors.New("session not found")

// NewID generates a 128-bit random session identifier, hex-encoded.
func NewID() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("generating session id: %w", err)
	}
	return hex.EncodeToString(b[:]), nil
}
