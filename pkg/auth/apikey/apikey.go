// Package apikey provides an API key authentication mechanism that
// validates bearer tokens against a static key store using SHA-256 hashing
// and constant-time comparison.
package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/portier-dev/portier/pkg/auth"
)

// MechanismName identifies this mechanism in logs and session records.
const MechanismName = "API_KEY"

// KeyEntry maps a key hash to a principal.
type KeyEntry struct {
	KeyHash   [32]byte
	Principal auth.Principal
}

// Mechanism validates bearer tokens against a static key store.
type Mechanism struct {
	keys []KeyEntry
}

// New creates an API key mechanism from a list of raw keys and principals.
// Keys are hashed immediately; plaintext keys are not stored.
func New(entries []RawKeyEntry) *Mechanism {
	m := &Mechanism{}
	for _, e := range entries {
		m.keys = append(m.keys, KeyEntry{
			KeyHash:   sha256.Sum256([]byte(e.Key)),
			Principal: e.Principal,
		})
	}
	return m
}

// RawKeyEntry is the configuration format for API keys.
type RawKeyEntry struct {
	Key       string
	Principal auth.Principal
}

func (m *Mechanism) Name() string { return MechanismName }

// Attempt extracts the bearer token and validates it.
// Returns Authenticated if the key is known, NotAuthenticated if a bearer
// token is present but unknown, NotAttempted if there is no Authorization
// header or it is not a Bearer token.
func (m *Mechanism) Attempt(_ context.Context, r *http.Request) (auth.MechanismResult, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return auth.MechanismResult{Outcome: auth.OutcomeNotAttempted}, nil
	}

	// Must be Bearer token.
	if !strings.HasPrefix(header, "Bearer ") {
		return auth.MechanismResult{Outcome: auth.OutcomeNotAttempted}, nil
	}

	token := strings.TrimPrefix(header, "Bearer ")
	if token == "" {
		return auth.MechanismResult{
			Outcome: auth.OutcomeNotAuthenticated,
			Reason:  auth.ErrUnauthenticated,
		}, nil
	}

	// Hash the token and compare against stored hashes.
	tokenHash := sha256.Sum256([]byte(token))

	for _, entry := range m.keys {
		if subtle.ConstantTimeCompare(tokenHash[:], entry.KeyHash[:]) == 1 {
			// Copy principal to avoid shared state. The attributes map is
			// cloned too; a shallow copy would let one request's handler
			// poison every later request presenting the same key.
			p := entry.Principal
			if p.Attributes != nil {
				attrs := make(map[string]string, len(p.Attributes))
				for k, v := range p.Attributes {
					attrs[k] = v
				}
				p.Attributes = attrs
			}
			return auth.MechanismResult{Outcome: auth.OutcomeAuthenticated, Principal: &p}, nil
		}
	}

	// Bearer token present but not found.
	return auth.MechanismResult{
		Outcome: auth.OutcomeNotAuthenticated,
		Reason:  auth.ErrUnauthenticated,
	}, nil
}

// SendChallenge writes a 401 advertising bearer token auth. The header is
// added, not set, so challenges from other mechanisms survive.
func (m *Mechanism) SendChallenge(w http.ResponseWriter, _ *http.Request) {
	w.Header().Add("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
}
