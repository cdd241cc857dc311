// Package basic provides an HTTP Basic authentication mechanism backed by
// an identity store. Its challenge advertises the configured realm via the
// WWW-Authenticate header.
package basic

import (
	"context"
	"fmt"
	"net/http"

	"github.com/portier-dev/portier/pkg/auth"
)

// MechanismName identifies this mechanism in logs and session records.
const MechanismName = "BASIC"

// Mechanism verifies Basic credentials against an identity store.
type Mechanism struct {
	store auth.IdentityStore
	realm string
}

// New creates a Basic mechanism for the given store and realm.
func New(store auth.IdentityStore, realm string) *Mechanism {
	if realm == "" {
		realm = "portier"
	}
	return &Mechanism{store: store, realm: realm}
}

func (m *Mechanism) Name() string { return MechanismName }

// Attempt parses the Authorization header.
// Returns NotAttempted when no Basic credentials are present,
// NotAuthenticated when the store rejects them, and Authenticated with the
// verified principal otherwise. A store failure is returned as an error,
// never folded into a rejection.
func (m *Mechanism) Attempt(ctx context.Context, r *http.Request) (auth.MechanismResult, error) {
	username, password, ok := r.BasicAuth()
	if !ok {
		return auth.MechanismResult{Outcome: auth.OutcomeNotAttempted}, nil
	}

	p, err := m.store.Verify(ctx, username, password)
	if err != nil {
		return auth.MechanismResult{}, fmt.Errorf("verifying basic credentials: %w", err)
	}
	if p == nil {
		return auth.MechanismResult{
			Outcome: auth.OutcomeNotAuthenticated,
			Reason:  auth.ErrUnauthenticated,
		}, nil
	}

	return auth.MechanismResult{Outcome: auth.OutcomeAuthenticated, Principal: p}, nil
}

// SendChallenge writes a 401 with the Basic challenge for the realm. The
// header is added, not set, so challenges from other mechanisms survive.
func (m *Mechanism) SendChallenge(w http.ResponseWriter, _ *http.Request) {
	w.Header().Add("WWW-Authenticate", fmt.Sprintf("Basic realm=%q, charset=\"UTF-8\"", m.realm))
	w.WriteHeader(http.StatusUnauthorized)
}
