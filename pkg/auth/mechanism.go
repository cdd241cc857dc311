package auth

import (
	"context"
	"errors"
	"net/http"
)

// MechanismResult carries the verdict of a single mechanism attempt.
type MechanismResult struct {
	Outcome Outcome

	// Principal is populated only when Outcome is OutcomeAuthenticated.
	Principal *Principal

	// Reason explains a rejection. Populated only when Outcome is
	// OutcomeNotAuthenticated.
	Reason error
}

// Mechanism is a pluggable strategy that can verify one kind of credential
// and, on failure, contribute to a challenge response.
//
// Attempt inspects the request's credentials and returns a verdict. It must
// not write to the response; challenges go through SendChallenge, which the
// SecurityContext invokes via the deferred action on a Result. The error
// return is reserved for backend failures (identity store unreachable and
// the like) and must never be used for ordinary invalid credentials.
type Mechanism interface {
	// Name identifies the mechanism in logs, metrics, and session records.
	Name() string

	Attempt(ctx context.Context, r *http.Request) (MechanismResult, error)

	// SendChallenge writes whatever status and headers are needed to prompt
	// the client to retry with credentials. Several mechanisms may
	// contribute to the same response: add headers rather than set them,
	// and expect WriteHeader to be deferred until the whole chain has had
	// its turn, with the first requested status winning.
	SendChallenge(w http.ResponseWriter, r *http.Request)
}

// IdentityStore verifies credentials and answers group membership queries.
// Implementations live outside this package (see pkg/identity).
type IdentityStore interface {
	// Verify checks a username/password pair. It returns (nil, nil) for
	// invalid credentials; a non-nil error means the store itself failed
	// and says nothing about the credentials.
	Verify(ctx context.Context, username, password string) (*Principal, error)

	// IsMember reports whether the principal belongs to the group as seen
	// by the underlying store. No role mapping is applied.
	IsMember(ctx context.Context, p *Principal, group string) (bool, error)
}

// SessionManager persists a successful login across requests. Load returns
// session.ErrNotFound (or any error matching errors.Is against it) when no
// entry exists for the session ID. The SecurityContext treats all three
// operations as best-effort: failures are logged and counted but never fail
// the request's own authentication outcome.
type SessionManager interface {
	Save(ctx context.Context, sessionID string, p *Principal, mechanism string) error
	Load(ctx context.Context, sessionID string) (p *Principal, mechanism string, err error)
	Clear(ctx context.Context, sessionID string) error
}

// Sentinel errors.
var (
	// ErrUnauthenticated is the generic rejection reason used by mechanisms
	// when credentials are present but wrong.
	ErrUnauthenticated = errors.New("authentication required")

	// ErrForbidden signals a group or scope check failure.
	ErrForbidden = errors.New("access denied")

	// ErrTooManyRequests signals rate limit rejection.
	ErrTooManyRequests = errors.New("rate limit exceeded")

	// ErrNoIdentityStore is returned by Login when the context was built
	// without an identity store.
	ErrNoIdentityStore = errors.New("no identity store configured")
)
