package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/portier-dev/portier/pkg/debug"
	"github.com/portier-dev/portier/pkg/observability"
	"github.com/portier-dev/portier/pkg/session"
)

// MechanismNameLogin is recorded as the establishing mechanism when an
// identity comes from an explicit Login call.
const MechanismNameLogin = "LOGIN"

// MechanismNameCached is recorded when an identity is rehydrated from the
// session manager instead of a mechanism run.
const MechanismNameCached = "CACHED"

// Config wires a SecurityContext to its collaborators. All fields are
// optional, but Login and IsUserInGroup need the identity store, and
// session rehydration and login persistence need Sessions plus a non-empty
// SessionID.
type Config struct {
	IdentityStore IdentityStore
	Sessions      SessionManager
	SessionID     string
	Mechanisms    []Mechanism
}

// SecurityContext drives the mechanism chain for one in-flight request,
// tracks its authentication state, and owns login/logout.
//
// An instance belongs to exactly one request and must not be shared across
// concurrent requests or called concurrently from multiple goroutines.
// After AuthenticateAsync or AuthenticateGated returns, ownership of the
// request and response writer transfers to the context until resolution;
// the original caller must not touch either in the meantime.
type SecurityContext struct {
	response http.ResponseWriter
	request  *http.Request

	identity  IdentityStore
	sessions  SessionManager
	sessionID string

	mechanisms []Mechanism

	state         State
	required      bool
	resolved      bool
	result        *Result
	principal     *Principal
	mechanismName string
}

// New creates a SecurityContext for the given request/response pair.
func New(w http.ResponseWriter, r *http.Request, cfg Config) *SecurityContext {
	return &SecurityContext{
		response:   w,
		request:    r,
		identity:   cfg.IdentityStore,
		sessions:   cfg.Sessions,
		sessionID:  cfg.SessionID,
		mechanisms: cfg.Mechanisms,
		state:      StateNotRequired,
	}
}

// SetAuthenticationRequired marks this request as requiring authentication.
// Challenge actions are only attached to results if this was called before
// resolution; calling it afterwards has no retroactive effect. Idempotent.
func (s *SecurityContext) SetAuthenticationRequired() {
	if s.resolved {
		return
	}
	s.required = true
	if s.state == StateNotRequired {
		s.state = StateRequired
	}
}

// AddMechanism appends a mechanism to the chain. Mechanisms are tried in
// the order they were added. The chain is frozen once an authenticate call
// has started; adding mechanisms after that point is a caller bug with
// undefined ordering consequences.
func (s *SecurityContext) AddMechanism(m Mechanism) {
	s.mechanisms = append(s.mechanisms, m)
}

// Mechanisms returns the chain in registration order. The returned slice
// is a copy; mutating it does not affect the chain.
func (s *SecurityContext) Mechanisms() []Mechanism {
	out := make([]Mechanism, len(s.mechanisms))
	copy(out, s.mechanisms)
	return out
}

// State returns the current authentication state.
func (s *SecurityContext) State() State {
	return s.state
}

// Principal returns the authenticated principal, or nil before resolution
// or when the request is unauthenticated.
func (s *SecurityContext) Principal() *Principal {
	return s.principal
}

// MechanismName returns the name of the mechanism that established the
// current identity, or empty string when unauthenticated.
func (s *SecurityContext) MechanismName() string {
	return s.mechanismName
}

// IsUserInGroup reports whether the authenticated principal belongs to the
// group according to the identity store. It performs no role mapping and
// returns false when unauthenticated, when no store is configured, or when
// the store fails.
func (s *SecurityContext) IsUserInGroup(ctx context.Context, group string) bool {
	if s.principal == nil || s.identity == nil {
		return false
	}
	ok, err := s.identity.IsMember(ctx, s.principal, group)
	if err != nil {
		slog.Warn("group membership lookup failed",
			"principal", s.principal.Name,
			"group", group,
			"error", err,
		)
		return false
	}
	return ok
}

// Authenticate runs the mechanism chain and returns the result. This can
// block for the duration of any mechanism I/O, so it must not be invoked
// from a handler that cannot block; use AuthenticateAsync there.
//
// A cached session entry, if one exists for the configured session ID,
// resolves the request before any mechanism runs. Otherwise mechanisms are
// tried in registration order and the first definite outcome wins. If the
// chain is exhausted with only abstentions the outcome is
// OutcomeNotAttempted.
//
// A non-nil error means a mechanism's backend failed; it is never used to
// report invalid credentials. Repeated calls after resolution return the
// same Result.
func (s *SecurityContext) Authenticate(ctx context.Context) (*Result, error) {
	if s.resolved {
		return s.result, nil
	}

	if p, mechanism, ok := s.loadCachedSession(ctx); ok {
		s.principal = p
		s.mechanismName = mechanism
		s.state = StateAuthenticated
		s.result = newResult(OutcomeAuthenticated, nil)
		s.resolved = true
		return s.result, nil
	}

	outcome := OutcomeNotAttempted

	// Mechanisms that abstained or rejected, in chain order. These are the
	// ones notified when the challenge action fires.
	var challengers []Mechanism

chain:
	for _, m := range s.mechanisms {
		res, err := m.Attempt(ctx, s.request)
		if err != nil {
			observability.AuthAttemptsTotal.WithLabelValues(m.Name(), "error").Inc()
			return nil, fmt.Errorf("mechanism %s: %w", m.Name(), err)
		}
		observability.AuthAttemptsTotal.WithLabelValues(m.Name(), res.Outcome.String()).Inc()
		debug.Log("chain", "mechanism attempted",
			"mechanism", m.Name(),
			"outcome", res.Outcome.String(),
			"path", s.request.URL.Path,
		)

		switch res.Outcome {
		case OutcomeAuthenticated:
			if res.Principal == nil || res.Principal.Name == "" {
				// Contract violation: a success verdict without an identity
				// must not flow downstream. Escalate to rejection.
				slog.Error("mechanism reported success without a principal", "mechanism", m.Name())
				challengers = append(challengers, m)
				outcome = OutcomeNotAuthenticated
				break chain
			}
			s.principal = res.Principal
			s.mechanismName = m.Name()
			outcome = OutcomeAuthenticated
			break chain
		case OutcomeNotAuthenticated:
			slog.Warn("authentication rejected",
				"mechanism", m.Name(),
				"path", s.request.URL.Path,
				"remote_addr", s.request.RemoteAddr,
				"reason", res.Reason,
			)
			challengers = append(challengers, m)
			outcome = OutcomeNotAuthenticated
			break chain
		case OutcomeNotAttempted:
			challengers = append(challengers, m)
		}
	}

	switch outcome {
	case OutcomeAuthenticated:
		s.state = StateAuthenticated
		slog.Debug("authentication succeeded",
			"mechanism", s.mechanismName,
			"principal", s.principal.Name,
			"path", s.request.URL.Path,
		)
	case OutcomeNotAuthenticated:
		s.state = StateNotAuthenticated
	case OutcomeNotAttempted:
		// No mechanism committed; the required/not-required state stands.
	}

	var challenge func()
	if s.required && outcome != OutcomeAuthenticated && len(challengers) > 0 {
		w, r := s.response, s.request
		challenge = func() {
			cw := newChallengeWriter(w)
			for _, m := range challengers {
				m.SendChallenge(cw, r)
				observability.ChallengesSentTotal.WithLabelValues(m.Name()).Inc()
			}
			cw.flush()
		}
	}

	s.result = newResult(outcome, challenge)
	s.resolved = true
	return s.result, nil
}

// AuthenticateAsync runs the same chain as Authenticate, scheduled onto the
// supplied executor, and returns a Future resolving to the same result. A
// nil executor falls back to GoExecutor.
//
// Once this returns, the caller must not mutate the request until the
// future resolves: the chain may still be reading it concurrently.
// Cancellation is not propagated mid-chain; a started attempt runs to
// completion.
func (s *SecurityContext) AuthenticateAsync(ctx context.Context, exec Executor) *Future {
	if exec == nil {
		exec = GoExecutor{}
	}
	f := newFuture()
	exec.Execute(func() {
		result, err := s.Authenticate(ctx)
		f.complete(result, err)
	})
	return f
}

// AuthenticateGated runs the chain and gates the rest of the pipeline on
// the outcome: on success next receives the request with this context
// attached; on any other outcome (or a backend error) onComplete runs and
// is responsible for sending the challenge and terminating the exchange.
// Exactly one of next and onComplete is invoked, never both.
//
// As with AuthenticateAsync, the caller relinquishes the request and
// response writer by calling this.
func (s *SecurityContext) AuthenticateGated(ctx context.Context, next http.Handler, onComplete func(*Result, error)) {
	result, err := s.Authenticate(ctx)
	if err != nil {
		onComplete(nil, err)
		return
	}
	if result.Outcome == OutcomeAuthenticated {
		r := s.request.WithContext(WithSecurityContext(ctx, s))
		next.ServeHTTP(s.response, r)
		return
	}
	onComplete(result, nil)
}

// Login verifies the credentials directly against the identity store,
// bypassing the mechanism chain. On success the context becomes
// authenticated and the identity is handed to the session manager so
// subsequent requests on the same session resolve without re-running
// mechanisms.
//
// Invalid credentials return (false, nil). A non-nil error means the store
// itself failed; the bool is false in that case too. A session save
// failure is logged and counted but does not fail the login.
func (s *SecurityContext) Login(ctx context.Context, username, password string) (bool, error) {
	if s.identity == nil {
		return false, ErrNoIdentityStore
	}

	p, err := s.identity.Verify(ctx, username, password)
	if err != nil {
		observability.LoginsTotal.WithLabelValues("error").Inc()
		return false, fmt.Errorf("verifying credentials: %w", err)
	}
	if p == nil {
		observability.LoginsTotal.WithLabelValues("invalid").Inc()
		slog.Warn("login rejected", "username", username, "remote_addr", s.request.RemoteAddr)
		return false, nil
	}

	s.principal = p
	s.mechanismName = MechanismNameLogin
	s.state = StateAuthenticated
	s.result = newResult(OutcomeAuthenticated, nil)
	s.resolved = true
	observability.LoginsTotal.WithLabelValues("success").Inc()

	if s.sessions != nil && s.sessionID != "" {
		if err := s.sessions.Save(ctx, s.sessionID, p, s.mechanismName); err != nil {
			// Best-effort persistence: the in-request outcome stands.
			observability.SessionOpsTotal.WithLabelValues("save", "error").Inc()
			slog.Warn("session save failed", "principal", p.Name, "error", err)
		} else {
			observability.SessionOpsTotal.WithLabelValues("save", "ok").Inc()
		}
	}

	return true, nil
}

// Logout clears the authenticated state and asks the session manager to
// forget this session's identity. Idempotent and safe to call when not
// authenticated. Clear failures are logged but do not fail the logout.
func (s *SecurityContext) Logout(ctx context.Context) {
	s.principal = nil
	s.mechanismName = ""
	s.result = nil
	s.resolved = false
	if s.required {
		s.state = StateRequired
	} else {
		s.state = StateNotRequired
	}

	if s.sessions != nil && s.sessionID != "" {
		if err := s.sessions.Clear(ctx, s.sessionID); err != nil {
			observability.SessionOpsTotal.WithLabelValues("clear", "error").Inc()
			slog.Warn("session clear failed", "error", err)
		} else {
			observability.SessionOpsTotal.WithLabelValues("clear", "ok").Inc()
		}
	}
}

// loadCachedSession asks the session manager for a previously persisted
// identity. Lookup failures other than a plain miss are logged and treated
// as a miss so the chain still runs.
func (s *SecurityContext) loadCachedSession(ctx context.Context) (*Principal, string, bool) {
	if s.sessions == nil || s.sessionID == "" {
		return nil, "", false
	}
	p, mechanism, err := s.sessions.Load(ctx, s.sessionID)
	switch {
	case err == nil:
		observability.SessionOpsTotal.WithLabelValues("load", "hit").Inc()
		debug.Log("session", "identity rehydrated", "principal", p.Name, "mechanism", mechanism)
		if mechanism == "" {
			mechanism = MechanismNameCached
		}
		return p, mechanism, true
	case errors.Is(err, session.ErrNotFound):
		observability.SessionOpsTotal.WithLabelValues("load", "miss").Inc()
	default:
		observability.SessionOpsTotal.WithLabelValues("load", "error").Inc()
		slog.Warn("session load failed", "error", err)
	}
	return nil, "", false
}
