package auth

import (
	"log/slog"
	"net/http"

	"github.com/portier-dev/portier/pkg/observability"
	"github.com/portier-dev/portier/pkg/session"
	"github.com/portier-dev/portier/pkg/transport"
)

// Factory builds a SecurityContext per incoming request, owning the pieces
// that are shared across requests: the mechanism chain, the identity store,
// and the session manager.
type Factory struct {
	IdentityStore IdentityStore
	Sessions      SessionManager
	Mechanisms    []Mechanism

	// CookieName overrides the session cookie name. Defaults to
	// session.CookieName.
	CookieName string

	// SecureCookies marks minted session cookies as Secure. Leave false
	// only for plain-HTTP development setups.
	SecureCookies bool
}

// New creates the SecurityContext for one request. When a session manager
// is configured, the session ID comes from the request cookie; a request
// without one simply has no session to rehydrate. No cookie is minted
// here, so anonymous traffic does not churn session IDs; use
// NewWithSession on the endpoint that establishes sessions.
func (f *Factory) New(w http.ResponseWriter, r *http.Request) *SecurityContext {
	cfg := Config{
		IdentityStore: f.IdentityStore,
		Sessions:      f.Sessions,
		Mechanisms:    f.Mechanisms,
	}
	if f.Sessions != nil {
		cfg.SessionID = f.sessionID(r)
	}
	return New(w, r, cfg)
}

// NewWithSession is New for handlers that establish a session, such as a
// login endpoint: when the request carries no session cookie a fresh ID is
// minted and set on the response so Login can persist against it.
func (f *Factory) NewWithSession(w http.ResponseWriter, r *http.Request) *SecurityContext {
	cfg := Config{
		IdentityStore: f.IdentityStore,
		Sessions:      f.Sessions,
		Mechanisms:    f.Mechanisms,
	}
	if f.Sessions != nil {
		cfg.SessionID = f.sessionID(r)
		if cfg.SessionID == "" {
			cfg.SessionID = f.mintSessionID(w)
		}
	}
	return New(w, r, cfg)
}

func (f *Factory) cookieName() string {
	if f.CookieName != "" {
		return f.CookieName
	}
	return session.CookieName
}

func (f *Factory) sessionID(r *http.Request) string {
	if c, err := r.Cookie(f.cookieName()); err == nil && c.Value != "" {
		return c.Value
	}
	return ""
}

func (f *Factory) mintSessionID(w http.ResponseWriter) string {
	id, err := session.NewID()
	if err != nil {
		// No entropy means no session persistence for this request; the
		// chain itself is unaffected.
		slog.Error("minting session id failed", "error", err)
		return ""
	}
	http.SetCookie(w, &http.Cookie{
		Name:     f.cookieName(),
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   f.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// Middleware gates the wrapped handler on authentication. Each request gets
// its own SecurityContext, is marked as requiring authentication, and is
// handed to the handler only on an authenticated outcome; everything else
// receives the mechanisms' challenge (or a plain 401 when no mechanism
// challenged). The context is attached to the request context for retrieval
// via FromContext. Optionally enforces a per-principal rate limit.
func Middleware(factory *Factory, limiter RateLimiter, bypassEndpoints []string) func(http.Handler) http.Handler {
	bypass := make(map[string]bool, len(bypassEndpoints))
	for _, ep := range bypassEndpoints {
		bypass[ep] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Check bypass list.
			if bypass[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			sc := factory.New(w, r)
			sc.SetAuthenticationRequired()

			gated := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				p := sc.Principal()

				// Rate limiting (if configured).
				if limiter != nil {
					if err := limiter.Allow(r.Context(), p); err != nil {
						slog.Warn("rate limit exceeded",
							"principal", p.Name,
							"tier", p.Attribute("tier"),
						)
						observability.RateLimitRejectedTotal.WithLabelValues(tierLabel(p)).Inc()
						transport.WriteError(w, transport.ErrorTypeTooManyRequests, "rate limit exceeded")
						return
					}
				}

				next.ServeHTTP(w, r)
			})

			sc.AuthenticateGated(r.Context(), gated, func(result *Result, err error) {
				if err != nil {
					slog.Error("authentication backend failure",
						"path", r.URL.Path,
						"error", err,
					)
					transport.WriteErrorResponse(w, transport.ErrorTypeServerError, "authentication unavailable", http.StatusServiceUnavailable)
					return
				}

				result.SendChallenge()
				if !result.HasChallenge() {
					// No mechanism contributed a challenge; reject plainly.
					transport.WriteError(w, transport.ErrorTypeUnauthorized, "authentication required")
				}
			})
		})
	}
}

func tierLabel(p *Principal) string {
	if tier := p.Attribute("tier"); tier != "" {
		return tier
	}
	return "default"
}

// DefaultBypassEndpoints lists endpoints that skip authentication.
var DefaultBypassEndpoints = []string{"/healthz", "/readyz", "/metrics"}
