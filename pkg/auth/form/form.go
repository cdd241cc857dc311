// Package form provides a form-based login mechanism backed by an identity
// store. Credentials arrive as a POST to a configured action path; the
// challenge redirects the client to the login page.
package form

import (
	"context"
	"fmt"
	"net/http"

	"github.com/portier-dev/portier/pkg/auth"
)

// MechanismName identifies this mechanism in logs and session records.
const MechanismName = "FORM"

// Config holds the form mechanism configuration.
type Config struct {
	// LoginPage is the path the challenge redirects to. Default: "/login".
	LoginPage string

	// ActionPath is the POST target carrying the credentials.
	// Default: "/login".
	ActionPath string

	// UsernameField and PasswordField name the form fields.
	// Defaults: "username", "password".
	UsernameField string
	PasswordField string
}

func (c *Config) applyDefaults() {
	if c.LoginPage == "" {
		c.LoginPage = "/login"
	}
	if c.ActionPath == "" {
		c.ActionPath = "/login"
	}
	if c.UsernameField == "" {
		c.UsernameField = "username"
	}
	if c.PasswordField == "" {
		c.PasswordField = "password"
	}
}

// Mechanism verifies posted form credentials against an identity store.
type Mechanism struct {
	store  auth.IdentityStore
	config Config
}

// New creates a form mechanism for the given store.
func New(store auth.IdentityStore, cfg Config) *Mechanism {
	cfg.applyDefaults()
	return &Mechanism{store: store, config: cfg}
}

func (m *Mechanism) Name() string { return MechanismName }

// Attempt handles only POSTs to the configured action path; everything
// else is NotAttempted so other mechanisms get their turn. A parseable
// form with a username field is considered a credential submission: wrong
// credentials reject rather than abstain.
func (m *Mechanism) Attempt(ctx context.Context, r *http.Request) (auth.MechanismResult, error) {
	if r.Method != http.MethodPost || r.URL.Path != m.config.ActionPath {
		return auth.MechanismResult{Outcome: auth.OutcomeNotAttempted}, nil
	}

	if err := r.ParseForm(); err != nil {
		return auth.MechanismResult{
			Outcome: auth.OutcomeNotAuthenticated,
			Reason:  fmt.Errorf("parsing login form: %w", err),
		}, nil
	}

	username := r.PostFormValue(m.config.UsernameField)
	password := r.PostFormValue(m.config.PasswordField)
	if username == "" {
		return auth.MechanismResult{Outcome: auth.OutcomeNotAttempted}, nil
	}

	p, err := m.store.Verify(ctx, username, password)
	if err != nil {
		return auth.MechanismResult{}, fmt.Errorf("verifying form credentials: %w", err)
	}
	if p == nil {
		return auth.MechanismResult{
			Outcome: auth.OutcomeNotAuthenticated,
			Reason:  auth.ErrUnauthenticated,
		}, nil
	}

	return auth.MechanismResult{Outcome: auth.OutcomeAuthenticated, Principal: p}, nil
}

// SendChallenge redirects the client to the login page.
func (m *Mechanism) SendChallenge(w http.ResponseWriter, r *http.Request) {
	if w.Header().Get("Location") != "" {
		// An earlier mechanism already redirected.
		return
	}
	http.Redirect(w, r, m.config.LoginPage, http.StatusFound)
}
