package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMiddleware_BypassEndpoints(t *testing.T) {
	m := &mockMechanism{result: MechanismResult{
		Outcome: OutcomeNotAuthenticated,
		Reason:  ErrUnauthenticated,
	}}
	factory := &Factory{Mechanisms: []Mechanism{m}}

	var handled int
	handler := Middleware(factory, nil, DefaultBypassEndpoints)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { handled++ }),
	)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 for bypass endpoint", rec.Code)
	}
	if handled != 1 {
		t.Errorf("handler called %d times, want 1", handled)
	}
	if m.attempts != 0 {
		t.Errorf("mechanism attempted %d times for bypass endpoint, want 0", m.attempts)
	}
}

func TestMiddleware_RejectedGetsChallenge(t *testing.T) {
	m := &mockMechanism{name: "BASIC", result: MechanismResult{
		Outcome: OutcomeNotAuthenticated,
		Reason:  ErrUnauthenticated,
	}}
	factory := &Factory{Mechanisms: []Mechanism{m}}

	handler := Middleware(factory, nil, nil)(
		http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			t.Error("handler must not run for rejected request")
		}),
	)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/protected", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if m.challenges != 1 {
		t.Errorf("mechanism challenged %d times, want 1", m.challenges)
	}
	if got := rec.Header().Get("WWW-Authenticate"); got != "BASIC" {
		t.Errorf("WWW-Authenticate = %q, want mechanism challenge", got)
	}
}

func TestMiddleware_EmptyChainRejectsPlainly(t *testing.T) {
	factory := &Factory{}

	handler := Middleware(factory, nil, nil)(
		http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			t.Error("handler must not run without authentication")
		}),
	)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/protected", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "authentication required") {
		t.Errorf("body = %q, want plain rejection", rec.Body.String())
	}
}

func TestMiddleware_AuthenticatedPasses(t *testing.T) {
	m := &mockMechanism{name: "API_KEY", result: MechanismResult{
		Outcome:   OutcomeAuthenticated,
		Principal: &Principal{Name: "alice"},
	}}
	factory := &Factory{Mechanisms: []Mechanism{m}}

	handler := Middleware(factory, nil, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sc := FromContext(r.Context())
			if sc == nil {
				t.Fatal("security context missing from request context")
			}
			if sc.Principal().Name != "alice" {
				t.Errorf("Principal = %q, want alice", sc.Principal().Name)
			}
			w.WriteHeader(http.StatusOK)
		}),
	)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/protected", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestMiddleware_BackendFailure(t *testing.T) {
	m := &mockMechanism{err: errors.New("store down")}
	factory := &Factory{Mechanisms: []Mechanism{m}}

	handler := Middleware(factory, nil, nil)(
		http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			t.Error("handler must not run on backend failure")
		}),
	)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/protected", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestMiddleware_RateLimit(t *testing.T) {
	m := &mockMechanism{result: MechanismResult{
		Outcome:   OutcomeAuthenticated,
		Principal: &Principal{Name: "alice", Attributes: map[string]string{"tier": "free"}},
	}}
	factory := &Factory{Mechanisms: []Mechanism{m}}
	limiter := NewInProcessLimiter(map[string]TierConfig{
		"free": {RequestsPerMinute: 2},
	}, 100)

	handler := Middleware(factory, limiter, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/protected", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i+1, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/protected", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429 once over the limit", rec.Code)
	}
}

func TestFactory_NewDoesNotMintCookie(t *testing.T) {
	factory := &Factory{Sessions: newMockSessions()}

	rec := httptest.NewRecorder()
	factory.New(rec, httptest.NewRequest("GET", "/protected", nil))

	// Anonymous traffic must not churn session IDs; minting belongs to
	// the login path.
	if len(rec.Result().Cookies()) != 0 {
		t.Error("minted a session cookie for a cookieless request")
	}
}

func TestFactory_NewWithSessionMintsCookie(t *testing.T) {
	factory := &Factory{Sessions: newMockSessions()}

	rec := httptest.NewRecorder()
	r := httptest.NewRequest("POST", "/login", nil)
	factory.NewWithSession(rec, r)

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("got %d cookies, want 1", len(cookies))
	}
	c := cookies[0]
	if c.Name != "portier_session" {
		t.Errorf("cookie name = %q, want portier_session", c.Name)
	}
	if c.Value == "" {
		t.Error("cookie value empty, want minted session id")
	}
	if !c.HttpOnly {
		t.Error("session cookie missing HttpOnly")
	}
}

func TestFactory_ReusesSessionCookie(t *testing.T) {
	sessions := newMockSessions()
	factory := &Factory{Sessions: sessions}

	rec := httptest.NewRecorder()
	r := httptest.NewRequest("POST", "/login", nil)
	r.AddCookie(&http.Cookie{Name: "portier_session", Value: "existing-id"})

	sc := factory.NewWithSession(rec, r)

	if len(rec.Result().Cookies()) != 0 {
		t.Error("minted a new cookie despite existing session cookie")
	}

	// The existing ID is what Login persists against.
	store := &mockIdentityStore{username: "alice", password: "correct"}
	sc.identity = store
	if ok, _ := sc.Login(context.Background(), "alice", "correct"); !ok {
		t.Fatal("login failed")
	}
	if _, ok := sessions.entries["existing-id"]; !ok {
		t.Errorf("session saved under %v, want existing-id", sessions.entries)
	}
}

func TestFactory_NoSessionsNoCookie(t *testing.T) {
	factory := &Factory{}

	rec := httptest.NewRecorder()
	factory.NewWithSession(rec, httptest.NewRequest("POST", "/login", nil))

	if len(rec.Result().Cookies()) != 0 {
		t.Error("minted a session cookie without a session manager")
	}
}
