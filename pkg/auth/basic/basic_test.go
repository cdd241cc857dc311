package basic

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/portier-dev/portier/pkg/auth"
)

type fakeStore struct {
	username string
	password string
	err      error
}

func (s *fakeStore) Verify(_ context.Context, username, password string) (*auth.Principal, error) {
	if s.err != nil {
		return nil, s.err
	}
	if username == s.username && password == s.password {
		return &auth.Principal{Name: username}, nil
	}
	return nil, nil
}

func (s *fakeStore) IsMember(context.Context, *auth.Principal, string) (bool, error) {
	return false, nil
}

func TestAttempt_NoCredentialsAbstains(t *testing.T) {
	m := New(&fakeStore{}, "")

	r := httptest.NewRequest("GET", "/", nil)
	res, err := m.Attempt(context.Background(), r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != auth.OutcomeNotAttempted {
		t.Errorf("Outcome = %v, want not_attempted", res.Outcome)
	}
}

func TestAttempt_ValidCredentials(t *testing.T) {
	m := New(&fakeStore{username: "alice", password: "secret"}, "")

	r := httptest.NewRequest("GET", "/", nil)
	r.SetBasicAuth("alice", "secret")

	res, err := m.Attempt(context.Background(), r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != auth.OutcomeAuthenticated {
		t.Errorf("Outcome = %v, want authenticated", res.Outcome)
	}
	if res.Principal == nil || res.Principal.Name != "alice" {
		t.Errorf("Principal = %v, want alice", res.Principal)
	}
}

func TestAttempt_WrongPasswordRejects(t *testing.T) {
	m := New(&fakeStore{username: "alice", password: "secret"}, "")

	r := httptest.NewRequest("GET", "/", nil)
	r.SetBasicAuth("alice", "wrong")

	res, err := m.Attempt(context.Background(), r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != auth.OutcomeNotAuthenticated {
		t.Errorf("Outcome = %v, want not_authenticated", res.Outcome)
	}
	if !errors.Is(res.Reason, auth.ErrUnauthenticated) {
		t.Errorf("Reason = %v, want ErrUnauthenticated", res.Reason)
	}
}

func TestAttempt_StoreFailureIsError(t *testing.T) {
	storeErr := errors.New("connection refused")
	m := New(&fakeStore{err: storeErr}, "")

	r := httptest.NewRequest("GET", "/", nil)
	r.SetBasicAuth("alice", "secret")

	_, err := m.Attempt(context.Background(), r)
	if !errors.Is(err, storeErr) {
		t.Errorf("err = %v, want wrapped store error", err)
	}
}

func TestSendChallenge(t *testing.T) {
	m := New(&fakeStore{}, "internal")

	rec := httptest.NewRecorder()
	m.SendChallenge(rec, httptest.NewRequest("GET", "/", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	got := rec.Header().Get("WWW-Authenticate")
	if !strings.Contains(got, `Basic realm="internal"`) {
		t.Errorf("WWW-Authenticate = %q, want Basic with realm", got)
	}
}

func TestSendChallenge_DefaultRealm(t *testing.T) {
	m := New(&fakeStore{}, "")

	rec := httptest.NewRecorder()
	m.SendChallenge(rec, httptest.NewRequest("GET", "/", nil))

	if got := rec.Header().Get("WWW-Authenticate"); !strings.Contains(got, `realm="portier"`) {
		t.Errorf("WWW-Authenticate = %q, want default realm", got)
	}
}
