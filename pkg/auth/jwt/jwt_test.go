package jwt

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/portier-dev/portier/pkg/auth"
)

// testKeyPair holds the RSA key pair used throughout the tests.
var testKeyPair *rsa.PrivateKey

func init() {
	var err error
	testKeyPair, err = rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(fmt.Sprintf("generating test RSA key: %v", err))
	}
}

// testKID is the key ID used for the test key pair.
const testKID = "test-key-1"

// jwksHandler returns an HTTP handler that serves the test public key as a JWKS.
// It also increments fetchCount each time the handler is called.
func jwksHandler(fetchCount *atomic.Int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if fetchCount != nil {
			fetchCount.Add(1)
		}

		pubKey := testKeyPair.PublicKey
		nBase64 := base64.RawURLEncoding.EncodeToString(pubKey.N.Bytes())
		eBase64 := base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pubKey.E)).Bytes())

		jwks := map[string]interface{}{
			"keys": []map[string]string{
				{
					"kty": "RSA",
					"kid": testKID,
					"use": "sig",
					"n":   nBase64,
					"e":   eBase64,
				},
			},
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(jwks)
	}
}

// createSignedToken creates a JWT signed with the test private key.
func createSignedToken(t *testing.T, claims jwtlib.MapClaims) string {
	t.Helper()
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodRS256, claims)
	token.Header["kid"] = testKID

	tokenStr, err := token.SignedString(testKeyPair)
	if err != nil {
		t.Fatalf("signing test token: %v", err)
	}
	return tokenStr
}

// newTestMechanism creates a test JWKS server and JWT mechanism.
func newTestMechanism(t *testing.T, cfgOverride func(*Config), fetchCount *atomic.Int32) (*Mechanism, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(jwksHandler(fetchCount))
	t.Cleanup(server.Close)

	cfg := Config{
		Issuer:   "https://auth.example.com",
		Audience: "my-api",
		JWKSURL:  server.URL + "/.well-known/jwks.json",
		CacheTTL: 1 * time.Hour,
	}

	if cfgOverride != nil {
		cfgOverride(&cfg)
	}

	return New(cfg), server
}

func validClaims() jwtlib.MapClaims {
	return jwtlib.MapClaims{
		"sub": "user-123",
		"iss": "https://auth.example.com",
		"aud": "my-api",
		"exp": time.Now().Add(1 * time.Hour).Unix(),
		"iat": time.Now().Unix(),
	}
}

func attempt(t *testing.T, m *Mechanism, authorization string) (auth.MechanismResult, error) {
	t.Helper()
	r := httptest.NewRequest("GET", "/", nil)
	if authorization != "" {
		r.Header.Set("Authorization", authorization)
	}
	return m.Attempt(context.Background(), r)
}

func TestAttempt_ValidToken(t *testing.T) {
	m, _ := newTestMechanism(t, nil, nil)
	token := createSignedToken(t, validClaims())

	res, err := attempt(t, m, "Bearer "+token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != auth.OutcomeAuthenticated {
		t.Fatalf("Outcome = %v, want authenticated; reason=%v", res.Outcome, res.Reason)
	}
	if res.Principal == nil || res.Principal.Name != "user-123" {
		t.Errorf("Principal = %v, want user-123", res.Principal)
	}
}

func TestAttempt_TierClaim(t *testing.T) {
	m, _ := newTestMechanism(t, nil, nil)

	claims := validClaims()
	claims["tier"] = "pro"
	token := createSignedToken(t, claims)

	res, err := attempt(t, m, "Bearer "+token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != auth.OutcomeAuthenticated {
		t.Fatalf("Outcome = %v, want authenticated", res.Outcome)
	}
	if got := res.Principal.Attribute("tier"); got != "pro" {
		t.Errorf("tier = %q, want pro", got)
	}
}

func TestAttempt_CustomUserClaim(t *testing.T) {
	m, _ := newTestMechanism(t, func(c *Config) { c.UserClaim = "email" }, nil)

	claims := validClaims()
	claims["email"] = "alice@example.com"
	token := createSignedToken(t, claims)

	res, err := attempt(t, m, "Bearer "+token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Principal == nil || res.Principal.Name != "alice@example.com" {
		t.Errorf("Principal = %v, want alice@example.com", res.Principal)
	}
}

func TestAttempt_ExpiredTokenRejects(t *testing.T) {
	m, _ := newTestMechanism(t, nil, nil)

	claims := validClaims()
	claims["exp"] = time.Now().Add(-1 * time.Hour).Unix()
	token := createSignedToken(t, claims)

	res, err := attempt(t, m, "Bearer "+token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != auth.OutcomeNotAuthenticated {
		t.Errorf("Outcome = %v, want not_authenticated for expired token", res.Outcome)
	}
}

func TestAttempt_WrongIssuerRejects(t *testing.T) {
	m, _ := newTestMechanism(t, nil, nil)

	claims := validClaims()
	claims["iss"] = "https://evil.example.com"
	token := createSignedToken(t, claims)

	res, err := attempt(t, m, "Bearer "+token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != auth.OutcomeNotAuthenticated {
		t.Errorf("Outcome = %v, want not_authenticated for wrong issuer", res.Outcome)
	}
}

func TestAttempt_WrongAudienceRejects(t *testing.T) {
	m, _ := newTestMechanism(t, nil, nil)

	claims := validClaims()
	claims["aud"] = "other-api"
	token := createSignedToken(t, claims)

	res, err := attempt(t, m, "Bearer "+token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != auth.OutcomeNotAuthenticated {
		t.Errorf("Outcome = %v, want not_authenticated for wrong audience", res.Outcome)
	}
}

func TestAttempt_MissingSubjectRejects(t *testing.T) {
	m, _ := newTestMechanism(t, nil, nil)

	claims := validClaims()
	delete(claims, "sub")
	token := createSignedToken(t, claims)

	res, err := attempt(t, m, "Bearer "+token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != auth.OutcomeNotAuthenticated {
		t.Errorf("Outcome = %v, want not_authenticated without subject", res.Outcome)
	}
}

func TestAttempt_NonJWTBearerAbstains(t *testing.T) {
	m, _ := newTestMechanism(t, nil, nil)

	// Opaque API keys are not JWT-shaped and must fall through to other
	// bearer mechanisms in the chain.
	res, err := attempt(t, m, "Bearer sk-opaque-api-key")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != auth.OutcomeNotAttempted {
		t.Errorf("Outcome = %v, want not_attempted for opaque token", res.Outcome)
	}
}

func TestAttempt_NoHeaderAbstains(t *testing.T) {
	m, _ := newTestMechanism(t, nil, nil)

	res, err := attempt(t, m, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != auth.OutcomeNotAttempted {
		t.Errorf("Outcome = %v, want not_attempted", res.Outcome)
	}
}

func TestAttempt_JWKSFetchFailureIsError(t *testing.T) {
	m, server := newTestMechanism(t, nil, nil)
	server.Close()

	token := createSignedToken(t, validClaims())

	res, err := attempt(t, m, "Bearer "+token)
	if err == nil {
		t.Fatalf("expected backend error, got result %v", res)
	}
}

func TestJWKSCache_SingleFetch(t *testing.T) {
	var fetchCount atomic.Int32
	m, _ := newTestMechanism(t, nil, &fetchCount)

	for i := 0; i < 3; i++ {
		token := createSignedToken(t, validClaims())
		res, err := attempt(t, m, "Bearer "+token)
		if err != nil {
			t.Fatalf("request %d: unexpected error: %v", i+1, err)
		}
		if res.Outcome != auth.OutcomeAuthenticated {
			t.Fatalf("request %d: Outcome = %v, want authenticated", i+1, res.Outcome)
		}
	}

	if got := fetchCount.Load(); got != 1 {
		t.Errorf("JWKS fetched %d times, want 1 (cached)", got)
	}
}

func TestJWKSCache_RefreshOnExpiry(t *testing.T) {
	var fetchCount atomic.Int32
	m, _ := newTestMechanism(t, func(c *Config) { c.CacheTTL = 1 * time.Nanosecond }, &fetchCount)

	for i := 0; i < 2; i++ {
		token := createSignedToken(t, validClaims())
		if _, err := attempt(t, m, "Bearer "+token); err != nil {
			t.Fatalf("request %d: unexpected error: %v", i+1, err)
		}
		time.Sleep(time.Millisecond)
	}

	if got := fetchCount.Load(); got != 2 {
		t.Errorf("JWKS fetched %d times, want 2 (expired cache)", got)
	}
}

func TestSendChallenge(t *testing.T) {
	m, _ := newTestMechanism(t, nil, nil)

	rec := httptest.NewRecorder()
	m.SendChallenge(rec, httptest.NewRequest("GET", "/", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if got := rec.Header().Get("WWW-Authenticate"); got != `Bearer error="invalid_token"` {
		t.Errorf("WWW-Authenticate = %q, want bearer invalid_token challenge", got)
	}
}
