package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
)

var testSecret = []byte("test-secret")

func signHS256(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub": "user-123",
		"aud": "taskchat",
		"iss": "https://issuer/",
		"exp": time.Now().Add(5 * time.Minute).Unix(),
		"nbf": time.Now().Add(-time.Minute).Unix(),
		"iat": time.Now().Add(-time.Minute).Unix(),
	}
}

func newHS256(t *testing.T) *Auth {
	t.Helper()
	a, err := New(Options{Secret: testSecret, Audience: "taskchat", Issuer: "https://issuer/"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestNewRequiresMode(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("expected error without secret or jwks")
	}
}

func TestUserIDFromAuthHeaderHS256(t *testing.T) {
	a := newHS256(t)

	userID, err := a.UserIDFromAuthHeader("Bearer " + signHS256(t, validClaims()))
	if err != nil {
		t.Fatalf("unexpected error verifying token: %v", err)
	}
	if userID != "user-123" {
		t.Fatalf("unexpected user id: %s", userID)
	}
}

func TestUserIDFromAuthHeaderRejects(t *testing.T) {
	a := newHS256(t)

	mutate := func(f func(jwt.MapClaims)) string {
		c := validClaims()
		f(c)
		return "Bearer " + signHS256(t, c)
	}
	otherKey, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims()).SignedString([]byte("other"))
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, validClaims()).SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name   string
		header string
		want   error
	}{
		{"empty", "", ErrMissingAuthorization},
		{"blank", "   ", ErrMissingAuthorization},
		{"wrong scheme", "Basic dXNlcjpwYXNz", ErrBadAuthorization},
		{"not a jwt", "Bearer abc", ErrBadAuthorization},
		{"many periods", "Bearer " + strings.Repeat(".", 1000), ErrBadAuthorization},
		{"wrong key", "Bearer " + otherKey, ErrInvalidToken},
		{"alg none", "Bearer " + none, ErrInvalidToken},
		{"expired", mutate(func(c jwt.MapClaims) { c["exp"] = time.Now().Add(-time.Hour).Unix() }), ErrInvalidToken},
		{"missing exp", mutate(func(c jwt.MapClaims) { delete(c, "exp") }), ErrInvalidToken},
		{"not yet valid", mutate(func(c jwt.MapClaims) { c["nbf"] = time.Now().Add(time.Hour).Unix() }), ErrInvalidToken},
		{"issued in future", mutate(func(c jwt.MapClaims) { c["iat"] = time.Now().Add(time.Hour).Unix() }), ErrInvalidToken},
		{"wrong audience", mutate(func(c jwt.MapClaims) { c["aud"] = "someone-else" }), ErrInvalidToken},
		{"wrong issuer", mutate(func(c jwt.MapClaims) { c["iss"] = "https://evil/" }), ErrInvalidToken},
		{"missing sub", mutate(func(c jwt.MapClaims) { delete(c, "sub") }), ErrInvalidToken},
		{"empty sub", mutate(func(c jwt.MapClaims) { c["sub"] = "" }), ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.UserIDFromAuthHeader(tt.header)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestIssueHS256RoundTrip(t *testing.T) {
	a := newHS256(t)
	token, err := IssueHS256(testSecret, "user-9", "taskchat", "https://issuer/", time.Hour)
	if err != nil {
		t.Fatalf("IssueHS256: %v", err)
	}
	userID, err := a.UserIDFromToken(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if userID != "user-9" {
		t.Fatalf("unexpected user id: %s", userID)
	}
}

func TestBearerTokenCaseInsensitiveScheme(t *testing.T) {
	token, err := bearerToken("  bearer header.payload.signature ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "header.payload.signature" {
		t.Fatalf("unexpected token content: %s", token)
	}
}

func TestClockSkewTolerated(t *testing.T) {
	a := newHS256(t)
	c := validClaims()
	c["exp"] = time.Now().Add(-30 * time.Second).Unix()
	c["iat"] = time.Now().Add(30 * time.Second).Unix()

	if _, err := a.UserIDFromAuthHeader("Bearer " + signHS256(t, c)); err != nil {
		t.Fatalf("expected small skew to be tolerated, got %v", err)
	}
}

// --- JWKS ---

func rsaJWKS(t *testing.T, kid string) (*rsa.PrivateKey, []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	enc := base64.RawURLEncoding
	set := map[string]any{
		"keys": []map[string]any{{
			"kty": "RSA",
			"kid": kid,
			"use": "sig",
			"alg": "RS256",
			"n":   enc.EncodeToString(key.N.Bytes()),
			"e":   enc.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}},
	}
	raw, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("marshal jwks: %v", err)
	}
	return key, raw
}

func signRS256(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	signed, err := tok.SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return signed
}

func TestUserIDFromAuthHeaderJWKS(t *testing.T) {
	key, raw := rsaJWKS(t, "k1")
	jwks, err := keyfunc.NewJSON(raw)
	if err != nil {
		t.Fatalf("NewJSON: %v", err)
	}
	a, err := New(Options{JWKS: jwks, Audience: "taskchat"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	token := signRS256(t, key, "k1", validClaims())
	for i := 0; i < 2; i++ {
		userID, err := a.UserIDFromAuthHeader("Bearer " + token)
		if err != nil {
			t.Fatalf("verify (attempt %d): %v", i, err)
		}
		if userID != "user-123" {
			t.Fatalf("unexpected user id: %s", userID)
		}
	}
	if _, ok := a.keyCache.Load("k1"); !ok {
		t.Error("expected key to be cached by kid")
	}

	// HS256 tokens must not be accepted in JWKS mode.
	if _, err := a.UserIDFromAuthHeader("Bearer " + signHS256(t, validClaims())); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for HS256 token, got %v", err)
	}
}

func TestNewFromJWKSURL(t *testing.T) {
	key, raw := rsaJWKS(t, "k2")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(raw)
	}))
	t.Cleanup(srv.Close)

	a, err := NewFromJWKSURL(srv.URL, "", "")
	if err != nil {
		t.Fatalf("NewFromJWKSURL: %v", err)
	}
	t.Cleanup(a.Close)

	userID, err := a.UserIDFromToken(signRS256(t, key, "k2", validClaims()))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if userID != "user-123" {
		t.Fatalf("unexpected user id: %s", userID)
	}
}
