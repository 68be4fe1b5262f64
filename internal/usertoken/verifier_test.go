package usertoken

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

func TestNewVerifierRequiresJWKSURL(t *testing.T) {
	if _, err := NewVerifier(context.Background(), Config{}); err == nil {
		t.Fatalf("expected missing jwks url to fail")
	}
}

func TestNewVerifierFailsOnEmptyKeySet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"keys":[]}`))
	}))
	defer srv.Close()
	if _, err := NewVerifier(context.Background(), Config{JWKSURL: srv.URL}); err == nil {
		t.Fatalf("expected empty jwks to fail")
	}
}

func TestVerifyRefreshesOnUnknownKid(t *testing.T) {
	key1 := generateKey(t)
	key2 := generateKey(t)

	var active atomic.Value
	active.Store("kid-1")
	var fetches atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fetches.Add(1)
		kid := active.Load().(string)
		key := key1.PublicKey
		if kid == "kid-2" {
			key = key2.PublicKey
		}
		w.Header().Set("Cache-Control", "public, max-age=300")
		_ = json.NewEncoder(w).Encode(map[string]any{"keys": []map[string]string{toJWK(kid, key)}})
	}))
	defer srv.Close()

	v, err := NewVerifier(context.Background(), Config{JWKSURL: srv.URL, Issuer: "issuer-a", Audience: "aud-a"})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	id, err := v.Verify(context.Background(), sign(t, key1, "kid-1", claimsFor("user-a", "Alice", time.Now())))
	if err != nil {
		t.Fatalf("verify token1: %v", err)
	}
	if id.Subject != "user-a" || id.Name != "Alice" {
		t.Fatalf("identity = %+v", id)
	}

	active.Store("kid-2")
	id, err = v.Verify(context.Background(), sign(t, key2, "kid-2", claimsFor("user-b", "", time.Now())))
	if err != nil {
		t.Fatalf("verify token2: %v", err)
	}
	if id.Subject != "user-b" {
		t.Fatalf("subject = %q, want %q", id.Subject, "user-b")
	}
	if got := fetches.Load(); got != 2 {
		t.Fatalf("jwks fetches = %d, want 2", got)
	}
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	key := generateKey(t)
	other := generateKey(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"keys": []map[string]string{toJWK("kid-1", key.PublicKey)}})
	}))
	defer srv.Close()

	v, err := NewVerifier(context.Background(), Config{JWKSURL: srv.URL, Issuer: "issuer-a", Audience: "aud-a", Leeway: 5 * time.Second})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	wrongAudience := claimsFor("user-1", "", time.Now())
	wrongAudience.Audience = jwt.ClaimStrings{"aud-b"}

	cases := map[string]string{
		"future iat":     sign(t, key, "kid-1", claimsFor("user-1", "", time.Now().Add(2*time.Minute))),
		"expired":        sign(t, key, "kid-1", claimsFor("user-1", "", time.Now().Add(-time.Hour))),
		"wrong audience": sign(t, key, "kid-1", wrongAudience),
		"wrong key":      sign(t, other, "kid-1", claimsFor("user-1", "", time.Now())),
		"no subject":     sign(t, key, "kid-1", claimsFor("", "", time.Now())),
		"garbage":        "not-a-jwt",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := v.Verify(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("err = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestMaxAge(t *testing.T) {
	cases := map[string]time.Duration{
		"":                    0,
		"no-cache":            0,
		"public, max-age=60":  time.Minute,
		"MAX-AGE=5, private":  5 * time.Second,
		"max-age=-1":          0,
		"max-age=abc, public": 0,
	}
	for in, want := range cases {
		if got := maxAge(in); got != want {
			t.Fatalf("maxAge(%q) = %v, want %v", in, got, want)
		}
	}
}

// claimsFor builds claims issued at iat and valid for one minute after it.
func claimsFor(subject, name string, iat time.Time) *claims {
	return &claims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    "issuer-a",
			Audience:  jwt.ClaimStrings{"aud-a"},
			ExpiresAt: jwt.NewNumericDate(iat.Add(time.Minute)),
			IssuedAt:  jwt.NewNumericDate(iat),
		},
	}
}

func sign(t *testing.T, key *rsa.PrivateKey, kid string, c *claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, c)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func generateKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func toJWK(kid string, key rsa.PublicKey) map[string]string {
	return map[string]string{
		"kty": "RSA",
		"kid": kid,
		"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
	}
}
