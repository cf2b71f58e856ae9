package latchlink

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nerrad567/latchlink/internal/idp"
)

// newTestPasswordTokens points the provider at a local identity stub.
func newTestPasswordTokens(t *testing.T, handler http.Handler) *PasswordTokens {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &PasswordTokens{
		username: "user@example.com",
		password: "hunter2",
		idp: &idp.Client{
			Endpoint:     srv.URL,
			ClientID:     "client-id",
			ClientSecret: "client-secret",
			HTTPClient:   srv.Client(),
		},
	}
}

func authResult(access string, expiresIn int) map[string]any {
	return map[string]any{
		"AuthenticationResult": map[string]any{
			"AccessToken":  access,
			"IdToken":      access + "-id",
			"RefreshToken": access + "-refresh",
			"ExpiresIn":    expiresIn,
		},
	}
}

func TestPasswordTokensCachesFreshTokens(t *testing.T) {
	var calls int
	p := newTestPasswordTokens(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(authResult("token-1", 3600))
	}))

	for range 3 {
		access, err := p.AccessToken(context.Background())
		if err != nil {
			t.Fatalf("AccessToken() error = %v", err)
		}
		if access != "token-1" {
			t.Fatalf("AccessToken() = %q, want token-1", access)
		}
	}
	if calls != 1 {
		t.Errorf("identity provider called %d times, want 1", calls)
	}

	id, err := p.IdentityToken(context.Background())
	if err != nil {
		t.Fatalf("IdentityToken() error = %v", err)
	}
	if id != "token-1-id" {
		t.Errorf("IdentityToken() = %q, want token-1-id", id)
	}
}

func TestPasswordTokensPrefersRefreshFlow(t *testing.T) {
	var flows []string
	p := newTestPasswordTokens(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			AuthFlow string `json:"AuthFlow"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		flows = append(flows, body.AuthFlow)
		json.NewEncoder(w).Encode(authResult("token-2", 3600))
	}))

	// Seed an expired cache with a usable refresh token.
	p.cached = &idp.Tokens{
		AccessToken:  "token-1",
		RefreshToken: "token-1-refresh",
		ExpiresAt:    time.Now().Add(-time.Minute),
	}

	access, err := p.AccessToken(context.Background())
	if err != nil {
		t.Fatalf("AccessToken() error = %v", err)
	}
	if access != "token-2" {
		t.Errorf("AccessToken() = %q, want token-2", access)
	}
	if len(flows) != 1 || flows[0] != "REFRESH_TOKEN_AUTH" {
		t.Errorf("flows = %v, want one REFRESH_TOKEN_AUTH", flows)
	}
}

func TestPasswordTokensFallsBackToPassword(t *testing.T) {
	var flows []string
	p := newTestPasswordTokens(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			AuthFlow string `json:"AuthFlow"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		flows = append(flows, body.AuthFlow)
		if body.AuthFlow == "REFRESH_TOKEN_AUTH" {
			// Revoked refresh token.
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{
				"__type": "NotAuthorizedException", "message": "revoked",
			})
			return
		}
		json.NewEncoder(w).Encode(authResult("token-3", 3600))
	}))

	p.cached = &idp.Tokens{
		AccessToken:  "token-1",
		RefreshToken: "token-1-refresh",
		ExpiresAt:    time.Now().Add(-time.Minute),
	}

	access, err := p.AccessToken(context.Background())
	if err != nil {
		t.Fatalf("AccessToken() error = %v", err)
	}
	if access != "token-3" {
		t.Errorf("AccessToken() = %q, want token-3", access)
	}
	want := []string{"REFRESH_TOKEN_AUTH", "USER_PASSWORD_AUTH"}
	if len(flows) != 2 || flows[0] != want[0] || flows[1] != want[1] {
		t.Errorf("flows = %v, want %v", flows, want)
	}
}
