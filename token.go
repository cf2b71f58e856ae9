package latchlink

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/latchlink/internal/idp"
)

// Cognito user-pool parameters published with the vendor's mobile apps.
const (
	cognitoEndpoint     = "https://cognito-idp.us-west-2.amazonaws.com/"
	cognitoClientID     = "t5836cptp2s1il0u9lki03j5"
	cognitoClientSecret = "1kfmt18bgaig51in4j4v1j3jbe7ioqtjhle5o6knqc5dat0tpuvo"
)

// tokenExpirySkew is how far ahead of expiry cached tokens are renewed.
const tokenExpirySkew = 30 * time.Second

// PasswordTokens is the standard TokenProvider: it runs the password
// handshake against the vendor's Cognito user pool and keeps the resulting
// tokens fresh, preferring the refresh-token flow over repeating the full
// handshake.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type PasswordTokens struct {
	username string
	password string
	idp      *idp.Client

	mu     sync.Mutex
	cached *idp.Tokens
}

// NewPasswordTokens returns a provider for the given account credentials.
// No network I/O happens until the first token is needed.
func NewPasswordTokens(username, password string) *PasswordTokens {
	return &PasswordTokens{
		username: username,
		password: password,
		idp: &idp.Client{
			Endpoint:     cognitoEndpoint,
			ClientID:     cognitoClientID,
			ClientSecret: cognitoClientSecret,
		},
	}
}

// Authenticate runs the full password handshake, replacing any cached
// tokens.
func (p *PasswordTokens) Authenticate(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.authenticateLocked(ctx)
}

// AccessToken returns a currently-valid access token.
func (p *PasswordTokens) AccessToken(ctx context.Context) (string, error) {
	tokens, err := p.ensureFresh(ctx)
	if err != nil {
		return "", err
	}
	return tokens.AccessToken, nil
}

// IdentityToken returns a currently-valid identity token.
func (p *PasswordTokens) IdentityToken(ctx context.Context) (string, error) {
	tokens, err := p.ensureFresh(ctx)
	if err != nil {
		return "", err
	}
	return tokens.IDToken, nil
}

func (p *PasswordTokens) authenticateLocked(ctx context.Context) error {
	tokens, err := p.idp.Authenticate(ctx, p.username, p.password)
	if err != nil {
		return err
	}
	p.cached = tokens
	return nil
}

func (p *PasswordTokens) ensureFresh(ctx context.Context) (*idp.Tokens, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cached != nil && !p.cached.Expired(tokenExpirySkew) {
		return p.cached, nil
	}
	if p.cached != nil && p.cached.RefreshToken != "" {
		tokens, err := p.idp.Refresh(ctx, p.username, p.cached.RefreshToken)
		if err == nil {
			p.cached = tokens
			return p.cached, nil
		}
		// Refresh tokens are revocable; fall back to the full handshake.
	}
	if err := p.authenticateLocked(ctx); err != nil {
		return nil, err
	}
	return p.cached, nil
}
