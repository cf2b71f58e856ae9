// Package idp implements the identity-provider handshake for the lock cloud.
//
// The service authenticates users against an AWS Cognito user pool. This
// package speaks the Cognito IdP JSON protocol directly (InitiateAuth with
// USER_PASSWORD_AUTH and REFRESH_TOKEN_AUTH); it deliberately knows nothing
// about the device API. Callers treat it as a black box that exchanges
// credentials for bearer tokens.
package idp

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// amzTargetAuth is the JSON-RPC target for the InitiateAuth operation.
	amzTargetAuth = "AWSCognitoIdentityProviderService.InitiateAuth"

	contentType = "application/x-amz-json-1.1"

	defaultTimeout = 30 * time.Second
)

// notAuthorizedCodes are the Cognito error codes that indicate rejected
// credentials rather than a transport or service failure.
var notAuthorizedCodes = map[string]bool{
	"NotAuthorizedException":         true,
	"InvalidPasswordException":       true,
	"PasswordResetRequiredException": true,
	"UserNotFoundException":          true,
	"UserNotConfirmedException":      true,
}

// Client talks to a Cognito user pool endpoint.
type Client struct {
	// Endpoint is the regional Cognito IdP endpoint, e.g.
	// https://cognito-idp.us-west-2.amazonaws.com/.
	Endpoint string

	ClientID     string
	ClientSecret string

	// HTTPClient is used for all requests. Defaults to a client with a 30s
	// timeout when nil.
	HTTPClient *http.Client
}

// Tokens is the result of a successful authentication or refresh.
type Tokens struct {
	AccessToken  string
	IDToken      string
	RefreshToken string
	ExpiresAt    time.Time
}

// Expired reports whether the access token has expired (with the given
// skew subtracted from its lifetime). The expiry recorded by the provider
// is preferred; the token's own exp claim is the fallback.
func (t *Tokens) Expired(skew time.Duration) bool {
	exp := t.ExpiresAt
	if exp.IsZero() {
		claims := jwt.RegisteredClaims{}
		if _, _, err := jwt.NewParser().ParseUnverified(t.AccessToken, &claims); err != nil {
			return true
		}
		if claims.ExpiresAt == nil {
			return true
		}
		exp = claims.ExpiresAt.Time
	}
	return time.Now().After(exp.Add(-skew))
}

type initiateAuthRequest struct {
	AuthFlow       string            `json:"AuthFlow"`
	ClientID       string            `json:"ClientId"`
	AuthParameters map[string]string `json:"AuthParameters"`
}

type initiateAuthResponse struct {
	AuthenticationResult struct {
		AccessToken  string `json:"AccessToken"`
		IDToken      string `json:"IdToken"`
		RefreshToken string `json:"RefreshToken"`
		ExpiresIn    int    `json:"ExpiresIn"`
	} `json:"AuthenticationResult"`
}

type cognitoError struct {
	Type    string `json:"__type"`
	Message string `json:"message"`
}

// Authenticate performs the password handshake and returns fresh tokens.
func (c *Client) Authenticate(ctx context.Context, username, password string) (*Tokens, error) {
	params := map[string]string{
		"USERNAME": username,
		"PASSWORD": password,
	}
	if c.ClientSecret != "" {
		params["SECRET_HASH"] = c.secretHash(username)
	}
	return c.initiateAuth(ctx, "USER_PASSWORD_AUTH", params)
}

// Refresh exchanges a refresh token for fresh access and identity tokens.
// Cognito does not return a new refresh token on this flow; the old one is
// carried over.
func (c *Client) Refresh(ctx context.Context, username, refreshToken string) (*Tokens, error) {
	params := map[string]string{
		"REFRESH_TOKEN": refreshToken,
	}
	if c.ClientSecret != "" {
		params["SECRET_HASH"] = c.secretHash(username)
	}
	tokens, err := c.initiateAuth(ctx, "REFRESH_TOKEN_AUTH", params)
	if err != nil {
		return nil, err
	}
	if tokens.RefreshToken == "" {
		tokens.RefreshToken = refreshToken
	}
	return tokens, nil
}

func (c *Client) initiateAuth(ctx context.Context, flow string, params map[string]string) (*Tokens, error) {
	body, err := json.Marshal(initiateAuthRequest{
		AuthFlow:       flow,
		ClientID:       c.ClientID,
		AuthParameters: params,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding auth request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating auth request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Amz-Target", amzTargetAuth)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProvider, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %w", ErrProvider, err)
	}

	if resp.StatusCode != http.StatusOK {
		var ce cognitoError
		if err := json.Unmarshal(data, &ce); err == nil && ce.Type != "" {
			if notAuthorizedCodes[ce.Type] {
				return nil, fmt.Errorf("%w: %s: %s", ErrInvalidCredentials, ce.Type, ce.Message)
			}
			return nil, fmt.Errorf("%w: %s: %s", ErrProvider, ce.Type, ce.Message)
		}
		return nil, fmt.Errorf("%w: status %d", ErrProvider, resp.StatusCode)
	}

	var parsed initiateAuthResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %w", ErrProvider, err)
	}
	result := parsed.AuthenticationResult
	if result.AccessToken == "" {
		return nil, fmt.Errorf("%w: response contained no access token", ErrProvider)
	}

	tokens := &Tokens{
		AccessToken:  result.AccessToken,
		IDToken:      result.IDToken,
		RefreshToken: result.RefreshToken,
	}
	if result.ExpiresIn > 0 {
		tokens.ExpiresAt = time.Now().Add(time.Duration(result.ExpiresIn) * time.Second)
	}
	return tokens, nil
}

// secretHash computes the Cognito SECRET_HASH parameter:
// base64(HMAC-SHA256(client secret, username + client id)).
func (c *Client) secretHash(username string) string {
	mac := hmac.New(sha256.New, []byte(c.ClientSecret))
	mac.Write([]byte(username + c.ClientID))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: defaultTimeout}
}
