package latchlink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/latchlink/internal/idp"
	"github.com/nerrad567/latchlink/internal/push"
)

// Service defaults. These are the published parameters of the vendor cloud;
// Config fields override them for testing or proxying.
const (
	DefaultBaseURL = "https://api.allegion.yonomi.cloud/v1"
	DefaultAPIKey  = "hnuu9jbbJr7MssFDWm5nU2Z7nG5Q5rxsaqWsE7e9"
	DefaultTimeout = 60 * time.Second
)

// TokenProvider supplies bearer tokens for the service. NewPasswordTokens is
// the standard implementation; tests and alternative identity flows can
// substitute their own.
type TokenProvider interface {
	// Authenticate performs the identity-provider handshake, discarding any
	// cached token state. It must succeed before signed requests can be made.
	Authenticate(ctx context.Context) error

	// AccessToken returns a currently-valid access token, refreshing or
	// re-authenticating as needed.
	AccessToken(ctx context.Context) (string, error)

	// IdentityToken returns a currently-valid identity (OIDC) token. The
	// push-channel bootstrap endpoint requires it.
	IdentityToken(ctx context.Context) (string, error)
}

// Config carries everything a Session needs. Only Tokens is required.
type Config struct {
	// Tokens supplies bearer tokens. Required.
	Tokens TokenProvider

	// BaseURL overrides DefaultBaseURL. No trailing slash.
	BaseURL string

	// APIKey overrides DefaultAPIKey.
	APIKey string

	// Timeout bounds each request when the caller's context carries no
	// deadline. Defaults to DefaultTimeout.
	Timeout time.Duration

	// HTTPClient overrides the transport. Defaults to http.DefaultClient;
	// per-request deadlines come from contexts, not the client.
	HTTPClient *http.Client

	// Logger receives debug/warn records. Nil discards.
	Logger *slog.Logger
}

// Session owns credentials and signs every outbound call. It is stateless
// toward callers apart from the memoized authenticated-user id and the lazy
// push-channel connection.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Session struct {
	tokens  TokenProvider
	baseURL string
	apiKey  string
	timeout time.Duration
	http    *http.Client
	log     *slog.Logger

	// userMu guards userID and is held across the first fetch so concurrent
	// first callers observe a single underlying request.
	userMu sync.Mutex
	userID string

	// pushMu guards the push connection and the subscription registry.
	pushMu      sync.Mutex
	push        pushConn
	pushDone    chan struct{}
	pushHandler push.MessageHandler
	subs        map[subscriptionKey][]PushCallback
}

// NewSession validates cfg, applies defaults, and returns a ready Session.
// No network I/O happens here; call Authenticate (or just start issuing
// requests) to exercise the credentials.
func NewSession(cfg Config) (*Session, error) {
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("%w: config requires a token provider", Err)
	}
	s := &Session{
		tokens:  cfg.Tokens,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		timeout: cfg.Timeout,
		http:    cfg.HTTPClient,
		log:     cfg.Logger,
		subs:    make(map[subscriptionKey][]PushCallback),
	}
	if s.baseURL == "" {
		s.baseURL = DefaultBaseURL
	}
	if s.apiKey == "" {
		s.apiKey = DefaultAPIKey
	}
	if s.timeout <= 0 {
		s.timeout = DefaultTimeout
	}
	if s.http == nil {
		s.http = http.DefaultClient
	}
	if s.log == nil {
		s.log = slog.New(slog.DiscardHandler)
	}
	return s, nil
}

// Authenticate performs the identity-provider handshake. Invalid credentials
// surface as ErrNotAuthorized, anything else as ErrUnknown.
func (s *Session) Authenticate(ctx context.Context) error {
	return s.translateAuthErr(s.tokens.Authenticate(ctx))
}

// UserID returns the authenticated user's stable identifier, fetched once
// via users/@me and memoized for the Session's lifetime.
func (s *Session) UserID(ctx context.Context) (string, error) {
	s.userMu.Lock()
	defer s.userMu.Unlock()
	if s.userID != "" {
		return s.userID, nil
	}
	data, err := s.Request(ctx, http.MethodGet, "users/@me", nil, nil)
	if err != nil {
		return "", err
	}
	var parsed struct {
		IdentityID *string `json:"identityId" validate:"required"`
	}
	if err := decodeStrict(data, &parsed); err != nil {
		return "", err
	}
	s.userID = *parsed.IdentityID
	return s.userID, nil
}

// Request performs a signed request against the service and returns the
// response body. body, when non-nil, is JSON-encoded. Every transport or
// server failure emerges as one of the package's typed errors; nothing
// below this layer leaks through.
func (s *Session) Request(ctx context.Context, method, path string, body any, query url.Values) ([]byte, error) {
	return s.request(ctx, method, path, body, query, nil)
}

func (s *Session) request(ctx context.Context, method, path string, body any, query url.Values, extra http.Header) ([]byte, error) {
	token, err := s.tokens.AccessToken(ctx)
	if err != nil {
		return nil, s.translateAuthErr(err)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%w: encoding request body: %v", ErrUnknown, err)
		}
		reader = bytes.NewReader(data)
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	u := s.baseURL + "/" + strings.TrimPrefix(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %v", ErrUnknown, err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Api-Key", s.apiKey)
	req.Header.Set("X-Request-Id", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, values := range extra {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	s.log.Debug("request", "method", method, "path", path, "request_id", requestID)

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknown, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrUnknown, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: serverMessage(data, resp.Status)}
		s.log.Debug("request failed",
			"method", method,
			"path", path,
			"status", resp.StatusCode,
			"request_id", requestID,
		)
		return nil, apiErr
	}
	return data, nil
}

// translateAuthErr funnels token-provider failures into the package
// taxonomy. Errors already in the taxonomy pass through unchanged.
func (s *Session) translateAuthErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, Err):
		return err
	case errors.Is(err, idp.ErrInvalidCredentials):
		return fmt.Errorf("%w: %w", ErrNotAuthorized, err)
	default:
		return fmt.Errorf("%w: %w", ErrUnknown, err)
	}
}

// serverMessage extracts the server-provided error message from a response
// body, falling back to the HTTP reason phrase.
func serverMessage(body []byte, status string) string {
	var parsed struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Message != "" {
		return parsed.Message
	}
	if _, reason, found := strings.Cut(status, " "); found && reason != "" {
		return reason
	}
	return status
}
