package latchlink

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// Client is the top-level entry point: a thin facade over a Session that
// lists the account's devices and users. Entities it returns share the
// underlying Session.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	sess *Session
}

// NewClient builds a Client from cfg. See NewSession for defaulting rules.
func NewClient(cfg Config) (*Client, error) {
	sess, err := NewSession(cfg)
	if err != nil {
		return nil, err
	}
	return &Client{sess: sess}, nil
}

// Session exposes the underlying Session for push subscriptions and raw
// requests.
func (c *Client) Session() *Session {
	return c.sess
}

// Authenticate exercises the credentials eagerly. Requests authenticate
// lazily, so calling this is optional but surfaces bad credentials early.
func (c *Client) Authenticate(ctx context.Context) error {
	return c.sess.Authenticate(ctx)
}

// Locks lists every lock on the account.
func (c *Client) Locks(ctx context.Context) ([]*Lock, error) {
	query := url.Values{"archetype": []string{"lock"}}
	data, err := c.sess.Request(ctx, http.MethodGet, "devices", nil, query)
	if err != nil {
		return nil, err
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("%w: decoding device list: %v", ErrUnknown, err)
	}
	locks := make([]*Lock, 0, len(raws))
	for _, r := range raws {
		l, err := decodeLock(c.sess, r)
		if err != nil {
			return nil, err
		}
		locks = append(locks, l)
	}
	return locks, nil
}

// Lock fetches a single lock by device id.
func (c *Client) Lock(ctx context.Context, deviceID string) (*Lock, error) {
	data, err := c.sess.Request(ctx, http.MethodGet, "devices/"+deviceID, nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeLock(c.sess, data)
}

// Users lists the accounts known to this user, e.g. guests with shared
// access.
func (c *Client) Users(ctx context.Context) ([]User, error) {
	data, err := c.sess.Request(ctx, http.MethodGet, "users", nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeUsers(data)
}

// Close tears down the Session's push channel, if one was established.
func (c *Client) Close() error {
	return c.sess.Close()
}
