package push

import (
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for the initial
	// connection.
	defaultConnectTimeout = 10 * time.Second

	// defaultSubscribeTimeout is the maximum time to wait for a subscribe
	// acknowledgment.
	defaultSubscribeTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time in milliseconds to wait for
	// pending operations on disconnect.
	defaultDisconnectQuiesce = 1000

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// subscribeQoS is the QoS level for all subscriptions. The channel is
	// advisory (state is re-fetched over REST), so at-most-once is enough.
	subscribeQoS = 0

	// tlsMinVersion is the minimum TLS version for the WebSocket transport.
	tlsMinVersion = tls.VersionTLS12
)

// Config holds the server-issued connection parameters.
type Config struct {
	// URI is the pre-signed wss:// endpoint returned by the cloud. The
	// signature embedded in its query string expires within minutes, so a
	// Config must be dialed promptly and cannot be reused.
	URI string

	// ClientID is the connection identity assigned by the cloud.
	ClientID string
}

// MessageHandler is the callback signature for received messages.
//
// Handlers are invoked on the transport's receive goroutine and must not
// block for extended periods.
type MessageHandler func(topic string, payload []byte)

// Conn is a live connection to the push broker.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Conn struct {
	client pahomqtt.Client

	mu     sync.Mutex
	closed bool
}

// Dial connects to the broker described by cfg.
//
// The connection does not auto-reconnect: the signed endpoint is single-use,
// so recovery requires a fresh Config from the cloud. onDown, if non-nil, is
// invoked once when the connection is lost.
func Dial(cfg Config, onDown func(err error)) (*Conn, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("%w: empty endpoint URI", ErrConnectionFailed)
	}

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.URI)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)
	opts.SetTLSConfig(&tls.Config{MinVersion: tlsMinVersion})
	if onDown != nil {
		opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			onDown(err)
		})
	}

	c := &Conn{client: pahomqtt.NewClient(opts)}
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	return c, nil
}

// Subscribe registers a handler for messages on the given topic. The handler
// is wrapped with panic recovery so a misbehaving callback cannot take down
// the receive loop.
func (c *Conn) Subscribe(topic string, handler MessageHandler) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Subscribe(topic, subscribeQoS, wrapHandler(handler))
	if !token.WaitTimeout(defaultSubscribeTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, defaultSubscribeTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	return nil
}

// IsConnected reports whether the connection is live.
func (c *Conn) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && c.client.IsConnected()
}

// Close disconnects from the broker. Closing an already-closed connection
// is a no-op.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.client.Disconnect(defaultDisconnectQuiesce)
	return nil
}

// wrapHandler adapts a MessageHandler to paho's callback type with panic
// recovery.
func wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			_ = recover()
		}()
		handler(msg.Topic(), msg.Payload())
	}
}
