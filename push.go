package latchlink

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/nerrad567/latchlink/internal/push"
)

// SubscriptionKind selects which device topic a subscription receives.
type SubscriptionKind string

// Subscription kinds published by the service.
const (
	SubscriptionReported SubscriptionKind = push.KindReported
	SubscriptionDesired  SubscriptionKind = push.KindDesired
	SubscriptionDelta    SubscriptionKind = push.KindDelta
)

// PushCallback receives inbound push messages. Callbacks run on the
// Session's dispatch goroutine, decoupled from the transport's receive
// loop; they should still return promptly so later messages are not
// delayed behind them.
type PushCallback func(kind SubscriptionKind, payload json.RawMessage)

// subscriptionKey identifies one fan-out target on the push channel.
type subscriptionKey struct {
	deviceID string
	kind     SubscriptionKind
}

type pushMessage struct {
	key     subscriptionKey
	payload []byte
}

// pushQueueSize bounds the hand-off between the transport's receive loop
// and the dispatch goroutine. Messages beyond it are dropped with a warning
// rather than stalling receipt of unrelated topics.
const pushQueueSize = 64

// pushConn is the slice of push.Conn the Session uses.
type pushConn interface {
	Subscribe(topic string, handler push.MessageHandler) error
	Close() error
}

// Subscribe registers callback for push updates about deviceID. The first
// subscription lazily establishes the Session's single push connection,
// which requires a fresh authentication handshake. Delivery order relative
// to REST responses is not guaranteed.
func (s *Session) Subscribe(ctx context.Context, deviceID string, callback PushCallback, kind SubscriptionKind) error {
	if callback == nil {
		return fmt.Errorf("%w: callback cannot be nil", Err)
	}
	if !push.ValidKind(string(kind)) {
		return fmt.Errorf("%w: invalid subscription kind %q", Err, kind)
	}

	s.pushMu.Lock()
	defer s.pushMu.Unlock()

	if s.push == nil {
		conn, err := s.dialPush(ctx, deviceID)
		if err != nil {
			return err
		}
		queue := make(chan pushMessage, pushQueueSize)
		done := make(chan struct{})
		s.push = conn
		s.pushDone = done
		go s.dispatchLoop(queue, done)
		s.pushHandler = s.makeReceiveHandler(queue, done)
	}

	key := subscriptionKey{deviceID: deviceID, kind: kind}
	first := len(s.subs[key]) == 0
	s.subs[key] = append(s.subs[key], callback)
	if first {
		topic := push.DeviceTopic(deviceID, string(kind))
		if err := s.push.Subscribe(topic, s.pushHandler); err != nil {
			s.subs[key] = s.subs[key][:len(s.subs[key])-1]
			if len(s.subs[key]) == 0 {
				delete(s.subs, key)
			}
			return fmt.Errorf("%w: %w", ErrUnknown, err)
		}
	}
	return nil
}

// Close tears down the push channel, if one was established. REST usage
// does not require Close.
func (s *Session) Close() error {
	s.pushMu.Lock()
	defer s.pushMu.Unlock()
	if s.push != nil {
		_ = s.push.Close()
		s.push = nil
	}
	if s.pushDone != nil {
		close(s.pushDone)
		s.pushDone = nil
	}
	s.subs = make(map[subscriptionKey][]PushCallback)
	return nil
}

// dialPush re-authenticates (the signed WebSocket parameters require fresh
// tokens), fetches connection parameters scoped to deviceID, and dials them.
func (s *Session) dialPush(ctx context.Context, deviceID string) (pushConn, error) {
	if err := s.translateAuthErr(s.tokens.Authenticate(ctx)); err != nil {
		return nil, err
	}
	idToken, err := s.tokens.IdentityToken(ctx)
	if err != nil {
		return nil, s.translateAuthErr(err)
	}

	query := url.Values{"deviceId": []string{deviceID}}
	header := http.Header{"X-Web-Identity-Token": []string{idToken}}
	data, err := s.request(ctx, http.MethodGet, "wss", nil, query, header)
	if err != nil {
		return nil, err
	}
	var conf struct {
		WSSURI   *string `json:"wssUri" validate:"required"`
		ClientID string  `json:"clientId"`
	}
	if err := decodeStrict(data, &conf); err != nil {
		return nil, err
	}
	clientID := conf.ClientID
	if clientID == "" {
		clientID = "latchlink-" + uuid.NewString()
	}

	conn, err := push.Dial(push.Config{URI: *conf.WSSURI, ClientID: clientID}, func(err error) {
		s.log.Warn("push connection lost", "error", err)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnknown, err)
	}
	return conn, nil
}

// makeReceiveHandler builds the transport-side handler. It runs on the
// receive goroutine: empty payloads are dropped per the service contract,
// everything else is handed to the dispatch goroutine through the bounded
// queue.
func (s *Session) makeReceiveHandler(queue chan<- pushMessage, done <-chan struct{}) push.MessageHandler {
	return func(topic string, payload []byte) {
		if len(payload) == 0 {
			return
		}
		deviceID, kind, ok := push.ParseDeviceTopic(topic)
		if !ok {
			return
		}
		msg := pushMessage{
			key:     subscriptionKey{deviceID: deviceID, kind: SubscriptionKind(kind)},
			payload: payload,
		}
		select {
		case <-done:
		case queue <- msg:
		default:
			s.log.Warn("push queue full, dropping message", "topic", topic)
		}
	}
}

// dispatchLoop fans messages out to the registered callbacks. It snapshots
// the callback list under the lock and invokes outside it, so a slow
// callback cannot block Subscribe.
func (s *Session) dispatchLoop(queue <-chan pushMessage, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case msg := <-queue:
			s.pushMu.Lock()
			callbacks := append([]PushCallback(nil), s.subs[msg.key]...)
			s.pushMu.Unlock()
			for _, cb := range callbacks {
				cb(msg.key.kind, msg.payload)
			}
		}
	}
}
