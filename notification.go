package latchlink

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Notification definition identifiers published by the service.
const (
	NotificationOnAlarm        = "onalarmstate"
	NotificationOnBatteryLow   = "onbatterylowstate"
	NotificationOnLocked       = "onstatelocked"
	NotificationOnUnlocked     = "onstateunlocked"
	NotificationOffline24Hours = "offline24hours"
	NotificationOnUnlockAction = "onunlockstateaction"

	notificationTypeUnknown = "__unknown__"
)

// Notification is a push-notification preference record. For the
// "notify when this code is used" class the identifier is derived, not
// server-assigned: "{userID}_{accessCodeID}". AccessCode.Save and Delete
// keep that pairing consistent; most callers never touch Notifications
// directly.
//
// Thread Safety:
//   - Merge-producing calls (Save) are mutually exclusive per instance.
//     Concurrent mutating calls on one instance are the caller's race.
type Notification struct {
	// NotificationID identifies the record. Derived for access-code
	// notifications, server-assigned otherwise.
	NotificationID string

	// UserID is the account the notification belongs to.
	UserID string

	// DeviceID is the device the notification watches.
	DeviceID string

	// DeviceType is the watched device's type discriminator.
	DeviceType string

	// NotificationType is one of the Notification* definition identifiers.
	NotificationType string

	// Active reports whether the notification fires.
	Active bool

	// FilterValue narrows the trigger, e.g. an access code's name.
	FilterValue string

	// CreatedAt is set once the server has persisted the record. A nil
	// CreatedAt means the record is local-only and Save will create it.
	CreatedAt *time.Time

	// UpdatedAt is the server's last-modified timestamp.
	UpdatedAt *time.Time

	mu   sync.Mutex
	sess *Session
	raw  json.RawMessage
}

type notificationJSON struct {
	NotificationID           *string `json:"notificationId" validate:"required"`
	UserID                   string  `json:"userId"`
	DeviceID                 string  `json:"deviceId"`
	NotificationDefinitionID string  `json:"notificationDefinitionId"`
	Active                   bool    `json:"active"`
	FilterValue              string  `json:"filterValue"`
	CreatedAt                *string `json:"createdAt" validate:"required"`
	UpdatedAt                *string `json:"updatedAt" validate:"required"`
}

func decodeNotification(sess *Session, data []byte) (*Notification, error) {
	var w notificationJSON
	if err := decodeStrict(data, &w); err != nil {
		return nil, err
	}
	createdAt, err := parseTime(*w.CreatedAt)
	if err != nil {
		return nil, err
	}
	updatedAt, err := parseTime(*w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	notificationType := w.NotificationDefinitionID
	if notificationType == "" {
		notificationType = notificationTypeUnknown
	}
	return &Notification{
		NotificationID:   *w.NotificationID,
		UserID:           w.UserID,
		DeviceID:         w.DeviceID,
		NotificationType: notificationType,
		Active:           w.Active,
		FilterValue:      w.FilterValue,
		CreatedAt:        &createdAt,
		UpdatedAt:        &updatedAt,
		sess:             sess,
		raw:              json.RawMessage(data),
	}, nil
}

// mergeFrom decodes data into a fresh instance and copies its fields onto n
// under the instance lock, preserving n's identity for other holders.
func (n *Notification) mergeFrom(data []byte) error {
	fresh, err := decodeNotification(n.sess, data)
	if err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.NotificationID = fresh.NotificationID
	n.UserID = fresh.UserID
	n.DeviceID = fresh.DeviceID
	n.NotificationType = fresh.NotificationType
	n.Active = fresh.Active
	n.FilterValue = fresh.FilterValue
	n.CreatedAt = fresh.CreatedAt
	n.UpdatedAt = fresh.UpdatedAt
	n.raw = fresh.raw
	return nil
}

func (n *Notification) session() (*Session, error) {
	if n.sess == nil {
		return nil, ErrNotAuthenticated
	}
	return n.sess, nil
}

func (n *Notification) wireJSON() map[string]any {
	w := map[string]any{
		"notificationId":           n.NotificationID,
		"userId":                   n.UserID,
		"deviceId":                 n.DeviceID,
		"devicetypeId":             n.DeviceType,
		"notificationDefinitionId": n.NotificationType,
		"active":                   n.Active,
	}
	if n.FilterValue != "" {
		w["filterValue"] = n.FilterValue
	}
	return w
}

func (n *Notification) path() string {
	if n.NotificationID == "" {
		return "notifications"
	}
	return "notifications/" + n.NotificationID
}

// Save persists the notification: a create when the server has never seen
// it (nil CreatedAt), an update otherwise. The server's response is merged
// back in.
func (n *Notification) Save(ctx context.Context) error {
	s, err := n.session()
	if err != nil {
		return err
	}
	method := http.MethodPost
	if n.CreatedAt != nil {
		method = http.MethodPut
	}
	data, err := s.Request(ctx, method, n.path(), n.wireJSON(), nil)
	if err != nil {
		return err
	}
	return n.mergeFrom(data)
}

// Delete removes the notification and detaches the instance; further
// mutating calls fail with ErrNotAuthenticated.
func (n *Notification) Delete(ctx context.Context) error {
	s, err := n.session()
	if err != nil {
		return err
	}
	if _, err := s.Request(ctx, http.MethodDelete, n.path(), nil, nil); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sess = nil
	n.raw = nil
	n.NotificationID = ""
	n.Active = false
	return nil
}
