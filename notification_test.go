package latchlink

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

func testNotificationJSON() map[string]any {
	return map[string]any{
		"notificationId":           "user-1_code-1",
		"userId":                   "user-1",
		"deviceId":                 "device-1",
		"notificationDefinitionId": NotificationOnUnlockAction,
		"active":                   true,
		"filterValue":              "Guests",
		"createdAt":                "2024-05-01T12:00:00.000Z",
		"updatedAt":                "2024-05-02T08:30:00.000Z",
	}
}

func TestDecodeNotification(t *testing.T) {
	n, err := decodeNotification(nil, mustJSON(t, testNotificationJSON()))
	if err != nil {
		t.Fatalf("decodeNotification() error = %v", err)
	}
	if n.NotificationID != "user-1_code-1" || n.UserID != "user-1" {
		t.Errorf("identity = %q/%q, want derived id and user", n.NotificationID, n.UserID)
	}
	if n.NotificationType != NotificationOnUnlockAction {
		t.Errorf("NotificationType = %q, want %q", n.NotificationType, NotificationOnUnlockAction)
	}
	if !n.Active || n.FilterValue != "Guests" {
		t.Errorf("Active/FilterValue = %t/%q, want true/Guests", n.Active, n.FilterValue)
	}
	wantCreated := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	if n.CreatedAt == nil || !n.CreatedAt.Equal(wantCreated) {
		t.Errorf("CreatedAt = %v, want %v", n.CreatedAt, wantCreated)
	}
}

func TestDecodeNotificationUnknownType(t *testing.T) {
	payload := testNotificationJSON()
	payload["notificationDefinitionId"] = ""
	n, err := decodeNotification(nil, mustJSON(t, payload))
	if err != nil {
		t.Fatalf("decodeNotification() error = %v", err)
	}
	if n.NotificationType != notificationTypeUnknown {
		t.Errorf("NotificationType = %q, want unknown sentinel", n.NotificationType)
	}
}

func TestNotificationSaveNewUsesPost(t *testing.T) {
	var method string
	mux := http.NewServeMux()
	mux.HandleFunc("/notifications/user-1_code-1", func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		w.Write(mustJSON(t, testNotificationJSON()))
	})
	s := newTestSession(t, mux)

	n := &Notification{
		NotificationID:   "user-1_code-1",
		UserID:           "user-1",
		DeviceID:         "device-1",
		NotificationType: NotificationOnUnlockAction,
		Active:           true,
		sess:             s,
	}
	if err := n.Save(context.Background()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if method != http.MethodPost {
		t.Errorf("method = %q, want POST for a never-persisted record", method)
	}
	// Server response merged in place.
	if n.CreatedAt == nil {
		t.Error("CreatedAt not merged from server response")
	}
}

func TestNotificationSaveExistingUsesPut(t *testing.T) {
	var method string
	mux := http.NewServeMux()
	mux.HandleFunc("/notifications/user-1_code-1", func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		w.Write(mustJSON(t, testNotificationJSON()))
	})
	s := newTestSession(t, mux)

	n, err := decodeNotification(s, mustJSON(t, testNotificationJSON()))
	if err != nil {
		t.Fatalf("decodeNotification() error = %v", err)
	}
	n.Active = false
	if err := n.Save(context.Background()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if method != http.MethodPut {
		t.Errorf("method = %q, want PUT for a persisted record", method)
	}
}

func TestNotificationWireJSONOmitsEmptyFilter(t *testing.T) {
	n := &Notification{NotificationID: "id", NotificationType: NotificationOnLocked}
	w := n.wireJSON()
	if _, present := w["filterValue"]; present {
		t.Error("filterValue emitted when empty")
	}
	n.FilterValue = "Guests"
	if w = n.wireJSON(); w["filterValue"] != "Guests" {
		t.Errorf("filterValue = %v, want Guests", w["filterValue"])
	}
}

func TestNotificationDeleteDetaches(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("DELETE /notifications/user-1_code-1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})
	s := newTestSession(t, mux)

	n, err := decodeNotification(s, mustJSON(t, testNotificationJSON()))
	if err != nil {
		t.Fatalf("decodeNotification() error = %v", err)
	}
	if err := n.Delete(context.Background()); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if n.NotificationID != "" || n.Active {
		t.Errorf("post-delete state = %q/%t, want cleared", n.NotificationID, n.Active)
	}
	if err := n.Save(context.Background()); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("Save() after Delete() error = %v, want ErrNotAuthenticated", err)
	}
}

func TestNotificationMergePreservesIdentity(t *testing.T) {
	n, err := decodeNotification(nil, mustJSON(t, testNotificationJSON()))
	if err != nil {
		t.Fatalf("decodeNotification() error = %v", err)
	}
	ref := n
	payload := testNotificationJSON()
	payload["active"] = false
	payload["filterValue"] = "Renamed"
	if err := n.mergeFrom(mustJSON(t, payload)); err != nil {
		t.Fatalf("mergeFrom() error = %v", err)
	}
	if ref.Active || ref.FilterValue != "Renamed" {
		t.Errorf("existing reference sees %t/%q, want merged state", ref.Active, ref.FilterValue)
	}
}
