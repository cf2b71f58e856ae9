package latchlink

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"
)

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

// testLockJSON returns a complete lock payload as a mutable map so tests
// can tweak individual keys.
func testLockJSON() map[string]any {
	return map[string]any{
		"deviceId":     "device-1",
		"name":         "Front Door",
		"modelName":    "BE489WB CEN 619",
		"devicetypeId": "be489wb2",
		"CAT":          "01234",
		"connected":    true,
		"users": []map[string]any{
			{"friendlyName": "Alice", "email": "alice@example.com", "identityId": "user-1"},
		},
		"attributes": map[string]any{
			"batteryLevel":        95,
			"lockState":           1,
			"beeperEnabled":       1,
			"lockAndLeaveEnabled": 1,
			"autoLockTime":        0,
			"mainFirmwareVersion": "10.00.00264232",
			"macAddress":          "AA:BB:CC:DD:EE:FF",
		},
	}
}

func TestDecodeLock(t *testing.T) {
	l, err := decodeLock(nil, mustJSON(t, testLockJSON()))
	if err != nil {
		t.Fatalf("decodeLock() error = %v", err)
	}
	if l.DeviceID != "device-1" || l.Name != "Front Door" {
		t.Errorf("identity = %q/%q, want device-1/Front Door", l.DeviceID, l.Name)
	}
	if l.IsLocked == nil || !*l.IsLocked {
		t.Errorf("IsLocked = %v, want true", l.IsLocked)
	}
	if l.IsJammed == nil || *l.IsJammed {
		t.Errorf("IsJammed = %v, want false", l.IsJammed)
	}
	if l.BatteryLevel == nil || *l.BatteryLevel != 95 {
		t.Errorf("BatteryLevel = %v, want 95", l.BatteryLevel)
	}
	if !l.BeeperEnabled || !l.LockAndLeaveEnabled {
		t.Error("feature flags not decoded")
	}
	if l.ble {
		t.Error("be489 device type classified as BLE")
	}
	if u, ok := l.Users["user-1"]; !ok || u.Name != "Alice" {
		t.Errorf("Users = %v, want user-1 -> Alice", l.Users)
	}
}

func TestDecodeLockJammed(t *testing.T) {
	payload := testLockJSON()
	payload["attributes"].(map[string]any)["lockState"] = 2
	l, err := decodeLock(nil, mustJSON(t, payload))
	if err != nil {
		t.Fatalf("decodeLock() error = %v", err)
	}
	if l.IsLocked == nil || *l.IsLocked {
		t.Errorf("IsLocked = %v, want false", l.IsLocked)
	}
	if l.IsJammed == nil || !*l.IsJammed {
		t.Errorf("IsJammed = %v, want true", l.IsJammed)
	}
}

func TestDecodeLockUnavailable(t *testing.T) {
	payload := testLockJSON()
	attrs := payload["attributes"].(map[string]any)
	delete(attrs, "lockState")
	l, err := decodeLock(nil, mustJSON(t, payload))
	if err != nil {
		t.Fatalf("decodeLock() error = %v", err)
	}
	// An unreachable device nulls the whole state block together, even
	// when battery and firmware keys are present.
	if l.IsLocked != nil || l.IsJammed != nil {
		t.Errorf("lock state = %v/%v, want nil/nil", l.IsLocked, l.IsJammed)
	}
	if l.BatteryLevel != nil {
		t.Errorf("BatteryLevel = %v, want nil", l.BatteryLevel)
	}
	if l.FirmwareVersion != nil {
		t.Errorf("FirmwareVersion = %v, want nil", l.FirmwareVersion)
	}
}

func TestDecodeLockMissingRequired(t *testing.T) {
	payload := testLockJSON()
	delete(payload, "deviceId")
	if _, err := decodeLock(nil, mustJSON(t, payload)); !errors.Is(err, ErrUnknown) {
		t.Fatalf("decodeLock() error = %v, want ErrUnknown", err)
	}
}

func TestLockWiFiToggle(t *testing.T) {
	var putBody map[string]map[string]int
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /devices/device-1", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&putBody); err != nil {
			t.Errorf("decoding PUT body: %v", err)
		}
		payload := testLockJSON()
		payload["attributes"].(map[string]any)["lockState"] = 0
		w.Write(mustJSON(t, payload))
	})
	s := newTestSession(t, mux)

	l, err := decodeLock(s, mustJSON(t, testLockJSON()))
	if err != nil {
		t.Fatalf("decodeLock() error = %v", err)
	}
	if err := l.Unlock(context.Background()); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	if putBody["attributes"]["lockState"] != 0 {
		t.Errorf("PUT body = %v, want attributes.lockState=0", putBody)
	}
	// Server-confirmed state is merged back in place.
	if l.IsLocked == nil || *l.IsLocked {
		t.Errorf("IsLocked = %v, want false after merge", l.IsLocked)
	}
}

func TestLockBLECommand(t *testing.T) {
	var commandBody map[string]any
	var deviceGets int
	mux := http.NewServeMux()
	mux.HandleFunc("GET /users/@me", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"identityId": "user-1"})
	})
	mux.HandleFunc("POST /devices/device-1/commands", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&commandBody); err != nil {
			t.Errorf("decoding command body: %v", err)
		}
		w.Write([]byte(`{}`))
	})
	mux.HandleFunc("GET /devices/device-1", func(w http.ResponseWriter, r *http.Request) {
		deviceGets++
		w.Write(mustJSON(t, testLockJSON()))
	})
	s := newTestSession(t, mux)

	payload := testLockJSON()
	payload["devicetypeId"] = "be479aa1"
	payload["attributes"].(map[string]any)["lockState"] = 0
	l, err := decodeLock(s, mustJSON(t, payload))
	if err != nil {
		t.Fatalf("decodeLock() error = %v", err)
	}
	if !l.ble {
		t.Fatal("be479 device type not classified as BLE")
	}

	if err := l.Lock(context.Background()); err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	want := map[string]any{
		"name": "changelockstate",
		"data": map[string]any{
			"CAT":      "01234",
			"deviceId": "device-1",
			"state":    float64(1),
			"userId":   "user-1",
		},
	}
	if got := mustJSON(t, commandBody); string(got) != string(mustJSON(t, want)) {
		t.Errorf("command body = %s, want %s", got, mustJSON(t, want))
	}
	// Optimistic local update, no follow-up GET.
	if l.IsLocked == nil || !*l.IsLocked {
		t.Errorf("IsLocked = %v, want true", l.IsLocked)
	}
	if l.IsJammed == nil || *l.IsJammed {
		t.Errorf("IsJammed = %v, want false", l.IsJammed)
	}
	if deviceGets != 0 {
		t.Errorf("device fetched %d times after BLE command, want 0", deviceGets)
	}
}

func TestSetAutoLockTimeInvalid(t *testing.T) {
	s := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
	}))
	l, err := decodeLock(s, mustJSON(t, testLockJSON()))
	if err != nil {
		t.Fatalf("decodeLock() error = %v", err)
	}
	if err := l.SetAutoLockTime(context.Background(), 42); !errors.Is(err, Err) {
		t.Fatalf("SetAutoLockTime(42) error = %v, want validation failure", err)
	}
}

func TestLockDetached(t *testing.T) {
	l, err := decodeLock(nil, mustJSON(t, testLockJSON()))
	if err != nil {
		t.Fatalf("decodeLock() error = %v", err)
	}
	if err := l.Lock(context.Background()); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("Lock() on detached entity error = %v, want ErrNotAuthenticated", err)
	}
	if err := l.Refresh(context.Background()); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("Refresh() on detached entity error = %v, want ErrNotAuthenticated", err)
	}
}

func TestLastChangedBy(t *testing.T) {
	base, err := decodeLock(nil, mustJSON(t, testLockJSON()))
	if err != nil {
		t.Fatalf("decodeLock() error = %v", err)
	}
	tests := []struct {
		name string
		meta *LockStateMetadata
		want string
	}{
		{"no metadata", nil, ""},
		{"thumbturn", &LockStateMetadata{ActionType: "thumbTurn"}, "thumbturn"},
		{"one touch", &LockStateMetadata{ActionType: "1touchLocking"}, "1-touch locking"},
		{"keypad", &LockStateMetadata{ActionType: "accesscode", Name: "Guests"}, "keypad - Guests"},
		{"apple known user", &LockStateMetadata{ActionType: "AppleHomeNFC", UUID: "user-1"}, "apple nfc device - Alice"},
		{"mobile known user", &LockStateMetadata{ActionType: "virtualKey", UUID: "user-1"}, "mobile device - Alice"},
		{"mobile unknown user", &LockStateMetadata{ActionType: "virtualKey", UUID: "nobody"}, "mobile device"},
		{"unrecognized action", &LockStateMetadata{ActionType: "teleport"}, "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base.StateMetadata = tt.meta
			if got := base.LastChangedBy(); got != tt.want {
				t.Errorf("LastChangedBy() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestKeypadDisabled(t *testing.T) {
	l, err := decodeLock(nil, mustJSON(t, testLockJSON()))
	if err != nil {
		t.Fatalf("decodeLock() error = %v", err)
	}
	t0 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	got, err := l.KeypadDisabled(context.Background(), []LockLog{})
	if err != nil {
		t.Fatalf("KeypadDisabled() error = %v", err)
	}
	if got {
		t.Error("KeypadDisabled(empty) = true, want false")
	}

	// Unsorted input: the disabling event is chronologically newest but
	// listed first.
	logs := []LockLog{
		{CreatedAt: t0.Add(2 * time.Hour), Message: keypadDisabledMessage},
		{CreatedAt: t0, Message: "Locked by keypad"},
		{CreatedAt: t0.Add(time.Hour), Message: "Unlocked by keypad"},
	}
	got, err = l.KeypadDisabled(context.Background(), logs)
	if err != nil {
		t.Fatalf("KeypadDisabled() error = %v", err)
	}
	if !got {
		t.Error("KeypadDisabled() = false, want true when disabling event is newest")
	}

	// Disabling event superseded by a later entry.
	logs = append(logs, LockLog{CreatedAt: t0.Add(3 * time.Hour), Message: "Unlocked by keypad"})
	got, err = l.KeypadDisabled(context.Background(), logs)
	if err != nil {
		t.Fatalf("KeypadDisabled() error = %v", err)
	}
	if got {
		t.Error("KeypadDisabled() = true, want false when a later event follows")
	}
}

func TestLockRefreshIdempotent(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /devices/device-1", func(w http.ResponseWriter, r *http.Request) {
		w.Write(mustJSON(t, testLockJSON()))
	})
	s := newTestSession(t, mux)
	l, err := decodeLock(s, mustJSON(t, testLockJSON()))
	if err != nil {
		t.Fatalf("decodeLock() error = %v", err)
	}

	if err := l.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	first := mustJSON(t, l)
	if err := l.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if second := mustJSON(t, l); string(first) != string(second) {
		t.Errorf("repeated refresh changed fields:\n%s\n%s", first, second)
	}
}

func TestLockLogs(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /devices/device-1/logs", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("limit"); got != "10" {
			t.Errorf("limit = %q, want 10", got)
		}
		if got := r.URL.Query().Get("sort"); got != "desc" {
			t.Errorf("sort = %q, want desc", got)
		}
		w.Write([]byte(`[{
			"createdAt": "2024-05-01T12:00:00.000Z",
			"deviceId": "device-1",
			"logId": "log-1",
			"message": {"secondsSinceEpoch": 1714564800, "keypadUuid": "", "accessorUuid": "", "eventCode": 1}
		}]`))
	})
	s := newTestSession(t, mux)
	l, err := decodeLock(s, mustJSON(t, testLockJSON()))
	if err != nil {
		t.Fatalf("decodeLock() error = %v", err)
	}

	logs, err := l.Logs(context.Background(), 10, true)
	if err != nil {
		t.Fatalf("Logs() error = %v", err)
	}
	if len(logs) != 1 || logs[0].Message != "Locked by keypad" {
		t.Errorf("Logs() = %+v, want one keypad entry", logs)
	}
}
