package latchlink

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
)

// bleDevicePrefixes identify device types whose locks have no direct WiFi
// uplink. Mutations on them go through the asynchronous command queue
// instead of attribute patches.
var bleDevicePrefixes = []string{"be479", "be480"}

// autoLockTimes is the validation set for SetAutoLockTime, in seconds.
// Zero disables auto-lock.
const autoLockTimes = "oneof=0 5 15 30 60 120 240 300"

// LockStateMetadata describes the actor behind the lock's most recent state
// change.
type LockStateMetadata struct {
	// ActionType is the raw actor classification from the service.
	ActionType string

	// UUID identifies the actor when the service knows one.
	UUID string

	// Name is a human label, e.g. the access code's name for keypad actions.
	Name string
}

// Lock is the root aggregate: a mirror of one lock's server state plus its
// dependent access codes. Instances come from Client.Locks or Client.Lock
// and stay valid across refreshes; merges happen in place so long-lived
// references observe updates.
//
// Nullable fields are pointers. A payload whose attributes omit lockState
// describes an unreachable device: IsLocked, IsJammed, BatteryLevel and
// FirmwareVersion are all nil together in that case.
//
// Thread Safety:
//   - Merge-producing calls are mutually exclusive per instance; the lock
//     is never held across network I/O. A refresh racing a caller's own
//     concurrent mutation can still lose an update; single writer per
//     instance is the caller contract.
type Lock struct {
	// DeviceID is the stable device identifier.
	DeviceID string

	// Name is the user-assigned display name.
	Name string

	// ModelName is the marketing model name.
	ModelName string

	// DeviceType is the type discriminator; its prefix selects the command
	// path for every mutation.
	DeviceType string

	// Connected reports whether the device currently has an uplink.
	Connected bool

	// BatteryLevel is a percentage, nil when the device has never reported.
	BatteryLevel *int

	// IsLocked and IsJammed are nil together when the device state is
	// unavailable.
	IsLocked *bool
	IsJammed *bool

	// BeeperEnabled reports whether keypad presses beep.
	BeeperEnabled bool

	// LockAndLeaveEnabled reports whether one-touch locking is enabled.
	LockAndLeaveEnabled bool

	// AutoLockTime is the auto-relock delay in seconds, zero when disabled.
	AutoLockTime int

	// FirmwareVersion is nil when the device state is unavailable.
	FirmwareVersion *string

	// MACAddress is the device's hardware address when reported.
	MACAddress *string

	// StateMetadata describes the last state-change actor, when known.
	StateMetadata *LockStateMetadata

	// Users maps user id to the account records the device knows about.
	Users map[string]User

	mu   sync.Mutex
	sess *Session
	cat  string
	ble  bool

	// accessCodes is nil until the first fetch; Refresh cascades to the
	// codes only once they have been materialized.
	accessCodes map[string]*AccessCode
	raw         json.RawMessage
}

type lockJSON struct {
	DeviceID   *string             `json:"deviceId" validate:"required"`
	Name       *string             `json:"name" validate:"required"`
	ModelName  *string             `json:"modelName" validate:"required"`
	DeviceType *string             `json:"devicetypeId" validate:"required"`
	CAT        string              `json:"CAT"`
	Connected  bool                `json:"connected"`
	Users      []userJSON          `json:"users" validate:"dive"`
	Attributes *lockAttributesJSON `json:"attributes" validate:"required"`
}

type lockAttributesJSON struct {
	BatteryLevel        *int                   `json:"batteryLevel"`
	LockState           *int                   `json:"lockState"`
	BeeperEnabled       int                    `json:"beeperEnabled"`
	LockAndLeaveEnabled int                    `json:"lockAndLeaveEnabled"`
	AutoLockTime        int                    `json:"autoLockTime"`
	MainFirmwareVersion *string                `json:"mainFirmwareVersion"`
	MACAddress          *string                `json:"macAddress"`
	LockStateMetadata   *lockStateMetadataJSON `json:"lockStateMetadata"`
}

type lockStateMetadataJSON struct {
	ActionType string `json:"actionType"`
	UUID       string `json:"UUID"`
	Name       string `json:"name"`
}

func isBLEDeviceType(deviceType string) bool {
	for _, prefix := range bleDevicePrefixes {
		if strings.HasPrefix(deviceType, prefix) {
			return true
		}
	}
	return false
}

func decodeLock(sess *Session, data []byte) (*Lock, error) {
	var w lockJSON
	if err := decodeStrict(data, &w); err != nil {
		return nil, err
	}
	attrs := w.Attributes
	l := &Lock{
		DeviceID:            *w.DeviceID,
		Name:                *w.Name,
		ModelName:           *w.ModelName,
		DeviceType:          *w.DeviceType,
		Connected:           w.Connected,
		BeeperEnabled:       attrs.BeeperEnabled == 1,
		LockAndLeaveEnabled: attrs.LockAndLeaveEnabled == 1,
		AutoLockTime:        attrs.AutoLockTime,
		MACAddress:          attrs.MACAddress,
		Users:               make(map[string]User, len(w.Users)),
		sess:                sess,
		cat:                 w.CAT,
		ble:                 isBLEDeviceType(*w.DeviceType),
		raw:                 json.RawMessage(data),
	}
	// lockState present is the availability discriminator for the whole
	// state block.
	if attrs.LockState != nil {
		locked := *attrs.LockState == 1
		jammed := *attrs.LockState == 2
		l.IsLocked = &locked
		l.IsJammed = &jammed
		l.BatteryLevel = attrs.BatteryLevel
		l.FirmwareVersion = attrs.MainFirmwareVersion
	}
	if meta := attrs.LockStateMetadata; meta != nil {
		l.StateMetadata = &LockStateMetadata{
			ActionType: meta.ActionType,
			UUID:       meta.UUID,
			Name:       meta.Name,
		}
	}
	for _, uw := range w.Users {
		u := uw.user()
		l.Users[u.UserID] = u
	}
	return l, nil
}

// mergeFrom decodes data into a fresh instance and copies its fields onto l
// under the instance lock. The materialized access-code map survives the
// merge; Refresh re-fetches it separately.
func (l *Lock) mergeFrom(data []byte) error {
	fresh, err := decodeLock(l.sess, data)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.DeviceID = fresh.DeviceID
	l.Name = fresh.Name
	l.ModelName = fresh.ModelName
	l.DeviceType = fresh.DeviceType
	l.Connected = fresh.Connected
	l.BatteryLevel = fresh.BatteryLevel
	l.IsLocked = fresh.IsLocked
	l.IsJammed = fresh.IsJammed
	l.BeeperEnabled = fresh.BeeperEnabled
	l.LockAndLeaveEnabled = fresh.LockAndLeaveEnabled
	l.AutoLockTime = fresh.AutoLockTime
	l.FirmwareVersion = fresh.FirmwareVersion
	l.MACAddress = fresh.MACAddress
	l.StateMetadata = fresh.StateMetadata
	l.Users = fresh.Users
	l.cat = fresh.cat
	l.ble = fresh.ble
	l.raw = fresh.raw
	return nil
}

func (l *Lock) session() (*Session, error) {
	if l.sess == nil {
		return nil, ErrNotAuthenticated
	}
	return l.sess, nil
}

func (l *Lock) path() string {
	return "devices/" + l.DeviceID
}

// Refresh re-reads the lock's canonical representation and merges it in.
// Once AccessCodes has been called, the code map is refreshed too.
func (l *Lock) Refresh(ctx context.Context) error {
	s, err := l.session()
	if err != nil {
		return err
	}
	data, err := s.Request(ctx, http.MethodGet, l.path(), nil, nil)
	if err != nil {
		return err
	}
	l.mu.Lock()
	hadCodes := l.accessCodes != nil
	l.mu.Unlock()
	if err := l.mergeFrom(data); err != nil {
		return err
	}
	if hadCodes {
		return l.RefreshAccessCodes(ctx)
	}
	return nil
}

// Lock engages the bolt. See Unlock for the two delivery paths.
func (l *Lock) Lock(ctx context.Context) error {
	return l.setLockState(ctx, 1)
}

// Unlock withdraws the bolt. WiFi devices take an attribute patch whose
// response carries server-confirmed state, jam detection included. BLE
// devices only accept queued commands, so the local state is set
// optimistically and a genuine jam shows up on the next refresh or log
// poll, not here.
func (l *Lock) Unlock(ctx context.Context) error {
	return l.setLockState(ctx, 0)
}

func (l *Lock) setLockState(ctx context.Context, state int) error {
	s, err := l.session()
	if err != nil {
		return err
	}
	if l.ble {
		userID, err := s.UserID(ctx)
		if err != nil {
			return err
		}
		data := map[string]any{
			"CAT":      l.cat,
			"deviceId": l.DeviceID,
			"state":    state,
			"userId":   userID,
		}
		if _, err := l.SendCommand(ctx, "changelockstate", data); err != nil {
			return err
		}
		locked := state == 1
		jammed := false
		l.mu.Lock()
		l.IsLocked = &locked
		l.IsJammed = &jammed
		l.mu.Unlock()
		return nil
	}
	return l.putAttributes(ctx, map[string]any{"lockState": state})
}

// SendCommand enqueues a named command on the device's command queue and
// returns the raw response. Access-code CRUD and BLE state changes ride
// this path.
func (l *Lock) SendCommand(ctx context.Context, name string, data any) ([]byte, error) {
	s, err := l.session()
	if err != nil {
		return nil, err
	}
	body := map[string]any{"data": data, "name": name}
	return s.Request(ctx, http.MethodPost, l.path()+"/commands", body, nil)
}

func (l *Lock) putAttributes(ctx context.Context, attributes map[string]any) error {
	s, err := l.session()
	if err != nil {
		return err
	}
	body := map[string]any{"attributes": attributes}
	data, err := s.Request(ctx, http.MethodPut, l.path(), body, nil)
	if err != nil {
		return err
	}
	return l.mergeFrom(data)
}

// SetBeeper turns keypad beeps on or off.
func (l *Lock) SetBeeper(ctx context.Context, enabled bool) error {
	return l.putAttributes(ctx, map[string]any{"beeperEnabled": boolToInt(enabled)})
}

// SetLockAndLeave turns one-touch locking on or off.
func (l *Lock) SetLockAndLeave(ctx context.Context, enabled bool) error {
	return l.putAttributes(ctx, map[string]any{"lockAndLeaveEnabled": boolToInt(enabled)})
}

// SetAutoLockTime sets the auto-relock delay. seconds must be 0 (disabled)
// or one of 5, 15, 30, 60, 120, 240, 300; anything else fails before any
// network call.
func (l *Lock) SetAutoLockTime(ctx context.Context, seconds int) error {
	if err := validate.Var(seconds, autoLockTimes); err != nil {
		return fmt.Errorf("%w: invalid auto-lock time %d", Err, seconds)
	}
	return l.putAttributes(ctx, map[string]any{"autoLockTime": seconds})
}

// Logs fetches activity log entries. limit of zero means server default;
// sortDesc asks for newest first. The result is fresh each call, never
// cached on the entity.
func (l *Lock) Logs(ctx context.Context, limit int, sortDesc bool) ([]LockLog, error) {
	s, err := l.session()
	if err != nil {
		return nil, err
	}
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if sortDesc {
		query.Set("sort", "desc")
	}
	data, err := s.Request(ctx, http.MethodGet, l.path()+"/logs", nil, query)
	if err != nil {
		return nil, err
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("%w: decoding logs: %v", ErrUnknown, err)
	}
	logs := make([]LockLog, 0, len(raws))
	for _, r := range raws {
		entry, err := decodeLockLog(r)
		if err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	return logs, nil
}

// LastChangedBy classifies the actor behind the most recent state change
// into a small label vocabulary. It is a pure function over StateMetadata;
// no network call. Empty string when no metadata is present. An actor id
// that resolves to no known user degrades to the role-only label.
func (l *Lock) LastChangedBy() string {
	meta := l.StateMetadata
	if meta == nil {
		return ""
	}
	userSuffix := ""
	if meta.UUID != "" {
		if u, ok := l.Users[meta.UUID]; ok {
			userSuffix = " - " + u.Name
		}
	}
	switch meta.ActionType {
	case "thumbTurn":
		return "thumbturn"
	case "1touchLocking":
		return "1-touch locking"
	case "accesscode":
		return "keypad - " + meta.Name
	case "AppleHomeNFC":
		return "apple nfc device" + userSuffix
	case "virtualKey":
		return "mobile device" + userSuffix
	}
	return "unknown"
}

// KeypadDisabled reports whether the keypad has locked itself out after
// repeated invalid codes: true iff the chronologically newest log entry is
// the disabling event. logs may be passed in any order; nil fetches fresh
// ones. An empty log list means false.
func (l *Lock) KeypadDisabled(ctx context.Context, logs []LockLog) (bool, error) {
	if logs == nil {
		fetched, err := l.Logs(ctx, 0, false)
		if err != nil {
			return false, err
		}
		logs = fetched
	}
	if len(logs) == 0 {
		return false, nil
	}
	newest := logs[0]
	for _, entry := range logs[1:] {
		if entry.CreatedAt.After(newest.CreatedAt) {
			newest = entry
		}
	}
	return newest.Message == keypadDisabledMessage, nil
}

// AccessCodes returns the lock's codes keyed by access-code id, fetching
// them on first call. Use RefreshAccessCodes to force a re-read.
func (l *Lock) AccessCodes(ctx context.Context) (map[string]*AccessCode, error) {
	l.mu.Lock()
	codes := l.accessCodes
	l.mu.Unlock()
	if codes != nil {
		return codes, nil
	}
	if err := l.RefreshAccessCodes(ctx); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.accessCodes, nil
}

// RefreshAccessCodes re-reads the code list and its side-car notifications.
// Notifications come first and are indexed by the access-code id embedded
// in their derived identifiers; codes with no match have simply never had
// notifications configured. Notifications not carrying this user's prefix
// are ignored.
func (l *Lock) RefreshAccessCodes(ctx context.Context) error {
	s, err := l.session()
	if err != nil {
		return err
	}
	userID, err := s.UserID(ctx)
	if err != nil {
		return err
	}

	query := url.Values{"deviceId": []string{l.DeviceID}}
	data, err := s.Request(ctx, http.MethodGet, "notifications", nil, query)
	if err != nil {
		return err
	}
	var rawNotifications []json.RawMessage
	if err := json.Unmarshal(data, &rawNotifications); err != nil {
		return fmt.Errorf("%w: decoding notifications: %v", ErrUnknown, err)
	}
	prefix := userID + "_"
	notifications := make(map[string]*Notification)
	for _, r := range rawNotifications {
		n, err := decodeNotification(s, r)
		if err != nil {
			return err
		}
		codeID, ok := strings.CutPrefix(n.NotificationID, prefix)
		if !ok {
			continue
		}
		notifications[codeID] = n
	}

	data, err = s.Request(ctx, http.MethodGet, "devices/"+l.DeviceID+"/storage/accesscode", nil, nil)
	if err != nil {
		return err
	}
	var rawCodes []json.RawMessage
	if err := json.Unmarshal(data, &rawCodes); err != nil {
		return fmt.Errorf("%w: decoding access codes: %v", ErrUnknown, err)
	}
	codes := make(map[string]*AccessCode, len(rawCodes))
	for _, r := range rawCodes {
		code, err := decodeAccessCode(s, l, r)
		if err != nil {
			return err
		}
		code.notification = notifications[code.AccessCodeID]
		codes[code.AccessCodeID] = code
	}

	l.mu.Lock()
	l.accessCodes = codes
	l.mu.Unlock()
	return nil
}

// AddAccessCode attaches code to this lock and saves it. On success the
// code carries its server-assigned id and a live session reference.
func (l *Lock) AddAccessCode(ctx context.Context, code *AccessCode) error {
	s, err := l.session()
	if err != nil {
		return err
	}
	code.sess = s
	code.lock = l
	code.DeviceID = l.DeviceID
	return code.Save(ctx)
}
