package latchlink

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
)

// AccessCode is a keypad code on a lock. Codes are children of exactly one
// Lock and are obtained from Lock.AccessCodes or built literally and handed
// to Lock.AddAccessCode.
//
// The "notify on use" preference is not a field on the code's own resource:
// it lives in a side-car Notification whose identifier is derived from the
// authenticated user and the code. Save and Delete keep the pair in
// lockstep; the two updates are not transactional, so a failure between
// them leaves a stale side-car that the next read repairs.
//
// Thread Safety:
//   - Merge-producing calls are mutually exclusive per instance. Concurrent
//     mutating calls on one instance are the caller's race.
type AccessCode struct {
	// Name is the human label for the code.
	Name string

	// Code is the keypad digits as a fixed-width, zero-padded string.
	Code string

	// Schedule restricts when the code works. Nil means always.
	Schedule Schedule

	// NotifyOnUse requests a push notification whenever the code is used.
	NotifyOnUse bool

	// Disabled turns the code off without deleting it.
	Disabled bool

	// DeviceID is the owning lock's device id.
	DeviceID string

	// AccessCodeID is the server-assigned identifier, empty until the first
	// successful Save.
	AccessCodeID string

	mu           sync.Mutex
	sess         *Session
	lock         *Lock
	notification *Notification
	raw          json.RawMessage
}

type accessCodeJSON struct {
	AccessCodeID     *string                `json:"accesscodeId" validate:"required"`
	FriendlyName     *string                `json:"friendlyName" validate:"required"`
	AccessCode       *int                   `json:"accessCode" validate:"required"`
	AccessCodeLength int                    `json:"accessCodeLength"`
	Notification     *int                   `json:"notification" validate:"required"`
	Disabled         int                    `json:"disabled"`
	ActivationSecs   *int64                 `json:"activationSecs" validate:"required"`
	ExpirationSecs   *int64                 `json:"expirationSecs" validate:"required"`
	Schedule1        *recurringScheduleJSON `json:"schedule1"`
}

// accessCodeInput is the client-side validation shape checked before any
// network call on Save.
type accessCodeInput struct {
	Name string `validate:"required"`
	Code string `validate:"required,numeric,min=4,max=8"`
}

func decodeAccessCode(sess *Session, lock *Lock, data []byte) (*AccessCode, error) {
	var w accessCodeJSON
	if err := decodeStrict(data, &w); err != nil {
		return nil, err
	}
	schedule, err := scheduleFromWire(*w.ActivationSecs, *w.ExpirationSecs, w.Schedule1)
	if err != nil {
		return nil, err
	}
	length := w.AccessCodeLength
	if length <= 0 {
		length = 4
	}
	return &AccessCode{
		Name:         *w.FriendlyName,
		Code:         fmt.Sprintf("%0*d", length, *w.AccessCode),
		Schedule:     schedule,
		NotifyOnUse:  *w.Notification != 0,
		Disabled:     w.Disabled != 0,
		DeviceID:     lock.DeviceID,
		AccessCodeID: *w.AccessCodeID,
		sess:         sess,
		lock:         lock,
		raw:          json.RawMessage(data),
	}, nil
}

// mergeFrom decodes data into a fresh instance and copies its fields onto c
// under the instance lock, preserving c's identity. The cached side-car
// notification survives the merge; the payload never carries it.
func (c *AccessCode) mergeFrom(data []byte) error {
	fresh, err := decodeAccessCode(c.sess, c.lock, data)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Name = fresh.Name
	c.Code = fresh.Code
	c.Schedule = fresh.Schedule
	c.NotifyOnUse = fresh.NotifyOnUse
	c.Disabled = fresh.Disabled
	c.DeviceID = fresh.DeviceID
	c.AccessCodeID = fresh.AccessCodeID
	c.raw = fresh.raw
	return nil
}

func (c *AccessCode) session() (*Session, error) {
	if c.sess == nil || c.lock == nil {
		return nil, ErrNotAuthenticated
	}
	return c.sess, nil
}

// wireJSON emits the code's mutable properties. Both schedule shapes are
// always present with the inactive one defaulted; the transport is not
// union aware.
func (c *AccessCode) wireJSON() (map[string]any, error) {
	digits, err := strconv.Atoi(c.Code)
	if err != nil {
		return nil, fmt.Errorf("%w: access code %q is not numeric", Err, c.Code)
	}
	w := map[string]any{
		"friendlyName":        c.Name,
		"accessCode":          digits,
		"accessCodeLength":    len(c.Code),
		"notification":        boolToInt(c.NotifyOnUse),
		"notificationEnabled": c.NotifyOnUse,
		"disabled":            boolToInt(c.Disabled),
		"activationSecs":      int64(minTime),
		"expirationSecs":      int64(maxTime),
		"schedule1":           defaultScheduleWire(),
	}
	if c.AccessCodeID != "" {
		w["accesscodeId"] = c.AccessCodeID
	}
	switch sch := c.Schedule.(type) {
	case RecurringSchedule:
		w["schedule1"] = sch.wire()
	case TemporarySchedule:
		w["activationSecs"] = sch.Start.Unix()
		w["expirationSecs"] = sch.End.Unix()
	}
	return w, nil
}

func (c *AccessCode) storagePath() string {
	path := "devices/" + c.DeviceID + "/storage/accesscode"
	if c.AccessCodeID != "" {
		path += "/" + c.AccessCodeID
	}
	return path
}

// Refresh re-reads the code's canonical representation and merges it in.
func (c *AccessCode) Refresh(ctx context.Context) error {
	s, err := c.session()
	if err != nil {
		return err
	}
	data, err := s.Request(ctx, http.MethodGet, c.storagePath(), nil, nil)
	if err != nil {
		return err
	}
	return c.mergeFrom(data)
}

// Save commits the code through the lock's command queue, creating it when
// it has no id yet, then brings the side-car notification into lockstep:
// one is created on first save, and its active flag and filter value track
// NotifyOnUse and Name on every save after that.
func (c *AccessCode) Save(ctx context.Context) error {
	s, err := c.session()
	if err != nil {
		return err
	}
	input := accessCodeInput{Name: c.Name, Code: c.Code}
	if err := validate.Struct(input); err != nil {
		return fmt.Errorf("%w: invalid access code: %v", Err, err)
	}

	body, err := c.wireJSON()
	if err != nil {
		return err
	}
	command := "addaccesscode"
	if c.AccessCodeID != "" {
		command = "updateaccesscode"
	}
	resp, err := c.lock.SendCommand(ctx, command, body)
	if err != nil {
		return err
	}

	// Create and update responses carry only the id, not the full resource.
	var assigned struct {
		AccessCodeID string `json:"accesscodeId"`
	}
	if err := json.Unmarshal(resp, &assigned); err == nil && assigned.AccessCodeID != "" {
		c.AccessCodeID = assigned.AccessCodeID
	}
	c.DeviceID = c.lock.DeviceID

	userID, err := s.UserID(ctx)
	if err != nil {
		return err
	}
	if c.notification == nil {
		c.notification = &Notification{
			NotificationID:   userID + "_" + c.AccessCodeID,
			UserID:           userID,
			DeviceID:         c.DeviceID,
			DeviceType:       c.lock.DeviceType,
			NotificationType: NotificationOnUnlockAction,
			sess:             s,
		}
	}
	c.notification.FilterValue = c.Name
	c.notification.Active = c.NotifyOnUse
	return c.notification.Save(ctx)
}

// Delete removes the code and its paired notification, then detaches the
// instance permanently; further mutating calls fail with
// ErrNotAuthenticated.
func (c *AccessCode) Delete(ctx context.Context) error {
	if _, err := c.session(); err != nil {
		return err
	}
	body, err := c.wireJSON()
	if err != nil {
		return err
	}
	if _, err := c.lock.SendCommand(ctx, "deleteaccesscode", body); err != nil {
		return err
	}
	if c.notification != nil {
		if err := c.notification.Delete(ctx); err != nil {
			return err
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sess = nil
	c.lock = nil
	c.notification = nil
	c.raw = nil
	c.AccessCodeID = ""
	c.Disabled = true
	return nil
}
