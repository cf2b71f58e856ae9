package latchlink

import "time"

// defaultUUID is the sentinel the service sends when a log entry has no
// associated actor or access code.
const defaultUUID = "ffffffff-ffff-ffff-ffff-ffffffffffff"

// keypadDisabledMessage is the log message for the event the keypad emits
// after locking itself out on repeated invalid codes.
const keypadDisabledMessage = "Keypad disabled invalid code"

// logEventMessages maps wire event codes to human-readable messages.
// Unknown codes map to "Unknown" rather than erroring: the firmware grows
// new codes faster than this table.
var logEventMessages = map[int]string{
	-1:  "Unknown",
	0:   "Unknown",
	1:   "Locked by keypad",
	2:   "Unlocked by keypad",
	3:   "Locked by thumbturn",
	4:   "Unlocked by thumbturn",
	5:   "Locked by Schlage button",
	6:   "Locked by mobile device",
	7:   "Unlocked by mobile device",
	8:   "Locked by time",
	9:   "Unlocked by time",
	10:  "Lock jammed",
	11:  keypadDisabledMessage,
	12:  "Alarm triggered",
	14:  "Access code user added",
	15:  "Access code user deleted",
	16:  "Mobile user added",
	17:  "Mobile user deleted",
	18:  "Admin privilege added",
	19:  "Admin privilege deleted",
	20:  "Firmware updated",
	21:  "Low battery indicated",
	22:  "Batteries replaced",
	23:  "Forced entry alarm silenced",
	27:  "Hall sensor comm error",
	28:  "FDR failed",
	29:  "Critical battery state",
	30:  "All access code deleted",
	32:  "Firmware update failed",
	33:  "Bluetooth firmware download failed",
	34:  "WiFi firmware download failed",
	35:  "Keypad disconnected",
	36:  "WiFi AP disconnect",
	37:  "WiFi host disconnect",
	38:  "WiFi AP connect",
	39:  "WiFi host connect",
	40:  "User DB failure",
	48:  "Passage mode activated",
	49:  "Passage mode deactivated",
	52:  "Unlocked by Apple key",
	53:  "Locked by Apple key",
	54:  "Motor jammed on fail",
	55:  "Motor jammed off fail",
	56:  "Motor jammed retries exceeded",
	255: "History cleared",
}

// LockLog is an immutable activity log entry for a lock.
type LockLog struct {
	// CreatedAt is the entry's timestamp, in UTC as reported.
	CreatedAt time.Time

	// DeviceID identifies the lock the entry belongs to.
	DeviceID string

	// LogID is the server-assigned identifier for the entry.
	LogID string

	// AccessorID identifies the user that triggered the entry, when one did.
	AccessorID *string

	// AccessCodeID identifies the access code that triggered the entry,
	// when one did.
	AccessCodeID *string

	// Message is the human-readable event description.
	Message string
}

type lockLogJSON struct {
	CreatedAt *string         `json:"createdAt" validate:"required"`
	DeviceID  string          `json:"deviceId"`
	LogID     string          `json:"logId"`
	Message   *logMessageJSON `json:"message" validate:"required"`
}

type logMessageJSON struct {
	SecondsSinceEpoch int64  `json:"secondsSinceEpoch"`
	KeypadUUID        string `json:"keypadUuid"`
	AccessorUUID      string `json:"accessorUuid"`
	EventCode         *int   `json:"eventCode" validate:"required"`
}

func decodeLockLog(data []byte) (LockLog, error) {
	var w lockLogJSON
	if err := decodeStrict(data, &w); err != nil {
		return LockLog{}, err
	}
	createdAt, err := parseTime(*w.CreatedAt)
	if err != nil {
		return LockLog{}, err
	}
	message, ok := logEventMessages[*w.Message.EventCode]
	if !ok {
		message = "Unknown"
	}
	return LockLog{
		CreatedAt:    createdAt,
		DeviceID:     w.DeviceID,
		LogID:        w.LogID,
		AccessorID:   noneIfDefaultUUID(w.Message.AccessorUUID),
		AccessCodeID: noneIfDefaultUUID(w.Message.KeypadUUID),
		Message:      message,
	}, nil
}

func noneIfDefaultUUID(s string) *string {
	if s == "" || s == defaultUUID {
		return nil
	}
	return &s
}
