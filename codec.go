package latchlink

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// validate checks the `validate` tags on wire structs. Required JSON keys
// are pointer fields tagged required, so a payload missing one fails loudly
// instead of silently leaving a zero value behind.
var validate = validator.New()

// decodeStrict unmarshals data into v and enforces its validate tags.
func decodeStrict(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: decoding payload: %v", ErrUnknown, err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: payload missing required fields: %v", ErrUnknown, err)
	}
	return nil
}

// parseTime parses the service's ISO-8601 timestamps (fractional seconds
// with a "Z" suffix).
func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid timestamp %q", ErrUnknown, s)
	}
	return t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
