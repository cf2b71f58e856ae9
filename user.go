package latchlink

import (
	"encoding/json"
	"fmt"
)

// User is a read-only account record. Users never mutate and hold no
// session reference.
type User struct {
	// Name is the display name associated with the account.
	Name string

	// Email is the address associated with the account.
	Email string

	// UserID is the stable identifier for the user.
	UserID string
}

type userJSON struct {
	FriendlyName string  `json:"friendlyName"`
	Email        string  `json:"email"`
	IdentityID   *string `json:"identityId" validate:"required"`
}

func (w userJSON) user() User {
	return User{
		Name:   w.FriendlyName,
		Email:  w.Email,
		UserID: *w.IdentityID,
	}
}

// decodeUsers decodes a JSON array of user records.
func decodeUsers(data []byte) ([]User, error) {
	var ws []userJSON
	if err := json.Unmarshal(data, &ws); err != nil {
		return nil, fmt.Errorf("%w: decoding users: %v", ErrUnknown, err)
	}
	users := make([]User, 0, len(ws))
	for _, w := range ws {
		if err := validate.Struct(w); err != nil {
			return nil, fmt.Errorf("%w: user record missing required fields: %v", ErrUnknown, err)
		}
		users = append(users, w.user())
	}
	return users, nil
}
