package upstream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	apperrors "github.com/textadventure/web/internal/platform/errors"
)

// TokenResponse is the upstream token endpoint payload.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	UserID       ID     `json:"user_id"`
	Email        string `json:"email"`
	IsAdmin      Flag   `json:"is_admin"`
}

func (r TokenResponse) validate() error {
	if r.AccessToken == "" {
		return apperrors.New(apperrors.CodeUpstreamRejected, "upstream token response has no access_token")
	}
	if r.UserID == "" {
		return apperrors.New(apperrors.CodeUpstreamRejected, "upstream token response has no user_id")
	}
	return nil
}

// GuestRequest identifies an existing guest to renew; both fields empty
// requests a new guest.
type GuestRequest struct {
	GuestID     string `json:"guest_id,omitempty"`
	GuestSecret string `json:"guest_secret,omitempty"`
}

// GuestResponse is a token response plus the guest's reusable identifiers.
type GuestResponse struct {
	TokenResponse
	GuestID     string `json:"guest_id"`
	GuestSecret string `json:"guest_secret"`
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ID is a user identifier the upstream may encode as a JSON string or number.
type ID string

// UnmarshalJSON accepts "1", 1, and null.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("user id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// Flag is a boolean the upstream may encode as true/false or 0/1.
type Flag bool

// UnmarshalJSON accepts booleans, numbers, and null.
func (f *Flag) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch string(data) {
	case "null", "false":
		*f = false
		return nil
	case "true":
		*f = true
		return nil
	}
	n, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("flag must be a boolean or number: %w", err)
	}
	*f = n != 0
	return nil
}
