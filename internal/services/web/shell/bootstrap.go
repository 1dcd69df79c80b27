// Package shell renders the single-page application shell.
package shell

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/textadventure/web/internal/services/web/session"
)

// EncodeBootstrap serializes the non-sensitive identity into the page
// annotation format read once by the client at startup.
func EncodeBootstrap(identity session.Identity) (string, error) {
	payload, err := json.Marshal(identity)
	if err != nil {
		return "", fmt.Errorf("encode bootstrap identity: %w", err)
	}
	return base64.StdEncoding.EncodeToString(payload), nil
}

// DecodeBootstrap reverses EncodeBootstrap.
func DecodeBootstrap(value string) (session.Identity, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return session.Identity{}, fmt.Errorf("bootstrap identity is empty")
	}
	payload, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return session.Identity{}, fmt.Errorf("decode bootstrap base64: %w", err)
	}
	var identity session.Identity
	if err := json.Unmarshal(payload, &identity); err != nil {
		return session.Identity{}, fmt.Errorf("decode bootstrap json: %w", err)
	}
	if strings.TrimSpace(identity.ID) == "" {
		return session.Identity{}, fmt.Errorf("bootstrap identity has no id")
	}
	return identity, nil
}
