package app

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config captures everything the BFF needs at startup.
type Config struct {
	HTTPAddr string
	// APIURL is the upstream REST API base URL.
	APIURL string
	// WSURL is the upstream game WebSocket endpoint.
	WSURL string
	// ClientID and ClientSecret are attached to upstream token requests.
	ClientID     string
	ClientSecret string
	// SessionSecret signs session cookies.
	SessionSecret string
	SessionTTL    time.Duration
	// StaticDir overrides static asset discovery when set.
	StaticDir    string
	CookieSecure bool
	// AccessLog receives relay lifecycle lines; nil uses the standard logger output.
	AccessLog io.Writer
}

// staticCandidates are checked in order when StaticDir is empty.
var staticCandidates = []string{filepath.Join("build", "static"), "static"}

// ResolveStaticDir returns the configured directory, or the first candidate
// that exists.
func ResolveStaticDir(configured string) string {
	if dir := strings.TrimSpace(configured); dir != "" {
		return dir
	}
	for _, candidate := range staticCandidates {
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
	}
	return staticCandidates[len(staticCandidates)-1]
}
