// Package web parses BFF command flags and starts the HTTP server.
package web

import (
	"context"
	"flag"
	"fmt"
	"time"

	entrypoint "github.com/textadventure/web/internal/platform/cmd"
	"github.com/textadventure/web/internal/services/web/app"
)

// Config holds the web command configuration.
type Config struct {
	HTTPAddr      string        `env:"ADVENTURE_WEB_HTTP_ADDR"  envDefault:":8080"`
	APIURL        string        `env:"ADVENTURE_API_URL"        envDefault:"http://localhost:8081"`
	WSURL         string        `env:"ADVENTURE_WS_URL"         envDefault:"ws://localhost:8081/play"`
	ClientID      string        `env:"ADVENTURE_CLIENT_ID"`
	ClientSecret  string        `env:"ADVENTURE_CLIENT_SECRET"`
	SessionSecret string        `env:"ADVENTURE_SESSION_SECRET,notEmpty"`
	SessionTTL    time.Duration `env:"ADVENTURE_SESSION_TTL"    envDefault:"24h"`
	StaticDir     string        `env:"ADVENTURE_STATIC_DIR"`
	CookieSecure  bool          `env:"ADVENTURE_COOKIE_SECURE"  envDefault:"false"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP listen address")
	fs.StringVar(&cfg.APIURL, "api-url", cfg.APIURL, "upstream API base URL")
	fs.StringVar(&cfg.WSURL, "ws-url", cfg.WSURL, "upstream game WebSocket URL")
	fs.StringVar(&cfg.ClientID, "client-id", cfg.ClientID, "OAuth client id sent to the token endpoint")
	fs.DurationVar(&cfg.SessionTTL, "session-ttl", cfg.SessionTTL, "session cookie lifetime")
	fs.StringVar(&cfg.StaticDir, "static-dir", cfg.StaticDir, "static asset directory (default: build/static or static)")
	fs.BoolVar(&cfg.CookieSecure, "cookie-secure", cfg.CookieSecure, "mark the session cookie Secure")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the BFF server.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceWeb, func(ctx context.Context) error {
		server, err := app.NewServer(app.Config{
			HTTPAddr:      cfg.HTTPAddr,
			APIURL:        cfg.APIURL,
			WSURL:         cfg.WSURL,
			ClientID:      cfg.ClientID,
			ClientSecret:  cfg.ClientSecret,
			SessionSecret: cfg.SessionSecret,
			SessionTTL:    cfg.SessionTTL,
			StaticDir:     cfg.StaticDir,
			CookieSecure:  cfg.CookieSecure,
		})
		if err != nil {
			return fmt.Errorf("init web server: %w", err)
		}
		defer server.Close()

		if err := server.ListenAndServe(ctx); err != nil {
			return fmt.Errorf("serve web: %w", err)
		}
		return nil
	})
}
