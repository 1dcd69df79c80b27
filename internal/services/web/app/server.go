// Package app composes the BFF's HTTP surface and owns its lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/jpillora/requestlog"

	"github.com/textadventure/web/internal/platform/timeouts"
	"github.com/textadventure/web/internal/services/web/apiproxy"
	"github.com/textadventure/web/internal/services/web/relay"
	"github.com/textadventure/web/internal/services/web/session"
	"github.com/textadventure/web/internal/services/web/shell"
	"github.com/textadventure/web/internal/services/web/upstream"
)

// Server hosts the BFF HTTP server.
type Server struct {
	httpAddr   string
	httpServer *http.Server
	handler    http.Handler
	accessLog  *relay.AccessLogger
}

type handler struct {
	config   Config
	codec    *session.Codec
	upstream *upstream.Client
	shell    http.Handler
}

// NewServer validates the config and wires every route.
func NewServer(config Config) (*Server, error) {
	httpAddr := strings.TrimSpace(config.HTTPAddr)
	if httpAddr == "" {
		return nil, errors.New("http address is required")
	}
	codec, err := session.NewCodec(config.SessionSecret, config.SessionTTL, nil)
	if err != nil {
		return nil, fmt.Errorf("session codec: %w", err)
	}
	upstreamClient, err := upstream.NewClient(upstream.Config{
		BaseURL:      config.APIURL,
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
	})
	if err != nil {
		return nil, fmt.Errorf("upstream client: %w", err)
	}
	proxy, err := apiproxy.New(config.APIURL, nil)
	if err != nil {
		return nil, fmt.Errorf("api proxy: %w", err)
	}
	connector, err := relay.NewConnector(config.WSURL, timeouts.UpstreamDial)
	if err != nil {
		return nil, fmt.Errorf("relay connector: %w", err)
	}

	accessLog := relay.NewAccessLogger(config.AccessLog, relay.DefaultAccessLogCapacity)
	h := &handler{
		config:   config,
		codec:    codec,
		upstream: upstreamClient,
		shell:    shell.Handler{},
	}

	pages := http.NewServeMux()
	pages.HandleFunc("/login", h.handleLogin)
	pages.HandleFunc("/register", h.handleRegister)
	pages.HandleFunc("/guest", h.handleGuest)
	pages.HandleFunc("/logout", h.handleLogout)
	pages.Handle("/api/", proxy)
	pages.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(ResolveStaticDir(config.StaticDir)))))
	pages.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	pages.Handle("/", h.shell)

	// The game socket bypasses the HTTP access log; it has its own lifecycle log.
	root := http.NewServeMux()
	root.Handle("/play", relay.NewHandler(codec, connector, accessLog))
	root.Handle("/", requestlog.Wrap(pages))

	rootHandler := withSession(codec, root)
	return &Server{
		httpAddr: httpAddr,
		httpServer: &http.Server{
			Addr:              httpAddr,
			Handler:           rootHandler,
			ReadHeaderTimeout: timeouts.ReadHeader,
		},
		handler:   rootHandler,
		accessLog: accessLog,
	}, nil
}

// Handler exposes the composed root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe runs the HTTP server until the context ends.
//
// On cancellation, it performs a bounded shutdown so in-flight requests
// are drained before hard close. Hijacked game sockets are not tracked by
// Shutdown and end when the process exits.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("web server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	serveErr := make(chan error, 1)
	log.Printf("web listening on %s", s.httpAddr)
	go func() {
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

// Close flushes the relay access log.
func (s *Server) Close() {
	if s == nil {
		return
	}
	s.accessLog.Close()
}
