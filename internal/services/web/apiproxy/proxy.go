// Package apiproxy forwards authenticated REST calls to the upstream API.
package apiproxy

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/textadventure/web/internal/platform/errors"
	"github.com/textadventure/web/internal/services/web/session"
)

// Proxy relays requests to the upstream API with the caller's bearer token.
type Proxy struct {
	target  *url.URL
	reverse *httputil.ReverseProxy
	tracer  trace.Tracer
}

// New builds a proxy for the upstream API base URL. transport may be nil.
func New(rawTarget string, transport http.RoundTripper) (*Proxy, error) {
	target, err := url.Parse(strings.TrimSpace(rawTarget))
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	if target.Scheme != "http" && target.Scheme != "https" {
		return nil, fmt.Errorf("api url %q must use http or https", rawTarget)
	}
	if target.Host == "" {
		return nil, fmt.Errorf("api url %q has no host", rawTarget)
	}

	p := &Proxy{
		target: target,
		tracer: otel.Tracer("github.com/textadventure/web/internal/services/web/apiproxy"),
	}
	p.reverse = &httputil.ReverseProxy{
		Rewrite:      p.rewrite,
		Transport:    transport,
		ErrorHandler: p.handleError,
	}
	return p, nil
}

func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := p.tracer.Start(r.Context(), "apiproxy.forward", trace.WithAttributes(
		attribute.String("http.request.method", r.Method),
		attribute.String("url.path", r.URL.Path),
	))
	defer span.End()

	recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	p.reverse.ServeHTTP(recorder, r.WithContext(ctx))
	span.SetAttributes(attribute.Int("http.response.status_code", recorder.status))
	if recorder.status >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, http.StatusText(recorder.status))
	}
}

func (p *Proxy) rewrite(pr *httputil.ProxyRequest) {
	pr.SetURL(p.target)
	pr.SetXForwarded()

	// Browser credentials never reach the upstream; only the session's token does.
	pr.Out.Header.Del("Cookie")
	pr.Out.Header.Del("Authorization")
	if claims, ok := session.ClaimsFromContext(pr.In.Context()); ok && claims.AccessToken != "" {
		pr.Out.Header.Set("Authorization", "Bearer "+claims.AccessToken)
	}
	otel.GetTextMapPropagator().Inject(pr.In.Context(), propagation.HeaderCarrier(pr.Out.Header))
}

func (p *Proxy) handleError(w http.ResponseWriter, r *http.Request, err error) {
	log.Printf("apiproxy: forward method=%s path=%q: %v", r.Method, r.URL.Path, err)
	trace.SpanFromContext(r.Context()).RecordError(err)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"code":    string(apperrors.CodeUpstreamUnavailable),
			"message": "upstream api is unavailable",
		},
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
