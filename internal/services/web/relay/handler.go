package relay

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tomasen/realip"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/textadventure/web/internal/platform/id"
	"github.com/textadventure/web/internal/platform/requestctx"
	"github.com/textadventure/web/internal/services/web/session"
)

const (
	notLoggedInMessage  = "You must be logged in to play."
	unreachableMessage  = "Unable to reach the game server."
	errorFrameWriteWait = time.Second
)

// errorFrame mirrors the game server's own error frames so the browser
// handles BFF-generated failures the same way.
type errorFrame struct {
	Type  string `json:"type"`
	Data  string `json:"data"`
	Retry *bool  `json:"retry,omitempty"`
}

// Handler serves the /play endpoint.
type Handler struct {
	codec     *session.Codec
	connector UpstreamConnector
	accessLog *AccessLogger
	upgrader  websocket.Upgrader
	tracer    trace.Tracer
	now       func() time.Time
}

// NewHandler builds a /play handler. accessLog may be nil.
func NewHandler(codec *session.Codec, connector UpstreamConnector, accessLog *AccessLogger) *Handler {
	return &Handler{
		codec:     codec,
		connector: connector,
		accessLog: accessLog,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		tracer: otel.Tracer("github.com/textadventure/web/internal/services/web/relay"),
		now:    time.Now,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	clientAddr := requestctx.ClientAddrFromContext(r.Context())
	if clientAddr == "" {
		clientAddr = realip.FromRequest(r)
	}
	pairingID, err := id.NewID()
	if err != nil {
		log.Printf("relay: generate pairing id: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	pairing := newPairing(pairingID, clientAddr, r.URL.Path)
	pairing.UserID = requestctx.UserIDFromContext(r.Context())
	h.recordEvent(pairing, Event{Kind: EventConnect, Request: commonLogLine(r, clientAddr, h.now())})

	inbound, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response.
		h.record(pairing, EventError, fmt.Sprintf("upgrade: %v", err))
		h.finish(pairing, "upgrade failed")
		return
	}

	ctx, span := h.tracer.Start(r.Context(), "relay.pair", trace.WithAttributes(
		attribute.String("relay.pairing_id", pairing.ID),
		attribute.String("client.address", clientAddr),
	))
	defer span.End()

	claims, err := h.authenticate(r)
	if err != nil {
		span.SetStatus(codes.Error, "unauthenticated")
		h.record(pairing, EventError, fmt.Sprintf("authenticate: %v", err))
		h.reject(inbound, notLoggedInMessage, boolPtr(false), websocket.ClosePolicyViolation)
		h.finish(pairing, "unauthenticated")
		return
	}
	pairing.UserID = claims.UserID
	span.SetAttributes(attribute.String("enduser.id", claims.UserID))

	upstream, err := h.connector.Connect(ctx, r.URL.Query(), claims.AccessToken)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upstream unavailable")
		h.record(pairing, EventError, fmt.Sprintf("connect upstream: %v", err))
		h.reject(inbound, unreachableMessage, nil, websocket.CloseInternalServerErr)
		h.finish(pairing, "upstream unavailable")
		return
	}
	if err := pairing.transition(StatePaired); err != nil {
		log.Printf("relay: %v", err)
	}
	h.record(pairing, EventUpstreamConnect, "")

	result := Pump(inbound, upstream, func(Side, error) {
		if err := pairing.transition(StateClosing); err != nil {
			log.Printf("relay: %v", err)
		}
	})
	span.SetAttributes(
		attribute.String("relay.ended_by", string(result.Ended)),
		attribute.Int("relay.close_code", result.Code),
		attribute.Int("relay.frames_inbound", result.Frames[SideInbound]),
		attribute.Int("relay.frames_upstream", result.Frames[SideUpstream]),
	)
	h.finish(pairing, fmt.Sprintf("ended_by=%s code=%d frames_in=%d frames_up=%d",
		result.Ended, result.Code, result.Frames[SideInbound], result.Frames[SideUpstream]))
}

// reject sends one error frame and closes the inbound socket.
func (h *Handler) reject(inbound *websocket.Conn, message string, retry *bool, code int) {
	payload, err := json.Marshal(errorFrame{Type: "error", Data: message, Retry: retry})
	if err == nil {
		_ = inbound.SetWriteDeadline(h.now().Add(errorFrameWriteWait))
		_ = inbound.WriteMessage(websocket.TextMessage, payload)
	}
	_ = inbound.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, message), h.now().Add(errorFrameWriteWait))
	_ = inbound.Close()
}

// authenticate prefers claims already verified by the session middleware.
func (h *Handler) authenticate(r *http.Request) (session.Claims, error) {
	if claims, ok := session.ClaimsFromContext(r.Context()); ok {
		return claims, nil
	}
	return session.FromRequest(r, h.codec)
}

func (h *Handler) finish(pairing *Pairing, detail string) {
	if err := pairing.transition(StateClosed); err != nil {
		log.Printf("relay: %v", err)
	}
	h.record(pairing, EventDisconnect, detail)
}

func (h *Handler) record(pairing *Pairing, kind EventKind, detail string) {
	h.recordEvent(pairing, Event{Kind: kind, Detail: detail})
}

func (h *Handler) recordEvent(pairing *Pairing, event Event) {
	event.Time = h.now()
	event.PairingID = pairing.ID
	event.ClientAddr = pairing.ClientAddr
	event.Path = pairing.Path
	event.UserID = pairing.UserID
	h.accessLog.Log(event)
}

func boolPtr(v bool) *bool {
	return &v
}
