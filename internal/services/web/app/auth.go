package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	apperrors "github.com/textadventure/web/internal/platform/errors"
	"github.com/textadventure/web/internal/platform/requestctx"
	"github.com/textadventure/web/internal/services/web/session"
	"github.com/textadventure/web/internal/services/web/upstream"
)

const maxBodyBytes = 1 << 20

type loginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type identityResponse struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	IsAdmin bool   `json:"is_admin"`
}

type guestResponse struct {
	identityResponse
	IsGuest     bool   `json:"is_guest"`
	GuestID     string `json:"guest_id"`
	GuestSecret string `json:"guest_secret"`
}

// handleLogin exchanges credentials for an upstream token and stores it in
// the session cookie.
func (h *handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !h.postOrShell(w, r) {
		return
	}
	var payload loginRequest
	if err := decodeJSONBody(w, r, &payload, false); err != nil {
		writeError(w, r, err)
		return
	}
	username := strings.TrimSpace(payload.Username)
	if username == "" {
		username = strings.TrimSpace(payload.Email)
	}
	if username == "" || payload.Password == "" {
		writeError(w, r, apperrors.New(apperrors.CodeInvalidArgument, "username and password are required"))
		return
	}

	token, err := h.upstream.RequestToken(r.Context(), username, payload.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	claims, ok := h.startSession(w, r, token, false)
	if !ok {
		return
	}
	log.Printf("login user_id=%q client=%q", claims.UserID, requestctx.ClientAddrFromContext(r.Context()))
	writeJSON(w, http.StatusOK, identityResponse{ID: claims.UserID, Email: claims.Email, IsAdmin: claims.IsAdmin})
}

// handleRegister forwards account creation to the upstream.
func (h *handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !h.postOrShell(w, r) {
		return
	}
	var payload registerRequest
	if err := decodeJSONBody(w, r, &payload, false); err != nil {
		writeError(w, r, err)
		return
	}
	email := strings.TrimSpace(payload.Email)
	if email == "" || payload.Password == "" {
		writeError(w, r, apperrors.New(apperrors.CodeInvalidArgument, "email and password are required"))
		return
	}
	if err := h.upstream.Register(r.Context(), email, payload.Password); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleGuest creates or renews a guest account and starts a guest session.
func (h *handler) handleGuest(w http.ResponseWriter, r *http.Request) {
	if !h.postOrShell(w, r) {
		return
	}
	var payload upstream.GuestRequest
	if err := decodeJSONBody(w, r, &payload, true); err != nil {
		writeError(w, r, err)
		return
	}
	if (payload.GuestID == "") != (payload.GuestSecret == "") {
		writeError(w, r, apperrors.New(apperrors.CodeInvalidArgument, "guest_id and guest_secret must be sent together"))
		return
	}

	guest, err := h.upstream.GuestLogin(r.Context(), payload)
	if err != nil {
		writeError(w, r, err)
		return
	}
	claims, ok := h.startSession(w, r, guest.TokenResponse, true)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, guestResponse{
		identityResponse: identityResponse{ID: claims.UserID, Email: claims.Email, IsAdmin: claims.IsAdmin},
		IsGuest:          true,
		GuestID:          guest.GuestID,
		GuestSecret:      guest.GuestSecret,
	})
}

// handleLogout clears the session. Browsers navigating to it are redirected
// to the login page; XHR clients posting to it get JSON.
func (h *handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		session.ClearCookie(w, h.config.CookieSecure)
		http.Redirect(w, r, "/login", http.StatusFound)
	case http.MethodPost:
		session.ClearCookie(w, h.config.CookieSecure)
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// postOrShell lets client-side routes like GET /login render the shell while
// POST performs the action. It reports whether the caller should continue.
func (h *handler) postOrShell(w http.ResponseWriter, r *http.Request) bool {
	switch r.Method {
	case http.MethodPost:
		return true
	case http.MethodGet, http.MethodHead:
		h.shell.ServeHTTP(w, r)
		return false
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
}

func (h *handler) startSession(w http.ResponseWriter, r *http.Request, token upstream.TokenResponse, guest bool) (session.Claims, bool) {
	signed, claims, err := h.codec.Sign(session.Claims{
		UserID:      string(token.UserID),
		Email:       token.Email,
		IsAdmin:     bool(token.IsAdmin),
		IsGuest:     guest,
		AccessToken: token.AccessToken,
	})
	if err != nil {
		writeError(w, r, err)
		return session.Claims{}, false
	}
	session.SetCookie(w, signed, claims.ExpiresAt, h.config.CookieSecure)
	return claims, true
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, out any, allowEmpty bool) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := decoder.Decode(out); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return apperrors.Wrap(apperrors.CodeInvalidArgument, "invalid json body", err)
	}
	return nil
}

// writeError relays upstream status errors verbatim and renders everything
// else as a coded JSON error.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var statusErr *upstream.StatusError
	if errors.As(err, &statusErr) {
		contentType := statusErr.ContentType
		if contentType == "" {
			contentType = "application/json"
		}
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(statusErr.StatusCode)
		_, _ = w.Write(statusErr.Body)
		return
	}

	code := apperrors.CodeOf(err)
	status := code.HTTPStatus()
	if status >= http.StatusInternalServerError {
		log.Printf("request failed method=%s path=%q request_id=%q: %v",
			r.Method, r.URL.Path, requestctx.RequestIDFromContext(r.Context()), err)
	}
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    string(code),
			"message": publicMessage(code, err),
		},
	})
}

func publicMessage(code apperrors.Code, err error) string {
	var appErr *apperrors.Error
	if code == apperrors.CodeInvalidArgument && errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	switch code {
	case apperrors.CodeUpstreamUnavailable:
		return "upstream api is unavailable"
	case apperrors.CodeUpstreamRejected:
		return "upstream api returned an unexpected response"
	default:
		return fmt.Sprintf("request failed (%s)", strings.ToLower(string(code)))
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	_ = encoder.Encode(payload)
}
