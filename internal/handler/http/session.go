package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/good12834/shoestore/pkg/httputil"
	"github.com/good12834/shoestore/pkg/validator"
)

// SessionManager is the authentication behavior the API needs.
type SessionManager interface {
	Login(ctx context.Context, token string) error
	Logout(ctx context.Context) error
	IsAuthenticated() bool
	UserID() string
}

// SessionHandler handles login state for the local session.
type SessionHandler struct {
	session SessionManager
	logger  *slog.Logger
}

// NewSessionHandler creates a new session HTTP handler.
func NewSessionHandler(session SessionManager, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{session: session, logger: logger}
}

// LoginRequest is the JSON request body for login.
type LoginRequest struct {
	Token string `json:"token" validate:"required"`
}

type sessionResponse struct {
	Authenticated bool   `json:"authenticated"`
	UserID        string `json:"user_id,omitempty"`
}

// GetSession handles GET /api/v1/session
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	h.writeSession(w)
}

// Login handles POST /api/v1/session/login
func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	if err := h.session.Login(r.Context(), req.Token); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.writeSession(w)
}

// Logout handles POST /api/v1/session/logout
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Logout(r.Context()); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.writeSession(w)
}

func (h *SessionHandler) writeSession(w http.ResponseWriter) {
	httputil.WriteData(w, http.StatusOK, sessionResponse{
		Authenticated: h.session.IsAuthenticated(),
		UserID:        h.session.UserID(),
	})
}
