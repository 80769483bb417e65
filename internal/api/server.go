// ABOUTME: HTTP API server wiring routes, auth middleware, and error mapping
// ABOUTME: All message routes require a bearer token; register/login/health do not

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/2389/mailgate/internal/auth"
	"github.com/2389/mailgate/internal/proxy"
)

// Server exposes the credential issuer and the access-scoped proxy over HTTP.
type Server struct {
	issuer *auth.Issuer
	proxy  *proxy.Service
	logger *slog.Logger
}

// NewServer creates the API server.
func NewServer(issuer *auth.Issuer, svc *proxy.Service) *Server {
	return &Server{
		issuer: issuer,
		proxy:  svc,
		logger: slog.Default().With("component", "api"),
	}
}

// Handler returns the full route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/register", s.handleRegister)
	mux.HandleFunc("POST /api/v1/login", s.handleLogin)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/ready", s.handleHealth)

	authed := auth.HTTPAuthMiddleware(s.issuer)
	mux.Handle("POST /api/v1/token/rotate", authed(http.HandlerFunc(s.handleRotate)))
	mux.Handle("GET /api/v1/me", authed(http.HandlerFunc(s.handleMe)))
	mux.Handle("GET /api/v1/messages", authed(http.HandlerFunc(s.handleList)))
	mux.Handle("DELETE /api/v1/messages", authed(http.HandlerFunc(s.handleDelete)))
	mux.Handle("GET /api/v1/messages/{id}", authed(http.HandlerFunc(s.handleGet)))
	mux.Handle("POST /api/v1/messages/{id}/read", authed(http.HandlerFunc(s.handleMarkRead)))
	mux.Handle("POST /api/v1/messages/{id}/star", authed(http.HandlerFunc(s.handleStar)))
	mux.Handle("POST /api/v1/messages/{id}/reply", authed(http.HandlerFunc(s.handleReply)))
	mux.Handle("POST /api/v1/messages/{id}/forward", authed(http.HandlerFunc(s.handleForward)))
	mux.Handle("POST /api/v1/send", authed(http.HandlerFunc(s.handleSend)))
	mux.Handle("GET /api/v1/search", authed(http.HandlerFunc(s.handleSearch)))

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON serializes a response body with the given status.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encoding response", "error", err)
	}
}

// writeError maps proxy and issuer sentinel errors onto HTTP statuses.
// Anything unmapped is a 500 with a generic body; the detail goes to the
// log, not the client.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var status int
	var msg string

	switch {
	case errors.Is(err, proxy.ErrNotFound):
		status, msg = http.StatusNotFound, "not found"
	case errors.Is(err, proxy.ErrPermissionDenied):
		status, msg = http.StatusForbidden, "permission denied"
	case errors.Is(err, proxy.ErrInvalidArgument):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, proxy.ErrUnavailable):
		status, msg = http.StatusServiceUnavailable, "message store unavailable"
	case errors.Is(err, auth.ErrAddressTaken):
		status, msg = http.StatusConflict, "address already registered"
	case errors.Is(err, auth.ErrInvalidAddress), errors.Is(err, auth.ErrWeakSecret):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, auth.ErrInvalidCredential), errors.Is(err, auth.ErrInvalidToken):
		status, msg = http.StatusUnauthorized, "invalid credentials"
	default:
		s.logger.Error("request failed", "error", err)
		status, msg = http.StatusInternalServerError, "internal error"
	}

	s.writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body", proxy.ErrInvalidArgument)
	}
	return nil
}
