// ABOUTME: Account endpoints: register, login, token rotation, and identity
// ABOUTME: Register and login are the only unauthenticated API routes

package api

import (
	"net/http"

	"github.com/2389/mailgate/internal/auth"
)

// RegisterRequest is the JSON request body for POST /api/v1/register.
type RegisterRequest struct {
	Address     string `json:"address"`
	DisplayName string `json:"display_name"`
	Secret      string `json:"secret"`
}

// LoginRequest is the JSON request body for POST /api/v1/login.
type LoginRequest struct {
	Address string `json:"address"`
	Secret  string `json:"secret"`
}

// AccountResponse is the JSON response for register, login, and me.
// Token is only present when the operation yields one.
type AccountResponse struct {
	AccountID   string `json:"account_id"`
	Address     string `json:"address"`
	DisplayName string `json:"display_name"`
	Token       string `json:"token,omitempty"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	account, err := s.issuer.Register(r.Context(), req.Address, req.DisplayName, req.Secret)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, AccountResponse{
		AccountID:   account.ID,
		Address:     account.Address,
		DisplayName: account.DisplayName,
		Token:       account.Token,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	account, err := s.issuer.Authenticate(r.Context(), req.Address, req.Secret)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, AccountResponse{
		AccountID:   account.ID,
		Address:     account.Address,
		DisplayName: account.DisplayName,
		Token:       account.Token,
	})
}

func (s *Server) handleRotate(w http.ResponseWriter, r *http.Request) {
	// The middleware already proved the token valid; rotate the exact
	// value presented so a racing stale token cannot win.
	token, _ := bearerToken(r)

	newToken, err := s.issuer.Rotate(r.Context(), token)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"token": newToken})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.MustFromContext(r.Context())

	s.writeJSON(w, http.StatusOK, AccountResponse{
		AccountID:   authCtx.AccountID,
		Address:     authCtx.Address,
		DisplayName: authCtx.DisplayName,
	})
}

func bearerToken(r *http.Request) (string, bool) {
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if len(header) <= len(prefix) {
		return "", false
	}
	return header[len(prefix):], true
}
