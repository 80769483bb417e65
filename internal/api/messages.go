// ABOUTME: Message endpoints: list, get, delete, send, reply, forward, search, read, star
// ABOUTME: Every handler resolves the account from context and delegates to the proxy

package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/2389/mailgate/internal/auth"
	"github.com/2389/mailgate/internal/pagination"
	"github.com/2389/mailgate/internal/proxy"
	"github.com/2389/mailgate/internal/store"
)

const maxRequestTimeout = 30 * time.Second

// ListResponse is the JSON response for GET /api/v1/messages and search.
type ListResponse struct {
	Messages []proxy.MessageSummary `json:"messages"`
	Total    int                    `json:"total"`
	Page     int                    `json:"page"`
	Limit    int                    `json:"limit"`
	HasNext  bool                   `json:"has_next"`
}

// DeleteRequest is the JSON request body for DELETE /api/v1/messages.
// An empty or absent ID list deletes everything the caller owns.
type DeleteRequest struct {
	IDs []string `json:"ids"`
}

// SendRequest is the JSON request body for POST /api/v1/send.
type SendRequest struct {
	From    string   `json:"from,omitempty"`
	To      []string `json:"to"`
	Cc      []string `json:"cc,omitempty"`
	Bcc     []string `json:"bcc,omitempty"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
}

// ReplyRequest is the JSON request body for POST /api/v1/messages/{id}/reply.
type ReplyRequest struct {
	Body string `json:"body"`
}

// ForwardRequest is the JSON request body for POST /api/v1/messages/{id}/forward.
type ForwardRequest struct {
	To   []string `json:"to"`
	Body string   `json:"body"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	account := accountFrom(r)
	params := pagination.FromQuery(r.URL.Query())

	ctx, cancel := readContext(r)
	defer cancel()

	result, err := s.proxy.List(ctx, account, proxy.ListParams{Limit: params.Limit, Offset: params.Offset})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, ListResponse{
		Messages: result.Messages,
		Total:    result.Total,
		Page:     params.Page,
		Limit:    params.Limit,
		HasNext:  pagination.HasNext(params.Offset, params.Limit, result.Total),
	})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := readContext(r)
	defer cancel()

	msg, err := s.proxy.Get(ctx, accountFrom(r), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, msg)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req DeleteRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			s.writeError(w, err)
			return
		}
	}

	deleted, err := s.proxy.Delete(r.Context(), accountFrom(r), req.IDs)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Read bool `json:"read"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	if err := s.proxy.MarkRead(r.Context(), accountFrom(r), r.PathValue("id"), req.Read); err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]bool{"read": req.Read})
}

func (s *Server) handleStar(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Starred bool `json:"starred"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	if err := s.proxy.ToggleStar(r.Context(), accountFrom(r), r.PathValue("id"), req.Starred); err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]bool{"starred": req.Starred})
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	id, err := s.proxy.Send(r.Context(), accountFrom(r), proxy.SendRequest{
		From:    req.From,
		To:      req.To,
		Cc:      req.Cc,
		Bcc:     req.Bcc,
		Subject: req.Subject,
		Body:    req.Body,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

func (s *Server) handleReply(w http.ResponseWriter, r *http.Request) {
	var req ReplyRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	id, err := s.proxy.Reply(r.Context(), accountFrom(r), r.PathValue("id"), req.Body)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

func (s *Server) handleForward(w http.ResponseWriter, r *http.Request) {
	var req ForwardRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	id, err := s.proxy.Forward(r.Context(), accountFrom(r), r.PathValue("id"), req.To, req.Body)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	params := pagination.FromQuery(r.URL.Query())

	ctx, cancel := readContext(r)
	defer cancel()

	result, err := s.proxy.Search(ctx, accountFrom(r), r.URL.Query().Get("query"),
		proxy.ListParams{Limit: params.Limit, Offset: params.Offset})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, ListResponse{
		Messages: result.Messages,
		Total:    result.Total,
		Page:     params.Page,
		Limit:    params.Limit,
		HasNext:  pagination.HasNext(params.Offset, params.Limit, result.Total),
	})
}

// accountFrom rebuilds the store account from the authenticated context.
// The middleware guarantees presence on every route that reaches here.
func accountFrom(r *http.Request) *store.Account {
	authCtx := auth.MustFromContext(r.Context())
	return &store.Account{
		ID:          authCtx.AccountID,
		Address:     authCtx.Address,
		DisplayName: authCtx.DisplayName,
	}
}

// readContext applies a caller-requested ?timeout= to mutation-free
// handlers, capped so a slow shared store cannot pin connections.
func readContext(r *http.Request) (context.Context, context.CancelFunc) {
	raw := r.URL.Query().Get("timeout")
	if raw == "" {
		return r.Context(), func() {}
	}

	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds <= 0 {
		return r.Context(), func() {}
	}

	timeout := time.Duration(seconds) * time.Second
	if timeout > maxRequestTimeout {
		timeout = maxRequestTimeout
	}
	return context.WithTimeout(r.Context(), timeout)
}
