// ABOUTME: HTTP API for the local shared-store stand-in
// ABOUTME: Mailpit-compatible surface: list, get, batch delete, search, send

package devstore

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/2389/mailgate/internal/mailstore"
)

// APIServer exposes the message store over HTTP.
type APIServer struct {
	store  *MessageStore
	logger *slog.Logger
}

// NewAPIServer creates the HTTP API for the given store.
func NewAPIServer(store *MessageStore) *APIServer {
	return &APIServer{
		store:  store,
		logger: slog.Default().With("component", "devstore-api"),
	}
}

// Handler returns the API routes.
func (s *APIServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/messages", s.handleList)
	mux.HandleFunc("DELETE /api/v1/messages", s.handleDelete)
	mux.HandleFunc("GET /api/v1/message/{id}", s.handleGet)
	mux.HandleFunc("GET /api/v1/search", s.handleSearch)
	mux.HandleFunc("POST /api/v1/send", s.handleSend)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

func (s *APIServer) handleList(w http.ResponseWriter, r *http.Request) {
	since := r.URL.Query().Get("since")
	limit := parseLimit(r.URL.Query().Get("limit"))

	messages, err := s.store.ListSince(r.Context(), since, limit)
	if err != nil {
		s.serverError(w, "listing messages", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

func (s *APIServer) handleGet(w http.ResponseWriter, r *http.Request) {
	msg, err := s.store.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, ErrNotFound) {
		http.Error(w, `{"error":"message not found"}`, http.StatusNotFound)
		return
	}
	if err != nil {
		s.serverError(w, "getting message", err)
		return
	}

	writeJSON(w, http.StatusOK, msg)
}

// handleDelete deletes the listed messages. A request without a body (or
// without IDs) clears the entire store, same as the store this imitates.
func (s *APIServer) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"IDs"`
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, `{"error":"reading body"}`, http.StatusBadRequest)
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
			return
		}
	}

	if len(req.IDs) == 0 {
		if err := s.store.DeleteAll(r.Context()); err != nil {
			s.serverError(w, "deleting all messages", err)
			return
		}
	} else {
		if err := s.store.Delete(r.Context(), req.IDs); err != nil {
			s.serverError(w, "deleting messages", err)
			return
		}
	}

	w.WriteHeader(http.StatusOK)
}

func (s *APIServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	if query == "" {
		http.Error(w, `{"error":"missing query parameter"}`, http.StatusBadRequest)
		return
	}
	start := parseLimit(r.URL.Query().Get("start"))
	limit := parseLimit(r.URL.Query().Get("limit"))

	messages, err := s.store.Search(r.Context(), query, start, limit)
	if err != nil {
		s.serverError(w, "searching messages", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

func (s *APIServer) handleSend(w http.ResponseWriter, r *http.Request) {
	var env mailstore.Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if env.From.Address == "" || len(env.To) == 0 {
		http.Error(w, `{"error":"from and to are required"}`, http.StatusBadRequest)
		return
	}

	msg := &mailstore.Message{
		Summary: mailstore.Summary{
			ID:      uuid.NewString(),
			From:    env.From,
			To:      env.To,
			Cc:      env.Cc,
			Bcc:     env.Bcc,
			Subject: env.Subject,
			Created: time.Now().UTC(),
			Size:    int64(len(env.Text) + len(env.HTML)),
			Snippet: makeSnippet(env.Text),
		},
		Text: env.Text,
		HTML: env.HTML,
	}

	if err := s.store.Insert(r.Context(), msg); err != nil {
		s.serverError(w, "storing message", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"ID": msg.ID})
}

func (s *APIServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *APIServer) serverError(w http.ResponseWriter, msg string, err error) {
	s.logger.Error(msg, "error", err)
	http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
}

func parseLimit(raw string) int {
	if raw == "" {
		return 0
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
