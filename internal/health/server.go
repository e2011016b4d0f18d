// Package health serves the liveness probe and an optional read-only debug
// API over the bot's in-memory sessions, staging area and journal.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/user/stitchbot/internal/state"
	"github.com/user/stitchbot/internal/types"
)

const bodyOK = "OK"

// Server is the HTTP handler for the health and debug endpoints.
type Server struct {
	sessions *state.Registry
	staging  *state.MediaStore
	journal  types.OutcomeJournal
	mux      *http.ServeMux
}

// Option enables optional routes.
type Option func(*Server)

// WithDebugAPI exposes /api/sessions, /api/staging and /api/outcomes/{user}.
func WithDebugAPI(sessions *state.Registry, staging *state.MediaStore, journal types.OutcomeJournal) Option {
	return func(s *Server) {
		s.sessions = sessions
		s.staging = staging
		s.journal = journal
	}
}

// NewServer creates a health Server.
func NewServer(opts ...Option) *Server {
	s := &Server{mux: http.NewServeMux()}
	for _, opt := range opts {
		opt(s)
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /{$}", s.handleHealth)
	if s.sessions != nil {
		s.mux.HandleFunc("GET /api/sessions", s.handleAPISessions)
		s.mux.HandleFunc("GET /api/staging", s.handleAPIStaging)
		s.mux.HandleFunc("GET /api/outcomes/", s.handleAPIOutcomes)
	}
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("health server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(bodyOK))
}

type sessionResponse struct {
	UserID    string `json:"user_id"`
	Mode      string `json:"mode"`
	Kind      string `json:"kind,omitempty"`
	Files     int    `json:"files"`
	UpdatedAt string `json:"updated_at"`
}

func (s *Server) handleAPISessions(w http.ResponseWriter, r *http.Request) {
	result := make([]sessionResponse, 0, s.sessions.Len())
	for user := range s.sessions.Users() {
		sess, ok := s.sessions.Snapshot(user)
		if !ok {
			continue
		}
		result = append(result, sessionResponse{
			UserID:    user.String(),
			Mode:      string(sess.Mode),
			Kind:      string(sess.Kind),
			Files:     len(sess.Files),
			UpdatedAt: sess.UpdatedAt.Format(time.RFC3339),
		})
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt > result[j].UpdatedAt
	})
	writeJSON(w, result)
}

func (s *Server) handleAPIStaging(w http.ResponseWriter, r *http.Request) {
	dirs, err := s.staging.List()
	if err != nil {
		slog.Error("list staging failed", "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	if dirs == nil {
		dirs = []state.DirInfo{}
	}
	writeJSON(w, dirs)
}

func (s *Server) handleAPIOutcomes(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		http.Error(w, `{"error":"journal not configured"}`, http.StatusServiceUnavailable)
		return
	}
	user, err := types.ParseUserID(strings.TrimPrefix(r.URL.Path, "/api/outcomes/"))
	if err != nil {
		http.Error(w, `{"error":"invalid user id"}`, http.StatusBadRequest)
		return
	}

	limit := 50
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			limit = n
		}
	}

	outcomes, err := s.journal.Tail(r.Context(), user, limit)
	if err != nil {
		slog.Error("tail outcomes failed", "user_id", user.String(), "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	if outcomes == nil {
		outcomes = []*types.Outcome{}
	}
	writeJSON(w, outcomes)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
