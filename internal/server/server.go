package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ObiAU/newssearch/internal/aggregator"
	"github.com/ObiAU/newssearch/internal/logging"
	"github.com/ObiAU/newssearch/internal/models"
)

const requestTimeout = 3 * time.Minute

type Backend interface {
	Search(ctx context.Context, q models.Query) (*models.QueryResult, error)
	Stats(ctx context.Context) (aggregator.Stats, error)
}

type Server struct {
	backend Backend
	webhook http.Handler
	server  *http.Server
	log     *slog.Logger
}

// New builds the HTTP front end. webhook receives Telegram updates and may
// be nil when the bot is not configured.
func New(port string, backend Backend, webhook http.Handler) *Server {
	s := &Server{
		backend: backend,
		webhook: webhook,
		log:     logging.New("server"),
	}
	s.server = &http.Server{
		Addr:              ":" + port,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/health", s.healthHandler)
	r.Get("/stats", s.statsHandler)
	r.Get("/api/search", s.searchHandler)
	r.Post("/webhook", s.webhookHandler)
	return r
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := s.backend.Stats(r.Context())
	if err != nil {
		s.log.Error("reading stats", "error", err)
		writeError(w, http.StatusInternalServerError, "stats unavailable")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) searchHandler(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.backend.Search(r.Context(), q)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, result)
	case errors.Is(err, models.ErrNoCandidates):
		writeJSON(w, http.StatusNotFound, map[string]any{"error": err.Error(), "result": result})
	case errors.Is(err, models.ErrCancelled):
		writeError(w, http.StatusServiceUnavailable, "search superseded or cancelled")
	default:
		s.log.Error("search failed", "query", q.Text, "error", err)
		writeError(w, http.StatusInternalServerError, "search failed")
	}
}

func (s *Server) webhookHandler(w http.ResponseWriter, r *http.Request) {
	if s.webhook == nil {
		writeError(w, http.StatusNotFound, "telegram bot not configured")
		return
	}
	s.webhook.ServeHTTP(w, r)
}

// parseQuery reads q, limit, since, until, sources, expand and session. since
// and until accept RFC 3339 timestamps or dates; since also takes a lookback
// duration such as "48h". Without a session parameter the client address
// identifies the caller.
func parseQuery(r *http.Request) (models.Query, error) {
	params := r.URL.Query()
	q := models.Query{
		Text:    strings.TrimSpace(params.Get("q")),
		Session: "http:" + sessionOf(r),
	}
	if q.Text == "" {
		return q, errors.New("missing query parameter q")
	}

	if v := params.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 || limit > 50 {
			return q, fmt.Errorf("invalid limit %q", v)
		}
		q.Limit = limit
	}

	var err error
	if v := params.Get("since"); v != "" {
		if d, derr := time.ParseDuration(v); derr == nil {
			q.Since = time.Now().Add(-d)
		} else if q.Since, err = parseTime(v); err != nil {
			return q, fmt.Errorf("invalid since %q", v)
		}
	}
	if v := params.Get("until"); v != "" {
		if q.Until, err = parseTime(v); err != nil {
			return q, fmt.Errorf("invalid until %q", v)
		}
	}

	if v := params.Get("sources"); v != "" {
		for _, src := range strings.Split(v, ",") {
			if src = strings.TrimSpace(src); src != "" {
				q.Sources = append(q.Sources, src)
			}
		}
	}
	if v := params.Get("expand"); v != "" {
		if q.Expand, err = strconv.ParseBool(v); err != nil {
			return q, fmt.Errorf("invalid expand %q", v)
		}
	}
	return q, nil
}

func sessionOf(r *http.Request) string {
	if v := strings.TrimSpace(r.URL.Query().Get("session")); v != "" {
		return v
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func parseTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
