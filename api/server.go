// Package api exposes the conversation sync service over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/poiesic/aisync/core"
	"github.com/poiesic/aisync/importer"
	"github.com/poiesic/aisync/ingestion"
)

// OrganizationHeader carries the tenant id on every /ai-sync request.
const OrganizationHeader = "X-Organization-ID"

// Conversations is the query side of the ingestion service.
type Conversations interface {
	SearchConversations(ctx context.Context, orgID, query string, opts ingestion.SearchOptions) ([]ingestion.SearchResult, error)
	GetConversations(ctx context.Context, orgID string, opts ingestion.ListOptions) ([]ingestion.AiConversation, error)
	GetConversation(ctx context.Context, orgID, id string) (*ingestion.ConversationDetail, error)
	DeleteConversation(ctx context.Context, orgID, id string) (int, error)
	DeleteBySource(ctx context.Context, orgID string, source core.Source) (int, error)
	GetSummary(ctx context.Context, orgID string) (*ingestion.Summary, error)
}

// Syncer imports raw exports.
type Syncer interface {
	SyncFromJSON(ctx context.Context, orgID string, source core.Source, jsonText string) (*core.SyncResult, error)
}

var (
	_ Conversations = (*ingestion.Service)(nil)
	_ Syncer        = (*importer.Orchestrator)(nil)
)

// Server routes HTTP requests to the sync service.
type Server struct {
	router        *chi.Mux
	addr          string
	conversations Conversations
	syncer        Syncer
	logger        *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithAddr sets the listen address. Default is ":8080".
func WithAddr(addr string) Option {
	return func(s *Server) {
		s.addr = addr
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer builds the router.
func NewServer(conversations Conversations, syncer Syncer, opts ...Option) *Server {
	s := &Server{
		router:        chi.NewRouter(),
		addr:          ":8080",
		conversations: conversations,
		syncer:        syncer,
		logger:        slog.Default().With("component", "api"),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.logRequests)

	s.router.Get("/health", s.health)
	s.router.Route("/ai-sync", func(r chi.Router) {
		r.Use(requireOrganization)
		r.Post("/import", s.importExport)
		r.Post("/search", s.search)
		r.Get("/conversations", s.listConversations)
		r.Get("/conversations/{id}", s.getConversation)
		r.Delete("/conversations/{id}", s.deleteConversation)
		r.Get("/summary", s.summary)
		r.Delete("/source/{source}", s.deleteSource)
	})
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API server starting", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("API server stopped")
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"requestId", middleware.GetReqID(r.Context()))
	})
}

type orgKey struct{}

func requireOrganization(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		orgID := r.Header.Get(OrganizationHeader)
		if orgID == "" {
			writeError(w, http.StatusBadRequest, OrganizationHeader+" header is required")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), orgKey{}, orgID)))
	})
}

func organization(r *http.Request) string {
	orgID, _ := r.Context().Value(orgKey{}).(string)
	return orgID
}
