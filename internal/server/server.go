package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/foxseedlab/rockhype/internal/generation"
	"github.com/foxseedlab/rockhype/internal/media"
	"github.com/foxseedlab/rockhype/internal/repository"
	"github.com/foxseedlab/rockhype/internal/session"
	"github.com/foxseedlab/rockhype/internal/transcript"
	"github.com/gorilla/mux"
)

const (
	maxUploadBytes  = 64 << 20
	shutdownTimeout = 10 * time.Second
	startTimeout    = 30 * time.Second
	// generation calls outlive a typical client timeout; video polling takes minutes
	generationTimeout = 15 * time.Minute
)

type Sessions interface {
	Start(ctx context.Context) (string, error)
	Stop(ctx context.Context) error
	Status() session.Status
	Transcript() []transcript.Entry
	LastResult() (session.Result, bool)
}

type Studio interface {
	AlbumCover(ctx context.Context, size generation.ImageSize) (media.Item, error)
	EditImage(ctx context.Context, source generation.Blob, instruction string) (media.Item, error)
	Video(ctx context.Context, prompt string, aspect generation.AspectRatio, seed *generation.Blob) (media.Item, error)
	AnalyzeSong(ctx context.Context, clip generation.Blob, source string) (generation.SongAttributes, error)
}

// Server is the HTTP surface of the app: session control, generation tools,
// the archive, stored media and the event websocket.
type Server struct {
	addr     string
	sessions Sessions
	studio   Studio
	archive  repository.Repository
	store    media.Store
	hub      *Hub
	metrics  http.Handler
	router   *mux.Router
}

func New(addr string, sessions Sessions, st Studio, archive repository.Repository, store media.Store, hub *Hub, metrics http.Handler) *Server {
	s := &Server{
		addr:     addr,
		sessions: sessions,
		studio:   st,
		archive:  archive,
		store:    store,
		hub:      hub,
		metrics:  metrics,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/session/start", s.handleStart).Methods(http.MethodPost)
	api.HandleFunc("/session/stop", s.handleStop).Methods(http.MethodPost)
	api.HandleFunc("/session/transcript", s.handleTranscript).Methods(http.MethodGet)
	api.HandleFunc("/album-cover", s.handleAlbumCover).Methods(http.MethodPost)
	api.HandleFunc("/image/edit", s.handleEditImage).Methods(http.MethodPost)
	api.HandleFunc("/video", s.handleVideo).Methods(http.MethodPost)
	api.HandleFunc("/analyze", s.handleAnalyze).Methods(http.MethodPost)
	api.HandleFunc("/sessions", s.handleListSessions).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", s.handleGetSession).Methods(http.MethodGet)

	r.HandleFunc("/ws/events", s.hub.ServeWS)
	r.HandleFunc("/media/{name}", s.handleMedia).Methods(http.MethodGet, http.MethodHead)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}
	r.Use(logRequests)
	return r
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}
	return nil
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("http request", "method", r.Method, "path", r.URL.Path, "duration_ms", time.Since(started).Milliseconds())
	})
}
