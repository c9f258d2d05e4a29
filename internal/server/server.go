// Package server provides the HTTP API for scout.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/scout/internal/config"
	"github.com/hyperjump/scout/internal/embedding"
	"github.com/hyperjump/scout/internal/indexer"
	"github.com/hyperjump/scout/internal/models"
	"github.com/hyperjump/scout/pkg/utils"
	"go.uber.org/zap"
)

// Searcher answers search requests.
type Searcher interface {
	Run(ctx context.Context, q *models.SearchQuery) (*models.SearchResponse, error)
	Strategy() string
}

// ImageLookup resolves image identities to metadata.
type ImageLookup interface {
	Get(id string) (models.ImageMetadata, bool)
	Len() int
}

// FileIngester ingests a single image on request.
type FileIngester interface {
	IngestFile(ctx context.Context, path string) (*indexer.Stats, error)
}

// WatchService manages watched directories at runtime.
type WatchService interface {
	Directories() []string
	AddDirectory(path string, syncExisting bool) error
	RemoveDirectory(path string) error
}

// DeviceReporter reports the inference device of the embedder.
type DeviceReporter interface {
	Device() embedding.Device
}

// Server is the HTTP server for the scout API.
type Server struct {
	engine   Searcher
	images   ImageLookup
	ingester FileIngester
	watch    WatchService
	device   DeviceReporter
	cfg      *config.Config
	// configPath, when set, is where watch directory changes are persisted.
	configPath string
	configMu   sync.Mutex
	logger     *zap.Logger
	server     *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithImages enables image serving and the image count in status.
func WithImages(l ImageLookup) Option {
	return func(s *Server) { s.images = l }
}

// WithIngester enables POST /api/v1/images.
func WithIngester(i FileIngester) Option {
	return func(s *Server) { s.ingester = i }
}

// WithWatch enables the watch directory endpoints. Changes are saved to configPath when it
// is non-empty.
func WithWatch(w WatchService, configPath string) Option {
	return func(s *Server) {
		s.watch = w
		s.configPath = configPath
	}
}

// WithDevice reports the embedder device in status.
func WithDevice(d DeviceReporter) Option {
	return func(s *Server) { s.device = d }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer creates a server that answers queries with engine.
func NewServer(engine Searcher, cfg *config.Config, opts ...Option) *Server {
	s := &Server{engine: engine, cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = utils.OrNop(s.logger)
	return s
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5, "application/json"))

	r.Post("/api/v1/search", s.handleSearch)
	r.Get("/api/v1/images/{id}", s.handleGetImage)
	r.Post("/api/v1/images", s.handleIngestImage)
	r.Get("/api/v1/status", s.handleStatus)
	r.Route("/api/v1/watch/directories", func(r chi.Router) {
		r.Get("/", s.handleWatchDirectoriesList)
		r.Post("/", s.handleWatchDirectoriesAdd)
		r.Delete("/", s.handleWatchDirectoriesRemove)
	})
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
