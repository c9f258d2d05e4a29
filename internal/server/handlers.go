package server

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/scout/internal/config"
	"github.com/hyperjump/scout/internal/models"
	"github.com/hyperjump/scout/internal/search"
	"github.com/hyperjump/scout/internal/storage"
	"go.uber.org/zap"
)

// Status is the body of GET /api/v1/status.
type Status struct {
	Index          string              `json:"index"`
	Backend        string              `json:"backend"`
	Images         int                 `json:"images"`
	Device         string              `json:"device,omitempty"`
	RerankStrategy string              `json:"rerank_strategy"`
	Dimensions     int                 `json:"embedding_dimensions"`
	DiskUsage      []storage.PathUsage `json:"disk_usage,omitempty"`
	DiskUsageBytes int64               `json:"disk_usage_bytes"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var query models.SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("search request",
		zap.String("query", query.Query),
		zap.Int("top_k", query.TopK),
		zap.Bool("rerank", query.Rerank))
	response, err := s.engine.Run(r.Context(), &query)
	if err != nil {
		status := searchErrorStatus(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error("search failed", zap.Error(err))
		}
		s.respondError(w, status, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

// searchErrorStatus maps query pipeline errors to HTTP status codes.
func searchErrorStatus(err error) int {
	switch {
	case errors.Is(err, search.ErrEmptyQuery):
		return http.StatusBadRequest
	case errors.Is(err, search.ErrQueryEmbedding):
		return http.StatusUnprocessableEntity
	case errors.Is(err, search.ErrRetrieval):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleGetImage(w http.ResponseWriter, r *http.Request) {
	if s.images == nil {
		s.respondError(w, http.StatusNotImplemented, "image serving not enabled")
		return
	}
	id := chi.URLParam(r, "id")
	meta, ok := s.images.Get(id)
	if !ok {
		s.respondError(w, http.StatusNotFound, "image not found")
		return
	}
	path, ok := s.resolvePath(meta.Path)
	if !ok {
		s.respondError(w, http.StatusNotFound, "image not found")
		return
	}
	if _, err := os.Stat(path); err != nil {
		s.logger.Warn("indexed image missing on disk", zap.String("id", id), zap.String("path", path))
		s.respondError(w, http.StatusNotFound, "image file missing")
		return
	}
	http.ServeFile(w, r, path)
}

// resolvePath joins a slash-separated relative path onto the project root and rejects
// paths that would escape it.
func (s *Server) resolvePath(rel string) (string, bool) {
	if rel == "" || filepath.IsAbs(rel) {
		return "", false
	}
	root := s.cfg.ProjectRoot
	path := filepath.Join(root, filepath.FromSlash(rel))
	back, err := filepath.Rel(root, path)
	if err != nil || back == ".." || strings.HasPrefix(back, ".."+string(filepath.Separator)) {
		return "", false
	}
	return path, true
}

type ingestRequest struct {
	Path string `json:"path"`
}

func (s *Server) handleIngestImage(w http.ResponseWriter, r *http.Request) {
	if s.ingester == nil {
		s.respondError(w, http.StatusNotImplemented, "ingestion not enabled")
		return
	}
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	path := req.Path
	if !filepath.IsAbs(path) {
		var ok bool
		if path, ok = s.resolvePath(filepath.ToSlash(path)); !ok {
			s.respondError(w, http.StatusBadRequest, "path must be inside the project root")
			return
		}
	}
	s.logger.Debug("ingest image request", zap.String("path", path))
	stats, err := s.ingester.IngestFile(r.Context(), path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.respondError(w, http.StatusNotFound, "image not found")
			return
		}
		s.logger.Error("ingestion failed", zap.String("path", path), zap.Error(err))
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	status := http.StatusCreated
	if stats.Processed == 0 {
		status = http.StatusOK
	}
	s.respondJSON(w, status, stats)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := BuildStatus(s.cfg, s.images, s.engine.Strategy())
	if err != nil {
		s.logger.Warn("status: disk usage failed", zap.Error(err))
	}
	if s.device != nil {
		st.Device = string(s.device.Device())
	}
	s.respondJSON(w, http.StatusOK, st)
}

// BuildStatus describes the index and local storage. images may be nil. On a disk usage
// error the rest of the status is still returned.
func BuildStatus(cfg *config.Config, images ImageLookup, strategy string) (Status, error) {
	st := Status{
		Index:          cfg.Index.Name,
		Backend:        cfg.Index.Backend,
		RerankStrategy: strategy,
		Dimensions:     cfg.Embedding.Dimensions,
	}
	if images != nil {
		st.Images = images.Len()
	}
	usage, total, err := storage.Usage(map[string]string{
		"snapshot":     cfg.Storage.SnapshotPath,
		"catalog":      cfg.Storage.CatalogPath,
		"memory_index": cfg.Index.MemoryPath,
	})
	if err != nil {
		return st, err
	}
	st.DiskUsage = usage
	st.DiskUsageBytes = total
	return st, nil
}

func (s *Server) handleWatchDirectoriesList(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"directories": s.watch.Directories()})
}

type watchAddRequest struct {
	Path string `json:"path"`
	Sync *bool  `json:"sync,omitempty"`
}

func (s *Server) handleWatchDirectoriesAdd(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	var req watchAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	abs, err := filepath.Abs(req.Path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			s.respondError(w, http.StatusNotFound, "directory not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !info.IsDir() {
		s.respondError(w, http.StatusBadRequest, "path is not a directory")
		return
	}
	syncExisting := true
	if req.Sync != nil {
		syncExisting = *req.Sync
	}
	s.logger.Debug("watch add directory request", zap.String("path", abs), zap.Bool("sync_existing", syncExisting))
	if err := s.watch.AddDirectory(abs, syncExisting); err != nil {
		s.logger.Error("watch add directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusCreated, map[string]string{"path": abs, "status": "added"})
}

func (s *Server) handleWatchDirectoriesRemove(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		var body struct {
			Path string `json:"path"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil && body.Path != "" {
			path = body.Path
		}
	}
	if path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required (query or body)")
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	s.logger.Debug("watch remove directory request", zap.String("path", abs))
	if err := s.watch.RemoveDirectory(abs); err != nil {
		s.logger.Error("watch remove directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusOK, map[string]string{"path": abs, "status": "removed"})
}

func (s *Server) persistWatchDirectories() {
	if s.configPath == "" {
		return
	}
	s.configMu.Lock()
	defer s.configMu.Unlock()
	s.cfg.Watch.Directories = s.watch.Directories()
	if err := config.Save(s.configPath, s.cfg); err != nil {
		s.logger.Warn("failed to persist watch config", zap.Error(err))
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
