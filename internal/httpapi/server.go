package httpapi

import (
	"context"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/MimeLyc/subtitle-studio/internal/jobs"
	"github.com/google/uuid"
)

type Server struct {
	queue      *jobs.Queue
	uploadDir  string
	resultsDir string

	maxUploadBytes     int64
	translationEnabled bool
	newFileID          func() string
	streamInterval     time.Duration

	uiEnabled   bool
	uiStaticDir string

	mux    *http.ServeMux
	server *http.Server
}

type Option func(*Server)

func WithUI(staticDir string, enabled bool) Option {
	return func(s *Server) {
		s.uiStaticDir = staticDir
		s.uiEnabled = enabled
	}
}

// WithMaxUploadBytes caps the request body of /upload.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUploadBytes = n
		}
	}
}

// WithTranslation toggles the /translate endpoint.
func WithTranslation(enabled bool) Option {
	return func(s *Server) {
		s.translationEnabled = enabled
	}
}

// WithStreamInterval sets how often /api/jobs/stream samples the queue.
func WithStreamInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.streamInterval = d
		}
	}
}

func WithFileIDGenerator(fn func() string) Option {
	return func(s *Server) {
		if fn != nil {
			s.newFileID = fn
		}
	}
}

func NewServer(queue *jobs.Queue, uploadDir, resultsDir string, opts ...Option) *Server {
	s := &Server{
		queue:              queue,
		uploadDir:          uploadDir,
		resultsDir:         resultsDir,
		maxUploadBytes:     500 << 20,
		translationEnabled: true,
		newFileID:          uuid.NewString,
		streamInterval:     time.Second,
		mux:                http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/upload", s.handleUpload)
	s.mux.HandleFunc("/translate", s.handleTranslate)
	s.mux.HandleFunc("/status/", s.handleStatus)
	s.mux.HandleFunc("/download/", s.handleDownload)
	s.mux.HandleFunc("/api/jobs", s.handleJobs)
	s.mux.HandleFunc("/api/jobs/stream", s.handleJobStream)
	s.mux.HandleFunc("/", s.handleStatic)
}

func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if !s.uiEnabled || s.uiStaticDir == "" {
		http.NotFound(w, r)
		return
	}

	rel := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
	indexPath := filepath.Join(s.uiStaticDir, "index.html")

	if rel == "" || !strings.Contains(filepath.Base(rel), ".") {
		http.ServeFile(w, r, indexPath)
		return
	}

	filePath := filepath.Join(s.uiStaticDir, rel)
	if _, err := os.Stat(filePath); err != nil {
		// SPA fallback: non-existing static file path returns index
		http.ServeFile(w, r, indexPath)
		return
	}
	http.ServeFile(w, r, filePath)
}
