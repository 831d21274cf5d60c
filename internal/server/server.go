package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"macroind/internal/config"
	"macroind/internal/logger"
	"macroind/internal/models"
	"macroind/internal/normalizer"
	"macroind/internal/selector"
	"macroind/internal/storage"
)

// ErrNotLoaded is returned by queries before a dataset has been loaded
var ErrNotLoaded = errors.New("dataset not loaded")

// CountryResolver resolves typed country names to the classification entry
type CountryResolver interface {
	LookupName(name string) (models.CountryClassification, bool)
}

// Runner executes one normalization batch
type Runner interface {
	Run(ctx context.Context) (normalizer.RunManifest, error)
}

// Server serves read-only queries over one domain's canonical dataset
type Server struct {
	Config  *config.Config
	Domain  *config.DomainConfig
	Storage storage.StorageClient
	Runner  Runner // optional, enables POST /api/normalize

	// Countries is optional; /api/years falls back to it for names typed in another case
	Countries CountryResolver

	selector      atomic.Pointer[selector.Selector]
	generateMutex sync.Mutex
	log           *logger.Logger
}

// NewServer creates a new server instance; runner may be nil
func NewServer(cfg *config.Config, domain *config.DomainConfig, client storage.StorageClient, runner Runner) *Server {
	return &Server{
		Config:  cfg,
		Domain:  domain,
		Storage: client,
		Runner:  runner,
		log:     logger.Component("server"),
	}
}

// Reload reads the canonical dataset from storage and swaps the selector
func (s *Server) Reload(ctx context.Context) error {
	sel, err := selector.Load(ctx, s.Storage, s.Domain.Output)
	if err != nil {
		return err
	}
	s.selector.Store(sel)
	s.log.Info("dataset loaded", logger.Fields{"file": s.Domain.Output, "rows": sel.Len()})
	return nil
}

// SetSelector installs an already built selector
func (s *Server) SetSelector(sel *selector.Selector) {
	s.selector.Store(sel)
}

func (s *Server) current() (*selector.Selector, error) {
	sel := s.selector.Load()
	if sel == nil {
		return nil, ErrNotLoaded
	}
	return sel, nil
}

// Routes configures HTTP routes for the server
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	origins := []string{"*"}
	if s.Config != nil && len(s.Config.CORSOrigins) > 0 {
		origins = s.Config.CORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))

	r.Get("/health", s.HandleHealth)
	r.Get("/files/*", s.HandleFileProxy)

	r.Route("/api", func(r chi.Router) {
		r.Get("/indicators", s.HandleIndicators)
		r.Get("/countries", s.HandleCountries)
		r.Get("/years", s.HandleYears)
		r.Get("/select", s.HandleSelect)
		r.Get("/charts/line", s.HandleLineChart)
		r.Get("/charts/line.png", s.HandleLinePNG)
		r.Get("/charts/bar", s.HandleBarChart)
		r.Get("/charts/pie", s.HandlePieChart)
		r.Get("/charts/dashboard", s.HandleDashboard)
		r.Get("/about", s.HandleAbout)
		r.Get("/download", s.HandleDownload)
		r.Get("/runs", s.HandleListRuns)
		r.Post("/normalize", s.HandleNormalize)
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("request", logger.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"duration":   time.Since(start).String(),
			"request_id": middleware.GetReqID(r.Context()),
		})
	})
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      300 * time.Second, // POST /api/normalize runs a whole batch
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Close cleans up server resources
func (s *Server) Close() error {
	if s.Storage != nil {
		return s.Storage.Close()
	}
	return nil
}
