// Package server exposes the browser session over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/entrhq/pagewalker/pkg/browser"
	"github.com/entrhq/pagewalker/pkg/logging"
)

// Backend is the session the handlers drive. *browser.Manager implements it.
type Backend interface {
	Discover(ctx context.Context, url string) (*browser.Discovery, error)
	Fill(id, value string) (*browser.FillResult, error)
	Click(ctx context.Context, id string, mode browser.ClickMode) (*browser.ClickResult, error)
	ClickHeading(ctx context.Context, id string, mode browser.HeadingMode) (*browser.HeadingResult, error)
	ClickHeadingByKeyword(ctx context.Context, keyword string) (*browser.HeadingResult, error)
	Extract() (*browser.Extraction, error)
	Outline(maxLength int) (*browser.Outline, error)
	Status() browser.Status
	Close() bool
}

// Server routes HTTP requests to a Backend.
type Server struct {
	backend Backend
	metrics *Metrics
	logger  *logging.Logger
	router  chi.Router
}

// New creates a server. metrics may be nil to disable /metrics.
func New(backend Backend, metrics *Metrics, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Nop()
	}
	s := &Server{
		backend: backend,
		metrics: metrics,
		logger:  logger,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	if s.metrics != nil {
		r.Use(s.metrics.instrument)
	}

	r.Post("/get_url_items", s.handleGetURLItems)
	r.Post("/set_input_value", s.handleSetInputValue)
	r.Post("/click_button", s.handleClickButton(browser.ClickModeStatus))
	r.Post("/click_button_and_page_items", s.handleClickButton(browser.ClickModeHeadings))
	r.Post("/click_link", s.handleClickLink(browser.HeadingModeAck))
	r.Post("/click_link_and_page_items", s.handleClickLink(browser.HeadingModeTable))
	r.Post("/click_title_by_keyword", s.handleClickTitleByKeyword)
	r.Post("/extract_table", s.handleExtractTable)
	r.Post("/close_session", s.handleCloseSession)

	r.Get("/session", s.handleSession)
	r.Get("/inspect", s.handleInspect)
	r.Get("/ping", s.handlePing)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	return r
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully within shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Infof("listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		s.logger.Infof("http server stopped")
		return nil
	})
	return g.Wait()
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.With("request_id", middleware.GetReqID(r.Context())).Debugf("%s %s -> %d in %s",
			r.Method, r.URL.Path, ww.Status(), time.Since(start).Round(time.Millisecond))
	})
}

// fail logs err and writes the mapped error response.
func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Errorf("%s failed: %v", op, err)
	} else {
		s.logger.Infof("%s rejected: %v", op, err)
	}
	respondError(w, status, err)
}

func (s *Server) observe(op string, w browser.Warnings) {
	if s.metrics != nil {
		s.metrics.observeWarnings(op, w)
	}
}
