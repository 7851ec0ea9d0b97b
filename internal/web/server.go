// Package web serves the browser-facing trading front end.
package web

import (
	"context"
	"embed"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"angelone-web/internal/auth"
	"angelone-web/internal/logging"
	"angelone-web/internal/marketdata"
	"angelone-web/internal/session"
	"angelone-web/internal/stocks"
	"angelone-web/internal/stream"
	"angelone-web/internal/trading"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Config wires the server's collaborators.
type Config struct {
	Addr        string
	Sessions    *session.Manager
	Auth        *auth.Authenticator
	Orders      *trading.Submitter
	Market      *marketdata.Fetcher
	Directory   *stocks.Directory
	Hub         *stream.Hub
	Push        *stream.Server
	NewClient   auth.ClientFactory
	EnvDefaults map[string]string
	FeedURL     string
	Logger      zerolog.Logger
}

// Server is the HTTP front end. Broker clients are constructed per request
// from the session credentials; the only long-lived broker connection is the
// quote feed.
type Server struct {
	addr        string
	sessions    *session.Manager
	auth        *auth.Authenticator
	orders      *trading.Submitter
	market      *marketdata.Fetcher
	directory   *stocks.Directory
	hub         *stream.Hub
	push        *stream.Server
	newClient   auth.ClientFactory
	envDefaults map[string]string
	feedURL     string
	logger      zerolog.Logger
	templates   *template.Template

	feedMu sync.Mutex
	feed   *stream.Feed
}

// NewServer creates the front-end server.
func NewServer(cfg Config) (*Server, error) {
	templates, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	s := &Server{
		addr:        cfg.Addr,
		sessions:    cfg.Sessions,
		auth:        cfg.Auth,
		orders:      cfg.Orders,
		market:      cfg.Market,
		directory:   cfg.Directory,
		hub:         cfg.Hub,
		push:        cfg.Push,
		newClient:   cfg.NewClient,
		envDefaults: cfg.EnvDefaults,
		feedURL:     cfg.FeedURL,
		logger:      cfg.Logger,
		templates:   templates,
	}
	if s.envDefaults == nil {
		s.envDefaults = map[string]string{}
	}
	return s, nil
}

// Routes returns the server's handler.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/dashboard", s.requireLogin(s.handleDashboard))
	mux.HandleFunc("/trading", s.requireLogin(s.handleTrading))
	mux.HandleFunc("/historical", s.requireLogin(s.handleHistorical))
	mux.HandleFunc("/streaming", s.requireLogin(s.handleStreaming))
	mux.HandleFunc("/ws/quotes", s.requireLogin(s.handleQuotes))
	mux.HandleFunc("/logout", s.requireLogin(s.handleLogout))

	static, _ := fs.Sub(staticFS, "static")
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(static))))

	return s.attachRequestLogger(mux)
}

// attachRequestLogger puts a request-scoped logger on the context; handlers
// retrieve it with logging.FromContext.
func (s *Server) attachRequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqLogger := s.logger.With().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Logger()
		next.ServeHTTP(w, r.WithContext(logging.WithLogger(r.Context(), reqLogger)))
	})
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // websocket connections stay open
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.addr).Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.stopFeed()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// requireLogin redirects anonymous requests to the login page.
func (s *Server) requireLogin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := s.sessions.Get(r)
		if !state.LoggedIn {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		next(w, r)
	}
}

func (s *Server) render(w http.ResponseWriter, name string, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		s.logger.Error().Err(err).Str("template", name).Msg("Template execution failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
