// Package web provides the HTTP surface over the import pipeline and the
// library read side. Handlers stay thin: decode, call a service, encode.
package web

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/akshaychugh/betterreads/internal/auth"
	"github.com/akshaychugh/betterreads/internal/config"
	"github.com/akshaychugh/betterreads/internal/library"
	"github.com/akshaychugh/betterreads/internal/summary"
	mw "github.com/akshaychugh/betterreads/internal/web/middleware"
)

// Pinger is the health-check slice of the database pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP server for the BetterReads backend.
type Server struct {
	cfg      *config.Config
	auth     *auth.Service
	importer *library.Importer
	stats    *library.StatsService
	store    library.Store
	summary  *summary.Client // nil when no API key is configured
	db       Pinger

	router *chi.Mux
	server *http.Server
}

func NewServer(cfg *config.Config, authSvc *auth.Service, importer *library.Importer,
	stats *library.StatsService, store library.Store, summaryClient *summary.Client, db Pinger) *Server {

	s := &Server{
		cfg:      cfg,
		auth:     authSvc,
		importer: importer,
		stats:    stats,
		store:    store,
		summary:  summaryClient,
		db:       db,
		router:   chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	s.router.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))

	s.router.Use(securityHeaders)

	if s.cfg.Rate.Enabled {
		limiter := newRateLimiter(s.cfg.Rate.RequestsPerMinute, time.Minute)
		s.router.Use(limiter.middleware)
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Post("/auth/register", s.handleRegister)
	s.router.Post("/auth/login", s.handleLogin)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(mw.RequireAuth(s.auth))

		r.Post("/verify-csv", s.handleVerifyCSV)
		r.Post("/import-books", s.handleImportBooks)

		r.Get("/shelf-counts", s.handleShelfCounts)
		r.Get("/library-stats", s.handleLibraryStats)
		r.Get("/imported-books", s.handleListBooks)
		r.Get("/recommendations", s.handleRecommendations)
		r.Get("/summary", s.handleSummary)

		r.Delete("/books", s.handleClearBooks)
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router exposes the chi router for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds baseline hardening headers to every response.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// rateLimiter is a token bucket per client IP.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     int
	window   time.Duration
}

type visitor struct {
	tokens    int
	lastReset time.Time
}

func newRateLimiter(rate int, window time.Duration) *rateLimiter {
	rl := &rateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		window:   window,
	}
	go rl.cleanup()
	return rl
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(r.RemoteAddr) {
			respondErrorMessage(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	v, ok := rl.visitors[ip]
	if !ok || now.Sub(v.lastReset) >= rl.window {
		rl.visitors[ip] = &visitor{tokens: rl.rate - 1, lastReset: now}
		return true
	}
	if v.tokens <= 0 {
		return false
	}
	v.tokens--
	return true
}

// cleanup evicts idle visitors so the map does not grow without bound.
func (rl *rateLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		rl.mu.Lock()
		cutoff := time.Now().Add(-2 * rl.window)
		for ip, v := range rl.visitors {
			if v.lastReset.Before(cutoff) {
				delete(rl.visitors, ip)
			}
		}
		rl.mu.Unlock()
	}
}
