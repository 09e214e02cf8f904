// Package http implements the REST API the learning front-end talks
// to: login, navigation, words, progress, drills, quizzes, feynman
// practice, and settings.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/qiaomu-learn/qiaomu/internal/application/auth"
	"github.com/qiaomu-learn/qiaomu/internal/application/drill"
	"github.com/qiaomu-learn/qiaomu/internal/application/feynman"
	"github.com/qiaomu-learn/qiaomu/internal/application/navigation"
	appprogress "github.com/qiaomu-learn/qiaomu/internal/application/progress"
	"github.com/qiaomu-learn/qiaomu/internal/application/quiz"
	"github.com/qiaomu-learn/qiaomu/internal/application/settings"
	"github.com/qiaomu-learn/qiaomu/internal/application/words"
	domdrill "github.com/qiaomu-learn/qiaomu/internal/domain/drill"
	"github.com/qiaomu-learn/qiaomu/internal/interface/http/handlers"
	"github.com/qiaomu-learn/qiaomu/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config tunes the HTTP listener and its cross-cutting behavior.
type Config struct {
	Host           string
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int

	EnableCORS     bool
	AllowedOrigins []string

	// RateLimitPerMinute caps requests per client IP. Zero disables
	// the limiter entirely.
	RateLimitPerMinute int
}

// DefaultConfig returns production-ready listener settings.
func DefaultConfig() Config {
	return Config{
		Host:               "0.0.0.0",
		Port:               8080,
		ReadTimeout:        15 * time.Second,
		WriteTimeout:       15 * time.Second,
		IdleTimeout:        60 * time.Second,
		MaxHeaderBytes:     1 << 20,
		EnableCORS:         true,
		AllowedOrigins:     []string{"*"},
		RateLimitPerMinute: 100,
	}
}

// Address formats the host:port pair the server binds to.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Dependencies carries every service the handlers call into.
type Dependencies struct {
	Auth       *auth.Service
	Navigation *navigation.Service
	Words      *words.Service
	Progress   *appprogress.Service
	Drill      *drill.Service
	Quiz       *quiz.Service
	Feynman    *feynman.Service
	Settings   *settings.Service

	// HealthChecker is optional; without one /health reports a basic
	// uptime response.
	HealthChecker handlers.HealthChecker

	// DrillDefaults seed new drill sessions; zero means the built-in
	// defaults.
	DrillDefaults domdrill.Config

	Logger *logger.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server owns the listener, the route table, and the middleware stack.
type Server struct {
	config     Config
	deps       Dependencies
	httpServer *http.Server
	router     *http.ServeMux
	logger     *logger.Logger
	limiter    *rateLimiter

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer wires routes and middleware from config and deps. The
// middleware stack is fixed at construction time.
func NewServer(config Config, deps Dependencies) *Server {
	s := &Server{
		config: config,
		deps:   deps,
		router: http.NewServeMux(),
		logger: deps.Logger,
	}
	if s.logger == nil {
		s.logger = logger.Default()
	}
	if config.RateLimitPerMinute > 0 {
		s.limiter = newRateLimiter(config.RateLimitPerMinute, time.Minute)
	}

	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:           config.Address(),
		Handler:        s.wrap(s.router),
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}
	return s
}

// ──────────────────────────────────────────────────────────────────────────────
// Routes
// ──────────────────────────────────────────────────────────────────────────────

func (s *Server) registerRoutes() {
	// Health and status
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /healthz", s.handleHealth) // Kubernetes alias
	s.router.HandleFunc("GET /", s.handleRoot)

	// Auth
	s.router.HandleFunc("POST /api/v1/auth/login", s.handleLogin)
	s.router.HandleFunc("POST /api/v1/auth/logout", s.handleLogout)
	s.router.HandleFunc("POST /api/v1/auth/refresh", s.handleRefresh)
	s.router.HandleFunc("GET /api/v1/auth/session", s.handleSession)

	// Navigation
	s.router.HandleFunc("GET /api/v1/nav/modules", s.handleListModules)
	s.router.HandleFunc("GET /api/v1/nav/state", s.handleNavState)
	s.router.HandleFunc("POST /api/v1/nav/navigate", s.handleNavigate)
	s.router.HandleFunc("POST /api/v1/nav/back", s.handleGoBack)
	s.router.HandleFunc("POST /api/v1/nav/home", s.handleResetHome)
	s.router.HandleFunc("GET /api/v1/nav/audit", s.handleNavAudit)

	// Words
	s.router.HandleFunc("GET /api/v1/words", s.handleListWords)
	s.router.HandleFunc("GET /api/v1/words/{text}", s.handleGetWord)
	s.router.HandleFunc("POST /api/v1/words/{text}/learn", s.handleLearnWord)
	s.router.HandleFunc("POST /api/v1/words/import", s.handleImportWords)

	// Progress
	s.router.HandleFunc("GET /api/v1/progress", s.handleGetProgress)
	s.router.HandleFunc("GET /api/v1/progress/summary", s.handleGetSummary)
	s.router.HandleFunc("GET /api/v1/progress/chart", s.handleGetChart)
	s.router.HandleFunc("POST /api/v1/progress/activity", s.handleRecordActivity)
	s.router.HandleFunc("POST /api/v1/progress/study-time", s.handleRecordStudyTime)
	s.router.HandleFunc("PUT /api/v1/progress/goals", s.handleSetGoals)
	s.router.HandleFunc("POST /api/v1/progress/reset", s.handleResetProgress)
	s.router.HandleFunc("GET /api/v1/progress/export", s.handleExportProgress)
	s.router.HandleFunc("POST /api/v1/progress/import", s.handleImportProgress)

	// Force drill
	s.router.HandleFunc("POST /api/v1/drill/start", s.handleDrillStart)
	s.router.HandleFunc("GET /api/v1/drill/{id}", s.handleDrillState)
	s.router.HandleFunc("POST /api/v1/drill/{id}/skip", s.handleDrillSkip)
	s.router.HandleFunc("POST /api/v1/drill/{id}/answer", s.handleDrillAnswer)
	s.router.HandleFunc("POST /api/v1/drill/{id}/pause", s.handleDrillPause)
	s.router.HandleFunc("POST /api/v1/drill/{id}/resume", s.handleDrillResume)
	s.router.HandleFunc("POST /api/v1/drill/{id}/abort", s.handleDrillAbort)

	// Quiz
	s.router.HandleFunc("POST /api/v1/quiz/start", s.handleQuizStart)
	s.router.HandleFunc("POST /api/v1/quiz/{id}/answer", s.handleQuizAnswer)
	s.router.HandleFunc("POST /api/v1/quiz/{id}/finish", s.handleQuizFinish)

	// Feynman
	s.router.HandleFunc("GET /api/v1/feynman/word", s.handleFeynmanWord)
	s.router.HandleFunc("POST /api/v1/feynman/hint", s.handleFeynmanHint)
	s.router.HandleFunc("POST /api/v1/feynman/submit", s.handleFeynmanSubmit)
	s.router.HandleFunc("GET /api/v1/feynman/history", s.handleFeynmanHistory)

	// Settings
	s.router.HandleFunc("GET /api/v1/settings", s.handleGetSettings)
	s.router.HandleFunc("PATCH /api/v1/settings", s.handleUpdateSettings)
	s.router.HandleFunc("POST /api/v1/settings/reset", s.handleResetSettings)
}

// ──────────────────────────────────────────────────────────────────────────────
// Middleware
// ──────────────────────────────────────────────────────────────────────────────

// wrap layers the middleware stack around the router. Request ID
// assignment runs innermost so every later layer can log it; the rate
// limiter runs outermost so rejected requests cost almost nothing.
func (s *Server) wrap(handler http.Handler) http.Handler {
	h := s.withRequestID(handler)
	h = s.withLogging(h)
	h = s.withRecovery(h)
	if s.config.EnableCORS {
		h = s.withCORS(h)
	}
	if s.limiter != nil {
		h = s.withRateLimit(h)
	}
	return h
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = newRequestID()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyRequestID, id)))
	})
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		s.logger.Info("http request",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", rec.status),
			logger.Int64("duration_ms", time.Since(start).Milliseconds()),
			logger.String("ip", clientIP(r)),
			logger.String("request_id", requestIDFrom(r.Context())),
		)
	})
}

func (s *Server) withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				s.logger.Error("panic recovered",
					logger.Any("error", v),
					logger.String("stack", string(debug.Stack())),
					logger.String("path", r.URL.Path),
					logger.String("request_id", requestIDFrom(r.Context())),
				)
				writeJSONError(w, http.StatusInternalServerError, "internal_server_error", "An unexpected error occurred")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Session-ID, X-Request-ID")
			w.Header().Set("Access-Control-Max-Age", "86400")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	for _, o := range s.config.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow(clientIP(r)) {
			w.Header().Set("Retry-After", "60")
			writeJSONError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "Too many requests, please try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ──────────────────────────────────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────────────────────────────────

// Start blocks serving requests until Shutdown or a listener error.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", logger.String("address", s.config.Address()))

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// StartAsync serves in a goroutine, reporting failure on the channel.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// IsRunning reports whether Start has been called and not yet shut down.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Uptime reports time since Start, or zero when stopped.
func (s *Server) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return 0
	}
	return time.Since(s.startedAt)
}

// Address returns the configured bind address.
func (s *Server) Address() string {
	return s.config.Address()
}

// Handler exposes the fully wrapped handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE ENVELOPE
// ══════════════════════════════════════════════════════════════════════════════

// JSONResponse is the envelope every endpoint replies with.
type JSONResponse struct {
	Success   bool          `json:"success"`
	Data      interface{}   `json:"data,omitempty"`
	Error     *APIError     `json:"error,omitempty"`
	Meta      *ResponseMeta `json:"meta,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
}

// APIError is the machine-readable error half of the envelope.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ResponseMeta stamps each response.
type ResponseMeta struct {
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(JSONResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
		Meta: &ResponseMeta{
			Timestamp: time.Now().UTC(),
			Version:   "v1",
		},
	})
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(JSONResponse{
		Success: false,
		Error:   &APIError{Code: code, Message: message},
		Meta:    &ResponseMeta{Timestamp: time.Now().UTC()},
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

type contextKey string

const ctxKeyRequestID contextKey = "request_id"

// statusRecorder captures the status code for the access log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// clientIP resolves the caller's address, trusting proxy headers when
// present. The first X-Forwarded-For hop wins.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		addr = addr[:idx]
	}
	return addr
}

func requestIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKeyRequestID).(string); ok {
		return id
	}
	return ""
}

func newRequestID() string {
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), time.Now().Nanosecond()%1000)
}

// getQueryParam reads a query parameter, falling back to defaultValue.
func getQueryParam(r *http.Request, key, defaultValue string) string {
	if v := r.URL.Query().Get(key); v != "" {
		return v
	}
	return defaultValue
}

// getQueryParamInt reads an integer query parameter, falling back to
// defaultValue on absence or parse failure.
func getQueryParamInt(r *http.Request, key string, defaultValue int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultValue
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return defaultValue
	}
	return n
}

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER
// ══════════════════════════════════════════════════════════════════════════════

// rateLimiter counts requests per key over a sliding window. A
// background sweep drops idle keys so the map cannot grow forever.
type rateLimiter struct {
	mu     sync.Mutex
	hits   map[string][]time.Time
	limit  int
	window time.Duration
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	rl := &rateLimiter{
		hits:   make(map[string][]time.Time),
		limit:  limit,
		window: window,
	}
	go rl.sweep()
	return rl
}

// Allow records a hit for key and reports whether it stays under the
// limit within the window.
func (rl *rateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	recent := trimBefore(rl.hits[key], now.Add(-rl.window))

	if len(recent) >= rl.limit {
		rl.hits[key] = recent
		return false
	}
	rl.hits[key] = append(recent, now)
	return true
}

func (rl *rateLimiter) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		cutoff := time.Now().Add(-rl.window)
		rl.mu.Lock()
		for key, stamps := range rl.hits {
			recent := trimBefore(stamps, cutoff)
			if len(recent) == 0 {
				delete(rl.hits, key)
			} else {
				rl.hits[key] = recent
			}
		}
		rl.mu.Unlock()
	}
}

func trimBefore(stamps []time.Time, cutoff time.Time) []time.Time {
	var recent []time.Time
	for _, t := range stamps {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	return recent
}
