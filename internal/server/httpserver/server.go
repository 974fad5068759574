// Package httpserver exposes the account service over HTTP/JSON.
package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/and161185/hacking-zone/internal/catalog"
	"github.com/and161185/hacking-zone/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Options tunes the HTTP layer.
type Options struct {
	AllowedOrigins []string
	MaxBodyBytes   int64
	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	TrustProxy     bool
	MinPasswordLen int
	Catalog        *catalog.Catalog
}

// Server holds handler dependencies.
type Server struct {
	auth     service.AuthService
	cat      *catalog.Catalog
	log      *zap.Logger
	opts     Options
	errTable []errorMapping
}

// New constructs a Server. Zero options get defaults.
func New(auth service.AuthService, log *zap.Logger, opts Options) *Server {
	if opts.Catalog == nil {
		opts.Catalog = catalog.Default()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	if opts.MinPasswordLen <= 0 {
		opts.MinPasswordLen = service.DefaultMinPasswordLen
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		auth:     auth,
		cat:      opts.Catalog,
		log:      log,
		opts:     opts,
		errTable: errorTable(opts.MinPasswordLen),
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	if s.opts.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.RequestID)
	r.Use(s.accessLog)
	r.Use(s.recoverer)
	r.Use(cors(s.opts.AllowedOrigins))
	r.Use(middleware.RequestSize(s.opts.MaxBodyBytes))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.health)
		r.Get("/levels", s.levels)
		r.Get("/leaderboard", s.rankings)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", s.signup)
			r.Post("/login", s.login)

			r.Group(func(r chi.Router) {
				r.Use(s.requireAuth)
				r.Get("/me", s.me)
				r.Patch("/update-progress", s.updateProgress)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "Route not found", Code: "NOT_FOUND"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "Method not allowed", Code: "METHOD_NOT_ALLOWED"})
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
