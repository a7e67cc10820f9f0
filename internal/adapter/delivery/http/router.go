// Package http exposes the link use case over HTTP: link creation, redirects and click statistics.
package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v2"
	"github.com/go-playground/validator/v10"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/vadimbarashkov/shortlink/docs"
)

const defaultRequestTimeout = 5 * time.Second

// ReservedCodes are path segments routed to fixed endpoints. A link stored under one of them
// could never be resolved, so they must not be handed out as short codes.
var ReservedCodes = []string{"create", "stats", "ping", "docs", "swagger"}

type routerOptions struct {
	baseURL        string
	requestTimeout time.Duration
	allowedOrigins []string
}

type RouterOption func(*routerOptions)

// WithBaseURL sets the public prefix used to build short_url in create responses.
func WithBaseURL(baseURL string) RouterOption {
	return func(o *routerOptions) {
		o.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

func WithRequestTimeout(d time.Duration) RouterOption {
	return func(o *routerOptions) {
		if d > 0 {
			o.requestTimeout = d
		}
	}
}

func WithAllowedOrigins(origins ...string) RouterOption {
	return func(o *routerOptions) {
		o.allowedOrigins = origins
	}
}

// NewRouter initializes a chi router with middleware and the link routes.
func NewRouter(logger *httplog.Logger, linkUseCase linkUseCase, opts ...RouterOption) *chi.Mux {
	o := routerOptions{
		requestTimeout: defaultRequestTimeout,
		allowedOrigins: []string{"*"},
	}

	for _, opt := range opts {
		opt(&o)
	}

	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   o.allowedOrigins,
		AllowedMethods:   []string{"GET", "HEAD", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Accept"},
		AllowCredentials: false,
		MaxAge:           86400,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.CleanPath)
	r.Use(httplog.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(o.requestTimeout))

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/docs/swagger.yml"),
	))

	r.Get("/docs/swagger.yml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		w.Write(docs.Swagger)
	})

	r.Get("/ping", handlePing)

	h := newLinkHandler(linkUseCase, validator.New(), o.baseURL)

	r.Post("/create", h.createLink)
	r.Get("/stats/{shortCode}", h.getLinkStats)
	r.Get("/{shortCode}", h.redirect)
	r.Head("/{shortCode}", h.checkLink)

	return r
}
