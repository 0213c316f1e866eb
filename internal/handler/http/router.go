package http

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/commercekit/cart-service/internal/service"
	"github.com/commercekit/cart-service/pkg/health"
	"github.com/commercekit/cart-service/pkg/middleware"
)

// NewRouter creates a chi router with all cart service routes registered.
func NewRouter(
	resolver *service.CartResolver,
	healthHandler *health.Handler,
	logger *slog.Logger,
	secureCookies bool,
	pprofCIDRs []string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics("cart"))
	r.Use(middleware.Tracing("cart"))
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// Pprof debug endpoints with IP allowlist.
	middleware.RegisterPprof(r, pprofCIDRs, logger)

	cartHandler := NewCartHandler(resolver, logger, secureCookies)

	r.Route("/api/v1/cart", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Get("/", cartHandler.GetCart)
		r.Delete("/", cartHandler.ClearCart)
		r.Delete("/destroy", cartHandler.DestroyCart)

		r.Post("/items", cartHandler.AddItem)
		r.Delete("/items", cartHandler.RemoveAll)
		r.Put("/items/{key}", cartHandler.UpdateItem)
		r.Delete("/items/{key}", cartHandler.RemoveItem)

		r.Post("/discount", cartHandler.ApplyDiscount)
		r.Delete("/discount", cartHandler.RemoveDiscount)
		r.Put("/delivery", cartHandler.SetDelivery)
		r.Put("/postage", cartHandler.SetPostage)
	})

	return r
}

// ContentTypeJSON enforces that requests with a body have
// Content-Type: application/json.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > 0 || r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			ct := r.Header.Get("Content-Type")
			if ct != "" && !strings.HasPrefix(ct, "application/json") {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnsupportedMediaType)
				_, _ = w.Write([]byte(`{"error":{"code":"UNSUPPORTED_MEDIA_TYPE","message":"Content-Type must be application/json"}}`))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
