package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pbx-admin/internal/config"
	"pbx-admin/internal/fsxml"
	"pbx-admin/internal/tenant"
)

// Services are the backends the router dispatches to.
type Services struct {
	Tenants *tenant.Controller
	// Source answers mod_xml_curl lookups.
	Source fsxml.Source
	DB     Pinger
	// Metrics defaults to the Prometheus default gatherer.
	Metrics http.Handler
}

func NewRouter(cfg *config.Config, svc Services) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(RecoverMiddleware)

	r.Get("/health", HealthHandler(svc.DB))
	r.Get("/version", VersionHandler())

	metricsHandler := svc.Metrics
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	// XML_CURL endpoints
	r.Route("/fs/xml", func(fs chi.Router) {
		fs.Use(XMLCurlBasicAuth(cfg))
		fs.Get("/directory", DirectoryHandler(svc.Source))
		fs.Post("/directory", DirectoryHandler(svc.Source))
		fs.Get("/dialplan", DialplanHandler(svc.Source))
		fs.Post("/dialplan", DialplanHandler(svc.Source))
	})

	// External APIs
	r.Route("/api", func(api chi.Router) {
		if len(cfg.HTTP.CORSOrigins) > 0 {
			api.Use(cors.Handler(cors.Options{
				AllowedOrigins: cfg.HTTP.CORSOrigins,
				AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Content-Type", "X-API-Key"},
				MaxAge:         300,
			}))
		}
		api.Use(APIKeyAuth(cfg))

		limited := func(h http.HandlerFunc) http.Handler {
			if cfg.HTTP.SyncRateLimit <= 0 {
				return h
			}
			return httprate.LimitByIP(cfg.HTTP.SyncRateLimit, time.Minute)(h)
		}

		ctl := svc.Tenants
		api.Get("/tenants", ListTenantsHandler(ctl))
		api.Post("/tenants", CreateTenantHandler(ctl))
		api.Route("/tenants/{id}", func(t chi.Router) {
			t.Get("/", GetTenantHandler(ctl))
			t.Put("/", UpdateTenantHandler(ctl))
			t.Delete("/", DeleteTenantHandler(ctl))
			t.Method(http.MethodPost, "/sync-freeswitch", limited(SyncTenantHandler(ctl)))
			mountChildRoutes(t, ctl)
		})
		api.Method(http.MethodPost, "/test-freeswitch/{tenantId}", limited(DiagnoseTenantHandler(ctl)))
	})

	return r
}
