// Package httpapi implements the tenant-facing HTTP API described in spec
// §6.1: session lifecycle, message sending, webhook management, and
// health, wired together with the teacher's chi-based router and
// middleware conventions (internal/api, internal/middleware, cmd/server).
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/shsh-labs/chatgw/internal/config"
	"github.com/shsh-labs/chatgw/internal/httpapi/auth"
	"github.com/shsh-labs/chatgw/internal/httpapi/middleware"
	"github.com/shsh-labs/chatgw/internal/pairing"
	"github.com/shsh-labs/chatgw/internal/registry"
	"github.com/shsh-labs/chatgw/internal/webhook"
)

// Server holds every dependency the HTTP handlers need and owns router
// construction, following the teacher's Handler-struct-plus-RegisterRoutes
// convention (internal/api/handler.go, internal/api/container.go).
type Server struct {
	cfg             *config.Config
	registry        *registry.Registry
	pairingSvc      *pairing.Service
	webhookRegistry *webhook.Registry
	dispatcher      *webhook.Dispatcher
	broker          *broker
	startedAt       time.Time
}

// New wires a Server from its dependencies. The Session Registry is
// constructed after the Server, since its Manager factory closes over the
// Server's broker (as the sessionmgr.EventSink); pass it via SetRegistry
// once built. pairingSvc and dispatcher are expected to already have Run()
// called by the caller (cmd/server/main.go owns process lifetime).
func New(cfg *config.Config, reg *registry.Registry, pairingSvc *pairing.Service, webhookRegistry *webhook.Registry, dispatcher *webhook.Dispatcher) *Server {
	return &Server{
		cfg:             cfg,
		registry:        reg,
		pairingSvc:      pairingSvc,
		webhookRegistry: webhookRegistry,
		dispatcher:      dispatcher,
		broker:          newBroker(pairingSvc, dispatcher),
		startedAt:       time.Now(),
	}
}

// SetRegistry attaches the Session Registry once constructed, breaking the
// Server/Registry construction cycle (the Registry's Manager factory needs
// the Server's broker; the Server's handlers need the Registry).
func (s *Server) SetRegistry(reg *registry.Registry) { s.registry = reg }

// Broker returns the Server's event sink, which implements
// sessionmgr.EventSink. cmd/server/main.go passes it into every tenant's
// sessionmgr.Config.Sink.
func (s *Server) Broker() *broker { return s.broker }

func tenantIDFromPath(r *http.Request) string {
	return chi.URLParam(r, "tenantId")
}

// Router builds the full chi router: global middleware, health, and every
// tenant-facing route group from spec §6.1.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(s.cfg.AllowedOrigins))

	r.Get("/health", s.health)
	r.Handle("/uploads/*", s.uploadsHandler())

	authCfg := auth.Config{
		APIKey:       s.cfg.APIKey,
		JWTSecret:    s.cfg.JWTSecret,
		RequireAuth:  s.cfg.RequireAuth,
		PathTenantID: tenantIDFromPath,
	}

	rateLimiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
		Window:      s.cfg.RateLimit.Window,
		MaxRequests: s.cfg.RateLimit.MaxRequest,
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.Middleware(authCfg))
		r.Use(auth.RequireTenantMatch(tenantIDFromPath))
		r.Use(rateLimiter.Middleware(tenantIDFromPath))

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/active", s.activeSessions)
			r.Post("/{tenantId}/start", s.startSession)
			r.Get("/{tenantId}/status", s.sessionStatus)
			r.Get("/{tenantId}/qr", s.sessionQR)
			r.Delete("/{tenantId}", s.deleteSession)
			r.Post("/{tenantId}/restart", s.restartSession)
			r.Get("/{tenantId}/poll", s.pollSession)
		})

		r.Route("/messages", func(r chi.Router) {
			r.Post("/{tenantId}/send", s.sendMessage)
			r.Post("/{tenantId}/send-media", s.sendMediaMessage)
			r.Post("/{tenantId}/send-bulk", s.sendBulkMessages)
		})

		r.Route("/webhooks", func(r chi.Router) {
			r.Post("/register/{tenantId}", s.registerWebhook)
			r.Get("/list/{tenantId}", s.listWebhooks)
			r.Delete("/{tenantId}/{webhookId}", s.deleteWebhook)
			r.Post("/test/{tenantId}/{webhookId}", s.testWebhook)
			r.Get("/stats/{tenantId}", s.webhookStats)
		})
	})

	return r
}
