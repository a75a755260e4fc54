package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/men4u/cds/internal/auth"
	"github.com/men4u/cds/internal/classify"
	"github.com/men4u/cds/internal/config"
	"github.com/men4u/cds/internal/handler"
	mw "github.com/men4u/cds/internal/middleware"
	"github.com/men4u/cds/internal/poller"
	"github.com/men4u/cds/internal/session"
	"github.com/men4u/cds/internal/upstream"
	"github.com/men4u/cds/internal/ws"
)

// New creates a Chi router with all application routes wired up.
func New(cfg *config.Config, store session.Store, client *upstream.Client, flow *auth.Flow, manager *poller.Manager, hub *ws.Hub, policy classify.Policy) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// The display frontend is served from another origin during
	// development; the display token travels in headers (or the WS query
	// param), never in cookies.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Auth routes (public; the OTP flow is what produces the token)
	authHandler := handler.NewAuthHandler(flow, cfg.JWTSecret)
	authHandler.RegisterRoutes(r)

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws/outlets/{oid}/orders", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWTSecret, w, r)
	})

	// Protected routes (require a display token AND a live session)
	ordersHandler := handler.NewOrdersHandler(manager, client, store, policy, flow)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret, store))

		outletsHandler := handler.NewOutletsHandler(client, store, flow)
		outletsHandler.RegisterRoutes(r)

		r.Get("/filter", ordersHandler.GetFilter)

		// Outlet-scoped routes
		r.Route("/outlets/{oid}", func(r chi.Router) {
			r.Use(mw.RequireOutlet)
			ordersHandler.RegisterOutletRoutes(r)
		})
	})

	return r
}
