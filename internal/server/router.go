package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Routes bundles everything the router dispatches to
type Routes struct {
	Auth           *AuthHandlers
	Bridge         *BridgeHandlers
	Health         http.Handler
	Metrics        http.Handler
	Session        MiddlewareFunc
	CSRF           MiddlewareFunc
	AllowedOrigins []string
}

// NewRouter builds the HTTP surface. Everything under /api and /launch requires a
// session cookie.
func NewRouter(routes Routes) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(NewLoggerMiddleware("http"))
	r.Use(NewRecoverMiddleware("http"))

	r.Method(http.MethodGet, "/health", routes.Health)
	if routes.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", routes.Metrics)
	}

	r.Route("/auth", func(r chi.Router) {
		r.Get("/login", routes.Auth.LoginHandler)
		r.Get("/callback", routes.Auth.CallbackHandler)
		r.With(routes.CSRF).Post("/logout", routes.Auth.LogoutHandler)
	})

	r.Group(func(r chi.Router) {
		r.Use(routes.Session)
		r.Get("/launch", routes.Bridge.LaunchHandler)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(NewCORSMiddleware(routes.AllowedOrigins))
		r.Use(routes.Session)
		r.Use(routes.CSRF)

		r.Get("/session", routes.Bridge.SessionHandler)
		r.Get("/bridge", routes.Bridge.BridgeHandler)
		r.Post("/bridge/refresh", routes.Bridge.RefreshHandler)
		r.Post("/bridge/debug", routes.Bridge.DebugHandler)
		r.Get("/notifications", routes.Bridge.NotificationsHandler)
		r.Get("/notifications/stream", routes.Bridge.NotificationsStreamHandler)
		r.Get("/view", routes.Bridge.ViewHandler)
		r.Put("/view", routes.Bridge.UpdateViewHandler)
		r.Post("/view/toggle-embedded", routes.Bridge.ToggleEmbeddedHandler)
	})

	return r
}
