package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/docgen-api/internal/api"
	apiMiddleware "github.com/phrazzld/docgen-api/internal/api/middleware"
)

// setupRouter wires middleware and the documentation routes. When no JWT
// secret is configured the API is served without authentication.
func (app *application) setupRouter() (http.Handler, error) {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(apiMiddleware.NewTraceMiddleware(app.logger))
	r.Use(middleware.Recoverer)

	handler := api.NewDocumentationHandler(app.docService, api.DefaultHandlerConfig(), app.logger)

	var auth *apiMiddleware.AuthMiddleware
	if app.config.Auth.JWTSecret != "" {
		var err error
		auth, err = apiMiddleware.NewAuthMiddleware(app.config.Auth.JWTSecret, app.config.Auth.Issuer, app.logger)
		if err != nil {
			return nil, err
		}
	} else {
		app.logger.Warn("auth.jwt_secret is empty; API authentication is disabled")
	}

	r.Route("/api", func(r chi.Router) {
		if auth != nil {
			r.Use(auth.Authenticate)
		}
		handler.Register(r)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("failed to write health check response", "error", err)
		}
	})

	return r, nil
}
