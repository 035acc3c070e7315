package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/taskconvertai/taskconvert-api/internal/api"
	apiMiddleware "github.com/taskconvertai/taskconvert-api/internal/api/middleware"
)

// setupRouter creates and configures the application router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(apiMiddleware.NewTraceMiddleware(app.logger))
	r.Use(middleware.Recoverer)

	jobHandler := api.NewJobHandler(app.jobService, app.ingester, api.DefaultMaxTaskBodyBytes, app.logger)

	r.Get("/", jobHandler.Health)
	r.Get("/health", jobHandler.Health)

	r.Group(func(r chi.Router) {
		// Without a secret the owner comes from the userID query parameter.
		if app.jwtService != nil {
			r.Use(apiMiddleware.NewAuthMiddleware(app.jwtService).Authenticate)
		}
		jobHandler.RegisterRoutes(r)
	})

	return r
}
