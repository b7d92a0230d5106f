package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/thinkblock/internal/planservice"
)

// Options configures the API router.
type Options struct {
	// Development exposes error text in 5xx bodies.
	Development bool
	CORSOrigins []string
	// Events, if non-nil, is mounted at GET /projects/{projectID}/events.
	Events http.Handler
}

// NewRouter creates a chi router with all API routes, meant to be mounted
// under /api.
func NewRouter(svc *planservice.Service, opts Options) chi.Router {
	h := NewHandler(svc, opts.Development)

	r := chi.NewRouter()
	r.Use(CORSMiddleware(opts.CORSOrigins))
	r.NotFound(notFound)

	r.Route("/projects", func(r chi.Router) {
		r.Get("/", h.ListProjects)
		r.Post("/", h.CreateProject)

		r.Route("/{projectID}", func(r chi.Router) {
			r.Get("/", h.GetProject)
			r.Put("/", h.UpdateProject)
			r.Delete("/", h.DeleteProject)
			r.Post("/duplicate", h.DuplicateProject)

			// Blocks.
			r.Get("/blocks", h.ListBlocks)
			r.Post("/blocks", h.CreateBlock)
			r.Put("/blocks/{blockID}", h.UpdateBlock)
			r.Delete("/blocks/{blockID}", h.DeleteBlock)

			// Dependencies.
			r.Post("/blocks/{blockID}/dependencies", h.AddDependency)
			r.Delete("/blocks/{blockID}/dependencies/{dependencyID}", h.RemoveDependency)
			r.Get("/dependency-colors", h.DependencyColors)

			// Categories and colors.
			r.Get("/categories", h.Categories)
			r.Put("/categories", h.SetCategories)
			r.Get("/category-colors", h.CategoryColors)
			r.Put("/category-colors", h.SetCategoryColors)
			r.Get("/connection-color-palette", h.ConnectionPalette)
			r.Put("/connection-color-palette", h.SetConnectionPalette)

			// AI.
			r.Post("/ai/generate-blocks", h.GenerateBlocks)
			r.Post("/ai/arrange-blocks", h.ArrangeBlocks)

			// Live updates.
			if opts.Events != nil {
				r.Get("/events", opts.Events.ServeHTTP)
			}
		})
	})

	return r
}
