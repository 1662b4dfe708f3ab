package engine

import "github.com/gofiber/fiber/v2"

// RegisterRoutes mounts the generic CRUD surface. Static sub-routes register
// before the :id wildcard so select-options never parses as an id.
func RegisterRoutes(app *fiber.App, h *Handler) {
	app.Get("/health", h.Health)

	collections := app.Group("/collections")
	collections.Get("/:entity", h.List)
	collections.Get("/:entity/select-options", h.SelectOptions)
	collections.Get("/:entity/:id", h.GetOne)
	collections.Post("/:entity", h.Create)
	collections.Put("/:entity/:id", h.Update)
	collections.Delete("/:entity/:id", h.Delete)

	singles := app.Group("/singles")
	singles.Get("/:entity", h.GetSingle)
	singles.Put("/:entity", h.PutSingle)
	singles.Patch("/:entity", h.PatchSingle)
}
