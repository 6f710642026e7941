package inventory

import "github.com/go-chi/chi/v5"

// MountRoutes attaches the inventory endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/products/{id}", h.GetProduct)
	r.Get("/products/{id}/history", h.History)
	r.Post("/products/{id}/adjust", h.Adjust)
	r.Get("/products/low-stock", h.LowStock)
}
