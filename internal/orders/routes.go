package orders

import "github.com/go-chi/chi/v5"

// MountRoutes attaches the order endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/orders", h.ConfirmOrder)
	r.Post("/orders/quote", h.QuoteOrder)
	r.Get("/orders/{id}", h.GetOrder)
}
