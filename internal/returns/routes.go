package returns

import "github.com/go-chi/chi/v5"

// MountRoutes attaches the return endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/returns/{id}/post", h.Post)
	r.Get("/purchase-invoices/{id}/drift", h.InvoiceDrift)
}
