package purchasing

import "github.com/go-chi/chi/v5"

// MountRoutes attaches the purchase-invoice endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/purchase-invoices", h.PostInvoice)
	r.Get("/purchase-invoices/{id}", h.GetInvoice)
	r.Delete("/purchase-invoices/{id}", h.DeleteInvoice)
}
