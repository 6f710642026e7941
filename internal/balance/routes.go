package balance

import "github.com/go-chi/chi/v5"

// MountRoutes attaches the balance endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/customers/{id}/balance", h.CustomerBalance)
	r.Get("/customers/{id}/ledger", h.CustomerLedger)
	r.Post("/customers/{id}/recalculate", h.RecalculateCustomer)
	r.Get("/suppliers/{id}/balance", h.SupplierBalance)
	r.Get("/suppliers/{id}/ledger", h.SupplierLedger)
	r.Post("/suppliers/{id}/recalculate", h.RecalculateSupplier)
}
