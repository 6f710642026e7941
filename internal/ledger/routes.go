package ledger

import "github.com/go-chi/chi/v5"

// MountRoutes attaches the ledger endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/accounts", h.ListAccounts)
	r.Get("/transactions", h.ListTransactions)
	r.Post("/transactions", h.CreateTransaction)
	r.Get("/transactions/{id}", h.GetTransaction)
	r.Post("/transactions/{id}/reverse", h.Reverse)
}
