package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	custommiddleware "github.com/mmeshcher/shopper-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api/shopper", func(r chi.Router) {
		r.Use(h.authMiddleware.Middleware)

		r.Get("/batches/active", h.ActiveBatches)
		r.Post("/payments", h.SettlePayment)
		r.Get("/earnings/stats", h.EarningsStats)

		r.Post("/orders/{id}/deliver", h.ConfirmDelivery)
		r.Get("/orders/{id}/invoice", h.GetInvoice)

		r.Get("/wallet", h.GetWallet)
		r.Get("/wallet/transactions", h.GetWalletTransactions)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
