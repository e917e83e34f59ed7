/**
 * @description
 * This file sets up the HTTP router for the transfer-service. It defines the
 * API endpoints, associates them with their corresponding handlers, and applies
 * the authentication middleware for each route group.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// TransferRoutes creates and returns the router for the transfer service.
func TransferRoutes(h *TransferHandlers, jwksURL string, internalKey string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Server-to-server routes guarded by the shared internal API key.
	r.Route("/internal/transfers", func(r chi.Router) {
		r.Use(InternalAuthMiddleware(internalKey))
		r.Post("/{id}/status", h.OverrideStatusHandler)
	})

	// Group routes that require authentication.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwksURL))

		r.Post("/transfers/simple", h.SimpleTransferHandler)
		r.Post("/transfers/bulk", h.BulkTransferHandler)
		r.Post("/transfers/recurring", h.RecurringTransferHandler)

		r.Post("/transfers/{id}/verify", h.VerifyTransferHandler)
		r.Post("/transfers/{id}/resend-code", h.ResendCodeHandler)
		r.Post("/transfers/{id}/cancel", h.CancelTransferHandler)

		r.Get("/transfers", h.ListTransfersHandler)
		r.Get("/transfers/{id}", h.GetTransferHandler)

		r.Get("/accounts/{id}/ledger", h.AccountLedgerHandler)
	})

	return r
}
