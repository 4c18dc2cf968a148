package api

import "github.com/gofiber/fiber/v2"

func RegisterRoutes(app *fiber.App, h *Handler) {
	app.Get("/health", h.Health)

	v1 := app.Group("/api/v1")
	v1.Post("/routes", h.GetRoutes)
	v1.Post("/quotes/:quote_id/accept", h.AcceptQuote)
	v1.Get("/transactions", h.ListTransactions)
	v1.Get("/transactions/:id", h.GetTransaction)
	v1.Get("/transactions/:id/stream", h.StreamTransaction)
	v1.Post("/transactions/:id/cancel", h.CancelTransaction)
	v1.Post("/transactions/:id/retry", h.RetryTransaction)
}
