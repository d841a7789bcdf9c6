package http

import (
	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(app *fiber.App, h *OrderHandler) {
	api := app.Group("/api/v1")

	orders := api.Group("/orders")
	orders.Post("", h.Create)
	orders.Get("/:id", h.GetByID)
	orders.Get("", h.List)
}
