package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/chronicler/mediastore/cmd/mediastore/container"
	"github.com/chronicler/mediastore/cmd/mediastore/handlers"
)

// RegisterMediaRoutes registers record lookup and content retrieval routes
func RegisterMediaRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewMediaHandler(c)

	md := e.Group("/api/v1/media")
	{
		md.GET("", h.ListByRef)                 // GET /api/v1/media?ref_id=order-123
		md.GET("/:hash", h.GetMedia)            // GET /api/v1/media/:hash
		md.GET("/:hash/content", h.GetContent)  // GET /api/v1/media/:hash/content
	}
}
