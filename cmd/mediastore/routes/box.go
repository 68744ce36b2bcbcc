package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/chronicler/mediastore/cmd/mediastore/container"
	"github.com/chronicler/mediastore/cmd/mediastore/handlers"
)

// RegisterBoxRoutes registers the storage box operator routes
func RegisterBoxRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewBoxHandler(c)

	bx := e.Group("/api/v1/boxes")
	{
		bx.GET("", h.ListBoxes)        // GET /api/v1/boxes
		bx.GET("/:id", h.GetBox)       // GET /api/v1/boxes/box-eu-1
		bx.POST("", h.CreateBox)       // POST /api/v1/boxes
		bx.PATCH("/:id", h.PatchBox)   // PATCH /api/v1/boxes/box-eu-1 (RFC 6902)
	}
}
