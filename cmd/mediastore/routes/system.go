package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/chronicler/mediastore/cmd/mediastore/container"
	"github.com/chronicler/mediastore/cmd/mediastore/handlers"
)

// RegisterSystemRoutes registers the extended health route
func RegisterSystemRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewSystemHandler(c)

	e.GET("/health/system", h.SystemHealth)
}
