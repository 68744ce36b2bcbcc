package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/chronicler/mediastore/cmd/mediastore/container"
	"github.com/chronicler/mediastore/cmd/mediastore/handlers"
	"github.com/chronicler/mediastore/common/middleware"
	"github.com/chronicler/mediastore/common/ratelimit"
)

// RegisterArchiveRoutes registers the ingest route
func RegisterArchiveRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewArchiveHandler(c)

	ar := e.Group("/api/v1/archive")
	if c.Components.Config.RateLimit.Enabled && c.Components.Redis != nil {
		limiter := ratelimit.NewRateLimiter(c.Components.Redis.GetUnderlying(), c.Components.Logger)
		ar.Use(middleware.GlobalRateLimitMiddleware(limiter, c.Components.Config.RateLimit.PerMinute))
		ar.Use(middleware.SourceRateLimitMiddleware(limiter))
	}
	{
		ar.POST("", h.Archive) // POST /api/v1/archive (multipart or raw body)
	}
}
