package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/chronicler/mediastore/cmd/mediastore/container"
	"github.com/chronicler/mediastore/common/bootstrap"
	"github.com/chronicler/mediastore/common/metrics"
	"github.com/chronicler/mediastore/common/repository"
)

// SystemHandler reports process and storage health
type SystemHandler struct {
	components *bootstrap.Components
	media      *repository.MediaRepository
}

// NewSystemHandler creates a new system handler
func NewSystemHandler(c *container.Container) *SystemHandler {
	return &SystemHandler{
		components: c.Components,
		media:      c.MediaRepo,
	}
}

// SystemHealth returns host info, buffer disk headroom, and sync backlog.
// Disk or backlog probe failures degrade the report instead of failing it,
// so the endpoint stays useful while the parts it watches are broken.
// GET /health/system
func (h *SystemHandler) SystemHealth(c echo.Context) error {
	ctx := c.Request().Context()

	resp := map[string]interface{}{
		"status":  "healthy",
		"service": "mediastore",
		"system":  metrics.GetSystemInfo(),
	}

	usage, err := metrics.CaptureDiskUsage(h.components.Config.Buffer.Dir)
	if err != nil {
		h.components.Logger.Warn("failed to stat buffer volume", "error", err)
		resp["buffer_disk"] = map[string]interface{}{"error": err.Error()}
	} else {
		resp["buffer_disk"] = usage
	}

	depth, err := h.components.Queue.Length(ctx)
	if err != nil {
		h.components.Logger.Warn("failed to read queue depth", "error", err)
		depth = -1
	}
	resp["queue_depth"] = depth

	pending, err := h.media.CountPending(ctx)
	if err != nil {
		h.components.Logger.Warn("failed to count pending records", "error", err)
		pending = -1
	}
	resp["pending_sync"] = pending

	return c.JSON(http.StatusOK, resp)
}
