package handlers

import (
	"encoding/json"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"

	"github.com/chronicler/mediastore/cmd/mediastore/container"
	"github.com/chronicler/mediastore/common/bootstrap"
	"github.com/chronicler/mediastore/common/hashing"
	"github.com/chronicler/mediastore/common/objstore"
	"github.com/chronicler/mediastore/common/repository"
)

// MediaHandler serves stored records and their content
type MediaHandler struct {
	components *bootstrap.Components
	media      *repository.MediaRepository
	boxes      *repository.BoxRepository
	pool       *objstore.Pool
}

// NewMediaHandler creates a new media handler
func NewMediaHandler(c *container.Container) *MediaHandler {
	return &MediaHandler{
		components: c.Components,
		media:      c.MediaRepo,
		boxes:      c.BoxRepo,
		pool:       c.Pool,
	}
}

// GetMedia returns record metadata by content hash. Responses are cached
// briefly; the write path never reads this cache, so dedup correctness
// does not depend on it.
// GET /api/v1/media/:hash
func (h *MediaHandler) GetMedia(c echo.Context) error {
	ctx := c.Request().Context()
	hash := c.Param("hash")

	if !hashing.IsValid(hash) {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "invalid content hash",
		})
	}

	cacheKey := "media:rec:" + hash
	if h.components.Cache != nil {
		if data, ok, err := h.components.Cache.Get(ctx, cacheKey); err == nil && ok {
			return c.JSONBlob(http.StatusOK, data)
		}
	}

	rec, err := h.media.FindByHash(ctx, hash)
	if err != nil {
		h.components.Logger.Error("failed to look up record", "hash", hash, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "failed to look up record",
		})
	}
	if rec == nil {
		return c.JSON(http.StatusNotFound, map[string]interface{}{
			"error": "no record for hash",
		})
	}

	data, err := json.Marshal(rec)
	if err != nil {
		h.components.Logger.Error("failed to marshal record", "hash", hash, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "failed to serialize record",
		})
	}
	if h.components.Cache != nil {
		if err := h.components.Cache.Set(ctx, cacheKey, data, h.components.Config.Cache.TTL); err != nil {
			h.components.Logger.Warn("failed to cache record", "hash", hash, "error", err)
		}
	}

	return c.JSONBlob(http.StatusOK, data)
}

// GetContent streams the stored bytes: from the local buffer while a copy
// is there, from the object store once it is not. Lookups skip the
// metadata cache so a just-synced record is never served a stale path.
// GET /api/v1/media/:hash/content
func (h *MediaHandler) GetContent(c echo.Context) error {
	ctx := c.Request().Context()
	hash := c.Param("hash")

	if !hashing.IsValid(hash) {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "invalid content hash",
		})
	}

	rec, err := h.media.FindByHash(ctx, hash)
	if err != nil {
		h.components.Logger.Error("failed to look up record", "hash", hash, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "failed to look up record",
		})
	}
	if rec == nil {
		return c.JSON(http.StatusNotFound, map[string]interface{}{
			"error": "no record for hash",
		})
	}

	// A completed archival leaves at least one copy; a row with neither
	// is catalog corruption, not a missing object
	if !rec.Servable() {
		h.components.Logger.Error("record has no copy anywhere", "hash", hash)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "content unavailable",
		})
	}

	if rec.LocalPath != nil {
		f, err := os.Open(*rec.LocalPath)
		if err == nil {
			defer f.Close()
			return c.Stream(http.StatusOK, rec.MimeType, f)
		}
		h.components.Logger.Warn("local copy unreadable, serving from object store",
			"hash", hash, "path", *rec.LocalPath, "error", err)
	}

	if rec.StorageBoxID == nil {
		h.components.Logger.Error("record has neither local copy nor storage box", "hash", hash)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "content unavailable",
		})
	}

	box, err := h.boxes.GetByID(ctx, *rec.StorageBoxID)
	if err != nil || box == nil {
		h.components.Logger.Error("failed to load storage box", "hash", hash, "box_id", *rec.StorageBoxID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "content unavailable",
		})
	}

	client, err := h.pool.Client(box)
	if err != nil {
		h.components.Logger.Error("failed to get object store client", "hash", hash, "box_id", box.ID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "content unavailable",
		})
	}

	obj, err := client.Get(ctx, rec.LocationKey)
	if err != nil {
		h.components.Logger.Error("failed to open stored object", "hash", hash, "key", rec.LocationKey, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "content unavailable",
		})
	}
	defer obj.Close()

	return c.Stream(http.StatusOK, rec.MimeType, obj)
}

// ListByRef returns every record linked to one logical ref
// GET /api/v1/media?ref_id=...
func (h *MediaHandler) ListByRef(c echo.Context) error {
	ctx := c.Request().Context()
	refID := c.QueryParam("ref_id")

	if refID == "" {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "ref_id query parameter is required",
		})
	}

	records, err := h.media.ListByLogicalRef(ctx, refID)
	if err != nil {
		h.components.Logger.Error("failed to list records", "ref_id", refID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "failed to list records",
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"records": records,
		"count":   len(records),
	})
}
