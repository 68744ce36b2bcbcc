package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/labstack/echo/v4"

	"github.com/chronicler/mediastore/cmd/mediastore/container"
	apimodels "github.com/chronicler/mediastore/cmd/mediastore/models"
	"github.com/chronicler/mediastore/common/bootstrap"
	"github.com/chronicler/mediastore/common/repository"
	"github.com/chronicler/mediastore/common/validation"
)

// BoxHandler is the operator surface for storage boxes
type BoxHandler struct {
	components *bootstrap.Components
	boxes      *repository.BoxRepository
	validator  *validation.PatchValidator
}

// NewBoxHandler creates a new box handler
func NewBoxHandler(c *container.Container) *BoxHandler {
	return &BoxHandler{
		components: c.Components,
		boxes:      c.BoxRepo,
		validator:  validation.NewPatchValidator(),
	}
}

// ListBoxes returns every registered box
// GET /api/v1/boxes
func (h *BoxHandler) ListBoxes(c echo.Context) error {
	ctx := c.Request().Context()

	boxes, err := h.boxes.ListAll(ctx)
	if err != nil {
		h.components.Logger.Error("failed to list boxes", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "failed to list boxes",
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"boxes": boxes,
		"count": len(boxes),
	})
}

// GetBox returns one box by id
// GET /api/v1/boxes/:id
func (h *BoxHandler) GetBox(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	box, err := h.boxes.GetByID(ctx, id)
	if err != nil {
		h.components.Logger.Error("failed to get box", "box_id", id, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "failed to get box",
		})
	}
	if box == nil {
		return c.JSON(http.StatusNotFound, map[string]interface{}{
			"error": "box not found",
		})
	}

	return c.JSON(http.StatusOK, box)
}

// CreateBox registers a new storage box
// POST /api/v1/boxes
func (h *BoxHandler) CreateBox(c echo.Context) error {
	ctx := c.Request().Context()

	var req apimodels.BoxCreateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "invalid request body",
		})
	}
	if err := req.Validate(); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": err.Error(),
		})
	}

	existing, err := h.boxes.GetByID(ctx, req.ID)
	if err != nil {
		h.components.Logger.Error("failed to check box", "box_id", req.ID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "failed to create box",
		})
	}
	if existing != nil {
		return c.JSON(http.StatusConflict, map[string]interface{}{
			"error": "box already exists",
		})
	}

	box := req.ToModel()
	if err := h.boxes.Create(ctx, box); err != nil {
		h.components.Logger.Error("failed to create box", "box_id", req.ID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "failed to create box",
		})
	}

	h.components.Logger.Info("created storage box",
		"box_id", box.ID,
		"capacity_bytes", box.CapacityBytes,
		"region", box.Region,
	)
	return c.JSON(http.StatusCreated, box)
}

// PatchBox applies an RFC 6902 JSON Patch to a box's editable fields.
// Counters and the id sit outside the patch document, so operations
// against them fail with a path error instead of corrupting accounting.
// PATCH /api/v1/boxes/:id
func (h *BoxHandler) PatchBox(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	patchJSON, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "failed to read request body",
		})
	}

	box, err := h.boxes.GetByID(ctx, id)
	if err != nil {
		h.components.Logger.Error("failed to get box", "box_id", id, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "failed to patch box",
		})
	}
	if box == nil {
		return c.JSON(http.StatusNotFound, map[string]interface{}{
			"error": "box not found",
		})
	}

	var operations []map[string]interface{}
	if err := json.Unmarshal(patchJSON, &operations); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "patch must be a JSON array of operations",
		})
	}
	if err := h.validator.ValidateOperations(operations); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": err.Error(),
		})
	}

	patch, err := jsonpatch.DecodePatch(patchJSON)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "invalid JSON patch",
		})
	}

	docJSON, err := json.Marshal(apimodels.NewBoxPatchDoc(box))
	if err != nil {
		h.components.Logger.Error("failed to marshal patch document", "box_id", id, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "failed to patch box",
		})
	}

	patchedJSON, err := patch.Apply(docJSON)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "failed to apply patch: " + err.Error(),
		})
	}

	var doc apimodels.BoxPatchDoc
	if err := json.Unmarshal(patchedJSON, &doc); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "patched document is not a valid box",
		})
	}
	if err := doc.Validate(); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": err.Error(),
		})
	}

	doc.ApplyTo(box)
	if err := h.boxes.Update(ctx, box); err != nil {
		h.components.Logger.Error("failed to update box", "box_id", id, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "failed to patch box",
		})
	}

	h.components.Logger.Info("patched storage box", "box_id", id, "operations", len(operations))
	return c.JSON(http.StatusOK, box)
}
