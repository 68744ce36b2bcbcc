package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/chronicler/mediastore/cmd/mediastore/container"
	"github.com/chronicler/mediastore/cmd/mediastore/service"
	"github.com/chronicler/mediastore/common/bootstrap"
	"github.com/chronicler/mediastore/common/hashing"
)

// ArchiveHandler ingests blobs into the store
type ArchiveHandler struct {
	components *bootstrap.Components
	archiver   *service.ArchiveService
}

// NewArchiveHandler creates a new archive handler
func NewArchiveHandler(c *container.Container) *ArchiveHandler {
	return &ArchiveHandler{
		components: c.Components,
		archiver:   c.ArchiveService,
	}
}

// Archive stores one blob and links it to a logical ref. Accepts either a
// multipart form (file, ref_id, region) or a raw body with X-Filename,
// X-Ref-ID and X-Region headers.
// POST /api/v1/archive
func (h *ArchiveHandler) Archive(c echo.Context) error {
	ctx := c.Request().Context()

	req, cleanup, err := h.buildRequest(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": err.Error(),
		})
	}
	if cleanup != nil {
		defer cleanup()
	}

	rec, deduped, err := h.archiver.Archive(ctx, req)
	if err != nil {
		status, msg := archiveStatus(err)
		if status >= http.StatusInternalServerError {
			h.components.Logger.Error("archival failed", "ref_id", req.RefID, "error", err)
		} else {
			h.components.Logger.Warn("archival rejected", "ref_id", req.RefID, "status", status, "error", err)
		}
		return c.JSON(status, map[string]interface{}{
			"error": msg,
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"record":       rec,
		"deduplicated": deduped,
	})
}

// buildRequest extracts the blob stream and its metadata from either
// request shape
func (h *ArchiveHandler) buildRequest(c echo.Context) (service.ArchiveRequest, func(), error) {
	r := c.Request()

	if strings.HasPrefix(r.Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		fh, err := c.FormFile("file")
		if err != nil {
			return service.ArchiveRequest{}, nil, errors.New("multipart request needs a file part")
		}
		f, err := fh.Open()
		if err != nil {
			return service.ArchiveRequest{}, nil, errors.New("failed to open file part")
		}
		return service.ArchiveRequest{
			Reader:       f,
			Filename:     fh.Filename,
			DeclaredMime: fh.Header.Get(echo.HeaderContentType),
			RefID:        c.FormValue("ref_id"),
			Region:       c.FormValue("region"),
			SizeHint:     fh.Size,
		}, func() { f.Close() }, nil
	}

	sizeHint := r.ContentLength
	if sizeHint < 0 {
		sizeHint = 0
	}
	return service.ArchiveRequest{
		Reader:       r.Body,
		Filename:     r.Header.Get("X-Filename"),
		DeclaredMime: r.Header.Get(echo.HeaderContentType),
		RefID:        r.Header.Get("X-Ref-ID"),
		Region:       r.Header.Get("X-Region"),
		SizeHint:     sizeHint,
	}, nil, nil
}

// archiveStatus maps pipeline failures onto response codes
func archiveStatus(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrMissingRef),
		errors.Is(err, service.ErrEmptyBlob):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, hashing.ErrBlobTooLarge):
		return http.StatusRequestEntityTooLarge, "blob exceeds the maximum allowed size"
	case errors.Is(err, service.ErrCapacityExhausted),
		errors.Is(err, service.ErrNoEligibleBox),
		errors.Is(err, service.ErrInsufficientSpace):
		return http.StatusInsufficientStorage, err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout, "reading the upload timed out"
	default:
		return http.StatusInternalServerError, "failed to archive blob"
	}
}
