package blobstore

import (
	"errors"
	"mime"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/rendezvous/rendezvous/internal/platform/auth"
	"github.com/rendezvous/rendezvous/pkg/pagination"
)

// BlobHandler provides Echo HTTP handlers for attachment operations. Any
// authenticated user may read an attachment by id; only its owner may delete it.
type BlobHandler struct {
	store  BlobStore
	logger zerolog.Logger
}

func NewBlobHandler(store BlobStore, logger zerolog.Logger) *BlobHandler {
	return &BlobHandler{store: store, logger: logger.With().Str("component", "blobstore").Logger()}
}

// RegisterRoutes mounts attachment routes on the supplied Echo group.
func (h *BlobHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/attachments", h.handleUpload)
	g.GET("/attachments", h.handleListOwn)
	g.GET("/attachments/:id/meta", h.handleGetMetadata)
	g.GET("/attachments/:id", h.handleDownload)
	g.DELETE("/attachments/:id", h.handleDelete)
}

func (h *BlobHandler) handleUpload(c echo.Context) error {
	owner, err := caller(c)
	if err != nil {
		return err
	}
	file, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}

	src, err := file.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to open uploaded file")
	}
	defer src.Close()

	meta := BlobMetadata{
		Owner:       owner,
		FileName:    file.Filename,
		ContentType: file.Header.Get(echo.HeaderContentType),
	}

	result, err := h.store.Upload(c.Request().Context(), meta, src)
	if err != nil {
		return h.httpError(err)
	}

	h.logger.Info().
		Str("attachment_id", result.ID).
		Str("owner", owner).
		Str("content_type", result.ContentType).
		Int64("size", result.Size).
		Msg("attachment stored")
	return c.JSON(http.StatusCreated, result)
}

func (h *BlobHandler) handleDownload(c echo.Context) error {
	if _, err := caller(c); err != nil {
		return err
	}
	id, err := blobID(c)
	if err != nil {
		return err
	}

	rc, meta, err := h.store.Download(c.Request().Context(), id)
	if err != nil {
		return h.httpError(err)
	}
	defer rc.Close()

	name := meta.FileName
	if name == "" {
		name = meta.ID
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	c.Response().Header().Set("X-Checksum-SHA256", meta.Checksum)
	return c.Stream(http.StatusOK, meta.ContentType, rc)
}

func (h *BlobHandler) handleGetMetadata(c echo.Context) error {
	if _, err := caller(c); err != nil {
		return err
	}
	id, err := blobID(c)
	if err != nil {
		return err
	}

	meta, err := h.store.GetMetadata(c.Request().Context(), id)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, meta)
}

func (h *BlobHandler) handleDelete(c echo.Context) error {
	owner, err := caller(c)
	if err != nil {
		return err
	}
	id, err := blobID(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	meta, err := h.store.GetMetadata(ctx, id)
	if err != nil {
		return h.httpError(err)
	}
	if meta.Owner != owner {
		return echo.NewHTTPError(http.StatusForbidden, "only the owner may delete an attachment")
	}
	if err := h.store.Delete(ctx, id); err != nil {
		return h.httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *BlobHandler) handleListOwn(c echo.Context) error {
	owner, err := caller(c)
	if err != nil {
		return err
	}
	p := pagination.FromContext(c)

	items, total, err := h.store.ListByOwner(c.Request().Context(), owner, p.Limit, p.Offset)
	if err != nil {
		return h.httpError(err)
	}
	if items == nil {
		items = []*BlobMetadata{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, p.Limit, p.Offset))
}

func caller(c echo.Context) (string, error) {
	uid := auth.UserIDFromContext(c.Request().Context())
	if uid == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return uid, nil
}

// blobID rejects malformed ids as not found so the SQL store never sees them.
func blobID(c echo.Context) (string, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return "", echo.NewHTTPError(http.StatusNotFound, ErrBlobNotFound.Error())
	}
	return id.String(), nil
}

func (h *BlobHandler) httpError(err error) error {
	switch {
	case errors.Is(err, ErrBlobNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrFileTooLarge):
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, ErrInvalidContentType):
		return echo.NewHTTPError(http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, ErrEmptyFile), errors.Is(err, ErrMissingOwner):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		h.logger.Error().Err(err).Msg("attachment store failure")
		return echo.NewHTTPError(http.StatusServiceUnavailable, "attachment store unavailable")
	}
}
