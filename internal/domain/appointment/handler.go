package appointment

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/rendezvous/rendezvous/internal/platform/auth"
	"github.com/rendezvous/rendezvous/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/appointments", h.Create)
	api.GET("/appointments", h.ListReceived)
	api.GET("/appointments/scheduled", h.ListScheduled)
	api.GET("/appointments/all", h.ListAll)
	api.GET("/appointments/:id", h.Get)
	api.PATCH("/appointments/:id", h.Transition)
}

type transitionRequest struct {
	Action string `json:"action"`
}

type transitionResponse struct {
	Message     string       `json:"message"`
	Appointment *Appointment `json:"appointment,omitempty"`
}

var transitionMessages = map[Action]string{
	ActionAccept:  "Appointment accepted successfully",
	ActionDecline: "Appointment declined successfully",
	ActionCancel:  "Appointment canceled successfully",
}

func (h *Handler) Create(c echo.Context) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.Create(c.Request().Context(), caller, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) Get(c echo.Context) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	a, err := h.svc.Get(c.Request().Context(), caller, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Transition(c echo.Context) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req transitionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	action, err := ParseAction(req.Action)
	if err != nil {
		return httpError(err)
	}
	a, err := h.svc.Transition(c.Request().Context(), caller, id, action)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, transitionResponse{Message: transitionMessages[action], Appointment: a})
}

func (h *Handler) ListReceived(c echo.Context) error {
	return h.list(c, h.svc.ListReceived)
}

func (h *Handler) ListScheduled(c echo.Context) error {
	return h.list(c, h.svc.ListScheduled)
}

func (h *Handler) ListAll(c echo.Context) error {
	return h.list(c, h.svc.ListForUser)
}

func (h *Handler) list(c echo.Context, fetch func(ctx context.Context, caller string) ([]*Appointment, error)) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	if u := c.QueryParam("username"); u != "" && !strings.EqualFold(u, caller) {
		return echo.NewHTTPError(http.StatusForbidden, "username does not match the authenticated user")
	}
	bucket, err := ParseBucket(c.QueryParam("bucket"))
	if err != nil {
		return httpError(err)
	}
	items, err := fetch(c.Request().Context(), caller)
	if err != nil {
		return httpError(err)
	}
	items = FilterText(items, c.QueryParam("q"))

	switch bucket {
	case BucketAll:
		return c.JSON(http.StatusOK, h.svc.Partition(items))
	case BucketActionable, BucketExpired:
		items = h.svc.Partition(items).Select(bucket)
	}
	pg := pagination.FromContext(c)
	return c.JSON(http.StatusOK, pagination.NewResponse(pagination.Page(items, pg), len(items), pg.Limit, pg.Offset))
}

func callerFrom(c echo.Context) (string, error) {
	caller := auth.UserIDFromContext(c.Request().Context())
	if caller == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return caller, nil
}

func httpError(err error) error {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return echo.NewHTTPError(http.StatusBadRequest, verr.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Appointment not found")
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrStoreUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "appointment store unavailable")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "Failed to process appointment")
}
