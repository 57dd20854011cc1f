package identity

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/rendezvous/rendezvous/internal/platform/auth"
	"github.com/rendezvous/rendezvous/internal/platform/validation"
	"github.com/rendezvous/rendezvous/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/auth/register", h.Register)
	api.POST("/auth/login", h.Login)
	api.GET("/users", h.ListUsers)
	api.GET("/users/me", h.Me)
}

func (h *Handler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	u, err := h.svc.Register(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, u)
}

func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sess, err := h.svc.Login(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sess)
}

func (h *Handler) Me(c echo.Context) error {
	caller := auth.UserIDFromContext(c.Request().Context())
	if caller == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	u, err := h.svc.Me(c.Request().Context(), caller)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, u)
}

// ListUsers searches the directory when q is given and pages through it
// otherwise.
func (h *Handler) ListUsers(c echo.Context) error {
	caller := auth.UserIDFromContext(c.Request().Context())
	if caller == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	if q, ok := c.QueryParams()["q"]; ok {
		limit, _ := strconv.Atoi(c.QueryParam("limit"))
		users, err := h.svc.Search(c.Request().Context(), caller, q[0], limit)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusOK, users)
	}

	pg := pagination.FromContext(c)
	users, total, err := h.svc.List(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	if users == nil {
		users = []*User{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(users, total, pg.Limit, pg.Offset))
}

func httpError(err error) error {
	var fe validation.FieldError
	switch {
	case errors.As(err, &fe):
		return echo.NewHTTPError(http.StatusBadRequest, fe.Error())
	case errors.Is(err, ErrInvalidCredentials):
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid username or password")
	case errors.Is(err, ErrUserNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "user not found")
	case errors.Is(err, ErrUsernameTaken), errors.Is(err, ErrEmailTaken):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrTokensDisabled):
		return echo.NewHTTPError(http.StatusNotImplemented, "login is not available in this auth mode")
	}
	return echo.NewHTTPError(http.StatusServiceUnavailable, "user directory unavailable")
}
