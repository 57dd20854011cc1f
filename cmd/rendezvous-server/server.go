package main

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/rendezvous/rendezvous/internal/config"
	"github.com/rendezvous/rendezvous/internal/domain/appointment"
	"github.com/rendezvous/rendezvous/internal/domain/identity"
	"github.com/rendezvous/rendezvous/internal/platform/auth"
	"github.com/rendezvous/rendezvous/internal/platform/blobstore"
	"github.com/rendezvous/rendezvous/internal/platform/db"
	"github.com/rendezvous/rendezvous/internal/platform/middleware"
)

const version = "0.1.0"

// multipartOverhead is the allowance on top of MAX_ATTACHMENT_BYTES for the
// multipart envelope of an upload.
const multipartOverhead = 64 << 10

// newServer assembles the HTTP surface over already opened stores.
func newServer(cfg *config.Config, st *stores, logger zerolog.Logger) (*echo.Echo, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	policy, err := appointment.ParseDeclinePolicy(cfg.DeclinePolicy)
	if err != nil {
		return nil, err
	}

	jwtCfg := auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		SigningKey: []byte(cfg.AuthSigningKey),
		Skipper:    auth.AuthSkipper,
	}
	var tokens *auth.TokenIssuer
	if cfg.AuthSigningKey != "" {
		if tokens, err = auth.NewTokenIssuer(jwtCfg, cfg.TokenTTL); err != nil {
			return nil, err
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", auth.DevUserHeader},
	}))
	e.Use(middleware.BodyLimit("1M", map[string]int64{
		http.MethodPost + " /api/v1/attachments": cfg.MaxAttachmentBytes + multipartOverhead,
	}))

	// Auth middleware
	if cfg.ResolvedAuthMode() == config.AuthModeDevelopment {
		e.Use(auth.DevAuthMiddleware(jwtCfg))
	} else {
		e.Use(auth.JWTMiddleware(jwtCfg))
	}

	apiV1 := e.Group("/api/v1")

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))
	apiV1.Use(middleware.RequestTimeout(cfg.RequestTimeout, nil))
	apiV1.Use(middleware.Audit(logger))

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(st.health))

	// Appointments
	apptSvc := appointment.NewService(st.appointments, logger, appointment.Settings{
		Location:      loc,
		DeclinePolicy: policy,
	})
	appointment.NewHandler(apptSvc).RegisterRoutes(apiV1)

	// User directory
	userSvc := identity.NewService(st.users, tokens, logger, identity.Settings{})
	identity.NewHandler(userSvc).RegisterRoutes(apiV1)

	// Voice-note attachments
	blobstore.NewBlobHandler(st.blobs, logger).RegisterRoutes(apiV1)

	return e, nil
}
