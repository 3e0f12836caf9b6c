package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/saunafleet/fleet-server/internal/config"
	"github.com/saunafleet/fleet-server/internal/middleware"
	"github.com/saunafleet/fleet-server/internal/repository"
	"github.com/saunafleet/fleet-server/internal/service"
)

// Services bundles what the HTTP layer calls into.
type Services struct {
	Store     repository.Store
	Pairing   *service.PairingService
	Devices   *service.DeviceService
	Resolve   *service.ResolveService
	Documents *service.DocumentService
}

type RouterOptions struct {
	AdminAuth      *middleware.AdminAuthMiddleware
	PairingLimiter middleware.Limiter
	PairingLimit   int
	MaxBodyBytes   int64
	IsProduction   bool
}

func NewRouter(svc Services, opts RouterOptions) chi.Router {
	adminAuth := opts.AdminAuth
	if adminAuth == nil {
		adminAuth = middleware.NewAdminAuthMiddleware("")
	}
	limiter := opts.PairingLimiter
	if limiter == nil {
		limiter = middleware.NewRateLimiter()
	}
	pairingLimit := middleware.NewIPRateLimitMiddleware(
		limiter, opts.PairingLimit, config.PairingRateLimitWindow, "pairing",
	)
	bodyLimit := middleware.NewBodyLimitMiddleware(opts.MaxBodyBytes)
	securityHeaders := middleware.NewSecurityHeadersMiddleware(opts.IsProduction)

	pairingHandler := NewPairingHandler(svc.Pairing, adminAuth.Handler, pairingLimit.Handler)
	displayHandler := NewDisplayHandler(svc.Resolve, svc.Devices)
	deviceHandler := NewDeviceHandler(svc.Devices)
	adminHandler := NewAdminHandler(svc.Pairing)
	documentHandler := NewDocumentHandler(svc.Documents)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
	r.Use(bodyLimit.Handler)
	r.Use(securityHeaders.Handler)

	r.Get("/health", Health(svc.Store))

	r.Route("/v1", func(r chi.Router) {
		r.Mount("/pairing", pairingHandler.Routes())
		r.Mount("/display", displayHandler.Routes())

		r.Group(func(r chi.Router) {
			r.Use(adminAuth.Handler)
			r.Mount("/devices", deviceHandler.Routes())
			r.Mount("/admin", adminHandler.Routes())
			r.Mount("/documents", documentHandler.Routes())
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not found", "code": "not-found"})
	})

	return r
}
