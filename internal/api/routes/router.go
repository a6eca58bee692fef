package routes

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/zatekoja/inpatient-core/internal/api/handlers"
	"github.com/zatekoja/inpatient-core/internal/api/middleware"
	"github.com/zatekoja/inpatient-core/internal/infrastructure/observability"
)

// Router holds all route handlers
type Router struct {
	mux *http.ServeMux

	roomHandler        *handlers.RoomHandler
	admissionHandler   *handlers.AdmissionHandler
	maintenanceHandler *handlers.MaintenanceHandler

	cacheMiddleware *middleware.CacheMiddleware
	debounce        *middleware.DebounceGuard
	allowedOrigins  []string
	metrics         *observability.Metrics
	logger          zerolog.Logger
}

// Options carries the optional parts of the HTTP stack. Nil members are
// skipped when the chain is built.
type Options struct {
	CacheMiddleware *middleware.CacheMiddleware
	Debounce        *middleware.DebounceGuard
	AllowedOrigins  []string
	Metrics         *observability.Metrics
}

// NewRouter creates a new router
func NewRouter(
	roomHandler *handlers.RoomHandler,
	admissionHandler *handlers.AdmissionHandler,
	maintenanceHandler *handlers.MaintenanceHandler,
	opts Options,
	logger zerolog.Logger,
) *Router {
	return &Router{
		mux:                http.NewServeMux(),
		roomHandler:        roomHandler,
		admissionHandler:   admissionHandler,
		maintenanceHandler: maintenanceHandler,
		cacheMiddleware:    opts.CacheMiddleware,
		debounce:           opts.Debounce,
		allowedOrigins:     opts.AllowedOrigins,
		metrics:            opts.Metrics,
		logger:             logger,
	}
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes() http.Handler {
	r.mux.HandleFunc("GET /health", r.maintenanceHandler.Health)

	// Rooms and beds
	r.mux.HandleFunc("POST /api/rooms", r.roomHandler.CreateRoom)
	r.mux.HandleFunc("GET /api/rooms", r.roomHandler.ListRooms)
	r.mux.HandleFunc("GET /api/rooms/{id}", r.roomHandler.GetRoom)
	r.mux.HandleFunc("DELETE /api/rooms/{id}", r.roomHandler.DeleteRoom)
	r.mux.HandleFunc("POST /api/rooms/{id}/beds", r.roomHandler.AddBed)
	r.mux.HandleFunc("PUT /api/beds/{id}/maintenance", r.roomHandler.SetBedMaintenance)

	// Admissions
	r.mux.HandleFunc("POST /api/admissions", r.admissionHandler.AdmitPatient)
	r.mux.HandleFunc("GET /api/admissions", r.admissionHandler.ListAdmissions)
	r.mux.HandleFunc("POST /api/admissions/{id}/discharge", r.admissionHandler.DischargePatient)

	// Maintenance
	r.mux.HandleFunc("POST /api/maintenance/reconcile-beds", r.maintenanceHandler.ReconcileBeds)

	// Apply middleware in reverse order (last middleware wraps first)
	var handler http.Handler = r.mux

	if r.cacheMiddleware != nil {
		handler = r.cacheMiddleware.Middleware(handler)
	}
	handler = middleware.Pagination(handler)

	// Duplicates are rejected before a cached copy is served
	if r.debounce != nil {
		handler = apiOnly(r.debounce.Middleware, handler)
	}

	handler = middleware.LoggingMiddleware(r.logger)(handler)
	handler = middleware.ObservabilityMiddleware(r.metrics)(handler)

	// CORS wraps everything so headers are set even on cache HITs
	handler = middleware.CORSMiddleware(r.allowedOrigins)(handler)

	return handler
}

// apiOnly applies mw to /api/ paths and lets everything else through
func apiOnly(mw func(http.Handler) http.Handler, next http.Handler) http.Handler {
	wrapped := mw(next)
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if strings.HasPrefix(req.URL.Path, "/api/") {
			wrapped.ServeHTTP(w, req)
			return
		}
		next.ServeHTTP(w, req)
	})
}
