package handlers

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/zatekoja/inpatient-core/internal/application/services"
	"github.com/zatekoja/inpatient-core/internal/infrastructure/observability"
)

// CacheStatus reports whether the response cache is reachable
type CacheStatus interface {
	Available() bool
}

// MaintenanceHandler serves the operational endpoints
type MaintenanceHandler struct {
	reconciler services.Reconciler
	cache      CacheStatus
	logger     zerolog.Logger
}

// NewMaintenanceHandler creates a new maintenance handler. cache may be nil
// when caching is disabled.
func NewMaintenanceHandler(reconciler services.Reconciler, cache CacheStatus, logger zerolog.Logger) *MaintenanceHandler {
	return &MaintenanceHandler{
		reconciler: reconciler,
		cache:      cache,
		logger:     logger.With().Str("handler", "maintenance").Logger(),
	}
}

// ReconcileBeds handles POST /api/maintenance/reconcile-beds
func (h *MaintenanceHandler) ReconcileBeds(w http.ResponseWriter, r *http.Request) {
	log := observability.LoggerFromContext(r.Context(), h.logger)

	result, err := h.reconciler.ReconcileBeds(r.Context())
	if err != nil && result != nil {
		log.Error().Err(err).Int("repaired", result.RepairedCount).Msg("reconcile incomplete")
		respondWithJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error":  "reconciliation incomplete",
			"result": result,
		})
		return
	}
	if err != nil {
		respondWithAppError(w, log, err)
		return
	}
	log.Info().Int("repaired", result.RepairedCount).
		Int("orphans", len(result.OrphanAdmissionIDs)).
		Msg("reconcile requested")
	respondWithJSON(w, http.StatusOK, result)
}

// Health handles GET /health. The service stays healthy without a cache;
// the body says which mode it is in.
func (h *MaintenanceHandler) Health(w http.ResponseWriter, r *http.Request) {
	cacheState := "disabled"
	if h.cache != nil {
		cacheState = "offline"
		if h.cache.Available() {
			cacheState = "online"
		}
	}
	respondWithJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"cache":  cacheState,
	})
}
