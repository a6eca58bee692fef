package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	apperrors "github.com/zatekoja/inpatient-core/pkg/errors"
)

func respondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondWithJSON(w, statusCode, map[string]string{
		"error": message,
	})
}

// respondWithAppError maps a service error onto a status code and body.
// Internal failures are logged and answered without their cause.
func respondWithAppError(w http.ResponseWriter, logger zerolog.Logger, err error) {
	var (
		conflict *apperrors.ConflictError
		cascade  *apperrors.CascadeIntegrityError
		saga     *apperrors.SagaError
		appErr   *apperrors.AppError
	)

	switch {
	case errors.As(err, &conflict):
		respondWithJSON(w, http.StatusConflict, map[string]string{
			"error":    conflict.Reason,
			"entity":   conflict.Entity,
			"entityId": conflict.EntityID,
		})
	case errors.As(err, &cascade):
		logger.Error().Err(err).Str("room_id", cascade.RoomID).Msg("room cascade stopped")
		respondWithJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error":             "room deletion incomplete",
			"failedStep":        cascade.FailedStep,
			"admissionsDeleted": cascade.AdmissionsDeleted,
			"bedsDeleted":       cascade.BedsDeleted,
		})
	case errors.As(err, &saga):
		logger.Error().Err(err).Str("operation", saga.Operation).Msg("saga left partial state")
		respondWithJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error":      saga.Operation + " incomplete",
			"failedStep": saga.Failed,
			"committed":  saga.Committed,
		})
	case errors.As(err, &appErr):
		switch appErr.Type {
		case apperrors.ErrorTypeNotFound:
			respondWithError(w, http.StatusNotFound, appErr.Message)
		case apperrors.ErrorTypeValidation:
			respondWithError(w, http.StatusBadRequest, appErr.Message)
		case apperrors.ErrorTypeRateLimited:
			respondWithError(w, http.StatusTooManyRequests, appErr.Message)
		default:
			logger.Error().Err(err).Msg("request failed")
			respondWithError(w, http.StatusInternalServerError, "internal server error")
		}
	default:
		logger.Error().Err(err).Msg("request failed")
		respondWithError(w, http.StatusInternalServerError, "internal server error")
	}
}

func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperrors.NewValidationError("invalid request body: " + err.Error())
	}
	return nil
}
