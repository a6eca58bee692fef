package handlers

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/zatekoja/inpatient-core/internal/api/middleware"
	"github.com/zatekoja/inpatient-core/internal/application/services"
	"github.com/zatekoja/inpatient-core/internal/domain/entities"
	"github.com/zatekoja/inpatient-core/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/inpatient-core/pkg/errors"
)

// AdmissionHandler handles admission HTTP requests
type AdmissionHandler struct {
	service *services.InpatientService
	logger  zerolog.Logger
}

// NewAdmissionHandler creates a new admission handler
func NewAdmissionHandler(service *services.InpatientService, logger zerolog.Logger) *AdmissionHandler {
	return &AdmissionHandler{
		service: service,
		logger:  logger.With().Str("handler", "admissions").Logger(),
	}
}

// AdmitPatient handles POST /api/admissions
func (h *AdmissionHandler) AdmitPatient(w http.ResponseWriter, r *http.Request) {
	log := observability.LoggerFromContext(r.Context(), h.logger)

	var input services.AdmitInput
	if err := decodeJSON(r, &input); err != nil {
		respondWithAppError(w, log, err)
		return
	}

	admission, err := h.service.AdmitPatient(r.Context(), input)
	if err != nil {
		respondWithAppError(w, log, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, admission)
}

// DischargePatient handles POST /api/admissions/{id}/discharge. When the
// admission was closed but the bed could not be released the response is
// still an error; the next sweep frees the bed.
func (h *AdmissionHandler) DischargePatient(w http.ResponseWriter, r *http.Request) {
	log := observability.LoggerFromContext(r.Context(), h.logger)

	admission, err := h.service.DischargePatient(r.Context(), r.PathValue("id"))
	if err != nil {
		respondWithAppError(w, log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, admission)
}

// ListAdmissions handles GET /api/admissions
func (h *AdmissionHandler) ListAdmissions(w http.ResponseWriter, r *http.Request) {
	log := observability.LoggerFromContext(r.Context(), h.logger)
	q := r.URL.Query()

	query := services.AdmissionQuery{
		Status:    entities.AdmissionStatus(q.Get("status")),
		RoomID:    q.Get("room_id"),
		PatientID: q.Get("patient_id"),
	}
	if query.Status != "" && !query.Status.Valid() {
		respondWithAppError(w, log, apperrors.NewValidationError("unknown admission status "+string(query.Status)))
		return
	}

	page, err := h.service.ListAdmissions(r.Context(), query, middleware.CursorFromRequest(r))
	if err != nil {
		respondWithAppError(w, log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, page)
}
