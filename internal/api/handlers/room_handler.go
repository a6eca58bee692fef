package handlers

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/zatekoja/inpatient-core/internal/api/middleware"
	"github.com/zatekoja/inpatient-core/internal/application/services"
	"github.com/zatekoja/inpatient-core/internal/domain/repositories"
	"github.com/zatekoja/inpatient-core/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/inpatient-core/pkg/errors"
)

// RoomHandler handles room and bed HTTP requests
type RoomHandler struct {
	service *services.InpatientService
	logger  zerolog.Logger
}

// NewRoomHandler creates a new room handler
func NewRoomHandler(service *services.InpatientService, logger zerolog.Logger) *RoomHandler {
	return &RoomHandler{
		service: service,
		logger:  logger.With().Str("handler", "rooms").Logger(),
	}
}

// CreateRoom handles POST /api/rooms
func (h *RoomHandler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var input services.CreateRoomInput
	if err := decodeJSON(r, &input); err != nil {
		respondWithAppError(w, h.log(r), err)
		return
	}

	room, err := h.service.CreateRoom(r.Context(), input)
	if err != nil {
		respondWithAppError(w, h.log(r), err)
		return
	}
	respondWithJSON(w, http.StatusCreated, room)
}

// ListRooms handles GET /api/rooms
func (h *RoomHandler) ListRooms(w http.ResponseWriter, r *http.Request) {
	filter := repositories.RoomFilter{
		RoomType: r.URL.Query().Get("type"),
	}
	if raw := r.URL.Query().Get("floor"); raw != "" {
		floor, err := strconv.Atoi(raw)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "floor must be an integer")
			return
		}
		filter.Floor = &floor
	}

	page, err := h.service.ListRooms(r.Context(), filter, middleware.PageFromRequest(r))
	if err != nil {
		respondWithAppError(w, h.log(r), err)
		return
	}
	respondWithJSON(w, http.StatusOK, page)
}

// GetRoom handles GET /api/rooms/{id}
func (h *RoomHandler) GetRoom(w http.ResponseWriter, r *http.Request) {
	room, err := h.service.GetRoom(r.Context(), r.PathValue("id"))
	if err != nil {
		respondWithAppError(w, h.log(r), err)
		return
	}
	respondWithJSON(w, http.StatusOK, room)
}

// DeleteRoom handles DELETE /api/rooms/{id}
func (h *RoomHandler) DeleteRoom(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.DeleteRoom(r.Context(), r.PathValue("id"))
	if err != nil {
		respondWithAppError(w, h.log(r), err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

// AddBed handles POST /api/rooms/{id}/beds
func (h *RoomHandler) AddBed(w http.ResponseWriter, r *http.Request) {
	var input services.AddBedInput
	if err := decodeJSON(r, &input); err != nil {
		respondWithAppError(w, h.log(r), err)
		return
	}

	bed, err := h.service.AddBed(r.Context(), r.PathValue("id"), input)
	if err != nil {
		respondWithAppError(w, h.log(r), err)
		return
	}
	respondWithJSON(w, http.StatusCreated, bed)
}

type maintenanceRequest struct {
	Maintenance *bool `json:"maintenance"`
}

// SetBedMaintenance handles PUT /api/beds/{id}/maintenance
func (h *RoomHandler) SetBedMaintenance(w http.ResponseWriter, r *http.Request) {
	var req maintenanceRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithAppError(w, h.log(r), err)
		return
	}
	if req.Maintenance == nil {
		respondWithAppError(w, h.log(r), apperrors.NewValidationError("maintenance is required"))
		return
	}

	bed, err := h.service.SetBedMaintenance(r.Context(), r.PathValue("id"), *req.Maintenance)
	if err != nil {
		respondWithAppError(w, h.log(r), err)
		return
	}
	respondWithJSON(w, http.StatusOK, bed)
}

func (h *RoomHandler) log(r *http.Request) zerolog.Logger {
	return observability.LoggerFromContext(r.Context(), h.logger)
}
