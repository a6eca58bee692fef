package routes_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/inpatient-core/internal/adapters/memory"
	"github.com/zatekoja/inpatient-core/internal/api/handlers"
	"github.com/zatekoja/inpatient-core/internal/api/middleware"
	"github.com/zatekoja/inpatient-core/internal/api/routes"
	"github.com/zatekoja/inpatient-core/internal/application/services"
	"github.com/zatekoja/inpatient-core/pkg/config"
)

func newHandler(t *testing.T) http.Handler {
	t.Helper()
	store := memory.NewStore()
	svc := services.NewInpatientService(store.Rooms(), store.Beds(), store.Admissions(), services.NewBedLocker(), zerolog.Nop())

	guard := middleware.NewDebounceGuard(config.DebounceConfig{Delay: time.Minute}, zerolog.Nop())
	router := routes.NewRouter(
		handlers.NewRoomHandler(svc, zerolog.Nop()),
		handlers.NewAdmissionHandler(svc, zerolog.Nop()),
		handlers.NewMaintenanceHandler(svc, nil, zerolog.Nop()),
		routes.Options{Debounce: guard, AllowedOrigins: []string{"*"}},
		zerolog.Nop(),
	)
	return router.SetupRoutes()
}

func TestRouter_DebouncesDuplicateCreates(t *testing.T) {
	h := newHandler(t)

	post := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/rooms", strings.NewReader(`{"room_number":"101"}`))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusCreated, post().Code)
	dup := post()
	assert.Equal(t, http.StatusTooManyRequests, dup.Code)
	assert.Equal(t, "1", dup.Header().Get("Retry-After"))
}

func TestRouter_DistinctWritesOnSamePathPass(t *testing.T) {
	h := newHandler(t)

	send := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	created := send(http.MethodPost, "/api/rooms", `{"room_number":"201","floor":2}`)
	require.Equal(t, http.StatusCreated, created.Code)
	var room struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &room))
	require.Equal(t, http.StatusCreated, send(http.MethodPost, "/api/rooms", `{"room_number":"202","floor":2}`).Code)

	bedsPath := "/api/rooms/" + room.ID + "/beds"
	require.Equal(t, http.StatusCreated, send(http.MethodPost, bedsPath, `{"bed_number":"A"}`).Code)
	require.Equal(t, http.StatusCreated, send(http.MethodPost, bedsPath, `{"bed_number":"B"}`).Code)

	admitA := `{"room_id":"` + room.ID + `","bed_number":"A","patient_id":"p1"}`
	admitB := `{"room_id":"` + room.ID + `","bed_number":"B","patient_id":"p2"}`
	assert.Equal(t, http.StatusCreated, send(http.MethodPost, "/api/admissions", admitA).Code)
	assert.Equal(t, http.StatusCreated, send(http.MethodPost, "/api/admissions", admitB).Code)

	repeat := send(http.MethodPost, "/api/admissions", admitA)
	assert.Equal(t, http.StatusTooManyRequests, repeat.Code)
	assert.Equal(t, "1", repeat.Header().Get("Retry-After"))
}

func TestRouter_HealthIsNotDebounced(t *testing.T) {
	h := newHandler(t)

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}
}

func TestRouter_CORSOnEveryResponse(t *testing.T) {
	h := newHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/rooms/unknown", nil)
	req.Header.Set("Origin", "https://ward.example.org")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	h := newHandler(t)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPatch, "/api/rooms", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
