package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/joycewetu0805/wigvival/libs/auth"
	"github.com/joycewetu0805/wigvival/services/booking-service/internal/model"
	"github.com/joycewetu0805/wigvival/services/booking-service/internal/reservation"
	"github.com/joycewetu0805/wigvival/services/booking-service/internal/storage"
	"github.com/joycewetu0805/wigvival/services/booking-service/internal/storage/memstore"
	"github.com/stretchr/testify/require"
)

const adminSecret = "admin-secret"

type testServer struct {
	mux     *http.ServeMux
	store   *memstore.Store
	service string
}

func newTestServer(t *testing.T, opts ...memstore.Option) *testServer {
	t.Helper()
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	store := memstore.New(opts...)
	svc := reservation.New(store, reservation.Config{MaxAttempts: 2, RetryInitial: time.Millisecond, RetryMax: time.Millisecond},
		reservation.WithClock(func() time.Time { return now }))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	mux := http.NewServeMux()
	NewBookingHandler(svc, logger).Register(mux, auth.RequireRole(adminSecret, "admin"), nil)
	return &testServer{mux: mux, store: store, service: uuid.NewString()}
}

func (s *testServer) slot(capacity, booked int) model.Slot {
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	return s.store.PutSlot(model.Slot{
		StylistID: uuid.NewString(),
		StartTime: start,
		EndTime:   start.Add(time.Hour),
		Capacity:  capacity,
		Booked:    booked,
	})
}

func (s *testServer) do(t *testing.T, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rw := httptest.NewRecorder()
	s.mux.ServeHTTP(rw, req)
	return rw
}

func (s *testServer) createBody(slotID string) string {
	return `{"slotId":"` + slotID + `","serviceId":"` + s.service + `","customer":{"name":"Amina","email":"amina@example.com"}}`
}

func errorCode(t *testing.T, rw *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &body), rw.Body.String())
	return body.Error.Code
}

func decodeAppointment(t *testing.T, rw *httptest.ResponseRecorder) appointmentResponse {
	t.Helper()
	var resp appointmentResponse
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &resp), rw.Body.String())
	return resp
}

func adminHeader(t *testing.T) []string {
	t.Helper()
	token, err := auth.SignHS256(auth.NewClaims("owner-1", "admin", time.Hour), adminSecret)
	require.NoError(t, err)
	return []string{"Authorization", "Bearer " + token}
}

func TestCreateAndCancelFlow(t *testing.T) {
	s := newTestServer(t)
	slot := s.slot(2, 0)

	rw := s.do(t, http.MethodPost, "/appointments", s.createBody(slot.ID))
	require.Equal(t, http.StatusCreated, rw.Code, rw.Body.String())
	created := decodeAppointment(t, rw)
	require.NotEmpty(t, created.AppointmentID)
	require.Equal(t, "pending_deposit", created.Status)
	require.Equal(t, "/appointments/"+created.AppointmentID, rw.Header().Get("Location"))

	got, _ := s.store.GetSlot(context.Background(), slot.ID)
	require.Equal(t, 1, got.Booked)

	for i := 0; i < 2; i++ {
		rw = s.do(t, http.MethodPost, "/appointments/"+created.AppointmentID+"/cancel", "")
		require.Equal(t, http.StatusOK, rw.Code, rw.Body.String())
		require.Equal(t, "cancelled", decodeAppointment(t, rw).Status)
		got, _ = s.store.GetSlot(context.Background(), slot.ID)
		require.Equal(t, 0, got.Booked)
	}

	rw = s.do(t, http.MethodGet, "/appointments/"+created.AppointmentID, "")
	require.Equal(t, http.StatusOK, rw.Code)
	require.Equal(t, "cancelled", decodeAppointment(t, rw).Status)
}

func TestCreateErrors(t *testing.T) {
	s := newTestServer(t)
	full := s.slot(3, 3)

	rw := s.do(t, http.MethodPost, "/appointments", s.createBody(full.ID))
	require.Equal(t, http.StatusConflict, rw.Code)
	require.Equal(t, "slot_full", errorCode(t, rw))
	require.Empty(t, s.store.Appointments(full.ID))

	rw = s.do(t, http.MethodPost, "/appointments", s.createBody(uuid.NewString()))
	require.Equal(t, http.StatusNotFound, rw.Code)
	require.Equal(t, "not_found", errorCode(t, rw))

	rw = s.do(t, http.MethodPost, "/appointments", `{"slotId":"`+full.ID+`","customer":{"name":"A","email":"a@b.co"}}`)
	require.Equal(t, http.StatusBadRequest, rw.Code)
	require.Equal(t, "validation_error", errorCode(t, rw))

	rw = s.do(t, http.MethodPost, "/appointments", `{"slotId":`)
	require.Equal(t, http.StatusBadRequest, rw.Code)
	require.Equal(t, "invalid_json", errorCode(t, rw))

	rw = s.do(t, http.MethodPost, "/appointments", `{"slotId":"x","unknown":true}`)
	require.Equal(t, http.StatusBadRequest, rw.Code)
}

func TestCancelCompletedIsConflict(t *testing.T) {
	s := newTestServer(t)
	slot := s.slot(1, 1)
	appt := s.store.PutAppointment(model.Appointment{SlotID: slot.ID, Status: model.StatusCompleted})

	rw := s.do(t, http.MethodPost, "/appointments/"+appt.ID+"/cancel", `{"reason":"late"}`)
	require.Equal(t, http.StatusConflict, rw.Code)
	require.Equal(t, "invalid_state", errorCode(t, rw))
	got, _ := s.store.GetSlot(context.Background(), slot.ID)
	require.Equal(t, 1, got.Booked)

	rw = s.do(t, http.MethodPost, "/appointments/"+uuid.NewString()+"/cancel", "")
	require.Equal(t, http.StatusNotFound, rw.Code)
}

func TestBusyMapsToConflictWithRetryAfter(t *testing.T) {
	s := newTestServer(t, memstore.WithLockTimeout(5*time.Millisecond))
	slot := s.slot(1, 0)

	holding := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = s.store.InTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
			return tx.Slots().WithLock(ctx, slot.ID, func(model.Slot) error {
				close(holding)
				<-done
				return nil
			})
		})
	}()
	<-holding
	defer close(done)

	rw := s.do(t, http.MethodPost, "/appointments", s.createBody(slot.ID))
	require.Equal(t, http.StatusConflict, rw.Code)
	require.Equal(t, "busy", errorCode(t, rw))
	require.Equal(t, "1", rw.Header().Get("Retry-After"))
}

func TestListAvailabilities(t *testing.T) {
	s := newTestServer(t)
	open := s.slot(2, 1)
	s.slot(1, 1)

	rw := s.do(t, http.MethodGet, "/availabilities?date=2026-03-02", "")
	require.Equal(t, http.StatusOK, rw.Code)
	var body struct {
		Date  string         `json:"date"`
		Slots []slotResponse `json:"slots"`
	}
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &body))
	require.Equal(t, "2026-03-02", body.Date)
	require.Len(t, body.Slots, 1)
	require.Equal(t, open.ID, body.Slots[0].SlotID)
	require.Equal(t, 1, body.Slots[0].Remaining)

	rw = s.do(t, http.MethodGet, "/availabilities", "")
	require.Equal(t, http.StatusBadRequest, rw.Code)
}

func TestAdminRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)
	body := `{"stylistId":"` + uuid.NewString() + `","startTime":"2026-03-05T09:00:00Z","endTime":"2026-03-05T10:00:00Z","capacity":2}`

	rw := s.do(t, http.MethodPost, "/admin/availabilities", body)
	require.Equal(t, http.StatusUnauthorized, rw.Code)

	rw = s.do(t, http.MethodPost, "/admin/availabilities", body, adminHeader(t)...)
	require.Equal(t, http.StatusCreated, rw.Code, rw.Body.String())
	var slot slotResponse
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &slot))
	require.Equal(t, 2, slot.Capacity)
	require.Equal(t, 2, slot.Remaining)

	rw = s.do(t, http.MethodDelete, "/admin/availabilities/"+slot.SlotID, "", adminHeader(t)...)
	require.Equal(t, http.StatusNoContent, rw.Code)
}

func TestAdminDeleteSlotInUse(t *testing.T) {
	s := newTestServer(t)
	slot := s.slot(2, 0)
	rw := s.do(t, http.MethodPost, "/appointments", s.createBody(slot.ID))
	require.Equal(t, http.StatusCreated, rw.Code)

	rw = s.do(t, http.MethodDelete, "/admin/availabilities/"+slot.ID, "", adminHeader(t)...)
	require.Equal(t, http.StatusConflict, rw.Code)
	require.Equal(t, "slot_in_use", errorCode(t, rw))
}

func TestAdminGenerateSlots(t *testing.T) {
	s := newTestServer(t)
	body := `{"stylistId":"` + uuid.NewString() + `","date":"2026-03-06","opensAt":"09:00","closesAt":"12:00","durationMinutes":60,"capacity":1}`

	rw := s.do(t, http.MethodPost, "/admin/availabilities/generate", body, adminHeader(t)...)
	require.Equal(t, http.StatusCreated, rw.Code, rw.Body.String())
	var resp struct {
		Slots []slotResponse `json:"slots"`
	}
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &resp))
	require.Len(t, resp.Slots, 3)
}

func TestAdminConfirmAndComplete(t *testing.T) {
	s := newTestServer(t)
	slot := s.slot(1, 0)
	rw := s.do(t, http.MethodPost, "/appointments", s.createBody(slot.ID))
	require.Equal(t, http.StatusCreated, rw.Code)
	id := decodeAppointment(t, rw).AppointmentID

	rw = s.do(t, http.MethodPost, "/admin/appointments/"+id+"/complete", "", adminHeader(t)...)
	require.Equal(t, http.StatusConflict, rw.Code)

	rw = s.do(t, http.MethodPost, "/admin/appointments/"+id+"/confirm", "", adminHeader(t)...)
	require.Equal(t, http.StatusOK, rw.Code)
	require.Equal(t, "confirmed", decodeAppointment(t, rw).Status)

	rw = s.do(t, http.MethodPost, "/admin/appointments/"+id+"/complete", "", adminHeader(t)...)
	require.Equal(t, http.StatusOK, rw.Code)
	require.Equal(t, "completed", decodeAppointment(t, rw).Status)

	rw = s.do(t, http.MethodPost, "/appointments/"+id+"/cancel", "")
	require.Equal(t, http.StatusConflict, rw.Code)
	require.Equal(t, "invalid_state", errorCode(t, rw))
}
