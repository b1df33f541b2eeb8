package deposit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/joycewetu0805/wigvival/services/booking-service/internal/model"
	"github.com/joycewetu0805/wigvival/services/booking-service/internal/reservation"
	"github.com/joycewetu0805/wigvival/services/booking-service/internal/storage/memstore"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

const webhookSecret = "whsec_test_secret"

type fakeProvider struct {
	mu   sync.Mutex
	reqs []IntentRequest
}

func (p *fakeProvider) CreateIntent(_ context.Context, req IntentRequest) (Intent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reqs = append(p.reqs, req)
	return Intent{ID: "pi_test", ClientSecret: "pi_test_secret", AmountCents: req.AmountCents, Currency: req.Currency, Status: "requires_payment_method"}, nil
}

type recordedWebhooks struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *recordedWebhooks) Webhook(eventType, result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[eventType+"/"+result]++
}

type env struct {
	store    *memstore.Store
	svc      *reservation.Service
	deposits *Service
	provider *fakeProvider
	webhooks *recordedWebhooks
	mux      *http.ServeMux
	service  string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := memstore.New()
	svc := reservation.New(store, reservation.Config{MaxAttempts: 1})
	provider := &fakeProvider{}
	service := uuid.NewString()
	store.SetServicePrice(service, 4500)

	deposits := NewService(svc, store, provider, Config{Percentage: 30, Currency: "eur"})
	rec := &recordedWebhooks{counts: map[string]int{}}
	mux := http.NewServeMux()
	NewHandler(deposits, svc, slog.New(slog.NewTextHandler(io.Discard, nil)), HandlerConfig{
		WebhookSecret: webhookSecret,
		Metrics:       rec,
	}).Register(mux)

	return &env{store: store, svc: svc, deposits: deposits, provider: provider, webhooks: rec, mux: mux, service: service}
}

func (e *env) book(t *testing.T) model.Appointment {
	t.Helper()
	start := time.Now().Add(48 * time.Hour).Truncate(time.Hour)
	slot := e.store.PutSlot(model.Slot{StylistID: uuid.NewString(), StartTime: start, EndTime: start.Add(time.Hour), Capacity: 2})
	appt, err := e.svc.Create(context.Background(), reservation.CreateRequest{
		SlotID:    slot.ID,
		ServiceID: e.service,
		Customer:  model.Customer{Name: "Grace", Email: "grace@example.com"},
	})
	require.NoError(t, err)
	return appt
}

func signedWebhook(t *testing.T, eventType, appointmentID string) *http.Request {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":          fmt.Sprintf("evt_test_%d", time.Now().UnixNano()),
		"object":      "event",
		"type":        eventType,
		"created":     time.Now().Unix(),
		"api_version": stripe.APIVersion,
		"data": map[string]any{
			"object": map[string]any{
				"id":       "pi_test",
				"object":   "payment_intent",
				"amount":   1350,
				"currency": "eur",
				"status":   "succeeded",
				"metadata": map[string]string{MetadataAppointmentID: appointmentID},
			},
		},
	})
	require.NoError(t, err)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    webhookSecret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(string(payload)))
	req.Header.Set("Stripe-Signature", signed.Header)
	return req
}

func TestAmount(t *testing.T) {
	cases := []struct {
		price int64
		pct   int
		want  int64
	}{
		{4500, 30, 1350},
		{1999, 25, 500},
		{1000, 100, 1000},
		{0, 30, 0},
		{1000, 0, 0},
	}
	for _, tc := range cases {
		if got := Amount(tc.price, tc.pct); got != tc.want {
			t.Fatalf("Amount(%d, %d) = %d, want %d", tc.price, tc.pct, got, tc.want)
		}
	}
}

func TestStartCreatesIntentForPendingAppointment(t *testing.T) {
	e := newEnv(t)
	appt := e.book(t)

	rw := httptest.NewRecorder()
	e.mux.ServeHTTP(rw, httptest.NewRequest(http.MethodPost, "/appointments/"+appt.ID+"/deposit", nil))
	require.Equal(t, http.StatusCreated, rw.Code, rw.Body.String())

	var resp quoteResponse
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &resp))
	require.Equal(t, int64(1350), resp.DepositCents)
	require.Equal(t, "pi_test_secret", resp.ClientSecret)
	require.Len(t, e.provider.reqs, 1)
	require.Equal(t, appt.ID, e.provider.reqs[0].AppointmentID)
	require.Equal(t, "eur", e.provider.reqs[0].Currency)
}

func TestStartRejectsConfirmedAppointment(t *testing.T) {
	e := newEnv(t)
	appt := e.book(t)
	_, err := e.svc.Confirm(context.Background(), appt.ID)
	require.NoError(t, err)

	_, _, err = e.deposits.Start(context.Background(), appt.ID)
	require.ErrorIs(t, err, reservation.ErrInvalidState)
	require.Empty(t, e.provider.reqs)
}

func TestStartWithoutProvider(t *testing.T) {
	e := newEnv(t)
	appt := e.book(t)
	svc := NewService(e.svc, e.store, nil, Config{})

	_, _, err := svc.Start(context.Background(), appt.ID)
	require.ErrorIs(t, err, ErrNotConfigured)

	q, err := svc.Quote(context.Background(), appt.ID)
	require.NoError(t, err)
	require.Equal(t, 30, q.Percentage)
	require.Equal(t, int64(1350), q.DepositCents)
}

func TestWebhookConfirmsAppointment(t *testing.T) {
	e := newEnv(t)
	appt := e.book(t)

	for i := 0; i < 2; i++ {
		rw := httptest.NewRecorder()
		e.mux.ServeHTTP(rw, signedWebhook(t, "payment_intent.succeeded", appt.ID))
		require.Equal(t, http.StatusOK, rw.Code, rw.Body.String())
	}

	got, err := e.svc.Get(context.Background(), appt.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusConfirmed, got.Status)
	require.Equal(t, 2, e.webhooks.counts["payment_intent.succeeded/applied"])
}

func TestWebhookForCancelledAppointmentIsAcknowledged(t *testing.T) {
	e := newEnv(t)
	appt := e.book(t)
	_, err := e.svc.Cancel(context.Background(), appt.ID, "")
	require.NoError(t, err)

	rw := httptest.NewRecorder()
	e.mux.ServeHTTP(rw, signedWebhook(t, "payment_intent.succeeded", appt.ID))
	require.Equal(t, http.StatusOK, rw.Code)
	require.Contains(t, rw.Body.String(), "unapplied")

	got, err := e.svc.Get(context.Background(), appt.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusCancelled, got.Status)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	e := newEnv(t)
	req := signedWebhook(t, "payment_intent.succeeded", uuid.NewString())
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")

	rw := httptest.NewRecorder()
	e.mux.ServeHTTP(rw, req)
	require.Equal(t, http.StatusBadRequest, rw.Code)
}

func TestWebhookIgnoresOtherEvents(t *testing.T) {
	e := newEnv(t)
	rw := httptest.NewRecorder()
	e.mux.ServeHTTP(rw, signedWebhook(t, "charge.refunded", uuid.NewString()))
	require.Equal(t, http.StatusOK, rw.Code)
	require.Contains(t, rw.Body.String(), "ignored")
}

func TestStripeProviderSendsMetadata(t *testing.T) {
	var form url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payment_intents" {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		form, _ = url.ParseQuery(string(body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_123","object":"payment_intent","amount":1350,"currency":"eur","client_secret":"pi_123_secret_abc","status":"requires_payment_method"}`))
	}))
	defer srv.Close()

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
	p := NewStripeProviderWithBackend("sk_test_123", backend)

	intent, err := p.CreateIntent(context.Background(), IntentRequest{AppointmentID: "appt-1", AmountCents: 1350, Currency: "eur", Description: "Deposit"})
	require.NoError(t, err)
	require.Equal(t, "pi_123", intent.ID)
	require.Equal(t, "pi_123_secret_abc", intent.ClientSecret)
	require.Equal(t, "1350", form.Get("amount"))
	require.Equal(t, "appt-1", form.Get("metadata[appointment_id]"))
}
