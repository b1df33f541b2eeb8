package deposit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/joycewetu0805/wigvival/libs/httpx"
	"github.com/joycewetu0805/wigvival/services/booking-service/internal/handlers"
	"github.com/joycewetu0805/wigvival/services/booking-service/internal/model"
	"github.com/joycewetu0805/wigvival/services/booking-service/internal/reservation"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

type Confirmer interface {
	Confirm(ctx context.Context, id string) (model.Appointment, error)
}

// WebhookRecorder counts processed webhooks.
type WebhookRecorder interface {
	Webhook(eventType, result string)
}

type Handler struct {
	svc              *Service
	confirmer        Confirmer
	logger           *slog.Logger
	webhookSecret    string
	webhookTolerance time.Duration
	metrics          WebhookRecorder
}

type HandlerConfig struct {
	WebhookSecret    string
	WebhookTolerance time.Duration
	Metrics          WebhookRecorder
}

func NewHandler(svc *Service, confirmer Confirmer, logger *slog.Logger, cfg HandlerConfig) *Handler {
	if cfg.WebhookTolerance <= 0 {
		cfg.WebhookTolerance = webhook.DefaultTolerance
	}
	return &Handler{
		svc:              svc,
		confirmer:        confirmer,
		logger:           logger,
		webhookSecret:    strings.TrimSpace(cfg.WebhookSecret),
		webhookTolerance: cfg.WebhookTolerance,
		metrics:          cfg.Metrics,
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /appointments/{id}/deposit", h.Quote)
	mux.HandleFunc("POST /appointments/{id}/deposit", h.Start)
	mux.HandleFunc("POST /webhooks/stripe", h.StripeWebhook)
}

type quoteResponse struct {
	AppointmentID   string `json:"appointmentId"`
	PriceCents      int64  `json:"priceCents"`
	DepositCents    int64  `json:"depositCents"`
	Percentage      int    `json:"percentage"`
	Currency        string `json:"currency"`
	PaymentIntentID string `json:"paymentIntentId,omitempty"`
	ClientSecret    string `json:"clientSecret,omitempty"`
	PaymentStatus   string `json:"paymentStatus,omitempty"`
}

func toQuoteResponse(q Quote) quoteResponse {
	return quoteResponse{
		AppointmentID: q.AppointmentID,
		PriceCents:    q.PriceCents,
		DepositCents:  q.DepositCents,
		Percentage:    q.Percentage,
		Currency:      q.Currency,
	}
}

func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	q, err := h.svc.Quote(r.Context(), r.PathValue("id"))
	if err != nil {
		handlers.WriteServiceError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toQuoteResponse(q))
}

func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	q, intent, err := h.svc.Start(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, ErrNotConfigured) {
			httpx.WriteError(w, http.StatusServiceUnavailable, "deposits_not_configured", err.Error())
			return
		}
		handlers.WriteServiceError(w, r, h.logger, err)
		return
	}
	resp := toQuoteResponse(q)
	resp.PaymentIntentID = intent.ID
	resp.ClientSecret = intent.ClientSecret
	resp.PaymentStatus = intent.Status
	httpx.WriteJSON(w, http.StatusCreated, resp)
}

// StripeWebhook has no bearer auth; the signature is the authentication.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	if h.webhookSecret == "" {
		httpx.WriteError(w, http.StatusServiceUnavailable, "webhook_not_configured", "stripe webhook not configured")
		return
	}
	sigHeader := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		httpx.WriteError(w, http.StatusBadRequest, "missing_signature", "missing Stripe-Signature header")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_body", "failed to read request body")
		return
	}

	evt, err := webhook.ConstructEventWithOptions(body, sigHeader, h.webhookSecret, webhook.ConstructEventOptions{
		Tolerance:                h.webhookTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		h.record(string(evt.Type), "invalid_signature")
		httpx.WriteError(w, http.StatusBadRequest, "invalid_signature", "invalid signature")
		return
	}

	evtType := string(evt.Type)
	h.logger.InfoContext(r.Context(), "payment provider event received",
		"provider", "stripe",
		"provider_event_id", evt.ID,
		"event_type", evtType,
	)

	switch evt.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		h.applyPaymentSucceeded(w, r, evt)
	case stripe.EventTypePaymentIntentPaymentFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(evt.Data.Raw, &pi); err == nil {
			h.logger.WarnContext(r.Context(), "deposit payment failed",
				"payment_intent_id", pi.ID,
				"appointment_id", pi.Metadata[MetadataAppointmentID],
			)
		}
		h.record(evtType, "logged")
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "logged"})
	default:
		h.record(evtType, "ignored")
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
	}
}

func (h *Handler) applyPaymentSucceeded(w http.ResponseWriter, r *http.Request, evt stripe.Event) {
	evtType := string(evt.Type)
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(evt.Data.Raw, &pi); err != nil {
		h.logger.ErrorContext(r.Context(), "stripe: invalid payment intent payload", "err", err)
		h.record(evtType, "invalid_payload")
		httpx.WriteError(w, http.StatusBadRequest, "invalid_payload", "invalid payment intent payload")
		return
	}
	appointmentID := strings.TrimSpace(pi.Metadata[MetadataAppointmentID])
	if appointmentID == "" {
		h.logger.WarnContext(r.Context(), "stripe: payment intent without appointment metadata", "payment_intent_id", pi.ID)
		h.record(evtType, "ignored")
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	_, err := h.confirmer.Confirm(r.Context(), appointmentID)
	switch {
	case err == nil:
		h.record(evtType, "applied")
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "confirmed"})
	case errors.Is(err, reservation.ErrInvalidState), errors.Is(err, reservation.ErrNotFound):
		// The appointment was cancelled, expired or completed before the payment landed. Refunds
		// are handled out of band; acknowledging stops Stripe from redelivering.
		h.logger.WarnContext(r.Context(), "deposit paid for appointment that cannot be confirmed",
			"appointment_id", appointmentID,
			"payment_intent_id", pi.ID,
			"err", err,
		)
		h.record(evtType, "unapplied")
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "unapplied"})
	case errors.Is(err, reservation.ErrBusy):
		h.record(evtType, "retry")
		httpx.WriteError(w, http.StatusServiceUnavailable, "busy", "appointment busy, retry later")
	default:
		h.logger.ErrorContext(r.Context(), "confirm after deposit failed", "appointment_id", appointmentID, "err", err)
		h.record(evtType, "error")
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}

func (h *Handler) record(eventType, result string) {
	if h.metrics == nil {
		return
	}
	if eventType == "" {
		eventType = "unknown"
	}
	h.metrics.Webhook(eventType, result)
}
