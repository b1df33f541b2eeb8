// Command stripe-webhook-sim posts a signed payment_intent event to a local booking service so the
// deposit confirmation path can be exercised without the Stripe CLI.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joycewetu0805/wigvival/libs/config"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

func main() {
	_ = config.LoadDotenv()
	var (
		baseURL     = flag.String("base-url", config.String("BASE_URL", "http://localhost:8083"), "booking service base url")
		evtType     = flag.String("type", config.String("STRIPE_EVENT_TYPE", string(stripe.EventTypePaymentIntentSucceeded)), "stripe event type")
		appointment = flag.String("appointment-id", config.String("APPOINTMENT_ID", ""), "appointment_id metadata")
		amount      = flag.Int64("amount", 0, "deposit amount in cents")
		currency    = flag.String("currency", config.String("DEPOSIT_CURRENCY", "usd"), "deposit currency")
		secret      = flag.String("secret", config.String("STRIPE_WEBHOOK_SECRET", ""), "stripe webhook signing secret (whsec_...)")
	)
	flag.Parse()

	if *secret == "" {
		fatal("STRIPE_WEBHOOK_SECRET is required")
	}
	if strings.TrimSpace(*appointment) == "" {
		fatal("APPOINTMENT_ID is required")
	}

	now := time.Now().UTC()
	payload, err := buildEventJSON(fmt.Sprintf("evt_test_%d", now.UnixNano()), *evtType, now, intentFields{
		AppointmentID: strings.TrimSpace(*appointment),
		AmountCents:   *amount,
		Currency:      *currency,
	})
	if err != nil {
		fatal(err.Error())
	}

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    *secret,
		Timestamp: now,
		Scheme:    "v1",
	})

	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(*baseURL, "/")+"/webhooks/stripe", bytes.NewReader(payload))
	if err != nil {
		fatal(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signed.Header)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		fatal(err.Error())
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	fmt.Printf("status=%d body=%s\n", resp.StatusCode, strings.TrimSpace(string(body)))
	if resp.StatusCode >= 300 {
		os.Exit(1)
	}
}

type intentFields struct {
	AppointmentID string
	AmountCents   int64
	Currency      string
}

func buildEventJSON(eventID, eventType string, t time.Time, f intentFields) ([]byte, error) {
	var status string
	switch stripe.EventType(eventType) {
	case stripe.EventTypePaymentIntentSucceeded:
		status = "succeeded"
	case stripe.EventTypePaymentIntentPaymentFailed:
		status = "requires_payment_method"
	default:
		return nil, fmt.Errorf("unsupported event type: %s", eventType)
	}
	return json.Marshal(map[string]any{
		"id":          eventID,
		"object":      "event",
		"created":     t.Unix(),
		"type":        eventType,
		"api_version": stripe.APIVersion,
		"data": map[string]any{
			"object": map[string]any{
				"id":       fmt.Sprintf("pi_test_%d", t.UnixNano()),
				"object":   "payment_intent",
				"amount":   f.AmountCents,
				"currency": f.Currency,
				"status":   status,
				"metadata": map[string]string{
					"appointment_id": f.AppointmentID,
				},
			},
		},
	})
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
