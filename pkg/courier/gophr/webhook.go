package gophr

import (
	"crypto/subtle"
	"encoding/json"
	"time"

	"github.com/courierhub/dispatch/pkg/courier"
)

// webhookKeyParam carries the shared webhook secret on Gophr callbacks.
const webhookKeyParam = "key"

// VerifyWebhook compares the shared secret carried as a query parameter.
func (c *Client) VerifyWebhook(w *courier.InboundWebhook) error {
	got := w.Query.Get(webhookKeyParam)
	if subtle.ConstantTimeCompare([]byte(got), []byte(c.config.WebhookSecret)) != 1 {
		return courier.ErrWebhookAuth
	}
	return nil
}

// DecodeWebhook parses a Gophr callback into a canonical job-level event.
func (c *Client) DecodeWebhook(w *courier.InboundWebhook) (*courier.WebhookEvent, error) {
	var payload WebhookPayload
	if err := json.Unmarshal(w.Body, &payload); err != nil {
		return nil, courier.NewError(providerName, courier.KindValidation, "BAD_PAYLOAD", "undecodable webhook body").WithCause(err)
	}
	if payload.JobID == "" && payload.ExternalID == "" {
		return nil, courier.NewError(providerName, courier.KindValidation, "BAD_PAYLOAD", "webhook carries no job identifier")
	}

	key := courier.JobKey(providerName, payload.JobID)
	if payload.JobID == "" {
		key = courier.RefKey(payload.ExternalID)
	}

	event := &courier.WebhookEvent{
		Provider:       providerName,
		CorrelationKey: key,
		Level:          courier.LevelJob,
		ExternalStatus: payload.Status,
		TrackingURL:    payload.TrackingURL,
	}
	if payload.CourierName != "" {
		event.Driver = &courier.Driver{
			Name:  payload.CourierName,
			Phone: payload.CourierPhone,
		}
	}
	if t, err := time.Parse(time.RFC3339, payload.UpdatedAt); err == nil {
		event.OccurredAt = t
	} else {
		event.OccurredAt = time.Now()
	}
	return event, nil
}
