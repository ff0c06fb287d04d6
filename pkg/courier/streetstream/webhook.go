package streetstream

import (
	"crypto/subtle"
	"encoding/json"
	"time"

	"github.com/courierhub/dispatch/pkg/courier"
)

// VerifyWebhook compares the shared secret Street Stream carries inside the
// webhook body.
func (c *Client) VerifyWebhook(w *courier.InboundWebhook) error {
	var payload struct {
		APIKey string `json:"apiKey"`
	}
	if err := json.Unmarshal(w.Body, &payload); err != nil {
		return courier.ErrWebhookAuth
	}
	if subtle.ConstantTimeCompare([]byte(payload.APIKey), []byte(c.config.WebhookSecret)) != 1 {
		return courier.ErrWebhookAuth
	}
	return nil
}

// DecodeWebhook parses a Street Stream callback into a canonical job-level
// event.
func (c *Client) DecodeWebhook(w *courier.InboundWebhook) (*courier.WebhookEvent, error) {
	var payload WebhookPayload
	if err := json.Unmarshal(w.Body, &payload); err != nil {
		return nil, courier.NewError(providerName, courier.KindValidation, "BAD_PAYLOAD", "undecodable webhook body").WithCause(err)
	}
	if payload.JobID == "" && payload.ClientTag == "" {
		return nil, courier.NewError(providerName, courier.KindValidation, "BAD_PAYLOAD", "webhook carries no job identifier")
	}

	key := courier.JobKey(providerName, payload.JobID)
	if payload.JobID == "" {
		key = courier.RefKey(payload.ClientTag)
	}

	event := &courier.WebhookEvent{
		Provider:       providerName,
		CorrelationKey: key,
		Level:          courier.LevelJob,
		ExternalStatus: payload.JobStatus,
	}
	if payload.CourierName != "" {
		event.Driver = &courier.Driver{
			Name:  payload.CourierName,
			Phone: payload.CourierPhone,
		}
	}
	if t, err := time.Parse(time.RFC3339, payload.OccurredAt); err == nil {
		event.OccurredAt = t
	} else {
		event.OccurredAt = time.Now()
	}
	return event, nil
}
