package stuart

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/courierhub/dispatch/pkg/courier"
)

// webhookTokenHeader carries the shared webhook secret on Stuart callbacks.
const webhookTokenHeader = "X-Webhook-Token"

// VerifyWebhook compares the shared secret carried in the webhook header.
func (c *Client) VerifyWebhook(w *courier.InboundWebhook) error {
	got := w.Header.Get(webhookTokenHeader)
	if subtle.ConstantTimeCompare([]byte(got), []byte(c.config.WebhookSecret)) != 1 {
		return courier.ErrWebhookAuth
	}
	return nil
}

// DecodeWebhook parses a Stuart callback into a canonical event. Stuart
// emits independent job-level and delivery-level events; delivery-level
// events correlate through the parent job id when present, otherwise
// through the delivery id itself.
func (c *Client) DecodeWebhook(w *courier.InboundWebhook) (*courier.WebhookEvent, error) {
	var envelope WebhookEnvelope
	if err := json.Unmarshal(w.Body, &envelope); err != nil {
		return nil, courier.NewError(providerName, courier.KindValidation, "BAD_PAYLOAD", "undecodable webhook body").WithCause(err)
	}

	event := &courier.WebhookEvent{
		Provider:       providerName,
		ExternalStatus: envelope.Data.Status,
		TrackingURL:    envelope.Data.TrackingURL,
	}

	switch envelope.Event {
	case "job":
		event.Level = courier.LevelJob
		event.CorrelationKey = courier.JobKey(providerName, strconv.FormatInt(envelope.Data.ID, 10))
	case "delivery":
		event.Level = courier.LevelDelivery
		event.DeliveryID = strconv.FormatInt(envelope.Data.ID, 10)
		if envelope.Data.JobID != 0 {
			event.CorrelationKey = courier.JobKey(providerName, strconv.FormatInt(envelope.Data.JobID, 10))
		} else {
			event.CorrelationKey = courier.DeliveryKey(providerName, event.DeliveryID)
		}
	default:
		return nil, courier.NewError(providerName, courier.KindValidation, "BAD_EVENT",
			fmt.Sprintf("unknown event kind %q", envelope.Event))
	}

	if envelope.Data.Driver != nil {
		event.Driver = &courier.Driver{
			Name:    envelope.Data.Driver.DisplayName,
			Phone:   envelope.Data.Driver.Phone,
			Vehicle: courier.VehicleType(envelope.Data.Driver.TransportType),
		}
	}
	if t, err := time.Parse(time.RFC3339, envelope.Data.UpdatedAt); err == nil {
		event.OccurredAt = t
	} else {
		event.OccurredAt = time.Now()
	}

	return event, nil
}
