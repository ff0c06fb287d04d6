package courier

import "fmt"

// Correlation keys are the identifiers a provider webhook carries to let the
// event be matched back to a job. Jobs are indexed under every key a
// provider might later reference: its job id, each delivery id, and the
// client reference.

// JobKey returns the correlation key for a provider-assigned job id.
func JobKey(provider, providerJobID string) string {
	return fmt.Sprintf("%s:job:%s", provider, providerJobID)
}

// DeliveryKey returns the correlation key for a provider-assigned delivery id.
func DeliveryKey(provider, providerDeliveryID string) string {
	return fmt.Sprintf("%s:delivery:%s", provider, providerDeliveryID)
}

// RefKey returns the correlation key for a client reference.
func RefKey(reference string) string {
	return fmt.Sprintf("ref:%s", reference)
}

// CorrelationKeys returns every key a dispatched job should be indexed under.
func CorrelationKeys(provider string, resp *CreateJobResponse, reference string) []string {
	keys := []string{JobKey(provider, resp.ProviderJobID)}
	for _, d := range resp.Deliveries {
		if d.ProviderDeliveryID != "" {
			keys = append(keys, DeliveryKey(provider, d.ProviderDeliveryID))
		}
	}
	if reference != "" {
		keys = append(keys, RefKey(reference))
	}
	return keys
}
