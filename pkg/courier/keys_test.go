package courier_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/courierhub/dispatch/pkg/courier"
)

func TestCorrelationKeys(t *testing.T) {
	resp := &courier.CreateJobResponse{
		ProviderJobID: "12345",
		Deliveries: []courier.Delivery{
			{ProviderDeliveryID: "d-1"},
			{ProviderDeliveryID: "d-2"},
			{}, // provider assigned no delivery id
		},
	}

	keys := courier.CorrelationKeys("stuart", resp, "order-99")

	assert.Equal(t, []string{
		"stuart:job:12345",
		"stuart:delivery:d-1",
		"stuart:delivery:d-2",
		"ref:order-99",
	}, keys)
}

func TestCorrelationKeys_NoReference(t *testing.T) {
	resp := &courier.CreateJobResponse{ProviderJobID: "j1"}

	keys := courier.CorrelationKeys("gophr", resp, "")
	assert.Equal(t, []string{"gophr:job:j1"}, keys)
}
