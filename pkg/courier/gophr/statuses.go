package gophr

import "github.com/courierhub/dispatch/pkg/courier"

// statusTable maps Gophr's documented job statuses to the canonical set.
// Gophr exposes job-level events only.
var statusTable = courier.StatusTable{
	Job: map[string]courier.Mapping{
		"CREATED":            {Canonical: courier.StatusPending},
		"PENDING_ACCEPTANCE": {Canonical: courier.StatusPending},
		"ACCEPTED":           {Canonical: courier.StatusDispatching},
		"AT_PICKUP":          {Canonical: courier.StatusDispatching},
		"ON_THE_WAY":         {Canonical: courier.StatusEnRoute, Ecommerce: courier.EcommerceShipped},
		"AT_DELIVERY":        {Canonical: courier.StatusEnRoute},
		"COMPLETED":          {Canonical: courier.StatusCompleted, Ecommerce: courier.EcommerceCompleted},
		"CANCELLED":          {Canonical: courier.StatusCancelled, Ecommerce: courier.EcommerceCancelled},
		"EXPIRED":            {Canonical: courier.StatusExpired},
	},
}
