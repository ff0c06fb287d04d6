package streetstream

import "github.com/courierhub/dispatch/pkg/courier"

// statusTable maps Street Stream's documented job statuses to the canonical
// set. Street Stream exposes job-level events only, with distinct terminal
// cancellation variants.
var statusTable = courier.StatusTable{
	Job: map[string]courier.Mapping{
		"OFFERS_RECEIVED":       {Canonical: courier.StatusPending},
		"SEARCHING_FOR_COURIER": {Canonical: courier.StatusPending},
		"COURIER_ACCEPTED":      {Canonical: courier.StatusDispatching},
		"GOING_TO_PICKUP":       {Canonical: courier.StatusDispatching},
		"ARRIVED_AT_PICKUP":     {Canonical: courier.StatusDispatching},
		"PICKUP_COMPLETE":       {Canonical: courier.StatusEnRoute, Ecommerce: courier.EcommerceShipped},
		"ARRIVED_AT_DELIVERY":   {Canonical: courier.StatusEnRoute},
		"DELIVERED":             {Canonical: courier.StatusCompleted, Ecommerce: courier.EcommerceCompleted},
		"ADMIN_CANCELLED":       {Canonical: courier.StatusCancelled, Ecommerce: courier.EcommerceCancelled},
		"USER_CANCELLED":        {Canonical: courier.StatusCancelled, Ecommerce: courier.EcommerceCancelled},
		"NO_RESPONSE":           {Canonical: courier.StatusExpired},
		"EXPIRED":               {Canonical: courier.StatusExpired},
	},
}
