package stuart

import "github.com/courierhub/dispatch/pkg/courier"

// statusTable maps Stuart's documented status enumerations to the canonical
// set. Stuart is the most granular provider: it emits independent job-level
// and delivery-level events, and once a delivery-level event has been
// observed for a job, delivery-level status wins conflicts with later
// job-level events.
var statusTable = courier.StatusTable{
	Job: map[string]courier.Mapping{
		"new":         {Canonical: courier.StatusPending},
		"searching":   {Canonical: courier.StatusPending},
		"scheduled":   {Canonical: courier.StatusPending},
		"in_progress": {Canonical: courier.StatusEnRoute, Ecommerce: courier.EcommerceShipped},
		"finished":    {Canonical: courier.StatusCompleted, Ecommerce: courier.EcommerceCompleted},
		"canceled":    {Canonical: courier.StatusCancelled, Ecommerce: courier.EcommerceCancelled},
		"voided":      {Canonical: courier.StatusCancelled, Ecommerce: courier.EcommerceCancelled},
		"expired":     {Canonical: courier.StatusExpired},
	},
	Delivery: map[string]courier.Mapping{
		"pending":           {Canonical: courier.StatusPending},
		"picking":           {Canonical: courier.StatusDispatching},
		"almost_picking":    {Canonical: courier.StatusDispatching},
		"waiting_at_pickup": {Canonical: courier.StatusDispatching},
		"delivering":        {Canonical: courier.StatusEnRoute, Ecommerce: courier.EcommerceShipped},
		"almost_delivering": {Canonical: courier.StatusEnRoute},
		"delivered":         {Canonical: courier.StatusCompleted, Ecommerce: courier.EcommerceCompleted},
		"cancelled":         {Canonical: courier.StatusCancelled, Ecommerce: courier.EcommerceCancelled},
	},
}
