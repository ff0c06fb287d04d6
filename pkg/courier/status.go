package courier

// Mapping is the canonical tuple one external status normalizes to.
// Ecommerce is empty when the transition has no downstream e-commerce
// translation.
type Mapping struct {
	Canonical JobStatus
	Ecommerce EcommerceStatus
}

// StatusTable is a provider's declarative status mapping: external status
// string to canonical tuple, split by event level. Providers that expose
// only job-level events leave Delivery empty.
type StatusTable struct {
	Job      map[string]Mapping
	Delivery map[string]Mapping
}

// Map looks up the mapping for an external status at the given level.
// The second return is false for unmapped statuses; callers must treat
// those as passthrough, not as errors.
func (t StatusTable) Map(level EventLevel, external string) (Mapping, bool) {
	var m map[string]Mapping
	switch level {
	case LevelDelivery:
		m = t.Delivery
	default:
		m = t.Job
	}
	mapping, ok := m[external]
	return mapping, ok
}

// JobStatuses returns the declared job-level external statuses.
func (t StatusTable) JobStatuses() []string {
	return keys(t.Job)
}

// DeliveryStatuses returns the declared delivery-level external statuses.
func (t StatusTable) DeliveryStatuses() []string {
	return keys(t.Delivery)
}

func keys(m map[string]Mapping) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
