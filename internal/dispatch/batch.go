package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/courierhub/dispatch/pkg/courier"
)

// BatchMode selects how pending drops are grouped into assignment windows.
type BatchMode string

const (
	// BatchDaily groups everything due on the same calendar day, split at a
	// configured cutoff hour.
	BatchDaily BatchMode = "DAILY"

	// BatchIncremental groups drops into fixed-length rolling windows.
	BatchIncremental BatchMode = "INCREMENTAL"
)

// BatchPolicy is a tenant's auto-batching configuration. Drops whose ready
// time falls in the same window are submitted as one multi-drop job.
type BatchPolicy struct {
	Mode       BatchMode
	Window     time.Duration // incremental window length
	CutoffHour int           // daily mode: drops after this hour roll to the next day
	Location   *time.Location
}

// PendingDrop is one undispatched dropoff awaiting window assignment.
type PendingDrop struct {
	Dropoff courier.DropoffSpec
	ReadyAt time.Time
}

// windowStart returns the assignment window a ready time falls in.
func (p BatchPolicy) windowStart(t time.Time) time.Time {
	switch p.Mode {
	case BatchIncremental:
		window := p.Window
		if window <= 0 {
			window = time.Hour
		}
		return t.Truncate(window)
	default: // BatchDaily
		loc := p.Location
		if loc == nil {
			loc = time.UTC
		}
		local := t.In(loc)
		day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
		if local.Hour() >= p.CutoffHour && p.CutoffHour > 0 {
			day = day.AddDate(0, 0, 1)
		}
		return day
	}
}

// Group partitions pending drops into per-window groups, ordered by window
// start. Order within a group follows ready time.
func (p BatchPolicy) Group(drops []PendingDrop) [][]PendingDrop {
	byWindow := make(map[time.Time][]PendingDrop)
	for _, d := range drops {
		start := p.windowStart(d.ReadyAt)
		byWindow[start] = append(byWindow[start], d)
	}

	starts := make([]time.Time, 0, len(byWindow))
	for start := range byWindow {
		starts = append(starts, start)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })

	groups := make([][]PendingDrop, 0, len(starts))
	for _, start := range starts {
		group := byWindow[start]
		sort.SliceStable(group, func(i, j int) bool { return group[i].ReadyAt.Before(group[j].ReadyAt) })
		groups = append(groups, group)
	}
	return groups
}

// BatchRequest dispatches a set of pending drops as auto-batched multi-drop
// jobs.
type BatchRequest struct {
	ClientID  string
	Pickup    courier.Location
	Vehicle   courier.VehicleType
	Drops     []PendingDrop
	Providers []string
	Reference string
}

// DispatchBatch groups the pending drops into assignment windows and
// dispatches one job per window. Jobs already dispatched survive a later
// window's failure; the error aggregates every failed window.
func (s *Service) DispatchBatch(ctx context.Context, req *BatchRequest) ([]*courier.Job, error) {
	specs := s.config.Batch.Specs(req.Pickup, req.Vehicle, req.Drops)

	jobs := make([]*courier.Job, 0, len(specs))
	var errs []error
	for i, spec := range specs {
		reference := req.Reference
		if reference != "" && len(specs) > 1 {
			reference = fmt.Sprintf("%s-%d", req.Reference, i+1)
		}
		job, err := s.Dispatch(ctx, &Request{
			ClientID:  req.ClientID,
			Spec:      spec,
			Providers: req.Providers,
			Reference: reference,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("window %d: %w", i+1, err))
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, errors.Join(errs...)
}

// Specs turns each window group into one multi-drop job spec sharing the
// pickup and vehicle.
func (p BatchPolicy) Specs(pickup courier.Location, vehicle courier.VehicleType, drops []PendingDrop) []courier.JobSpec {
	groups := p.Group(drops)
	specs := make([]courier.JobSpec, 0, len(groups))
	for _, group := range groups {
		spec := courier.JobSpec{Pickup: pickup, Vehicle: vehicle}
		for _, d := range group {
			spec.Dropoffs = append(spec.Dropoffs, d.Dropoff)
		}
		specs = append(specs, spec)
	}
	return specs
}
