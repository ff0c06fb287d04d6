package dispatch_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courierhub/dispatch/internal/dispatch"
	"github.com/courierhub/dispatch/internal/store"
	"github.com/courierhub/dispatch/pkg/courier"
	"github.com/courierhub/dispatch/pkg/courier/mock"
)

func drop(ref string, readyAt time.Time) dispatch.PendingDrop {
	return dispatch.PendingDrop{
		Dropoff: courier.DropoffSpec{Reference: ref},
		ReadyAt: readyAt,
	}
}

func TestBatchPolicy_Daily(t *testing.T) {
	policy := dispatch.BatchPolicy{Mode: dispatch.BatchDaily}

	day1 := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 8, 29, 11, 0, 0, 0, time.UTC)

	groups := policy.Group([]dispatch.PendingDrop{
		drop("a", day1),
		drop("b", day2),
		drop("c", day1.Add(3*time.Hour)),
	})

	require.Len(t, groups, 2)
	assert.Len(t, groups[0], 2, "same-day drops share a window")
	assert.Equal(t, "a", groups[0][0].Dropoff.Reference)
	assert.Equal(t, "c", groups[0][1].Dropoff.Reference)
	assert.Len(t, groups[1], 1)
}

func TestBatchPolicy_DailyCutoffRollsOver(t *testing.T) {
	policy := dispatch.BatchPolicy{Mode: dispatch.BatchDaily, CutoffHour: 16}

	beforeCutoff := time.Date(2026, 8, 28, 15, 0, 0, 0, time.UTC)
	afterCutoff := time.Date(2026, 8, 28, 17, 0, 0, 0, time.UTC)

	groups := policy.Group([]dispatch.PendingDrop{
		drop("early", beforeCutoff),
		drop("late", afterCutoff),
	})

	require.Len(t, groups, 2, "a drop after the cutoff rolls to the next day's window")
	assert.Equal(t, "early", groups[0][0].Dropoff.Reference)
	assert.Equal(t, "late", groups[1][0].Dropoff.Reference)
}

func TestBatchPolicy_Incremental(t *testing.T) {
	policy := dispatch.BatchPolicy{Mode: dispatch.BatchIncremental, Window: 30 * time.Minute}

	base := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)

	groups := policy.Group([]dispatch.PendingDrop{
		drop("a", base.Add(5*time.Minute)),
		drop("b", base.Add(20*time.Minute)),
		drop("c", base.Add(40*time.Minute)),
	})

	require.Len(t, groups, 2)
	assert.Len(t, groups[0], 2)
	assert.Len(t, groups[1], 1)
	assert.Equal(t, "c", groups[1][0].Dropoff.Reference)
}

func TestBatchPolicy_Specs(t *testing.T) {
	policy := dispatch.BatchPolicy{Mode: dispatch.BatchIncremental, Window: time.Hour}
	pickup := courier.Location{Line1: "4 Commercial Rd", City: "London"}

	base := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	specs := policy.Specs(pickup, courier.VehicleVan, []dispatch.PendingDrop{
		drop("a", base.Add(10*time.Minute)),
		drop("b", base.Add(30*time.Minute)),
		drop("c", base.Add(90*time.Minute)),
	})

	require.Len(t, specs, 2)
	assert.Equal(t, pickup, specs[0].Pickup)
	assert.Equal(t, courier.VehicleVan, specs[0].Vehicle)
	assert.Len(t, specs[0].Dropoffs, 2, "same-window drops become one multi-drop submission")
	assert.Len(t, specs[1].Dropoffs, 1)
}

func TestDispatchBatch(t *testing.T) {
	m := mock.New("streetstream")
	var dropCounts []int
	m.OnCreateJob = func(ctx context.Context, req *courier.CreateJobRequest) (*courier.CreateJobResponse, error) {
		dropCounts = append(dropCounts, len(req.Spec.Dropoffs))
		return &courier.CreateJobResponse{ProviderJobID: "ss-" + req.Reference}, nil
	}

	jobs := store.NewMemoryJobStore()
	svc := newService(t, dispatch.Config{
		Batch: dispatch.BatchPolicy{Mode: dispatch.BatchIncremental, Window: time.Hour},
	}, jobs, m)

	base := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	dispatched, err := svc.DispatchBatch(context.Background(), &dispatch.BatchRequest{
		ClientID:  "client-1",
		Pickup:    courier.Location{Line1: "4 Commercial Rd", City: "London"},
		Vehicle:   courier.VehicleVan,
		Reference: "run-7",
		Drops: []dispatch.PendingDrop{
			drop("a", base.Add(10*time.Minute)),
			drop("b", base.Add(30*time.Minute)),
			drop("c", base.Add(90*time.Minute)),
		},
	})

	require.NoError(t, err)
	require.Len(t, dispatched, 2, "one job per assignment window")
	assert.Equal(t, []int{2, 1}, dropCounts)
	assert.NotEqual(t, dispatched[0].ProviderJobID, dispatched[1].ProviderJobID,
		"window references stay unique per job")
}

func TestDispatchBatch_PartialFailure(t *testing.T) {
	m := mock.New("streetstream")
	var calls int
	m.OnCreateJob = func(ctx context.Context, req *courier.CreateJobRequest) (*courier.CreateJobResponse, error) {
		calls++
		if calls == 1 {
			return nil, courier.NewError("streetstream", courier.KindRejected, "NO_COURIERS_AVAILABLE", "none free")
		}
		return &courier.CreateJobResponse{ProviderJobID: "ss-2"}, nil
	}

	svc := newService(t, dispatch.Config{
		Batch: dispatch.BatchPolicy{Mode: dispatch.BatchIncremental, Window: time.Hour},
	}, store.NewMemoryJobStore(), m)

	base := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	dispatched, err := svc.DispatchBatch(context.Background(), &dispatch.BatchRequest{
		ClientID: "client-1",
		Drops: []dispatch.PendingDrop{
			drop("a", base),
			drop("b", base.Add(2*time.Hour)),
		},
	})

	require.Error(t, err)
	require.Len(t, dispatched, 1, "later windows still dispatch after an earlier failure")
	assert.Equal(t, "ss-2", dispatched[0].ProviderJobID)
}

func TestBatchPolicy_Empty(t *testing.T) {
	policy := dispatch.BatchPolicy{Mode: dispatch.BatchDaily}
	assert.Empty(t, policy.Group(nil))
	assert.Empty(t, policy.Specs(courier.Location{}, courier.VehicleCar, nil))
}
