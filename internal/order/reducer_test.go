package order

import (
	"reflect"
	"testing"
)

func seedAggregate(t *testing.T, r *Reducer) {
	t.Helper()
	r.SeedOrder(OrderAggregate{
		ID:     "P1",
		UserID: "u1",
		SubOrders: []SubOrder{
			{ID: "S1", VendorID: "v1", Status: StatusPending, UpdatedAt: 100},
			{ID: "S2", VendorID: "v2", Status: StatusPreparing, UpdatedAt: 100},
		},
	})
}

func TestReducer_ApplyStatus(t *testing.T) {
	r := NewReducer(nil)
	seedAggregate(t, r)

	changed := r.ApplyStatus(StatusDelta{
		ParentOrderID: "P1",
		SubOrderID:    "S1",
		VendorID:      "v1",
		Status:        StatusAccepted,
		UpdatedAt:     200,
	})
	if !changed {
		t.Fatal("expected delta to change the aggregate")
	}

	agg, ok := r.Order("P1")
	if !ok {
		t.Fatal("expected P1 to be tracked")
	}
	if agg.SubOrders[0].Status != StatusAccepted {
		t.Errorf("S1 status = %q, want %q", agg.SubOrders[0].Status, StatusAccepted)
	}
	if agg.Summary.Accepted != 1 || agg.Summary.Preparing != 1 {
		t.Errorf("summary = %+v, want one accepted and one preparing", agg.Summary)
	}
}

func TestReducer_IdempotentMerge(t *testing.T) {
	delta := StatusDelta{
		ParentOrderID: "P1",
		SubOrderID:    "S1",
		VendorID:      "v1",
		Status:        StatusReady,
		UpdatedAt:     300,
	}

	once := NewReducer(nil)
	seedAggregate(t, once)
	once.ApplyStatus(delta)

	twice := NewReducer(nil)
	seedAggregate(t, twice)
	twice.ApplyStatus(delta)
	twice.ApplyStatus(delta)

	a, _ := once.Order("P1")
	b, _ := twice.Order("P1")
	if !reflect.DeepEqual(a, b) {
		t.Errorf("double apply diverged:\n once: %+v\ntwice: %+v", a, b)
	}
}

func TestReducer_SummaryConsistency(t *testing.T) {
	r := NewReducer(nil)
	seedAggregate(t, r)

	// Arbitrary delta sequence, including duplicates and out-of-order arrivals.
	deltas := []StatusDelta{
		{ParentOrderID: "P1", SubOrderID: "S1", Status: StatusAccepted, UpdatedAt: 200},
		{ParentOrderID: "P1", SubOrderID: "S2", Status: StatusReady, UpdatedAt: 210},
		{ParentOrderID: "P1", SubOrderID: "S1", Status: StatusAccepted, UpdatedAt: 200},
		{ParentOrderID: "P1", SubOrderID: "S3", VendorID: "v3", Status: StatusPending, UpdatedAt: 220},
		{ParentOrderID: "P1", SubOrderID: "S2", Status: StatusCompleted, UpdatedAt: 230},
		{ParentOrderID: "P1", SubOrderID: "S2", Status: StatusPreparing, UpdatedAt: 205}, // Stale
		{ParentOrderID: "P1", SubOrderID: "S1", Status: StatusRejected, Reason: "out of stock", UpdatedAt: 240},
	}

	for _, d := range deltas {
		r.ApplyStatus(d)

		agg, _ := r.Order("P1")
		fresh := ComputeSummary(agg.SubOrders)
		if agg.Summary != fresh {
			t.Fatalf("summary drifted after %+v:\n  stored: %+v\n  fresh:  %+v", d, agg.Summary, fresh)
		}
		counted := fresh.Pending + fresh.Accepted + fresh.Preparing + fresh.Ready +
			fresh.Completed + fresh.Rejected + fresh.Cancelled
		if counted != len(agg.SubOrders) {
			t.Fatalf("counts total %d, want %d sub-orders", counted, len(agg.SubOrders))
		}
	}
}

func TestReducer_NoRegression(t *testing.T) {
	r := NewReducer(nil)
	seedAggregate(t, r)

	// A newer completion arrives first, then the stale pre-disconnect event.
	r.ApplyStatus(StatusDelta{ParentOrderID: "P1", SubOrderID: "S2", Status: StatusCompleted, UpdatedAt: 500})
	changed := r.ApplyStatus(StatusDelta{ParentOrderID: "P1", SubOrderID: "S2", Status: StatusReady, UpdatedAt: 400})

	if changed {
		t.Error("stale delta should not report a change")
	}
	agg, _ := r.Order("P1")
	if agg.SubOrders[1].Status != StatusCompleted {
		t.Errorf("S2 regressed to %q, want %q", agg.SubOrders[1].Status, StatusCompleted)
	}
}

func TestReducer_NoRegressionWithoutTimestamps(t *testing.T) {
	r := NewReducer(nil)
	r.SeedOrder(OrderAggregate{
		ID:        "P1",
		SubOrders: []SubOrder{{ID: "S1", VendorID: "v1", Status: StatusCompleted}},
	})

	r.ApplyStatus(StatusDelta{ParentOrderID: "P1", SubOrderID: "S1", Status: StatusReady})

	agg, _ := r.Order("P1")
	if agg.SubOrders[0].Status != StatusCompleted {
		t.Errorf("untimestamped delta regressed status to %q", agg.SubOrders[0].Status)
	}
}

func TestReducer_UntrackedDeltaDropped(t *testing.T) {
	r := NewReducer(nil)

	changed := r.ApplyStatus(StatusDelta{ParentOrderID: "ghost", SubOrderID: "S1", Status: StatusReady})
	if changed {
		t.Error("delta for untracked order should be dropped")
	}
	if _, ok := r.Order("ghost"); ok {
		t.Error("no aggregate should be created from an untracked delta")
	}
}

func TestReducer_TrackedButUnseeded(t *testing.T) {
	r := NewReducer(nil)
	r.TrackOrder("P9")

	if _, ok := r.Order("P9"); ok {
		t.Fatal("unseeded order should report no data")
	}

	statuses := r.Statuses()
	if len(statuses) != 1 || statuses[0].ID != "P9" || statuses[0].Status != "" {
		t.Errorf("statuses = %+v, want single empty-status entry for P9", statuses)
	}

	// A delta for a tracked-but-unseeded order creates the sub-order.
	if !r.ApplyStatus(StatusDelta{ParentOrderID: "P9", SubOrderID: "S1", Status: StatusPending, UpdatedAt: 10}) {
		t.Fatal("delta for tracked order should apply")
	}
	agg, ok := r.Order("P9")
	if !ok || len(agg.SubOrders) != 1 {
		t.Fatalf("aggregate = %+v, want one sub-order", agg)
	}
}

func TestReducer_Rejection(t *testing.T) {
	r := NewReducer(nil)
	seedAggregate(t, r)

	r.ApplyStatus(StatusDelta{
		ParentOrderID: "P1",
		SubOrderID:    "S1",
		Status:        StatusRejected,
		Reason:        "closed early",
		RefundID:      "rf_1",
		RefundAmount:  1250,
		UpdatedAt:     300,
	})

	agg, _ := r.Order("P1")
	so := agg.SubOrders[0]
	if so.Status != StatusRejected || so.Reason != "closed early" || so.RefundAmount != 1250 {
		t.Errorf("rejection fields not merged: %+v", so)
	}
	if agg.Summary.Rejected != 1 {
		t.Errorf("summary.Rejected = %d, want 1", agg.Summary.Rejected)
	}
}

func TestReducer_ApplyCompleted(t *testing.T) {
	r := NewReducer(nil)
	seedAggregate(t, r)
	r.ApplyStatus(StatusDelta{ParentOrderID: "P1", SubOrderID: "S1", Status: StatusRejected, UpdatedAt: 200})

	if !r.ApplyCompleted("P1", 300) {
		t.Fatal("expected completion to change the aggregate")
	}

	agg, _ := r.Order("P1")
	if agg.SubOrders[0].Status != StatusRejected {
		t.Error("completion should not overwrite an existing terminal status")
	}
	if agg.SubOrders[1].Status != StatusCompleted {
		t.Errorf("S2 = %q, want completed", agg.SubOrders[1].Status)
	}
	if agg.Summary.Overall != StatusCompleted {
		t.Errorf("overall = %q, want completed", agg.Summary.Overall)
	}

	// Replay is a no-op.
	if r.ApplyCompleted("P1", 300) {
		t.Error("repeated completion should not report a change")
	}
}

func TestReducer_Untrack(t *testing.T) {
	r := NewReducer(nil)
	seedAggregate(t, r)
	r.UntrackOrder("P1")

	if r.ApplyStatus(StatusDelta{ParentOrderID: "P1", SubOrderID: "S1", Status: StatusReady, UpdatedAt: 999}) {
		t.Error("delta after untrack should be dropped")
	}
}

func TestOverallStatus(t *testing.T) {
	tests := []struct {
		name     string
		statuses []Status
		want     Status
	}{
		{"empty", nil, StatusPending},
		{"single pending", []Status{StatusPending}, StatusPending},
		{"mixed live", []Status{StatusReady, StatusAccepted}, StatusAccepted},
		{"ready only", []Status{StatusReady, StatusReady}, StatusReady},
		{"live beats terminal", []Status{StatusCompleted, StatusPreparing}, StatusPreparing},
		{"all completed", []Status{StatusCompleted, StatusCompleted}, StatusCompleted},
		{"completion outranks rejection", []Status{StatusCompleted, StatusRejected}, StatusCompleted},
		{"all rejected", []Status{StatusRejected, StatusRejected}, StatusRejected},
		{"rejected and cancelled", []Status{StatusRejected, StatusCancelled}, StatusRejected},
		{"all cancelled", []Status{StatusCancelled}, StatusCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subs := make([]SubOrder, len(tt.statuses))
			for i, s := range tt.statuses {
				subs[i] = SubOrder{ID: string(rune('a' + i)), Status: s}
			}
			got := ComputeSummary(subs).Overall
			if got != tt.want {
				t.Errorf("overall = %q, want %q", got, tt.want)
			}
		})
	}
}
