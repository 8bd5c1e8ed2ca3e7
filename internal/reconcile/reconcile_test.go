package reconcile

import (
	"testing"

	"github.com/guimove/autoscaler/internal/capacity"
	"github.com/guimove/autoscaler/internal/model"
)

func TestDiff_OfflineRegime_SingleResize(t *testing.T) {
	// Scenario 5: one pod {cpu=1,ram=2} at 99% load (offline, max_load=95);
	// need_pods = [{4,8}]. Expected: single resize, no creates/deletes.
	pods := []model.Resource{{ID: 7, CPU: 1, RAM: 2, CPULoad: 99}}
	need := []model.Price{{CPU: 4, RAM: 8, Type: model.ResourceVM}}

	res := Diff(pods, need, true, capacity.NewPlanner(0.001), 0, 0, 0, 0)
	if len(res.ToCreate) != 0 || len(res.ToDelete) != 0 {
		t.Fatalf("expected no creates/deletes, got %+v", res)
	}
	if len(res.ToUpdate) != 1 || res.ToUpdate[0].ID != 7 || res.ToUpdate[0].Target.CPU != 4 || res.ToUpdate[0].Target.RAM != 8 {
		t.Fatalf("expected resize of pod 7 to {4,8}, got %+v", res.ToUpdate)
	}
}

func TestDiff_OfflineRegime_ShapeMatchSkips(t *testing.T) {
	pods := []model.Resource{{ID: 1, CPU: 4, RAM: 8}}
	need := []model.Price{{CPU: 4, RAM: 8}}
	res := Diff(pods, need, true, capacity.NewPlanner(0.001), 0, 0, 0, 0)
	if len(res.ToCreate) != 0 || len(res.ToUpdate) != 0 || len(res.ToDelete) != 0 {
		t.Fatalf("expected no-op on exact shape match, got %+v", res)
	}
}

func TestDiff_OfflineRegime_SmallerDesiredCreates(t *testing.T) {
	pods := []model.Resource{{ID: 1, CPU: 8, RAM: 16}}
	need := []model.Price{{CPU: 2, RAM: 4}}
	res := Diff(pods, need, true, capacity.NewPlanner(0.001), 0, 0, 0, 0)
	if len(res.ToCreate) != 1 {
		t.Fatalf("expected a create when desired pod is smaller on both dims, got %+v", res)
	}
	if len(res.ToDelete) != 0 || len(res.ToUpdate) != 0 {
		t.Fatalf("expected the paired pod left in place (no delete, no resize), got %+v", res)
	}
}

func TestDiff_NormalRegime_ShapeMatchRetention(t *testing.T) {
	// Scenario 6: current fleet [{2,4},{2,4}], need_pods [{2,4},{2,4}],
	// select_existing retains both. Expected (∅, ∅, ∅).
	pods := []model.Resource{
		{ID: 1, CPU: 2, RAM: 4},
		{ID: 2, CPU: 2, RAM: 4},
	}
	need := []model.Price{{CPU: 2, RAM: 4}, {CPU: 2, RAM: 4}}

	res := Diff(pods, need, false, capacity.NewPlanner(0.001), 4, 8, 0, 0)
	if len(res.ToCreate) != 0 || len(res.ToUpdate) != 0 || len(res.ToDelete) != 0 {
		t.Fatalf("expected no-op for identical multisets, got %+v", res)
	}
}

func TestDiff_NormalRegime_Bootstrap_PlanFromScratch(t *testing.T) {
	// No existing pods: select_existing trivially returns empty, so the
	// scheduler never reaches here with an empty fleet in practice (the
	// tick short-circuits to bootstrap), but the reconciler must still
	// behave per the "plan from scratch" contract if ever called this way.
	need := []model.Price{{CPU: 1, RAM: 2}, {CPU: 1, RAM: 2}, {CPU: 1, RAM: 2}}
	res := Diff(nil, need, false, capacity.NewPlanner(0.001), 3, 6, 0, 0)
	if len(res.ToCreate) != 3 {
		t.Fatalf("expected 3 creates, got %+v", res)
	}
	if len(res.ToUpdate) != 0 || len(res.ToDelete) != 0 {
		t.Fatalf("plan-from-scratch must never update or delete, got %+v", res)
	}
}

func TestDiff_NormalRegime_PlanFromScratch_SkipsExistingShapes(t *testing.T) {
	pods := []model.Resource{{ID: 1, CPU: 1, RAM: 2}}
	need := []model.Price{{CPU: 1, RAM: 2}, {CPU: 4, RAM: 8}}
	// needCPU/needRAM deliberately infeasible so select_existing must
	// return empty and trigger the plan-from-scratch branch.
	res := Diff(pods, need, false, capacity.NewPlanner(0.001), 1000, 1000, 0, 0)
	if len(res.ToCreate) != 1 || res.ToCreate[0].CPU != 4 {
		t.Fatalf("expected only the {4,8} shape created (1,2 already present), got %+v", res)
	}
	if len(res.ToUpdate) != 0 || len(res.ToDelete) != 0 {
		t.Fatalf("plan-from-scratch must leave surplus/mismatched pods untouched, got %+v", res)
	}
}

func TestDiff_NormalRegime_RetainSubsetThenDiffRemainder(t *testing.T) {
	pods := []model.Resource{
		{ID: 1, CPU: 8, RAM: 16},
		{ID: 2, CPU: 1, RAM: 2},
	}
	need := []model.Price{{CPU: 8, RAM: 16}, {CPU: 4, RAM: 8}}

	// Demand matches the big pod's shape exactly, so select_existing's
	// minimal-count cover retains only pod 1, freeing pod 2 for the
	// remainder walk.
	res := Diff(pods, need, false, capacity.NewPlanner(0.001), 8, 16, 0, 0)
	// The big pod should be retained untouched (shape match, removed
	// from the working set before the remainder walk), and the small
	// pod resized up to {4,8}.
	if len(res.ToCreate) != 0 || len(res.ToDelete) != 0 {
		t.Fatalf("expected only a resize, got %+v", res)
	}
	if len(res.ToUpdate) != 1 || res.ToUpdate[0].ID != 2 {
		t.Fatalf("expected pod 2 resized, got %+v", res.ToUpdate)
	}
}
