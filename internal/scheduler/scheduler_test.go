package scheduler

import (
	"testing"

	"github.com/guimove/autoscaler/internal/model"
)

func TestDampened_FewerThanFourEntriesNeverSkips(t *testing.T) {
	s := &Scheduler{}
	s.cfg.Delta = 0.2
	s.cfg.Gap = 4

	trail := &model.LoadTrail{CPULoad: []float64{100}, RAMLoad: []float64{100}}
	if s.dampened(trail) {
		t.Error("expected dampening to never trigger with fewer than 4 entries")
	}
}

func TestDampened_SkipsWhenChangeBelowDelta(t *testing.T) {
	s := &Scheduler{}
	s.cfg.Delta = 0.2
	s.cfg.Gap = 4

	trail := &model.LoadTrail{
		CPULoad: []float64{100, 100, 100, 100, 100},
		RAMLoad: []float64{100, 100, 100, 100, 100},
	}
	if !s.dampened(trail) {
		t.Error("expected dampening to trigger when relative diff is 0 < delta")
	}
}

func TestDampened_DoesNotSkipOnLargeChange(t *testing.T) {
	s := &Scheduler{}
	s.cfg.Delta = 0.2
	s.cfg.Gap = 4

	trail := &model.LoadTrail{
		CPULoad: []float64{10, 10, 10, 10, 100},
		RAMLoad: []float64{10, 10, 10, 10, 100},
	}
	if s.dampened(trail) {
		t.Error("expected no dampening on a large relative jump")
	}
}

func TestSumWeightedLoad_MatchesOverheadFormula(t *testing.T) {
	pods := []model.Resource{
		{CPU: 2, CPULoad: 50},
		{CPU: 4, CPULoad: 25},
	}
	got := sumWeightedLoad(pods, func(r model.Resource) (float64, float64) { return float64(r.CPU), r.CPULoad })
	// (2*50 + 4*25) / 100 = (100+100)/100 = 2
	if got != 2 {
		t.Errorf("expected 2, got %v", got)
	}
}

func TestSumWeightedLoad_EmptyIsZero(t *testing.T) {
	if got := sumWeightedLoad(nil, func(r model.Resource) (float64, float64) { return float64(r.CPU), r.CPULoad }); got != 0 {
		t.Errorf("expected 0 for no pods, got %v", got)
	}
}

func TestScaledCapacity(t *testing.T) {
	plan := []model.Price{{CPU: 4, RAM: 8}, {CPU: 4, RAM: 8}}
	cpu, ram := scaledCapacity(plan, 0.9, 0, 0)
	if cpu != 7.2 {
		t.Errorf("expected cpu=7.2, got %v", cpu)
	}
	if ram != 14.4 {
		t.Errorf("expected ram=14.4, got %v", ram)
	}
}
