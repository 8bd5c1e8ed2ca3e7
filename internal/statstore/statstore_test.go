package statstore

import (
	"os"
	"testing"
	"time"

	"github.com/guimove/autoscaler/internal/capacity"
	"github.com/guimove/autoscaler/internal/model"
)

func vmPrices() []model.Price {
	return []model.Price{
		{ID: 1, Cost: 10, CPU: 1, RAM: 2, Type: model.ResourceVM},
		{ID: 2, Cost: 40, CPU: 4, RAM: 8, Type: model.ResourceVM},
	}
}

func dbPrices() []model.Price {
	return []model.Price{
		{ID: 3, Cost: 15, CPU: 2, RAM: 4, Type: model.ResourceDB},
	}
}

func allPrices() map[model.ResourceType][]model.Price {
	return map[model.ResourceType][]model.Price{
		model.ResourceVM: vmPrices(),
		model.ResourceDB: dbPrices(),
	}
}

func TestRecord_BoundsToMemorySize(t *testing.T) {
	s := New(3, capacity.NewPlanner(0.001))
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		st := model.Stat{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			VMCPULoad: 10, VMRAMLoad: 10, DBCPULoad: 10, DBRAMLoad: 10,
		}
		s.Record(st, allPrices())
	}
	if s.Len() > 3 {
		t.Fatalf("expected len <= 3, got %d", s.Len())
	}
}

func TestRecord_DuplicateTimestampReplaces(t *testing.T) {
	s := New(5, capacity.NewPlanner(0.001))
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.Record(model.Stat{Timestamp: ts, Requests: 1}, allPrices())
	s.Record(model.Stat{Timestamp: ts, Requests: 99}, allPrices())
	if s.Len() != 1 {
		t.Fatalf("expected a single entry for duplicate timestamp, got %d", s.Len())
	}
	last, ok := s.Last()
	if !ok || last.Requests != 99 {
		t.Fatalf("expected replaced entry with requests=99, got %+v", last)
	}
}

func TestFitOverhead_AbortsOnZeroLoad(t *testing.T) {
	s := New(5, capacity.NewPlanner(0.001))
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	before := s.Model()

	s.Record(model.Stat{
		Timestamp: base, Requests: 100,
		VMCPU: 10, VMCPULoad: 0, VMRAMLoad: 10, DBCPULoad: 10, DBRAMLoad: 10,
	}, allPrices())
	s.Record(model.Stat{
		Timestamp: base.Add(time.Minute), Requests: 200,
		VMCPU: 10, VMCPULoad: 20, VMRAMLoad: 10, DBCPULoad: 10, DBRAMLoad: 10,
	}, allPrices())

	after := s.Model()
	if after.VMCPUOverhead != before.VMCPUOverhead {
		t.Errorf("expected overhead model unchanged on zero-load abort")
	}
	if s.IsFit() {
		t.Error("expected is_fit to latch false after a zero-load abort")
	}
}

func TestFitOverhead_RejectsNegativeCoefficient(t *testing.T) {
	// Requests grow 100->200 while vm_cpu_load falls 50%->20% with
	// capacity (and hence plan size) held constant: the per-request
	// coefficient solves to a negative slope, so the whole fit (all
	// four dimensions) must be discarded and the previous model kept.
	s := New(5, capacity.NewPlanner(0.001))
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	before := s.Model()

	mk := func(ts time.Time, requests, vmCPULoad float64) model.Stat {
		return model.Stat{
			Timestamp: ts, Requests: requests,
			VMCPU: 10, VMRAM: 20, VMCPULoad: vmCPULoad, VMRAMLoad: 50,
			DBCPU: 10, DBRAM: 20, DBCPULoad: 50, DBRAMLoad: 50,
		}
	}
	s.Record(mk(base, 100, 50), allPrices())
	s.Record(mk(base.Add(time.Minute), 200, 20), allPrices())

	after := s.Model()
	if after != before {
		t.Errorf("expected model unchanged on negative-coefficient rejection, before=%+v after=%+v", before, after)
	}
	if s.IsFit() {
		t.Error("rejected fit must not set is_fit")
	}
}

func TestFitOverhead_AcceptsValidFit(t *testing.T) {
	s := New(5, capacity.NewPlanner(0.001))
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	mk := func(ts time.Time, requests, vmCPULoad, vmRAMLoad float64) model.Stat {
		return model.Stat{
			Timestamp: ts, Requests: requests,
			VMCPU: 10, VMRAM: 20, VMCPULoad: vmCPULoad, VMRAMLoad: vmRAMLoad,
			DBCPU: 10, DBRAM: 20, DBCPULoad: vmCPULoad, DBRAMLoad: vmRAMLoad,
		}
	}
	s.Record(mk(base, 100, 80, 70), allPrices())
	s.Record(mk(base.Add(time.Minute), 110, 85, 75), allPrices())

	// These inputs solve to non-negative coefficients on all four
	// dimensions (vm cpu: over=0.3, per_req=0.05), so the fit is
	// accepted and is_fit latches true; the recorded overhead must
	// never be negative.
	if !s.IsFit() {
		t.Error("expected the fit to be accepted and is_fit set")
	}
	over, _ := s.Overhead(model.ResourceVM)
	if over < 0 {
		t.Errorf("overhead must never go negative, got %v", over)
	}
}

func TestHistory_ReturnsOldestFirstBounded(t *testing.T) {
	s := New(10, capacity.NewPlanner(0.001))
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		s.Record(model.Stat{
			Timestamp: base.Add(time.Duration(i) * time.Minute), Requests: float64(i),
			VMCPULoad: 10, VMRAMLoad: 10, DBCPULoad: 10, DBRAMLoad: 10,
		}, allPrices())
	}
	h := s.History(3)
	if len(h) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(h))
	}
	if h[0].Requests != 2 || h[2].Requests != 4 {
		t.Errorf("expected oldest-first last-3 window, got %v", h)
	}
}

func TestSaveLoad_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	s := New(5, capacity.NewPlanner(0.001))
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.Record(model.Stat{Timestamp: base, Requests: 42, VMCPULoad: 10, VMRAMLoad: 10, DBCPULoad: 10, DBRAMLoad: 10}, allPrices())

	if err := s.Save(dir); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := os.Stat(dir + "/memory.gob"); err != nil {
		t.Fatalf("expected memory.gob to exist: %v", err)
	}

	loaded := New(5, capacity.NewPlanner(0.001))
	if err := loaded.Load(dir); err != nil {
		t.Fatalf("load: %v", err)
	}
	last, ok := loaded.Last()
	if !ok || last.Requests != 42 {
		t.Fatalf("expected round-tripped stat with requests=42, got %+v", last)
	}
}

func TestLoad_MissingFileIsNotError(t *testing.T) {
	s := New(5, capacity.NewPlanner(0.001))
	if err := s.Load(t.TempDir()); err != nil {
		t.Fatalf("expected missing state file to be a no-op, got %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("expected empty store, got len=%d", s.Len())
	}
}
