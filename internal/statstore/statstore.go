// Package statstore holds the rolling, time-indexed history of load
// samples, fits the per-pod overhead model from it, and persists the
// history to disk between process restarts.
package statstore

import (
	"encoding/gob"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/guimove/autoscaler/internal/capacity"
	"github.com/guimove/autoscaler/internal/model"
)

// entry wraps a recorded Stat.
type entry struct {
	Stat model.Stat
}

// StatStore is the insertion-ordered, bounded mapping from timestamp to
// Stat described in the data model, plus the overhead model it derives
// from consecutive observations.
type StatStore struct {
	memorySize int
	planner    capacity.Planner

	order   []time.Time
	byStamp map[time.Time]entry

	model model.OverheadModel
}

// New returns an empty StatStore bounded to memorySize entries.
func New(memorySize int, planner capacity.Planner) *StatStore {
	return &StatStore{
		memorySize: memorySize,
		planner:    planner,
		byStamp:    make(map[time.Time]entry),
		model:      model.DefaultOverheadModel(),
	}
}

// Record appends stat keyed by its timestamp, evicting the eldest
// entry on overflow, then attempts to refit the overhead model against
// this tick's prices.
func (s *StatStore) Record(stat model.Stat, prices map[model.ResourceType][]model.Price) {
	ts := stat.Timestamp
	if _, exists := s.byStamp[ts]; !exists {
		s.order = append(s.order, ts)
	}
	s.byStamp[ts] = entry{Stat: stat}

	for len(s.order) > s.memorySize {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.byStamp, oldest)
	}

	s.fitOverhead(prices)
}

// Last returns the most recently recorded Stat, and false if the store
// is empty.
func (s *StatStore) Last() (model.Stat, bool) {
	if len(s.order) == 0 {
		return model.Stat{}, false
	}
	return s.byStamp[s.order[len(s.order)-1]].Stat, true
}

// Len returns the number of entries currently held.
func (s *StatStore) Len() int {
	return len(s.order)
}

// IsFit reports the overhead model's fitted flag: set by an accepted
// refit, cleared by a later fit attempt that aborts on a zero-load
// reading, and left as it was by a rejected fit.
func (s *StatStore) IsFit() bool {
	return s.model.IsOverheadCalc
}

// Overhead returns the (cpu_over, ram_over) pair for a resource type.
func (s *StatStore) Overhead(t model.ResourceType) (float64, float64) {
	return s.model.Overhead(t)
}

// Model returns a copy of the current overhead model.
func (s *StatStore) Model() model.OverheadModel {
	return s.model
}

// History returns up to the last n Stats in insertion order (oldest
// first).
func (s *StatStore) History(n int) []model.Stat {
	if n > len(s.order) {
		n = len(s.order)
	}
	if n <= 0 {
		return nil
	}
	start := len(s.order) - n
	out := make([]model.Stat, 0, n)
	for _, ts := range s.order[start:] {
		out = append(out, s.byStamp[ts].Stat)
	}
	return out
}

// PlanDemand materialises the cheapest multiset of prices for the
// given request count scaled via the current per-request overhead
// model and pod load ceiling, delegating to the capacity planner.
func (s *StatStore) PlanDemand(prices []model.Price, t model.ResourceType, requestCount float64, podLoadMaxPercent float64) []model.Price {
	cpuOver, ramOver := s.model.Overhead(t)
	cpuPerReq, ramPerReq := s.model.PerRequest(t)
	return s.planner.PlanOptimal(prices, requestCount, cpuPerReq, ramPerReq, cpuOver, ramOver, podLoadMaxPercent)
}

// dimensionSpec names one of the four (type, dimension) axes the
// overhead fit solves independently.
type dimensionSpec struct {
	typ model.ResourceType
	dim model.Dimension
}

var dimensions = [4]dimensionSpec{
	{model.ResourceVM, model.CPU},
	{model.ResourceVM, model.RAM},
	{model.ResourceDB, model.CPU},
	{model.ResourceDB, model.RAM},
}

// fitOverhead implements the 2x2 linear-system fit from the two most
// recent observations, sizing both hypothetical plans against this
// tick's prices argument (the same catalogue for both equations, per
// original_source/src/services/stats.py::_calculate_overhead — not the
// possibly-stale catalogue in effect when the older observation was
// recorded). Aborts (model unchanged save for the latch flip to false)
// if any required load reading is zero; rejects the whole fit
// atomically if any solved coefficient is negative.
func (s *StatStore) fitOverhead(prices map[model.ResourceType][]model.Price) {
	if len(s.order) < 2 {
		return
	}
	s1 := s.byStamp[s.order[len(s.order)-1]]
	s2 := s.byStamp[s.order[len(s.order)-2]]

	loads := []float64{
		s1.Stat.VMCPULoad, s1.Stat.VMRAMLoad, s1.Stat.DBCPULoad, s1.Stat.DBRAMLoad,
		s2.Stat.VMCPULoad, s2.Stat.VMRAMLoad, s2.Stat.DBCPULoad, s2.Stat.DBRAMLoad,
	}
	for _, l := range loads {
		if l == 0 {
			s.model.IsOverheadCalc = false
			return
		}
	}

	n1 := make(map[model.ResourceType]float64, 2)
	n2 := make(map[model.ResourceType]float64, 2)
	for _, t := range model.ResourceTypes {
		n1[t] = float64(len(s.planner.Plan(prices[t], s1.Stat.Cap(t, model.CPU), s1.Stat.Cap(t, model.RAM), 0, 0)))
		n2[t] = float64(len(s.planner.Plan(prices[t], s2.Stat.Cap(t, model.CPU), s2.Stat.Cap(t, model.RAM), 0, 0)))
	}

	results := make(map[dimensionSpec][2]float64, 4)
	for _, d := range dimensions {
		cap1 := s1.Stat.Cap(d.typ, d.dim)
		load1 := s1.Stat.CapLoad(d.typ, d.dim)
		cap2 := s2.Stat.Cap(d.typ, d.dim)
		load2 := s2.Stat.CapLoad(d.typ, d.dim)

		over, perReq, ok := solve2x2(n1[d.typ], s1.Stat.Requests, cap1*load1/100,
			n2[d.typ], s2.Stat.Requests, cap2*load2/100)
		if !ok || over < 0 || perReq < 0 {
			return
		}
		results[d] = [2]float64{over, perReq}
	}

	for _, d := range dimensions {
		r := results[d]
		assignOverhead(&s.model, d, r[0], r[1])
	}
	s.model.IsOverheadCalc = true
}

func assignOverhead(m *model.OverheadModel, d dimensionSpec, over, perReq float64) {
	switch {
	case d.typ == model.ResourceVM && d.dim == model.CPU:
		m.VMCPUOverhead, m.VMCPUPerReq = over, perReq
	case d.typ == model.ResourceVM && d.dim == model.RAM:
		m.VMRAMOverhead, m.VMRAMPerReq = over, perReq
	case d.typ == model.ResourceDB && d.dim == model.CPU:
		m.DBCPUOverhead, m.DBCPUPerReq = over, perReq
	default:
		m.DBRAMOverhead, m.DBRAMPerReq = over, perReq
	}
}

// solve2x2 solves [[a1,b1],[a2,b2]]*[x,y] = [c1,c2] via Cramer's rule.
// ok is false if the system is singular.
func solve2x2(a1, b1, c1, a2, b2, c2 float64) (x, y float64, ok bool) {
	det := a1*b2 - b1*a2
	if det == 0 {
		return 0, 0, false
	}
	x = (c1*b2 - b1*c2) / det
	y = (a1*c2 - c1*a2) / det
	return x, y, true
}

// persistedState is the gob-serialisable snapshot of a StatStore's
// ordered history, mirroring the original's single pickled mapping.
type persistedState struct {
	Order   []time.Time
	Entries map[time.Time]entry
	Model   model.OverheadModel
}

// Save gob-encodes the store's state to memory.gob under dir.
func (s *StatStore) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.Create(filepath.Join(dir, "memory.gob"))
	if err != nil {
		return err
	}
	defer f.Close()

	state := persistedState{
		Order:   s.order,
		Entries: s.byStamp,
		Model:   s.model,
	}
	return gob.NewEncoder(f).Encode(state)
}

// Load decodes memory.gob from dir into the store, if present. A
// missing file is not an error: the store stays empty.
func (s *StatStore) Load(dir string) error {
	f, err := os.Open(filepath.Join(dir, "memory.gob"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	var state persistedState
	if err := gob.NewDecoder(f).Decode(&state); err != nil {
		return err
	}

	sort.Slice(state.Order, func(i, j int) bool { return state.Order[i].Before(state.Order[j]) })
	s.order = state.Order
	s.byStamp = state.Entries
	if s.byStamp == nil {
		s.byStamp = make(map[time.Time]entry)
	}
	s.model = state.Model
	return nil
}
