// Package reconcile diffs a desired pod multiset against the current
// fleet of a single resource type into create/update/delete
// operations, under the offline and normal regimes.
package reconcile

import (
	"sort"

	"github.com/guimove/autoscaler/internal/capacity"
	"github.com/guimove/autoscaler/internal/model"
)

// Update is a resize of an existing pod to a new shape.
type Update struct {
	ID     int
	Target model.PostResource
}

// Result is the three operation lists the scheduler dispatches.
type Result struct {
	ToCreate []model.PostResource
	ToUpdate []Update
	ToDelete []int
}

// sortPodsDescending orders by (cpu, ram) descending, the shape comparison
// order both regimes walk pods and needs in.
func sortPodsDescending(pods []model.Resource) []model.Resource {
	out := append([]model.Resource(nil), pods...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].CPU != out[j].CPU {
			return out[i].CPU > out[j].CPU
		}
		return out[i].RAM > out[j].RAM
	})
	return out
}

func sortPricesDescending(prices []model.Price) []model.Price {
	out := append([]model.Price(nil), prices...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].CPU != out[j].CPU {
			return out[i].CPU > out[j].CPU
		}
		return out[i].RAM > out[j].RAM
	})
	return out
}

func shape(cpu, ram int) [2]int { return [2]int{cpu, ram} }

// Diff produces create/update/delete operations for one resource type.
// offline selects the fast-recovery regime (the scheduler sets it when
// any active pod of the type reports a CPU or RAM load at or above
// max_load).
// pods must be the full set of pods of this type read this tick
// (active and failed); planner and need{CPU,RAM}/overheads are only
// consulted in the normal regime, to run select_existing.
func Diff(pods []model.Resource, needPods []model.Price, offline bool, planner capacity.Planner, needCPU, needRAM, cpuOver, ramOver float64) Result {
	if offline {
		return diffOffline(pods, needPods)
	}
	return diffNormal(pods, needPods, planner, needCPU, needRAM, cpuOver, ramOver)
}

// diffOffline implements the "fastest recovery" regime: pairwise walk
// of both lists sorted descending by (cpu, ram); exact shape matches
// are left alone, a desired pod at least as large on either dimension
// becomes a resize, otherwise a create; leftovers on either side
// become creates or deletes respectively.
func diffOffline(pods []model.Resource, needPods []model.Price) Result {
	sortedPods := sortPodsDescending(pods)
	sortedNeeds := sortPricesDescending(needPods)

	var res Result
	i, j := 0, 0
	for i < len(sortedPods) && j < len(sortedNeeds) {
		p := sortedPods[i]
		n := sortedNeeds[j]
		switch {
		case p.CPU == n.CPU && p.RAM == n.RAM:
			// exact match, leave as-is
		case n.CPU >= p.CPU || n.RAM >= p.RAM:
			res.ToUpdate = append(res.ToUpdate, Update{ID: p.ID, Target: model.PostResource{CPU: n.CPU, RAM: n.RAM, Type: n.Type}})
		default:
			res.ToCreate = append(res.ToCreate, model.PostResource{CPU: n.CPU, RAM: n.RAM, Type: n.Type})
		}
		i++
		j++
	}
	for ; j < len(sortedNeeds); j++ {
		n := sortedNeeds[j]
		res.ToCreate = append(res.ToCreate, model.PostResource{CPU: n.CPU, RAM: n.RAM, Type: n.Type})
	}
	for ; i < len(sortedPods); i++ {
		res.ToDelete = append(res.ToDelete, sortedPods[i].ID)
	}
	return res
}

// diffNormal implements the retain-then-diff regime. It first tries
// select_existing on the active pods; if that returns no feasible
// retain-set, it falls back to the documented "plan from scratch"
// branch: only creates for shapes not already present, no
// deletes/updates for this tick (preserved bit-for-bit; see
// DESIGN.md).
func diffNormal(pods []model.Resource, needPods []model.Price, planner capacity.Planner, needCPU, needRAM, cpuOver, ramOver float64) Result {
	var active []model.Resource
	for _, p := range pods {
		if !p.Failed {
			active = append(active, p)
		}
	}

	retainedIDs := planner.SelectExisting(active, needCPU, needRAM, cpuOver, ramOver)
	if len(retainedIDs) == 0 {
		return planFromScratch(pods, needPods)
	}

	retained := make(map[int]bool, len(retainedIDs))
	for _, id := range retainedIDs {
		retained[id] = true
	}

	var working []model.Resource
	for _, p := range pods {
		if !retained[p.ID] {
			working = append(working, p)
		}
	}

	remainingNeeds := removeMatchedShapes(needPods, pods, retained)

	return diffRemainder(working, remainingNeeds)
}

// diffRemainder walks the non-retained pods and unmatched needs
// (sorted descending by (cpu, ram)) pairwise: exact shape matches are
// left alone, every other pairing is always a resize (never a create
// that abandons the paired pod untouched) — the normal-regime walk
// from original_source/src/services/scheduler.py::_calculate_vm_changes,
// distinct from the offline regime's match/resize-if-larger/create
// 3-way branch. Leftover needs become creates; leftover pods become
// deletes.
func diffRemainder(pods []model.Resource, needPods []model.Price) Result {
	sortedPods := sortPodsDescending(pods)
	sortedNeeds := sortPricesDescending(needPods)

	var res Result
	i, j := 0, 0
	for i < len(sortedPods) && j < len(sortedNeeds) {
		p := sortedPods[i]
		n := sortedNeeds[j]
		if p.CPU != n.CPU || p.RAM != n.RAM {
			res.ToUpdate = append(res.ToUpdate, Update{ID: p.ID, Target: model.PostResource{CPU: n.CPU, RAM: n.RAM, Type: n.Type}})
		}
		i++
		j++
	}
	for ; j < len(sortedNeeds); j++ {
		n := sortedNeeds[j]
		res.ToCreate = append(res.ToCreate, model.PostResource{CPU: n.CPU, RAM: n.RAM, Type: n.Type})
	}
	for ; i < len(sortedPods); i++ {
		res.ToDelete = append(res.ToDelete, sortedPods[i].ID)
	}
	return res
}

// removeMatchedShapes removes, one-for-one on first match, any
// needPods entry whose (cpu, ram) shape matches a retained pod.
func removeMatchedShapes(needPods []model.Price, pods []model.Resource, retained map[int]bool) []model.Price {
	var retainedShapes []model.Resource
	for _, p := range pods {
		if retained[p.ID] {
			retainedShapes = append(retainedShapes, p)
		}
	}

	used := make([]bool, len(retainedShapes))
	var remaining []model.Price
	for _, n := range needPods {
		matched := false
		for i, r := range retainedShapes {
			if used[i] {
				continue
			}
			if r.CPU == n.CPU && r.RAM == n.RAM {
				used[i] = true
				matched = true
				break
			}
		}
		if !matched {
			remaining = append(remaining, n)
		}
	}
	return remaining
}

// planFromScratch emits only creates for needPods shapes not already
// present anywhere in the current fleet, and no deletes/updates. This
// leaves surplus or wrong-size pods in place for the tick: surprising,
// but the documented contract when no retain plan is feasible.
func planFromScratch(pods []model.Resource, needPods []model.Price) Result {
	present := make(map[[2]int]bool, len(pods))
	for _, p := range pods {
		present[shape(p.CPU, p.RAM)] = true
	}

	var res Result
	for _, n := range needPods {
		if !present[shape(n.CPU, n.RAM)] {
			res.ToCreate = append(res.ToCreate, model.PostResource{CPU: n.CPU, RAM: n.RAM, Type: n.Type})
		}
	}
	return res
}
