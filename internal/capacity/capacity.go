// Package capacity solves the three small integer programs that pick
// pod multisets and retain-sets: Plan, PlanOptimal, and SelectExisting.
//
// There is no branch-and-cut ILP library in active use anywhere in the
// surveyed corpus, so all three are solved by direct branch-and-bound
// search over the (small, bounded) offered price catalogue, pruning on
// a running cost lower bound. This mirrors the teacher's own
// combinatorial-search style for picking a best template
// (internal/simulation/bfd.go's best-fit scan) rather than reaching for
// an external solver.
package capacity

import (
	"math"
	"sort"

	"github.com/guimove/autoscaler/internal/model"
)

// Planner holds the one tunable shared by all three programs: the tiny
// per-pod cost penalty. Plan and PlanOptimal subtract it from each
// pod's cost, so among plans of equal total cost the one with more
// pods scores lower and is chosen.
type Planner struct {
	Penalty float64

	// NodeBudget bounds the number of branch-and-bound states explored
	// before giving up and returning the "no feasible point found"
	// empty result (even if a feasible point was already seen), matching
	// the documented non-optimal/empty fallback semantics.
	NodeBudget int
}

// NewPlanner returns a Planner with the documented default penalty and
// a generous node budget for the catalogue sizes this system expects.
func NewPlanner(penalty float64) Planner {
	return Planner{Penalty: penalty, NodeBudget: 200000}
}

// Plan picks the cheapest non-negative-integer multiset of prices
// whose aggregate (cpu - cpuOver) and (ram - ramOver) cover the given
// demand.
func (p Planner) Plan(prices []model.Price, needCPU, needRAM, cpuOver, ramOver float64) []model.Price {
	return p.solveCover(prices, needCPU, needRAM, func(pr model.Price) (float64, float64) {
		return float64(pr.CPU) - cpuOver, float64(pr.RAM) - ramOver
	})
}

// PlanOptimal is Plan with each pod's contribution scaled down to the
// configured load ceiling before being compared against request-scaled
// demand.
func (p Planner) PlanOptimal(prices []model.Price, requests, cpuPerReq, ramPerReq, cpuOver, ramOver, podLoadMaxPercent float64) []model.Price {
	needCPU := requests * cpuPerReq
	needRAM := requests * ramPerReq
	return p.solveCover(prices, needCPU, needRAM, func(pr model.Price) (float64, float64) {
		return podLoadMaxPercent*float64(pr.CPU) - cpuOver, podLoadMaxPercent*float64(pr.RAM) - ramOver
	})
}

// solveCover is the shared branch-and-bound driver for Plan and
// PlanOptimal: both pick non-negative integer counts per price index
// to cover (needCPU, needRAM), minimising sum (cost-penalty)*count.
// contrib returns a price's effective per-unit (cpu, ram) contribution.
func (p Planner) solveCover(prices []model.Price, needCPU, needRAM float64, contrib func(model.Price) (float64, float64)) []model.Price {
	if len(prices) == 0 || (needCPU <= 0 && needRAM <= 0) {
		return nil
	}

	// Sort cheapest-first; this is also the order branch-and-bound
	// explores, which tends to find good incumbents early.
	ordered := append([]model.Price(nil), prices...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Cost < ordered[j].Cost })

	cpuContrib := make([]float64, len(ordered))
	ramContrib := make([]float64, len(ordered))
	for i, pr := range ordered {
		cpuContrib[i], ramContrib[i] = contrib(pr)
	}

	var best []int
	bestCost := math.Inf(1)
	nodes := 0

	// maxUnits bounds how many of a single price we'd ever need: demand
	// divided by the smallest positive per-unit contribution it offers,
	// plus one to guarantee we can always cover the remainder alone.
	maxUnits := make([]int, len(ordered))
	for i := range ordered {
		u := 1
		if cpuContrib[i] > 0 {
			u = int(math.Ceil(needCPU/cpuContrib[i])) + 1
		}
		if ramContrib[i] > 0 {
			ru := int(math.Ceil(needRAM/ramContrib[i])) + 1
			if ru > u {
				u = ru
			}
		}
		if u < 1 {
			u = 1
		}
		maxUnits[i] = u
	}

	counts := make([]int, len(ordered))

	var recurse func(idx int, residualCPU, residualRAM, cost float64)
	recurse = func(idx int, residualCPU, residualRAM, cost float64) {
		nodes++
		if nodes > p.NodeBudget {
			return
		}
		if cost >= bestCost {
			return
		}
		if residualCPU <= 0 && residualRAM <= 0 {
			if cost < bestCost {
				bestCost = cost
				best = append([]int(nil), counts...)
			}
			return
		}
		if idx >= len(ordered) {
			return
		}

		// Try using 0..maxUnits[idx] copies of this price, largest
		// first so a covering solution (and its cost bound) is found
		// fast and can prune smaller branches below.
		for n := maxUnits[idx]; n >= 0; n-- {
			counts[idx] = n
			nc := residualCPU - float64(n)*cpuContrib[idx]
			nr := residualRAM - float64(n)*ramContrib[idx]
			ncost := cost + float64(n)*(float64(ordered[idx].Cost)-p.Penalty)
			if ncost >= bestCost {
				continue
			}
			recurse(idx+1, nc, nr, ncost)
		}
		counts[idx] = 0
	}

	recurse(0, needCPU, needRAM, 0)
	if best == nil || nodes > p.NodeBudget {
		return nil
	}

	var out []model.Price
	for i, n := range best {
		for j := 0; j < n; j++ {
			out = append(out, ordered[i])
		}
	}
	return out
}

// SelectExisting picks the subset of active pods (by id) that covers
// the overhead-adjusted demand, minimising the count of retained pods.
// Returns nil ("no feasible retain-set") when no subset is feasible;
// callers test len(ids) == 0.
func (p Planner) SelectExisting(pods []model.Resource, needCPU, needRAM, cpuOver, ramOver float64) []int {
	if len(pods) == 0 {
		return nil
	}

	// Largest-capacity-first ordering finds a feasible incumbent fast.
	ordered := append([]model.Resource(nil), pods...)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].CPU != ordered[j].CPU {
			return ordered[i].CPU > ordered[j].CPU
		}
		return ordered[i].RAM > ordered[j].RAM
	})

	totalCPU, totalRAM := 0.0, 0.0
	for _, pd := range ordered {
		totalCPU += float64(pd.CPU) - cpuOver
		totalRAM += float64(pd.RAM) - ramOver
	}
	if totalCPU < needCPU || totalRAM < needRAM {
		return nil
	}

	n := len(ordered)
	selected := make([]bool, n)
	var best []bool
	bestCount := n + 1
	nodes := 0

	var recurse func(idx int, chosen int, remCPU, remRAM float64, remainingCPU, remainingRAM float64)
	recurse = func(idx int, chosen int, remCPU, remRAM float64, remainingCPU, remainingRAM float64) {
		nodes++
		if nodes > p.NodeBudget {
			return
		}
		if chosen >= bestCount {
			return
		}
		if remCPU <= 0 && remRAM <= 0 {
			if chosen < bestCount {
				bestCount = chosen
				best = append([]bool(nil), selected...)
			}
			return
		}
		if idx >= n {
			return
		}
		// Upper bound: even taking every remaining pod can't cover demand.
		if remainingCPU < remCPU || remainingRAM < remRAM {
			return
		}

		cpuC := float64(ordered[idx].CPU) - cpuOver
		ramC := float64(ordered[idx].RAM) - ramOver

		// Branch: take this pod.
		selected[idx] = true
		recurse(idx+1, chosen+1, remCPU-cpuC, remRAM-ramC, remainingCPU-cpuC, remainingRAM-ramC)
		selected[idx] = false

		// Branch: skip this pod.
		recurse(idx+1, chosen, remCPU, remRAM, remainingCPU-cpuC, remainingRAM-ramC)
	}

	recurse(0, 0, needCPU, needRAM, totalCPU, totalRAM)
	if best == nil || nodes > p.NodeBudget {
		return nil
	}

	var ids []int
	for i, b := range best {
		if b {
			ids = append(ids, ordered[i].ID)
		}
	}
	return ids
}
