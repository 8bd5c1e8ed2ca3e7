// Package scheduler drives the periodic tick: fetch prices, record the
// latest stat, refit the forecast, then plan and reconcile each
// resource type, dispatching mutations concurrently. The worker-pool
// dispatch pattern is grounded on the teacher's
// simulation.Engine.RunAll (sync.WaitGroup + buffered-channel
// semaphore).
package scheduler

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/guimove/autoscaler/internal/capacity"
	"github.com/guimove/autoscaler/internal/config"
	"github.com/guimove/autoscaler/internal/forecast"
	"github.com/guimove/autoscaler/internal/model"
	"github.com/guimove/autoscaler/internal/reconcile"
	"github.com/guimove/autoscaler/internal/remoteapi"
	"github.com/guimove/autoscaler/internal/statstore"
	"github.com/guimove/autoscaler/internal/telemetry"
)

// Scheduler owns all tick-scoped state: the stat store, the per-type
// load trail, and the current forecast. Only one tick runs at a time,
// so none of this needs synchronization (§5 "Shared state").
type Scheduler struct {
	cfg     config.Config
	log     *zap.SugaredLogger
	metrics *telemetry.Metrics

	prices   remoteapi.PriceClient
	resource remoteapi.ResourceClient
	stats    remoteapi.StatClient

	store      *statstore.StatStore
	forecaster *forecast.Forecaster
	planner    capacity.Planner

	trails map[model.ResourceType]*model.LoadTrail
}

// New wires a Scheduler from its collaborators. This is a hand-wired
// composition root: no DI framework is used (see SPEC_FULL.md
// "Supplemented features").
func New(cfg config.Config, log *zap.SugaredLogger, metrics *telemetry.Metrics, client *remoteapi.Client, store *statstore.StatStore, fc *forecast.Forecaster) *Scheduler {
	return &Scheduler{
		cfg:        cfg,
		log:        log,
		metrics:    metrics,
		prices:     remoteapi.NewPriceClient(client),
		resource:   remoteapi.NewResourceClient(client),
		stats:      remoteapi.NewStatClient(client),
		store:      store,
		forecaster: fc,
		planner:    capacity.NewPlanner(cfg.Penalty),
		trails: map[model.ResourceType]*model.LoadTrail{
			model.ResourceVM: {},
			model.ResourceDB: {},
		},
	}
}

// Run is the top-level loop: catch any tick-level error, log it, sleep
// sleep_second, and retry. There is no in-tick retry (§4.6).
func (s *Scheduler) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		start := time.Now()
		err := s.Tick(ctx)
		s.metrics.TickDuration.Observe(time.Since(start).Seconds())

		switch {
		case err != nil:
			s.metrics.TickTotal.WithLabelValues("error").Inc()
			s.log.Errorw("tick failed", "error", err)
		default:
			s.metrics.TickTotal.WithLabelValues("ok").Inc()
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(s.cfg.SleepSecond) * time.Second):
		}
	}
}

// Tick implements one iteration of §4.5: fetch prices, record the
// latest stat, refit the forecast, fetch the fleet, bootstrap if
// empty, otherwise plan and reconcile each resource type in order.
func (s *Scheduler) Tick(ctx context.Context) error {
	prices, err := s.prices.Grouped(ctx)
	if err != nil {
		return fmt.Errorf("fetching prices: %w", err)
	}
	s.log.Debugw("fetched prices", "vm", len(prices[model.ResourceVM]), "db", len(prices[model.ResourceDB]))

	if stat, statErr := s.stats.Get(ctx); statErr != nil {
		s.log.Warnw("stat fetch failed, skipping stats update this tick", "error", statErr)
	} else if stat != nil {
		s.store.Record(*stat, prices)
		s.log.Debugw("recorded stat", "requests", stat.Requests, "is_fit", s.store.IsFit())
		for _, t := range model.ResourceTypes {
			s.metrics.RecordOverheadFit(string(t), s.store.IsFit())
		}
	}

	history := s.store.History(s.cfg.TrainSize)
	requests := make([]float64, len(history))
	for i, h := range history {
		requests[i] = h.Requests
	}
	s.forecaster.Fit(requests)
	s.log.Debugw("forecast refit", "has_forecast", s.forecaster.HasForecast())

	current, err := s.resource.List(ctx)
	if err != nil {
		return fmt.Errorf("listing fleet: %w", err)
	}

	if !s.cfg.Prod {
		if err := s.store.Save(s.cfg.StateDir); err != nil {
			s.log.Warnw("persisting stat history failed", "error", err)
		}
	}

	if len(current) == 0 {
		s.bootstrap(ctx, prices)
		return nil
	}

	for _, t := range model.ResourceTypes {
		count := 0
		for _, r := range current {
			if r.Type == t {
				count++
			}
		}
		s.metrics.FleetSize.WithLabelValues(string(t)).Set(float64(count))
		s.planAndReconcile(ctx, t, current, prices[t])
	}

	for _, trail := range s.trails {
		trail.Trim(s.cfg.MaxDataSize)
	}
	return nil
}

// bootstrap provisions max(1, round(pmax.cost/pmin.cost)-1) pods of
// the cheapest offered size per type, dispatched concurrently.
func (s *Scheduler) bootstrap(ctx context.Context, prices map[model.ResourceType][]model.Price) {
	var ops []model.PostResource
	for _, t := range model.ResourceTypes {
		ps := prices[t]
		if len(ps) == 0 {
			continue
		}
		pmin, pmax := ps[0], ps[0]
		for _, p := range ps {
			if p.Cost < pmin.Cost {
				pmin = p
			}
			if p.Cost > pmax.Cost {
				pmax = p
			}
		}
		count := int(math.Round(float64(pmax.Cost)/float64(pmin.Cost))) - 1
		if count < 1 {
			count = 1
		}
		s.log.Infow("bootstrapping fleet", "type", t, "count", count, "shape", pmin)
		for i := 0; i < count; i++ {
			ops = append(ops, model.PostResource{CPU: pmin.CPU, RAM: pmin.RAM, Type: t})
		}
	}
	s.dispatchCreates(ctx, ops)
}

// planAndReconcile implements §4.5's plan_and_reconcile(type).
func (s *Scheduler) planAndReconcile(ctx context.Context, t model.ResourceType, fleet []model.Resource, prices []model.Price) {
	var typed, active, failed []model.Resource
	for _, r := range fleet {
		if r.Type != t {
			continue
		}
		typed = append(typed, r)
		if r.Failed {
			failed = append(failed, r)
		} else {
			active = append(active, r)
		}
	}

	cpuOver, ramOver := s.store.Overhead(t)

	offline := false
	for _, r := range active {
		if r.CPULoad >= s.cfg.MaxLoad || r.RAMLoad >= s.cfg.MaxLoad {
			offline = true
		}
	}

	// abs_cpu = (Σ active.cpu)·cpu_load/100 − |active|·cpu_over, and
	// symmetrically for RAM (§4.5 step 1).
	absCPU := sumWeightedLoad(active, func(r model.Resource) (float64, float64) { return float64(r.CPU), r.CPULoad }) - float64(len(active))*cpuOver
	absRAM := sumWeightedLoad(active, func(r model.Resource) (float64, float64) { return float64(r.RAM), r.RAMLoad }) - float64(len(active))*ramOver

	trail := s.trails[t]
	trail.Append(absCPU, absRAM)

	if s.dampened(trail) {
		s.log.Debugw("tick dampened, skipping", "type", t)
		return
	}

	needCPU, needRAM, needPods := s.demand(t, prices, absCPU, absRAM, cpuOver, ramOver)
	if len(needPods) == 0 {
		s.log.Debugw("no demand change, skipping reconcile", "type", t)
		return
	}

	result := reconcile.Diff(typed, needPods, offline, s.planner, needCPU, needRAM, cpuOver, ramOver)
	s.log.Infow("reconcile decision", "type", t, "offline", offline,
		"creates", len(result.ToCreate), "updates", len(result.ToUpdate), "deletes", len(result.ToDelete))

	s.dispatch(ctx, result)
}

func sumWeightedLoad(pods []model.Resource, get func(model.Resource) (float64, float64)) float64 {
	var capSum, loadSum float64
	for _, p := range pods {
		cap, load := get(p)
		capSum += cap
		loadSum += cap * load
	}
	if capSum == 0 {
		return 0
	}
	return loadSum / 100
}

// dampened implements the relative-average-diff dampening gate.
// Fewer than 4 trail entries always passes (never dampens).
func (s *Scheduler) dampened(trail *model.LoadTrail) bool {
	n := len(trail.CPULoad)
	if n < 4 {
		return false
	}
	gap := s.cfg.Gap
	if n < gap+1 {
		return false
	}

	cpuWindow := trail.CPULoad[n-gap-1 : n-1]
	ramWindow := trail.RAMLoad[n-gap-1 : n-1]
	cpuAvg := math.Max(mean(cpuWindow), 0.1)
	ramAvg := math.Max(mean(ramWindow), 0.1)

	cpuCur := trail.CPULoad[n-1]
	ramCur := trail.RAMLoad[n-1]

	cpuDiff := math.Abs(cpuAvg-cpuCur) / cpuAvg
	ramDiff := math.Abs(ramAvg-ramCur) / ramAvg

	return cpuDiff < s.cfg.Delta && ramDiff < s.cfg.Delta
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// demand implements §4.5 steps 3-4: predictive demand from the
// forecast if available, else reactive fallback demand, else skip
// (nil needPods).
func (s *Scheduler) demand(t model.ResourceType, prices []model.Price, absCPU, absRAM, cpuOver, ramOver float64) (float64, float64, []model.Price) {
	cpuPerReq, ramPerReq := s.store.Model().PerRequest(t)
	loadCeiling := s.cfg.PodLoadMaxPercent()

	if s.store.IsFit() && s.forecaster.HasForecast() {
		forecastCounts := s.forecaster.Forecast()
		var bestPlan []model.Price
		var bestCPU, bestRAM float64
		for _, reqCount := range forecastCounts {
			plan := s.planner.PlanOptimal(prices, float64(reqCount), cpuPerReq, ramPerReq, cpuOver, ramOver, loadCeiling)
			if len(plan) == 0 {
				continue
			}
			scaledCPU, scaledRAM := scaledCapacity(plan, loadCeiling, cpuOver, ramOver)
			if scaledCPU > absCPU && scaledRAM > absRAM {
				bestPlan = plan
				bestCPU, bestRAM = planAbsCapacity(plan, cpuOver, ramOver)
			}
		}
		if bestPlan != nil {
			return bestCPU, bestRAM, bestPlan
		}
		if s.store.Len() >= s.cfg.MinMemorySize {
			return 0, 0, nil
		}
	} else if s.store.Len() >= s.cfg.MinMemorySize {
		return 0, 0, nil
	}

	needCPU := absCPU / loadCeiling
	needRAM := absRAM / loadCeiling
	plan := s.planner.Plan(prices, needCPU, needRAM, cpuOver, ramOver)
	return needCPU, needRAM, plan
}

func scaledCapacity(plan []model.Price, loadCeiling, cpuOver, ramOver float64) (float64, float64) {
	var cpu, ram float64
	for _, p := range plan {
		cpu += loadCeiling*float64(p.CPU) - cpuOver
		ram += loadCeiling*float64(p.RAM) - ramOver
	}
	return cpu, ram
}

// planAbsCapacity is the accepted predictive plan's own realized
// capacity net of overhead (p_abs_cpu/p_abs_ram in
// original_source/src/services/scheduler.py::update_by_type): the raw
// (unscaled by the load ceiling) capacity the chosen plan provisions,
// less one overhead charge per pod. This, not the raw per-request
// demand used to pick the plan, is what feeds the reconciler's
// needCPU/needRAM (and in turn select_existing's retain decision).
func planAbsCapacity(plan []model.Price, cpuOver, ramOver float64) (float64, float64) {
	var cpu, ram float64
	for _, p := range plan {
		cpu += float64(p.CPU)
		ram += float64(p.RAM)
	}
	n := float64(len(plan))
	return cpu - n*cpuOver, ram - n*ramOver
}

// dispatch issues create/update/delete operations concurrently via a
// bounded worker pool, joined before returning. In non-prod, the
// operations are constructed but never awaited (a dry run).
func (s *Scheduler) dispatch(ctx context.Context, result reconcile.Result) {
	if !s.cfg.Prod {
		s.log.Infow("dry-run: not dispatching", "creates", len(result.ToCreate), "updates", len(result.ToUpdate), "deletes", len(result.ToDelete))
		return
	}

	const maxConcurrent = 8
	sem := make(chan struct{}, maxConcurrent)
	var wg sync.WaitGroup

	run := func(fn func() error, desc string) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			if err := fn(); err != nil {
				s.log.Errorw("dispatch op failed", "op", desc, "error", err)
			}
		}()
	}

	for _, c := range result.ToCreate {
		c := c
		run(func() error { return s.resource.Create(ctx, c) }, "create")
	}
	for _, u := range result.ToUpdate {
		u := u
		run(func() error { return s.resource.Update(ctx, u.ID, u.Target) }, "update")
	}
	for _, id := range result.ToDelete {
		id := id
		run(func() error { return s.resource.Delete(ctx, id) }, "delete")
	}
	wg.Wait()
}

func (s *Scheduler) dispatchCreates(ctx context.Context, ops []model.PostResource) {
	s.dispatch(ctx, reconcile.Result{ToCreate: ops})
}
