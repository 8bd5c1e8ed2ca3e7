// Package model defines the shared data types passed between the
// autoscaler's components: prices offered by the remote API, the
// provisioned fleet, samples of aggregate load, and the overhead model
// fitted from them.
package model

import "time"

// ResourceType partitions all demand and supply reasoning. There is no
// cross-type substitution between VM and DB pods.
type ResourceType string

const (
	ResourceVM ResourceType = "vm"
	ResourceDB ResourceType = "db"
)

// ResourceTypes lists both domain values, stable order, for iteration.
var ResourceTypes = [2]ResourceType{ResourceVM, ResourceDB}

// Price is an offered pod size.
type Price struct {
	ID   int          `json:"id"`
	Cost int          `json:"cost"`
	CPU  int          `json:"cpu"`
	RAM  int          `json:"ram"`
	Name string       `json:"name"`
	Type ResourceType `json:"type"`
}

// Resource is a provisioned fleet member as reported by /api/resource.
type Resource struct {
	ID          int          `json:"id"`
	Cost        int          `json:"cost"`
	CPU         int          `json:"cpu"`
	RAM         int          `json:"ram"`
	CPULoad     float64      `json:"cpu_load"`
	RAMLoad     float64      `json:"ram_load"`
	Failed      bool         `json:"failed"`
	FailedUntil time.Time    `json:"failed_until"`
	Type        ResourceType `json:"type"`
}

// PostResource is a desired pod shape used to create or resize a pod.
type PostResource struct {
	CPU  int          `json:"cpu"`
	RAM  int          `json:"ram"`
	Type ResourceType `json:"type"`
}

// Stat is a single timestamped aggregate sample returned by
// /api/statistic. The core decision engine only reads the fields
// above the passthrough block; the rest is passthrough kept so the
// client round-trips the remote API faithfully.
type Stat struct {
	Timestamp time.Time `json:"timestamp"`
	Requests  float64   `json:"requests"`
	Online    bool      `json:"online"`

	VMCPU     float64 `json:"vm_cpu"`
	VMRAM     float64 `json:"vm_ram"`
	VMCPULoad float64 `json:"vm_cpu_load"`
	VMRAMLoad float64 `json:"vm_ram_load"`

	DBCPU     float64 `json:"db_cpu"`
	DBRAM     float64 `json:"db_ram"`
	DBCPULoad float64 `json:"db_cpu_load"`
	DBRAMLoad float64 `json:"db_ram_load"`

	// Passthrough fields: reported by the remote API, never consulted
	// by the decision engine.
	Availability  float64 `json:"availability"`
	CostTotal     float64 `json:"cost_total"`
	Last1         float64 `json:"last1"`
	Last5         float64 `json:"last5"`
	Last15        float64 `json:"last15"`
	LastDay       float64 `json:"last_day"`
	LastHour      float64 `json:"last_hour"`
	LastWeek      float64 `json:"last_week"`
	OfflineTime   float64 `json:"offline_time"`
	OnlineTime    float64 `json:"online_time"`
	RequestsTotal float64 `json:"requests_total"`
	ResponseTime  float64 `json:"response_time"`
}

// Cap returns the reported capacity for a resource type along a
// dimension, and CapLoad returns the load percentage of Cap.
func (s Stat) Cap(t ResourceType, dim Dimension) float64 {
	switch {
	case t == ResourceVM && dim == CPU:
		return s.VMCPU
	case t == ResourceVM && dim == RAM:
		return s.VMRAM
	case t == ResourceDB && dim == CPU:
		return s.DBCPU
	default:
		return s.DBRAM
	}
}

func (s Stat) CapLoad(t ResourceType, dim Dimension) float64 {
	switch {
	case t == ResourceVM && dim == CPU:
		return s.VMCPULoad
	case t == ResourceVM && dim == RAM:
		return s.VMRAMLoad
	case t == ResourceDB && dim == CPU:
		return s.DBCPULoad
	default:
		return s.DBRAMLoad
	}
}

// Dimension is CPU or RAM, used to index Stat's per-type fields.
type Dimension int

const (
	CPU Dimension = iota
	RAM
)

// OverheadModel holds the fixed per-pod resource tax and per-request
// resource cost, independently per type and dimension.
type OverheadModel struct {
	VMCPUOverhead float64
	VMRAMOverhead float64
	VMCPUPerReq   float64
	VMRAMPerReq   float64

	DBCPUOverhead float64
	DBRAMOverhead float64
	DBCPUPerReq   float64
	DBRAMPerReq   float64

	// IsOverheadCalc is true once the model has been successfully
	// refit from observations at least once, and is toggled back to
	// false by any fit attempt that aborts on a zero-load reading.
	IsOverheadCalc bool
}

// DefaultOverheadModel returns the initial defaults used before any
// fit has succeeded.
func DefaultOverheadModel() OverheadModel {
	return OverheadModel{
		VMCPUOverhead: 0.05,
		VMRAMOverhead: 0.3,
		VMCPUPerReq:   0.001,
		VMRAMPerReq:   0.005,

		DBCPUOverhead: 0.05,
		DBRAMOverhead: 0.512,
		DBCPUPerReq:   0.001,
		DBRAMPerReq:   0.03,
	}
}

// Overhead returns the (cpu_over, ram_over) pair for a type.
func (m OverheadModel) Overhead(t ResourceType) (float64, float64) {
	if t == ResourceVM {
		return m.VMCPUOverhead, m.VMRAMOverhead
	}
	return m.DBCPUOverhead, m.DBRAMOverhead
}

// PerRequest returns the (cpu_per_req, ram_per_req) pair for a type.
func (m OverheadModel) PerRequest(t ResourceType) (float64, float64) {
	if t == ResourceVM {
		return m.VMCPUPerReq, m.VMRAMPerReq
	}
	return m.DBCPUPerReq, m.DBRAMPerReq
}

// LoadTrail is a bounded history of observed absolute load per tick,
// used by the dampening heuristic. Independent per resource type.
type LoadTrail struct {
	CPULoad []float64
	RAMLoad []float64
}

// Append adds one observation, growing both vectors in lockstep.
func (t *LoadTrail) Append(cpuLoad, ramLoad float64) {
	t.CPULoad = append(t.CPULoad, cpuLoad)
	t.RAMLoad = append(t.RAMLoad, ramLoad)
}

// Trim bounds both vectors to the last maxLen entries.
func (t *LoadTrail) Trim(maxLen int) {
	if len(t.CPULoad) > maxLen {
		t.CPULoad = t.CPULoad[len(t.CPULoad)-maxLen:]
	}
	if len(t.RAMLoad) > maxLen {
		t.RAMLoad = t.RAMLoad[len(t.RAMLoad)-maxLen:]
	}
}
