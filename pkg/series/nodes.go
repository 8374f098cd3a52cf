package series

import (
	"sort"

	"github.com/openfoothills/slurmsight/pkg/accounting"
	"github.com/openfoothills/slurmsight/pkg/capacity"
)

// CapacityResolver looks up static hardware capacity for a node.
// Implementations must be immutable for the duration of a request;
// capacity.Snapshot satisfies this.
type CapacityResolver interface {
	CapacityFor(node string) (capacity.Hardware, bool)
}

// NodeUtilization is per-node resource consumption for a period.
//
// When the node has a known hardware mapping, Normalized is true and the
// *Pct fields express consumption as a percentage of capacity over the
// period, clamped to [0, 100]. When the mapping is missing, Normalized is
// false and only the raw hour fields are meaningful — the marker keeps
// callers from silently mixing units.
type NodeUtilization struct {
	Node       string  `json:"node"`
	Jobs       int     `json:"jobs"`
	CPUHours   float64 `json:"cpu_hours"`
	GPUHours   float64 `json:"gpu_hours"`
	Normalized bool    `json:"normalized"`
	CPUPct     float64 `json:"cpu_pct,omitempty"`
	GPUPct     float64 `json:"gpu_pct,omitempty"`
}

// BuildNodeUtilization accumulates per-node resource hours and, where a
// capacity mapping exists, normalizes them against capacity for the
// period.
//
// periodHours is the wall-clock length of the aggregation range in
// hours. Multi-node jobs split their usage evenly across their node
// list. Records with no node list do not contribute to any node.
// Output is sorted by node name for deterministic rendering.
func BuildNodeUtilization(records []accounting.JobRecord, periodHours float64, resolver CapacityResolver) []NodeUtilization {
	type acc struct {
		jobs     int
		cpuHours float64
		gpuHours float64
	}
	byNode := make(map[string]*acc)

	for i := range records {
		r := &records[i]
		for _, node := range r.NodeList {
			a, ok := byNode[node]
			if !ok {
				a = &acc{}
				byNode[node] = a
			}
			a.jobs++
			a.cpuHours += r.NodeShareCPUHours()
			a.gpuHours += r.NodeShareGPUHours()
		}
	}

	out := make([]NodeUtilization, 0, len(byNode))
	for node, a := range byNode {
		u := NodeUtilization{
			Node:     node,
			Jobs:     a.jobs,
			CPUHours: a.cpuHours,
			GPUHours: a.gpuHours,
		}

		if hw, ok := resolver.CapacityFor(node); ok && periodHours > 0 {
			u.Normalized = true
			u.CPUPct = clampPct(100 * a.cpuHours / (float64(hw.CPUCores) * periodHours))
			if hw.GPUCount > 0 {
				u.GPUPct = clampPct(100 * a.gpuHours / (float64(hw.GPUCount) * periodHours))
			}
		}

		out = append(out, u)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Node < out[j].Node })
	return out
}

func clampPct(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
