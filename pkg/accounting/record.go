// Package accounting defines the job-accounting domain model: completed
// SLURM job records, their lifecycle states, and the derived quantities
// (waiting time, duration) the analytics engine consumes.
//
// Records are validated once at the ingestion boundary. Inside the
// aggregation pipeline a record is never mutated; derived fields that
// cannot be computed (missing start/end, inverted bounds, non-terminal
// state) are reported as undefined rather than zero so that statistics
// exclude them instead of skewing toward zero.
package accounting

import (
	"errors"
	"fmt"
	"time"
)

// JobState is the scheduler-reported state of a job.
//
// Values mirror SLURM state names and are persisted as-is, so they are
// part of the stable data contract.
type JobState string

const (
	StateCompleted   JobState = "COMPLETED"
	StateFailed      JobState = "FAILED"
	StateCancelled   JobState = "CANCELLED"
	StateTimeout     JobState = "TIMEOUT"
	StateOutOfMemory JobState = "OUT_OF_MEMORY"
	StateNodeFail    JobState = "NODE_FAIL"
	StatePreempted   JobState = "PREEMPTED"
	StateRunning     JobState = "RUNNING"
	StatePending     JobState = "PENDING"
)

// terminalStates are the states in which a job has finished executing.
// Only terminal jobs contribute to duration and waiting-time statistics;
// non-terminal jobs still count toward job totals.
var terminalStates = map[JobState]struct{}{
	StateCompleted:   {},
	StateFailed:      {},
	StateCancelled:   {},
	StateTimeout:     {},
	StateOutOfMemory: {},
	StateNodeFail:    {},
	StatePreempted:   {},
}

// Terminal reports whether the job has finished executing.
func (s JobState) Terminal() bool {
	_, ok := terminalStates[s]
	return ok
}

// Validation errors returned by JobRecord.Validate.
var (
	ErrMissingJobID   = errors.New("job record missing job_id")
	ErrNegativeUsage  = errors.New("job record has negative resource hours")
	ErrNegativeAlloc  = errors.New("job record has negative allocation")
	ErrMissingSubmit  = errors.New("job record missing submit_time")
	ErrInvertedBounds = errors.New("job record time bounds are inverted")
	ErrStartBeforeSub = errors.New("job record started before submission")
)

// JobRecord is one job as reported by the accounting source.
//
// StartTime is nil for jobs that never started; EndTime is nil for jobs
// still running at snapshot time. QOS may be empty on clusters that do
// not configure QOS.
type JobRecord struct {
	JobID     string   `json:"job_id"`
	User      string   `json:"user"`
	Account   string   `json:"account"`
	Partition string   `json:"partition"`
	QOS       string   `json:"qos,omitempty"`
	State     JobState `json:"state"`

	SubmitTime time.Time  `json:"submit_time"`
	StartTime  *time.Time `json:"start_time,omitempty"`
	EndTime    *time.Time `json:"end_time,omitempty"`

	CPUHours float64 `json:"cpu_hours"`
	GPUHours float64 `json:"gpu_hours"`

	AllocCPUs  int      `json:"alloc_cpus"`
	AllocGPUs  int      `json:"alloc_gpus"`
	AllocNodes int      `json:"alloc_nodes"`
	NodeList   []string `json:"node_list,omitempty"`
}

// Validate checks the record invariants that ingestion must enforce.
//
// Aggregation assumes Validate has already passed; malformed records are
// rejected or quarantined at the boundary, never inside the pipeline.
func (r *JobRecord) Validate() error {
	if r.JobID == "" {
		return ErrMissingJobID
	}
	if r.CPUHours < 0 || r.GPUHours < 0 {
		return fmt.Errorf("%w: job %s", ErrNegativeUsage, r.JobID)
	}
	if r.AllocCPUs < 0 || r.AllocGPUs < 0 || r.AllocNodes < 0 {
		return fmt.Errorf("%w: job %s", ErrNegativeAlloc, r.JobID)
	}
	if r.SubmitTime.IsZero() {
		return fmt.Errorf("%w: job %s", ErrMissingSubmit, r.JobID)
	}
	if r.StartTime != nil && r.StartTime.Before(r.SubmitTime) {
		return fmt.Errorf("%w: job %s", ErrStartBeforeSub, r.JobID)
	}
	if r.StartTime != nil && r.EndTime != nil && r.EndTime.Before(*r.StartTime) {
		return fmt.Errorf("%w: job %s", ErrInvertedBounds, r.JobID)
	}
	return nil
}

// WaitingHours returns the queue wait (start - submit) in hours.
//
// The second return is false when the wait is undefined: the job never
// started, is not in a terminal state, or carries inverted bounds. Such
// records are excluded from waiting-time statistics, not counted as zero.
func (r *JobRecord) WaitingHours() (float64, bool) {
	if !r.State.Terminal() || r.StartTime == nil {
		return 0, false
	}
	wait := r.StartTime.Sub(r.SubmitTime)
	if wait < 0 {
		return 0, false
	}
	return wait.Hours(), true
}

// DurationHours returns the wall-clock run time (end - start) in hours.
//
// The second return is false when the duration is undefined for this
// record (missing bound, non-terminal state, or end before start).
func (r *JobRecord) DurationHours() (float64, bool) {
	if !r.State.Terminal() || r.StartTime == nil || r.EndTime == nil {
		return 0, false
	}
	d := r.EndTime.Sub(*r.StartTime)
	if d < 0 {
		return 0, false
	}
	return d.Hours(), true
}

// NodeShareCPUHours returns the CPU hours attributed to a single node of
// this job. Multi-node jobs split usage evenly across their node list.
func (r *JobRecord) NodeShareCPUHours() float64 {
	return r.nodeShare(r.CPUHours)
}

// NodeShareGPUHours returns the GPU hours attributed to a single node.
func (r *JobRecord) NodeShareGPUHours() float64 {
	return r.nodeShare(r.GPUHours)
}

func (r *JobRecord) nodeShare(hours float64) float64 {
	n := len(r.NodeList)
	if n == 0 {
		return hours
	}
	return hours / float64(n)
}
