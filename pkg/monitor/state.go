package monitor

import (
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/utils/ptr"
)

// Phase is the coarse lifecycle of a workload.
type Phase int

const (
	PhasePending Phase = iota
	PhaseActive
	PhaseSucceeded
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhasePending:
		return "Pending"
	case PhaseActive:
		return "Active"
	case PhaseSucceeded:
		return "Succeeded"
	case PhaseFailed:
		return "Failed"
	}

	return fmt.Sprintf("Phase(%d)", int(p))
}

// Terminal reports whether no further transition is possible.
func (p Phase) Terminal() bool {
	return p == PhaseSucceeded || p == PhaseFailed
}

// State is one observation of a workload.
type State struct {
	Phase     Phase
	Active    int32
	Succeeded int32
	Failed    int32
	// KnownPods is the number of pods whose logs are being followed.
	KnownPods int
}

// Advance returns the state after observing next. A terminal state never
// changes.
func (s State) Advance(next State) State {
	if s.Phase.Terminal() {
		return s
	}

	return next
}

// Counts formats the pod counters.
func (s State) Counts() string {
	return fmt.Sprintf("Active=%d, Succeeded=%d, Failed=%d", s.Active, s.Succeeded, s.Failed)
}

// ObserveJob derives a [State] from a Job.
func ObserveJob(job *batchv1.Job) State {
	s := State{
		Active:    job.Status.Active,
		Succeeded: job.Status.Succeeded,
		Failed:    job.Status.Failed,
	}

	completions := ptr.Deref(job.Spec.Completions, 1)

	switch {
	case hasJobCondition(job, batchv1.JobFailed):
		s.Phase = PhaseFailed
	case hasJobCondition(job, batchv1.JobComplete), job.Status.CompletionTime != nil,
		job.Status.Succeeded >= completions:
		s.Phase = PhaseSucceeded
	case job.Status.Failed > ptr.Deref(job.Spec.BackoffLimit, 0):
		s.Phase = PhaseFailed
	case job.Status.Active > 0:
		s.Phase = PhaseActive
	default:
		s.Phase = PhasePending
	}

	return s
}

func hasJobCondition(job *batchv1.Job, t batchv1.JobConditionType) bool {
	for _, c := range job.Status.Conditions {
		if c.Type == t && c.Status == corev1.ConditionTrue {
			return true
		}
	}

	return false
}

// ObserveDeployment derives a [State] from a Deployment. A finished rollout
// is [PhaseSucceeded] unless persistent is set, in which case the
// Deployment stays [PhaseActive] for as long as it serves.
func ObserveDeployment(d *appsv1.Deployment, persistent bool) State {
	want := ptr.Deref(d.Spec.Replicas, 1)

	s := State{
		Active:    d.Status.ReadyReplicas,
		Succeeded: d.Status.AvailableReplicas,
		Failed:    d.Status.UnavailableReplicas,
	}

	switch {
	case progressDeadlineExceeded(d):
		s.Phase = PhaseFailed
	case !persistent && rolledOut(d, want):
		s.Phase = PhaseSucceeded
	case d.Status.ReadyReplicas > 0:
		s.Phase = PhaseActive
	default:
		s.Phase = PhasePending
	}

	return s
}

func rolledOut(d *appsv1.Deployment, want int32) bool {
	st := d.Status

	return st.ObservedGeneration >= d.Generation &&
		st.UpdatedReplicas == want &&
		st.ReadyReplicas == want &&
		st.AvailableReplicas == want
}

func progressDeadlineExceeded(d *appsv1.Deployment) bool {
	for _, c := range d.Status.Conditions {
		if c.Type == appsv1.DeploymentProgressing &&
			c.Status == corev1.ConditionFalse &&
			c.Reason == "ProgressDeadlineExceeded" {
			return true
		}
	}

	return false
}
