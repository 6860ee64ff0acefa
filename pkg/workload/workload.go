// Package workload turns a resolved source into a Kubernetes Job or
// Deployment and manages the workloads k8r has created.
package workload

import (
	"errors"
	"fmt"
	"maps"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/utils/ptr"

	"github.com/macropower/k8r/pkg/kube"
	"github.com/macropower/k8r/pkg/resources"
	"github.com/macropower/k8r/pkg/source"
)

// Kind is the type of workload object.
type Kind string

const (
	KindJob        Kind = "job"
	KindDeployment Kind = "deployment"
)

// ErrUnknownKind is returned for a [Kind] other than [KindJob] or
// [KindDeployment].
var ErrUnknownKind = errors.New("unknown workload kind")

// Title returns the Kubernetes kind name.
func (k Kind) Title() string {
	switch k {
	case KindJob:
		return "Job"
	case KindDeployment:
		return "Deployment"
	}

	return string(k)
}

// Options configures [Build].
type Options struct {
	// Retry, when set, restarts failed pods up to this many times.
	Retry *int32
	// Name is the final workload name.
	Name string
	Kind Kind
	// Memory and CPU are resource specs accepted by [resources.Parse].
	Memory string
	CPU    string
	// SourceKind is recorded in the source type label.
	SourceKind source.Kind
	// Timeout becomes the Job's active deadline. Zero means no deadline.
	Timeout time.Duration
	// Instances is the Job parallelism and completions, or the Deployment
	// replica count. Values below one mean one.
	Instances int32
}

// Build assembles the workload object for frag. The result is a
// *batchv1.Job or an *appsv1.Deployment. frag is not modified.
func Build(frag *source.Fragment, opts Options) (runtime.Object, error) {
	switch opts.Kind {
	case KindJob:
		return BuildJob(frag, opts)
	case KindDeployment:
		return BuildDeployment(frag, opts)
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, opts.Kind)
}

// BuildJob assembles a Job. Without a retry limit the pod never restarts and
// the backoff limit is zero, so a failure is final.
func BuildJob(frag *source.Fragment, opts Options) (*batchv1.Job, error) {
	pod, err := podTemplate(frag, opts)
	if err != nil {
		return nil, err
	}

	restart, backoff := RestartPolicy(opts.Retry)
	pod.Spec.RestartPolicy = restart

	n := instances(opts.Instances)

	job := &batchv1.Job{
		TypeMeta:   metav1.TypeMeta{APIVersion: "batch/v1", Kind: "Job"},
		ObjectMeta: objectMeta(opts),
		Spec: batchv1.JobSpec{
			Parallelism:  ptr.To(n),
			Completions:  ptr.To(n),
			BackoffLimit: ptr.To(backoff),
			Template:     pod,
		},
	}

	if secs := int64(opts.Timeout / time.Second); secs > 0 {
		job.Spec.ActiveDeadlineSeconds = ptr.To(secs)
	}

	return job, nil
}

// BuildDeployment assembles a Deployment. Its pods always restart.
func BuildDeployment(frag *source.Fragment, opts Options) (*appsv1.Deployment, error) {
	pod, err := podTemplate(frag, opts)
	if err != nil {
		return nil, err
	}

	pod.Spec.RestartPolicy = corev1.RestartPolicyAlways

	return &appsv1.Deployment{
		TypeMeta:   metav1.TypeMeta{APIVersion: "apps/v1", Kind: "Deployment"},
		ObjectMeta: objectMeta(opts),
		Spec: appsv1.DeploymentSpec{
			Replicas: ptr.To(instances(opts.Instances)),
			Selector: &metav1.LabelSelector{MatchLabels: kube.PodLabels(opts.Name)},
			Template: pod,
		},
	}, nil
}

// RestartPolicy returns the Job restart policy and backoff limit for an
// optional retry limit.
func RestartPolicy(retry *int32) (corev1.RestartPolicy, int32) {
	if retry == nil {
		return corev1.RestartPolicyNever, 0
	}

	return corev1.RestartPolicyOnFailure, *retry
}

// Labels returns the labels set on a workload and its pods.
func Labels(name string, kind Kind, sourceKind source.Kind) map[string]string {
	l := kube.WorkloadLabels(string(kind), sourceKind.String())
	maps.Copy(l, kube.PodLabels(name))

	return l
}

func objectMeta(opts Options) metav1.ObjectMeta {
	return metav1.ObjectMeta{
		Name:   opts.Name,
		Labels: Labels(opts.Name, opts.Kind, opts.SourceKind),
	}
}

func podTemplate(frag *source.Fragment, opts Options) (corev1.PodTemplateSpec, error) {
	rr, err := resources.Requirements(opts.Memory, opts.CPU)
	if err != nil {
		return corev1.PodTemplateSpec{}, fmt.Errorf("resources: %w", err)
	}

	c := *frag.Container.DeepCopy()
	c.Resources = rr

	var volumes []corev1.Volume
	for i := range frag.Volumes {
		volumes = append(volumes, *frag.Volumes[i].DeepCopy())
	}

	return corev1.PodTemplateSpec{
		ObjectMeta: metav1.ObjectMeta{
			Labels: Labels(opts.Name, opts.Kind, opts.SourceKind),
		},
		Spec: corev1.PodSpec{
			Containers: []corev1.Container{c},
			Volumes:    volumes,
		},
	}, nil
}

func instances(n int32) int32 {
	if n < 1 {
		return 1
	}

	return n
}
