package workload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/ptr"

	"github.com/macropower/k8r/pkg/kube"
	"github.com/macropower/k8r/pkg/log"
	"github.com/macropower/k8r/pkg/secrets"
	"github.com/macropower/k8r/pkg/source"
)

var (
	// ErrNotFound is returned when no k8r workload has the requested name.
	ErrNotFound = errors.New("workload not found")
	// ErrPodsRunning is returned by [Delete] when the workload still has
	// running pods and the deletion was not forced.
	ErrPodsRunning = errors.New("workload has running pods")
)

// Exists reports whether a Job or Deployment named name exists.
func Exists(ctx context.Context, c *kube.Client, name string) (bool, error) {
	job := kube.Get(ctx, name, jobGetter(c))
	if err := job.Err(); err != nil {
		return false, fmt.Errorf("get job %q: %w", name, err)
	}
	if job.Found() {
		return true, nil
	}

	dep := kube.Get(ctx, name, deploymentGetter(c))
	if err := dep.Err(); err != nil {
		return false, fmt.Errorf("get deployment %q: %w", name, err)
	}

	return dep.Found(), nil
}

// Find returns the kind of the k8r workload named name. Jobs take precedence
// over Deployments. Objects not created by k8r are ignored.
func Find(ctx context.Context, c *kube.Client, name string) (Kind, error) {
	job := kube.Get(ctx, name, jobGetter(c))
	if err := job.Err(); err != nil {
		return "", fmt.Errorf("get job %q: %w", name, err)
	}
	if job.Found() && kube.IsManaged(job.Object().Labels) {
		return KindJob, nil
	}

	dep := kube.Get(ctx, name, deploymentGetter(c))
	if err := dep.Err(); err != nil {
		return "", fmt.Errorf("get deployment %q: %w", name, err)
	}
	if dep.Found() && kube.IsManaged(dep.Object().Labels) {
		return KindDeployment, nil
	}

	return "", fmt.Errorf("%w: %q in namespace %q", ErrNotFound, name, c.Namespace)
}

// Summary is one row of [List].
type Summary struct {
	Created    time.Time
	Name       string
	Kind       Kind
	SourceType string
	Desired    int32
	Running    int32
	Ready      int32
	Failed     int32
}

// List returns every k8r Job and Deployment in the namespace, sorted by name.
func List(ctx context.Context, c *kube.Client) ([]Summary, error) {
	jobs, err := c.Clientset.BatchV1().Jobs(c.Namespace).List(ctx, metav1.ListOptions{
		LabelSelector: kube.ManagedSelector(),
	})
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	deps, err := c.Clientset.AppsV1().Deployments(c.Namespace).List(ctx, metav1.ListOptions{
		LabelSelector: kube.WorkloadTypeSelector(string(KindDeployment)),
	})
	if err != nil {
		return nil, fmt.Errorf("list deployments: %w", err)
	}

	out := make([]Summary, 0, len(jobs.Items)+len(deps.Items))
	for i := range jobs.Items {
		out = append(out, jobSummary(&jobs.Items[i]))
	}
	for i := range deps.Items {
		out = append(out, deploymentSummary(&deps.Items[i]))
	}

	slices.SortFunc(out, func(a, b Summary) int {
		return strings.Compare(a.Name, b.Name)
	})

	return out, nil
}

func jobSummary(j *batchv1.Job) Summary {
	return Summary{
		Name:       j.Name,
		Kind:       KindJob,
		SourceType: sourceType(j.Labels),
		Created:    j.CreationTimestamp.Time,
		Desired:    ptr.Deref(j.Spec.Completions, 0),
		Running:    j.Status.Active,
		Ready:      j.Status.Succeeded,
		Failed:     j.Status.Failed,
	}
}

func deploymentSummary(d *appsv1.Deployment) Summary {
	return Summary{
		Name:       d.Name,
		Kind:       KindDeployment,
		SourceType: sourceType(d.Labels),
		Created:    d.CreationTimestamp.Time,
		Desired:    ptr.Deref(d.Spec.Replicas, 0),
		Running:    d.Status.ReadyReplicas,
		Ready:      d.Status.ReadyReplicas,
		Failed:     max(d.Status.Replicas-d.Status.ReadyReplicas, 0),
	}
}

func sourceType(l map[string]string) string {
	if t := l[kube.LabelSourceType]; t != "" {
		return t
	}

	return "unknown"
}

// DeleteOptions configures [Delete].
type DeleteOptions struct {
	// Force deletes even when pods are running.
	Force bool
	// Secrets also deletes the secrets owned by the workload name.
	Secrets bool
}

// Deleted describes what [Delete] removed.
type Deleted struct {
	Kind Kind
	// SecretsDeleted counts owned secrets deleted.
	SecretsDeleted int
	// SecretsKept counts owned secrets left in place.
	SecretsKept int
}

// Delete removes the k8r workload named name, its source ConfigMap, and
// optionally its secrets. Cleanup failures after the workload itself is
// deleted are logged as warnings and do not fail the call.
func Delete(ctx context.Context, c *kube.Client, name string, opts DeleteOptions) (*Deleted, error) {
	kind, err := Find(ctx, c, name)
	if err != nil {
		return nil, err
	}

	logger := log.WithContext(ctx).With(slog.String("workload", name))

	if !opts.Force {
		running, err := RunningPods(ctx, c, name)
		if err != nil {
			return nil, err
		}
		if running > 0 {
			return nil, fmt.Errorf("%w: %s %q has %d running pod(s), use --force to delete anyway",
				ErrPodsRunning, kind.Title(), name, running)
		}
	}

	del := metav1.DeleteOptions{PropagationPolicy: ptr.To(metav1.DeletePropagationBackground)}

	switch kind {
	case KindJob:
		err = c.Clientset.BatchV1().Jobs(c.Namespace).Delete(ctx, name, del)
	case KindDeployment:
		err = c.Clientset.AppsV1().Deployments(c.Namespace).Delete(ctx, name, del)
	}
	if err != nil {
		return nil, fmt.Errorf("delete %s %q: %w", kind, name, err)
	}

	logger.DebugContext(ctx, "deleted workload", slog.String("kind", string(kind)))

	cm := source.ConfigMapName(name)

	err = c.Clientset.CoreV1().ConfigMaps(c.Namespace).Delete(ctx, cm, metav1.DeleteOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		logger.WarnContext(ctx, "could not delete source configmap",
			slog.String("configmap", cm),
			slog.Any("err", err),
		)
	}

	result := &Deleted{Kind: kind}

	if opts.Secrets {
		n, err := secrets.DeleteOwned(ctx, c, name)
		if err != nil {
			logger.WarnContext(ctx, "secret cleanup incomplete", slog.Any("err", err))
		}

		result.SecretsDeleted = n

		return result, nil
	}

	owned, err := secrets.Discover(ctx, c, name)
	if err != nil {
		logger.WarnContext(ctx, "could not count secrets", slog.Any("err", err))
	}

	result.SecretsKept = len(owned)

	return result, nil
}

// Pods returns the pods of the workload named name.
func Pods(ctx context.Context, c *kube.Client, name string) ([]corev1.Pod, error) {
	pods, err := c.Clientset.CoreV1().Pods(c.Namespace).List(ctx, metav1.ListOptions{
		LabelSelector: kube.PodSelector(name),
	})
	if err != nil {
		return nil, fmt.Errorf("list pods for %q: %w", name, err)
	}

	return pods.Items, nil
}

// RunningPods counts the pods of the workload named name in phase Running.
func RunningPods(ctx context.Context, c *kube.Client, name string) (int, error) {
	pods, err := Pods(ctx, c, name)
	if err != nil {
		return 0, err
	}

	n := 0
	for i := range pods {
		if pods[i].Status.Phase == corev1.PodRunning {
			n++
		}
	}

	return n, nil
}

func jobGetter(c *kube.Client) func(context.Context, string) (*batchv1.Job, error) {
	jobs := c.Clientset.BatchV1().Jobs(c.Namespace)

	return func(ctx context.Context, name string) (*batchv1.Job, error) {
		return jobs.Get(ctx, name, metav1.GetOptions{})
	}
}

func deploymentGetter(c *kube.Client) func(context.Context, string) (*appsv1.Deployment, error) {
	deps := c.Clientset.AppsV1().Deployments(c.Namespace)

	return func(ctx context.Context, name string) (*appsv1.Deployment, error) {
		return deps.Get(ctx, name, metav1.GetOptions{})
	}
}
