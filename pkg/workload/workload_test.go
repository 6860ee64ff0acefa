package workload_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	"k8s.io/utils/ptr"

	"github.com/macropower/k8r/pkg/kube"
	"github.com/macropower/k8r/pkg/resources"
	"github.com/macropower/k8r/pkg/source"
	"github.com/macropower/k8r/pkg/workload"
)

func imageFragment() *source.Fragment {
	return &source.Fragment{
		Container: corev1.Container{
			Name:    source.ContainerName,
			Image:   "redis:7.0",
			Command: []string{"/bin/sh", "-c", "redis-server --version"},
		},
	}
}

func TestRestartPolicy(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		retry       *int32
		wantPolicy  corev1.RestartPolicy
		wantBackoff int32
	}{
		"no retry": {
			wantPolicy:  corev1.RestartPolicyNever,
			wantBackoff: 0,
		},
		"retry three times": {
			retry:       ptr.To[int32](3),
			wantPolicy:  corev1.RestartPolicyOnFailure,
			wantBackoff: 3,
		},
		"retry zero times": {
			retry:       ptr.To[int32](0),
			wantPolicy:  corev1.RestartPolicyOnFailure,
			wantBackoff: 0,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			job, err := workload.BuildJob(imageFragment(), workload.Options{
				Name:  "redis",
				Kind:  workload.KindJob,
				Retry: tc.retry,
			})
			require.NoError(t, err)

			assert.Equal(t, tc.wantPolicy, job.Spec.Template.Spec.RestartPolicy)
			require.NotNil(t, job.Spec.BackoffLimit)
			assert.Equal(t, tc.wantBackoff, *job.Spec.BackoffLimit)
		})
	}
}

func TestBuildJob(t *testing.T) {
	t.Parallel()

	frag := imageFragment()

	job, err := workload.BuildJob(frag, workload.Options{
		Name:       "redis",
		Kind:       workload.KindJob,
		SourceKind: source.KindContainerImage,
		Instances:  3,
		Timeout:    90 * time.Minute,
		Memory:     "2gb-8gb",
		CPU:        "500m",
	})
	require.NoError(t, err)

	assert.Equal(t, "redis", job.Name)
	assert.Equal(t, "Job", job.Kind)
	assert.Equal(t, int32(3), *job.Spec.Parallelism)
	assert.Equal(t, int32(3), *job.Spec.Completions)
	assert.Equal(t, int64(5400), *job.Spec.ActiveDeadlineSeconds)

	wantLabels := map[string]string{
		kube.LabelManagedBy:  kube.ManagedByValue,
		kube.LabelWorkload:   "redis",
		kube.LabelType:       "job",
		kube.LabelSourceType: "container",
	}
	assert.Equal(t, wantLabels, job.Labels)
	assert.Equal(t, wantLabels, job.Spec.Template.Labels)

	require.Len(t, job.Spec.Template.Spec.Containers, 1)
	c := job.Spec.Template.Spec.Containers[0]
	assert.Equal(t, resource.MustParse("2Gi"), c.Resources.Requests[corev1.ResourceMemory])
	assert.Equal(t, resource.MustParse("8Gi"), c.Resources.Limits[corev1.ResourceMemory])
	assert.Equal(t, resource.MustParse("500m"), c.Resources.Limits[corev1.ResourceCPU])

	assert.Empty(t, frag.Container.Resources.Requests, "fragment must not be modified")
}

func TestBuildJob_Defaults(t *testing.T) {
	t.Parallel()

	job, err := workload.BuildJob(imageFragment(), workload.Options{Name: "x", Kind: workload.KindJob})
	require.NoError(t, err)

	assert.Equal(t, int32(1), *job.Spec.Parallelism)
	assert.Nil(t, job.Spec.ActiveDeadlineSeconds)
	assert.Empty(t, job.Spec.Template.Spec.Containers[0].Resources.Requests)
}

func TestBuildJob_InvalidQuantity(t *testing.T) {
	t.Parallel()

	_, err := workload.BuildJob(imageFragment(), workload.Options{Name: "x", Memory: "lots"})
	require.ErrorIs(t, err, resources.ErrInvalidQuantity)
}

func TestBuildDeployment(t *testing.T) {
	t.Parallel()

	obj, err := workload.Build(imageFragment(), workload.Options{
		Name:       "api",
		Kind:       workload.KindDeployment,
		SourceKind: source.KindDockerfile,
		Instances:  2,
		Retry:      ptr.To[int32](5),
	})
	require.NoError(t, err)

	dep, ok := obj.(*appsv1.Deployment)
	require.True(t, ok)

	assert.Equal(t, int32(2), *dep.Spec.Replicas)
	assert.Equal(t, corev1.RestartPolicyAlways, dep.Spec.Template.Spec.RestartPolicy)
	assert.Equal(t, kube.PodLabels("api"), dep.Spec.Selector.MatchLabels)
	assert.Equal(t, "deployment", dep.Labels[kube.LabelType])

	for k, v := range dep.Spec.Selector.MatchLabels {
		assert.Equal(t, v, dep.Spec.Template.Labels[k])
	}
}

func TestBuild_UnknownKind(t *testing.T) {
	t.Parallel()

	_, err := workload.Build(imageFragment(), workload.Options{Name: "x", Kind: "cronjob"})
	require.ErrorIs(t, err, workload.ErrUnknownKind)

	obj, err := workload.Build(imageFragment(), workload.Options{Name: "x", Kind: workload.KindJob})
	require.NoError(t, err)
	assert.IsType(t, &batchv1.Job{}, obj)
}

func TestParseTimeout(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		input string
		want  time.Duration
		err   bool
	}{
		"hours":        {input: "1h", want: time.Hour},
		"minutes":      {input: "30m", want: 30 * time.Minute},
		"seconds":      {input: "3600s", want: time.Hour},
		"combined":     {input: "1h30m", want: 90 * time.Minute},
		"bare seconds": {input: "120", want: 2 * time.Minute},
		"empty":        {input: "", want: 0},
		"garbage":      {input: "soon", err: true},
		"negative":     {input: "-5m", err: true},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, err := workload.ParseTimeout(tc.input)
			if tc.err {
				require.ErrorIs(t, err, workload.ErrInvalidTimeout)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
