package monitor_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"

	"github.com/macropower/k8r/pkg/kube"
	"github.com/macropower/k8r/pkg/monitor"
	"github.com/macropower/k8r/pkg/workload"
)

const ns = "work"

// syncBuffer is a bytes.Buffer safe for concurrent use by the test and the
// monitor goroutines.
type syncBuffer struct {
	buf bytes.Buffer
	mu  sync.Mutex
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.String()
}

func job(name string, status batchv1.JobStatus) *batchv1.Job {
	return &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: ns},
		Status:     status,
	}
}

func pod(name, owner string, phase corev1.PodPhase) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: ns, Labels: kube.PodLabels(owner)},
		Status:     corev1.PodStatus{Phase: phase},
	}
}

func fastIntervals() monitor.Opt {
	return monitor.WithIntervals(10*time.Millisecond, 10*time.Millisecond, 200*time.Millisecond)
}

// staticLogs serves fixed log content per pod.
func staticLogs(content map[string]string) monitor.LogStreamer {
	return func(_ context.Context, pod string, _ bool) (io.ReadCloser, error) {
		c, ok := content[pod]
		if !ok {
			return nil, errors.New("no such pod")
		}

		return io.NopCloser(strings.NewReader(c)), nil
	}
}

// blockingLogs writes one line per pod and then blocks until ctx is done.
func blockingLogs() monitor.LogStreamer {
	return func(ctx context.Context, pod string, _ bool) (io.ReadCloser, error) {
		pr, pw := io.Pipe()

		go func() {
			_, _ = pw.Write([]byte("hello from " + pod + "\n"))
			<-ctx.Done()
			_ = pw.CloseWithError(ctx.Err())
		}()

		return pr, nil
	}
}

func TestWatch(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		objs      []runtime.Object
		err       error
		wantPhase monitor.Phase
		wantOut   string
	}{
		"succeeded": {
			objs:      []runtime.Object{job("train", batchv1.JobStatus{Succeeded: 1})},
			wantPhase: monitor.PhaseSucceeded,
			wantOut:   "Job completed successfully",
		},
		"failed": {
			objs:      []runtime.Object{job("train", batchv1.JobStatus{Failed: 1})},
			err:       monitor.ErrWorkloadFailed,
			wantPhase: monitor.PhaseFailed,
			wantOut:   "Job failed with 1 failure(s)",
		},
		"gone": {
			err: monitor.ErrWorkloadGone,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var out syncBuffer
			c := kube.NewClient(fake.NewClientset(tc.objs...), ns)
			m := monitor.New(c, "train", workload.KindJob, monitor.WithOutput(&out), fastIntervals())

			state, err := m.Watch(t.Context())
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
			} else {
				require.NoError(t, err)
			}

			assert.Equal(t, tc.wantPhase, state.Phase)
			assert.Contains(t, out.String(), tc.wantOut)
		})
	}
}

func TestWatch_Cancelled(t *testing.T) {
	t.Parallel()

	var out syncBuffer
	c := kube.NewClient(fake.NewClientset(job("train", batchv1.JobStatus{Active: 1})), ns)
	m := monitor.New(c, "train", workload.KindJob, monitor.WithOutput(&out), fastIntervals())

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	state, err := m.Watch(ctx)
	require.NoError(t, err)
	assert.Equal(t, monitor.PhaseActive, state.Phase)
	assert.Contains(t, out.String(), "still running")

	_, err = c.Clientset.BatchV1().Jobs(ns).Get(t.Context(), "train", metav1.GetOptions{})
	require.NoError(t, err, "cancellation leaves the workload alone")
}

func TestWatch_TooManyErrors(t *testing.T) {
	t.Parallel()

	cs := fake.NewClientset()
	cs.PrependReactor("get", "jobs", func(k8stesting.Action) (bool, runtime.Object, error) {
		return true, nil, errors.New("connection refused")
	})

	m := monitor.New(kube.NewClient(cs, ns), "train", workload.KindJob,
		fastIntervals(), monitor.WithMaxConsecutiveErrors(3))

	_, err := m.Watch(t.Context())
	require.ErrorIs(t, err, monitor.ErrTooManyErrors)
}

func TestFollow_Completed(t *testing.T) {
	t.Parallel()

	var out syncBuffer
	c := kube.NewClient(fake.NewClientset(
		job("train", batchv1.JobStatus{Succeeded: 1}),
		pod("train-a", "train", corev1.PodSucceeded),
		pod("train-b", "train", corev1.PodPending),
		pod("other-a", "other", corev1.PodRunning),
	), ns)

	logs := staticLogs(map[string]string{
		"train-a": "step 1\nstep 2\n\xff\xfe\nno newline",
	})

	m := monitor.New(c, "train", workload.KindJob,
		monitor.WithOutput(&out), monitor.WithLogStreamer(logs), fastIntervals())

	state, err := m.Follow(t.Context())
	require.NoError(t, err)
	assert.Equal(t, monitor.PhaseSucceeded, state.Phase)

	got := out.String()
	assert.Contains(t, got, "[train-a] step 1\n")
	assert.Contains(t, got, "[train-a] step 2\n")
	assert.Contains(t, got, "[train-a] <binary data>\n")
	assert.Contains(t, got, "[train-a] no newline\n")
	assert.NotContains(t, got, "train-b")
	assert.NotContains(t, got, "other-a")
}

func TestFollow_CancelWithinGracePeriod(t *testing.T) {
	t.Parallel()

	var out syncBuffer
	c := kube.NewClient(fake.NewClientset(
		job("train", batchv1.JobStatus{Active: 2}),
		pod("train-a", "train", corev1.PodRunning),
		pod("train-b", "train", corev1.PodRunning),
	), ns)

	grace := 200 * time.Millisecond
	m := monitor.New(c, "train", workload.KindJob,
		monitor.WithOutput(&out),
		monitor.WithLogStreamer(blockingLogs()),
		monitor.WithIntervals(10*time.Millisecond, 10*time.Millisecond, grace),
	)

	ctx, cancel := context.WithCancel(t.Context())

	type result struct {
		err   error
		state monitor.State
	}

	done := make(chan result, 1)
	go func() {
		state, err := m.Follow(ctx)
		done <- result{state: state, err: err}
	}()

	require.Eventually(t, func() bool {
		s := out.String()
		return strings.Contains(s, "[train-a] hello from train-a") &&
			strings.Contains(s, "[train-b] hello from train-b")
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	start := time.Now()

	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.Equal(t, monitor.PhaseActive, r.state.Phase)
		assert.Equal(t, 2, r.state.KnownPods)
		assert.Less(t, time.Since(start), grace+500*time.Millisecond)
	case <-time.After(5 * time.Second):
		t.Fatal("follow did not return after cancellation")
	}

	assert.NotContains(t, out.String(), "Log stream ended")
}

func TestPrintLogs(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	logs := staticLogs(map[string]string{"a": "line a", "b": "line b"})

	err := monitor.PrintLogs(t.Context(), logs, []string{"a", "b", "missing"}, &out)
	require.Error(t, err)

	got := out.String()
	assert.Contains(t, got, "=== Logs for pod a ===\nline a\n")
	assert.Contains(t, got, "=== Logs for pod b ===\nline b\n")
	assert.Contains(t, got, "Error getting logs for pod missing")
}

func TestStreamLogs(t *testing.T) {
	t.Parallel()

	var out syncBuffer
	logs := staticLogs(map[string]string{"a": "one\ntwo\n", "b": "three\n"})

	monitor.StreamLogs(t.Context(), logs, []string{"a", "b"}, &out)

	got := out.String()
	assert.Contains(t, got, "[a] one\n")
	assert.Contains(t, got, "[a] two\n")
	assert.Contains(t, got, "[b] three\n")
}

func TestKubeLogs(t *testing.T) {
	t.Parallel()

	c := kube.NewClient(fake.NewClientset(pod("p", "w", corev1.PodRunning)), ns)

	rc, err := monitor.KubeLogs(c)(t.Context(), "p", false)
	require.NoError(t, err)

	defer rc.Close()

	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "fake logs", string(b))
}
