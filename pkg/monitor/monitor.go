// Package monitor follows a workload until it finishes.
//
// [Monitor.Watch] polls aggregate status. [Monitor.Follow] also streams the
// logs of every pod as it appears, one goroutine per pod. Only the polling
// loop touches the set of followed pods; streams get their pod name by value
// and share nothing but a stop flag and a line-serializing writer.
//
// Cancelling the context stops the observer. The workload itself is never
// modified.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	appsv1 "k8s.io/api/apps/v1"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/macropower/k8r/pkg/kube"
	"github.com/macropower/k8r/pkg/log"
	"github.com/macropower/k8r/pkg/workload"
)

const (
	DefaultPollInterval         = 5 * time.Second
	DefaultFollowInterval       = 2 * time.Second
	DefaultGracePeriod          = time.Second
	DefaultMaxConsecutiveErrors = 10
)

var (
	// ErrWorkloadGone is returned when the workload disappears while being
	// monitored.
	ErrWorkloadGone = errors.New("workload no longer exists")
	// ErrWorkloadFailed is returned when the workload reaches [PhaseFailed].
	ErrWorkloadFailed = errors.New("workload failed")
	// ErrTooManyErrors is returned after too many consecutive failed polls.
	ErrTooManyErrors = errors.New("too many consecutive errors")
)

// Monitor observes one workload.
type Monitor struct {
	client         *kube.Client
	out            io.Writer
	logs           LogStreamer
	tracer         trace.Tracer
	name           string
	kind           workload.Kind
	pollInterval   time.Duration
	followInterval time.Duration
	gracePeriod    time.Duration
	maxErrors      int
}

// Opt configures a [Monitor].
type Opt func(*Monitor)

// WithOutput sets where status lines and pod logs are written.
func WithOutput(w io.Writer) Opt {
	return func(m *Monitor) {
		m.out = w
	}
}

// WithIntervals overrides the poll interval, the follow interval, and the
// grace period. Zero values keep the defaults.
func WithIntervals(poll, follow, grace time.Duration) Opt {
	return func(m *Monitor) {
		if poll > 0 {
			m.pollInterval = poll
		}
		if follow > 0 {
			m.followInterval = follow
		}
		if grace > 0 {
			m.gracePeriod = grace
		}
	}
}

// WithMaxConsecutiveErrors sets how many polls in a row may fail before
// monitoring gives up. Zero keeps the default.
func WithMaxConsecutiveErrors(n int) Opt {
	return func(m *Monitor) {
		if n > 0 {
			m.maxErrors = n
		}
	}
}

// WithLogStreamer replaces the pod log source.
func WithLogStreamer(ls LogStreamer) Opt {
	return func(m *Monitor) {
		m.logs = ls
	}
}

// New creates a [Monitor] for the workload name of the given kind.
func New(c *kube.Client, name string, kind workload.Kind, opts ...Opt) *Monitor {
	m := &Monitor{
		client:         c,
		name:           name,
		kind:           kind,
		out:            io.Discard,
		tracer:         otel.Tracer("lifecycle-monitor"),
		pollInterval:   DefaultPollInterval,
		followInterval: DefaultFollowInterval,
		gracePeriod:    DefaultGracePeriod,
		maxErrors:      DefaultMaxConsecutiveErrors,
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.logs == nil {
		m.logs = KubeLogs(c)
	}

	return m
}

// Watch polls status until the workload reaches a terminal phase or ctx is
// cancelled. Cancellation returns the last state and no error.
func (m *Monitor) Watch(ctx context.Context) (State, error) {
	ctx, span := m.tracer.Start(ctx, "watch", trace.WithAttributes(
		attribute.String("workload", m.name),
	))
	defer span.End()

	fmt.Fprintf(m.out, "Monitoring %s '%s'...\n", m.kind, m.name)

	var (
		state    State
		reported bool
		errRun   int
	)

	for {
		next, err := m.observe(ctx, false)
		switch {
		case err == nil:
			errRun = 0
			prev := state
			state = state.Advance(next)

			if !reported || prev != state {
				fmt.Fprintf(m.out, "Status: %s\n", state.Counts())
				reported = true
			}

			if state.Phase.Terminal() {
				return state, m.finish(state)
			}

		case ctx.Err() != nil:
			return m.stopped(state)

		default:
			errRun++
			if ferr := m.pollError(ctx, err, errRun); ferr != nil {
				return state, ferr
			}
		}

		if !sleep(ctx, m.pollInterval) {
			return m.stopped(state)
		}
	}
}

// Follow polls status and streams logs from every pod until the workload
// reaches a terminal phase or ctx is cancelled. A Deployment is never
// terminal while it is healthy, so following one ends only on cancellation
// or failure.
func (m *Monitor) Follow(ctx context.Context) (State, error) {
	ctx, span := m.tracer.Start(ctx, "follow", trace.WithAttributes(
		attribute.String("workload", m.name),
	))
	defer span.End()

	fmt.Fprintf(m.out, "Monitoring %s '%s' with real-time logs...\n", m.kind, m.name)

	out := &lockedWriter{w: m.out}

	streamCtx, cancelStreams := context.WithCancel(ctx)
	defer cancelStreams()

	var (
		stop     atomic.Bool
		wg       sync.WaitGroup
		followed = map[string]struct{}{}
		state    State
		reported bool
		errRun   int
	)

	scan := func() error {
		pods, err := workload.Pods(ctx, m.client, m.name)
		if err != nil {
			return err
		}

		for i := range pods {
			name := pods[i].Name
			if _, ok := followed[name]; ok || !streamable(pods[i].Status.Phase) {
				continue
			}

			followed[name] = struct{}{}

			wg.Add(1)
			go func(pod string) {
				defer wg.Done()
				streamPod(streamCtx, m.logs, pod, true, &stop, out)
			}(name)
		}

		return nil
	}

	shutdown := func(drain bool) {
		if drain && waitTimeout(&wg, m.gracePeriod) {
			return
		}

		stop.Store(true)
		cancelStreams()

		fmt.Fprintln(out, "Waiting for log streams to finish...")

		if !waitTimeout(&wg, m.gracePeriod) {
			log.WithContext(ctx).DebugContext(ctx, "log streams still running after grace period",
				slog.Int("pods", len(followed)),
			)
		}
	}

	for {
		next, err := m.observe(ctx, true)
		if err == nil {
			err = scan()
		}

		switch {
		case err == nil:
			errRun = 0
			next.KnownPods = len(followed)
			prev := state
			state = state.Advance(next)

			if !reported || prev != state {
				fmt.Fprintf(out, "%s Status: %s\n", m.kind.Title(), state.Counts())
				reported = true
			}

			if state.Phase.Terminal() {
				shutdown(true)
				return state, m.finish(state)
			}

		case ctx.Err() != nil:
			shutdown(false)
			return m.stopped(state)

		default:
			errRun++
			if ferr := m.pollError(ctx, err, errRun); ferr != nil {
				shutdown(false)
				return state, ferr
			}
		}

		if !sleep(ctx, m.followInterval) {
			shutdown(false)
			return m.stopped(state)
		}
	}
}

func (m *Monitor) observe(ctx context.Context, follow bool) (State, error) {
	switch m.kind {
	case workload.KindJob:
		r := kube.Get(ctx, m.name, func(ctx context.Context, name string) (*batchv1.Job, error) {
			return m.client.Clientset.BatchV1().Jobs(m.client.Namespace).Get(ctx, name, metav1.GetOptions{})
		})
		if r.NotFound() {
			return State{}, fmt.Errorf("%w: job %q", ErrWorkloadGone, m.name)
		}
		if err := r.Err(); err != nil {
			return State{}, fmt.Errorf("get job %q: %w", m.name, err)
		}

		return ObserveJob(r.Object()), nil

	case workload.KindDeployment:
		r := kube.Get(ctx, m.name, func(ctx context.Context, name string) (*appsv1.Deployment, error) {
			return m.client.Clientset.AppsV1().Deployments(m.client.Namespace).Get(ctx, name, metav1.GetOptions{})
		})
		if r.NotFound() {
			return State{}, fmt.Errorf("%w: deployment %q", ErrWorkloadGone, m.name)
		}
		if err := r.Err(); err != nil {
			return State{}, fmt.Errorf("get deployment %q: %w", m.name, err)
		}

		return ObserveDeployment(r.Object(), follow), nil
	}

	return State{}, fmt.Errorf("%w: %q", workload.ErrUnknownKind, m.kind)
}

// pollError decides whether a failed poll ends monitoring.
func (m *Monitor) pollError(ctx context.Context, err error, run int) error {
	if errors.Is(err, ErrWorkloadGone) {
		return err
	}

	log.WithContext(ctx).WarnContext(ctx, "monitoring error, retrying",
		slog.String("workload", m.name),
		slog.Int("attempt", run),
		slog.Any("err", err),
	)

	if run >= m.maxErrors {
		return fmt.Errorf("%w: %w", ErrTooManyErrors, err)
	}

	return nil
}

func (m *Monitor) finish(s State) error {
	if s.Phase == PhaseFailed {
		fmt.Fprintf(m.out, "%s failed with %d failure(s)\n", m.kind.Title(), s.Failed)
		return fmt.Errorf("%w: %s %q", ErrWorkloadFailed, m.kind, m.name)
	}

	fmt.Fprintf(m.out, "%s completed successfully\n", m.kind.Title())

	return nil
}

func (m *Monitor) stopped(s State) (State, error) {
	fmt.Fprintf(m.out, "Monitoring stopped, %s '%s' is still running\n", m.kind, m.name)
	return s, nil
}

func streamable(p corev1.PodPhase) bool {
	return p == corev1.PodRunning || p == corev1.PodSucceeded || p == corev1.PodFailed
}

// sleep waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// waitTimeout waits for wg up to d and reports whether it finished.
func waitTimeout(wg *sync.WaitGroup, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-done:
		return true
	case <-t.C:
		return false
	}
}
