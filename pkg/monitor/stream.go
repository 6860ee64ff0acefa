package monitor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	corev1 "k8s.io/api/core/v1"

	"github.com/macropower/k8r/pkg/kube"
	"github.com/macropower/k8r/pkg/source"
)

// LogStreamer opens the log of a pod. With follow set the stream stays open
// until the container exits or ctx is cancelled.
type LogStreamer func(ctx context.Context, pod string, follow bool) (io.ReadCloser, error)

// KubeLogs returns a [LogStreamer] reading the runner container's log through
// the Kubernetes API.
func KubeLogs(c *kube.Client) LogStreamer {
	return func(ctx context.Context, pod string, follow bool) (io.ReadCloser, error) {
		req := c.Clientset.CoreV1().Pods(c.Namespace).GetLogs(pod, &corev1.PodLogOptions{
			Container: source.ContainerName,
			Follow:    follow,
		})

		rc, err := req.Stream(ctx)
		if err != nil {
			return nil, fmt.Errorf("open log for pod %q: %w", pod, err)
		}

		return rc, nil
	}
}

// lockedWriter serializes writes so lines from concurrent streams do not
// interleave mid-line.
type lockedWriter struct {
	w  io.Writer
	mu sync.Mutex
}

func (lw *lockedWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	//nolint:wrapcheck // Pass-through writer.
	return lw.w.Write(p)
}

// streamPod copies a pod's log to out, one "[pod] line" per write, until the
// stream ends or stop is set. Errors are reported inline.
func streamPod(ctx context.Context, logs LogStreamer, pod string, follow bool, stop *atomic.Bool, out io.Writer) {
	rc, err := logs(ctx, pod, follow)
	if err != nil {
		if !stop.Load() && ctx.Err() == nil {
			fmt.Fprintf(out, "[%s] Log stream error: %v\n", pod, err)
		}

		return
	}
	defer rc.Close() //nolint:errcheck // Log stream.

	fmt.Fprintf(out, "=== Starting log stream for pod %s ===\n", pod)

	br := bufio.NewReader(rc)
	for !stop.Load() {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 && !stop.Load() {
			writeLine(out, pod, line)
		}

		if err != nil {
			if !errors.Is(err, io.EOF) && !stop.Load() && ctx.Err() == nil {
				fmt.Fprintf(out, "[%s] Log stream ended: %v\n", pod, err)
			}

			return
		}
	}
}

func writeLine(out io.Writer, pod string, line []byte) {
	if !utf8.Valid(line) {
		fmt.Fprintf(out, "[%s] <binary data>\n", pod)
		return
	}

	if line[len(line)-1] != '\n' {
		line = append(line, '\n')
	}

	fmt.Fprintf(out, "[%s] %s", pod, line)
}

// PrintLogs writes the current log of each pod under a header.
func PrintLogs(ctx context.Context, logs LogStreamer, pods []string, out io.Writer) error {
	var errs []error

	for _, pod := range pods {
		fmt.Fprintf(out, "\n=== Logs for pod %s ===\n", pod)

		if err := copyLog(ctx, logs, pod, out); err != nil {
			fmt.Fprintf(out, "Error getting logs for pod %s: %v\n", pod, err)
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func copyLog(ctx context.Context, logs LogStreamer, pod string, out io.Writer) error {
	rc, err := logs(ctx, pod, false)
	if err != nil {
		return err
	}
	defer rc.Close() //nolint:errcheck // Log stream.

	if _, err := io.Copy(out, rc); err != nil {
		return fmt.Errorf("read log for pod %q: %w", pod, err)
	}

	fmt.Fprintln(out)

	return nil
}

// StreamLogs follows the logs of all pods concurrently, prefixing each line
// with its pod name, until every stream ends or ctx is cancelled.
func StreamLogs(ctx context.Context, logs LogStreamer, pods []string, out io.Writer) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		stop atomic.Bool
		wg   sync.WaitGroup
	)

	lw := &lockedWriter{w: out}

	for _, pod := range pods {
		wg.Add(1)
		go func(pod string) {
			defer wg.Done()
			streamPod(ctx, logs, pod, true, &stop, lw)
		}(pod)
	}

	go func() {
		<-ctx.Done()
		stop.Store(true)
	}()

	wg.Wait()
}
