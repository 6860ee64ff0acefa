package workload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	appsv1 "k8s.io/api/apps/v1"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/macropower/k8r/pkg/kube"
	"github.com/macropower/k8r/pkg/log"
	"github.com/macropower/k8r/pkg/names"
	"github.com/macropower/k8r/pkg/secrets"
	"github.com/macropower/k8r/pkg/source"
)

const (
	replacePollInterval = 500 * time.Millisecond
	replaceTimeout      = time.Minute
)

// ErrNoCluster is returned when an operation that must reach the cluster is
// run without a client.
var ErrNoCluster = errors.New("no cluster connection")

// Request describes a workload to launch.
type Request struct {
	Source source.Source
	Retry  *int32
	// Name overrides the name derived from Source.
	Name string
	// SecretOwner is the owner whose secrets are mounted. Defaults to the
	// workload name.
	SecretOwner string
	BaseImage   string
	Kind        Kind
	Memory      string
	CPU         string
	Command     []string
	Timeout     time.Duration
	Instances   int32
	// Replace deletes an existing workload with the same name first.
	Replace bool
	// DryRun builds every object without creating anything.
	DryRun bool
}

// Launched is the outcome of [Launcher.Launch].
type Launched struct {
	// Object is a *batchv1.Job or *appsv1.Deployment.
	Object runtime.Object
	// ConfigMap carries a packed directory source. Nil for other kinds.
	ConfigMap *corev1.ConfigMap
	Name      string
	Kind      Kind
	Secrets   []secrets.Binding
	// Replaced is true when an existing workload was deleted first.
	Replaced bool
}

// Launcher runs the launch pipeline: naming, source resolution, secret
// binding, object assembly, and creation.
type Launcher struct {
	client       *kube.Client
	resolver     *source.Resolver
	tracer       trace.Tracer
	policy       names.Policy
	pollInterval time.Duration
}

// LauncherOpt configures a [Launcher].
type LauncherOpt func(*Launcher)

// WithCollisionPolicy sets how a taken name is handled. The default is
// [names.PolicyFail].
func WithCollisionPolicy(p names.Policy) LauncherOpt {
	return func(l *Launcher) {
		l.policy = p
	}
}

// WithResolver sets the source resolver.
func WithResolver(r *source.Resolver) LauncherOpt {
	return func(l *Launcher) {
		l.resolver = r
	}
}

// NewLauncher creates a new [Launcher]. client may be nil, in which case only
// dry runs succeed and cluster lookups are skipped.
func NewLauncher(client *kube.Client, opts ...LauncherOpt) *Launcher {
	l := &Launcher{
		client:       client,
		tracer:       otel.Tracer("workload-launcher"),
		policy:       names.PolicyFail,
		pollInterval: replacePollInterval,
	}
	for _, opt := range opts {
		opt(l)
	}

	if l.resolver == nil {
		l.resolver = source.NewResolver()
	}

	return l
}

// Launch builds the workload described by req and, unless req.DryRun is set,
// creates it. Dry runs still check the name and discover secrets when a
// cluster is available, so the returned objects match what would be created.
func (l *Launcher) Launch(ctx context.Context, req Request) (*Launched, error) {
	ctx, span := l.tracer.Start(ctx, "launch", trace.WithAttributes(
		attribute.String("source", req.Source.Location()),
		attribute.String("kind", string(req.Kind)),
		attribute.Bool("dry_run", req.DryRun),
	))
	defer span.End()

	out, err := l.launch(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return nil, err
	}

	return out, nil
}

func (l *Launcher) launch(ctx context.Context, req Request) (*Launched, error) {
	if l.client == nil && !req.DryRun {
		return nil, ErrNoCluster
	}

	logger := log.WithContext(ctx)

	out := &Launched{Kind: req.Kind}

	name, replaced, err := l.name(ctx, req)
	if err != nil {
		return nil, err
	}

	out.Name = name
	out.Replaced = replaced
	logger = logger.With(slog.String("workload", name))

	frag, err := l.resolver.Resolve(ctx, req.Source, source.Request{
		Name:      name,
		BaseImage: req.BaseImage,
		Command:   req.Command,
		DryRun:    req.DryRun,
	})
	if err != nil {
		return nil, fmt.Errorf("resolve source: %w", err)
	}

	out.ConfigMap = frag.ConfigMap

	owner := req.SecretOwner
	if owner == "" {
		owner = name
	}

	bindings, err := l.secrets(ctx, owner, req.DryRun)
	if err != nil {
		return nil, err
	}

	for _, b := range bindings {
		secrets.Apply(ctx, b, &frag.Container, &frag.Volumes)
	}

	out.Secrets = bindings

	obj, err := Build(frag, Options{
		Name:       name,
		Kind:       req.Kind,
		SourceKind: req.Source.Kind(),
		Instances:  req.Instances,
		Timeout:    req.Timeout,
		Retry:      req.Retry,
		Memory:     req.Memory,
		CPU:        req.CPU,
	})
	if err != nil {
		return nil, err
	}

	out.Object = obj

	if req.DryRun {
		logger.DebugContext(ctx, "dry run, not creating objects")
		return out, nil
	}

	if frag.ConfigMap != nil {
		if err := saveConfigMap(ctx, l.client, frag.ConfigMap); err != nil {
			return nil, err
		}
	}

	if err := create(ctx, l.client, obj); err != nil {
		if frag.ConfigMap != nil {
			removeConfigMap(ctx, l.client, frag.ConfigMap.Name)
		}

		return nil, err
	}

	logger.InfoContext(ctx, "created workload",
		slog.String("kind", string(req.Kind)),
		slog.Int("secrets", len(bindings)),
	)

	return out, nil
}

// name derives the workload name and applies the collision policy, or
// deletes the previous workload when req.Replace is set.
func (l *Launcher) name(ctx context.Context, req Request) (string, bool, error) {
	base := source.DefaultName(req.Name, req.Source)
	if l.client == nil {
		return base, false, nil
	}

	if req.Replace {
		if req.DryRun {
			return base, false, nil
		}

		_, err := Delete(ctx, l.client, base, DeleteOptions{Force: true})
		switch {
		case errors.Is(err, ErrNotFound):
			return base, false, nil
		case err != nil:
			return "", false, fmt.Errorf("remove existing workload: %w", err)
		}

		log.WithContext(ctx).InfoContext(ctx, "removed existing workload", slog.String("workload", base))

		if err := l.waitGone(ctx, base); err != nil {
			return "", false, err
		}

		return base, true, nil
	}

	exists := func(ctx context.Context, name string) (bool, error) {
		return Exists(ctx, l.client, name)
	}

	name, err := names.Resolve(ctx, base, source.NameLength, l.policy, exists)
	if err != nil && req.DryRun && !errors.Is(err, names.ErrNameConflict) {
		log.WithContext(ctx).WarnContext(ctx, "could not check workload name", slog.Any("err", err))
		return base, false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("workload name: %w", err)
	}

	return name, false, nil
}

// waitGone blocks until neither a workload named name nor its pods exist,
// since background deletion returns before either is removed.
func (l *Launcher) waitGone(ctx context.Context, name string) error {
	err := wait.PollUntilContextTimeout(ctx, l.pollInterval, replaceTimeout, true,
		func(ctx context.Context) (bool, error) {
			exists, err := Exists(ctx, l.client, name)
			if err != nil || exists {
				return false, err
			}

			pods, err := Pods(ctx, l.client, name)
			if err != nil {
				return false, err
			}

			return len(pods) == 0, nil
		})
	if err != nil {
		return fmt.Errorf("wait for %q to be removed: %w", name, err)
	}

	return nil
}

func (l *Launcher) secrets(ctx context.Context, owner string, dryRun bool) ([]secrets.Binding, error) {
	if l.client == nil {
		return nil, nil
	}

	bindings, err := secrets.Discover(ctx, l.client, owner)
	if err != nil {
		if dryRun {
			log.WithContext(ctx).WarnContext(ctx, "could not discover secrets", slog.Any("err", err))
			return nil, nil
		}

		return nil, err
	}

	return bindings, nil
}

func saveConfigMap(ctx context.Context, c *kube.Client, cm *corev1.ConfigMap) error {
	api := c.Clientset.CoreV1().ConfigMaps(c.Namespace)

	_, err := api.Create(ctx, cm, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		_, err = api.Update(ctx, cm, metav1.UpdateOptions{})
	}
	if err != nil {
		return fmt.Errorf("save configmap %q: %w", cm.Name, err)
	}

	return nil
}

// removeConfigMap deletes a source ConfigMap left behind by a failed create.
func removeConfigMap(ctx context.Context, c *kube.Client, name string) {
	err := c.Clientset.CoreV1().ConfigMaps(c.Namespace).Delete(ctx, name, metav1.DeleteOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		log.WithContext(ctx).WarnContext(ctx, "could not remove source configmap",
			slog.String("configmap", name),
			slog.Any("err", err),
		)
	}
}

func create(ctx context.Context, c *kube.Client, obj runtime.Object) error {
	var err error

	switch o := obj.(type) {
	case *batchv1.Job:
		_, err = c.Clientset.BatchV1().Jobs(c.Namespace).Create(ctx, o, metav1.CreateOptions{})
	case *appsv1.Deployment:
		_, err = c.Clientset.AppsV1().Deployments(c.Namespace).Create(ctx, o, metav1.CreateOptions{})
	default:
		return fmt.Errorf("%w: %T", ErrUnknownKind, obj)
	}

	if err != nil {
		return fmt.Errorf("create %s: %w", obj.GetObjectKind().GroupVersionKind().Kind, err)
	}

	return nil
}
