package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/macropower/k8r/pkg/archive"
	"github.com/macropower/k8r/pkg/kube"
	"github.com/macropower/k8r/pkg/log"
)

// MaxConfigMapBytes is the largest packed directory accepted. The API server
// rejects larger ConfigMaps.
const MaxConfigMapBytes = 1 << 20

var (
	// ErrSourceTooLarge is returned when a packed directory exceeds
	// [MaxConfigMapBytes].
	ErrSourceTooLarge = errors.New("source directory too large")
	// ErrNoImageBuilder is returned for a [Dockerfile] source when the
	// [Resolver] has no [ImageBuilder].
	ErrNoImageBuilder = errors.New("no image builder configured")
)

// ImageBuilder builds and pushes images for [Dockerfile] sources.
type ImageBuilder interface {
	BuildAndPush(ctx context.Context, dockerfile, tag string) (string, error)
	Tag(name string) string
}

// Fragment is everything a workload needs from its source.
type Fragment struct {
	// ConfigMap carries a packed directory. Nil for other kinds.
	ConfigMap *corev1.ConfigMap
	Container corev1.Container
	Volumes   []corev1.Volume
}

// Request describes the workload a source is resolved for.
type Request struct {
	// Name is the final, sanitized workload name.
	Name string
	// BaseImage runs directory and repository sources.
	BaseImage string
	// Command is the user command. Arguments are joined unquoted.
	Command []string
	// DryRun computes the image tag of a [Dockerfile] without building it.
	DryRun bool
}

// Resolver builds a [Fragment] for each kind of [Source].
type Resolver struct {
	builder ImageBuilder
	tracer  trace.Tracer
	maxSize int
}

// ResolverOpt configures a [Resolver].
type ResolverOpt func(*Resolver)

// WithImageBuilder sets the collaborator used for [Dockerfile] sources.
func WithImageBuilder(b ImageBuilder) ResolverOpt {
	return func(r *Resolver) {
		r.builder = b
	}
}

// WithMaxConfigMapBytes overrides [MaxConfigMapBytes].
func WithMaxConfigMapBytes(n int) ResolverOpt {
	return func(r *Resolver) {
		r.maxSize = n
	}
}

// NewResolver creates a new [Resolver].
func NewResolver(opts ...ResolverOpt) *Resolver {
	r := &Resolver{
		tracer:  otel.Tracer("source-resolver"),
		maxSize: MaxConfigMapBytes,
	}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Resolve builds the container and supporting objects for src.
func (r *Resolver) Resolve(ctx context.Context, src Source, req Request) (*Fragment, error) {
	ctx, span := r.tracer.Start(ctx, "resolve source", trace.WithAttributes(
		attribute.String("kind", src.Kind().String()),
		attribute.String("location", src.Location()),
	))
	defer span.End()

	log.WithContext(ctx).DebugContext(ctx, "resolving source",
		slog.String("kind", src.Kind().String()),
		slog.String("location", src.Location()),
	)

	switch s := src.(type) {
	case Directory:
		return r.directory(s, req)
	case GitRepo:
		return r.gitRepo(s, req), nil
	case Dockerfile:
		return r.dockerfile(ctx, s, req)
	case ContainerImage:
		return containerImage(s.Image, req.Command), nil
	}

	return nil, fmt.Errorf("%w: %T", ErrUnknownSource, src)
}

func (r *Resolver) directory(s Directory, req Request) (*Fragment, error) {
	data, err := archive.EncodeDirectory(s.Path)
	if err != nil {
		return nil, fmt.Errorf("pack %q: %w", s.Path, err)
	}

	if len(data) > r.maxSize {
		return nil, fmt.Errorf("%w: %s packs to %s, limit is %s", ErrSourceTooLarge,
			s.Path, humanize.IBytes(uint64(len(data))), humanize.IBytes(uint64(r.maxSize)))
	}

	cmName := ConfigMapName(req.Name)

	return &Fragment{
		ConfigMap: &corev1.ConfigMap{
			TypeMeta: metav1.TypeMeta{APIVersion: "v1", Kind: "ConfigMap"},
			ObjectMeta: metav1.ObjectMeta{
				Name:   cmName,
				Labels: kube.PodLabels(req.Name),
			},
			Data: map[string]string{ArchiveKey: data},
		},
		Container: corev1.Container{
			Name:       ContainerName,
			Image:      req.BaseImage,
			Command:    []string{"sh", "-c", DirectoryScript(req.Command)},
			WorkingDir: WorkDir,
			VolumeMounts: []corev1.VolumeMount{{
				Name:      SourceVolumeName,
				MountPath: SourceMountPath,
			}},
		},
		Volumes: []corev1.Volume{{
			Name: SourceVolumeName,
			VolumeSource: corev1.VolumeSource{
				ConfigMap: &corev1.ConfigMapVolumeSource{
					LocalObjectReference: corev1.LocalObjectReference{Name: cmName},
				},
			},
		}},
	}, nil
}

func (r *Resolver) gitRepo(s GitRepo, req Request) *Fragment {
	return &Fragment{
		Container: corev1.Container{
			Name:       ContainerName,
			Image:      req.BaseImage,
			Command:    []string{"sh", "-c", GitScript(s.URL, req.Command)},
			WorkingDir: WorkDir,
		},
	}
}

func (r *Resolver) dockerfile(ctx context.Context, s Dockerfile, req Request) (*Fragment, error) {
	if r.builder == nil {
		return nil, ErrNoImageBuilder
	}

	tag := r.builder.Tag(req.Name)

	if req.DryRun {
		log.WithContext(ctx).InfoContext(ctx, "dry run, skipping image build", slog.String("tag", tag))

		return containerImage(tag, req.Command), nil
	}

	image, err := r.builder.BuildAndPush(ctx, s.Path, tag)
	if err != nil {
		return nil, fmt.Errorf("build %q: %w", s.Path, err)
	}

	return containerImage(image, req.Command), nil
}

func containerImage(image string, command []string) *Fragment {
	c := corev1.Container{
		Name:  ContainerName,
		Image: image,
	}
	if len(command) > 0 {
		c.Command = []string{"/bin/sh", "-c", JoinCommand(command)}
	}

	return &Fragment{Container: c}
}
