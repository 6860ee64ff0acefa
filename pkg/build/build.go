// Package build builds and pushes container images from Dockerfiles using the
// Docker Engine API.
package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	dockerbuild "github.com/docker/docker/api/types/build"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/term"

	"github.com/macropower/k8r/pkg/archive"
	"github.com/macropower/k8r/pkg/log"
)

const (
	// DefaultRegistry is used when no registry is configured.
	DefaultRegistry = "gcr.io"
	// DefaultProject is used when no project is configured.
	DefaultProject = "default-project"

	dockerfileName = "Dockerfile"
)

var (
	// ErrBuild is returned when the image build fails.
	ErrBuild = errors.New("image build failed")
	// ErrPush is returned when the image push fails.
	ErrPush = errors.New("image push failed")
)

// DockerAPI is the subset of the Docker client used by [Builder].
type DockerAPI interface {
	ImageBuild(ctx context.Context, buildContext io.Reader, options dockerbuild.ImageBuildOptions) (dockerbuild.ImageBuildResponse, error)
	ImagePush(ctx context.Context, image string, options image.PushOptions) (io.ReadCloser, error)
}

// Builder builds an image from a Dockerfile and pushes it to a registry.
type Builder struct {
	api      DockerAPI
	tracer   trace.Tracer
	out      io.Writer
	registry string
	project  string
}

// BuilderOpt configures a [Builder].
type BuilderOpt func(*Builder)

// WithDockerAPI sets the Docker client. Without it, a client is created from
// the environment on first use.
func WithDockerAPI(api DockerAPI) BuilderOpt {
	return func(b *Builder) {
		b.api = api
	}
}

// WithOutput sets where build and push progress is written.
func WithOutput(w io.Writer) BuilderOpt {
	return func(b *Builder) {
		b.out = w
	}
}

// WithRegistry sets the registry and project used by [Builder.Tag].
func WithRegistry(registry, project string) BuilderOpt {
	return func(b *Builder) {
		if registry != "" {
			b.registry = registry
		}
		if project != "" {
			b.project = project
		}
	}
}

// NewBuilder creates a new [Builder].
func NewBuilder(opts ...BuilderOpt) *Builder {
	b := &Builder{
		tracer:   otel.Tracer("image-builder"),
		out:      io.Discard,
		registry: DefaultRegistry,
		project:  DefaultProject,
	}
	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Tag returns the image reference a workload named name is pushed to.
func (b *Builder) Tag(name string) string {
	return fmt.Sprintf("%s/%s/%s:latest", b.registry, b.project, name)
}

// BuildAndPush builds dockerfile with its parent directory as the build
// context, tags the result as tag, pushes it, and returns the reference.
func (b *Builder) BuildAndPush(ctx context.Context, dockerfile, tag string) (string, error) {
	ctx, span := b.tracer.Start(ctx, "build and push", trace.WithAttributes(
		attribute.String("dockerfile", dockerfile),
		attribute.String("tag", tag),
	))
	defer span.End()

	logger := log.WithContext(ctx).With(slog.String("tag", tag))

	if b.api == nil {
		api, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			return "", fmt.Errorf("create docker client: %w", err)
		}

		b.api = api
	}

	contextDir, name, err := splitDockerfile(dockerfile)
	if err != nil {
		return "", err
	}

	logger.InfoContext(ctx, "building image", slog.String("context", contextDir))

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(archive.WriteTar(pw, contextDir))
	}()

	resp, err := b.api.ImageBuild(ctx, pr, dockerbuild.ImageBuildOptions{
		Tags:        []string{tag},
		Dockerfile:  name,
		Remove:      true,
		ForceRemove: true,
	})
	if err != nil {
		_ = pr.CloseWithError(err)

		return "", fmt.Errorf("%w: %w", ErrBuild, err)
	}
	defer resp.Body.Close() //nolint:errcheck // Response body.

	if err := b.display(resp.Body); err != nil {
		return "", fmt.Errorf("%w: %w", ErrBuild, err)
	}

	logger.InfoContext(ctx, "pushing image")

	auth, err := registry.EncodeAuthConfig(registry.AuthConfig{})
	if err != nil {
		return "", fmt.Errorf("%w: encode auth: %w", ErrPush, err)
	}

	rc, err := b.api.ImagePush(ctx, tag, image.PushOptions{RegistryAuth: auth})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrPush, err)
	}
	defer rc.Close() //nolint:errcheck // Response body.

	if err := b.display(rc); err != nil {
		return "", fmt.Errorf("%w: %w", ErrPush, err)
	}

	return tag, nil
}

// display renders a Docker JSON message stream, returning the first error
// message found in it.
func (b *Builder) display(r io.Reader) error {
	var (
		fd     uintptr
		isTerm bool
	)

	if f, ok := b.out.(*os.File); ok {
		fd = f.Fd()
		isTerm = term.IsTerminal(int(fd)) //nolint:gosec // G115: File descriptors fit in int.
	}

	//nolint:wrapcheck // Wrapped by the caller.
	return jsonmessage.DisplayJSONMessagesStream(r, b.out, fd, isTerm, nil)
}

// splitDockerfile returns the build context directory and the Dockerfile
// name relative to it. A directory is treated as a context containing a file
// named Dockerfile.
func splitDockerfile(path string) (string, string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", "", fmt.Errorf("stat dockerfile: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", "", fmt.Errorf("resolve dockerfile: %w", err)
	}

	if info.IsDir() {
		return abs, dockerfileName, nil
	}

	return filepath.Dir(abs), filepath.Base(abs), nil
}
