// Package source classifies a user-supplied location and turns it into the
// container that runs it.
//
// A location is one of four kinds: a local directory, a GitHub repository, a
// Dockerfile, or a container image reference. [Classify] decides the kind and
// returns a [Source]; a [Resolver] then builds a [Fragment] holding the
// container, the pod volumes it needs, and the ConfigMap carrying a packed
// directory, if any.
package source

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Kind is the kind of a [Source].
type Kind int

const (
	KindDirectory Kind = iota
	KindGitRepo
	KindDockerfile
	KindContainerImage
)

// ErrUnknownSource is returned when a location matches no [Kind].
var ErrUnknownSource = errors.New("cannot determine source kind")

var gitPrefixes = []string{"git@", "https://github.com", "http://github.com"}

// String returns the value recorded in the source type label.
func (k Kind) String() string {
	switch k {
	case KindDirectory:
		return "directory"
	case KindGitRepo:
		return "github"
	case KindDockerfile:
		return "dockerfile"
	case KindContainerImage:
		return "container"
	}

	return fmt.Sprintf("Kind(%d)", int(k))
}

// Source is a classified location. The set of implementations is closed:
// [Directory], [GitRepo], [Dockerfile], and [ContainerImage].
type Source interface {
	Kind() Kind
	Location() string

	source()
}

// Directory is a local directory packed into a ConfigMap.
type Directory struct {
	Path string
}

// GitRepo is a repository cloned inside the container.
type GitRepo struct {
	URL string
}

// Dockerfile is built and pushed before the workload is created.
type Dockerfile struct {
	Path string
}

// ContainerImage is an image reference run as-is.
type ContainerImage struct {
	Image string
}

func (Directory) Kind() Kind      { return KindDirectory }
func (GitRepo) Kind() Kind        { return KindGitRepo }
func (Dockerfile) Kind() Kind     { return KindDockerfile }
func (ContainerImage) Kind() Kind { return KindContainerImage }

func (s Directory) Location() string      { return s.Path }
func (s GitRepo) Location() string        { return s.URL }
func (s Dockerfile) Location() string     { return s.Path }
func (s ContainerImage) Location() string { return s.Image }

func (Directory) source()      {}
func (GitRepo) source()        {}
func (Dockerfile) source()     {}
func (ContainerImage) source() {}

// Classify determines the kind of location. The first matching rule wins:
//
//  1. "Dockerfile", or any existing path whose name ends in "Dockerfile".
//  2. A GitHub URL ("git@", "https://github.com", "http://github.com").
//  3. An existing directory.
//  4. A string containing ":" that is not an existing path (an image).
//
// Anything else returns [ErrUnknownSource].
func Classify(location string) (Source, error) {
	info, statErr := os.Stat(location)
	exists := statErr == nil

	switch {
	case location == "Dockerfile", exists && strings.HasSuffix(location, "Dockerfile"):
		return Dockerfile{Path: location}, nil
	case hasAnyPrefix(location, gitPrefixes):
		return GitRepo{URL: location}, nil
	case exists && info.IsDir():
		return Directory{Path: location}, nil
	case !exists && strings.Contains(location, ":"):
		return ContainerImage{Image: location}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownSource, location)
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}

	return false
}
