package config

//go:generate go run ../../internal/schemagen -o config.v1beta1.json

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/mattn/go-shellwords"

	"github.com/macropower/k8r/pkg/build"
	"github.com/macropower/k8r/pkg/monitor"
	"github.com/macropower/k8r/pkg/names"
	"github.com/macropower/k8r/pkg/workload"
	"github.com/macropower/k8r/pkg/yaml"
)

const (
	APIVersion = "k8r.jacobcolvin.com/v1beta1"
	Kind       = "Configuration"

	// SchemaURL identifies the reflected schema.
	SchemaURL = "https://k8r.jacobcolvin.com/schemas/config.v1beta1.json"

	DefaultBaseImage       = "alpine:latest"
	DefaultTimeout         = "1h"
	DefaultCommand         = `echo "No command specified"`
	DefaultCollisionPolicy = names.PolicyFail
)

var ErrInvalidConfig = errors.New("invalid configuration")

var defaultValidator = sync.OnceValues(func() (*yaml.Validator, error) {
	data, err := Schema()
	if err != nil {
		return nil, err
	}

	return yaml.NewValidator(SchemaURL, data)
})

//nolint:recvcheck // Must satisfy the jsonschema interface.
type Config struct {
	Run     *RunConfig     `json:"run,omitempty" jsonschema:"title=Run"`
	Build   *BuildConfig   `json:"build,omitempty" jsonschema:"title=Build"`
	Monitor *MonitorConfig `json:"monitor,omitempty" jsonschema:"title=Monitor"`
	// APIVersion specifies the API version for this configuration.
	APIVersion string `json:"apiVersion" jsonschema:"title=API Version"`
	// Kind defines the type of configuration.
	Kind string `json:"kind" jsonschema:"title=Kind"`
}

// RunConfig holds defaults for `k8r run`.
type RunConfig struct {
	// BaseImage runs directory and repository sources.
	BaseImage string `json:"baseImage,omitempty" jsonschema:"title=Base Image"`
	// Timeout bounds how long a Job may run, as a duration or bare seconds.
	Timeout string `json:"timeout,omitempty" jsonschema:"title=Timeout"`
	// DefaultCommand runs when no command is given, split into shell words.
	DefaultCommand string `json:"defaultCommand,omitempty" jsonschema:"title=Default Command"`
	// CollisionPolicy decides what happens when the generated name is taken.
	CollisionPolicy string `json:"collisionPolicy,omitempty" jsonschema:"title=Collision Policy,enum=fail,enum=increment"`
}

// BuildConfig locates the registry that Dockerfile sources are pushed to.
type BuildConfig struct {
	Registry string `json:"registry,omitempty" jsonschema:"title=Registry"`
	Project  string `json:"project,omitempty" jsonschema:"title=Project"`
}

// MonitorConfig tunes status polling and log following.
type MonitorConfig struct {
	PollInterval         string `json:"pollInterval,omitempty" jsonschema:"title=Poll Interval"`
	FollowInterval       string `json:"followInterval,omitempty" jsonschema:"title=Follow Interval"`
	GracePeriod          string `json:"gracePeriod,omitempty" jsonschema:"title=Grace Period"`
	MaxConsecutiveErrors int    `json:"maxConsecutiveErrors,omitempty" jsonschema:"title=Max Consecutive Errors,minimum=1"`
}

func NewConfig() *Config {
	c := &Config{
		APIVersion: APIVersion,
		Kind:       Kind,
	}
	c.EnsureDefaults()

	return c
}

// EnsureDefaults fills every unset field.
func (c *Config) EnsureDefaults() {
	if c.Run == nil {
		c.Run = &RunConfig{}
	}
	if c.Build == nil {
		c.Build = &BuildConfig{}
	}
	if c.Monitor == nil {
		c.Monitor = &MonitorConfig{}
	}

	c.Run.EnsureDefaults()
	c.Build.EnsureDefaults()
	c.Monitor.EnsureDefaults()
}

func (r *RunConfig) EnsureDefaults() {
	if r.BaseImage == "" {
		r.BaseImage = DefaultBaseImage
	}
	if r.Timeout == "" {
		r.Timeout = DefaultTimeout
	}
	if r.DefaultCommand == "" {
		r.DefaultCommand = DefaultCommand
	}
	if r.CollisionPolicy == "" {
		r.CollisionPolicy = string(DefaultCollisionPolicy)
	}
}

func (b *BuildConfig) EnsureDefaults() {
	if b.Registry == "" {
		b.Registry = build.DefaultRegistry
	}
	if b.Project == "" {
		b.Project = build.DefaultProject
	}
}

func (m *MonitorConfig) EnsureDefaults() {
	if m.PollInterval == "" {
		m.PollInterval = monitor.DefaultPollInterval.String()
	}
	if m.FollowInterval == "" {
		m.FollowInterval = monitor.DefaultFollowInterval.String()
	}
	if m.GracePeriod == "" {
		m.GracePeriod = monitor.DefaultGracePeriod.String()
	}
	if m.MaxConsecutiveErrors == 0 {
		m.MaxConsecutiveErrors = monitor.DefaultMaxConsecutiveErrors
	}
}

// Validate checks what the schema cannot express. It expects defaults to be
// set.
func (c *Config) Validate() error {
	var errs []error

	if _, err := workload.ParseTimeout(c.Run.Timeout); err != nil {
		errs = append(errs, fmt.Errorf("run.timeout: %w", err))
	}
	if _, err := names.ParsePolicy(c.Run.CollisionPolicy); err != nil {
		errs = append(errs, fmt.Errorf("run.collisionPolicy: %w", err))
	}
	if _, err := c.Run.DefaultCommandArgs(); err != nil {
		errs = append(errs, fmt.Errorf("run.defaultCommand: %w", err))
	}
	if _, err := c.Monitor.Intervals(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}

	return nil
}

// DefaultCommandArgs splits DefaultCommand into shell words.
func (r *RunConfig) DefaultCommandArgs() ([]string, error) {
	args, err := shellwords.Parse(r.DefaultCommand)
	if err != nil {
		return nil, fmt.Errorf("parse command: %w", err)
	}

	return args, nil
}

// Intervals holds the parsed monitor durations.
type Intervals struct {
	Poll   time.Duration
	Follow time.Duration
	Grace  time.Duration
}

// Intervals parses the monitor durations.
func (m *MonitorConfig) Intervals() (Intervals, error) {
	var (
		iv  Intervals
		err error
	)

	fields := []struct {
		dst   *time.Duration
		name  string
		value string
	}{
		{&iv.Poll, "monitor.pollInterval", m.PollInterval},
		{&iv.Follow, "monitor.followInterval", m.FollowInterval},
		{&iv.Grace, "monitor.gracePeriod", m.GracePeriod},
	}
	for _, f := range fields {
		*f.dst, err = time.ParseDuration(f.value)
		if err != nil {
			return Intervals{}, fmt.Errorf("%s: %w", f.name, err)
		}
		if *f.dst <= 0 {
			return Intervals{}, fmt.Errorf("%s: must be positive", f.name)
		}
	}

	return iv, nil
}

func (c Config) JSONSchemaExtend(jss *jsonschema.Schema) {
	for prop, value := range map[string]string{"apiVersion": APIVersion, "kind": Kind} {
		s, ok := jss.Properties.Get(prop)
		if !ok {
			panic(prop + " property not found in schema")
		}

		s.Const = value
		_, _ = jss.Properties.Set(prop, s)
	}
}

// Schema returns the JSON schema for [Config].
func Schema() ([]byte, error) {
	r := &jsonschema.Reflector{DoNotReference: true}

	s := r.Reflect(&Config{})
	s.ID = SchemaURL

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}

	return data, nil
}

func (c *Config) MarshalYAML() ([]byte, error) {
	b, err := yaml.Marshal(*c)
	if err != nil {
		return nil, fmt.Errorf("marshal yaml: %w", err)
	}

	return b, nil
}
