package config_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/k8r/pkg/config"
)

func TestNewConfig(t *testing.T) {
	t.Parallel()

	c := config.NewConfig()

	assert.Equal(t, config.APIVersion, c.APIVersion)
	assert.Equal(t, config.Kind, c.Kind)
	assert.Equal(t, "alpine:latest", c.Run.BaseImage)
	assert.Equal(t, "1h", c.Run.Timeout)
	assert.Equal(t, "fail", c.Run.CollisionPolicy)
	assert.Equal(t, "gcr.io", c.Build.Registry)
	assert.Equal(t, "default-project", c.Build.Project)
	assert.Equal(t, 10, c.Monitor.MaxConsecutiveErrors)
	require.NoError(t, c.Validate())

	args, err := c.Run.DefaultCommandArgs()
	require.NoError(t, err)
	assert.Equal(t, []string{"echo", "No command specified"}, args)

	iv, err := c.Monitor.Intervals()
	require.NoError(t, err)
	assert.Equal(t, config.Intervals{
		Poll:   5 * time.Second,
		Follow: 2 * time.Second,
		Grace:  time.Second,
	}, iv)
}

func TestConfig_EnsureDefaults(t *testing.T) {
	t.Parallel()

	c := &config.Config{
		Run: &config.RunConfig{BaseImage: "python:3.12"},
	}
	c.EnsureDefaults()

	assert.Equal(t, "python:3.12", c.Run.BaseImage)
	assert.Equal(t, "1h", c.Run.Timeout)
	require.NotNil(t, c.Build)
	require.NotNil(t, c.Monitor)
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		mutate func(c *config.Config)
		errMsg string
	}{
		"defaults": {
			mutate: func(*config.Config) {},
		},
		"bare seconds timeout": {
			mutate: func(c *config.Config) { c.Run.Timeout = "3600" },
		},
		"bad timeout": {
			mutate: func(c *config.Config) { c.Run.Timeout = "soon" },
			errMsg: "run.timeout",
		},
		"bad policy": {
			mutate: func(c *config.Config) { c.Run.CollisionPolicy = "overwrite" },
			errMsg: "run.collisionPolicy",
		},
		"unbalanced quote": {
			mutate: func(c *config.Config) { c.Run.DefaultCommand = `echo "oops` },
			errMsg: "run.defaultCommand",
		},
		"bad interval": {
			mutate: func(c *config.Config) { c.Monitor.GracePeriod = "never" },
			errMsg: "monitor.gracePeriod",
		},
		"zero interval": {
			mutate: func(c *config.Config) { c.Monitor.PollInterval = "0s" },
			errMsg: "monitor.pollInterval",
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			c := config.NewConfig()
			tc.mutate(c)

			err := c.Validate()
			if tc.errMsg == "" {
				require.NoError(t, err)

				return
			}

			require.ErrorIs(t, err, config.ErrInvalidConfig)
			assert.ErrorContains(t, err, tc.errMsg)
		})
	}
}

func TestSchema(t *testing.T) {
	t.Parallel()

	data, err := config.Schema()
	require.NoError(t, err)

	var schema struct {
		Properties map[string]struct {
			Const      string         `json:"const"`
			Properties map[string]any `json:"properties"`
		} `json:"properties"`
		ID       string   `json:"$id"`
		Required []string `json:"required"`
	}
	require.NoError(t, json.Unmarshal(data, &schema))

	assert.Equal(t, config.SchemaURL, schema.ID)
	assert.ElementsMatch(t, []string{"apiVersion", "kind"}, schema.Required)
	assert.Equal(t, config.APIVersion, schema.Properties["apiVersion"].Const)
	assert.Equal(t, config.Kind, schema.Properties["kind"].Const)
	assert.Contains(t, schema.Properties["run"].Properties, "collisionPolicy")
	assert.Contains(t, schema.Properties["monitor"].Properties, "gracePeriod")
}

func TestConfig_MarshalYAML(t *testing.T) {
	t.Parallel()

	c := config.NewConfig()
	c.Run.CollisionPolicy = "increment"

	data, err := c.MarshalYAML()
	require.NoError(t, err)

	got, err := config.NewLoaderFromBytes(data).Load()
	require.NoError(t, err)
	assert.Equal(t, c, got)
}
