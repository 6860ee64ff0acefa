package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/macropower/k8r/pkg/yaml"
)

// SchemaFile is written next to the config file by [WriteDefault].
const SchemaFile = "config.v1beta1.json"

//go:embed config.yaml
var defaultConfigYAML []byte

// Validator validates decoded configuration data.
type Validator interface {
	Validate(data any) error
}

// Loader validates and decodes configuration data.
type Loader struct {
	validator Validator
	data      []byte
}

// LoaderOpt configures a [Loader].
type LoaderOpt func(*Loader)

// WithValidator replaces the schema validator.
func WithValidator(v Validator) LoaderOpt {
	return func(l *Loader) {
		l.validator = v
	}
}

func NewLoaderFromBytes(data []byte, opts ...LoaderOpt) *Loader {
	l := &Loader{data: data}
	for _, opt := range opts {
		opt(l)
	}

	return l
}

func NewLoaderFromFile(path string, opts ...LoaderOpt) (*Loader, error) {
	data, err := readConfig(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	return NewLoaderFromBytes(data, opts...), nil
}

// Validate checks the data against the schema without decoding it into a
// [Config].
func (l *Loader) Validate() error {
	v := l.validator
	if v == nil {
		dv, err := defaultValidator()
		if err != nil {
			return fmt.Errorf("build schema validator: %w", err)
		}

		v = dv
	}

	var doc any

	err := yaml.NewDecoder(bytes.NewReader(l.data)).Decode(&doc)
	if errors.Is(err, io.EOF) {
		doc = map[string]any{}
	} else if err != nil {
		return l.annotate(err)
	}

	return l.annotate(v.Validate(doc))
}

// Load decodes the data, fills defaults, and runs [Config.Validate].
func (l *Loader) Load() (*Config, error) {
	c := &Config{}

	err := yaml.NewDecoder(bytes.NewReader(l.data)).Decode(c)
	if err != nil {
		return nil, l.annotate(err)
	}

	c.EnsureDefaults()

	err = c.Validate()
	if err != nil {
		return nil, err
	}

	return c, nil
}

func (l *Loader) annotate(err error) error {
	var yerr *yaml.Error
	if errors.As(err, &yerr) {
		return yerr.WithSource(l.data)
	}

	return err
}

// Load reads, validates, and decodes the config file at path. A missing file
// yields the defaults.
func Load(path string) (*Config, error) {
	l, err := NewLoaderFromFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Debug("config file not found, using defaults", slog.String("path", path))

		return NewConfig(), nil
	}
	if err != nil {
		return nil, err
	}

	err = l.Validate()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	c, err := l.Load()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return c, nil
}

// WriteDefault writes the default config.yaml and its JSON schema to the
// directory of path. An existing config is kept unless force is set, in which
// case it is renamed to a timestamped backup first. The schema is always
// rewritten.
func WriteDefault(path string, force bool) error {
	exists := false

	info, err := os.Stat(path)
	if info != nil {
		switch {
		case err == nil && info.Mode().IsRegular():
			exists = true
		case info.IsDir():
			return fmt.Errorf("%s: path is a directory", path)
		default:
			return fmt.Errorf("%s: unknown file state", path)
		}
	}

	dir := filepath.Dir(path)

	err = os.MkdirAll(dir, 0o700)
	if err != nil {
		return fmt.Errorf("create directories: %w", err)
	}

	if exists && force {
		backup := filepath.Join(dir, fmt.Sprintf("%s.%d.old", filepath.Base(path), time.Now().UnixNano()))
		slog.Info("backing up existing config file", slog.String("path", backup))

		err = os.Rename(path, backup)
		if err != nil {
			return fmt.Errorf("rename existing config file to backup: %w", err)
		}

		exists = false
	}

	if exists {
		slog.Debug("configuration file already exists, skipping write", slog.String("path", path))
	} else {
		slog.Info("write default configuration", slog.String("path", path))

		err = os.WriteFile(path, defaultConfigYAML, 0o600)
		if err != nil {
			return fmt.Errorf("write config file: %w", err)
		}
	}

	schema, err := Schema()
	if err != nil {
		return err
	}

	schemaPath := filepath.Join(dir, SchemaFile)
	slog.Debug("write JSON schema", slog.String("path", schemaPath))

	err = os.WriteFile(schemaPath, schema, 0o600)
	if err != nil {
		return fmt.Errorf("write schema file: %w", err)
	}

	return nil
}

// GetPath returns the default config file location.
func GetPath() string {
	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok && xdg != "" {
		return filepath.Join(xdg, "k8r", "config.yaml")
	}

	home, err := os.UserHomeDir()
	if err == nil && home != "" {
		return filepath.Join(home, ".config", "k8r", "config.yaml")
	}

	tmp := filepath.Join(os.TempDir(), "k8r", "config.yaml")
	slog.Warn("could not determine user config directory, using temp path for config",
		slog.String("path", tmp),
		slog.Any("error", err),
	)

	return tmp
}

func readConfig(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s: %w: path is a directory", path, fs.ErrInvalid)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s: %w: unknown file state", path, fs.ErrInvalid)
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: Path is user supplied.
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	return data, nil
}
