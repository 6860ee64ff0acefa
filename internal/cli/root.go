package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/macropower/k8r/pkg/config"
	"github.com/macropower/k8r/pkg/kube"
	"github.com/macropower/k8r/pkg/log"
	"github.com/macropower/k8r/pkg/source"
	"github.com/macropower/k8r/pkg/version"
	"github.com/macropower/k8r/pkg/yaml"
)

const (
	cmdName = "k8r"
	cmdDesc = `Run a directory, GitHub repository, Dockerfile, or container image on Kubernetes.`
)

// ClientFunc connects to the cluster.
type ClientFunc func(opts kube.LoadOptions) (*kube.Client, error)

type RootArgs struct {
	newClient ClientFunc
	builder   source.ImageBuilder
	client    *kube.Client
	config    *config.Config

	LogLevel   string
	LogFormat  string
	ConfigPath string
	Kubeconfig string
	Context    string
	Namespace  string

	mu sync.Mutex
}

// RootOpt configures the root command.
type RootOpt func(ra *RootArgs)

// WithClientFunc replaces how the cluster client is created.
func WithClientFunc(f ClientFunc) RootOpt {
	return func(ra *RootArgs) {
		ra.newClient = f
	}
}

// WithImageBuilder replaces the Docker-backed image builder.
func WithImageBuilder(b source.ImageBuilder) RootOpt {
	return func(ra *RootArgs) {
		ra.builder = b
	}
}

func NewRootArgs(opts ...RootOpt) *RootArgs {
	ra := &RootArgs{newClient: kube.Load}
	for _, opt := range opts {
		opt(ra)
	}

	return ra
}

func (ra *RootArgs) AddFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVar(&ra.LogLevel, "log-level", "info", fmt.Sprintf("Log level, one of: %s", log.AllLevels))
	flags.StringVar(&ra.LogFormat, "log-format", "text", fmt.Sprintf("Log format, one of: %s", log.AllFormats))
	flags.StringVar(&ra.ConfigPath, "config", "", "Path to the k8r configuration file")
	flags.StringVar(&ra.Kubeconfig, "kubeconfig", "", "Path to the kubeconfig file")
	flags.StringVar(&ra.Context, "context", "", "Kubeconfig context to use")
	flags.StringVarP(&ra.Namespace, "namespace", "n", "", "Kubernetes namespace (overrides the kube context)")

	must(cmd.RegisterFlagCompletionFunc("log-format",
		cobra.FixedCompletions(log.AllFormats, cobra.ShellCompDirectiveNoFileComp),
	))
	must(cmd.RegisterFlagCompletionFunc("log-level",
		cobra.FixedCompletions(log.AllLevels, cobra.ShellCompDirectiveNoFileComp),
	))
	must(cmd.MarkPersistentFlagFilename("config", "yaml", "yml"))
	must(cmd.MarkPersistentFlagFilename("kubeconfig"))
}

// Config returns the loaded configuration, reading it on first use.
func (ra *RootArgs) Config() (*config.Config, error) {
	ra.mu.Lock()
	defer ra.mu.Unlock()

	if ra.config != nil {
		return ra.config, nil
	}

	c, err := config.Load(ra.configPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	ra.config = c

	return c, nil
}

func (ra *RootArgs) configPath() string {
	if ra.ConfigPath != "" {
		return ra.ConfigPath
	}

	return config.GetPath()
}

// Client returns the cluster client, connecting on first use.
func (ra *RootArgs) Client() (*kube.Client, error) {
	ra.mu.Lock()
	defer ra.mu.Unlock()

	if ra.client != nil {
		return ra.client, nil
	}

	c, err := ra.newClient(kube.LoadOptions{
		Kubeconfig: ra.Kubeconfig,
		Context:    ra.Context,
		Namespace:  ra.Namespace,
	})
	if err != nil {
		return nil, err
	}

	slog.Debug("connected to cluster", slog.String("namespace", c.Namespace))
	ra.client = c

	return c, nil
}

func NewRootCmd(opts ...RootOpt) *cobra.Command {
	args := NewRootArgs(opts...)
	runArgs := NewRunArgs(args)

	runCmd := NewRunCmd(runArgs)
	cmd := &cobra.Command{
		Use:               cmdName + " [source] [-- command...]",
		Short:             cmdDesc,
		Example:           cmdExamples,
		PersistentPreRunE: setupLogging(args),
		ValidArgsFunction: runCmd.ValidArgsFunction,
		Args:              runCmd.Args,
		RunE: func(cmd *cobra.Command, a []string) error {
			if len(a) == 0 {
				return cmd.Help()
			}

			return runCmd.RunE(cmd, a)
		},
	}

	args.AddFlags(cmd)
	runArgs.AddFlags(cmd)
	cmd.AddCommand(
		runCmd,
		NewLsCmd(args),
		NewLogsCmd(args),
		NewRmCmd(args),
		NewSecretCmd(args),
		NewConfigCmd(args),
	)

	bindEnvVars(cmd)

	return cmd
}

func setupLogging(ra *RootArgs) func(cmd *cobra.Command, _ []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		err := log.Setup(cmd.ErrOrStderr(), ra.LogLevel, ra.LogFormat)
		if err != nil {
			return fmt.Errorf("create log handler: %w", err)
		}

		slog.Debug("starting", slog.String("version", version.Summary()))

		return nil
	}
}

// printYAML writes data to the command output, highlighted when it is a
// terminal.
func printYAML(cmd *cobra.Command, data []byte) error {
	w := cmd.OutOrStdout()

	return yaml.NewHighlighter(w).Highlight(w, data)
}

// isTerminal reports whether r is an interactive terminal.
func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return false
	}

	return term.IsTerminal(int(f.Fd())) //nolint:gosec // G115: File descriptors fit in int.
}
