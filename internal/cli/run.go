package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"
	"k8s.io/apimachinery/pkg/runtime"

	"github.com/macropower/k8r/pkg/build"
	"github.com/macropower/k8r/pkg/config"
	"github.com/macropower/k8r/pkg/kube"
	"github.com/macropower/k8r/pkg/monitor"
	"github.com/macropower/k8r/pkg/names"
	"github.com/macropower/k8r/pkg/source"
	"github.com/macropower/k8r/pkg/workload"
	"github.com/macropower/k8r/pkg/yaml"
)

const (
	cmdExamples = `  # Run a command in the current directory:
  k8r ./ -- python my_script.py

  # Run four instances with more memory:
  k8r run ./ --num 4 --mem 2gb-8gb -- python train.py

  # Run a container image:
  k8r redis:7.0 -- redis-server --version

  # Clone a repository and run a command in it:
  k8r https://github.com/user/repo -- make test

  # Build a Dockerfile, push it, and follow the logs:
  k8r ./Dockerfile -f

  # Replace a previous run with the same name:
  k8r ./ --rm -- ./run.sh

  # Print the manifests instead of applying them:
  k8r ./ --show-yaml -- ls -la`

	noRetry = -1
)

type RunArgs struct {
	*RootArgs

	Source      string
	JobName     string
	SecretJob   string
	Timeout     string
	BaseImage   string
	Memory      string
	CPU         string
	Registry    string
	Project     string
	Command     []string
	Num         int32
	Retry       int32
	Detach      bool
	Follow      bool
	ShowYAML    bool
	Deployment  bool
	RemoveFirst bool
}

func NewRunArgs(rootArgs *RootArgs) *RunArgs {
	return &RunArgs{
		RootArgs: rootArgs,
	}
}

func (ra *RunArgs) AddFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.Int32Var(&ra.Num, "num", 1, "Number of instances (Job completions or Deployment replicas)")
	flags.StringVar(&ra.Timeout, "timeout", "", "Job timeout, e.g. 1h, 30m, 3600s (default from config)")
	flags.StringVar(&ra.BaseImage, "base-image", "", "Base image for directory and GitHub sources (default from config)")
	flags.StringVar(&ra.JobName, "job-name", "", "Override the generated workload name")
	flags.BoolVarP(&ra.Detach, "detach", "d", false, "Return after creating the workload")
	flags.BoolVar(&ra.ShowYAML, "show-yaml", false, "Print the manifests instead of applying them")
	flags.BoolVar(&ra.Deployment, "as-deployment", false, "Create a Deployment instead of a Job")
	flags.Int32Var(&ra.Retry, "retry", noRetry, "Restart failed pods up to N times (default: never restart)")
	flags.BoolVarP(&ra.Follow, "follow", "f", false, "Stream logs from every pod while monitoring")
	flags.BoolVar(&ra.RemoveFirst, "rm", false, "Delete an existing workload with the same name first")
	flags.StringVar(&ra.Memory, "mem", "", "Memory request or request-limit, e.g. 8gb, 2gb-8gb")
	flags.StringVar(&ra.CPU, "cpu", "", "CPU request or request-limit, e.g. 500m, 0.5-2")
	flags.StringVar(&ra.SecretJob, "secret-job", "", "Mount the secrets of another job name")
	flags.StringVar(&ra.Registry, "registry", "", "Registry for Dockerfile sources (default from config)")
	flags.StringVar(&ra.Project, "project", "", "Registry project for Dockerfile sources (default from config)")

	cmd.MarkFlagsMutuallyExclusive("detach", "follow")
}

func NewRunCmd(ra *RunArgs) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run <source> [-- command...]",
		Short:   "Run a source as a Job or Deployment (default command)",
		Example: cmdExamples,
		Args: func(cmd *cobra.Command, args []string) error {
			n := len(args)
			if dash := cmd.ArgsLenAtDash(); dash != -1 {
				n = dash
			}
			if n > 1 {
				return fmt.Errorf("accepts at most 1 source before --, received %d", n)
			}

			return nil
		},
		ValidArgsFunction: func(_ *cobra.Command, args []string, _ string) ([]cobra.Completion, cobra.ShellCompDirective) {
			if len(args) > 0 {
				return nil, cobra.ShellCompDirectiveNoFileComp
			}

			return nil, cobra.ShellCompDirectiveDefault
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			before := args
			if dash := cmd.ArgsLenAtDash(); dash != -1 {
				before = args[:dash]
				ra.Command = args[dash:]
			}
			if len(before) == 0 {
				return errors.New("requires a source: a directory, GitHub URL, Dockerfile, or image")
			}

			ra.Source = before[0]

			return run(cmd, ra)
		},
	}
	ra.AddFlags(cmd)

	bindEnvVars(cmd)

	return cmd
}

func run(cmd *cobra.Command, ra *RunArgs) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	cfg, err := ra.Config()
	if err != nil {
		return err
	}

	src, err := source.Classify(ra.Source)
	if err != nil {
		return err
	}

	req, err := ra.request(cfg, src)
	if err != nil {
		return err
	}

	policy, err := names.ParsePolicy(cfg.Run.CollisionPolicy)
	if err != nil {
		return err
	}

	client, err := ra.Client()
	if err != nil {
		if !ra.ShowYAML {
			return err
		}

		slog.Warn("no cluster connection, skipping name and secret checks", slog.Any("err", err))
	}

	builder := ra.builder
	if builder == nil {
		builder = build.NewBuilder(
			build.WithOutput(cmd.ErrOrStderr()),
			build.WithRegistry(orDefault(ra.Registry, cfg.Build.Registry), orDefault(ra.Project, cfg.Build.Project)),
		)
	}

	launcher := workload.NewLauncher(client,
		workload.WithCollisionPolicy(policy),
		workload.WithResolver(source.NewResolver(source.WithImageBuilder(builder))),
	)

	launched, err := launcher.Launch(ctx, req)
	if err != nil {
		return err
	}

	if ra.ShowYAML {
		return printManifests(cmd, launched)
	}

	if launched.Replaced {
		fmt.Fprintf(out, "Replaced existing workload '%s'\n", launched.Name)
	}

	fmt.Fprintf(out, "%s '%s' created\n", launched.Kind.Title(), launched.Name)

	if ra.Detach {
		fmt.Fprintf(out, "%s '%s' started in background\n", launched.Kind.Title(), launched.Name)
		return nil
	}

	// A healthy Deployment never finishes, so only follow one when asked.
	if launched.Kind == workload.KindDeployment && !ra.Follow {
		return nil
	}

	return watch(cmd, client, cfg, launched, ra.Follow)
}

func (ra *RunArgs) request(cfg *config.Config, src source.Source) (workload.Request, error) {
	timeout, err := workload.ParseTimeout(orDefault(ra.Timeout, cfg.Run.Timeout))
	if err != nil {
		return workload.Request{}, err
	}

	command := ra.Command
	if len(command) == 0 && slices.Contains([]source.Kind{source.KindDirectory, source.KindGitRepo}, src.Kind()) {
		command, err = cfg.Run.DefaultCommandArgs()
		if err != nil {
			return workload.Request{}, err
		}
	}

	kind := workload.KindJob
	if ra.Deployment {
		kind = workload.KindDeployment
	}

	var retry *int32
	if ra.Retry >= 0 {
		retry = &ra.Retry
	}

	return workload.Request{
		Source:      src,
		Name:        ra.JobName,
		SecretOwner: ra.SecretJob,
		BaseImage:   orDefault(ra.BaseImage, cfg.Run.BaseImage),
		Kind:        kind,
		Memory:      ra.Memory,
		CPU:         ra.CPU,
		Command:     command,
		Timeout:     timeout,
		Instances:   ra.Num,
		Retry:       retry,
		Replace:     ra.RemoveFirst,
		DryRun:      ra.ShowYAML,
	}, nil
}

func watch(cmd *cobra.Command, c *kube.Client, cfg *config.Config, l *workload.Launched, follow bool) error {
	iv, err := cfg.Monitor.Intervals()
	if err != nil {
		return err
	}

	m := monitor.New(c, l.Name, l.Kind,
		monitor.WithOutput(cmd.OutOrStdout()),
		monitor.WithIntervals(iv.Poll, iv.Follow, iv.Grace),
		monitor.WithMaxConsecutiveErrors(cfg.Monitor.MaxConsecutiveErrors),
	)

	if follow {
		_, err = m.Follow(cmd.Context())
	} else {
		_, err = m.Watch(cmd.Context())
	}

	return err
}

func printManifests(cmd *cobra.Command, l *workload.Launched) error {
	objs := []runtime.Object{}
	if l.ConfigMap != nil {
		objs = append(objs, l.ConfigMap)
	}

	objs = append(objs, l.Object)

	data, err := yaml.MarshalManifests(objs...)
	if err != nil {
		return err
	}

	return printYAML(cmd, data)
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}

	return def
}
