package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/macropower/k8r/pkg/monitor"
	"github.com/macropower/k8r/pkg/workload"
)

type LogsArgs struct {
	*RootArgs

	Follow bool
}

func NewLogsCmd(rootArgs *RootArgs) *cobra.Command {
	la := &LogsArgs{RootArgs: rootArgs}

	cmd := &cobra.Command{
		Use:               "logs <name>",
		Short:             "Print or stream the logs of every pod of a workload",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: workloadCompletion(rootArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			name := args[0]

			c, err := la.Client()
			if err != nil {
				return err
			}

			pods, err := workload.Pods(ctx, c, name)
			if err != nil {
				return err
			}
			if len(pods) == 0 {
				fmt.Fprintf(out, "No pods found for '%s'\n", name)
				return nil
			}

			podNames := make([]string, 0, len(pods))
			for i := range pods {
				podNames = append(podNames, pods[i].Name)
			}

			slices.Sort(podNames)

			logs := monitor.KubeLogs(c)
			if la.Follow {
				monitor.StreamLogs(ctx, logs, podNames, out)
				return nil
			}

			return monitor.PrintLogs(ctx, logs, podNames, out)
		},
	}

	cmd.Flags().BoolVarP(&la.Follow, "follow", "f", false, "Stream logs until interrupted")

	bindEnvVars(cmd)

	return cmd
}

// workloadCompletion completes the names of k8r workloads.
func workloadCompletion(ra *RootArgs) cobra.CompletionFunc {
	return func(cmd *cobra.Command, args []string, _ string) ([]cobra.Completion, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}

		c, err := ra.Client()
		if err != nil {
			return nil, cobra.ShellCompDirectiveError
		}

		items, err := workload.List(cmd.Context(), c)
		if err != nil {
			return nil, cobra.ShellCompDirectiveError
		}

		out := make([]cobra.Completion, 0, len(items))
		for _, s := range items {
			out = append(out, cobra.CompletionWithDesc(s.Name, s.Kind.Title()))
		}

		return out, cobra.ShellCompDirectiveNoFileComp
	}
}
