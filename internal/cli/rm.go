package cli

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/macropower/k8r/pkg/workload"
)

type RmArgs struct {
	*RootArgs

	Force   bool
	Secrets bool
}

func NewRmCmd(rootArgs *RootArgs) *cobra.Command {
	ra := &RmArgs{RootArgs: rootArgs}

	cmd := &cobra.Command{
		Use:               "rm <name>",
		Aliases:           []string{"delete"},
		Short:             "Delete a workload, its source ConfigMap, and optionally its secrets",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: workloadCompletion(rootArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rm(cmd, ra, args[0])
		},
	}

	cmd.Flags().BoolVarP(&ra.Force, "force", "f", false, "Delete even when pods are running")
	cmd.Flags().BoolVar(&ra.Secrets, "rm-secrets", false, "Also delete the secrets owned by this name")

	bindEnvVars(cmd)

	return cmd
}

func rm(cmd *cobra.Command, ra *RmArgs, name string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	c, err := ra.Client()
	if err != nil {
		return err
	}

	opts := workload.DeleteOptions{Force: ra.Force, Secrets: ra.Secrets}

	deleted, err := workload.Delete(ctx, c, name, opts)
	if errors.Is(err, workload.ErrPodsRunning) && isTerminal(cmd.InOrStdin()) {
		confirmed, cerr := confirm(fmt.Sprintf("'%s' has running pods. Delete anyway?", name))
		if cerr != nil {
			return cerr
		}
		if !confirmed {
			fmt.Fprintln(out, "Deletion cancelled")
			return nil
		}

		opts.Force = true
		deleted, err = workload.Delete(ctx, c, name, opts)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%s '%s' deleted\n", deleted.Kind.Title(), name)

	switch {
	case deleted.SecretsDeleted > 0:
		fmt.Fprintf(out, "Deleted %d secret(s)\n", deleted.SecretsDeleted)
	case deleted.SecretsKept > 0:
		fmt.Fprintf(out, "Preserved %d secret(s), use --rm-secrets to delete them\n", deleted.SecretsKept)
	}

	return nil
}

func confirm(title string) (bool, error) {
	var ok bool

	err := huh.NewConfirm().
		Title(title).
		Affirmative("Delete").
		Negative("Cancel").
		Value(&ok).
		Run()
	if err != nil {
		return false, fmt.Errorf("confirm deletion: %w", err)
	}

	return ok, nil
}
