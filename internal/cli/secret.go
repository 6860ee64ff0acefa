package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/macropower/k8r/pkg/names"
	"github.com/macropower/k8r/pkg/secrets"
	"github.com/macropower/k8r/pkg/source"
	"github.com/macropower/k8r/pkg/yaml"
)

type SecretArgs struct {
	*RootArgs

	JobName  string
	ShowYAML bool
}

func NewSecretCmd(rootArgs *RootArgs) *cobra.Command {
	sa := &SecretArgs{RootArgs: rootArgs}

	cmd := &cobra.Command{
		Use:   "secret <name> <value>",
		Short: "Create or update a secret mounted into a job's pods",
		Long: `Create or update a secret mounted into the pods of a job.

The value is read from a file if it names one, as one key per file if it
names a directory, and used literally otherwise. Each key is mounted at
/k8r/secrets/<key> and exported as an upper-cased environment variable.`,
		Example: `  # Secret for the job named after the current directory:
  k8r secret api-token "$TOKEN"

  # Mount a credentials file into the "trainer" job:
  k8r secret gcp-creds ./creds.json --job-name trainer`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return secret(cmd, sa, args[0], args[1])
		},
	}

	cmd.Flags().StringVar(&sa.JobName, "job-name", "", "Job that owns the secret (default: current directory name)")
	cmd.Flags().BoolVar(&sa.ShowYAML, "show-yaml", false, "Print the manifest instead of applying it")

	bindEnvVars(cmd)

	return cmd
}

func secret(cmd *cobra.Command, sa *SecretArgs, name, value string) error {
	owner := names.Sanitize(orDefault(sa.JobName, source.WorkingDirName()), source.NameLength)

	s, kind, err := secrets.New(owner, name, value)
	if err != nil {
		return err
	}

	if sa.ShowYAML {
		data, err := yaml.MarshalManifests(s)
		if err != nil {
			return err
		}

		return printYAML(cmd, data)
	}

	c, err := sa.Client()
	if err != nil {
		return err
	}

	updated, err := secrets.Save(cmd.Context(), c, s)
	if err != nil {
		return err
	}

	verb := "created"
	if updated {
		verb = "updated"
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Secret '%s' %s for job '%s' from %s (%d key(s))\n",
		name, verb, owner, kind, len(s.Data))

	return nil
}
