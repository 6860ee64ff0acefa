package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/macropower/k8r/pkg/config"
)

type ConfigArgs struct {
	*RootArgs

	Write bool
	Force bool
}

func NewConfigCmd(rootArgs *RootArgs) *cobra.Command {
	ca := &ConfigArgs{RootArgs: rootArgs}

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the active configuration or write the defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := ca.configPath()

			if ca.Write {
				err := config.WriteDefault(path, ca.Force)
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)

				return nil
			}

			c, err := ca.Config()
			if err != nil {
				return err
			}

			data, err := c.MarshalYAML()
			if err != nil {
				return err
			}

			return printYAML(cmd, data)
		},
	}

	cmd.Flags().BoolVar(&ca.Write, "write", false, "Write the default configuration and schema")
	cmd.Flags().BoolVar(&ca.Force, "force", false, "With --write, back up and replace an existing file")

	bindEnvVars(cmd)

	return cmd
}
