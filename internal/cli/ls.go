package cli

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/macropower/k8r/pkg/workload"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

func NewLsCmd(ra *RootArgs) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List k8r Jobs and Deployments",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := ra.Client()
			if err != nil {
				return err
			}

			items, err := workload.List(cmd.Context(), c)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(items) == 0 {
				fmt.Fprintf(out, "No k8r workloads found in namespace '%s'\n", c.Namespace)
				return nil
			}

			fmt.Fprintln(out, renderTable(items))

			return nil
		},
	}

	bindEnvVars(cmd)

	return cmd
}

func renderTable(items []workload.Summary) string {
	rows := make([][]string, 0, len(items))
	for _, s := range items {
		rows = append(rows, []string{
			s.Name,
			string(s.Kind),
			s.SourceType,
			strconv.Itoa(int(s.Desired)),
			strconv.Itoa(int(s.Running)),
			strconv.Itoa(int(s.Ready)),
			strconv.Itoa(int(s.Failed)),
			age(s),
		})
	}

	return table.New().
		Border(lipgloss.HiddenBorder()).
		BorderTop(false).
		BorderBottom(false).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}

			return cellStyle
		}).
		Headers("NAME", "TYPE", "SOURCE", "DESIRED", "RUNNING", "READY", "FAILED", "AGE").
		Rows(rows...).
		String()
}

func age(s workload.Summary) string {
	if s.Created.IsZero() {
		return "unknown"
	}

	return humanize.Time(s.Created)
}
