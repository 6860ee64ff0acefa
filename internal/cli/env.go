package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// bindEnvVars sets each flag of cmd from K8R_<FLAG_NAME>, the upper-cased
// flag name with dashes replaced by underscores (--secret-job reads
// K8R_SECRET_JOB). Command line arguments win over the environment, which
// wins over defaults. The variable name is appended to the flag usage.
func bindEnvVars(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(flag *pflag.Flag) {
		bindFlagToEnv(flag)
	})

	cmd.PersistentFlags().VisitAll(func(flag *pflag.Flag) {
		bindFlagToEnv(flag)
	})
}

func bindFlagToEnv(flag *pflag.Flag) {
	env := flagToEnvName(flag.Name)

	if !strings.Contains(flag.Usage, env) {
		flag.Usage = fmt.Sprintf("%s ($%s)", flag.Usage, env)
	}

	if flag.Changed {
		return
	}

	value, ok := os.LookupEnv(env)
	if !ok || value == "" {
		return
	}

	err := flag.Value.Set(value)
	if err != nil {
		// Keep the default.
		slog.Error("failed to set flag from environment variable",
			slog.String("flag", flag.Name),
			slog.String("env", env),
			slog.String("value", value),
			slog.Any("error", err),
		)
	}
}

func flagToEnvName(flag string) string {
	return strings.ToUpper(cmdName + "_" + strings.ReplaceAll(flag, "-", "_"))
}
