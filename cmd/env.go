package cmd

import (
	"os"
	"strings"

	"github.com/massdroid-cli/massd/color"
	"github.com/massdroid-cli/massd/config"
	"github.com/massdroid-cli/massd/constant"
	"github.com/massdroid-cli/massd/style"
	"github.com/massdroid-cli/massd/where"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"golang.org/x/exp/slices"
)

func init() {
	rootCmd.AddCommand(envCmd)
	envCmd.Flags().BoolP("set-only", "s", false, "Display only environment variables that are currently defined")
	envCmd.Flags().BoolP("unset-only", "u", false, "Display only environment variables that are currently undefined")

	envCmd.MarkFlagsMutuallyExclusive("set-only", "unset-only")
}

// pathEnvs are read directly by where rather than through viper.
var pathEnvs = []string{where.EnvConfigPath, where.EnvRuntimePath}

// envName maps a config key to the variable viper reads it from.
func envName(k string) string {
	if slices.Contains(pathEnvs, k) {
		return k
	}
	return strings.ToUpper(constant.App + "_" + config.EnvKeyReplacer.Replace(k))
}

var envCmd = &cobra.Command{
	Use:   "env",
	Short: "Display the collection of supported environment variables",
	Long:  `Display the collection of supported environment variables and their current process values.`,
	Run: func(cmd *cobra.Command, args []string) {
		setOnly := lo.Must(cmd.Flags().GetBool("set-only"))
		unsetOnly := lo.Must(cmd.Flags().GetBool("unset-only"))

		names := lo.Map(append(slices.Clone(config.EnvExposed), pathEnvs...), func(k string, _ int) string {
			return envName(k)
		})
		slices.Sort(names)

		for _, env := range names {
			value, present := os.LookupEnv(env)
			present = present && value != ""

			if (setOnly && !present) || (unsetOnly && present) {
				continue
			}

			cmd.Print(style.New().Bold(true).Foreground(color.Purple).Render(env))
			cmd.Print("=")

			if present {
				cmd.Println(style.Fg(color.Green)(value))
			} else {
				cmd.Println(style.Fg(color.Red)("unset"))
			}
		}
	},
}
