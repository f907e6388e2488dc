// Package cmd implements the command-line interface for massd.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	cc "github.com/ivanpirog/coloredcobra"
	"github.com/massdroid-cli/massd/color"
	"github.com/massdroid-cli/massd/constant"
	"github.com/massdroid-cli/massd/daemon"
	"github.com/massdroid-cli/massd/icon"
	"github.com/massdroid-cli/massd/key"
	"github.com/massdroid-cli/massd/log"
	"github.com/massdroid-cli/massd/style"
	"github.com/massdroid-cli/massd/util"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "Print the application version")

	rootCmd.PersistentFlags().StringP("icons", "I", "", "Set the icon variant (emoji, nerd, plain, none)")
	lo.Must0(rootCmd.RegisterFlagCompletionFunc("icons", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return icon.AvailableVariants(), cobra.ShellCompDirectiveDefault
	}))
	lo.Must0(viper.BindPFlag(key.CliIcons, rootCmd.PersistentFlags().Lookup("icons")))

	rootCmd.Flags().StringP("backend", "b", "", "Player backend to drive (music_assistant, mpv, mpd)")
	lo.Must0(rootCmd.RegisterFlagCompletionFunc("backend", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return daemon.Backends, cobra.ShellCompDirectiveDefault
	}))
	lo.Must0(viper.BindPFlag(key.PlayerBackend, rootCmd.Flags().Lookup("backend")))

	rootCmd.Flags().StringP("server", "s", "", "Music Assistant server url")
	lo.Must0(viper.BindPFlag(key.ServerURL, rootCmd.Flags().Lookup("server")))

	rootCmd.Flags().StringP("local-id", "l", "", "Endpoint id of this device")
	lo.Must0(viper.BindPFlag(key.PlayerLocalID, rootCmd.Flags().Lookup("local-id")))

	rootCmd.Flags().Bool("no-resume", false, "Start with automatic resume disabled")
}

// rootCmd runs the daemon in the foreground.
var rootCmd = &cobra.Command{
	Use:   constant.App,
	Short: "Keeps playback on this device alive across network changes",
	Long: style.New().Bold(true).Foreground(color.Purple).Render(constant.App) + "\n" +
		style.New().Italic(true).Foreground(color.Cyan).Render("    - resumes Music Assistant playback after the network drops and returns"),
	Run: func(cmd *cobra.Command, args []string) {
		if cmd.Flags().Changed("version") {
			versionCmd.Run(versionCmd, args)
			return
		}

		if lo.Must(cmd.Flags().GetBool("no-resume")) {
			viper.Set(key.ContinuityAutoResume, false)
		}

		opts := daemon.FromConfig()
		handleErr(CheckOptions(opts))

		d, err := daemon.New(opts, daemon.Deps{})
		handleErr(err)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Printf("%s%s watching %s for %s\n",
			icon.Prefix(icon.Network),
			style.Bold(constant.App),
			style.Fg(color.Yellow)(opts.Backend),
			style.Fg(color.Endpoint)(opts.LocalID),
		)
		handleErr(d.Run(ctx))
	},
}

// Execute initializes child command routing and processes the CLI entry point.
func Execute() {
	if viper.GetBool(key.CliColored) && util.IsTerminal() {
		cc.Init(&cc.Config{
			RootCmd:       rootCmd,
			Headings:      cc.HiCyan + cc.Bold + cc.Underline,
			Commands:      cc.HiYellow + cc.Bold,
			Example:       cc.Italic,
			ExecName:      cc.Bold,
			Flags:         cc.Bold,
			FlagsDataType: cc.Italic + cc.HiBlue,
		})
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func handleErr(err error) {
	if err != nil {
		log.Error(err)
		_, _ = fmt.Fprintf(os.Stderr, "%s%s\n", icon.Prefix(icon.Fail), strings.Trim(err.Error(), " \n"))
		os.Exit(1)
	}
}
