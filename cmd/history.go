package cmd

import (
	"encoding/json"
	"os"
	"time"

	"github.com/massdroid-cli/massd/color"
	"github.com/massdroid-cli/massd/icon"
	"github.com/massdroid-cli/massd/journal"
	"github.com/massdroid-cli/massd/style"
	"github.com/massdroid-cli/massd/util"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("last", "n", 10, "Number of most recent attempts to show, 0 for all")
	historyCmd.Flags().BoolP("json", "j", false, "Format the output as JSON")
	historyCmd.Flags().Bool("clear", false, "Remove every recorded attempt")
	historyCmd.MarkFlagsMutuallyExclusive("json", "clear")
	historyCmd.SetOut(os.Stdout)
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the outcome of recent automatic resume attempts",
	Run: func(cmd *cobra.Command, args []string) {
		if lo.Must(cmd.Flags().GetBool("clear")) {
			handleErr(journal.Clear())
			cmd.Printf("%sjournal cleared\n", icon.Prefix(icon.Success))
			return
		}

		entries, err := journal.Last(lo.Must(cmd.Flags().GetInt("last")))
		handleErr(err)

		if lo.Must(cmd.Flags().GetBool("json")) {
			handleErr(json.NewEncoder(cmd.OutOrStdout()).Encode(entries))
			return
		}

		if len(entries) == 0 {
			cmd.Println(style.Faint("no resume attempts recorded"))
			return
		}

		for _, e := range entries {
			track := lo.Ternary(e.TrackID == "", "unknown track", e.TrackID)
			cmd.Printf("%s %s %s\n",
				style.Faint(e.FinishedAt.Local().Format("2006-01-02 15:04:05")),
				style.Outcome(e.Outcome),
				style.Fg(color.Endpoint)(track),
			)
			cmd.Printf("    %s at %s, %s via %s path, took %s%s\n",
				style.Faint("frozen"),
				util.FormatPosition(e.PositionMs),
				util.Quantify(int(e.Retries), "retry", "retries"),
				e.Path,
				e.Took().Round(100*time.Millisecond),
				lo.Ternary(e.Seeked, ", position restored", ""),
			)
		}
	},
}
