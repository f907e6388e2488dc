package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/massdroid-cli/massd/color"
	"github.com/massdroid-cli/massd/filesystem"
	"github.com/massdroid-cli/massd/icon"
	"github.com/massdroid-cli/massd/style"
	"github.com/massdroid-cli/massd/where"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

// location is one path the daemon reads or writes.
type location struct {
	Name    string `json:"name"`
	Flag    string `json:"flag"`
	Path    string `json:"path"`
	Kind    string `json:"kind"`
	Exists  bool   `json:"exists"`
	Size    int64  `json:"size,omitempty"`
	Entries int    `json:"entries,omitempty"`
}

type locator struct {
	name    string
	flag    string
	short   string
	kind    string
	resolve func() string
	// internal paths are only listed with --all
	internal bool
}

var locators = []locator{
	{name: "Config", flag: "config", short: "c", kind: "dir", resolve: where.Config},
	{name: "Logs", flag: "logs", short: "l", kind: "dir", resolve: where.Logs},
	{name: "Control socket", flag: "socket", short: "s", kind: "socket", resolve: where.ControlSocket},
	{name: "Journal", flag: "journal", short: "j", kind: "file", resolve: where.Journal},
	{name: "State", flag: "state", kind: "dir", resolve: where.State, internal: true},
	{name: "Runtime", flag: "runtime", kind: "dir", resolve: where.Runtime, internal: true},
}

func init() {
	rootCmd.AddCommand(whereCmd)

	flags := lo.Map(locators, func(l locator, _ int) string { return l.flag })
	for _, l := range locators {
		whereCmd.Flags().BoolP(l.flag, l.short, false, "Print only the "+l.name+" path")
	}
	whereCmd.MarkFlagsMutuallyExclusive(flags...)

	whereCmd.Flags().BoolP("all", "a", false, "Include internal state and runtime directories")
	whereCmd.Flags().Bool("json", false, "Format the output as JSON")
	whereCmd.SetOut(os.Stdout)
}

// locate resolves l and inspects what currently lives there.
func locate(l locator) location {
	loc := location{Name: l.name, Flag: l.flag, Path: l.resolve(), Kind: l.kind}

	info, err := filesystem.API().Stat(loc.Path)
	if err != nil {
		return loc
	}
	loc.Exists = true

	if info.IsDir() {
		if names, err := filesystem.API().ReadDir(loc.Path); err == nil {
			loc.Entries = len(names)
		}
	} else if l.kind == "file" {
		loc.Size = info.Size()
	}
	return loc
}

// describe is the faint detail shown after a path in the listing.
func describe(loc location) string {
	switch {
	case !loc.Exists && loc.Kind == "socket":
		return "daemon not running"
	case !loc.Exists:
		return "not created yet"
	case loc.Kind == "dir":
		return "dir, " + lo.Ternary(loc.Entries == 1, "1 entry", fmt.Sprintf("%d entries", loc.Entries))
	case loc.Kind == "file":
		return fmt.Sprintf("%d bytes", loc.Size)
	}
	return loc.Kind
}

var whereCmd = &cobra.Command{
	Use:   "where",
	Short: "Display the filesystem paths used by the daemon",
	Run: func(cmd *cobra.Command, args []string) {
		asJSON := lo.Must(cmd.Flags().GetBool("json"))

		selected, picked := lo.Find(locators, func(l locator) bool {
			return lo.Must(cmd.Flags().GetBool(l.flag))
		})

		var shown []locator
		switch {
		case picked:
			shown = []locator{selected}
		case lo.Must(cmd.Flags().GetBool("all")):
			shown = locators
		default:
			shown = lo.Reject(locators, func(l locator, _ int) bool { return l.internal })
		}
		locations := lo.Map(shown, func(l locator, _ int) location { return locate(l) })

		if asJSON {
			handleErr(json.NewEncoder(cmd.OutOrStdout()).Encode(locations))
			return
		}

		// a single path stays bare so it can be used in scripts
		if picked {
			cmd.Println(locations[0].Path)
			return
		}

		header := style.New().Bold(true).Foreground(color.Purple).Render
		for i, loc := range locations {
			mark := lo.Ternary(loc.Exists, icon.Prefix(icon.Success), icon.Prefix(icon.Fail))
			cmd.Printf("%s %s\n", header(loc.Name), style.Fg(color.Yellow)("--"+loc.Flag))
			cmd.Printf("%s%s %s\n", mark, loc.Path, style.Faint(describe(loc)))

			if i < len(locations)-1 {
				cmd.Println()
			}
		}
	},
}
