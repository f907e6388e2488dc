package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/massdroid-cli/massd/color"
	"github.com/massdroid-cli/massd/control"
	"github.com/massdroid-cli/massd/daemon"
	"github.com/massdroid-cli/massd/icon"
	"github.com/massdroid-cli/massd/interruption"
	"github.com/massdroid-cli/massd/style"
	"github.com/massdroid-cli/massd/util"
	"github.com/massdroid-cli/massd/where"
	"github.com/muesli/reflow/indent"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"golang.org/x/exp/slices"
)

func callDaemon(command ...string) json.RawMessage {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	data, err := control.Call(ctx, where.ControlSocket(), command...)
	handleErr(err)
	return data
}

// simpleControl builds a command that forwards its name and arguments to the daemon.
func simpleControl(name, short string, args cobra.PositionalArgs, valid []string, done string) *cobra.Command {
	return &cobra.Command{
		Use:       name,
		Short:     short,
		Args:      args,
		ValidArgs: valid,
		Run: func(cmd *cobra.Command, args []string) {
			callDaemon(append([]string{name}, args...)...)
			fmt.Printf("%s%s\n", icon.Prefix(icon.Success), done)
		},
	}
}

func init() {
	rootCmd.AddCommand(
		simpleControl(control.CommandPlay, "Start playback as the user", cobra.NoArgs, nil, "play sent"),
		simpleControl(control.CommandPause, "Pause playback as the user, cancelling any automatic resume", cobra.NoArgs, nil, "pause sent"),
		simpleControl(control.CommandStop, "Stop playback as the user, cancelling any automatic resume", cobra.NoArgs, nil, "stop sent"),
		simpleControl(control.CommandFocus, "Report an audio focus change", cobra.ExactArgs(1), interruption.FocusNames(), "focus change reported"),
		simpleControl(control.CommandCall, "Report a telephony call state", cobra.ExactArgs(1), interruption.CallStateNames(), "call state reported"),
		selectCmd,
		statusCmd,
		controlCmd,
	)

	selectCmd.Flags().Bool("local", false, "Mark the endpoint as this device regardless of its id")
	selectCmd.Flags().Bool("remote", false, "Mark the endpoint as an external speaker regardless of its id")
	selectCmd.MarkFlagsMutuallyExclusive("local", "remote")

	statusCmd.Flags().BoolP("json", "j", false, "Print the raw status as JSON")
	statusCmd.SetOut(os.Stdout)

	controlCmd.AddCommand(controlSchemaCmd)
	controlSchemaCmd.Flags().BoolP("response", "r", false, "Generate the schema of responses instead of requests")
}

var selectCmd = &cobra.Command{
	Use:   "select <endpoint>",
	Short: "Record the user's choice of output endpoint",
	Long:  "Record the user's choice of output endpoint. Automatic resume only acts while this device is selected.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		command := []string{control.CommandSelect, args[0]}
		switch {
		case lo.Must(cmd.Flags().GetBool("local")):
			command = append(command, "true")
		case lo.Must(cmd.Flags().GetBool("remote")):
			command = append(command, "false")
		}

		callDaemon(command...)
		fmt.Printf("%sselected %s\n", icon.Prefix(icon.Speaker), style.Fg(color.Endpoint)(args[0]))
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the daemon's continuity state",
	Run: func(cmd *cobra.Command, args []string) {
		erase := util.PrintErasable(icon.Prefix(icon.Progress) + "asking daemon...")
		data := callDaemon(control.CommandStatus)
		erase()

		if lo.Must(cmd.Flags().GetBool("json")) {
			cmd.Println(string(data))
			return
		}

		var st daemon.Status
		handleErr(json.Unmarshal(data, &st))
		cmd.Print(renderStatus(st))
	},
}

func renderStatus(st daemon.Status) string {
	label := style.Fg(color.Blue)
	yesNo := func(b bool) string {
		return lo.Ternary(b, style.Fg(color.Green)("yes"), style.Fg(color.Red)("no"))
	}

	c := st.Continuity
	out := fmt.Sprintf("%s %s\n", label("Phase:"), style.Phase(c.Phase.String()))
	out += fmt.Sprintf("%s %s (%s)\n", label("Endpoint:"), style.Fg(color.Endpoint)(st.Endpoint.ID),
		lo.Ternary(st.Endpoint.IsLocalDevice, "this device", "external"))
	out += fmt.Sprintf("%s %s\n", label("Network up:"), yesNo(st.NetworkUp))
	out += fmt.Sprintf("%s %s\n", label("Backend:"), st.Backend)

	cur := c.Current
	out += fmt.Sprintf("%s %s %s %s\n", label("Playing:"), yesNo(cur.IsPlaying),
		lo.Ternary(cur.TrackID == "", style.Faint("nothing"), cur.TrackID),
		util.FormatPosition(cur.PositionMs)+" / "+util.FormatPosition(cur.DurationMs))

	if a := c.Attempt; a != nil {
		attempt := fmt.Sprintf("#%d via %s path, %s", a.ID, a.Path, util.Quantify(int(a.RetryCount), "retry", "retries"))
		if c.Frozen != nil {
			attempt += fmt.Sprintf(", frozen at %s", util.FormatPosition(c.Frozen.PositionMs))
		}
		out += fmt.Sprintf("%s %s\n", label("Attempt:"), attempt)
	}
	if c.Deferred != "" {
		out += fmt.Sprintf("%s %s\n", label("Deferred:"), style.Faint(string(c.Deferred)+" resume waits for the interruption to clear"))
	}
	if st.Interrupted {
		out += fmt.Sprintf("%s %s\n", label("Interrupted:"), style.Fg(color.Yellow)("paused until focus returns or the call ends"))
	}

	out += label("Sockets:") + "\n"
	var sockets string
	names := lo.Keys(st.Sockets)
	slices.Sort(names)
	for _, name := range names {
		s := st.Sockets[name]
		sockets += fmt.Sprintf("%s connected=%s stabilized=%s changes=%d believed=%s\n",
			name, yesNo(s.Connected), yesNo(s.Window.Stabilized), s.Window.ChangeCount,
			lo.Ternary(s.BelievedState == "", "unknown", s.BelievedState))
	}
	return out + indent.String(sockets, 2)
}

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Inspect the control socket protocol",
}

var controlSchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Generate the JSON schema of control socket messages",
	Run: func(cmd *cobra.Command, args []string) {
		schema := control.Schema(lo.Must(cmd.Flags().GetBool("response")))
		handleErr(json.NewEncoder(os.Stdout).Encode(schema))
	},
}
