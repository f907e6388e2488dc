package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/charmbracelet/lipgloss"
	"github.com/massdroid-cli/massd/color"
	"github.com/massdroid-cli/massd/constant"
	"github.com/massdroid-cli/massd/daemon"
	"github.com/massdroid-cli/massd/icon"
	"github.com/massdroid-cli/massd/key"
	"github.com/massdroid-cli/massd/style"
	"github.com/samber/lo"
)

var errMisconfigured = errors.New("configuration incomplete")

// CheckOptions verifies that the daemon has what it needs to act for this device,
// printing a hint box for the first problem found.
func CheckOptions(opts daemon.Options) error {
	switch {
	case !lo.Contains(daemon.Backends, opts.Backend):
		printProblem("Unknown player backend", fmt.Sprintf("%q is not one of %v.", opts.Backend, daemon.Backends),
			fmt.Sprintf("%s config set %s mpv", constant.App, key.PlayerBackend))
	case opts.Backend == daemon.BackendMusicAssistant && opts.LocalID == "":
		printProblem("No local player id", "Auto-resume only acts while this device is the selected player, so its id must be known.",
			fmt.Sprintf("%s config set %s <player id>", constant.App, key.PlayerLocalID))
	case opts.Backend == daemon.BackendMusicAssistant && opts.ServerURL == "":
		printProblem("No server", "The Music Assistant backend needs the server url.",
			fmt.Sprintf("%s config set %s ws://host:8095", constant.App, key.ServerURL))
	case opts.Backend == daemon.BackendMPV && !mpvAvailable(opts.MPVSocket):
		printProblem("mpv not found", fmt.Sprintf("Neither the socket %s nor an mpv binary was found.", opts.MPVSocket),
			"mpv --input-ipc-server="+opts.MPVSocket)
	default:
		return nil
	}
	return errMisconfigured
}

func mpvAvailable(socket string) bool {
	if _, err := os.Stat(socket); err == nil {
		return true
	}
	_, err := exec.LookPath("mpv")
	return err == nil
}

func printProblem(title, body, suggestion string) {
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(color.Red).
		Padding(1, 2).
		Margin(1, 0)

	head := style.New().Bold(true).Foreground(color.Red).Render(icon.Prefix(icon.Fail) + title)
	text := style.New().Foreground(color.White).Render(body)
	hint := fmt.Sprintf("\n\nTry:\n  %s", style.New().Foreground(color.Cyan).Bold(true).Render(suggestion))

	fmt.Println(box.Render(lipgloss.JoinVertical(lipgloss.Left, head, "\n", text, hint)))
}
