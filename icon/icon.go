// Package icon renders the status glyphs shown in CLI output and desktop notices.
//
// Icons can be displayed as emoji, nerd-font glyphs or plain ASCII
// depending on user preference.
package icon

import (
	"github.com/massdroid-cli/massd/key"
	"github.com/spf13/viper"
)

const (
	emoji = "emoji"
	nerd  = "nerd"
	plain = "plain"
	none  = "none"
)

// AvailableVariants returns all supported icon styles.
func AvailableVariants() []string {
	return []string{emoji, nerd, plain, none}
}

type Icon int

const (
	Success Icon = iota
	Fail
	Progress
	Network
	Resume
	Pause
	Speaker
)

type iconDef struct {
	emoji string
	nerd  string
	plain string
}

var icons = map[Icon]iconDef{
	Success:  {emoji: "✅", nerd: "", plain: "+"},
	Fail:     {emoji: "❌", nerd: "", plain: "x"},
	Progress: {emoji: "⏳", nerd: "", plain: "~"},
	Network:  {emoji: "📶", nerd: "", plain: "#"},
	Resume:   {emoji: "▶️", nerd: "", plain: ">"},
	Pause:    {emoji: "⏸️", nerd: "", plain: "="},
	Speaker:  {emoji: "🔈", nerd: "", plain: "*"},
}

func (d iconDef) get() string {
	switch viper.GetString(key.CliIcons) {
	case emoji:
		return d.emoji
	case nerd:
		return d.nerd
	case plain:
		return d.plain
	default:
		return ""
	}
}

// Get renders i in the configured variant. Unknown variants and "none" render nothing.
func Get(i Icon) string {
	return icons[i].get()
}

// Prefix renders i followed by a space, or nothing when icons are off.
func Prefix(i Icon) string {
	if s := Get(i); s != "" {
		return s + " "
	}
	return ""
}
