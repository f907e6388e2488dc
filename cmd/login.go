package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/massdroid-cli/massd/auth"
	"github.com/massdroid-cli/massd/color"
	"github.com/massdroid-cli/massd/icon"
	"github.com/massdroid-cli/massd/key"
	"github.com/massdroid-cli/massd/style"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

func init() {
	rootCmd.AddCommand(loginCmd, logoutCmd)
}

// readToken reads the token without echo on a terminal, or one line from a pipe.
func readToken() (string, error) {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Print("Token: ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		return strings.TrimSpace(string(raw)), err
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store a Music Assistant API token in the system keyring",
	Long:  "Store a Music Assistant API token in the system keyring. The token is read from the terminal without echo, or from stdin.",
	Run: func(cmd *cobra.Command, args []string) {
		server := viper.GetString(key.ServerURL)
		token, err := readToken()
		handleErr(err)
		if token == "" {
			handleErr(errors.New("empty token"))
		}

		handleErr(auth.SetToken(server, token))
		fmt.Printf("%stoken stored for %s\n", icon.Prefix(icon.Success), style.Fg(color.Purple)(server))
		if viper.GetString(key.ServerToken) != "" {
			fmt.Println(style.Faint(key.ServerToken + " is set and takes precedence over the keyring"))
		}
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored Music Assistant API token",
	Run: func(cmd *cobra.Command, args []string) {
		server := viper.GetString(key.ServerURL)
		handleErr(auth.DeleteToken(server))
		fmt.Printf("%stoken removed for %s\n", icon.Prefix(icon.Success), style.Fg(color.Purple)(server))
	},
}
