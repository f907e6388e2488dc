// Package cmd implements the command-line interface for massd.
package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	levenshtein "github.com/ka-weihe/fast-levenshtein"
	"github.com/massdroid-cli/massd/color"
	"github.com/massdroid-cli/massd/config"
	"github.com/massdroid-cli/massd/constant"
	"github.com/massdroid-cli/massd/daemon"
	"github.com/massdroid-cli/massd/filesystem"
	"github.com/massdroid-cli/massd/icon"
	keys "github.com/massdroid-cli/massd/key"
	"github.com/massdroid-cli/massd/style"
	"github.com/massdroid-cli/massd/where"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func errUnknownKey(key string) error {
	closest := lo.MinBy(lo.Keys(config.Default), func(a string, b string) bool {
		return levenshtein.Distance(key, a) < levenshtein.Distance(key, b)
	})
	msg := fmt.Sprintf(
		"unknown key %s, did you mean %s?",
		style.Fg(color.Red)(key),
		style.Fg(color.Yellow)(closest),
	)

	return errors.New(msg)
}

// enumValues lists the accepted values of keys that take one of a fixed set.
func enumValues(k string) ([]string, bool) {
	switch k {
	case keys.PlayerBackend:
		return daemon.Backends, true
	case keys.CliIcons:
		return icon.AvailableVariants(), true
	case keys.LogsLevel:
		return lo.Map(logrus.AllLevels, func(l logrus.Level, _ int) string { return l.String() }), true
	default:
		return nil, false
	}
}

func errUnknownValue(k, value string, allowed []string) error {
	closest := lo.MinBy(allowed, func(a string, b string) bool {
		return levenshtein.Distance(value, a) < levenshtein.Distance(value, b)
	})
	return fmt.Errorf(
		"%s is not a valid value for %s, did you mean %s?",
		style.Fg(color.Red)(value),
		style.Fg(color.Purple)(k),
		style.Fg(color.Yellow)(closest),
	)
}

func completionConfigKeys(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	return lo.Keys(config.Default), cobra.ShellCompDirectiveNoFileComp
}

func init() {
	rootCmd.AddCommand(configCmd)
}

// configCmd serves as the parent command for managing application configuration.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage daemon configuration settings and defaults",
	Long:  "Manage daemon configuration. A running daemon picks up changes to auto-resume and interruption settings without a restart.",
}

// liveSections are the key prefixes a running daemon re-reads when the config file changes.
var liveSections = []string{"continuity.", "interruption."}

func reloadsLive(k string) bool {
	return lo.SomeBy(liveSections, func(prefix string) bool {
		return strings.HasPrefix(k, prefix)
	})
}

func section(k string) string {
	before, _, _ := strings.Cut(k, ".")
	return before
}

// keyArg takes the key from the first positional argument, falling back to --key.
func keyArg(cmd *cobra.Command, args []string) (string, error) {
	k := lo.Must(cmd.Flags().GetString("key"))
	if len(args) > 0 {
		k = args[0]
	}

	if k == "" {
		return "", errors.New("key is required as an argument or --key flag")
	}

	if _, ok := config.Default[k]; !ok {
		return "", errUnknownKey(k)
	}

	return k, nil
}

// parseValue converts raw input to the type of the key's default value.
func parseValue(k string, raw []string) (any, error) {
	if len(raw) == 0 {
		return nil, errors.New("value is required as an argument or --value flag")
	}

	switch config.Default[k].Value.(type) {
	case string:
		if allowed, ok := enumValues(k); ok && !lo.Contains(allowed, raw[0]) {
			return nil, errUnknownValue(k, raw[0], allowed)
		}
		return raw[0], nil
	case int:
		n, err := strconv.Atoi(raw[0])
		if err != nil {
			return nil, fmt.Errorf("invalid integer value for %s: %s", k, raw[0])
		}
		if n < 0 {
			return nil, fmt.Errorf("%s must not be negative", k)
		}
		return n, nil
	case bool:
		b, err := strconv.ParseBool(raw[0])
		if err != nil {
			return nil, fmt.Errorf("invalid boolean value for %s: %s", k, raw[0])
		}
		return b, nil
	case []string:
		return raw, nil
	default:
		return raw[0], nil
	}
}

func init() {
	configCmd.AddCommand(configInfoCmd)
	configInfoCmd.Flags().StringSliceP("key", "k", []string{}, "Only show these keys")
	configInfoCmd.Flags().StringP("section", "s", "", "Only show keys of one section, e.g. continuity")
	configInfoCmd.Flags().BoolP("json", "j", false, "Format the output as JSON")
	_ = configInfoCmd.RegisterFlagCompletionFunc("key", completionConfigKeys)
	_ = configInfoCmd.RegisterFlagCompletionFunc("section", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return lo.Uniq(lo.Map(lo.Keys(config.Default), func(k string, _ int) string { return section(k) })), cobra.ShellCompDirectiveNoFileComp
	})

	configInfoCmd.SetOut(os.Stdout)
}

var configInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Describe configuration keys, their defaults and whether they reload live",
	Run: func(cmd *cobra.Command, args []string) {
		var (
			selected = lo.Must(cmd.Flags().GetStringSlice("key"))
			only     = lo.Must(cmd.Flags().GetString("section"))
			asJson   = lo.Must(cmd.Flags().GetBool("json"))
		)

		for _, k := range selected {
			if _, ok := config.Default[k]; !ok {
				handleErr(errUnknownKey(k))
			}
		}

		fields := lo.Filter(lo.Values(config.Default), func(f config.Field, _ int) bool {
			if len(selected) > 0 && !lo.Contains(selected, f.Key) {
				return false
			}
			return only == "" || section(f.Key) == only
		})

		sort.Slice(fields, func(i, j int) bool {
			return fields[i].Key < fields[j].Key
		})

		if asJson {
			out := lo.Map(fields, func(f config.Field, _ int) map[string]any {
				m := make(map[string]any)
				lo.Must0(json.Unmarshal(lo.Must(json.Marshal(&f)), &m))
				m["live"] = reloadsLive(f.Key)
				return m
			})

			lo.Must0(json.NewEncoder(cmd.OutOrStdout()).Encode(out))
			return
		}

		last := ""
		for _, field := range fields {
			if s := section(field.Key); s != last {
				if last != "" {
					cmd.Println()
				}
				cmd.Println(style.Bold(style.Fg(color.Purple)("[" + s + "]")))
				last = s
			}

			cmd.Println(field.Pretty())
			if reloadsLive(field.Key) {
				cmd.Println(style.Faint("reloads live"))
			}
			cmd.Println()
		}
	},
}

func init() {
	configCmd.AddCommand(configSetCmd)
	configSetCmd.Flags().StringP("key", "k", "", "The configuration key to update")
	configSetCmd.Flags().StringSliceP("value", "v", []string{}, "The new value to assign to the configuration key")
	_ = configSetCmd.RegisterFlagCompletionFunc("key", completionConfigKeys)
}

var configSetCmd = &cobra.Command{
	Use:               "set [key] [value]",
	Short:             "Update the value of a configuration key",
	Args:              cobra.MaximumNArgs(2),
	ValidArgsFunction: completionConfigKeys,
	Run: func(cmd *cobra.Command, args []string) {
		k, err := keyArg(cmd, args)
		handleErr(err)

		raw := lo.Must(cmd.Flags().GetStringSlice("value"))
		if len(args) > 1 {
			raw = args[1:]
		}

		v, err := parseValue(k, raw)
		handleErr(err)

		viper.Set(k, v)
		switch err := viper.WriteConfig(); err.(type) {
		case viper.ConfigFileNotFoundError:
			handleErr(viper.SafeWriteConfig())
		default:
			handleErr(err)
		}

		fmt.Printf(
			"%sset %s to %s\n",
			style.Fg(color.Green)(icon.Prefix(icon.Success)),
			style.Fg(color.Purple)(k),
			style.Fg(color.Yellow)(fmt.Sprintf("%v", v)),
		)

		if !reloadsLive(k) {
			fmt.Println(style.Faint("restart the daemon to apply"))
		}
	},
}

func init() {
	configCmd.AddCommand(configGetCmd)
	configGetCmd.Flags().StringP("key", "k", "", "The configuration key to read")
	_ = configGetCmd.RegisterFlagCompletionFunc("key", completionConfigKeys)
}

var configGetCmd = &cobra.Command{
	Use:               "get [key]",
	Short:             "Print the current value of a configuration key",
	Args:              cobra.MaximumNArgs(1),
	ValidArgsFunction: completionConfigKeys,
	Run: func(cmd *cobra.Command, args []string) {
		k, err := keyArg(cmd, args)
		handleErr(err)

		fmt.Println(viper.Get(k))
	},
}

func init() {
	configCmd.AddCommand(configWriteCmd)
	configWriteCmd.Flags().BoolP("force", "f", false, "Forcefully overwrite the existing configuration file")
}

// configWriteCmd serializes the current in-memory configuration to disk.
var configWriteCmd = &cobra.Command{
	Use:   "write",
	Short: "Persist the current in-memory configuration to the localized config file",
	Run: func(cmd *cobra.Command, args []string) {
		var (
			force          = lo.Must(cmd.Flags().GetBool("force"))
			configFilePath = filepath.Join(
				where.Config(),
				fmt.Sprintf("%s.%s", constant.App, "toml"),
			)
		)

		if force {
			err := filesystem.
				API().
				Remove(configFilePath)

			handleErr(err)
		}

		handleErr(viper.SafeWriteConfig())
		fmt.Printf(
			"%swrote config to %s\n",
			style.Fg(color.Green)(icon.Prefix(icon.Success)),
			configFilePath,
		)
	},
}

func init() {
	configCmd.AddCommand(configDeleteCmd)
}

// configDeleteCmd removes the configuration file from the localized storage.
var configDeleteCmd = &cobra.Command{
	Use:     "delete",
	Short:   "Permanently remove the localized configuration file from the system",
	Aliases: []string{"remove"},
	Run: func(cmd *cobra.Command, args []string) {
		err := filesystem.
			API().
			Remove(
				filepath.Join(
					where.Config(),
					fmt.Sprintf("%s.%s", constant.App, "toml"),
				),
			)

		handleErr(err)
		fmt.Printf(
			"%sdeleted config\n",
			style.Fg(color.Green)(icon.Prefix(icon.Success)),
		)
	},
}

func init() {
	configCmd.AddCommand(configResetCmd)

	configResetCmd.Flags().StringP("key", "k", "", "The configuration key to restore to its default value")
	configResetCmd.Flags().BoolP("all", "a", false, "Restore all configuration settings to their factory defaults")
	configResetCmd.MarkFlagsMutuallyExclusive("key", "all")
	_ = configResetCmd.RegisterFlagCompletionFunc("key", completionConfigKeys)
}

// configResetCmd restores configuration keys to their factory default values.
var configResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Restore a specified configuration key to its default value",
	PreRun: func(cmd *cobra.Command, args []string) {
		if !cmd.Flags().Changed("key") && !cmd.Flags().Changed("all") {
			handleErr(fmt.Errorf("either --key or --all must be set"))
		}
	},
	Run: func(cmd *cobra.Command, args []string) {
		var (
			key = lo.Must(cmd.Flags().GetString("key"))
			all = lo.Must(cmd.Flags().GetBool("all"))
		)

		if all {
			for key, field := range config.Default {
				viper.Set(key, field.Value)
			}
		} else if _, ok := config.Default[key]; !ok {
			handleErr(errUnknownKey(key))
		} else {
			viper.Set(key, config.Default[key].Value)
		}

		switch err := viper.WriteConfig(); err.(type) {
		case viper.ConfigFileNotFoundError:
			handleErr(viper.SafeWriteConfig())
		default:
			handleErr(err)
		}

		if all {
			fmt.Printf(
				"%sreset all config values\n",
				style.Fg(color.Green)(icon.Prefix(icon.Success)),
			)
		} else {
			fmt.Printf(
				"%sreset %s to default value %s\n",
				style.Fg(color.Green)(icon.Prefix(icon.Success)),
				style.Fg(color.Purple)(key),
				style.Fg(color.Yellow)(fmt.Sprintf("%v", config.Default[key].Value)),
			)
		}
	},
}
