// Package config provides centralized management for application settings, defaults, and the Viper-based configuration engine.
package config

import (
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/massdroid-cli/massd/constant"
	"github.com/massdroid-cli/massd/filesystem"
	"github.com/massdroid-cli/massd/where"
	"github.com/spf13/viper"
)

// EnvKeyReplacer is a strings.Replacer used to normalize configuration keys into environment variable naming conventions.
var EnvKeyReplacer = strings.NewReplacer(".", "_")

// Setup initializes the global configuration state, including defaults, environment bindings, and localized file resolution.
func Setup() error {
	viper.SetConfigName(constant.App)
	viper.SetConfigType("toml")
	viper.SetFs(filesystem.API())
	viper.AddConfigPath(where.Config())

	viper.SetEnvPrefix(constant.App)
	viper.SetEnvKeyReplacer(EnvKeyReplacer)
	for _, env := range EnvExposed {
		viper.MustBindEnv(env)
	}

	viper.SetTypeByDefaultValue(true)
	for name, field := range Default {
		viper.SetDefault(name, field.Value)
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return err
	}

	return nil
}

var (
	watchOnce sync.Once
	watchMu   sync.Mutex
	watchers  []func(changed string)
)

// OnChange registers fn to run whenever the config file is rewritten on disk.
// The file watch itself is started once, on the first registration.
func OnChange(fn func(changed string)) {
	watchMu.Lock()
	watchers = append(watchers, fn)
	watchMu.Unlock()

	watchOnce.Do(func() {
		viper.OnConfigChange(func(e fsnotify.Event) {
			if e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				return
			}

			watchMu.Lock()
			fns := append([]func(string){}, watchers...)
			watchMu.Unlock()

			for _, f := range fns {
				f(e.Name)
			}
		})
		viper.WatchConfig()
	})
}
