// Package main is the entry point for massd.
package main

import (
	"github.com/massdroid-cli/massd/cmd"
	"github.com/massdroid-cli/massd/config"
	"github.com/massdroid-cli/massd/log"
	"github.com/samber/lo"
)

func main() {
	lo.Must0(config.Setup())
	lo.Must0(log.Setup())

	cmd.Execute()
}
