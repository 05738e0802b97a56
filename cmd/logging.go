package cmd

import (
	"strings"

	"github.com/achilleasa/boxtrace/log"
	"github.com/urfave/cli"
)

var logger = log.New("boxtrace")

func setupLogging(ctx *cli.Context) {
	if name := ctx.GlobalString("log-level"); name != "" {
		level, err := log.ParseLevel(name)
		if err != nil {
			logger.Warningf("%v; keeping default log level", err)
		} else {
			log.SetLevel(level)
		}
	}

	if ctx.GlobalBool("v") {
		log.SetLevel(log.Info)
	}

	if ctx.GlobalBool("vv") {
		log.SetLevel(log.Debug)
	}

	// Per-logger overrides in "name=level" form.
	for _, override := range ctx.GlobalStringSlice("log-module") {
		name, levelName, ok := strings.Cut(override, "=")
		if !ok {
			logger.Warningf("ignoring malformed log module override %q", override)
			continue
		}
		level, err := log.ParseLevel(levelName)
		if err != nil {
			logger.Warningf("ignoring log module override for %q: %v", name, err)
			continue
		}
		log.SetModuleLevel(name, level)
	}
}
