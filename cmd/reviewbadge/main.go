package main

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/urfave/cli/v3"

	"reviewbadge/internal/commands"
)

var (
	// Build information. Populated at build-time via -ldflags flag.
	version = "dev"
	commit  = "HEAD"
	date    = "now"
)

func build() string {
	v, c, d := version, commit, date
	if v == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok {
			if mv := info.Main.Version; mv != "" && mv != "(devel)" {
				v = mv
			}
			for _, s := range info.Settings {
				switch s.Key {
				case "vcs.revision":
					c = s.Value
				case "vcs.time":
					d = s.Value
				}
			}
		}
	}

	short := c
	if len(c) > 7 {
		short = c[:7]
	}
	return fmt.Sprintf("%s (%s) %s", v, short, d)
}

func main() {
	flags := &commands.Flags{Out: os.Stdout}

	app := &cli.Command{
		Name:      "reviewbadge",
		Usage:     "Keep an eye on your Bunpro review queue",
		UsageText: "reviewbadge [global options] command [command options]",
		Description: `reviewbadge polls Bunpro's study queue, writes the number of pending
reviews to a badge file for your status bar and notifies you when new
reviews show up.

Run 'reviewbadge options' once to store your API key, then start
'reviewbadge run' (or the systemd user unit).`,
		Version: build(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error)",
				Sources:     cli.EnvVars("REVIEWBADGE_LOG_LEVEL"),
				Destination: &flags.LogLevel,
			},
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to config file",
				Sources:     cli.EnvVars("REVIEWBADGE_CONFIG"),
				Value:       commands.DefaultConfigPath(),
				Destination: &flags.ConfigPath,
			},
		},
		After: func(ctx context.Context, c *cli.Command) error {
			return flags.Close()
		},
	}

	app = commands.NewRunCmd(flags).Register(app)
	app = commands.NewOptionsCmd(flags).Register(app)
	app = commands.NewOpenCmd(flags).Register(app)
	app = commands.NewStatusCmd(flags).Register(app)

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
