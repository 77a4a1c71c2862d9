package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

type RunCmd struct {
	flags *Flags
}

func NewRunCmd(flags *Flags) *RunCmd {
	return &RunCmd{flags: flags}
}

func (cmd *RunCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "run",
		Usage:     "Run the review poller in the foreground",
		UsageText: "reviewbadge run",
		Description: `Polls the study queue, keeps the badge file current and shows a
notification when new reviews arrive.

Meant to run as a systemd user service (Type=notify). Settings changed with
'reviewbadge options', even from another machine through a synced folder,
are picked up without a restart.`,
		Action: cmd.run,
	})
	return app
}

func (cmd *RunCmd) run(ctx context.Context, c *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := cmd.flags.Build(nil)
	if err != nil {
		return err
	}
	return a.Run(ctx)
}
