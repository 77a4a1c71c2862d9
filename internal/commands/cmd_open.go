package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/urfave/cli/v3"

	"reviewbadge/internal/app"
	"reviewbadge/internal/settings"
)

type OpenCmd struct {
	flags *Flags
}

func NewOpenCmd(flags *Flags) *OpenCmd {
	return &OpenCmd{flags: flags}
}

func (cmd *OpenCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "open",
		Usage:     "Open the study page and refresh the review count",
		UsageText: "reviewbadge open",
		Description: `Opens Bunpro's study page in the browser and refreshes the badge.

Bind it to a status bar click. Without an API key it opens the options form
instead.`,
		Action: cmd.run,
	})
	return app
}

func (cmd *OpenCmd) run(ctx context.Context, c *cli.Command) error {
	var a *app.App
	onboard := func(ctx context.Context) error {
		if !interactive() {
			fmt.Fprintln(cmd.flags.Out, errorStyle.Render("No API key set. Run 'reviewbadge options' first."))
			return nil
		}
		current, err := a.Options.RestoreOptions(ctx)
		if err != nil {
			return err
		}
		form, err := runOptionsForm(ctx, current)
		if errors.Is(err, huh.ErrUserAborted) {
			return nil
		}
		if err != nil {
			return err
		}
		return saveAndReport(ctx, cmd.flags, a, form)
	}

	a, err := cmd.flags.Build(onboard)
	if err != nil {
		return err
	}
	if err := a.Poller.IconClicked(ctx); err != nil && !errors.Is(err, settings.ErrNoAPIKey) {
		return err
	}
	return nil
}
