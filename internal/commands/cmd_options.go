package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/urfave/cli/v3"

	"reviewbadge/internal/app"
	"reviewbadge/internal/options"
	"reviewbadge/internal/settings"
)

var errEmptyKey = errors.New("api key is required")

type OptionsCmd struct {
	flags *Flags

	apiKey        string
	notifications string
	show          bool
}

func NewOptionsCmd(flags *Flags) *OptionsCmd {
	return &OptionsCmd{flags: flags}
}

func (cmd *OptionsCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "options",
		Usage:     "Set the API key and notification preference",
		UsageText: "reviewbadge options [--api-key KEY] [--notifications on|off] [--show]",
		Description: `Without flags an interactive form asks for both options.

Saving always forgets the previous key along with its cached review count and
scheduled check. The new key is checked against Bunpro and only kept if it
works. The notification preference is saved either way.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "api-key",
				Aliases:     []string{"k"},
				Usage:       "API key to save (skips the form)",
				Sources:     cli.EnvVars("REVIEWBADGE_API_KEY"),
				Destination: &cmd.apiKey,
			},
			&cli.StringFlag{
				Name:        "notifications",
				Aliases:     []string{"n"},
				Usage:       "notification preference, on or off",
				Destination: &cmd.notifications,
			},
			&cli.BoolFlag{
				Name:        "show",
				Usage:       "print the current options and exit",
				Destination: &cmd.show,
			},
		},
		Action: cmd.run,
	})
	return app
}

func (cmd *OptionsCmd) run(ctx context.Context, c *cli.Command) error {
	a, err := cmd.flags.Build(nil)
	if err != nil {
		return err
	}

	current, err := a.Options.RestoreOptions(ctx)
	if err != nil {
		return fmt.Errorf("restore options: %w", err)
	}
	if cmd.show {
		fmt.Fprintln(cmd.flags.Out, row("api key", maskKey(current.APIKey)))
		fmt.Fprintln(cmd.flags.Out, row("notifications", string(current.Notifications)))
		return nil
	}

	form := current
	switch {
	case c.IsSet("api-key") || c.IsSet("notifications"):
		if c.IsSet("api-key") {
			form.APIKey = cmd.apiKey
		}
		if c.IsSet("notifications") {
			form.Notifications = settings.Notifications(cmd.notifications)
		}
	case interactive():
		form, err = runOptionsForm(ctx, current)
		if errors.Is(err, huh.ErrUserAborted) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("form: %w", err)
		}
	default:
		return errors.New("no terminal for the form; pass --api-key and --notifications")
	}

	return saveAndReport(ctx, cmd.flags, a, form)
}

func saveAndReport(ctx context.Context, flags *Flags, a *app.App, form options.Form) error {
	st, err := a.Options.SaveOptions(ctx, form)
	if err != nil {
		return fmt.Errorf("save options: %w", err)
	}
	if st.KeySaved {
		fmt.Fprintln(flags.Out, successStyle.Render(st.Message))
		return nil
	}
	return errors.New(st.Message)
}

// maskKey keeps the last four characters.
func maskKey(key string) string {
	switch {
	case key == "":
		return "(not set)"
	case len(key) <= 4:
		return "****"
	default:
		return "****" + key[len(key)-4:]
	}
}
