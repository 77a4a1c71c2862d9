package commands

import (
	"context"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"

	"reviewbadge/internal/options"
	"reviewbadge/internal/settings"
)

// interactive reports whether a form can be shown.
func interactive() bool {
	return isatty.IsTerminal(os.Stdin.Fd()) && isatty.IsTerminal(os.Stdout.Fd())
}

// runOptionsForm asks for the API key and notification preference, starting
// from current.
func runOptionsForm(ctx context.Context, current options.Form) (options.Form, error) {
	key := current.APIKey
	notif := string(current.Notifications)
	if notif == "" {
		notif = string(settings.NotificationsOff)
	}

	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("API key").
				Description("Find it in your Bunpro account settings").
				EchoMode(huh.EchoModePassword).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errEmptyKey
					}
					return nil
				}).
				Value(&key),
			huh.NewSelect[string]().
				Title("Notifications").
				Description("Show a desktop notification when new reviews arrive").
				Options(
					huh.NewOption("Off", string(settings.NotificationsOff)),
					huh.NewOption("On", string(settings.NotificationsOn)),
				).
				Value(&notif),
		),
	).RunWithContext(ctx)
	if err != nil {
		return options.Form{}, err
	}
	return options.Form{APIKey: key, Notifications: settings.Notifications(notif)}, nil
}
