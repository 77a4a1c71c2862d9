// Package commands implements the reviewbadge subcommands.
package commands

import (
	"context"
	"io"

	"reviewbadge/internal/app"
	"reviewbadge/internal/config"
)

// Flags holds the global flags and the app the running command built.
type Flags struct {
	LogLevel   string
	ConfigPath string

	Out io.Writer

	app *app.App
}

// DefaultConfigPath is $XDG_CONFIG_HOME/reviewbadge/config.yaml.
func DefaultConfigPath() string { return config.DefaultConfigPath() }

// Build creates the app for the current command. onboard may be nil.
func (f *Flags) Build(onboard func(ctx context.Context) error) (*app.App, error) {
	a, err := app.New(app.Params{
		ConfigPath: f.ConfigPath,
		LogLevel:   f.LogLevel,
		Onboard:    onboard,
	})
	if err != nil {
		return nil, err
	}
	f.app = a
	return a, nil
}

// Close releases whatever Build opened.
func (f *Flags) Close() error {
	if f.app == nil {
		return nil
	}
	err := f.app.Close()
	f.app = nil
	return err
}
