package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"
)

type StatusCmd struct {
	flags *Flags
}

func NewStatusCmd(flags *Flags) *StatusCmd {
	return &StatusCmd{flags: flags}
}

func (cmd *StatusCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "status",
		Usage:     "Show the badge, cached review state and next check",
		UsageText: "reviewbadge status",
		Action:    cmd.run,
	})
	return app
}

func (cmd *StatusCmd) run(ctx context.Context, c *cli.Command) error {
	a, err := cmd.flags.Build(nil)
	if err != nil {
		return err
	}
	st, err := a.Status(ctx)
	if err != nil {
		return err
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("reviewbadge"))
	if st.Badge != "" {
		b.WriteString(" " + badgeStyle.Render(st.Badge))
	}
	b.WriteString("\n\n")

	b.WriteString(row("reviews", strconv.Itoa(st.ReviewsAvailable)) + "\n")
	next := "unknown"
	if !st.NextReview.IsZero() {
		next = fmt.Sprintf("%s (%s)", st.NextReview.Local().Format("Mon 15:04"), humanize.Time(st.NextReview))
	}
	b.WriteString(row("next review", next) + "\n")

	check := "none scheduled"
	if al := st.Alarm; al != nil {
		check = fmt.Sprintf("%s (%s)", al.ScheduledTime.Local().Format("Mon 15:04:05"), humanize.Time(al.ScheduledTime))
		if al.Repeating() {
			check += fmt.Sprintf(", then every %s", al.Period)
		}
	}
	b.WriteString(row("next check", check) + "\n")

	key := errorStyle.Render("not set")
	if st.APIKeySet {
		key = successStyle.Render("set")
	}
	b.WriteString(labelStyle.Render("api key") + key + "\n")
	b.WriteString(row("notifications", string(st.Notifications)) + "\n")

	var daemon string
	switch {
	case st.UnitErr != nil:
		daemon = "unknown (" + st.UnitErr.Error() + ")"
	case !st.Unit.Installed():
		daemon = "no systemd user unit"
	case st.Unit.Running():
		daemon = "running since " + humanize.Time(st.Unit.ActiveSince)
	default:
		daemon = st.Unit.Active + " (" + st.Unit.SubState + ")"
	}
	b.WriteString(row("daemon", daemon) + "\n")

	_, err = fmt.Fprint(cmd.flags.Out, b.String())
	return err
}
