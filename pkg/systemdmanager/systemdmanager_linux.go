//go:build linux

package systemdmanager

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/coreos/go-systemd/v22/dbus"
)

// UserUnitStatus looks unit up on the user's systemd instance. A unit that
// is not installed comes back with LoadState "not-found" and no error.
func UserUnitStatus(ctx context.Context, unit string) (*UnitStatus, error) {
	conn, err := dbus.NewUserConnectionContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect to user systemd: %w", err)
	}
	defer conn.Close()

	name := unitName(unit)
	props, err := conn.GetUnitPropertiesContext(ctx, name)
	if err != nil {
		if isNoSuchUnitErr(err) {
			return notFound(unit), nil
		}
		return nil, fmt.Errorf("status of %s: %w", name, err)
	}
	st := &UnitStatus{
		Name:        unit,
		Active:      stringProp(props, "ActiveState"),
		SubState:    stringProp(props, "SubState"),
		LoadState:   stringProp(props, "LoadState"),
		Description: stringProp(props, "Description"),
		ActiveSince: timestampProp(props, "ActiveEnterTimestamp"),
	}
	if st.LoadState == "not-found" {
		return notFound(unit), nil
	}
	return st, nil
}

// NotifyReady tells systemd the service finished starting. It reports
// false when not running under a notify-type unit.
func NotifyReady() (bool, error) { return daemon.SdNotify(false, daemon.SdNotifyReady) }

// NotifyStopping tells systemd the service is shutting down.
func NotifyStopping() (bool, error) { return daemon.SdNotify(false, daemon.SdNotifyStopping) }

// systemd timestamps are microseconds since the Unix epoch.
func timestampProp(props map[string]interface{}, key string) time.Time {
	if ts, ok := props[key].(uint64); ok && ts > 0 {
		return time.UnixMicro(int64(ts))
	}
	return time.Time{}
}

func stringProp(props map[string]interface{}, key string) string {
	s, _ := props[key].(string)
	return s
}

func isNoSuchUnitErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "NoSuchUnit")
}
