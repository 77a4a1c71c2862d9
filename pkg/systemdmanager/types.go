// Package systemdmanager reports on the user service that runs the daemon
// and signals readiness to systemd.
package systemdmanager

import (
	"errors"
	"strings"
	"time"
)

var ErrUnsupported = errors.New("systemdmanager: unsupported OS (linux only)")

// UnitStatus is the state of one unit.
type UnitStatus struct {
	Name        string
	Active      string // active, inactive, failed, ...
	SubState    string // running, dead, ...
	LoadState   string // loaded, not-found, ...
	Description string
	ActiveSince time.Time
}

// Installed reports whether systemd knows the unit.
func (s *UnitStatus) Installed() bool { return s != nil && s.LoadState != "not-found" }

// Running reports whether the unit is active.
func (s *UnitStatus) Running() bool { return s != nil && s.Active == "active" }

func notFound(unit string) *UnitStatus {
	return &UnitStatus{Name: unit, Active: "unknown", SubState: "not-found", LoadState: "not-found"}
}

// unitName appends ".service" when unit has no type suffix.
func unitName(unit string) string {
	for _, suffix := range []string{".service", ".socket", ".timer", ".target"} {
		if strings.HasSuffix(unit, suffix) {
			return unit
		}
	}
	return unit + ".service"
}
