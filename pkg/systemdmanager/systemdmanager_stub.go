//go:build !linux

package systemdmanager

import "context"

func UserUnitStatus(ctx context.Context, unit string) (*UnitStatus, error) {
	return nil, ErrUnsupported
}

func NotifyReady() (bool, error)    { return false, nil }
func NotifyStopping() (bool, error) { return false, nil }
