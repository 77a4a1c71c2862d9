package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"reviewbadge/internal/eventbus"
	"reviewbadge/internal/storage"
	logx "reviewbadge/pkg/logx"
)

const (
	fdoDest      = "org.freedesktop.Notifications"
	fdoPath      = dbus.ObjectPath("/org/freedesktop/Notifications")
	fdoInterface = "org.freedesktop.Notifications"

	actionDefault = "default"
)

// Registry is where Desktop records server ids so other processes on the
// same storage can recognise and dismiss its notifications.
type Registry interface {
	PutNotification(ctx context.Context, n storage.NotificationRecord) error
	GetNotification(ctx context.Context, id string) (storage.NotificationRecord, error)
	NotificationByServerID(ctx context.Context, serverID uint32) (storage.NotificationRecord, error)
	DeleteNotification(ctx context.Context, id string) error
}

// Desktop shows notifications through the freedesktop notification daemon
// on the session bus.
//
// The server id of every notification shown is written to the registry.
// The daemon can then handle a click on a notification shown by a CLI
// process that has since exited, as long as the notification server
// broadcasts its signals.
type Desktop struct {
	appName string
	conn    *dbus.Conn
	obj     dbus.BusObject
	reg     Registry
	log     logx.Logger

	mu       sync.Mutex
	serverID map[string]uint32 // our id -> daemon id
	ourID    map[uint32]string
}

// NewDesktop connects to the session bus. reg may be nil.
func NewDesktop(appName string, reg Registry, log logx.Logger) (*Desktop, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Desktop{
		appName:  appName,
		conn:     conn,
		obj:      conn.Object(fdoDest, fdoPath),
		reg:      reg,
		log:      log,
		serverID: map[string]uint32{},
		ourID:    map[uint32]string{},
	}, nil
}

func (d *Desktop) Name() string { return "desktop" }

func (d *Desktop) Show(ctx context.Context, n Notification) error {
	replaces := d.lookupServerID(ctx, n.ID)

	// The "default" action is what the daemon invokes when the body is clicked.
	actions := []string{actionDefault, "Open"}
	hints := map[string]dbus.Variant{"urgency": dbus.MakeVariant(byte(1))}

	var id uint32
	call := d.obj.CallWithContext(ctx, fdoInterface+".Notify", 0,
		d.appName, replaces, n.Icon, n.Title, n.Message, actions, hints, int32(-1))
	if err := call.Store(&id); err != nil {
		return fmt.Errorf("notify: %w", err)
	}

	d.mu.Lock()
	if replaces != 0 && replaces != id {
		delete(d.ourID, replaces)
	}
	d.serverID[n.ID] = id
	d.ourID[id] = n.ID
	d.mu.Unlock()

	if d.reg != nil {
		rec := storage.NotificationRecord{ID: n.ID, ServerID: id, ShownAt: time.Now()}
		if err := d.reg.PutNotification(ctx, rec); err != nil {
			d.log.Warn("notification id not recorded", logx.String("id", n.ID), logx.Err(err))
		}
	}
	return nil
}

func (d *Desktop) Clear(ctx context.Context, id string) error {
	sid := d.lookupServerID(ctx, id)
	if sid == 0 {
		return nil
	}
	call := d.obj.CallWithContext(ctx, fdoInterface+".CloseNotification", 0, sid)
	if call.Err != nil {
		return fmt.Errorf("close notification: %w", call.Err)
	}
	d.forget(ctx, sid)
	return nil
}

// lookupServerID returns the server id of our notification id, or 0.
func (d *Desktop) lookupServerID(ctx context.Context, id string) uint32 {
	d.mu.Lock()
	sid, ok := d.serverID[id]
	d.mu.Unlock()
	if ok || d.reg == nil {
		return sid
	}
	rec, err := d.reg.GetNotification(ctx, id)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			d.log.Warn("notification lookup failed", logx.String("id", id), logx.Err(err))
		}
		return 0
	}
	return rec.ServerID
}

// lookupID maps a server id back to our notification id.
func (d *Desktop) lookupID(ctx context.Context, sid uint32) (string, bool) {
	d.mu.Lock()
	id, ok := d.ourID[sid]
	d.mu.Unlock()
	if ok || d.reg == nil {
		return id, ok
	}
	rec, err := d.reg.NotificationByServerID(ctx, sid)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			d.log.Warn("notification lookup failed", logx.Int("server_id", int(sid)), logx.Err(err))
		}
		return "", false
	}
	return rec.ID, true
}

// Listen publishes clicks on our notifications to bus until ctx is done.
func (d *Desktop) Listen(ctx context.Context, bus eventbus.Bus) error {
	if err := d.conn.AddMatchSignalContext(ctx,
		dbus.WithMatchObjectPath(fdoPath),
		dbus.WithMatchInterface(fdoInterface),
	); err != nil {
		return fmt.Errorf("subscribe notification signals: %w", err)
	}
	ch := make(chan *dbus.Signal, 16)
	d.conn.Signal(ch)
	defer d.conn.RemoveSignal(ch)

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig, ok := <-ch:
			if !ok {
				return nil
			}
			if id, clicked := d.handleSignal(ctx, sig); clicked {
				d.log.Debug("notification clicked", logx.String("id", id))
				bus.Publish(eventbus.Event{Topic: eventbus.TopicNotificationClicked, Data: id})
			}
		}
	}
}

// handleSignal tracks closed notifications and reports default-action clicks.
func (d *Desktop) handleSignal(ctx context.Context, sig *dbus.Signal) (string, bool) {
	if sig == nil || len(sig.Body) < 2 {
		return "", false
	}
	sid, ok := sig.Body[0].(uint32)
	if !ok {
		return "", false
	}
	switch sig.Name {
	case fdoInterface + ".ActionInvoked":
		if action, _ := sig.Body[1].(string); action != actionDefault {
			return "", false
		}
		return d.lookupID(ctx, sid)
	case fdoInterface + ".NotificationClosed":
		d.forget(ctx, sid)
	}
	return "", false
}

func (d *Desktop) forget(ctx context.Context, sid uint32) {
	d.mu.Lock()
	if id, ok := d.ourID[sid]; ok {
		delete(d.ourID, sid)
		if d.serverID[id] == sid {
			delete(d.serverID, id)
		}
	}
	d.mu.Unlock()

	if d.reg == nil {
		return
	}
	rec, err := d.reg.NotificationByServerID(ctx, sid)
	if err != nil {
		return
	}
	if err := d.reg.DeleteNotification(ctx, rec.ID); err != nil {
		d.log.Warn("notification record not removed", logx.String("id", rec.ID), logx.Err(err))
	}
}

func (d *Desktop) Close() error { return d.conn.Close() }
