package dispatcher

import (
	"fmt"

	"github.com/godbus/dbus/v5"
)

const (
	notificationsDest  = "org.freedesktop.Notifications"
	notificationsPath  = dbus.ObjectPath("/org/freedesktop/Notifications")
	notificationsIface = "org.freedesktop.Notifications"

	appName = "screentime"

	// Urgency hint values of org.freedesktop.Notifications.
	urgencyNormal   byte = 1
	urgencyCritical byte = 2
)

// Notification is a desktop notification.
type Notification struct {
	Summary  string
	Body     string
	Critical bool
}

// Notifier delivers desktop notifications.
type Notifier interface {
	Notify(n Notification) error
}

// NopNotifier drops every notification.
type NopNotifier struct{}

// Notify does nothing.
func (NopNotifier) Notify(Notification) error { return nil }

// DBusNotifier sends notifications to org.freedesktop.Notifications on the
// session bus.
type DBusNotifier struct {
	conn *dbus.Conn
	obj  dbus.BusObject

	// replaces is the id of the last notification, so a new one replaces it
	// on screen instead of stacking.
	replaces uint32
}

// NewDBusNotifier connects to the session bus.
func NewDBusNotifier() (*DBusNotifier, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect to session bus: %w", err)
	}
	return &DBusNotifier{
		conn: conn,
		obj:  conn.Object(notificationsDest, notificationsPath),
	}, nil
}

// Notify shows n.
func (d *DBusNotifier) Notify(n Notification) error {
	urgency := urgencyNormal
	if n.Critical {
		urgency = urgencyCritical
	}
	hints := map[string]dbus.Variant{
		"urgency": dbus.MakeVariant(urgency),
	}

	call := d.obj.Call(notificationsIface+".Notify", 0,
		appName, d.replaces, "", n.Summary, n.Body, []string{}, hints, int32(-1))
	if call.Err != nil {
		return fmt.Errorf("send notification: %w", call.Err)
	}

	var id uint32
	if err := call.Store(&id); err != nil {
		return fmt.Errorf("read notification id: %w", err)
	}
	d.replaces = id
	return nil
}

// Close disconnects from the session bus.
func (d *DBusNotifier) Close() error {
	return d.conn.Close()
}
