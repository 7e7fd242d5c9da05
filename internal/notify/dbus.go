package notify

import (
	"fmt"

	"github.com/godbus/dbus/v5"
)

const (
	dbusNotifyDest      = "org.freedesktop.Notifications"
	dbusNotifyPath      = "/org/freedesktop/Notifications"
	dbusNotifyInterface = "org.freedesktop.Notifications"
)

// DBusSink sends notifications over the session bus.
type DBusSink struct {
	appName string
	conn    *dbus.Conn
	obj     dbus.BusObject
}

// NewDBusSink connects to the session bus.
func NewDBusSink(appName string) (*DBusSink, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connecting to session bus: %w", err)
	}
	return &DBusSink{
		appName: appName,
		conn:    conn,
		obj:     conn.Object(dbusNotifyDest, dbusNotifyPath),
	}, nil
}

// Send implements Sink.
func (s *DBusSink) Send(n Notification) error {
	hints := map[string]dbus.Variant{
		"urgency":       dbus.MakeVariant(byte(n.Urgency)),
		"desktop-entry": dbus.MakeVariant(s.appName),
	}

	// Notify(app_name, replaces_id, icon, summary, body, actions, hints, timeout)
	call := s.obj.Call(
		dbusNotifyInterface+".Notify",
		0,
		s.appName,
		uint32(0),
		iconFor(n.Kind),
		n.Title,
		n.Body,
		[]string{},
		hints,
		int32(-1),
	)
	return call.Err
}

// Close closes the bus connection.
func (s *DBusSink) Close() error {
	return s.conn.Close()
}
