package lifecycle

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/audiolibrelab/pcmrecorder/internal/apperr"
)

const (
	notificationsService   = "org.freedesktop.Notifications"
	notificationsPath      = "/org/freedesktop/Notifications"
	notificationsInterface = "org.freedesktop.Notifications"

	recordingIcon = "audio-input-microphone"
)

// DBusNotifier posts desktop notifications through org.freedesktop.Notifications.
// The "recording" notification stays up for the whole capture and is
// replaced when the capture ends.
type DBusNotifier struct {
	conn    *dbus.Conn
	obj     dbus.BusObject
	appName string
	timeout time.Duration

	mu       sync.Mutex
	activeID uint32
}

// NewDBusNotifier connects to the session bus. It fails with Unsupported
// when there is no session bus or no notification service on it.
func NewDBusNotifier(appName string, timeout time.Duration) (*DBusNotifier, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, apperr.New(apperr.KindUnsupported, "connect session bus", err)
	}

	n := &DBusNotifier{
		conn:    conn,
		obj:     conn.Object(notificationsService, notificationsPath),
		appName: appName,
		timeout: timeout,
	}

	if _, err := n.capabilities(context.Background()); err != nil {
		conn.Close()
		return nil, apperr.New(apperr.KindUnsupported, "query notification service", err)
	}

	return n, nil
}

func (n *DBusNotifier) Notify(ctx context.Context, ev Event) error {
	switch ev.Kind {
	case CaptureStarted:
		id, err := n.notify(ctx, 0, "Recording", "Recording to "+ev.Recording, 0)
		if err != nil {
			return err
		}
		n.mu.Lock()
		n.activeID = id
		n.mu.Unlock()
		return nil

	case CaptureStopped:
		_, err := n.notify(ctx, n.takeActiveID(), "Recording saved", ev.Recording, n.timeout)
		return err

	case CaptureFailed:
		body := ev.Recording
		if ev.Err != nil {
			body = apperr.Message(ev.Err)
		}
		_, err := n.notify(ctx, n.takeActiveID(), "Recording stopped", body, n.timeout)
		return err

	default:
		return fmt.Errorf("unknown lifecycle event: %v", ev.Kind)
	}
}

func (n *DBusNotifier) takeActiveID() uint32 {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.activeID
	n.activeID = 0
	return id
}

// notify sends Notify and returns the id the server assigned. A zero
// timeout keeps the notification up until it is replaced or closed.
func (n *DBusNotifier) notify(ctx context.Context, replaces uint32, summary, body string, timeout time.Duration) (uint32, error) {
	expire := int32(0)
	if timeout > 0 {
		expire = int32(timeout.Milliseconds())
	}

	call := n.obj.CallWithContext(ctx, notificationsInterface+".Notify", 0,
		n.appName, replaces, recordingIcon, summary, body,
		[]string{}, map[string]dbus.Variant{}, expire)
	if call.Err != nil {
		return 0, fmt.Errorf("notify failed: %w", call.Err)
	}

	var id uint32
	if err := call.Store(&id); err != nil {
		return 0, fmt.Errorf("failed to read notification id: %w", err)
	}
	return id, nil
}

func (n *DBusNotifier) capabilities(ctx context.Context) ([]string, error) {
	var caps []string
	err := n.obj.CallWithContext(ctx, notificationsInterface+".GetCapabilities", 0).Store(&caps)
	if err != nil {
		return nil, err
	}
	return caps, nil
}

// Close withdraws a still visible recording notification and disconnects
func (n *DBusNotifier) Close() error {
	if id := n.takeActiveID(); id != 0 {
		ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
		n.obj.CallWithContext(ctx, notificationsInterface+".CloseNotification", 0, id)
		cancel()
	}
	return n.conn.Close()
}

// Support describes the desktop notification service
type Support struct {
	Enabled      bool     `json:"enabled"`
	Available    bool     `json:"available"`
	Persistent   bool     `json:"persistent"`
	Capabilities []string `json:"capabilities"`
}

// CheckNotificationSupport reports whether lifecycle notifications can be
// shown. A missing bus or service is reported as unavailable, not an error.
func CheckNotificationSupport(ctx context.Context) Support {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return Support{Enabled: true}
	}
	defer conn.Close()

	n := &DBusNotifier{conn: conn, obj: conn.Object(notificationsService, notificationsPath)}
	caps, err := n.capabilities(ctx)
	if err != nil {
		return Support{Enabled: true}
	}

	return Support{
		Enabled:      true,
		Available:    true,
		Persistent:   slices.Contains(caps, "persistence"),
		Capabilities: caps,
	}
}
