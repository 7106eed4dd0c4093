package session

import (
	"fmt"
	"os"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/goodtune/screentime/internal/history"
	"github.com/rs/zerolog"
)

const (
	login1Name       = "org.freedesktop.login1"
	login1Path       = "/org/freedesktop/login1"
	login1Manager    = "org.freedesktop.login1.Manager"
	login1Session    = "org.freedesktop.login1.Session"
	propertiesIface  = "org.freedesktop.DBus.Properties"
	propertiesSignal = propertiesIface + ".PropertiesChanged"
)

// Logind watches the State and IdleHint properties of a systemd-logind
// session on the system bus.
type Logind struct {
	conn    *dbus.Conn
	obj     dbus.BusObject
	path    dbus.ObjectPath
	logger  zerolog.Logger
	signals chan *dbus.Signal
	subs    subscribers

	mu    sync.RWMutex
	state history.UserState
}

// NewLogind connects to the system bus and resolves sessionID, or the
// caller's own session when sessionID is empty.
func NewLogind(sessionID string, logger zerolog.Logger) (*Logind, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect system bus: %w", err)
	}

	path, err := sessionPath(conn, sessionID)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	l := &Logind{
		conn:    conn,
		obj:     conn.Object(login1Name, path),
		path:    path,
		logger:  logger.With().Str("component", "logind").Str("session", string(path)).Logger(),
		signals: make(chan *dbus.Signal, 16),
	}

	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(path),
		dbus.WithMatchInterface(propertiesIface),
		dbus.WithMatchMember("PropertiesChanged"),
	); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("watch session properties: %w", err)
	}
	conn.Signal(l.signals)

	state, err := l.read()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	l.state = state

	go l.watch()

	l.logger.Info().Str("user_state", state.String()).Msg("Watching login session")
	return l, nil
}

func sessionPath(conn *dbus.Conn, sessionID string) (dbus.ObjectPath, error) {
	if sessionID == "" {
		sessionID = os.Getenv("XDG_SESSION_ID")
	}

	manager := conn.Object(login1Name, login1Path)
	var path dbus.ObjectPath
	if sessionID != "" {
		if err := manager.Call(login1Manager+".GetSession", 0, sessionID).Store(&path); err != nil {
			return "", fmt.Errorf("get session %s: %w", sessionID, err)
		}
		return path, nil
	}

	if err := manager.Call(login1Manager+".GetSessionByPID", 0, uint32(os.Getpid())).Store(&path); err != nil {
		return "", fmt.Errorf("get session by pid: %w", err)
	}
	return path, nil
}

func (l *Logind) read() (history.UserState, error) {
	stateProp, err := l.obj.GetProperty(login1Session + ".State")
	if err != nil {
		return history.UserStateInactive, fmt.Errorf("read session state: %w", err)
	}
	idleProp, err := l.obj.GetProperty(login1Session + ".IdleHint")
	if err != nil {
		return history.UserStateInactive, fmt.Errorf("read idle hint: %w", err)
	}

	state, _ := stateProp.Value().(string)
	idle, _ := idleProp.Value().(bool)
	return UserStateFor(state, idle), nil
}

func (l *Logind) watch() {
	for sig := range l.signals {
		if sig.Path != l.path || sig.Name != propertiesSignal {
			continue
		}
		if len(sig.Body) == 0 {
			continue
		}
		if iface, _ := sig.Body[0].(string); iface != login1Session {
			continue
		}

		state, err := l.read()
		if err != nil {
			l.logger.Warn().Err(err).Msg("Failed to refresh session properties")
			continue
		}

		l.mu.Lock()
		l.state = state
		l.mu.Unlock()

		l.logger.Debug().Str("user_state", state.String()).Msg("Session properties changed")
		l.subs.notify()
	}
}

// UserState returns the state as of the last property change.
func (l *Logind) UserState() history.UserState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Subscribe registers f for property change notifications.
func (l *Logind) Subscribe(f func()) func() {
	return l.subs.add(f)
}

// Close disconnects from the bus, which also ends the watch loop.
func (l *Logind) Close() error {
	return l.conn.Close()
}
