// Package routeros exposes a router as an opaque command session and builds
// the typed subscriber-management operations on top of it.
package routeros

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Record is one reply row, keyed by attribute name without the leading '='.
type Record map[string]string

// Session is an authenticated connection to one router.
type Session interface {
	// Run executes command (e.g. "/ppp/secret/print") with the given
	// attribute and query words and returns the reply rows.
	Run(ctx context.Context, command string, args ...string) ([]Record, error)
	Close() error
}

// Target identifies a router and the credentials used to log in.
type Target struct {
	Address  string
	Port     int
	Username string
	Password string
}

// HostPort returns the dial address, defaulting the API port.
func (t Target) HostPort(tls bool) string {
	port := t.Port
	if port <= 0 {
		port = 8728
		if tls {
			port = 8729
		}
	}
	host := strings.TrimSpace(t.Address)
	if strings.Contains(host, ":") && !strings.HasPrefix(host, "[") {
		host = "[" + host + "]"
	}
	return host + ":" + strconv.Itoa(port)
}

// Dialer opens sessions.
type Dialer interface {
	Dial(ctx context.Context, target Target) (Session, error)
}

// DeviceError reports that the router accepted the connection but rejected
// a command (a !trap or !fatal reply).
type DeviceError struct {
	Command string
	Message string
}

func (e *DeviceError) Error() string {
	if e.Command == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Command, e.Message)
}

// IsDeviceError reports whether err is a command rejection from the router.
func IsDeviceError(err error) bool {
	var de *DeviceError
	return errors.As(err, &de)
}

// DeviceMessage returns the router-reported message of err, or err.Error().
func DeviceMessage(err error) string {
	var de *DeviceError
	if errors.As(err, &de) {
		return de.Message
	}
	return err.Error()
}

// IsDuplicate reports whether the router rejected an add because an entry
// with the same name already exists.
func IsDuplicate(err error) bool {
	var de *DeviceError
	if !errors.As(err, &de) {
		return false
	}
	msg := strings.ToLower(de.Message)
	return strings.Contains(msg, "already have") || strings.Contains(msg, "already exists")
}

func commandDeadline(ctx context.Context, fallback time.Duration) time.Time {
	if dl, ok := ctx.Deadline(); ok {
		return dl
	}
	if fallback <= 0 {
		return time.Time{}
	}
	return time.Now().Add(fallback)
}
