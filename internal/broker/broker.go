// Package broker opens one router session per call and guarantees it is
// released on every exit path.
package broker

import (
	"context"
	"errors"
	"fmt"

	"github.com/acs-lite/mikrotik-gateway/internal/metrics"
	"github.com/acs-lite/mikrotik-gateway/internal/model"
	"github.com/acs-lite/mikrotik-gateway/internal/registry"
	"github.com/acs-lite/mikrotik-gateway/internal/routeros"
	"github.com/rs/zerolog"
)

// ErrorKind classifies a ConnectionError.
type ErrorKind int

const (
	NoDeviceConfigured ErrorKind = iota + 1
	AuthOrNetworkFailure
)

func (k ErrorKind) String() string {
	switch k {
	case NoDeviceConfigured:
		return "no_device_configured"
	case AuthOrNetworkFailure:
		return "auth_or_network_failure"
	default:
		return "unknown"
	}
}

// ConnectionError reports that no session could be established.
type ConnectionError struct {
	Kind     ErrorKind
	RouterID string
	Err      error
}

func (e *ConnectionError) Error() string {
	if e.Kind == NoDeviceConfigured {
		return "No router configured"
	}
	return "Connection failed: " + routeros.DeviceMessage(e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Resolver looks up device profiles.
type Resolver interface {
	Resolve(ctx context.Context, id string) (*model.DeviceProfile, error)
}

var _ Resolver = (*registry.Registry)(nil)

// Handle is an open session together with the profile it was opened for.
type Handle struct {
	routeros.Session
	Profile model.DeviceProfile
}

// Broker resolves profiles and dials sessions.
type Broker struct {
	resolver Resolver
	dialer   routeros.Dialer
	log      zerolog.Logger
}

// New builds a Broker.
func New(resolver Resolver, dialer routeros.Dialer, log zerolog.Logger) *Broker {
	return &Broker{resolver: resolver, dialer: dialer, log: log}
}

// Open resolves id (empty means the first configured router) and dials it.
// The caller owns the returned handle and must Close it.
func (b *Broker) Open(ctx context.Context, id string) (*Handle, error) {
	profile, err := b.resolver.Resolve(ctx, id)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return nil, &ConnectionError{Kind: NoDeviceConfigured, RouterID: id, Err: err}
		}
		return nil, fmt.Errorf("resolve router: %w", err)
	}

	session, err := b.dialer.Dial(ctx, routeros.Target{
		Address:  profile.Address,
		Port:     profile.Port,
		Username: profile.Username,
		Password: profile.Password,
	})
	metrics.IncDeviceSession(err == nil)
	if err != nil {
		b.log.Warn().Err(err).Str("router", profile.ID).Str("address", profile.Address).Msg("router connection failed")
		return nil, &ConnectionError{Kind: AuthOrNetworkFailure, RouterID: profile.ID, Err: err}
	}
	b.log.Debug().Str("router", profile.ID).Msg("router session opened")
	return &Handle{Session: session, Profile: *profile}, nil
}

// With opens a session, runs fn and closes the session whatever fn does,
// including panicking. A panic is re-raised after the close.
func (b *Broker) With(ctx context.Context, id string, fn func(ctx context.Context, h *Handle) error) error {
	h, err := b.Open(ctx, id)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := h.Close(); cerr != nil {
			b.log.Warn().Err(cerr).Str("router", h.Profile.ID).Msg("router session close failed")
		}
	}()
	return fn(ctx, h)
}
