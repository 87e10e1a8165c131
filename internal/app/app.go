// Package app assembles the dispatcher stack shared by the gateway and the
// bot processes.
package app

import (
	"errors"
	"fmt"
	"io"

	"github.com/acs-lite/mikrotik-gateway/internal/action"
	"github.com/acs-lite/mikrotik-gateway/internal/broker"
	"github.com/acs-lite/mikrotik-gateway/internal/config"
	"github.com/acs-lite/mikrotik-gateway/internal/events"
	"github.com/acs-lite/mikrotik-gateway/internal/logger"
	"github.com/acs-lite/mikrotik-gateway/internal/model"
	"github.com/acs-lite/mikrotik-gateway/internal/registry"
	"github.com/acs-lite/mikrotik-gateway/internal/routeros"
	"github.com/acs-lite/mikrotik-gateway/internal/storage"
	"github.com/acs-lite/mikrotik-gateway/internal/storage/bolt"
	"github.com/acs-lite/mikrotik-gateway/internal/storage/file"
	"github.com/acs-lite/mikrotik-gateway/internal/voucher"
)

// Stack is a ready dispatcher plus the resources it holds open.
type Stack struct {
	Dispatcher *action.Dispatcher
	Registry   *registry.Registry
	closers    []io.Closer
}

// Build opens storage and wires registry, broker, vouchers, journal and
// events into a dispatcher. dialer may be nil to use the RouterOS API.
func Build(cfg *config.Config, dialer routeros.Dialer) (_ *Stack, err error) {
	st := &Stack{}
	defer func() {
		if err != nil {
			_ = st.Close()
		}
	}()

	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	st.closers = append(st.closers, store)

	journal, ok := store.(*bolt.Store)
	if !ok || cfg.Storage.JournalPath != cfg.Storage.BoltPath {
		if journal, err = bolt.New(cfg.Storage.JournalPath); err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		st.closers = append(st.closers, journal)
	}

	publisher, err := openEvents(cfg)
	if err != nil {
		return nil, err
	}
	st.closers = append(st.closers, publisher)

	if dialer == nil {
		dialer = &routeros.NetDialer{
			DialTimeout:    cfg.RouterOS.DialTimeout,
			CommandTimeout: cfg.RouterOS.CommandTimeout,
			TLS:            cfg.RouterOS.TLS,
			TLSSkipVerify:  cfg.RouterOS.TLSSkipVerify,
		}
	}

	st.Registry = registry.New(store, Fallback(cfg), logger.WithComponent("registry"))
	sessions := broker.New(st.Registry, dialer, logger.WithComponent("broker"))
	vouchers := voucher.New(sessions, cfg.Voucher.CommentPrefix, logger.WithComponent("voucher"))

	st.Dispatcher = action.New(action.Deps{
		Registry:     st.Registry,
		Sessions:     sessions,
		Vouchers:     vouchers,
		Journal:      journal,
		JournalScope: cfg.App,
		Events:       publisher,
		Log:          logger.WithComponent("action"),
	})
	return st, nil
}

// Close releases everything Build opened, newest first.
func (s *Stack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// Fallback is the single router used until a configuration is saved.
func Fallback(cfg *config.Config) model.DeviceProfile {
	d := cfg.RouterDefaults
	return model.DeviceProfile{
		ID:               d.ID,
		Name:             d.Name,
		Address:          d.Address,
		Port:             d.Port,
		Username:         d.Username,
		Password:         d.Password,
		IsolationProfile: d.IsolationProfile,
		DefaultProfile:   d.DefaultProfile,
	}
}

func openStore(cfg *config.Config) (storage.ConfigStore, error) {
	switch cfg.Storage.Driver {
	case "", "file":
		store, err := file.New(cfg.Storage.Dir)
		if err != nil {
			return nil, fmt.Errorf("open file store: %w", err)
		}
		return store, nil
	case "bolt":
		store, err := bolt.New(cfg.Storage.BoltPath)
		if err != nil {
			return nil, fmt.Errorf("open bolt store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

func openEvents(cfg *config.Config) (events.Publisher, error) {
	if cfg.NATS.URL == "" {
		return events.Nop{}, nil
	}
	pub, err := events.ConnectNATS(cfg.NATS.URL, cfg.NATS.Subject, "acs-"+cfg.App, logger.WithComponent("events"))
	if err != nil {
		return nil, err
	}
	return pub, nil
}
