package routeros

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	ros "github.com/go-routeros/routeros/v3"
)

// NetDialer dials routers over the RouterOS API protocol.
type NetDialer struct {
	DialTimeout    time.Duration
	CommandTimeout time.Duration
	TLS            bool
	TLSSkipVerify  bool
}

var _ Dialer = (*NetDialer)(nil)

// Dial connects and logs in.
func (d *NetDialer) Dial(ctx context.Context, target Target) (Session, error) {
	if strings.TrimSpace(target.Address) == "" {
		return nil, errors.New("router address is empty")
	}
	dialer := &net.Dialer{Timeout: d.DialTimeout}
	addr := target.HostPort(d.TLS)

	var (
		conn net.Conn
		err  error
	)
	if d.TLS {
		td := &tls.Dialer{
			NetDialer: dialer,
			Config:    &tls.Config{InsecureSkipVerify: d.TLSSkipVerify}, //nolint:gosec // self-signed router certificates
		}
		conn, err = td.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, err
	}

	if d.DialTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(d.DialTimeout))
	}
	client, err := ros.NewClient(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := client.Login(target.Username, target.Password); err != nil {
		client.Close()
		return nil, translate("/login", err)
	}
	_ = conn.SetDeadline(time.Time{})

	return &netSession{conn: conn, client: client, timeout: d.CommandTimeout}, nil
}

type netSession struct {
	mu      sync.Mutex
	conn    net.Conn
	client  *ros.Client
	timeout time.Duration
	closed  bool
}

func (s *netSession) Run(ctx context.Context, command string, args ...string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.New("session closed")
	}

	_ = s.conn.SetDeadline(commandDeadline(ctx, s.timeout))
	defer s.conn.SetDeadline(time.Time{})

	sentence := append([]string{command}, args...)
	reply, err := s.client.RunArgs(sentence)
	if err != nil {
		return nil, translate(command, err)
	}
	records := make([]Record, 0, len(reply.Re))
	for _, re := range reply.Re {
		rec := make(Record, len(re.Map))
		for k, v := range re.Map {
			rec[k] = v
		}
		records = append(records, rec)
	}
	if reply.Done != nil {
		if ret, ok := reply.Done.Map["ret"]; ok && len(records) == 0 {
			records = append(records, Record{"ret": ret})
		}
	}
	return records, nil
}

func (s *netSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.client.Close()
	return nil
}

func translate(command string, err error) error {
	var de *ros.DeviceError
	if errors.As(err, &de) {
		msg := ""
		if de.Sentence != nil {
			msg = de.Sentence.Map["message"]
		}
		if msg == "" {
			msg = de.Error()
		}
		return &DeviceError{Command: command, Message: msg}
	}
	return fmt.Errorf("%s: %w", command, err)
}
