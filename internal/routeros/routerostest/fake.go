// Package routerostest provides scripted in-memory sessions for tests.
package routerostest

import (
	"context"
	"strings"
	"sync"

	"github.com/acs-lite/mikrotik-gateway/internal/routeros"
)

// Handler answers one command.
type Handler func(args []string) ([]routeros.Record, error)

// Session records every command and answers from registered handlers.
// Commands without a handler succeed with no rows.
type Session struct {
	mu       sync.Mutex
	handlers map[string]Handler
	calls    []Call
	closed   int
}

// Call is one recorded Run invocation.
type Call struct {
	Command string
	Args    []string
}

var _ routeros.Session = (*Session)(nil)

func NewSession() *Session {
	return &Session{handlers: map[string]Handler{}}
}

// On registers fn for command.
func (s *Session) On(command string, fn Handler) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[command] = fn
	return s
}

// Reply registers a fixed reply for command.
func (s *Session) Reply(command string, recs ...routeros.Record) *Session {
	return s.On(command, func([]string) ([]routeros.Record, error) { return recs, nil })
}

// Fail registers a fixed error for command.
func (s *Session) Fail(command string, err error) *Session {
	return s.On(command, func([]string) ([]routeros.Record, error) { return nil, err })
}

func (s *Session) Run(ctx context.Context, command string, args ...string) ([]routeros.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.calls = append(s.calls, Call{Command: command, Args: append([]string(nil), args...)})
	h := s.handlers[command]
	s.mu.Unlock()
	if h == nil {
		return nil, nil
	}
	return h(args)
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

// Calls returns every recorded invocation.
func (s *Session) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Commands returns the recorded command paths in order.
func (s *Session) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.calls))
	for _, c := range s.calls {
		out = append(out, c.Command)
	}
	return out
}

// CallsTo returns the recorded invocations of command.
func (s *Session) CallsTo(command string) []Call {
	var out []Call
	for _, c := range s.Calls() {
		if c.Command == command {
			out = append(out, c)
		}
	}
	return out
}

// Closed reports how many times Close was called.
func (s *Session) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Arg returns the value of the "=key=" or "?key=" word in args.
func Arg(args []string, key string) string {
	for _, a := range args {
		for _, p := range []string{"=" + key + "=", "?" + key + "="} {
			if strings.HasPrefix(a, p) {
				return strings.TrimPrefix(a, p)
			}
		}
	}
	return ""
}

// Dialer hands out a fixed session or error.
type Dialer struct {
	mu      sync.Mutex
	Session *Session
	Err     error
	targets []routeros.Target
}

var _ routeros.Dialer = (*Dialer)(nil)

func (d *Dialer) Dial(ctx context.Context, target routeros.Target) (routeros.Session, error) {
	d.mu.Lock()
	d.targets = append(d.targets, target)
	d.mu.Unlock()
	if d.Err != nil {
		return nil, d.Err
	}
	return d.Session, nil
}

// Dials returns the number of Dial calls.
func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.targets)
}

// Targets returns every dialled target.
func (d *Dialer) Targets() []routeros.Target {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]routeros.Target(nil), d.targets...)
}
