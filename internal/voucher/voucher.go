// Package voucher provisions batches of prepaid hotspot accounts whose
// username and password are the same random digit code.
package voucher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/acs-lite/mikrotik-gateway/internal/broker"
	"github.com/acs-lite/mikrotik-gateway/internal/metrics"
	"github.com/acs-lite/mikrotik-gateway/internal/model"
	"github.com/acs-lite/mikrotik-gateway/internal/routeros"
	"github.com/rs/zerolog"
)

const (
	MinCount      = 1
	MaxCount      = 50
	DefaultLength = 5
	// MaxLength caps code length. Longer requests are cut to it and the
	// batch reports the length actually used.
	MaxLength = 32

	// draws per slot before giving up on finding a code not yet in the batch
	maxDraws = 16
)

// ErrNoVouchers is returned when not a single code could be provisioned.
var ErrNoVouchers = errors.New("no vouchers provisioned")

// Sessions runs fn inside one router session.
type Sessions interface {
	With(ctx context.Context, id string, fn func(ctx context.Context, h *broker.Handle) error) error
}

var _ Sessions = (*broker.Broker)(nil)

// Request describes one batch.
type Request struct {
	RouterID string
	Profile  string
	Count    int
	Length   int
	Prefix   string
}

// Generator provisions voucher batches.
type Generator struct {
	sessions      Sessions
	commentPrefix string
	random        io.Reader
	now           func() time.Time
	log           zerolog.Logger
}

// Option customises a Generator.
type Option func(*Generator)

// WithRandom replaces the crypto/rand source.
func WithRandom(r io.Reader) Option { return func(g *Generator) { g.random = r } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(g *Generator) { g.now = now } }

// New builds a Generator. commentPrefix tags every account as
// "<commentPrefix>-YYYY-MM-DD".
func New(sessions Sessions, commentPrefix string, log zerolog.Logger, opts ...Option) *Generator {
	if commentPrefix == "" {
		commentPrefix = "vc-acs"
	}
	g := &Generator{
		sessions:      sessions,
		commentPrefix: commentPrefix,
		now:           time.Now,
		log:           log,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Normalize clamps count and length into their accepted ranges.
func Normalize(count, length int) (int, int) {
	if count < MinCount {
		count = MinCount
	}
	if count > MaxCount {
		count = MaxCount
	}
	if length < 1 {
		length = DefaultLength
	}
	if length > MaxLength {
		length = MaxLength
	}
	return count, length
}

// Generate provisions up to req.Count codes in a single session. Codes the
// router rejects are reported in Failures and the batch continues; a
// transport failure or cancellation ends the batch early and the codes
// provisioned so far are still returned. ErrNoVouchers is returned when
// nothing was provisioned.
func (g *Generator) Generate(ctx context.Context, req Request) (*model.VoucherBatch, error) {
	if req.Profile == "" {
		return nil, errors.New("profile is required")
	}
	count, length := Normalize(req.Count, req.Length)
	batch := &model.VoucherBatch{
		Profile:   req.Profile,
		Requested: count,
		Length:    length,
		Prefix:    req.Prefix,
		Comment:   fmt.Sprintf("%s-%s", g.commentPrefix, g.now().Format("2006-01-02")),
		Codes:     []string{},
	}

	err := g.sessions.With(ctx, req.RouterID, func(ctx context.Context, h *broker.Handle) error {
		seen := make(map[string]struct{}, count)
		for i := 0; i < count; i++ {
			// codes already added exist on the router, so they are reported
			if err := ctx.Err(); err != nil {
				g.log.Warn().Err(err).Str("profile", req.Profile).Int("provisioned", len(batch.Codes)).Msg("voucher batch cancelled")
				return nil
			}
			code, err := g.uniqueCode(req.Prefix, length, seen)
			if err != nil {
				return err
			}
			if code == "" {
				g.log.Warn().Int("generated", i).Int("length", length).Msg("voucher code space exhausted")
				return nil
			}
			seen[code] = struct{}{}

			err = routeros.Add(ctx, h, routeros.MenuHotspotUser, map[string]string{
				"name":     code,
				"password": code,
				"profile":  req.Profile,
				"comment":  batch.Comment,
			})
			switch {
			case err == nil:
				batch.Codes = append(batch.Codes, code)
				metrics.IncVoucher("provisioned")
			case routeros.IsDuplicate(err):
				batch.Failures = append(batch.Failures, model.VoucherFailure{Code: code, Reason: model.VoucherDuplicate, Detail: routeros.DeviceMessage(err)})
				metrics.IncVoucher(model.VoucherDuplicate)
			case routeros.IsDeviceError(err):
				batch.Failures = append(batch.Failures, model.VoucherFailure{Code: code, Reason: model.VoucherRejected, Detail: routeros.DeviceMessage(err)})
				metrics.IncVoucher(model.VoucherRejected)
			default:
				batch.Failures = append(batch.Failures, model.VoucherFailure{Code: code, Reason: model.VoucherTransport, Detail: err.Error()})
				metrics.IncVoucher(model.VoucherTransport)
				g.log.Error().Err(err).Str("profile", req.Profile).Int("provisioned", len(batch.Codes)).Msg("voucher batch aborted")
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	batch.Count = len(batch.Codes)
	g.log.Info().
		Str("profile", req.Profile).
		Int("requested", count).
		Int("provisioned", batch.Count).
		Int("failed", len(batch.Failures)).
		Msg("voucher batch generated")
	if batch.Count == 0 {
		return batch, ErrNoVouchers
	}
	return batch, nil
}

func (g *Generator) uniqueCode(prefix string, length int, seen map[string]struct{}) (string, error) {
	for attempt := 0; attempt < maxDraws; attempt++ {
		code, err := GenerateCode(g.random, prefix, length)
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		if _, dup := seen[code]; !dup {
			return code, nil
		}
	}
	return "", nil
}
