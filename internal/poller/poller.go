// Package poller drives the bot by long-polling getUpdates.
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/acs-lite/mikrotik-gateway/internal/bot"
	"github.com/acs-lite/mikrotik-gateway/internal/metrics"
	"github.com/acs-lite/mikrotik-gateway/internal/telegram"
	"github.com/rs/zerolog"
)

// AllowedUpdates are the update kinds requested from the provider.
var AllowedUpdates = []string{telegram.KindMessage, telegram.KindCallbackQuery}

// Provider is the Bot API surface the loop needs.
type Provider interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration, allowed []string) ([]telegram.Update, error)
	DeleteWebhook(ctx context.Context) error
	GetMe(ctx context.Context) (*telegram.User, error)
}

// Processor handles single updates and the startup broadcast.
type Processor interface {
	Process(ctx context.Context, u telegram.Update) (bot.Outcome, error)
	Broadcast(ctx context.Context, text string) int
}

var _ Processor = (*bot.Processor)(nil)

// Config tunes polling and failure recovery.
type Config struct {
	PollTimeout    time.Duration
	RequestTimeout time.Duration
	MaxErrors      int
	ShortBackoff   time.Duration
	LongBackoff    time.Duration
	// MaxDeliveryAttempts drops an update after that many failed attempts.
	// Zero retries forever.
	MaxDeliveryAttempts int
	StartupNotice       bool
}

func (c Config) withDefaults() Config {
	if c.PollTimeout <= 0 {
		c.PollTimeout = 30 * time.Second
	}
	if c.RequestTimeout <= c.PollTimeout {
		c.RequestTimeout = c.PollTimeout + 15*time.Second
	}
	if c.MaxErrors <= 0 {
		c.MaxErrors = 5
	}
	if c.ShortBackoff <= 0 {
		c.ShortBackoff = 2 * time.Second
	}
	if c.LongBackoff <= 0 {
		c.LongBackoff = 10 * time.Second
	}
	return c
}

// Option customizes a Loop.
type Option func(*Loop)

// WithSleep replaces the backoff sleep.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(l *Loop) { l.sleep = fn }
}

// WithClock replaces the wall clock used in the startup notice.
func WithClock(fn func() time.Time) Option {
	return func(l *Loop) { l.now = fn }
}

// Loop fetches updates one batch at a time and processes them in order.
// It is not safe for concurrent use.
type Loop struct {
	provider  Provider
	processor Processor
	cfg       Config
	log       zerolog.Logger
	sleep     func(ctx context.Context, d time.Duration) error
	now       func() time.Time

	offset    int64
	errCount  int
	failingID int64
	failures  int
}

// New builds a Loop.
func New(provider Provider, processor Processor, cfg Config, log zerolog.Logger, opts ...Option) *Loop {
	l := &Loop{
		provider:  provider,
		processor: processor,
		cfg:       cfg.withDefaults(),
		log:       log,
		sleep:     sleepContext,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Offset is the next update id to request.
func (l *Loop) Offset() int64 { return l.offset }

// Start switches the bot to long polling and verifies the token.
func (l *Loop) Start(ctx context.Context) (*telegram.User, error) {
	l.log.Info().Msg("removing webhook (switching to long polling)")
	if err := l.provider.DeleteWebhook(ctx); err != nil {
		l.log.Warn().Err(err).Msg("delete webhook failed")
	}
	me, err := l.provider.GetMe(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect to bot api: %w", err)
	}
	l.log.Info().Str("bot", me.Username).Msg("bot connected")

	if l.cfg.StartupNotice {
		sent := l.processor.Broadcast(ctx, bot.StartupNotice(l.now()))
		l.log.Info().Int("admins", sent).Msg("startup notice sent")
	}
	return me, nil
}

// Run polls until ctx is cancelled. An in-flight fetch is allowed to
// finish but its updates are not processed once ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	l.log.Info().Int64("offset", l.offset).Msg("starting long polling loop")
	for {
		if ctx.Err() != nil {
			l.log.Info().Int64("offset", l.offset).Msg("bot stopped gracefully")
			return nil
		}

		updates, err := l.fetch(ctx)
		metrics.IncPollFetch(err == nil)
		if err != nil {
			l.backoff(ctx, err)
			continue
		}
		l.errCount = 0

		if l.processBatch(ctx, updates) {
			// the failed update comes straight back, so pause before refetching
			_ = l.sleep(ctx, l.cfg.ShortBackoff)
		}
	}
}

func (l *Loop) fetch(ctx context.Context) ([]telegram.Update, error) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.cfg.RequestTimeout)
	defer cancel()
	return l.provider.GetUpdates(fctx, l.offset, l.cfg.PollTimeout, AllowedUpdates)
}

// backoff sleeps after a failed fetch. The wait ends early on cancellation.
func (l *Loop) backoff(ctx context.Context, cause error) {
	l.errCount++
	l.log.Warn().Err(cause).Int("errors", l.errCount).Int("max_errors", l.cfg.MaxErrors).Msg("failed to get updates")

	wait := l.cfg.ShortBackoff
	if l.errCount >= l.cfg.MaxErrors {
		l.log.Error().Dur("wait", l.cfg.LongBackoff).Msg("too many errors, backing off")
		wait = l.cfg.LongBackoff
		l.errCount = 0
	}
	var apiErr *telegram.APIError
	if errors.As(cause, &apiErr) && apiErr.RetryAfter > wait {
		wait = apiErr.RetryAfter
	}
	_ = l.sleep(ctx, wait)
}

// processBatch handles updates in order and reports whether one failed.
// Updates after a failure, or after cancellation, are left for the next
// fetch.
func (l *Loop) processBatch(ctx context.Context, updates []telegram.Update) bool {
	work := context.WithoutCancel(ctx)
	for _, u := range updates {
		if ctx.Err() != nil {
			return false
		}
		if u.UpdateID < l.offset {
			continue
		}

		log := l.log.With().Int64("update_id", u.UpdateID).Str("kind", u.Kind()).Logger()
		log.Debug().Msg("processing update")

		outcome, err := l.processor.Process(work, u)
		if err != nil {
			metrics.IncPollUpdate(u.Kind(), string(bot.Failed))
			if l.poisoned(u.UpdateID) {
				log.Error().Err(err).Int("attempts", l.failures).Msg("dropping update after repeated failures")
				l.advance(u.UpdateID)
				continue
			}
			log.Error().Err(err).Int("attempts", l.failures).Msg("error processing update")
			return true
		}
		metrics.IncPollUpdate(u.Kind(), string(outcome))
		l.advance(u.UpdateID)
	}
	return false
}

func (l *Loop) poisoned(id int64) bool {
	if id != l.failingID {
		l.failingID, l.failures = id, 0
	}
	l.failures++
	return l.cfg.MaxDeliveryAttempts > 0 && l.failures >= l.cfg.MaxDeliveryAttempts
}

func (l *Loop) advance(id int64) {
	if id == l.failingID {
		l.failingID, l.failures = 0, 0
	}
	if next := id + 1; next > l.offset {
		l.offset = next
		metrics.SetPollCursor(next)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
