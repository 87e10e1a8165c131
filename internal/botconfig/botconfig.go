// Package botconfig locates the bot token and the admin allowlist.
package botconfig

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// ErrNotConfigured is returned when no source yields a bot token.
var ErrNotConfigured = errors.New("bot token not configured")

// BotConfig is the bot's credentials and who may command it.
type BotConfig struct {
	Token        string
	AdminChatIDs []string
	// Source names where the config was found.
	Source string
}

// Allowlist returns the admin chat ids as a set.
func (c *BotConfig) Allowlist() Allowlist {
	return NewAllowlist(c.AdminChatIDs)
}

// Source loads a BotConfig. A source without a token returns (nil, nil).
type Source interface {
	Load(ctx context.Context) (*BotConfig, error)
}

// Allowlist is the set of chat ids allowed to issue commands.
type Allowlist map[string]struct{}

// NewAllowlist builds an allowlist, ignoring blank ids.
func NewAllowlist(ids []string) Allowlist {
	a := make(Allowlist, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			a[id] = struct{}{}
		}
	}
	return a
}

// Allowed reports whether chatID is an admin.
func (a Allowlist) Allowed(chatID int64) bool {
	_, ok := a[strconv.FormatInt(chatID, 10)]
	return ok
}

// IDs returns the admin ids in ascending order.
func (a Allowlist) IDs() []string {
	out := make([]string, 0, len(a))
	for id := range a {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Static is configuration supplied directly through the config file or
// environment.
type Static struct {
	Token        string
	AdminChatIDs []string
}

func (s Static) Load(context.Context) (*BotConfig, error) {
	if strings.TrimSpace(s.Token) == "" {
		return nil, nil
	}
	return &BotConfig{Token: strings.TrimSpace(s.Token), AdminChatIDs: splitIDs(s.AdminChatIDs), Source: "config"}, nil
}

// Chain tries each source in order; the first one with a token wins.
// Source errors are logged and the next source is tried.
type Chain struct {
	Sources []Source
	Log     zerolog.Logger
}

func (c Chain) Load(ctx context.Context) (*BotConfig, error) {
	for _, src := range c.Sources {
		if src == nil {
			continue
		}
		cfg, err := src.Load(ctx)
		if err != nil {
			c.Log.Warn().Err(err).Msg("bot config source failed, trying next")
			continue
		}
		if cfg != nil && cfg.Token != "" {
			return cfg, nil
		}
	}
	return nil, ErrNotConfigured
}

// splitIDs flattens comma separated entries.
func splitIDs(in []string) []string {
	var out []string
	for _, v := range in {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
