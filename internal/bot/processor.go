// Package bot authorizes inbound chat updates and routes them to the
// command router, replying through the Bot API.
package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/acs-lite/mikrotik-gateway/internal/botconfig"
	"github.com/acs-lite/mikrotik-gateway/internal/command"
	"github.com/acs-lite/mikrotik-gateway/internal/telegram"
	"github.com/rs/zerolog"
)

const (
	unauthorizedText     = "❌ Unauthorized. Contact admin to get access."
	unauthorizedCallback = "Unauthorized"
)

// API is the subset of the Bot API used to reply.
type API interface {
	SendMessage(ctx context.Context, msg telegram.OutgoingMessage) (*telegram.Message, error)
	AnswerCallbackQuery(ctx context.Context, id, text string) error
}

// Router turns commands into replies.
type Router interface {
	Route(ctx context.Context, command, args string) command.Reply
	RouteCallback(ctx context.Context, data string) (command.Reply, bool)
}

var _ Router = (*command.Router)(nil)

// Outcome classifies how an update was handled.
type Outcome string

const (
	Routed       Outcome = "routed"
	Ignored      Outcome = "ignored"
	Unauthorized Outcome = "unauthorized"
	ReplyFailed  Outcome = "reply_failed"
	Failed       Outcome = "failed"
)

// Processor handles one update at a time.
type Processor struct {
	api    API
	router Router
	allow  botconfig.Allowlist
	log    zerolog.Logger
}

// NewProcessor builds a Processor.
func NewProcessor(api API, router Router, allow botconfig.Allowlist, log zerolog.Logger) *Processor {
	return &Processor{api: api, router: router, allow: allow, log: log}
}

// Process authorizes and routes u. An error means the update was not routed
// and should be delivered again; this only happens on a panic. Once a
// command has been routed the update counts as handled even when the reply
// cannot be delivered, since redelivery would run the action again.
func (p *Processor) Process(ctx context.Context, u telegram.Update) (outcome Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcome, err = Failed, fmt.Errorf("panic processing update %d: %v", u.UpdateID, r)
		}
	}()

	switch {
	case u.Message != nil:
		return p.message(ctx, u.Message)
	case u.CallbackQuery != nil:
		return p.callback(ctx, u.CallbackQuery)
	default:
		return Ignored, nil
	}
}

func (p *Processor) message(ctx context.Context, m *telegram.Message) (Outcome, error) {
	chatID := m.Chat.ID
	if !p.allow.Allowed(chatID) {
		p.log.Warn().Int64("chat_id", chatID).Msg("unauthorized access attempt")
		if _, err := p.api.SendMessage(ctx, telegram.OutgoingMessage{ChatID: chatID, Text: unauthorizedText}); err != nil {
			p.log.Warn().Err(err).Int64("chat_id", chatID).Msg("send rejection failed")
		}
		return Unauthorized, nil
	}

	text := strings.TrimSpace(m.Text)
	if !strings.HasPrefix(text, "/") {
		return Ignored, nil
	}
	cmd, args, _ := strings.Cut(text, " ")
	if i := strings.Index(cmd, "@"); i > 0 {
		cmd = cmd[:i]
	}
	p.log.Info().Int64("chat_id", chatID).Str("command", cmd).Msg("command received")

	reply := p.router.Route(ctx, cmd, args)
	return p.reply(ctx, chatID, reply), nil
}

func (p *Processor) callback(ctx context.Context, q *telegram.CallbackQuery) (Outcome, error) {
	chatID := q.From.ID
	if q.Message != nil {
		chatID = q.Message.Chat.ID
	}
	if !p.allow.Allowed(chatID) {
		p.log.Warn().Int64("chat_id", chatID).Msg("unauthorized callback")
		if err := p.api.AnswerCallbackQuery(ctx, q.ID, unauthorizedCallback); err != nil {
			p.log.Warn().Err(err).Int64("chat_id", chatID).Msg("answer rejection failed")
		}
		return Unauthorized, nil
	}

	reply, ok := p.router.RouteCallback(ctx, q.Data)
	ack := ""
	if !ok {
		ack = "Unknown action"
	}
	// the query expires after a while, so a failed ack is not retried
	if err := p.api.AnswerCallbackQuery(ctx, q.ID, ack); err != nil {
		p.log.Warn().Err(err).Str("callback_id", q.ID).Msg("answer callback failed")
	}
	if !ok {
		return Ignored, nil
	}
	return p.reply(ctx, chatID, reply), nil
}

// reply delivers a routed reply. Delivery failures are logged only.
func (p *Processor) reply(ctx context.Context, chatID int64, reply command.Reply) Outcome {
	if err := p.send(ctx, chatID, reply); err != nil {
		p.log.Error().Err(err).Int64("chat_id", chatID).Msg("reply not delivered")
		return ReplyFailed
	}
	return Routed
}

func (p *Processor) send(ctx context.Context, chatID int64, reply command.Reply) error {
	_, err := p.api.SendMessage(ctx, telegram.OutgoingMessage{
		ChatID:      chatID,
		Text:        command.Truncate(reply.Text),
		ParseMode:   telegram.ParseModeHTML,
		ReplyMarkup: reply.Keyboard,
	})
	if err != nil {
		return fmt.Errorf("send reply to %d: %w", chatID, err)
	}
	return nil
}

// Broadcast sends text to every admin concurrently and returns how many
// deliveries succeeded.
func (p *Processor) Broadcast(ctx context.Context, text string) int {
	ids := p.allow.IDs()
	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		sent int
	)
	wg.Add(len(ids))
	for _, id := range ids {
		go func() {
			defer wg.Done()
			chatID, err := strconv.ParseInt(id, 10, 64)
			if err != nil {
				p.log.Warn().Str("chat_id", id).Msg("admin chat id is not numeric")
				return
			}
			_, err = p.api.SendMessage(ctx, telegram.OutgoingMessage{ChatID: chatID, Text: text, ParseMode: telegram.ParseModeHTML})
			if err != nil {
				p.log.Warn().Err(err).Int64("chat_id", chatID).Msg("broadcast failed")
				return
			}
			mu.Lock()
			sent++
			mu.Unlock()
		}()
	}
	wg.Wait()
	return sent
}

// StartupNotice is the message sent to admins when polling starts.
func StartupNotice(now time.Time) string {
	return "🤖 <b>ACS-Lite Bot Started</b>\n\n✅ Long polling mode active\n🕐 " +
		now.Format("2006-01-02 15:04:05") + "\n\nType /menu to start"
}
