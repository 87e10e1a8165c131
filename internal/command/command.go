// Package command turns chat commands into dispatcher requests and renders
// the results as Telegram HTML replies.
package command

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/acs-lite/mikrotik-gateway/internal/action"
	"github.com/acs-lite/mikrotik-gateway/internal/model"
	"github.com/acs-lite/mikrotik-gateway/internal/telegram"
	"github.com/rs/zerolog"
)

// MaxMessageLength is Telegram's limit for one message text.
const MaxMessageLength = 4096

// CallbackPrefix marks inline-button data routed as a command.
const CallbackPrefix = "cmd:"

// Command is a chat command without its leading slash.
type Command string

const (
	Start      Command = "start"
	Menu       Command = "menu"
	Help       Command = "help"
	Status     Command = "status"
	Resource   Command = "resource"
	Routers    Command = "routers"
	Profiles   Command = "profiles"
	Secrets    Command = "secrets"
	Active     Command = "active"
	Isolate    Command = "isolir"
	Restore    Command = "unisolir"
	SetProfile Command = "setprofile"
	Kick       Command = "kick"
	AddSecret  Command = "addsecret"
	DelSecret  Command = "delsecret"
	Hotspot    Command = "hotspot"
	HSUsers    Command = "hsusers"
	AddHS      Command = "addhs"
	DelHS      Command = "delhs"
	Voucher    Command = "voucher"
	Ping       Command = "ping"
	Interfaces Command = "interfaces"
	Log        Command = "log"
	Traffic    Command = "traffic"
	Leases     Command = "leases"
	History    Command = "history"
)

// All lists every command in help order.
var All = []Command{
	Start, Menu, Help,
	Status, Resource, Routers,
	Profiles, Secrets, Active, Isolate, Restore, SetProfile, Kick, AddSecret, DelSecret,
	Hotspot, HSUsers, AddHS, DelHS, Voucher,
	Ping, Interfaces, Log, Traffic, Leases, History,
}

// Dispatcher executes management actions.
type Dispatcher interface {
	Dispatch(ctx context.Context, req model.ActionRequest) model.ActionResult
}

// Reply is the text and optional keyboard to send back.
type Reply struct {
	Text     string
	Keyboard *telegram.InlineKeyboardMarkup
}

type entry struct {
	usage   string
	summary string
	action  action.Action
	params  func(args []string) model.Params
	render  func(res model.ActionResult) string
}

// Router maps commands onto the dispatcher.
type Router struct {
	dispatcher Dispatcher
	entries    map[Command]entry
	log        zerolog.Logger
}

// New builds a Router.
func New(dispatcher Dispatcher, log zerolog.Logger) *Router {
	return &Router{dispatcher: dispatcher, entries: entries(), log: log}
}

// Route executes command (with or without leading slash) and returns the
// reply. An "@<router-id>" argument selects the router.
func (r *Router) Route(ctx context.Context, command, args string) Reply {
	cmd := Command(strings.ToLower(strings.TrimPrefix(strings.TrimSpace(command), "/")))
	fields, routerID := splitArgs(args)

	switch cmd {
	case Start, Menu:
		return Reply{Text: menuText(), Keyboard: MenuKeyboard()}
	case Help:
		return Reply{Text: r.helpText()}
	}

	e, ok := r.entries[cmd]
	if !ok {
		return Reply{Text: "❓ Unknown command. Type /help to see the available commands."}
	}
	params := model.Params{}
	if e.params != nil {
		params = e.params(fields)
	}
	res := r.dispatcher.Dispatch(ctx, model.ActionRequest{
		Action:   string(e.action),
		DeviceID: routerID,
		Params:   params,
		Source:   "telegram",
	})
	if !res.Success {
		text := "❌ " + html.EscapeString(res.Error)
		if e.usage != "" && res.Status == 400 {
			text += "\nUsage: <code>" + html.EscapeString(e.usage) + "</code>"
		}
		return Reply{Text: text}
	}
	render := e.render
	if render == nil {
		render = renderMessage
	}
	return Reply{Text: Truncate(render(res))}
}

// RouteCallback routes inline-button data of the form "cmd:<command> <args>".
func (r *Router) RouteCallback(ctx context.Context, data string) (Reply, bool) {
	if !strings.HasPrefix(data, CallbackPrefix) {
		return Reply{}, false
	}
	command, args, _ := strings.Cut(strings.TrimPrefix(data, CallbackPrefix), " ")
	return r.Route(ctx, command, args), true
}

func splitArgs(args string) ([]string, string) {
	var (
		fields   []string
		routerID string
	)
	for _, f := range strings.Fields(args) {
		if strings.HasPrefix(f, "@") && len(f) > 1 && routerID == "" {
			routerID = f[1:]
			continue
		}
		fields = append(fields, f)
	}
	return fields, routerID
}

func arg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

// named maps positional args onto param keys; missing ones are omitted.
func named(keys ...string) func([]string) model.Params {
	return func(args []string) model.Params {
		p := model.Params{}
		for i, k := range keys {
			if v := arg(args, i); v != "" {
				p[k] = v
			}
		}
		return p
	}
}

func (r *Router) helpText() string {
	var b strings.Builder
	b.WriteString("📖 <b>Commands</b>\n")
	b.WriteString("/menu - main menu\n")
	for _, cmd := range All {
		e, ok := r.entries[cmd]
		if !ok {
			continue
		}
		usage := e.usage
		if usage == "" {
			usage = "/" + string(cmd)
		}
		fmt.Fprintf(&b, "%s - %s\n", html.EscapeString(usage), html.EscapeString(e.summary))
	}
	b.WriteString("\nAppend <code>@router-id</code> to target a specific router.")
	return b.String()
}

func menuText() string {
	return "🤖 <b>ACS-Lite MikroTik Bot</b>\n\nChoose an action below or type /help."
}

// MenuKeyboard is the main inline menu.
func MenuKeyboard() *telegram.InlineKeyboardMarkup {
	btn := func(text string, cmd Command) telegram.InlineKeyboardButton {
		return telegram.InlineKeyboardButton{Text: text, CallbackData: CallbackPrefix + string(cmd)}
	}
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{
		{btn("📡 Status", Status), btn("📊 Resource", Resource)},
		{btn("👥 PPPoE Active", Active), btn("🔑 Secrets", Secrets)},
		{btn("📶 Hotspot Active", Hotspot), btn("🎫 Hotspot Users", HSUsers)},
		{btn("🔌 Interfaces", Interfaces), btn("📜 Log", Log)},
		{btn("🖧 Routers", Routers), btn("🕘 History", History)},
	}}
}

// Truncate cuts text at a line boundary so it fits one message.
func Truncate(text string) string {
	const marker = "\n… (truncated)"
	runes := []rune(text)
	if len(runes) <= MaxMessageLength {
		return text
	}
	cut := string(runes[:MaxMessageLength-len([]rune(marker))])
	if i := strings.LastIndex(cut, "\n"); i > 0 {
		cut = cut[:i]
	}
	return cut + marker
}
