package command

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/acs-lite/mikrotik-gateway/internal/model"
	"github.com/acs-lite/mikrotik-gateway/internal/routeros"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDispatcher struct {
	requests []model.ActionRequest
	result   model.ActionResult
}

func (f *fakeDispatcher) Dispatch(_ context.Context, req model.ActionRequest) model.ActionResult {
	f.requests = append(f.requests, req)
	return f.result
}

func newRouter(res model.ActionResult) (*Router, *fakeDispatcher) {
	fd := &fakeDispatcher{result: res}
	return New(fd, zerolog.Nop()), fd
}

func TestEveryCommandIsHandled(t *testing.T) {
	r, _ := newRouter(model.Succeed("ok", nil))
	for _, cmd := range All {
		switch cmd {
		case Start, Menu, Help:
			continue
		}
		_, ok := r.entries[cmd]
		assert.True(t, ok, "no handler for /%s", cmd)
	}
}

func TestRouteMapsArguments(t *testing.T) {
	r, fd := newRouter(model.Succeed("User 'alice' isolated to profile 'isolir'", nil))

	reply := r.Route(context.Background(), "/isolir", "alice @r2 isolir")
	require.Len(t, fd.requests, 1)
	req := fd.requests[0]
	assert.Equal(t, "isolir", req.Action)
	assert.Equal(t, "r2", req.DeviceID)
	assert.Equal(t, "telegram", req.Source)
	assert.Equal(t, model.Params{"username": "alice", "profile": "isolir"}, req.Params)
	assert.Equal(t, "✅ User &#39;alice&#39; isolated to profile &#39;isolir&#39;", reply.Text)
}

func TestRouteValidationShowsUsage(t *testing.T) {
	r, fd := newRouter(model.Fail(http.StatusBadRequest, "Username and profile required"))
	reply := r.Route(context.Background(), "/SetProfile", "alice")
	assert.Equal(t, model.Params{"username": "alice"}, fd.requests[0].Params)
	assert.Contains(t, reply.Text, "❌ Username and profile required")
	assert.Contains(t, reply.Text, "/setprofile &lt;username&gt; &lt;profile&gt;")
}

func TestRouteDeviceErrorIsEscaped(t *testing.T) {
	r, _ := newRouter(model.Fail(http.StatusInternalServerError, "failure: <bad> input"))
	reply := r.Route(context.Background(), "kick", "bob")
	assert.Equal(t, "❌ failure: &lt;bad&gt; input", reply.Text)
}

func TestMenuAndHelpDoNotDispatch(t *testing.T) {
	r, fd := newRouter(model.Succeed("", nil))

	reply := r.Route(context.Background(), "/start", "")
	require.NotNil(t, reply.Keyboard)
	for _, row := range reply.Keyboard.InlineKeyboard {
		for _, b := range row {
			assert.True(t, strings.HasPrefix(b.CallbackData, CallbackPrefix))
		}
	}

	reply = r.Route(context.Background(), "/help", "")
	assert.Contains(t, reply.Text, "/voucher &lt;profile&gt; [count] [length]")
	assert.Empty(t, fd.requests)
}

func TestUnknownCommand(t *testing.T) {
	r, fd := newRouter(model.Succeed("", nil))
	reply := r.Route(context.Background(), "/reboot", "")
	assert.Contains(t, reply.Text, "Unknown command")
	assert.Empty(t, fd.requests)
}

func TestRouteCallback(t *testing.T) {
	r, fd := newRouter(model.Succeed("", map[string]any{
		"active": []routeros.Record{{"name": "alice", "address": "10.1.0.2", "uptime": "1h"}},
		"count":  1,
	}))

	reply, ok := r.RouteCallback(context.Background(), "cmd:active")
	require.True(t, ok)
	assert.Equal(t, "active", fd.requests[0].Action)
	assert.Contains(t, reply.Text, "<code>alice</code> | 10.1.0.2 | 1h")

	_, ok = r.RouteCallback(context.Background(), "noop")
	assert.False(t, ok)
}

func TestVoucherRender(t *testing.T) {
	r, fd := newRouter(model.Succeed("2 voucher(s) generated for profile 'basic'", map[string]any{
		"vouchers": []string{"1234", "5678"},
		"count":    2,
	}))
	reply := r.Route(context.Background(), "/voucher", "basic 3 4")
	assert.Equal(t, model.Params{"profile": "basic", "count": "3", "length": "4"}, fd.requests[0].Params)
	assert.Contains(t, reply.Text, "<code>1234</code>")
	assert.Contains(t, reply.Text, "<code>5678</code>")
}

func TestTruncate(t *testing.T) {
	short := "hello"
	assert.Equal(t, short, Truncate(short))

	long := strings.Repeat("• <code>user</code> | profile\n", 400)
	out := Truncate(long)
	assert.LessOrEqual(t, utf8.RuneCountInString(out), MaxMessageLength)
	assert.True(t, strings.HasSuffix(out, "(truncated)"))
	assert.Equal(t, strings.Count(out, "<code>"), strings.Count(out, "</code>"))
}

func TestListingHandlesEmpty(t *testing.T) {
	r, _ := newRouter(model.Succeed("", map[string]any{"leases": []routeros.Record{}, "count": 0}))
	reply := r.Route(context.Background(), "/leases", "")
	assert.Contains(t, reply.Text, "(0)")
	assert.Contains(t, reply.Text, "<i>none</i>")
}

func TestHistoryNamesJournal(t *testing.T) {
	r, _ := newRouter(model.Succeed("", map[string]any{
		"data":    []*model.ActionLog{{Action: "isolir", Target: "alice", RouterID: "r1", Success: true}},
		"total":   1,
		"journal": "telegram-bot",
	}))
	reply := r.Route(context.Background(), "/history", "")
	assert.Contains(t, reply.Text, "(1 total)")
	assert.Contains(t, reply.Text, "through telegram-bot only")
	assert.Contains(t, reply.Text, "<code>isolir</code> alice r1")
}
