package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/acs-lite/mikrotik-gateway/internal/bot"
	"github.com/acs-lite/mikrotik-gateway/internal/config"
	"github.com/acs-lite/mikrotik-gateway/internal/metrics"
	"github.com/acs-lite/mikrotik-gateway/internal/model"
	"github.com/acs-lite/mikrotik-gateway/internal/telegram"
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

type fakeWebhook struct {
	updates []telegram.Update
	err     error
}

func (f *fakeWebhook) Process(_ context.Context, u telegram.Update) (bot.Outcome, error) {
	f.updates = append(f.updates, u)
	return bot.Routed, f.err
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Metrics.Enabled = true
	cfg.Metrics.Path = "/metrics"
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config, res model.ActionResult, webhook UpdateProcessor) (*Server, *fakeDispatcher) {
	t.Helper()
	fd := &fakeDispatcher{result: res}
	return New(cfg, fd, webhook, zerolog.Nop()), fd
}

func do(t *testing.T, s *Server, req *http.Request) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body map[string]any
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &body))
	}
	return resp, body
}

func TestActionFromQuery(t *testing.T) {
	s, fd := newTestServer(t, testConfig(), model.Succeed("Connected successfully", map[string]any{"router": map[string]any{"id": "r2"}}), nil)

	resp, body := do(t, s, httptest.NewRequest(http.MethodGet, "/api/mikrotik?action=test&router=r2", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Connected successfully", body["message"])

	require.Len(t, fd.requests, 1)
	assert.Equal(t, "test", fd.requests[0].Action)
	assert.Equal(t, "r2", fd.requests[0].DeviceID)
	assert.Equal(t, "http", fd.requests[0].Source)
	assert.Empty(t, fd.requests[0].Params)
}

func TestActionBodyWinsOverQuery(t *testing.T) {
	s, fd := newTestServer(t, testConfig(), model.Succeed("ok", nil), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/mikrotik?action=profiles&router=r1&username=bob",
		strings.NewReader(`{"action":"isolir","username":"alice","count":3}`))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := do(t, s, req)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	got := fd.requests[0]
	assert.Equal(t, "isolir", got.Action)
	assert.Equal(t, "r1", got.DeviceID)
	assert.Equal(t, "alice", got.Params.String("username"))
	assert.Equal(t, 3, got.Params.Int("count", 0))
	assert.NotContains(t, got.Params, "action")
}

func TestActionFormBody(t *testing.T) {
	s, fd := newTestServer(t, testConfig(), model.Succeed("ok", nil), nil)

	form := url.Values{"action": {"add_user"}, "username": {"carol"}, "password": {"pw"}}
	req := httptest.NewRequest(http.MethodPost, "/api/mikrotik.php", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	do(t, s, req)

	require.Len(t, fd.requests, 1)
	assert.Equal(t, "add_user", fd.requests[0].Action)
	assert.Equal(t, "carol", fd.requests[0].Params.String("username"))
	assert.Equal(t, "pw", fd.requests[0].Params.String("password"))
}

func TestActionStatusComesFromResult(t *testing.T) {
	s, _ := newTestServer(t, testConfig(), model.Fail(http.StatusBadRequest, "Username required"), nil)

	resp, body := do(t, s, httptest.NewRequest(http.MethodGet, "/api/mikrotik?action=isolir", nil))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Username required", body["error"])
}

func TestCORSPreflight(t *testing.T) {
	s, fd := newTestServer(t, testConfig(), model.Succeed("ok", nil), nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/mikrotik", nil)
	req.Header.Set("Origin", "http://billing.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, _ := do(t, s, req)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Empty(t, fd.requests)
}

func TestHealthAndMetrics(t *testing.T) {
	metrics.Init()
	s, _ := newTestServer(t, testConfig(), model.Succeed("ok", nil), nil)

	resp, body := do(t, s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	resp, err := s.app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "acs_poll_cursor")
}

func TestWebhookNotRegisteredWithoutProcessor(t *testing.T) {
	s, _ := newTestServer(t, testConfig(), model.Succeed("ok", nil), nil)

	resp, _ := do(t, s, httptest.NewRequest(http.MethodPost, "/telegram/webhook", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebhookChecksSecret(t *testing.T) {
	cfg := testConfig()
	cfg.Telegram.WebhookSecret = "s3cret"
	wh := &fakeWebhook{}
	s, _ := newTestServer(t, cfg, model.Succeed("ok", nil), wh)

	body := `{"update_id":42,"message":{"message_id":1,"chat":{"id":100,"type":"private"},"date":0,"text":"/status"}}`

	req := httptest.NewRequest(http.MethodPost, "/telegram/webhook", strings.NewReader(body))
	resp, _ := do(t, s, req)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Empty(t, wh.updates)

	req = httptest.NewRequest(http.MethodPost, "/telegram/webhook", strings.NewReader(body))
	req.Header.Set(webhookSecretHeader, "s3cret")
	resp, _ = do(t, s, req)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, wh.updates, 1)
	assert.Equal(t, int64(42), wh.updates[0].UpdateID)
	assert.Equal(t, "/status", wh.updates[0].Message.Text)
}

func TestWebhookFailureAsksForRedelivery(t *testing.T) {
	wh := &fakeWebhook{err: errors.New("send failed")}
	s, _ := newTestServer(t, testConfig(), model.Succeed("ok", nil), wh)

	req := httptest.NewRequest(http.MethodPost, "/telegram/webhook", strings.NewReader(`{"update_id":7}`))
	resp, _ := do(t, s, req)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	req = httptest.NewRequest(http.MethodPost, "/telegram/webhook", strings.NewReader(`not json`))
	resp, _ = do(t, s, req)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
