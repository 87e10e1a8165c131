package action

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/acs-lite/mikrotik-gateway/internal/broker"
	"github.com/acs-lite/mikrotik-gateway/internal/model"
	"github.com/acs-lite/mikrotik-gateway/internal/registry"
	"github.com/acs-lite/mikrotik-gateway/internal/routeros"
	"github.com/acs-lite/mikrotik-gateway/internal/routeros/routerostest"
	boltstore "github.com/acs-lite/mikrotik-gateway/internal/storage/bolt"
	"github.com/acs-lite/mikrotik-gateway/internal/storage/file"
	"github.com/acs-lite/mikrotik-gateway/internal/voucher"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	d        *Dispatcher
	session  *routerostest.Session
	dialer   *routerostest.Dialer
	registry *registry.Registry
	journal  *boltstore.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := file.New(t.TempDir())
	require.NoError(t, err)
	journal, err := boltstore.New(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { journal.Close() })

	reg := registry.New(store, model.DeviceProfile{
		ID: "r1", Name: "Main Router", Address: "10.0.0.1", Port: 8728,
		Username: "api", Password: "s3cret", IsolationProfile: "isolir-r1", DefaultProfile: "home-10m",
	}, zerolog.Nop())
	session := routerostest.NewSession()
	dialer := &routerostest.Dialer{Session: session}
	b := broker.New(reg, dialer, zerolog.Nop())

	d := New(Deps{
		Registry: reg,
		Sessions: b,
		Vouchers: voucher.New(b, "vc-acs", zerolog.Nop()),
		Journal:  journal,
		Log:      zerolog.Nop(),
	})
	return &fixture{d: d, session: session, dialer: dialer, registry: reg, journal: journal}
}

func (f *fixture) dispatch(action string, params model.Params) model.ActionResult {
	return f.d.Dispatch(context.Background(), model.ActionRequest{Action: action, Params: params, Source: "test"})
}

func TestEveryActionIsRegistered(t *testing.T) {
	d := New(Deps{Log: zerolog.Nop()})
	seen := map[Action]bool{}
	for _, a := range All {
		assert.False(t, seen[a], "duplicate %s", a)
		seen[a] = true
		def, ok := d.defs[a]
		if assert.True(t, ok, "missing definition for %s", a) {
			assert.NotNil(t, def.run, a)
			assert.NotEmpty(t, def.verb, a)
			if len(def.required) > 0 {
				assert.NotEmpty(t, def.missing, a)
			}
		}
	}
	assert.Len(t, d.defs, len(All))
}

func TestUnknownActionReturnsDirectory(t *testing.T) {
	f := newFixture(t)
	res := f.dispatch("does_not_exist", nil)
	require.True(t, res.Success)
	assert.Equal(t, http.StatusOK, res.Status)
	endpoints, ok := res.Payload["endpoints"].([]Endpoint)
	require.True(t, ok)
	assert.Len(t, endpoints, len(All))
	assert.Zero(t, f.dialer.Dials())
}

func TestValidationHappensBeforeDial(t *testing.T) {
	tests := []struct {
		action string
		params model.Params
		want   string
	}{
		{"isolir", model.Params{"username": "  "}, "Username required"},
		{"unisolir", nil, "Username required"},
		{"change_profile", model.Params{"username": "alice"}, "Username and profile required"},
		{"add_user", model.Params{"username": "alice"}, "Username and password required"},
		{"add_secret", model.Params{"password": "x"}, "Name and password required"},
		{"add_pppoe_profile", nil, "Profile name required"},
		{"generate_voucher", model.Params{"count": 3}, "Profile required"},
		{"ping", nil, "Address required"},
		{"save_config", nil, "No routers data"},
		{"save_config", model.Params{"routers": []any{}}, "No routers data"},
		{"save_config", model.Params{"routers": "not json"}, "Invalid routers data"},
	}
	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			f := newFixture(t)
			res := f.dispatch(tt.action, tt.params)
			assert.False(t, res.Success)
			assert.Equal(t, http.StatusBadRequest, res.Status)
			assert.Equal(t, tt.want, res.Error)
			assert.Zero(t, f.dialer.Dials())
			assert.Empty(t, f.session.Calls())
		})
	}
}

func TestIsolateUsesRouterDefaultAndKicks(t *testing.T) {
	f := newFixture(t)
	f.session.
		Reply("/ppp/secret/print", routeros.Record{".id": "*5"}).
		Reply("/ppp/active/print", routeros.Record{".id": "*9"})

	res := f.dispatch("isolir", model.Params{"username": "alice"})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "User 'alice' isolated to profile 'isolir-r1'", res.Message)
	assert.Equal(t, 1, res.Payload["kicked"])

	set := f.session.CallsTo("/ppp/secret/set")
	require.Len(t, set, 1)
	assert.Equal(t, "isolir-r1", routerostest.Arg(set[0].Args, "profile"))
	assert.Len(t, f.session.CallsTo("/ppp/active/remove"), 1)
	assert.Equal(t, 1, f.session.Closed())
}

func TestRestoreCallerProfileWins(t *testing.T) {
	f := newFixture(t)
	f.session.Reply("/ppp/secret/print", routeros.Record{".id": "*5"})

	res := f.dispatch("unisolir", model.Params{"username": "alice", "profile": "home-20m"})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "User 'alice' restored to profile 'home-20m'", res.Message)
}

func TestIsolateSurvivesKickFailure(t *testing.T) {
	f := newFixture(t)
	f.session.
		Reply("/ppp/secret/print", routeros.Record{".id": "*5"}).
		Fail("/ppp/active/print", &routeros.DeviceError{Message: "not permitted"})

	res := f.dispatch("isolir", model.Params{"username": "alice"})
	assert.True(t, res.Success)
}

func TestDeviceErrorPassesThrough(t *testing.T) {
	f := newFixture(t)
	res := f.dispatch("isolir", model.Params{"username": "ghost"})
	assert.False(t, res.Success)
	assert.Equal(t, http.StatusInternalServerError, res.Status)
	assert.Contains(t, res.Error, "no such item")
	assert.Equal(t, 1, f.session.Closed())
}

func TestConnectionFailure(t *testing.T) {
	f := newFixture(t)
	f.dialer.Err = errors.New("cannot log in")
	res := f.dispatch("profiles", nil)
	assert.False(t, res.Success)
	assert.Equal(t, http.StatusInternalServerError, res.Status)
	assert.Equal(t, "Connection failed: cannot log in", res.Error)
}

func TestUnknownRouter(t *testing.T) {
	f := newFixture(t)
	res := f.d.Dispatch(context.Background(), model.ActionRequest{Action: "test", DeviceID: "nope"})
	assert.Equal(t, http.StatusInternalServerError, res.Status)
	assert.Equal(t, "No router configured", res.Error)
}

func TestDisconnectWithoutActiveSession(t *testing.T) {
	f := newFixture(t)
	res := f.dispatch("disconnect", model.Params{"username": "idle"})
	require.True(t, res.Success)
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, "User 'idle' disconnected", res.Message)
	assert.Equal(t, 0, res.Payload["sessions"])
}

func TestListingsMaskSecrets(t *testing.T) {
	f := newFixture(t)
	f.session.
		Reply("/ppp/secret/print", routeros.Record{"name": "alice", "password": "hunter2"}).
		Reply("/ip/hotspot/user/print", routeros.Record{"name": "12345", "password": "12345"})

	res := f.dispatch("secrets", nil)
	require.True(t, res.Success)
	secrets := res.Payload["secrets"].([]routeros.Record)
	assert.Equal(t, model.MaskSentinel, secrets[0]["password"])
	assert.Equal(t, 1, res.Payload["count"])

	res = f.dispatch("hotspot_users", nil)
	users := res.Payload["users"].([]routeros.Record)
	assert.Equal(t, model.MaskSentinel, users[0]["password"])
}

func TestDiagnosticCaps(t *testing.T) {
	f := newFixture(t)

	res := f.dispatch("ping", model.Params{"address": "8.8.8.8", "count": 50})
	require.True(t, res.Success)
	assert.Equal(t, "10", routerostest.Arg(f.session.CallsTo("/ping")[0].Args, "count"))

	res = f.dispatch("ping", model.Params{"address": "8.8.8.8"})
	require.True(t, res.Success)
	assert.Equal(t, "4", routerostest.Arg(f.session.CallsTo("/ping")[1].Args, "count"))

	var logs []routeros.Record
	for i := 0; i < 150; i++ {
		logs = append(logs, routeros.Record{"message": "x"})
	}
	f.session.Reply("/log/print", logs...)
	res = f.dispatch("log", model.Params{"limit": 500})
	assert.Equal(t, 100, res.Payload["count"])
	res = f.dispatch("log", nil)
	assert.Equal(t, 20, res.Payload["count"])

	res = f.dispatch("traffic", nil)
	assert.Equal(t, "ether1", res.Payload["interface"])
}

func TestSaveConfigKeepsMaskedSecret(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := f.dispatch("save_config", model.Params{"routers": []any{
		map[string]any{"id": "r1", "password": model.MaskSentinel, "name": "Core"},
	}})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "Configuration saved", res.Message)

	cfg, err := f.registry.Load(ctx)
	require.NoError(t, err)
	require.Len(t, cfg.Routers, 1)
	assert.Equal(t, "s3cret", cfg.Routers[0].Password)
	assert.Equal(t, "Core", cfg.Routers[0].Name)

	res = f.dispatch("config", nil)
	raw, err := json.Marshal(res)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "s3cret")
	assert.Contains(t, string(raw), model.MaskSentinel)
}

func TestSaveConfigAcceptsEncodedString(t *testing.T) {
	f := newFixture(t)
	res := f.dispatch("save_config", model.Params{"routers": `[{"id":"r2","ip":"10.0.0.2","password":"pw"}]`})
	require.True(t, res.Success, res.Error)
	cfg, err := f.registry.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, cfg.Routers, 2)
}

func TestGenerateVoucherReportsActualCount(t *testing.T) {
	f := newFixture(t)
	adds := 0
	f.session.On("/ip/hotspot/user/add", func([]string) ([]routeros.Record, error) {
		adds++
		if adds == 2 {
			return nil, &routeros.DeviceError{Message: "failure: already have user with this name"}
		}
		return nil, nil
	})

	res := f.dispatch("generate_voucher", model.Params{"profile": "basic", "count": 3, "length": 4})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, 2, res.Payload["count"])
	assert.Len(t, res.Payload["vouchers"], 2)
	assert.Equal(t, "2 voucher(s) generated for profile 'basic'", res.Message)
	assert.Equal(t, 1, f.dialer.Dials())
}

func TestGenerateVoucherReportsCappedLength(t *testing.T) {
	f := newFixture(t)
	res := f.dispatch("generate_voucher", model.Params{"profile": "basic", "count": 1, "length": 100})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, voucher.MaxLength, res.Payload["length"])
	codes := res.Payload["vouchers"].([]string)
	require.Len(t, codes, 1)
	assert.Len(t, codes[0], voucher.MaxLength)
}

func TestGenerateVoucherAllRejected(t *testing.T) {
	f := newFixture(t)
	f.session.Fail("/ip/hotspot/user/add", &routeros.DeviceError{Message: "input does not match any value of profile"})
	res := f.dispatch("generate_voucher", model.Params{"profile": "basic", "count": 2})
	assert.False(t, res.Success)
	assert.Equal(t, "Failed to generate vouchers", res.Error)
}

func TestMutatingActionsAreJournalled(t *testing.T) {
	f := newFixture(t)
	f.session.Reply("/ppp/secret/print", routeros.Record{".id": "*1"})

	f.dispatch("isolir", model.Params{"username": "alice"})
	f.dispatch("isolir", model.Params{"username": ""})
	f.dispatch("profiles", nil)
	f.dispatch("disconnect", model.Params{"username": "bob"})

	res := f.dispatch("history", nil)
	require.True(t, res.Success)
	assert.Equal(t, 2, res.Payload["total"])
	data := res.Payload["data"].([]*model.ActionLog)
	assert.Equal(t, "disconnect", data[0].Action)
	assert.Equal(t, "bob", data[0].Target)
	assert.Equal(t, "test", data[0].Source)

	page, err := f.d.QueryHistory(context.Background(), model.ActionLogFilter{Target: "ALICE"})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, "isolir", page.Data[0].Action)
}

func TestHistoryReportsJournalScope(t *testing.T) {
	journal, err := boltstore.New(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { journal.Close() })
	d := New(Deps{Journal: journal, JournalScope: "mikrotik-gateway", Log: zerolog.Nop()})

	res := d.Dispatch(context.Background(), model.ActionRequest{Action: "history"})
	require.True(t, res.Success)
	assert.Equal(t, "mikrotik-gateway", res.Payload["journal"])
	assert.Equal(t, 0, res.Payload["total"])
}

func TestHistoryPagination(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 25; i++ {
		f.dispatch("disconnect", model.Params{"username": "u"})
	}
	page, err := f.d.QueryHistory(context.Background(), model.ActionLogFilter{Page: 3, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 25, page.Total)
	assert.Equal(t, 3, page.Pages)
	assert.Len(t, page.Data, 5)

	page, err = f.d.QueryHistory(context.Background(), model.ActionLogFilter{Page: 9})
	require.NoError(t, err)
	assert.Empty(t, page.Data)
}
