// Package action maps management action names to validated router
// operations executed inside a scoped session.
package action

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/acs-lite/mikrotik-gateway/internal/broker"
	"github.com/acs-lite/mikrotik-gateway/internal/events"
	"github.com/acs-lite/mikrotik-gateway/internal/metrics"
	"github.com/acs-lite/mikrotik-gateway/internal/model"
	"github.com/acs-lite/mikrotik-gateway/internal/routeros"
	"github.com/acs-lite/mikrotik-gateway/internal/storage"
	"github.com/acs-lite/mikrotik-gateway/internal/voucher"
	"github.com/rs/zerolog"
)

// Action names one management operation.
type Action string

const (
	Config                Action = "config"
	SaveConfig            Action = "save_config"
	Test                  Action = "test"
	Resource              Action = "resource"
	Profiles              Action = "profiles"
	Secrets               Action = "secrets"
	Active                Action = "active"
	Isolate               Action = "isolir"
	Restore               Action = "unisolir"
	ChangeProfile         Action = "change_profile"
	Disconnect            Action = "disconnect"
	AddUser               Action = "add_user"
	DeleteUser            Action = "delete_user"
	AddSecret             Action = "add_secret"
	DeleteSecret          Action = "delete_secret"
	AddPPPProfile         Action = "add_pppoe_profile"
	DeletePPPProfile      Action = "delete_pppoe_profile"
	HotspotActive         Action = "hotspot_active"
	HotspotUsers          Action = "hotspot_users"
	HotspotProfiles       Action = "hotspot_profiles"
	HotspotServerProfiles Action = "hotspot_server_profiles"
	AddHotspotUser        Action = "add_hotspot_user"
	DisconnectHotspot     Action = "disconnect_hotspot"
	DisableHotspotUser    Action = "disable_hotspot_user"
	EnableHotspotUser     Action = "enable_hotspot_user"
	DeleteHotspotUser     Action = "delete_hotspot_user"
	AddHotspotProfile     Action = "add_hotspot_profile"
	DeleteHotspotProfile  Action = "delete_hotspot_profile"
	AddServerProfile      Action = "add_server_profile"
	DeleteServerProfile   Action = "delete_server_profile"
	GenerateVoucher       Action = "generate_voucher"
	Ping                  Action = "ping"
	Interfaces            Action = "interfaces"
	Log                   Action = "log"
	Traffic               Action = "traffic"
	DHCPLeases            Action = "dhcp_leases"
	History               Action = "history"
)

// All lists every action in directory order.
var All = []Action{
	Test, Resource, Profiles, Secrets, Active,
	Isolate, Restore, ChangeProfile, Disconnect, AddUser, DeleteUser,
	AddPPPProfile, DeletePPPProfile,
	HotspotActive, HotspotUsers, AddHotspotUser, DisconnectHotspot,
	DisableHotspotUser, EnableHotspotUser, DeleteHotspotUser,
	HotspotProfiles, HotspotServerProfiles, AddHotspotProfile, DeleteHotspotProfile,
	AddServerProfile, DeleteServerProfile,
	AddSecret, DeleteSecret, GenerateVoucher,
	Ping, Interfaces, Log, Traffic, DHCPLeases,
	History, Config, SaveConfig,
}

// Registry is the subset of the device registry used by config actions.
type Registry interface {
	Load(ctx context.Context) (model.RouterConfig, error)
	Update(ctx context.Context, patches []model.ProfilePatch) (model.RouterConfig, error)
}

// Sessions runs fn inside one router session.
type Sessions interface {
	With(ctx context.Context, id string, fn func(ctx context.Context, h *broker.Handle) error) error
}

// Vouchers provisions voucher batches.
type Vouchers interface {
	Generate(ctx context.Context, req voucher.Request) (*model.VoucherBatch, error)
}

// Deps bundles the collaborators of a Dispatcher. Journal and Events are
// optional.
type Deps struct {
	Registry Registry
	Sessions Sessions
	Vouchers Vouchers
	Journal  storage.Journal
	// JournalScope names the process whose journal this is. Each process
	// keeps its own, so history only lists actions made through it.
	JournalScope string
	Events       events.Publisher
	Log          zerolog.Logger
}

// Dispatcher validates and executes actions.
type Dispatcher struct {
	registry Registry
	sessions Sessions
	vouchers Vouchers
	journal  storage.Journal
	scope    string
	events   events.Publisher
	log      zerolog.Logger
	defs     map[Action]definition
}

// New builds a Dispatcher.
func New(deps Deps) *Dispatcher {
	d := &Dispatcher{
		registry: deps.Registry,
		sessions: deps.Sessions,
		vouchers: deps.Vouchers,
		journal:  deps.Journal,
		scope:    deps.JournalScope,
		events:   deps.Events,
		log:      deps.Log,
	}
	if d.events == nil {
		d.events = events.Nop{}
	}
	d.defs = d.definitions()
	return d
}

// Dispatch validates req, runs it and returns the structured result. It
// never returns both a payload and an error.
func (d *Dispatcher) Dispatch(ctx context.Context, req model.ActionRequest) model.ActionResult {
	name := Action(strings.TrimSpace(req.Action))
	def, ok := d.defs[name]
	if !ok {
		return d.directory()
	}
	if req.Params == nil {
		req.Params = model.Params{}
	}

	started := time.Now()
	res := d.run(ctx, name, def, req)
	metrics.ObserveAction(string(name), res.Success, time.Since(started))

	logEvt := d.log.Info()
	if !res.Success {
		logEvt = d.log.Warn().Int("status", res.Status).Str("error", res.Error)
	}
	logEvt.Str("action", string(name)).
		Str("router", req.DeviceID).
		Str("source", req.Source).
		Dur("took", time.Since(started)).
		Msg("action dispatched")

	if def.mutating && res.Status != http.StatusBadRequest {
		d.record(ctx, name, def, req, res)
	}
	return res
}

func (d *Dispatcher) run(ctx context.Context, name Action, def definition, req model.ActionRequest) model.ActionResult {
	if err := def.validate(req.Params); err != nil {
		return model.Fail(http.StatusBadRequest, err.Error())
	}
	res, err := def.run(ctx, req)
	if err != nil {
		return d.failure(name, def, err)
	}
	return res
}

func (d *Dispatcher) failure(name Action, def definition, err error) model.ActionResult {
	var (
		verr *ValidationError
		cerr *broker.ConnectionError
	)
	switch {
	case errors.As(err, &verr):
		return model.Fail(http.StatusBadRequest, verr.Message)
	case errors.As(err, &cerr):
		return model.Fail(http.StatusInternalServerError, cerr.Error())
	case errors.Is(err, voucher.ErrNoVouchers):
		return model.Fail(http.StatusInternalServerError, "Failed to generate vouchers")
	case routeros.IsDeviceError(err):
		return model.Fail(http.StatusInternalServerError, routeros.DeviceMessage(err))
	}
	d.log.Error().Err(err).Str("action", string(name)).Msg("action failed")
	msg := err.Error()
	if msg == "" {
		msg = def.failure
	}
	if msg == "" {
		msg = "Request failed"
	}
	return model.Fail(http.StatusInternalServerError, msg)
}

func (d *Dispatcher) record(ctx context.Context, name Action, def definition, req model.ActionRequest, res model.ActionResult) {
	target := ""
	if def.target != "" {
		target = req.Params.String(def.target)
	}
	msg := res.Message
	if !res.Success {
		msg = res.Error
	}
	if d.journal != nil {
		entry := &model.ActionLog{
			Action:   string(name),
			RouterID: req.DeviceID,
			Target:   target,
			Source:   req.Source,
			Success:  res.Success,
			Message:  msg,
		}
		if err := d.journal.AppendActionLog(ctx, entry); err != nil {
			d.log.Warn().Err(err).Str("action", string(name)).Msg("append action log failed")
		}
	}
	ev := events.NewEvent(string(name), req.DeviceID, target, req.Source, res.Success, msg)
	if err := d.events.Publish(ctx, ev); err != nil {
		d.log.Warn().Err(err).Str("action", string(name)).Msg("publish action event failed")
	}
}

// Endpoint is one directory entry.
type Endpoint struct {
	Action  string `json:"action"`
	Verb    string `json:"method"`
	Group   string `json:"group"`
	Summary string `json:"description"`
}

// Directory lists every action with its verb.
func (d *Dispatcher) Directory() []Endpoint {
	out := make([]Endpoint, 0, len(All))
	for _, name := range All {
		def := d.defs[name]
		out = append(out, Endpoint{Action: string(name), Verb: def.verb, Group: def.group, Summary: def.summary})
	}
	return out
}

func (d *Dispatcher) directory() model.ActionResult {
	return model.Succeed("MikroTik API", map[string]any{"endpoints": d.Directory()})
}

// withSession runs fn in a session on req's router and returns its result.
func (d *Dispatcher) withSession(ctx context.Context, req model.ActionRequest, fn func(ctx context.Context, h *broker.Handle) (model.ActionResult, error)) (model.ActionResult, error) {
	var res model.ActionResult
	err := d.sessions.With(ctx, req.DeviceID, func(ctx context.Context, h *broker.Handle) error {
		var err error
		res, err = fn(ctx, h)
		return err
	})
	if err != nil {
		return model.ActionResult{}, err
	}
	return res, nil
}

func list(key string, recs []routeros.Record) map[string]any {
	if recs == nil {
		recs = []routeros.Record{}
	}
	return map[string]any{key: recs, "count": len(recs)}
}

func mask(recs []routeros.Record, field string) []routeros.Record {
	for _, r := range recs {
		r[field] = model.MaskSentinel
	}
	return recs
}
