package action

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/acs-lite/mikrotik-gateway/internal/model"
	"github.com/acs-lite/mikrotik-gateway/internal/routeros"
)

// ValidationError rejects a request before any router is contacted.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(msg string) error { return &ValidationError{Message: msg} }

type handler func(ctx context.Context, req model.ActionRequest) (model.ActionResult, error)

type definition struct {
	verb    string
	group   string
	summary string
	// required params, all rejected with missing when absent or blank
	required []string
	missing  string
	// extra checks run after required
	check func(p model.Params) error
	// param naming the affected entity, journalled for mutating actions
	target   string
	mutating bool
	// generic message when the router gives none
	failure string
	run     handler
}

func (def definition) validate(p model.Params) error {
	for _, key := range def.required {
		if !p.Has(key) {
			return invalid(def.missing)
		}
	}
	if def.check != nil {
		return def.check(p)
	}
	return nil
}

const (
	groupPPP     = "PPPoE"
	groupProfile = "PPPoE Profile"
	groupHotspot = "Hotspot User"
	groupHSProf  = "Hotspot Profile"
	groupBot     = "Telegram Bot"
	groupTools   = "Tools"
	groupConfig  = "Config"
)

func (d *Dispatcher) definitions() map[Action]definition {
	get, post := http.MethodGet, http.MethodPost
	return map[Action]definition{
		Config: {verb: get, group: groupConfig, summary: "Get router configuration (secrets masked)", run: d.config},
		SaveConfig: {
			verb: post, group: groupConfig, summary: "Save router configuration",
			check: requireRouters, mutating: true, run: d.saveConfig,
		},
		Test:     {verb: get, group: groupPPP, summary: "Test connection to router", run: d.test},
		Resource: {verb: get, group: groupTools, summary: "Get router resource usage", run: d.resource},
		Profiles: {verb: get, group: groupPPP, summary: "Get PPPoE profiles", run: d.printer(routeros.MenuPPPProfile, "profiles", "")},
		Secrets:  {verb: get, group: groupPPP, summary: "Get PPPoE users", run: d.printer(routeros.MenuPPPSecret, "secrets", "password")},
		Active:   {verb: get, group: groupPPP, summary: "Get active PPPoE connections", run: d.printer(routeros.MenuPPPActive, "active", "")},
		Isolate: {
			verb: post, group: groupPPP, summary: "Isolir user (change to isolir profile)",
			required: []string{"username"}, missing: "Username required",
			target: "username", mutating: true, run: d.isolate,
		},
		Restore: {
			verb: post, group: groupPPP, summary: "Un-isolir user (restore profile)",
			required: []string{"username"}, missing: "Username required",
			target: "username", mutating: true, run: d.restore,
		},
		ChangeProfile: {
			verb: post, group: groupPPP, summary: "Change user profile",
			required: []string{"username", "profile"}, missing: "Username and profile required",
			target: "username", mutating: true, run: d.changeProfile,
		},
		Disconnect: {
			verb: post, group: groupPPP, summary: "Disconnect active PPPoE session",
			required: []string{"username"}, missing: "Username required",
			target: "username", mutating: true, run: d.disconnect,
		},
		AddUser: {
			verb: post, group: groupPPP, summary: "Add new PPPoE user",
			required: []string{"username", "password"}, missing: "Username and password required",
			target: "username", mutating: true, failure: "Failed to add user", run: d.addSecret("username", false),
		},
		DeleteUser: {
			verb: post, group: groupPPP, summary: "Delete PPPoE user",
			required: []string{"username"}, missing: "Username required",
			target: "username", mutating: true, run: d.deleteSecret("username", "User '%s' deleted"),
		},
		AddSecret: {
			verb: post, group: groupBot, summary: "Add PPPoE user (alias)",
			required: []string{"name", "password"}, missing: "Name and password required",
			target: "name", mutating: true, failure: "Failed to add user", run: d.addSecret("name", true),
		},
		DeleteSecret: {
			verb: post, group: groupBot, summary: "Delete PPPoE user (alias)",
			required: []string{"name"}, missing: "Username required",
			target: "name", mutating: true, run: d.deleteSecret("name", "PPPoE user '%s' deleted"),
		},
		AddPPPProfile: {
			verb: post, group: groupProfile, summary: "Add new PPPoE profile",
			required: []string{"name"}, missing: "Profile name required",
			target: "name", mutating: true, failure: "Failed to add profile", run: d.addPPPProfile,
		},
		DeletePPPProfile: {
			verb: post, group: groupProfile, summary: "Delete PPPoE profile",
			required: []string{"name"}, missing: "Profile name required",
			target: "name", mutating: true, run: d.remover(routeros.MenuPPPProfile, "PPPoE profile '%s' deleted"),
		},
		HotspotActive: {verb: get, group: groupHotspot, summary: "Get active hotspot users", run: d.printer(routeros.MenuHotspotActive, "active", "")},
		HotspotUsers:  {verb: get, group: groupHotspot, summary: "Get all hotspot users", run: d.printer(routeros.MenuHotspotUser, "users", "password")},
		AddHotspotUser: {
			verb: post, group: groupHotspot, summary: "Add new hotspot user",
			required: []string{"username", "password"}, missing: "Username and password required",
			target: "username", mutating: true, failure: "Failed to add hotspot user", run: d.addHotspotUser,
		},
		DisconnectHotspot: {
			verb: post, group: groupHotspot, summary: "Disconnect active hotspot user",
			required: []string{"username"}, missing: "Username required",
			target: "username", mutating: true, run: d.disconnectHotspot,
		},
		DisableHotspotUser: {
			verb: post, group: groupHotspot, summary: "Disable hotspot user",
			required: []string{"username"}, missing: "Username required",
			target: "username", mutating: true, run: d.setHotspotDisabled(true),
		},
		EnableHotspotUser: {
			verb: post, group: groupHotspot, summary: "Enable hotspot user",
			required: []string{"username"}, missing: "Username required",
			target: "username", mutating: true, run: d.setHotspotDisabled(false),
		},
		DeleteHotspotUser: {
			verb: post, group: groupHotspot, summary: "Delete hotspot user",
			required: []string{"username"}, missing: "Username required",
			target: "username", mutating: true, run: d.deleteHotspotUser,
		},
		HotspotProfiles:       {verb: get, group: groupHSProf, summary: "Get hotspot user profiles", run: d.printer(routeros.MenuHotspotUserProfile, "profiles", "")},
		HotspotServerProfiles: {verb: get, group: groupHSProf, summary: "Get hotspot server profiles", run: d.printer(routeros.MenuHotspotProfile, "profiles", "")},
		AddHotspotProfile: {
			verb: post, group: groupHSProf, summary: "Add new hotspot user profile",
			required: []string{"name"}, missing: "Profile name required",
			target: "name", mutating: true, failure: "Failed to add profile", run: d.addHotspotProfile,
		},
		DeleteHotspotProfile: {
			verb: post, group: groupHSProf, summary: "Delete hotspot user profile",
			required: []string{"name"}, missing: "Profile name required",
			target: "name", mutating: true, run: d.remover(routeros.MenuHotspotUserProfile, "Hotspot profile '%s' deleted"),
		},
		AddServerProfile: {
			verb: post, group: groupHSProf, summary: "Add new hotspot server profile",
			required: []string{"name"}, missing: "Profile name required",
			target: "name", mutating: true, failure: "Failed to add server profile", run: d.addServerProfile,
		},
		DeleteServerProfile: {
			verb: post, group: groupHSProf, summary: "Delete hotspot server profile",
			required: []string{"name"}, missing: "Profile name required",
			target: "name", mutating: true, run: d.remover(routeros.MenuHotspotProfile, "Server profile '%s' deleted"),
		},
		GenerateVoucher: {
			verb: post, group: groupBot, summary: "Generate hotspot voucher codes",
			required: []string{"profile"}, missing: "Profile required",
			target: "profile", mutating: true, failure: "Failed to generate vouchers", run: d.generateVoucher,
		},
		Ping: {
			verb: get, group: groupTools, summary: "Ping a host from the router (count 1-10)",
			required: []string{"address"}, missing: "Address required", run: d.ping,
		},
		Interfaces: {verb: get, group: groupTools, summary: "Get interfaces", run: d.printer(routeros.MenuInterface, "interfaces", "")},
		Log:        {verb: get, group: groupTools, summary: "Get router log (limit 1-100)", run: d.logTail},
		Traffic:    {verb: get, group: groupTools, summary: "Get interface traffic (default ether1)", run: d.traffic},
		DHCPLeases: {verb: get, group: groupTools, summary: "Get DHCP leases", run: d.printer(routeros.MenuDHCPLease, "leases", "")},
		History:    {verb: get, group: groupConfig, summary: "Query the action journal", run: d.history},
	}
}

func requireRouters(p model.Params) error {
	_, err := decodeRouters(p)
	return err
}

// decodeRouters accepts the routers list as a JSON array or, from form
// posts, as a JSON-encoded string.
func decodeRouters(p model.Params) ([]model.ProfilePatch, error) {
	raw, ok := p["routers"]
	if !ok || raw == nil {
		return nil, invalid("No routers data")
	}
	var patches []model.ProfilePatch
	switch v := raw.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, invalid("No routers data")
		}
		if err := json.Unmarshal([]byte(v), &patches); err != nil {
			return nil, invalid("Invalid routers data")
		}
	case []any:
		if len(v) == 0 {
			return nil, invalid("No routers data")
		}
		if err := p.Decode("routers", &patches); err != nil {
			return nil, invalid("Invalid routers data")
		}
	default:
		if err := p.Decode("routers", &patches); err != nil {
			return nil, invalid("Invalid routers data")
		}
	}
	if len(patches) == 0 {
		return nil, invalid("No routers data")
	}
	return patches, nil
}
