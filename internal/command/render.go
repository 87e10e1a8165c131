package command

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/acs-lite/mikrotik-gateway/internal/action"
	"github.com/acs-lite/mikrotik-gateway/internal/model"
	"github.com/acs-lite/mikrotik-gateway/internal/routeros"
)

func entries() map[Command]entry {
	return map[Command]entry{
		Status:   {summary: "router connectivity", action: action.Test, render: renderStatus},
		Resource: {summary: "CPU, memory and uptime", action: action.Resource, render: renderResource},
		Routers:  {summary: "configured routers", action: action.Config, render: renderRouters},
		Profiles: {summary: "PPPoE profiles", action: action.Profiles, render: listing("📋 PPPoE profiles", "profiles", "name", "rate-limit")},
		Secrets:  {summary: "PPPoE users", action: action.Secrets, render: listing("🔑 PPPoE users", "secrets", "name", "profile", "disabled")},
		Active:   {summary: "active PPPoE sessions", action: action.Active, render: listing("👥 Active PPPoE", "active", "name", "address", "uptime")},
		Isolate: {
			usage: "/isolir <username> [profile]", summary: "isolate a subscriber",
			action: action.Isolate, params: named("username", "profile"),
		},
		Restore: {
			usage: "/unisolir <username> [profile]", summary: "restore a subscriber",
			action: action.Restore, params: named("username", "profile"),
		},
		SetProfile: {
			usage: "/setprofile <username> <profile>", summary: "change a subscriber profile",
			action: action.ChangeProfile, params: named("username", "profile"),
		},
		Kick: {
			usage: "/kick <username>", summary: "drop an active PPPoE session",
			action: action.Disconnect, params: named("username"),
		},
		AddSecret: {
			usage: "/addsecret <name> <password> [profile]", summary: "add a PPPoE user",
			action: action.AddSecret, params: named("name", "password", "profile"),
		},
		DelSecret: {
			usage: "/delsecret <name>", summary: "delete a PPPoE user",
			action: action.DeleteSecret, params: named("name"),
		},
		Hotspot: {summary: "active hotspot sessions", action: action.HotspotActive, render: listing("📶 Active hotspot", "active", "user", "address", "uptime")},
		HSUsers: {summary: "hotspot users", action: action.HotspotUsers, render: listing("🎫 Hotspot users", "users", "name", "profile", "disabled")},
		AddHS: {
			usage: "/addhs <username> <password> [profile]", summary: "add a hotspot user",
			action: action.AddHotspotUser, params: named("username", "password", "profile"),
		},
		DelHS: {
			usage: "/delhs <username>", summary: "delete a hotspot user",
			action: action.DeleteHotspotUser, params: named("username"),
		},
		Voucher: {
			usage: "/voucher <profile> [count] [length]", summary: "generate hotspot vouchers",
			action: action.GenerateVoucher, params: named("profile", "count", "length"), render: renderVouchers,
		},
		Ping: {
			usage: "/ping <address> [count]", summary: "ping from the router",
			action: action.Ping, params: named("address", "count"), render: renderPing,
		},
		Interfaces: {summary: "interfaces", action: action.Interfaces, render: listing("🔌 Interfaces", "interfaces", "name", "type", "running")},
		Log: {
			usage: "/log [limit]", summary: "latest router log",
			action: action.Log, params: named("limit"), render: listing("📜 Log", "logs", "time", "topics", "message"),
		},
		Traffic: {
			usage: "/traffic [interface]", summary: "interface throughput",
			action: action.Traffic, params: named("interface"), render: renderTraffic,
		},
		Leases:  {summary: "DHCP leases", action: action.DHCPLeases, render: listing("🏷 DHCP leases", "leases", "address", "mac-address", "host-name")},
		History: {usage: "/history [page]", summary: "recent actions", action: action.History, params: named("page"), render: renderHistory},
	}
}

func renderMessage(res model.ActionResult) string {
	return "✅ " + html.EscapeString(res.Message)
}

func records(v any) []routeros.Record {
	switch t := v.(type) {
	case []routeros.Record:
		return t
	case []map[string]string:
		out := make([]routeros.Record, len(t))
		for i, m := range t {
			out[i] = m
		}
		return out
	case []any:
		out := make([]routeros.Record, 0, len(t))
		for _, item := range t {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			rec := routeros.Record{}
			for k, v := range m {
				rec[k] = fmt.Sprint(v)
			}
			out = append(out, rec)
		}
		return out
	}
	return nil
}

func record(v any) routeros.Record {
	switch t := v.(type) {
	case routeros.Record:
		return t
	case map[string]string:
		return t
	case map[string]any:
		rec := routeros.Record{}
		for k, v := range t {
			rec[k] = fmt.Sprint(v)
		}
		return rec
	}
	return routeros.Record{}
}

// listing renders payload[key] one row per line, joining the given fields.
func listing(title, key string, fields ...string) func(model.ActionResult) string {
	return func(res model.ActionResult) string {
		recs := records(res.Payload[key])
		var b strings.Builder
		fmt.Fprintf(&b, "<b>%s</b> (%d)\n", html.EscapeString(title), len(recs))
		if len(recs) == 0 {
			b.WriteString("<i>none</i>")
			return b.String()
		}
		for _, rec := range recs {
			parts := make([]string, 0, len(fields))
			for i, f := range fields {
				v := rec[f]
				if v == "" {
					continue
				}
				if i == 0 {
					parts = append(parts, "<code>"+html.EscapeString(v)+"</code>")
					continue
				}
				parts = append(parts, html.EscapeString(v))
			}
			b.WriteString("• " + strings.Join(parts, " | ") + "\n")
		}
		return b.String()
	}
}

func renderStatus(res model.ActionResult) string {
	info, _ := res.Payload["router"].(map[string]any)
	get := func(k string) string { return html.EscapeString(fmt.Sprint(info[k])) }
	return fmt.Sprintf("✅ <b>%s</b>\nRouter: %s (%s)\nIdentity: %s\nVersion: %s\nUptime: %s\nCPU: %s%%",
		html.EscapeString(res.Message), get("name"), get("ip"), get("identity"), get("version"), get("uptime"), get("cpu_load"))
}

func renderResource(res model.ActionResult) string {
	rec := record(res.Payload["resource"])
	var b strings.Builder
	fmt.Fprintf(&b, "📊 <b>%s</b>\n", html.EscapeString(rec["identity"]))
	for _, k := range []string{"board-name", "version", "uptime", "cpu-load", "free-memory", "total-memory", "free-hdd-space"} {
		if v := rec[k]; v != "" {
			fmt.Fprintf(&b, "%s: %s\n", k, html.EscapeString(v))
		}
	}
	return b.String()
}

func renderRouters(res model.ActionResult) string {
	cfg, _ := res.Payload["config"].(model.RouterConfig)
	var b strings.Builder
	fmt.Fprintf(&b, "🖧 <b>Routers</b> (%d)\n", len(cfg.Routers))
	for i, r := range cfg.Routers {
		marker := ""
		if i == 0 {
			marker = " ⭐"
		}
		fmt.Fprintf(&b, "• <code>@%s</code> %s - %s:%d%s\n",
			html.EscapeString(r.ID), html.EscapeString(r.Name), html.EscapeString(r.Address), r.Port, marker)
	}
	return b.String()
}

func renderVouchers(res model.ActionResult) string {
	var b strings.Builder
	b.WriteString("🎫 " + html.EscapeString(res.Message) + "\n")
	if codes, ok := res.Payload["vouchers"].([]string); ok {
		for _, c := range codes {
			b.WriteString("<code>" + html.EscapeString(c) + "</code>\n")
		}
	}
	if failures, ok := res.Payload["failures"].([]model.VoucherFailure); ok && len(failures) > 0 {
		fmt.Fprintf(&b, "⚠️ %d code(s) not provisioned\n", len(failures))
	}
	return b.String()
}

func renderPing(res model.ActionResult) string {
	recs := records(res.Payload["results"])
	var b strings.Builder
	fmt.Fprintf(&b, "🏓 <b>Ping %s</b>\n", html.EscapeString(fmt.Sprint(res.Payload["host"])))
	for _, r := range recs {
		if r["status"] != "" {
			fmt.Fprintf(&b, "seq %s: %s\n", html.EscapeString(r["seq"]), html.EscapeString(r["status"]))
			continue
		}
		fmt.Fprintf(&b, "seq %s: time=%s ttl=%s\n", html.EscapeString(r["seq"]), html.EscapeString(r["time"]), html.EscapeString(r["ttl"]))
	}
	return b.String()
}

func renderTraffic(res model.ActionResult) string {
	rec := record(res.Payload["traffic"])
	return fmt.Sprintf("📈 <b>%s</b>\nRX: %s bps\nTX: %s bps",
		html.EscapeString(fmt.Sprint(res.Payload["interface"])),
		html.EscapeString(rec["rx-bits-per-second"]),
		html.EscapeString(rec["tx-bits-per-second"]))
}

func renderHistory(res model.ActionResult) string {
	logs, _ := res.Payload["data"].([]*model.ActionLog)
	var b strings.Builder
	fmt.Fprintf(&b, "🕘 <b>History</b> (%v total)\n", res.Payload["total"])
	if scope, _ := res.Payload["journal"].(string); scope != "" {
		fmt.Fprintf(&b, "<i>Actions made through %s only</i>\n", html.EscapeString(scope))
	}
	for _, l := range logs {
		mark := "✅"
		if !l.Success {
			mark = "❌"
		}
		fmt.Fprintf(&b, "%s %s <code>%s</code> %s %s\n", mark,
			l.CreatedAt.Local().Format(time.DateTime),
			html.EscapeString(l.Action), html.EscapeString(l.Target), html.EscapeString(l.RouterID))
	}
	return b.String()
}
