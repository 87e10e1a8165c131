package action

import (
	"context"
	"fmt"

	"github.com/acs-lite/mikrotik-gateway/internal/broker"
	"github.com/acs-lite/mikrotik-gateway/internal/model"
	"github.com/acs-lite/mikrotik-gateway/internal/routeros"
	"github.com/acs-lite/mikrotik-gateway/internal/voucher"
)

func (d *Dispatcher) addHotspotUser(ctx context.Context, req model.ActionRequest) (model.ActionResult, error) {
	return d.withSession(ctx, req, func(ctx context.Context, h *broker.Handle) (model.ActionResult, error) {
		p := req.Params
		username := p.String("username")
		err := routeros.Add(ctx, h, routeros.MenuHotspotUser, map[string]string{
			"name":         username,
			"password":     p.String("password"),
			"profile":      p.StringOr("profile", "default"),
			"mac-address":  p.String("mac"),
			"limit-uptime": p.String("uptime"),
			"comment":      p.String("comment"),
		})
		if err != nil {
			return model.ActionResult{}, err
		}
		return model.Succeed(fmt.Sprintf("Hotspot user '%s' added", username), nil), nil
	})
}

func (d *Dispatcher) disconnectHotspot(ctx context.Context, req model.ActionRequest) (model.ActionResult, error) {
	return d.withSession(ctx, req, func(ctx context.Context, h *broker.Handle) (model.ActionResult, error) {
		username := req.Params.String("username")
		kicked, err := routeros.KickHotspot(ctx, h, username)
		if err != nil && !routeros.IsDeviceError(err) {
			return model.ActionResult{}, err
		}
		return model.Succeed(fmt.Sprintf("Hotspot user '%s' disconnected", username),
			map[string]any{"username": username, "sessions": kicked}), nil
	})
}

func (d *Dispatcher) setHotspotDisabled(disabled bool) handler {
	state := "enabled"
	if disabled {
		state = "disabled"
	}
	return func(ctx context.Context, req model.ActionRequest) (model.ActionResult, error) {
		return d.withSession(ctx, req, func(ctx context.Context, h *broker.Handle) (model.ActionResult, error) {
			username := req.Params.String("username")
			if err := routeros.SetHotspotUserDisabled(ctx, h, username, disabled); err != nil {
				return model.ActionResult{}, err
			}
			return model.Succeed(fmt.Sprintf("Hotspot user '%s' %s", username, state), nil), nil
		})
	}
}

func (d *Dispatcher) deleteHotspotUser(ctx context.Context, req model.ActionRequest) (model.ActionResult, error) {
	return d.withSession(ctx, req, func(ctx context.Context, h *broker.Handle) (model.ActionResult, error) {
		username := req.Params.String("username")
		if err := routeros.RemoveByName(ctx, h, routeros.MenuHotspotUser, "name", username); err != nil {
			return model.ActionResult{}, err
		}
		return model.Succeed(fmt.Sprintf("Hotspot user '%s' deleted", username), nil), nil
	})
}

func (d *Dispatcher) addHotspotProfile(ctx context.Context, req model.ActionRequest) (model.ActionResult, error) {
	return d.withSession(ctx, req, func(ctx context.Context, h *broker.Handle) (model.ActionResult, error) {
		p := req.Params
		name := p.String("name")
		err := routeros.Add(ctx, h, routeros.MenuHotspotUserProfile, map[string]string{
			"name":               name,
			"rate-limit":         p.String("rate_limit"),
			"session-timeout":    p.String("session_timeout"),
			"idle-timeout":       p.String("idle_timeout"),
			"shared-users":       p.StringOr("shared_users", "1"),
			"keepalive-timeout":  p.String("keepalive_timeout"),
			"status-autorefresh": p.String("status_autorefresh"),
			"on-login":           p.String("on_login"),
		})
		if err != nil {
			return model.ActionResult{}, err
		}
		return model.Succeed(fmt.Sprintf("Hotspot profile '%s' added", name), nil), nil
	})
}

func (d *Dispatcher) addServerProfile(ctx context.Context, req model.ActionRequest) (model.ActionResult, error) {
	return d.withSession(ctx, req, func(ctx context.Context, h *broker.Handle) (model.ActionResult, error) {
		p := req.Params
		name := p.String("name")
		err := routeros.Add(ctx, h, routeros.MenuHotspotProfile, map[string]string{
			"name":              name,
			"html-directory":    p.StringOr("html_directory", "hotspot"),
			"dns-name":          p.String("dns_name"),
			"login-by":          p.StringOr("login_by", "http-chap"),
			"smtp-server":       p.StringOr("smtp_server", "0.0.0.0"),
			"split-user-domain": p.StringOr("split_user_domain", "no"),
			"rate-limit":        p.String("rate_limit"),
		})
		if err != nil {
			return model.ActionResult{}, err
		}
		return model.Succeed(fmt.Sprintf("Server profile '%s' added", name), nil), nil
	})
}

func (d *Dispatcher) generateVoucher(ctx context.Context, req model.ActionRequest) (model.ActionResult, error) {
	p := req.Params
	batch, err := d.vouchers.Generate(ctx, voucher.Request{
		RouterID: req.DeviceID,
		Profile:  p.String("profile"),
		Count:    p.Int("count", 1),
		Length:   p.Int("length", voucher.DefaultLength),
		Prefix:   p.String("prefix"),
	})
	if err != nil {
		return model.ActionResult{}, err
	}
	payload := map[string]any{
		"profile":   batch.Profile,
		"count":     batch.Count,
		"requested": batch.Requested,
		"length":    batch.Length,
		"comment":   batch.Comment,
		"vouchers":  batch.Codes,
	}
	if len(batch.Failures) > 0 {
		payload["failures"] = batch.Failures
	}
	return model.Succeed(fmt.Sprintf("%d voucher(s) generated for profile '%s'", batch.Count, batch.Profile), payload), nil
}
