package action

import (
	"context"
	"fmt"

	"github.com/acs-lite/mikrotik-gateway/internal/broker"
	"github.com/acs-lite/mikrotik-gateway/internal/model"
	"github.com/acs-lite/mikrotik-gateway/internal/routeros"
)

func (d *Dispatcher) printer(menu, key, secretField string) handler {
	return func(ctx context.Context, req model.ActionRequest) (model.ActionResult, error) {
		return d.withSession(ctx, req, func(ctx context.Context, h *broker.Handle) (model.ActionResult, error) {
			recs, err := routeros.Print(ctx, h, menu)
			if err != nil {
				return model.ActionResult{}, err
			}
			if secretField != "" {
				recs = mask(recs, secretField)
			}
			return model.Succeed("", list(key, recs)), nil
		})
	}
}

func (d *Dispatcher) test(ctx context.Context, req model.ActionRequest) (model.ActionResult, error) {
	return d.withSession(ctx, req, func(ctx context.Context, h *broker.Handle) (model.ActionResult, error) {
		identity, err := routeros.Identity(ctx, h)
		if err != nil {
			return model.ActionResult{}, err
		}
		res, err := routeros.Resource(ctx, h)
		if err != nil {
			return model.ActionResult{}, err
		}
		return model.Succeed("Connected successfully", map[string]any{
			"router": map[string]any{
				"id":          h.Profile.ID,
				"name":        h.Profile.Name,
				"ip":          h.Profile.Address,
				"identity":    identity,
				"version":     res["version"],
				"uptime":      res["uptime"],
				"cpu_load":    res["cpu-load"],
				"memory_used": res["total-memory"],
			},
		}), nil
	})
}

func (d *Dispatcher) resource(ctx context.Context, req model.ActionRequest) (model.ActionResult, error) {
	return d.withSession(ctx, req, func(ctx context.Context, h *broker.Handle) (model.ActionResult, error) {
		res, err := routeros.Resource(ctx, h)
		if err != nil {
			return model.ActionResult{}, err
		}
		identity, err := routeros.Identity(ctx, h)
		if err != nil {
			return model.ActionResult{}, err
		}
		res["identity"] = identity
		return model.Succeed("", map[string]any{"resource": res}), nil
	})
}

func (d *Dispatcher) isolate(ctx context.Context, req model.ActionRequest) (model.ActionResult, error) {
	return d.withSession(ctx, req, func(ctx context.Context, h *broker.Handle) (model.ActionResult, error) {
		username := req.Params.String("username")
		profile := firstNonEmpty(req.Params.String("profile"), h.Profile.IsolationProfile, "isolir")
		kicked, err := d.assignProfile(ctx, h, username, profile)
		if err != nil {
			return model.ActionResult{}, err
		}
		return model.Succeed(fmt.Sprintf("User '%s' isolated to profile '%s'", username, profile),
			map[string]any{"username": username, "profile": profile, "kicked": kicked}), nil
	})
}

func (d *Dispatcher) restore(ctx context.Context, req model.ActionRequest) (model.ActionResult, error) {
	return d.withSession(ctx, req, func(ctx context.Context, h *broker.Handle) (model.ActionResult, error) {
		username := req.Params.String("username")
		profile := firstNonEmpty(req.Params.String("profile"), h.Profile.DefaultProfile, "default")
		kicked, err := d.assignProfile(ctx, h, username, profile)
		if err != nil {
			return model.ActionResult{}, err
		}
		return model.Succeed(fmt.Sprintf("User '%s' restored to profile '%s'", username, profile),
			map[string]any{"username": username, "profile": profile, "kicked": kicked}), nil
	})
}

func (d *Dispatcher) changeProfile(ctx context.Context, req model.ActionRequest) (model.ActionResult, error) {
	return d.withSession(ctx, req, func(ctx context.Context, h *broker.Handle) (model.ActionResult, error) {
		username := req.Params.String("username")
		profile := req.Params.String("profile")
		kicked, err := d.assignProfile(ctx, h, username, profile)
		if err != nil {
			return model.ActionResult{}, err
		}
		return model.Succeed(fmt.Sprintf("Profile changed to '%s'", profile),
			map[string]any{"username": username, "profile": profile, "kicked": kicked}), nil
	})
}

// assignProfile sets the secret's profile, then drops its live session so
// the new profile applies on reconnect. A failed drop is only logged.
func (d *Dispatcher) assignProfile(ctx context.Context, h *broker.Handle, username, profile string) (int, error) {
	if err := routeros.SetSecretProfile(ctx, h, username, profile); err != nil {
		return 0, err
	}
	kicked, err := routeros.KickPPP(ctx, h, username)
	if err != nil {
		d.log.Warn().Err(err).Str("router", h.Profile.ID).Str("username", username).Msg("drop active session failed")
		return 0, nil
	}
	return kicked, nil
}

func (d *Dispatcher) disconnect(ctx context.Context, req model.ActionRequest) (model.ActionResult, error) {
	return d.withSession(ctx, req, func(ctx context.Context, h *broker.Handle) (model.ActionResult, error) {
		username := req.Params.String("username")
		kicked, err := routeros.KickPPP(ctx, h, username)
		if err != nil && !routeros.IsDeviceError(err) {
			return model.ActionResult{}, err
		}
		return model.Succeed(fmt.Sprintf("User '%s' disconnected", username),
			map[string]any{"username": username, "sessions": kicked}), nil
	})
}

func (d *Dispatcher) addSecret(key string, alias bool) handler {
	return func(ctx context.Context, req model.ActionRequest) (model.ActionResult, error) {
		return d.withSession(ctx, req, func(ctx context.Context, h *broker.Handle) (model.ActionResult, error) {
			p := req.Params
			name := p.String(key)
			profile := p.StringOr("profile", "default")
			err := routeros.Add(ctx, h, routeros.MenuPPPSecret, map[string]string{
				"name":     name,
				"password": p.String("password"),
				"profile":  profile,
				"service":  "pppoe",
				"comment":  p.String("comment"),
			})
			if err != nil {
				return model.ActionResult{}, err
			}
			msg := fmt.Sprintf("User '%s' added", name)
			if alias {
				msg = fmt.Sprintf("PPPoE user '%s' added with profile '%s'", name, profile)
			}
			return model.Succeed(msg, map[string]any{"username": name, "profile": profile}), nil
		})
	}
}

func (d *Dispatcher) deleteSecret(key, format string) handler {
	return func(ctx context.Context, req model.ActionRequest) (model.ActionResult, error) {
		return d.withSession(ctx, req, func(ctx context.Context, h *broker.Handle) (model.ActionResult, error) {
			name := req.Params.String(key)
			if err := routeros.RemoveByName(ctx, h, routeros.MenuPPPSecret, "name", name); err != nil {
				return model.ActionResult{}, err
			}
			return model.Succeed(fmt.Sprintf(format, name), nil), nil
		})
	}
}

func (d *Dispatcher) addPPPProfile(ctx context.Context, req model.ActionRequest) (model.ActionResult, error) {
	return d.withSession(ctx, req, func(ctx context.Context, h *broker.Handle) (model.ActionResult, error) {
		p := req.Params
		name := p.String("name")
		err := routeros.Add(ctx, h, routeros.MenuPPPProfile, map[string]string{
			"name":            name,
			"rate-limit":      p.String("rate_limit"),
			"local-address":   p.String("local_address"),
			"remote-address":  p.String("remote_address"),
			"dns-server":      p.String("dns_server"),
			"session-timeout": p.String("session_timeout"),
		})
		if err != nil {
			return model.ActionResult{}, err
		}
		return model.Succeed(fmt.Sprintf("PPPoE profile '%s' added", name), nil), nil
	})
}

// remover deletes the entry of menu named by the "name" param.
func (d *Dispatcher) remover(menu, format string) handler {
	return func(ctx context.Context, req model.ActionRequest) (model.ActionResult, error) {
		return d.withSession(ctx, req, func(ctx context.Context, h *broker.Handle) (model.ActionResult, error) {
			name := req.Params.String("name")
			if err := routeros.RemoveByName(ctx, h, menu, "name", name); err != nil {
				return model.ActionResult{}, err
			}
			return model.Succeed(fmt.Sprintf(format, name), nil), nil
		})
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
