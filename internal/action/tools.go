package action

import (
	"context"

	"github.com/acs-lite/mikrotik-gateway/internal/broker"
	"github.com/acs-lite/mikrotik-gateway/internal/model"
	"github.com/acs-lite/mikrotik-gateway/internal/routeros"
)

const (
	DefaultPingCount = 4
	MaxPingCount     = 10
	DefaultLogLimit  = 20
	MaxLogLimit      = 100
	DefaultInterface = "ether1"
)

func (d *Dispatcher) ping(ctx context.Context, req model.ActionRequest) (model.ActionResult, error) {
	address := req.Params.String("address")
	count := clamp(req.Params.Int("count", DefaultPingCount), 1, MaxPingCount)
	return d.withSession(ctx, req, func(ctx context.Context, h *broker.Handle) (model.ActionResult, error) {
		recs, err := routeros.Ping(ctx, h, address, count)
		if err != nil {
			return model.ActionResult{}, err
		}
		if recs == nil {
			recs = []routeros.Record{}
		}
		return model.Succeed("", map[string]any{"results": recs, "host": address, "count": count}), nil
	})
}

func (d *Dispatcher) logTail(ctx context.Context, req model.ActionRequest) (model.ActionResult, error) {
	limit := clamp(req.Params.Int("limit", DefaultLogLimit), 1, MaxLogLimit)
	return d.withSession(ctx, req, func(ctx context.Context, h *broker.Handle) (model.ActionResult, error) {
		recs, err := routeros.LogTail(ctx, h, limit)
		if err != nil {
			return model.ActionResult{}, err
		}
		return model.Succeed("", list("logs", recs)), nil
	})
}

func (d *Dispatcher) traffic(ctx context.Context, req model.ActionRequest) (model.ActionResult, error) {
	iface := req.Params.StringOr("interface", DefaultInterface)
	return d.withSession(ctx, req, func(ctx context.Context, h *broker.Handle) (model.ActionResult, error) {
		rec, err := routeros.Traffic(ctx, h, iface)
		if err != nil {
			return model.ActionResult{}, err
		}
		return model.Succeed("", map[string]any{"traffic": rec, "interface": iface}), nil
	})
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
