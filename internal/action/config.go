package action

import (
	"context"
	"sort"
	"strings"

	"github.com/acs-lite/mikrotik-gateway/internal/model"
	"github.com/acs-lite/mikrotik-gateway/internal/registry"
)

func (d *Dispatcher) config(ctx context.Context, _ model.ActionRequest) (model.ActionResult, error) {
	cfg, err := d.registry.Load(ctx)
	if err != nil {
		return model.ActionResult{}, err
	}
	return model.Succeed("", map[string]any{"config": registry.Masked(cfg)}), nil
}

func (d *Dispatcher) saveConfig(ctx context.Context, req model.ActionRequest) (model.ActionResult, error) {
	patches, err := decodeRouters(req.Params)
	if err != nil {
		return model.ActionResult{}, err
	}
	saved, err := d.registry.Update(ctx, patches)
	if err != nil {
		return model.ActionResult{}, err
	}
	return model.Succeed("Configuration saved", map[string]any{
		"version": saved.Version,
		"count":   len(saved.Routers),
	}), nil
}

func (d *Dispatcher) history(ctx context.Context, req model.ActionRequest) (model.ActionResult, error) {
	p := req.Params
	page, err := d.QueryHistory(ctx, model.ActionLogFilter{
		Action:   p.String("filter_action"),
		RouterID: p.String("filter_router"),
		Target:   p.String("target"),
		Page:     p.Int("page", 1),
		PageSize: p.Int("page_size", 10),
	})
	if err != nil {
		return model.ActionResult{}, err
	}
	return model.Succeed("", map[string]any{
		"data":     page.Data,
		"total":    page.Total,
		"pages":    page.Pages,
		"pageNum":  page.PageNum,
		"pageSize": page.PageSize,
		"journal":  d.scope,
	}), nil
}

// QueryHistory returns one page of journal entries, newest first.
func (d *Dispatcher) QueryHistory(ctx context.Context, filter model.ActionLogFilter) (*model.ActionLogPage, error) {
	var logs []*model.ActionLog
	if d.journal != nil {
		all, err := d.journal.ListActionLogs(ctx)
		if err != nil {
			return nil, err
		}
		logs = filterLogs(all, filter)
	}

	total := len(logs)
	if filter.PageSize <= 0 {
		filter.PageSize = 10
	}
	if filter.PageSize > 100 {
		filter.PageSize = 100
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}

	start := (filter.Page - 1) * filter.PageSize
	if start > total {
		start = total
	}
	end := start + filter.PageSize
	if end > total {
		end = total
	}

	data := logs[start:end]
	if data == nil {
		data = []*model.ActionLog{}
	}
	return &model.ActionLogPage{
		Data:     data,
		Total:    total,
		Pages:    (total + filter.PageSize - 1) / filter.PageSize,
		PageNum:  filter.Page,
		PageSize: filter.PageSize,
	}, nil
}

func filterLogs(all []*model.ActionLog, filter model.ActionLogFilter) []*model.ActionLog {
	matches := make([]*model.ActionLog, 0, len(all))
	for _, log := range all {
		if filter.Action != "" && !strings.EqualFold(log.Action, filter.Action) {
			continue
		}
		if filter.RouterID != "" && !strings.EqualFold(log.RouterID, filter.RouterID) {
			continue
		}
		if filter.Target != "" && !strings.EqualFold(log.Target, filter.Target) {
			continue
		}
		matches = append(matches, log)
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].ID > matches[j].ID
		}
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})
	return matches
}
