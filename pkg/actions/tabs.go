package actions

import (
	"context"

	"github.com/entrhq/browser-sidecar/pkg/browser"
)

func (s *Service) tabs(_ context.Context, c *call) (interface{}, error) {
	return map[string]interface{}{
		"tabs":             c.session.Tabs(),
		"active_target_id": c.session.ActiveTargetID(),
	}, nil
}

func (s *Service) open(_ context.Context, c *call) (interface{}, error) {
	p := c.cmd.Params.(*OpenParams)
	info, err := c.session.OpenTab(p.URL, c.cfg.OperationTimeoutMs)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"target_id": info.TargetID, "url": info.URL, "title": info.Title}, nil
}

func (s *Service) focus(_ context.Context, c *call) (interface{}, error) {
	if err := c.session.FocusTab(c.cmd.TargetID); err != nil {
		return nil, err
	}
	return map[string]interface{}{"target_id": c.cmd.TargetID}, nil
}

func (s *Service) close(_ context.Context, c *call) (interface{}, error) {
	id, err := c.session.CloseTab(c.cmd.TargetID)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"closed": id, "active_target_id": c.session.ActiveTargetID()}, nil
}

func (s *Service) navigate(ctx context.Context, c *call) (interface{}, error) {
	p := c.cmd.Params.(*browser.NavigateRequest)
	return c.session.Navigate(ctx, c.cmd.TargetID, *p, c.cfg.OperationTimeoutMs)
}

func (s *Service) snapshot(ctx context.Context, c *call) (interface{}, error) {
	p := c.cmd.Params.(*SnapshotParams)
	res, err := c.session.Snapshot(ctx, c.cmd.TargetID, p.mode)
	if err != nil {
		return nil, err
	}
	c.result.Perf.ResolveMs = res.ResolveMs
	c.result.Perf.TotalMs = res.ResolveMs
	return res, nil
}

func (s *Service) act(ctx context.Context, c *call) (interface{}, error) {
	p := c.cmd.Params.(*browser.ActRequest)
	res, err := c.session.Act(ctx, c.cmd.TargetID, *p, c.actConfig())
	c.result.Perf = res.Perf
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Service) actBatch(ctx context.Context, c *call) (interface{}, error) {
	p := c.cmd.Params.(*browser.BatchRequest)
	res, err := c.session.ActBatch(ctx, c.cmd.TargetID, *p, c.actConfig())
	if err != nil {
		return nil, err
	}
	c.result.Perf = res.Perf
	return res, nil
}
