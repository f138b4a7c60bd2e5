package actions

import (
	"context"
)

// nonNil keeps empty lists as [] rather than null on the wire.
func nonNil[T any](entries []T) []T {
	if entries == nil {
		return []T{}
	}
	return entries
}

func (s *Service) console(_ context.Context, c *call) (interface{}, error) {
	p := c.cmd.Params.(*ConsoleParams)
	entries := c.session.Console(p.Limit, p.Level)
	if p.Clear {
		c.session.ClearConsole()
	}
	return map[string]interface{}{"entries": nonNil(entries)}, nil
}

func (s *Service) errors(_ context.Context, c *call) (interface{}, error) {
	p := c.cmd.Params.(*ErrorsParams)
	entries := c.session.Errors(p.Limit)
	if p.Clear {
		c.session.ClearErrors()
	}
	return map[string]interface{}{"entries": nonNil(entries)}, nil
}

func (s *Service) requests(_ context.Context, c *call) (interface{}, error) {
	p := c.cmd.Params.(*RequestsParams)
	entries := c.session.Requests(p.Limit, p.Filter)
	if p.Clear {
		c.session.ClearRequests()
	}
	return map[string]interface{}{"entries": nonNil(entries)}, nil
}

func (s *Service) responseBody(_ context.Context, c *call) (interface{}, error) {
	p := c.cmd.Params.(*ResponseBodyParams)
	if p.Enable != nil {
		c.session.SetCaptureBodies(*p.Enable)
	}
	entries := c.session.Bodies(p.Limit, p.URLContains)
	if p.Clear {
		c.session.ClearBodies()
	}
	return map[string]interface{}{
		"entries":         nonNil(entries),
		"capture_enabled": c.session.Status().CaptureBodies,
	}, nil
}
