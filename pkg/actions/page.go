package actions

import (
	"context"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/entrhq/browser-sidecar/pkg/browser"
)

func init() {
	// Page counting must not create a pdfcpu config dir under the user's home.
	api.DisableConfigDir()
}

func (s *Service) screenshot(_ context.Context, c *call) (interface{}, error) {
	p := c.cmd.Params.(*browser.ScreenshotRequest)
	id, data, err := c.session.Screenshot(c.cmd.TargetID, *p)
	if err != nil {
		return nil, err
	}

	ext := "png"
	if p.Format == "jpeg" {
		ext = "jpg"
	}
	path, err := NewArtifactWriter(c.paths).Write(ArtifactScreenshots, ext, data)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"path": path, "bytes": len(data), "format": p.Format, "target_id": id}, nil
}

func (s *Service) pdf(_ context.Context, c *call) (interface{}, error) {
	p := c.cmd.Params.(*browser.PDFRequest)
	id, data, err := c.session.PDF(c.cmd.TargetID, *p)
	if err != nil {
		return nil, err
	}

	path, err := NewArtifactWriter(c.paths).Write(ArtifactPDF, "pdf", data)
	if err != nil {
		return nil, err
	}

	out := map[string]interface{}{"path": path, "bytes": len(data), "target_id": id}
	pages, err := api.PageCountFile(path)
	if err != nil {
		// The document is already written; the count is informational.
		s.logger.Warnf("failed to count pages of %s: %v", path, err)
	} else {
		out["pages"] = pages
	}
	return out, nil
}

func (s *Service) evaluate(_ context.Context, c *call) (interface{}, error) {
	p := c.cmd.Params.(*EvaluateParams)
	id, result, err := c.session.Evaluate(c.cmd.TargetID, p.Expression, p.Arg)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"result": result, "target_id": id}, nil
}

func (s *Service) cookiesGet(_ context.Context, c *call) (interface{}, error) {
	p := c.cmd.Params.(*CookiesGetParams)
	cookies, err := c.session.Cookies(p.URLs)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"cookies": cookies}, nil
}

func (s *Service) cookiesSet(_ context.Context, c *call) (interface{}, error) {
	p := c.cmd.Params.(*CookiesSetParams)
	if err := c.session.AddCookies(p.Cookies); err != nil {
		return nil, err
	}
	return map[string]interface{}{"count": len(p.Cookies)}, nil
}

func (s *Service) cookiesClear(_ context.Context, c *call) (interface{}, error) {
	if err := c.session.ClearCookies(); err != nil {
		return nil, err
	}
	return map[string]interface{}{"cleared": true}, nil
}

func (s *Service) storage(_ context.Context, c *call) (interface{}, error) {
	p := c.cmd.Params.(*StorageParams)
	id, entries, err := c.session.Storage(c.cmd.TargetID, p.op, p.StorageRequest)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"kind": p.Kind, "entries": entries, "target_id": id}, nil
}

func (s *Service) traceStart(_ context.Context, c *call) (interface{}, error) {
	p := c.cmd.Params.(*TraceStartParams)
	screenshots := p.Screenshots == nil || *p.Screenshots
	snapshots := p.Snapshots == nil || *p.Snapshots
	if err := c.session.StartTrace(screenshots, snapshots); err != nil {
		return nil, err
	}
	return map[string]interface{}{"tracing": true}, nil
}

func (s *Service) traceStop(_ context.Context, c *call) (interface{}, error) {
	path, err := NewArtifactWriter(c.paths).Path(ArtifactTraces, "zip")
	if err != nil {
		return nil, err
	}
	if err := c.session.StopTrace(path); err != nil {
		return nil, err
	}
	return map[string]interface{}{"path": path}, nil
}
