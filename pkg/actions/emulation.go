package actions

import (
	"context"

	"github.com/entrhq/browser-sidecar/pkg/browser"
	"github.com/entrhq/browser-sidecar/pkg/browser/driver"
)

func (s *Service) setTimezone(_ context.Context, c *call) (interface{}, error) {
	p := c.cmd.Params.(*TimezoneParams)
	if err := c.session.SetTimezone(p.TimezoneID); err != nil {
		return nil, err
	}
	return map[string]interface{}{"timezone_id": p.TimezoneID}, nil
}

func (s *Service) setLocale(_ context.Context, c *call) (interface{}, error) {
	p := c.cmd.Params.(*LocaleParams)
	if err := c.session.SetLocale(p.Locale); err != nil {
		return nil, err
	}
	return map[string]interface{}{"locale": p.Locale}, nil
}

func (s *Service) setDevice(_ context.Context, c *call) (interface{}, error) {
	p := c.cmd.Params.(*DeviceParams)

	device := p.profile()
	if p.Name != "" {
		preset, ok := s.registry.Driver().Device(p.Name)
		if !ok {
			return nil, browser.Validationf("unknown device %q", p.Name)
		}
		device = preset
	}
	if err := c.session.SetDevice(device); err != nil {
		return nil, err
	}
	return c.session.Overrides().Device, nil
}

func (s *Service) setOffline(_ context.Context, c *call) (interface{}, error) {
	p := c.cmd.Params.(*OfflineParams)
	if err := c.session.SetOffline(*p.Offline); err != nil {
		return nil, err
	}
	return map[string]interface{}{"offline": *p.Offline}, nil
}

func (s *Service) setHeaders(_ context.Context, c *call) (interface{}, error) {
	p := c.cmd.Params.(*HeadersParams)
	if err := c.session.SetHeaders(p.Headers); err != nil {
		return nil, err
	}
	return map[string]interface{}{"headers": p.Headers}, nil
}

func (s *Service) setCredentials(_ context.Context, c *call) (interface{}, error) {
	p := c.cmd.Params.(*CredentialsParams)
	var creds *browser.Credentials
	if !p.Clear {
		creds = &browser.Credentials{Username: p.Username, Password: p.Password}
	}
	if err := c.session.SetCredentials(creds); err != nil {
		return nil, err
	}
	return map[string]interface{}{"enabled": creds != nil}, nil
}

func (s *Service) setGeolocation(_ context.Context, c *call) (interface{}, error) {
	p := c.cmd.Params.(*GeolocationParams)
	var geo *driver.Geolocation
	if !p.Clear {
		geo = &driver.Geolocation{Latitude: *p.Latitude, Longitude: *p.Longitude, Accuracy: p.Accuracy}
	}
	if err := c.session.SetGeolocation(geo); err != nil {
		return nil, err
	}
	return map[string]interface{}{"geolocation": geo}, nil
}

func (s *Service) setMedia(_ context.Context, c *call) (interface{}, error) {
	p := c.cmd.Params.(*MediaParams)
	if err := c.session.SetColorScheme(p.ColorScheme); err != nil {
		return nil, err
	}
	return map[string]interface{}{"color_scheme": p.ColorScheme}, nil
}
