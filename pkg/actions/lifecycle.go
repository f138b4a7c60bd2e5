package actions

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/entrhq/browser-sidecar/pkg/browser"
	"github.com/entrhq/browser-sidecar/pkg/config"
	"github.com/entrhq/browser-sidecar/pkg/security/workspace"
)

// ProfileInfo describes one configured profile.
type ProfileInfo struct {
	Name      string                 `json:"name"`
	Default   bool                   `json:"default"`
	Mode      browser.ConnectionMode `json:"mode"`
	Connected bool                   `json:"connected"`
	Tabs      int                    `json:"tabs"`
}

func (s *Service) profiles(cfg config.BrowserConfig) map[string]interface{} {
	defaultName, _, _ := cfg.ResolveProfile("") // empty when nothing is configured

	infos := make([]ProfileInfo, 0, len(cfg.Profiles))
	for _, name := range cfg.ProfileNames() {
		info := ProfileInfo{
			Name:    name,
			Default: name == defaultName,
			Mode:    browser.ModeLaunched,
		}
		if cfg.Profiles[name].IsAttach() {
			info.Mode = browser.ModeAttached
		}
		if sess, ok := s.registry.Lookup(name); ok {
			st := sess.Status()
			info.Connected = st.Connected
			info.Tabs = st.Tabs
		}
		infos = append(infos, info)
	}
	return map[string]interface{}{"profiles": infos}
}

func (s *Service) status(_ context.Context, c *call) (interface{}, error) {
	if sess, ok := s.registry.Lookup(c.name); ok {
		return sess.Status(), nil
	}
	return browser.SessionStatus{Profile: c.name}, nil
}

func (s *Service) start(_ context.Context, c *call) (interface{}, error) {
	return c.session.Status(), nil
}

func (s *Service) stop(_ context.Context, c *call) (interface{}, error) {
	stopped := s.registry.Stop(c.name)
	if stopped {
		s.logger.Infof("stopped profile %s", c.name)
	}
	return map[string]interface{}{"profile": c.name, "stopped": stopped}, nil
}

// resetProfile stops a launched profile and deletes its user data.
func (s *Service) resetProfile(_ context.Context, c *call) (interface{}, error) {
	if c.profile.IsAttach() {
		return nil, browser.Validationf("reset_profile is not supported for attach-only profile %q", c.name)
	}
	dir, err := c.paths.UserDataDir(c.name, c.profile)
	if err != nil {
		return nil, &browser.ValidationError{Err: err}
	}
	if err := removableGuard(c.paths, c.profile, dir); err != nil {
		return nil, &browser.ValidationError{Message: "refusing to reset profile " + c.name, Err: err}
	}

	s.registry.Stop(c.name)
	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("failed to remove user data dir: %w", err)
	}
	s.logger.Infof("reset profile %s (%s)", c.name, dir)
	return map[string]interface{}{"profile": c.name, "reset": true, "user_data_dir": dir}, nil
}

// removableGuard checks that dir is a managed directory below profiles_root,
// or the user data dir the host configured explicitly for the profile.
func removableGuard(paths config.Paths, profile config.ProfileConfig, dir string) error {
	root := strings.TrimSpace(paths.ProfilesRoot)
	if root == "" {
		root = filepath.Dir(dir)
	}
	guard, err := workspace.NewGuard(root)
	if err != nil {
		return err
	}
	if strings.TrimSpace(profile.UserDataDir) != "" {
		if err := guard.AddWhitelist(dir); err != nil {
			return err
		}
	}
	return guard.ValidateRemovable(dir)
}
