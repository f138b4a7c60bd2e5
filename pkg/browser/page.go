package browser

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/entrhq/browser-sidecar/pkg/browser/driver"
)

// Storage operations.
const (
	StorageGet   = "get"
	StorageSet   = "set"
	StorageClear = "clear"
)

// StorageRequest reads or writes Web Storage of a target's origin.
type StorageRequest struct {
	Kind  string  `json:"kind,omitempty"` // local or session
	Key   string  `json:"key,omitempty"`
	Value *string `json:"value,omitempty"`
}

// Validate checks the storage kind and the fields op needs.
func (r *StorageRequest) Validate(op string) error {
	r.Kind = strings.ToLower(strings.TrimSpace(r.Kind))
	if r.Kind == "" {
		r.Kind = "local"
	}
	if r.Kind != "local" && r.Kind != "session" {
		return Validationf("kind must be local or session")
	}
	if op == StorageSet {
		if r.Key == "" {
			return Validationf("storage_set requires key")
		}
		if r.Value == nil {
			return Validationf("storage_set requires value")
		}
	}
	return nil
}

// Storage runs op against the target's local or session storage. Get returns
// every entry, or just key when set.
func (s *ProfileSession) Storage(targetID, op string, req StorageRequest) (string, map[string]string, error) {
	id, tab, err := s.Tab(targetID)
	if err != nil {
		return "", nil, err
	}

	arg := map[string]interface{}{
		"kind": req.Kind,
		"op":   op,
		"key":  req.Key,
	}
	if req.Value != nil {
		arg["value"] = *req.Value
	}

	var entries map[string]string
	if err := evalJSON(tab, storageScript, arg, &entries); err != nil {
		return id, nil, fmt.Errorf("storage %s: %w", op, err)
	}
	return id, entries, nil
}

// Evaluate runs caller-supplied JavaScript in a target and returns its
// JSON-decodable result.
func (s *ProfileSession) Evaluate(targetID, expression string, arg json.RawMessage) (string, interface{}, error) {
	id, tab, err := s.Tab(targetID)
	if err != nil {
		return "", nil, err
	}

	var value interface{}
	if len(arg) > 0 {
		if err := json.Unmarshal(arg, &value); err != nil {
			return id, nil, &ValidationError{Message: "invalid arg", Err: err}
		}
	}

	result, err := tab.Evaluate(expression, value)
	if err != nil {
		return id, nil, fmt.Errorf("evaluate: %w", err)
	}
	return id, result, nil
}

// Cookies returns the context's cookies, optionally limited to urls.
func (s *ProfileSession) Cookies(urls []string) ([]driver.Cookie, error) {
	bctx, err := s.Context()
	if err != nil {
		return nil, err
	}
	cookies, err := bctx.Cookies(urls...)
	if err != nil {
		return nil, fmt.Errorf("read cookies: %w", err)
	}
	if cookies == nil {
		cookies = []driver.Cookie{}
	}
	return cookies, nil
}

// AddCookies stores cookies in the context. Each needs a name and either a
// url or a domain.
func (s *ProfileSession) AddCookies(cookies []driver.Cookie) error {
	if len(cookies) == 0 {
		return Validationf("cookies must not be empty")
	}
	for i, c := range cookies {
		if c.Name == "" {
			return Validationf("cookies[%d] requires name", i)
		}
		if c.URL == "" && c.Domain == "" {
			return Validationf("cookies[%d] requires url or domain", i)
		}
	}

	bctx, err := s.Context()
	if err != nil {
		return err
	}
	if err := bctx.AddCookies(cookies); err != nil {
		return fmt.Errorf("set cookies: %w", err)
	}
	return nil
}

// ClearCookies removes every cookie from the context.
func (s *ProfileSession) ClearCookies() error {
	bctx, err := s.Context()
	if err != nil {
		return err
	}
	if err := bctx.ClearCookies(); err != nil {
		return fmt.Errorf("clear cookies: %w", err)
	}
	return nil
}

// StartTrace begins recording a trace of the context.
func (s *ProfileSession) StartTrace(screenshots, snapshots bool) error {
	if s.Tracing() {
		return Validationf("tracing already started")
	}
	bctx, err := s.Context()
	if err != nil {
		return err
	}
	opts := driver.TraceOptions{Name: uuid.NewString(), Screenshots: screenshots, Snapshots: snapshots}
	if err := bctx.StartTracing(opts); err != nil {
		return fmt.Errorf("start tracing: %w", err)
	}
	s.SetTracing(true)
	return nil
}

// StopTrace ends the recording and writes the archive to path.
func (s *ProfileSession) StopTrace(path string) error {
	if !s.Tracing() {
		return Validationf("tracing is not active")
	}
	bctx, err := s.Context()
	if err != nil {
		return err
	}
	s.SetTracing(false)
	if err := bctx.StopTracing(path); err != nil {
		return fmt.Errorf("stop tracing: %w", err)
	}
	return nil
}

const storageScript = `(opts) => {
  const store = opts.kind === 'session' ? window.sessionStorage : window.localStorage;
  if (opts.op === 'set') store.setItem(opts.key, opts.value);
  if (opts.op === 'clear') {
    if (opts.key) store.removeItem(opts.key); else store.clear();
  }
  const out = {};
  if (opts.op === 'get' && opts.key) {
    const v = store.getItem(opts.key);
    if (v !== null) out[opts.key] = v;
    return JSON.stringify(out);
  }
  for (let i = 0; i < store.length; i++) {
    const k = store.key(i);
    out[k] = store.getItem(k);
  }
  return JSON.stringify(out);
}`
