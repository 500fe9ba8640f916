package pac

import (
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/rennerdo30/pacparser/internal/directive"
)

// Script is a loaded PAC script. It borrows its Engine until closed.
//
// Global variables assigned by the script persist across FindProxy calls on
// the same Script, as they do in browsers. Calls are serialized.
type Script struct {
	engine *Engine
	driver goja.Callable

	mu     sync.Mutex
	closed bool
}

// HostOf extracts the host FindProxy passes to FindProxyForURL.
func HostOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoHost, err)
	}
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("%w: %q", ErrNoHost, rawURL)
	}
	return host, nil
}

// FindProxy evaluates the script for rawURL and decodes the result.
func (s *Script) FindProxy(rawURL string) ([]directive.Entry, error) {
	host, err := HostOf(rawURL)
	if err != nil {
		s.engine.metrics.RecordEvaluation(resultLabel(err), 0)
		return nil, err
	}
	return s.FindProxyForHost(rawURL, host)
}

// FindProxyForHost is FindProxy with a caller supplied host.
func (s *Script) FindProxyForHost(rawURL, host string) ([]directive.Entry, error) {
	start := time.Now()
	entries, err := s.findProxy(rawURL, host)
	s.engine.metrics.RecordEvaluation(resultLabel(err), time.Since(start))
	if err != nil {
		s.engine.logger.Debug("PAC evaluation failed", "url", rawURL, "host", host, "error", err)
	}
	return entries, err
}

func (s *Script) findProxy(rawURL, host string) ([]directive.Entry, error) {
	if host == "" {
		return nil, fmt.Errorf("%w: %q", ErrNoHost, rawURL)
	}
	spec, err := s.Evaluate(rawURL, host)
	if err != nil {
		return nil, err
	}
	return directive.Decode(spec)
}

// Evaluate runs FindProxyForURL(rawURL, host) and returns the proxy
// specification string without decoding it.
func (s *Script) Evaluate(rawURL, host string) (spec string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", ErrClosed
	}

	defer func() {
		if r := recover(); r != nil {
			err = &ScriptError{Op: "FindProxyForURL", Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	rt := s.engine.rt
	value, err := s.driver(goja.Undefined(), rt.ToValue(rawURL), rt.ToValue(host))
	if err != nil {
		return "", &ScriptError{Op: "FindProxyForURL", Err: err}
	}

	if value == nil || goja.IsUndefined(value) || goja.IsNull(value) {
		return "", fmt.Errorf("%w: got %s", ErrInvalidPacReturn, describe(value))
	}
	str, ok := value.Export().(string)
	if !ok {
		return "", fmt.Errorf("%w: got %s", ErrInvalidPacReturn, describe(value))
	}
	return str, nil
}

// SetMyIP overrides myIpAddress for the owning engine.
func (s *Script) SetMyIP(ip string) error {
	return s.engine.SetMyIP(ip)
}

// Close erases the driver and returns the engine to an unloaded state.
func (s *Script) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.engine.unload(s)
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNoHost):
		return "no_host"
	case errors.Is(err, ErrInvalidPacReturn):
		return "invalid_return"
	case errors.Is(err, directive.ErrMalformedEntry):
		return "malformed"
	case errors.Is(err, ErrClosed):
		return "closed"
	default:
		return "script_error"
	}
}
