// Package pac evaluates Proxy Auto-Configuration scripts.
//
// An Engine owns one JavaScript runtime with the PAC host functions
// installed. Load wraps a script in a driver function and returns a Script
// whose FindProxy calls FindProxyForURL and decodes the returned proxy
// specification.
//
// Evaluation is synchronous. DNS lookups made by host functions block the
// caller and have no timeout of their own, so callers needing bounded
// latency must enforce one around FindProxy.
package pac

import (
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"

	"github.com/rennerdo30/pacparser/internal/logging"
	"github.com/rennerdo30/pacparser/internal/metrics"
	"github.com/rennerdo30/pacparser/internal/resolver"
	"github.com/rennerdo30/pacparser/internal/util"
)

// driverName is the global the wrapped script is bound to.
const driverName = "__pacparser_find_proxy"

// exclusiveClaim guards the process-wide exclusive engine.
var exclusiveClaim atomic.Bool

// Config configures an Engine.
type Config struct {
	// Exclusive makes the engine a process-wide singleton: creating a second
	// exclusive engine while one is alive fails with ErrInUse.
	Exclusive bool

	// Resolver answers dnsResolve, isInNet and isResolvable. Defaults to the
	// system resolver.
	Resolver resolver.Resolver

	// MyIP overrides the address returned by myIpAddress.
	MyIP string

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Engine is one script execution context with the host functions installed.
type Engine struct {
	rt        *goja.Runtime
	host      *hostEnv
	logger    *slog.Logger
	metrics   *metrics.Metrics
	exclusive bool

	mu     sync.Mutex
	script *Script
	closed bool
}

// New creates an engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Exclusive && !exclusiveClaim.CompareAndSwap(false, true) {
		return nil, ErrInUse
	}

	e, err := newEngine(cfg)
	if err != nil {
		if cfg.Exclusive {
			exclusiveClaim.Store(false)
		}
		return nil, err
	}
	return e, nil
}

func newEngine(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.WithComponent("pac")
	}
	res := cfg.Resolver
	if res == nil {
		res = resolver.NewSystem()
	}

	rt := goja.New()
	host := &hostEnv{
		rt:       rt,
		cache:    NewWildcardCache(),
		resolver: res,
		metrics:  cfg.Metrics,
		logger:   logger,
		now:      time.Now,
		outbound: util.OutboundIPv4,
	}
	if err := host.install(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineInit, err)
	}

	e := &Engine{
		rt:        rt,
		host:      host,
		logger:    logger,
		metrics:   cfg.Metrics,
		exclusive: cfg.Exclusive,
	}
	if cfg.MyIP != "" {
		if err := e.SetMyIP(cfg.MyIP); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEngineInit, err)
		}
	}
	return e, nil
}

// SetMyIP overrides the address myIpAddress returns. An empty string
// restores detection of the outbound address.
func (e *Engine) SetMyIP(ip string) error {
	if ip == "" {
		e.host.myIP.Store(nil)
		return nil
	}
	if _, err := netip.ParseAddr(ip); err != nil {
		return fmt.Errorf("invalid IP address %q: %w", ip, err)
	}
	e.host.myIP.Store(&ip)
	return nil
}

// Load installs script as the active PAC script. Only one script may be
// loaded at a time; close it before loading another.
func (e *Engine) Load(script string) (*Script, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrClosed
	}
	if e.script != nil {
		return nil, fmt.Errorf("%w: a script is already loaded", ErrInUse)
	}

	src := fmt.Sprintf("(function (url, host) {\n%s\n;return FindProxyForURL(url, host);\n})", script)
	value, err := e.rt.RunString(src)
	if err != nil {
		return nil, &ScriptError{Op: "load", Err: err}
	}

	driver, ok := goja.AssertFunction(value)
	if !ok {
		return nil, &ScriptError{Op: "load", Err: fmt.Errorf("driver is %s, not a function", describe(value))}
	}
	// Bound by assignment so the property stays deletable.
	if err := e.rt.Set(driverName, value); err != nil {
		return nil, &ScriptError{Op: "load", Err: err}
	}

	e.script = &Script{engine: e, driver: driver}
	e.logger.Debug("PAC script loaded", "bytes", len(script))
	return e.script, nil
}

// LoadFile reads a PAC script from path and loads it.
func (e *Engine) LoadFile(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, util.WrapError(err, "failed to read PAC file")
	}
	return e.Load(string(data))
}

// WildcardCacheLen returns the number of patterns compiled by shExpMatch.
func (e *Engine) WildcardCacheLen() int {
	return e.host.cache.Len()
}

// Close closes any loaded script and releases the engine. It is safe to
// call more than once.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	script := e.script
	e.mu.Unlock()

	if script != nil {
		script.Close()
	}
	if e.exclusive {
		exclusiveClaim.Store(false)
	}
	return nil
}

// unload erases the driver binding of s. Failures are logged only: the
// script handle is being discarded either way.
func (e *Engine) unload(s *Script) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.script != s {
		return
	}
	e.script = nil
	if err := e.rt.GlobalObject().Delete(driverName); err != nil {
		e.logger.Warn("Failed to erase PAC driver", "error", err)
	}
}
