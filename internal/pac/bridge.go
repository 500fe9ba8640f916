package pac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/bits"
	"net/netip"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"

	"github.com/rennerdo30/pacparser/internal/metrics"
	"github.com/rennerdo30/pacparser/internal/resolver"
	"github.com/rennerdo30/pacparser/internal/util"
)

// hostEnv is the side table shared by every host function of one engine.
// It is passed by pointer into each call and lives as long as the engine.
type hostEnv struct {
	rt       *goja.Runtime
	cache    *WildcardCache
	resolver resolver.Resolver
	myIP     atomic.Pointer[string]
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
	outbound func() (netip.Addr, error)
}

// hostFunc is a native function exposed to PAC scripts. An arity of -1
// accepts any number of arguments.
type hostFunc struct {
	name  string
	arity int
	call  func(h *hostEnv, args []goja.Value) (any, error)
}

var hostFuncs = []hostFunc{
	{"dnsDomainIs", 2, stringArgs(dnsDomainIs)},
	{"isPlainHostName", 1, stringArgs(isPlainHostName)},
	{"isInNet", 3, stringArgs(isInNet)},
	{"dnsResolve", 1, stringArgs(dnsResolve)},
	{"myIpAddress", 0, stringArgs(myIPAddress)},
	{"localHostOrDomainIs", 2, stringArgs(localHostOrDomainIs)},
	{"shExpMatch", 2, stringArgs(shExpMatch)},
	{"isResolvable", 1, stringArgs(isResolvable)},
	{"dnsDomainLevels", 1, stringArgs(dnsDomainLevels)},
	{"convert_addr", 1, stringArgs(convertAddr)},
	{"alert", -1, alert},
	{"weekdayRange", -1, weekdayRange},
	{"dateRange", -1, dateRange},
	{"timeRange", -1, timeRange},
}

// install registers every host function in the runtime.
func (h *hostEnv) install() error {
	for _, f := range hostFuncs {
		if err := h.rt.Set(f.name, h.bind(f)); err != nil {
			return fmt.Errorf("register %s: %w", f.name, err)
		}
	}
	return nil
}

// bind adapts f to goja. Failures are thrown into the script so that the
// running evaluation aborts with a script error.
func (h *hostEnv) bind(f hostFunc) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if f.arity >= 0 && len(call.Arguments) != f.arity {
			h.metrics.RecordHostCall(f.name, true)
			panic(h.rt.NewTypeError("%s: expected %d arguments, got %d", f.name, f.arity, len(call.Arguments)))
		}

		result, err := f.call(h, call.Arguments)
		h.metrics.RecordHostCall(f.name, err != nil)
		if err != nil {
			var argErr *argumentError
			if errors.As(err, &argErr) {
				panic(h.rt.NewTypeError("%s: %s", f.name, argErr.Error()))
			}
			panic(h.rt.NewGoError(fmt.Errorf("%s: %w", f.name, err)))
		}
		return h.rt.ToValue(result)
	}
}

type argumentError struct {
	index int
	got   string
}

func (e *argumentError) Error() string {
	return fmt.Sprintf("argument %d must be a string, got %s", e.index+1, e.got)
}

// stringArgs converts every argument to a Go string before calling fn.
func stringArgs(fn func(h *hostEnv, args []string) (any, error)) func(*hostEnv, []goja.Value) (any, error) {
	return func(h *hostEnv, values []goja.Value) (any, error) {
		args := make([]string, len(values))
		for i, v := range values {
			s, ok := v.Export().(string)
			if !ok {
				return nil, &argumentError{index: i, got: describe(v)}
			}
			args[i] = s
		}
		return fn(h, args)
	}
}

// describe names the JS type of v for error messages.
func describe(v goja.Value) string {
	switch {
	case v == nil || goja.IsUndefined(v):
		return "undefined"
	case goja.IsNull(v):
		return "null"
	}
	switch v.Export().(type) {
	case bool:
		return "boolean"
	case int64, float64:
		return "number"
	case string:
		return "string"
	default:
		return "object"
	}
}

func (h *hostEnv) resolveIPv4(name string) (netip.Addr, error) {
	addr, err := resolver.ResolveIPv4(context.Background(), h.resolver, name)
	h.metrics.RecordDNSLookup(err == nil)
	return addr, err
}

func dnsDomainIs(_ *hostEnv, args []string) (any, error) {
	return strings.HasSuffix(args[0], args[1]), nil
}

func isPlainHostName(_ *hostEnv, args []string) (any, error) {
	name := args[0]
	if u, err := url.Parse(name); err == nil && u.Host != "" {
		name = u.Hostname()
	}
	return !strings.Contains(name, "."), nil
}

func isInNet(h *hostEnv, args []string) (any, error) {
	base, err := parseIPv4(args[1])
	if err != nil {
		return nil, err
	}
	mask, err := parseIPv4(args[2])
	if err != nil {
		return nil, err
	}

	// The prefix length is the number of set bits, contiguous or not.
	m := mask.As4()
	ones := bits.OnesCount32(uint32(m[0])<<24 | uint32(m[1])<<16 | uint32(m[2])<<8 | uint32(m[3]))
	network, err := base.Prefix(ones)
	if err != nil {
		return nil, err
	}

	target, err := netip.ParseAddr(args[0])
	if err != nil || !target.Is4() {
		target, err = h.resolveIPv4(args[0])
		if err != nil {
			return nil, err
		}
	}
	return network.Contains(target), nil
}

func dnsResolve(h *hostEnv, args []string) (any, error) {
	addr, err := h.resolveIPv4(args[0])
	if err != nil {
		return nil, err
	}
	return addr.String(), nil
}

func myIPAddress(h *hostEnv, _ []string) (any, error) {
	if ip := h.myIP.Load(); ip != nil {
		return *ip, nil
	}
	addr, err := h.outbound()
	if err != nil {
		return nil, util.WrapError(err, "local address")
	}
	return addr.String(), nil
}

func localHostOrDomainIs(_ *hostEnv, args []string) (any, error) {
	return strings.HasPrefix(args[1], args[0]), nil
}

func shExpMatch(h *hostEnv, args []string) (any, error) {
	matched, hit, err := h.cache.match(args[0], args[1])
	h.metrics.RecordWildcardLookup(hit, h.cache.Len())
	if err != nil {
		return nil, err
	}
	return matched, nil
}

func isResolvable(h *hostEnv, args []string) (any, error) {
	_, err := h.resolveIPv4(args[0])
	return err == nil, nil
}

func dnsDomainLevels(_ *hostEnv, args []string) (any, error) {
	return strings.Count(args[0], "."), nil
}

func convertAddr(_ *hostEnv, args []string) (any, error) {
	addr, err := parseIPv4(args[0])
	if err != nil {
		return nil, err
	}
	b := addr.As4()
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
}

func alert(h *hostEnv, args []goja.Value) (any, error) {
	parts := make([]string, len(args))
	for i, v := range args {
		parts[i] = v.String()
	}
	h.logger.Info("PAC alert", "message", strings.Join(parts, " "))
	return goja.Undefined(), nil
}

func parseIPv4(s string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, err
	}
	if !addr.Is4() {
		return netip.Addr{}, fmt.Errorf("%s: %w", s, resolver.ErrIPv6Unsupported)
	}
	return addr, nil
}
