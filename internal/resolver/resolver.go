// Package resolver provides forward DNS resolution for PAC host functions.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
)

// Resolver errors.
var (
	ErrNoAddress       = errors.New("no address found")
	ErrIPv6Unsupported = errors.New("IPv6 resolution is not supported")
)

// Resolver resolves a host name to its addresses.
type Resolver interface {
	LookupHost(ctx context.Context, name string) ([]netip.Addr, error)
}

// LookupError wraps a resolution failure with the queried name.
type LookupError struct {
	Name string
	Err  error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("resolve %s: %v", e.Name, e.Err)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}

// FirstIPv4 returns the first IPv4 address in addrs. A result holding only
// IPv6 addresses is reported as ErrIPv6Unsupported rather than guessed at.
func FirstIPv4(addrs []netip.Addr) (netip.Addr, error) {
	if len(addrs) == 0 {
		return netip.Addr{}, ErrNoAddress
	}
	for _, a := range addrs {
		a = a.Unmap()
		if a.Is4() {
			return a, nil
		}
	}
	return netip.Addr{}, ErrIPv6Unsupported
}

// ResolveIPv4 resolves name with r and returns its first IPv4 address.
func ResolveIPv4(ctx context.Context, r Resolver, name string) (netip.Addr, error) {
	addrs, err := r.LookupHost(ctx, name)
	if err != nil {
		return netip.Addr{}, err
	}
	addr, err := FirstIPv4(addrs)
	if err != nil {
		return netip.Addr{}, &LookupError{Name: name, Err: err}
	}
	return addr, nil
}

// System resolves through the operating system resolver.
type System struct {
	resolver *net.Resolver
}

// NewSystem creates a resolver backed by net.DefaultResolver.
func NewSystem() *System {
	return &System{resolver: net.DefaultResolver}
}

// LookupHost implements Resolver.
func (s *System) LookupHost(ctx context.Context, name string) ([]netip.Addr, error) {
	if addr, err := netip.ParseAddr(name); err == nil {
		return []netip.Addr{addr}, nil
	}

	addrs, err := s.resolver.LookupNetIP(ctx, "ip", name)
	if err != nil {
		return nil, &LookupError{Name: name, Err: err}
	}
	if len(addrs) == 0 {
		return nil, &LookupError{Name: name, Err: ErrNoAddress}
	}
	return addrs, nil
}

// Static answers from a fixed host table. Names are matched case-insensitively.
type Static struct {
	hosts map[string][]netip.Addr
}

// NewStatic creates a static resolver from a name to addresses table.
func NewStatic(hosts map[string][]netip.Addr) *Static {
	s := &Static{hosts: make(map[string][]netip.Addr, len(hosts))}
	for name, addrs := range hosts {
		s.hosts[strings.ToLower(name)] = addrs
	}
	return s
}

// ParseStatic builds a static resolver from textual addresses, as found in
// configuration files.
func ParseStatic(hosts map[string][]string) (*Static, error) {
	table := make(map[string][]netip.Addr, len(hosts))
	for name, list := range hosts {
		for _, raw := range list {
			addr, err := netip.ParseAddr(raw)
			if err != nil {
				return nil, fmt.Errorf("host %s: %w", name, err)
			}
			table[name] = append(table[name], addr)
		}
	}
	return NewStatic(table), nil
}

// LookupHost implements Resolver.
func (s *Static) LookupHost(_ context.Context, name string) ([]netip.Addr, error) {
	if addr, err := netip.ParseAddr(name); err == nil {
		return []netip.Addr{addr}, nil
	}
	addrs, ok := s.hosts[strings.ToLower(name)]
	if !ok || len(addrs) == 0 {
		return nil, &LookupError{Name: name, Err: ErrNoAddress}
	}
	out := make([]netip.Addr, len(addrs))
	copy(out, addrs)
	return out, nil
}

// Has reports whether the table holds an entry for name.
func (s *Static) Has(name string) bool {
	_, ok := s.hosts[strings.ToLower(name)]
	return ok
}

// Chain consults a static override table before falling back.
type Chain struct {
	overrides *Static
	fallback  Resolver
}

// NewChain creates a resolver answering from overrides first.
func NewChain(overrides *Static, fallback Resolver) *Chain {
	return &Chain{overrides: overrides, fallback: fallback}
}

// LookupHost implements Resolver.
func (c *Chain) LookupHost(ctx context.Context, name string) ([]netip.Addr, error) {
	if c.overrides != nil && c.overrides.Has(name) {
		return c.overrides.LookupHost(ctx, name)
	}
	return c.fallback.LookupHost(ctx, name)
}
