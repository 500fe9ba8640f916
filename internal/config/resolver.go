package config

import (
	"fmt"

	"github.com/rennerdo30/pacparser/internal/resolver"
)

// Build creates the resolver described by c. Static hosts, when present,
// take precedence over the configured mode.
func (c ResolverConfig) Build() (resolver.Resolver, error) {
	var base resolver.Resolver
	switch c.Mode {
	case "", ResolverSystem:
		base = resolver.NewSystem()
	case ResolverUpstream:
		up, err := resolver.NewUpstream(resolver.UpstreamConfig{
			Servers: c.Servers,
			Timeout: c.Timeout.Duration(),
		})
		if err != nil {
			return nil, fmt.Errorf("upstream resolver: %w", err)
		}
		base = up
	default:
		return nil, fmt.Errorf("unknown resolver mode %q", c.Mode)
	}

	if len(c.Hosts) == 0 {
		return base, nil
	}
	static, err := resolver.ParseStatic(c.Hosts)
	if err != nil {
		return nil, fmt.Errorf("resolver hosts: %w", err)
	}
	return resolver.NewChain(static, base), nil
}
