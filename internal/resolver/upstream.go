package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// UpstreamConfig configures a resolver that queries DNS servers directly.
type UpstreamConfig struct {
	Servers []string
	Timeout time.Duration
}

// Upstream resolves names by querying the configured DNS servers in order.
type Upstream struct {
	servers []string
	client  *dns.Client
}

// NewUpstream creates an upstream resolver.
func NewUpstream(cfg UpstreamConfig) (*Upstream, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("upstream resolver requires at least one server")
	}

	servers := make([]string, 0, len(cfg.Servers))
	for _, s := range cfg.Servers {
		// Ensure port is specified
		if _, _, err := net.SplitHostPort(s); err != nil {
			s = net.JoinHostPort(strings.Trim(s, "[]"), "53")
		}
		servers = append(servers, s)
	}

	client := &dns.Client{}
	if cfg.Timeout > 0 {
		client.Timeout = cfg.Timeout
	}

	return &Upstream{servers: servers, client: client}, nil
}

// LookupHost implements Resolver. AAAA records are only queried when the
// name has no A record, so IPv6-only names can be reported as such.
func (u *Upstream) LookupHost(ctx context.Context, name string) ([]netip.Addr, error) {
	if addr, err := netip.ParseAddr(name); err == nil {
		return []netip.Addr{addr}, nil
	}

	addrs, err := u.query(ctx, name, dns.TypeA)
	if err != nil {
		return nil, &LookupError{Name: name, Err: err}
	}
	if len(addrs) > 0 {
		return addrs, nil
	}

	addrs, err = u.query(ctx, name, dns.TypeAAAA)
	if err != nil {
		return nil, &LookupError{Name: name, Err: err}
	}
	if len(addrs) == 0 {
		return nil, &LookupError{Name: name, Err: ErrNoAddress}
	}
	return addrs, nil
}

func (u *Upstream) query(ctx context.Context, name string, qtype uint16) ([]netip.Addr, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), qtype)
	m.RecursionDesired = true

	var lastErr error
	for _, server := range u.servers {
		resp, _, err := u.client.ExchangeContext(ctx, m, server)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.Rcode == dns.RcodeNameError {
			return nil, ErrNoAddress
		}
		if resp.Rcode != dns.RcodeSuccess {
			lastErr = fmt.Errorf("DNS error: %s", dns.RcodeToString[resp.Rcode])
			continue
		}

		addrs := make([]netip.Addr, 0, len(resp.Answer))
		for _, ans := range resp.Answer {
			switch rr := ans.(type) {
			case *dns.A:
				if addr, ok := netip.AddrFromSlice(rr.A); ok {
					addrs = append(addrs, addr.Unmap())
				}
			case *dns.AAAA:
				if addr, ok := netip.AddrFromSlice(rr.AAAA); ok {
					addrs = append(addrs, addr)
				}
			}
		}
		return addrs, nil
	}

	return nil, lastErr
}
