// Package dialer opens connections according to decoded proxy directives.
package dialer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/proxy"

	"github.com/rennerdo30/pacparser/internal/directive"
	"github.com/rennerdo30/pacparser/internal/util"
)

// Dialer errors.
var (
	ErrUnsupportedType = errors.New("unsupported proxy type")
	ErrNoEntries       = errors.New("no proxy entries")
)

// Dialer is satisfied by *net.Dialer and by the dialers this package returns.
type Dialer interface {
	proxy.Dialer
	proxy.ContextDialer
}

// DialError wraps a failure to connect through one directive.
type DialError struct {
	Entry directive.Entry
	Err   error
}

func (e *DialError) Error() string {
	return fmt.Sprintf("dial via %s: %v", e.Entry, e.Err)
}

func (e *DialError) Unwrap() error {
	return e.Err
}

// ForEntry returns a dialer that connects as entry directs, using forward to
// reach the proxy itself. A nil forward dials directly.
func ForEntry(entry directive.Entry, forward Dialer, opts ...Option) (Dialer, error) {
	o := newOptions(opts)
	if forward == nil {
		forward = &net.Dialer{Timeout: o.timeout}
	}

	if entry.IsDirect() {
		return forward, nil
	}

	switch entry.Type {
	case directive.TypeSOCKS, directive.TypeSOCKS5:
		d, err := proxy.SOCKS5("tcp", entry.Address(), o.auth, forward)
		if err != nil {
			return nil, err
		}
		cd, ok := d.(Dialer)
		if !ok {
			return nil, fmt.Errorf("socks5 dialer %T does not support contexts", d)
		}
		return cd, nil
	case directive.TypeProxy, directive.TypeHTTP:
		return &connectDialer{proxyAddr: entry.Address(), forward: forward, opts: o}, nil
	case directive.TypeHTTPS:
		return &connectDialer{proxyAddr: entry.Address(), forward: forward, opts: o, tls: true, serverName: entry.Host}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, entry.Type)
	}
}

// DialFirst tries entries in order and returns the first connection made,
// with the entry that made it.
func DialFirst(ctx context.Context, entries []directive.Entry, network, address string, opts ...Option) (net.Conn, directive.Entry, error) {
	if len(entries) == 0 {
		return nil, directive.Entry{}, ErrNoEntries
	}

	var errs util.MultiError
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			errs.Add(err)
			break
		}
		d, err := ForEntry(entry, nil, opts...)
		if err != nil {
			errs.Add(&DialError{Entry: entry, Err: err})
			continue
		}
		conn, err := d.DialContext(ctx, network, address)
		if err != nil {
			errs.Add(&DialError{Entry: entry, Err: err})
			continue
		}
		return conn, entry, nil
	}
	return nil, directive.Entry{}, errs.Err()
}

// Transport returns an HTTP transport whose connections follow entries.
func Transport(entries []directive.Entry, opts ...Option) *http.Transport {
	return &http.Transport{
		DialContext: func(ctx context.Context, network, address string) (net.Conn, error) {
			conn, _, err := DialFirst(ctx, entries, network, address, opts...)
			return conn, err
		},
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		MaxIdleConns:          4,
		IdleConnTimeout:       30 * time.Second,
	}
}
