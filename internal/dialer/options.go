package dialer

import (
	"crypto/tls"
	"time"

	"golang.org/x/net/proxy"
)

const defaultTimeout = 30 * time.Second

// Option configures ForEntry and DialFirst.
type Option func(*options)

type options struct {
	timeout   time.Duration
	tlsConfig *tls.Config
	auth      *proxy.Auth
	userAgent string
}

func newOptions(opts []Option) *options {
	o := &options{timeout: defaultTimeout}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithTimeout bounds each connection attempt. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithTLSConfig sets the TLS configuration used to reach HTTPS proxies.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(o *options) { o.tlsConfig = cfg }
}

// WithAuth sets credentials sent to SOCKS5 and HTTP proxies.
func WithAuth(user, password string) Option {
	return func(o *options) { o.auth = &proxy.Auth{User: user, Password: password} }
}

// WithUserAgent sets the User-Agent of CONNECT requests.
func WithUserAgent(ua string) Option {
	return func(o *options) { o.userAgent = ua }
}
