package dialer

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"
)

// connectDialer tunnels through an HTTP proxy with CONNECT, optionally
// speaking TLS to the proxy first.
type connectDialer struct {
	proxyAddr  string
	forward    Dialer
	opts       *options
	tls        bool
	serverName string
}

func (d *connectDialer) Dial(network, address string) (net.Conn, error) {
	return d.DialContext(context.Background(), network, address)
}

func (d *connectDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	switch network {
	case "tcp", "tcp4", "tcp6":
	default:
		return nil, fmt.Errorf("CONNECT does not support network %q", network)
	}

	if d.opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.timeout)
		defer cancel()
	}

	conn, err := d.forward.DialContext(ctx, "tcp", d.proxyAddr)
	if err != nil {
		return nil, fmt.Errorf("dial proxy: %w", err)
	}

	if d.tls {
		cfg := &tls.Config{MinVersion: tls.VersionTLS12}
		if d.opts.tlsConfig != nil {
			cfg = d.opts.tlsConfig.Clone()
		}
		if cfg.ServerName == "" {
			cfg.ServerName = d.serverName
		}
		tlsConn := tls.Client(conn, cfg)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, fmt.Errorf("TLS handshake with proxy: %w", err)
		}
		conn = tlsConn
	}

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline) //nolint:errcheck
	}
	tunnel, err := d.connect(conn, address)
	if err != nil {
		conn.Close()
		return nil, err
	}
	tunnel.SetDeadline(time.Time{}) //nolint:errcheck
	return tunnel, nil
}

func (d *connectDialer) connect(conn net.Conn, address string) (net.Conn, error) {
	connectReq := &http.Request{
		Method: http.MethodConnect,
		URL: &url.URL{
			Opaque: address,
		},
		Host:   address,
		Header: make(http.Header),
	}
	if d.opts.userAgent != "" {
		connectReq.Header.Set("User-Agent", d.opts.userAgent)
	}
	if auth := d.opts.auth; auth != nil {
		creds := base64.StdEncoding.EncodeToString([]byte(auth.User + ":" + auth.Password))
		connectReq.Header.Set("Proxy-Authorization", "Basic "+creds)
	}

	if err := connectReq.Write(conn); err != nil {
		return nil, fmt.Errorf("write CONNECT: %w", err)
	}

	br := bufio.NewReader(conn)
	resp, err := http.ReadResponse(br, connectReq)
	if err != nil {
		return nil, fmt.Errorf("read CONNECT response: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("proxy returned status %d", resp.StatusCode)
	}

	if br.Buffered() > 0 {
		return &bufferedConn{Conn: conn, r: br}, nil
	}
	return conn, nil
}

// bufferedConn drains bytes read past the CONNECT response first.
type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func (c *bufferedConn) Read(p []byte) (int, error) {
	return c.r.Read(p)
}
