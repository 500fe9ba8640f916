package dialer

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rennerdo30/pacparser/internal/directive"
)

// startEcho starts a TCP server echoing everything it reads.
func startEcho(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				io.Copy(conn, conn) //nolint:errcheck
			}()
		}
	}()
	return ln.Addr().String()
}

// closedAddr returns an address nothing listens on.
func closedAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func pipe(a, b net.Conn) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); io.Copy(a, b); a.Close() }() //nolint:errcheck
	go func() { defer wg.Done(); io.Copy(b, a); b.Close() }() //nolint:errcheck
	wg.Wait()
}

// connectProxy is a minimal CONNECT proxy recording the requests it saw.
type connectProxy struct {
	mu       sync.Mutex
	requests []*http.Request
	status   int
}

func (p *connectProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	p.requests = append(p.requests, r)
	status := p.status
	p.mu.Unlock()

	if r.Method != http.MethodConnect {
		http.Error(w, "CONNECT only", http.StatusMethodNotAllowed)
		return
	}
	if status != 0 {
		w.WriteHeader(status)
		return
	}

	target, err := net.Dial("tcp", r.Host)
	if err != nil {
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	conn, _, err := w.(http.Hijacker).Hijack()
	if err != nil {
		target.Close()
		return
	}
	io.WriteString(conn, "HTTP/1.1 200 Connection established\r\n\r\n") //nolint:errcheck
	pipe(conn, target)
}

func (p *connectProxy) last() *http.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.requests) == 0 {
		return nil
	}
	return p.requests[len(p.requests)-1]
}

// startSOCKS5 starts a no-auth SOCKS5 server supporting CONNECT.
func startSOCKS5(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveSOCKS5(conn)
		}
	}()
	return ln.Addr().String()
}

func serveSOCKS5(conn net.Conn) {
	defer conn.Close()

	hdr := make([]byte, 2)
	if _, err := io.ReadFull(conn, hdr); err != nil {
		return
	}
	if _, err := io.ReadFull(conn, make([]byte, hdr[1])); err != nil {
		return
	}
	conn.Write([]byte{5, 0}) //nolint:errcheck

	req := make([]byte, 4)
	if _, err := io.ReadFull(conn, req); err != nil {
		return
	}
	var host string
	switch req[3] {
	case 1:
		ip := make([]byte, 4)
		io.ReadFull(conn, ip) //nolint:errcheck
		host = net.IP(ip).String()
	case 3:
		n := make([]byte, 1)
		io.ReadFull(conn, n) //nolint:errcheck
		name := make([]byte, n[0])
		io.ReadFull(conn, name) //nolint:errcheck
		host = string(name)
	default:
		return
	}
	port := make([]byte, 2)
	if _, err := io.ReadFull(conn, port); err != nil {
		return
	}

	target, err := net.Dial("tcp", net.JoinHostPort(host, strconv.Itoa(int(binary.BigEndian.Uint16(port)))))
	if err != nil {
		conn.Write([]byte{5, 5, 0, 1, 0, 0, 0, 0, 0, 0}) //nolint:errcheck
		return
	}
	conn.Write([]byte{5, 0, 0, 1, 0, 0, 0, 0, 0, 0}) //nolint:errcheck
	pipe(conn, target)
}

func entryFor(t *testing.T, typ directive.Type, addr string) directive.Entry {
	t.Helper()
	host, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	return directive.Proxied(typ, host, port)
}

func assertEcho(t *testing.T, conn net.Conn) {
	t.Helper()
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	_, err := conn.Write([]byte("ping"))
	require.NoError(t, err)
	buf := make([]byte, 4)
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf))
}

func TestForEntry_Direct(t *testing.T) {
	echo := startEcho(t)

	d, err := ForEntry(directive.Direct(), nil)
	require.NoError(t, err)
	conn, err := d.DialContext(context.Background(), "tcp", echo)
	require.NoError(t, err)
	assertEcho(t, conn)
}

func TestForEntry_Unsupported(t *testing.T) {
	_, err := ForEntry(directive.Proxied(directive.TypeSOCKS4, "127.0.0.1", "1080"), nil)
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = ForEntry(directive.Proxied(directive.Type(99), "127.0.0.1", "1080"), nil)
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestForEntry_Connect(t *testing.T) {
	echo := startEcho(t)
	p := &connectProxy{}
	srv := httptest.NewServer(p)
	defer srv.Close()

	for _, typ := range []directive.Type{directive.TypeProxy, directive.TypeHTTP} {
		t.Run(typ.String(), func(t *testing.T) {
			d, err := ForEntry(entryFor(t, typ, srv.Listener.Addr().String()), nil,
				WithUserAgent("pacparser-test"), WithAuth("user", "pass"))
			require.NoError(t, err)

			conn, err := d.Dial("tcp", echo)
			require.NoError(t, err)
			assertEcho(t, conn)

			req := p.last()
			require.NotNil(t, req)
			assert.Equal(t, http.MethodConnect, req.Method)
			assert.Equal(t, echo, req.Host)
			assert.Equal(t, "pacparser-test", req.Header.Get("User-Agent"))
			assert.Equal(t, "Basic dXNlcjpwYXNz", req.Header.Get("Proxy-Authorization"))
		})
	}
}

func TestForEntry_ConnectRefused(t *testing.T) {
	p := &connectProxy{status: http.StatusForbidden}
	srv := httptest.NewServer(p)
	defer srv.Close()

	d, err := ForEntry(entryFor(t, directive.TypeProxy, srv.Listener.Addr().String()), nil)
	require.NoError(t, err)

	_, err = d.DialContext(context.Background(), "tcp", "127.0.0.1:9")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")

	_, err = d.DialContext(context.Background(), "udp", "127.0.0.1:9")
	assert.Error(t, err)
}

func TestForEntry_HTTPS(t *testing.T) {
	echo := startEcho(t)
	srv := httptest.NewTLSServer(&connectProxy{})
	defer srv.Close()

	tlsConfig := srv.Client().Transport.(*http.Transport).TLSClientConfig
	entry := entryFor(t, directive.TypeHTTPS, srv.Listener.Addr().String())

	d, err := ForEntry(entry, nil, WithTLSConfig(tlsConfig))
	require.NoError(t, err)
	conn, err := d.DialContext(context.Background(), "tcp", echo)
	require.NoError(t, err)
	assertEcho(t, conn)

	// The proxy certificate is not trusted without the test CA.
	d, err = ForEntry(entry, nil, WithTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12}))
	require.NoError(t, err)
	_, err = d.DialContext(context.Background(), "tcp", echo)
	assert.ErrorContains(t, err, "TLS handshake")
}

func TestForEntry_SOCKS5(t *testing.T) {
	echo := startEcho(t)
	socks := startSOCKS5(t)

	for _, typ := range []directive.Type{directive.TypeSOCKS, directive.TypeSOCKS5} {
		t.Run(typ.String(), func(t *testing.T) {
			d, err := ForEntry(entryFor(t, typ, socks), nil)
			require.NoError(t, err)
			conn, err := d.DialContext(context.Background(), "tcp", echo)
			require.NoError(t, err)
			assertEcho(t, conn)
		})
	}
}

func TestDialFirst(t *testing.T) {
	echo := startEcho(t)
	dead := entryFor(t, directive.TypeProxy, closedAddr(t))

	conn, used, err := DialFirst(context.Background(), []directive.Entry{
		dead,
		directive.Proxied(directive.TypeSOCKS4, "127.0.0.1", "1080"),
		directive.Direct(),
	}, "tcp", echo, WithTimeout(2*time.Second))
	require.NoError(t, err)
	assert.True(t, used.IsDirect())
	assertEcho(t, conn)
}

func TestDialFirst_AllFail(t *testing.T) {
	dead := entryFor(t, directive.TypeProxy, closedAddr(t))
	socks4 := directive.Proxied(directive.TypeSOCKS4, "127.0.0.1", "1080")

	_, _, err := DialFirst(context.Background(), []directive.Entry{dead, socks4}, "tcp", "127.0.0.1:9")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedType)

	var dialErr *DialError
	require.ErrorAs(t, err, &dialErr)
	assert.Equal(t, dead, dialErr.Entry)
	assert.Contains(t, err.Error(), "2 errors: ")
}

func TestDialFirst_Errors(t *testing.T) {
	_, _, err := DialFirst(context.Background(), nil, "tcp", "127.0.0.1:9")
	assert.ErrorIs(t, err, ErrNoEntries)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = DialFirst(ctx, []directive.Entry{directive.Direct()}, "tcp", "127.0.0.1:9")
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestTransport(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "through the tunnel") //nolint:errcheck
	}))
	defer target.Close()
	p := &connectProxy{}
	proxySrv := httptest.NewServer(p)
	defer proxySrv.Close()

	client := &http.Client{
		Transport: Transport([]directive.Entry{entryFor(t, directive.TypeProxy, proxySrv.Listener.Addr().String())}),
		Timeout:   5 * time.Second,
	}
	resp, err := client.Get(target.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "through the tunnel", string(body))
	assert.Equal(t, target.Listener.Addr().String(), p.last().Host)
}
