package pac

import (
	"bytes"
	"errors"
	"log/slog"
	"net/netip"
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run evaluates expr in the engine runtime and exports the result.
func run(t *testing.T, e *Engine, expr string) any {
	t.Helper()
	v, err := e.rt.RunString(expr)
	require.NoError(t, err, expr)
	return v.Export()
}

// runErr evaluates expr and returns the thrown error.
func runErr(t *testing.T, e *Engine, expr string) error {
	t.Helper()
	_, err := e.rt.RunString(expr)
	require.Error(t, err, expr)
	return err
}

func TestHostFuncs_Installed(t *testing.T) {
	e := newTestEngine(t)

	for _, f := range hostFuncs {
		assert.Equal(t, "function", run(t, e, "typeof "+f.name), f.name)
	}
}

func TestDnsDomainIs(t *testing.T) {
	e := newTestEngine(t)

	assert.Equal(t, true, run(t, e, `dnsDomainIs("www.example.com", ".example.com")`))
	assert.Equal(t, true, run(t, e, `dnsDomainIs("www.example.com", "example.com")`))
	assert.Equal(t, false, run(t, e, `dnsDomainIs("www", ".example.com")`))
	assert.Equal(t, false, run(t, e, `dnsDomainIs(".example.com", "www.example.com")`))
}

func TestIsPlainHostName(t *testing.T) {
	e := newTestEngine(t)

	assert.Equal(t, true, run(t, e, `isPlainHostName("www")`))
	assert.Equal(t, false, run(t, e, `isPlainHostName("www.example.com")`))
	assert.Equal(t, true, run(t, e, `isPlainHostName("http://intranet/a.b")`))
	assert.Equal(t, false, run(t, e, `isPlainHostName("http://www.example.com/")`))
}

func TestLocalHostOrDomainIs(t *testing.T) {
	e := newTestEngine(t)

	assert.Equal(t, true, run(t, e, `localHostOrDomainIs("www", "www.example.com")`))
	assert.Equal(t, true, run(t, e, `localHostOrDomainIs("www.example.com", "www.example.com")`))
	assert.Equal(t, false, run(t, e, `localHostOrDomainIs("www.example.com", "www")`))
	assert.Equal(t, false, run(t, e, `localHostOrDomainIs("home", "www.example.com")`))
}

func TestIsInNet(t *testing.T) {
	e := newTestEngine(t)

	tests := []struct {
		expr string
		want bool
	}{
		{`isInNet("10.1.2.3", "10.0.0.0", "255.0.0.0")`, true},
		{`isInNet("192.168.1.1", "10.0.0.0", "255.0.0.0")`, false},
		{`isInNet("198.95.249.79", "198.95.249.79", "255.255.255.255")`, true},
		{`isInNet("198.95.6.8", "198.95.0.0", "255.255.0.0")`, true},
		{`isInNet("intranet.test", "10.0.0.0", "255.0.0.0")`, true},
		{`isInNet("www.example.com", "10.0.0.0", "255.0.0.0")`, false},
		{`isInNet("dual.test", "10.6.0.0", "255.255.0.0")`, true},
		// Set bits are counted, so 255.0.255.0 behaves as a /16.
		{`isInNet("10.0.9.9", "10.0.0.0", "255.0.255.0")`, true},
		{`isInNet("10.1.0.0", "10.0.0.0", "255.0.255.0")`, false},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			assert.Equal(t, tt.want, run(t, e, tt.expr))
		})
	}
}

func TestIsInNet_Errors(t *testing.T) {
	e := newTestEngine(t)

	err := runErr(t, e, `isInNet("six.test", "10.0.0.0", "255.0.0.0")`)
	assert.Contains(t, err.Error(), "IPv6")

	runErr(t, e, `isInNet("missing.test", "10.0.0.0", "255.0.0.0")`)
	runErr(t, e, `isInNet("10.0.0.1", "not-an-ip", "255.0.0.0")`)
	runErr(t, e, `isInNet("10.0.0.1", "10.0.0.0", "ffff::")`)
}

func TestDnsResolve(t *testing.T) {
	e := newTestEngine(t)

	assert.Equal(t, "10.5.5.5", run(t, e, `dnsResolve("intranet.test")`))
	assert.Equal(t, "10.6.6.6", run(t, e, `dnsResolve("dual.test")`))
	assert.Equal(t, "192.0.2.1", run(t, e, `dnsResolve("192.0.2.1")`))

	err := runErr(t, e, `dnsResolve("six.test")`)
	assert.Contains(t, err.Error(), "IPv6")
	runErr(t, e, `dnsResolve("missing.test")`)
}

func TestMyIpAddress(t *testing.T) {
	e := newTestEngine(t)

	require.NoError(t, e.SetMyIP("10.10.100.112"))
	assert.Equal(t, "10.10.100.112", run(t, e, `myIpAddress()`))

	require.NoError(t, e.SetMyIP(""))
	e.host.outbound = func() (netip.Addr, error) { return netip.Addr{}, errors.New("no route") }
	err := runErr(t, e, `myIpAddress()`)
	assert.Contains(t, err.Error(), "no route")
}

func TestShExpMatch(t *testing.T) {
	e := newTestEngine(t)

	assert.Equal(t, true, run(t, e, `shExpMatch("http://home.netscape.com/people/ari/index.html", "*/ari/*")`))
	assert.Equal(t, false, run(t, e, `shExpMatch("http://home.netscape.com/people/montulli/index.html", "*/ari/*")`))
	assert.Equal(t, true, run(t, e, `shExpMatch("www.example.com", "*.example.com")`))
	assert.Equal(t, 2, e.WildcardCacheLen())

	for i := 0; i < 5; i++ {
		run(t, e, `shExpMatch("mail.example.com", "*.example.com")`)
	}
	assert.Equal(t, 2, e.WildcardCacheLen())

	runErr(t, e, `shExpMatch("abc", "a(b")`)
	assert.Equal(t, 2, e.WildcardCacheLen())
}

func TestIsResolvable(t *testing.T) {
	e := newTestEngine(t)

	assert.Equal(t, true, run(t, e, `isResolvable("intranet.test")`))
	assert.Equal(t, false, run(t, e, `isResolvable("missing.test")`))
	assert.Equal(t, false, run(t, e, `isResolvable("six.test")`))
}

func TestDnsDomainLevels(t *testing.T) {
	e := newTestEngine(t)

	assert.EqualValues(t, 0, run(t, e, `dnsDomainLevels("www")`))
	assert.EqualValues(t, 2, run(t, e, `dnsDomainLevels("www.example.com")`))
}

func TestConvertAddr(t *testing.T) {
	e := newTestEngine(t)

	assert.EqualValues(t, 167772161, run(t, e, `convert_addr("10.0.0.1")`))
	assert.EqualValues(t, uint32(4294967295), run(t, e, `convert_addr("255.255.255.255")`))
	runErr(t, e, `convert_addr("bogus")`)
}

func TestAlert(t *testing.T) {
	var buf bytes.Buffer
	e, err := New(Config{Logger: slog.New(slog.NewTextHandler(&buf, nil))})
	require.NoError(t, err)
	defer e.Close()

	v, err := e.rt.RunString(`alert("hello", 42)`)
	require.NoError(t, err)
	assert.True(t, goja.IsUndefined(v))
	assert.Contains(t, buf.String(), "PAC alert")
	assert.Contains(t, buf.String(), "hello 42")
}

func TestHostFunc_ArgumentChecks(t *testing.T) {
	e := newTestEngine(t)

	tests := []struct {
		name string
		expr string
		want string
	}{
		{"too few", `dnsDomainIs("www.example.com")`, "expected 2 arguments, got 1"},
		{"too many", `isPlainHostName("a", "b")`, "expected 1 arguments, got 2"},
		{"arguments to myIpAddress", `myIpAddress("x")`, "expected 0 arguments, got 1"},
		{"number", `dnsDomainIs(1, "example.com")`, "argument 1 must be a string, got number"},
		{"undefined", `shExpMatch("abc", undefined)`, "argument 2 must be a string, got undefined"},
		{"null", `dnsResolve(null)`, "argument 1 must be a string, got null"},
		{"object", `isInNet({}, "10.0.0.0", "255.0.0.0")`, "argument 1 must be a string, got object"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := runErr(t, e, tt.expr)
			var exc *goja.Exception
			require.ErrorAs(t, err, &exc)
			assert.Contains(t, err.Error(), "TypeError")
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestHostFunc_ErrorsAreCatchable(t *testing.T) {
	e := newTestEngine(t)

	v := run(t, e, `(function () {
		try { dnsResolve("missing.test"); return "resolved"; }
		catch (err) { return "caught"; }
	})()`)
	assert.Equal(t, "caught", v)
}
