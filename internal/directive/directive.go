// Package directive decodes the proxy specification strings returned by
// FindProxyForURL into ordered, typed proxy directives.
package directive

import (
	"fmt"
	"net"
	"strings"
)

// Type is the proxy type token of a proxied directive.
type Type int

// Proxy types recognized in a proxy specification.
const (
	TypeProxy Type = iota + 1
	TypeSOCKS
	TypeHTTP
	TypeHTTPS
	TypeSOCKS4
	TypeSOCKS5
)

var typeNames = map[Type]string{
	TypeProxy:  "PROXY",
	TypeSOCKS:  "SOCKS",
	TypeHTTP:   "HTTP",
	TypeHTTPS:  "HTTPS",
	TypeSOCKS4: "SOCKS4",
	TypeSOCKS5: "SOCKS5",
}

// String returns the token used for the type in a proxy specification.
func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// MarshalText implements encoding.TextMarshaler.
func (t Type) MarshalText() ([]byte, error) {
	if _, ok := typeNames[t]; !ok {
		return nil, fmt.Errorf("unknown proxy type %d", int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Type) UnmarshalText(text []byte) error {
	for typ, name := range typeNames {
		if name == string(text) {
			*t = typ
			return nil
		}
	}
	return fmt.Errorf("unknown proxy type %q", text)
}

// Kind distinguishes a direct connection from a proxied one.
type Kind int

const (
	KindDirect Kind = iota
	KindProxied
)

// String returns a readable name for the kind.
func (k Kind) String() string {
	if k == KindDirect {
		return "direct"
	}
	return "proxied"
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "direct":
		*k = KindDirect
	case "proxied":
		*k = KindProxied
	default:
		return fmt.Errorf("unknown directive kind %q", text)
	}
	return nil
}

// Entry is one decoded directive. Host and Port are passed through as
// written in the proxy string and are not validated.
type Entry struct {
	Kind Kind   `json:"kind"`
	Type Type   `json:"type,omitempty"`
	Host string `json:"host,omitempty"`
	Port string `json:"port,omitempty"`
}

// Direct returns the DIRECT directive.
func Direct() Entry {
	return Entry{Kind: KindDirect}
}

// Proxied returns a typed proxy directive.
func Proxied(t Type, host, port string) Entry {
	return Entry{Kind: KindProxied, Type: t, Host: host, Port: port}
}

// IsDirect reports whether the entry requests a direct connection.
func (e Entry) IsDirect() bool {
	return e.Kind == KindDirect
}

// Address returns host:port of a proxied entry, or "" for DIRECT.
func (e Entry) Address() string {
	if e.IsDirect() {
		return ""
	}
	return net.JoinHostPort(e.Host, e.Port)
}

// String re-encodes the entry in proxy specification syntax.
func (e Entry) String() string {
	if e.IsDirect() {
		return directToken
	}
	return e.Type.String() + " " + e.Host + ":" + e.Port
}

// Format joins entries into a single proxy specification string.
func Format(entries []Entry) string {
	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = e.String()
	}
	return strings.Join(parts, "; ")
}
