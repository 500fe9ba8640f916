package accesscontrol

import (
	"net"
	"net/netip"
)

// Action represents the access control decision.
type Action string

const (
	ActionAllow Action = "allow"
	ActionDeny  Action = "deny"
)

// DenyReason provides context for denied requests.
type DenyReason string

const (
	ReasonDenied     DenyReason = "ip_denied"
	ReasonNotAllowed DenyReason = "ip_not_allowed"
	ReasonBadAddress DenyReason = "bad_address"
)

// Result represents an access control check result.
type Result struct {
	Action Action
	Reason DenyReason
}

// Config holds access controller configuration. An empty Allow list admits
// every address not denied.
type Config struct {
	Allow []string
	Deny  []string
}

// Controller is an immutable allow/deny list.
type Controller struct {
	allow *PrefixSet
	deny  *PrefixSet
}

// NewController creates a new access controller.
func NewController(cfg Config) (*Controller, error) {
	allow, err := ParsePrefixSet(cfg.Allow)
	if err != nil {
		return nil, err
	}
	deny, err := ParsePrefixSet(cfg.Deny)
	if err != nil {
		return nil, err
	}
	return &Controller{allow: allow, deny: deny}, nil
}

// Enabled reports whether any rule is configured.
func (c *Controller) Enabled() bool {
	return c.allow.Len() > 0 || c.deny.Len() > 0
}

// Check decides for addr. Deny entries win over allow entries.
func (c *Controller) Check(addr netip.Addr) Result {
	if c.deny.Contains(addr) {
		return Result{Action: ActionDeny, Reason: ReasonDenied}
	}
	if c.allow.Len() > 0 && !c.allow.Contains(addr) {
		return Result{Action: ActionDeny, Reason: ReasonNotAllowed}
	}
	return Result{Action: ActionAllow}
}

// CheckRemote decides for an http.Request RemoteAddr, with or without a port.
func (c *Controller) CheckRemote(remote string) Result {
	host := remote
	if h, _, err := net.SplitHostPort(remote); err == nil {
		host = h
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return Result{Action: ActionDeny, Reason: ReasonBadAddress}
	}
	return c.Check(addr)
}
