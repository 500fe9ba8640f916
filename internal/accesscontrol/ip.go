// Package accesscontrol decides which clients may use the API.
package accesscontrol

import (
	"fmt"
	"net/netip"
	"strings"
)

// PrefixSet matches addresses against single addresses and CIDR ranges.
type PrefixSet struct {
	prefixes []netip.Prefix
}

// ParsePrefixSet parses entries of the form "10.0.0.1" or "10.0.0.0/8".
func ParsePrefixSet(entries []string) (*PrefixSet, error) {
	s := &PrefixSet{}
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid CIDR: %s", entry)
			}
			s.prefixes = append(s.prefixes, prefix.Masked())
			continue
		}

		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid IP: %s", entry)
		}
		addr = addr.Unmap()
		s.prefixes = append(s.prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return s, nil
}

// Contains reports whether addr falls in any entry.
func (s *PrefixSet) Contains(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range s.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Len returns the number of entries.
func (s *PrefixSet) Len() int {
	return len(s.prefixes)
}
