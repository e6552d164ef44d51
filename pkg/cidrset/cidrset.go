// Package cidrset implements CIDR range membership testing for IPv4 and
// IPv6 addresses. Used to decide whether the transport-layer peer of a
// request is a trusted reverse proxy before any forwarded-IP header is
// believed.
//
// Membership is a pure CPU-bound prefix check; no allocation on the hot
// path once the set is built.
package cidrset

import (
	"fmt"
	"net/netip"
)

// Set holds parsed prefixes split by address family so a lookup only scans
// prefixes of the matching family.
type Set struct {
	v4 []netip.Prefix
	v6 []netip.Prefix
}

// Parse builds a Set from CIDR strings. Bare addresses are accepted and
// treated as single-address prefixes.
func Parse(cidrs []string) (*Set, error) {
	s := &Set{}
	for _, c := range cidrs {
		p, err := netip.ParsePrefix(c)
		if err != nil {
			addr, aerr := netip.ParseAddr(c)
			if aerr != nil {
				return nil, fmt.Errorf("invalid CIDR %q: %w", c, err)
			}
			p = netip.PrefixFrom(addr, addr.BitLen())
		}
		p = p.Masked()
		if p.Addr().Is4() {
			s.v4 = append(s.v4, p)
		} else {
			s.v6 = append(s.v6, p)
		}
	}
	return s, nil
}

// MustParse is Parse that panics on error, for static default range lists.
func MustParse(cidrs []string) *Set {
	s, err := Parse(cidrs)
	if err != nil {
		panic(err)
	}
	return s
}

// Contains reports whether ip falls inside any prefix of the set.
// IPv4-mapped IPv6 addresses are unmapped before the check.
func (s *Set) Contains(ip netip.Addr) bool {
	ip = ip.Unmap()
	if ip.Is4() {
		for _, p := range s.v4 {
			if p.Contains(ip) {
				return true
			}
		}
		return false
	}
	for _, p := range s.v6 {
		if p.Contains(ip) {
			return true
		}
	}
	return false
}

// ContainsString parses the address and checks membership. Unparseable
// addresses are never members.
func (s *Set) ContainsString(addr string) bool {
	ip, err := netip.ParseAddr(addr)
	if err != nil {
		return false
	}
	return s.Contains(ip)
}

// Len returns the number of prefixes in the set.
func (s *Set) Len() int {
	return len(s.v4) + len(s.v6)
}
