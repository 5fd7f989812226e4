package discovery

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
)

// MinPrefixLen is the widest prefix a single range may use (/16, 65534 hosts).
const MinPrefixLen = 16

var (
	// ErrUnsupportedPrefix is returned for IPv6 or otherwise unusable input.
	ErrUnsupportedPrefix = errors.New("unsupported prefix")
	// ErrRangeTooLarge is returned when a range or range set exceeds its host limit.
	ErrRangeTooLarge = errors.New("range too large")
)

// ParseRange parses a CIDR or a bare IPv4 address (treated as /32) and masks
// it to its network address.
func ParseRange(s string) (netip.Prefix, error) {
	s = strings.TrimSpace(s)
	var (
		p   netip.Prefix
		err error
	)
	if strings.Contains(s, "/") {
		p, err = netip.ParsePrefix(s)
	} else {
		var a netip.Addr
		a, err = netip.ParseAddr(s)
		if err == nil {
			p = netip.PrefixFrom(a, a.BitLen())
		}
	}
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("%w: %q: %v", ErrUnsupportedPrefix, s, err)
	}
	if !p.Addr().Is4() {
		return netip.Prefix{}, fmt.Errorf("%w: %q is not IPv4", ErrUnsupportedPrefix, s)
	}
	if p.Bits() < MinPrefixLen {
		return netip.Prefix{}, fmt.Errorf("%w: %s is wider than /%d", ErrRangeTooLarge, p, MinPrefixLen)
	}
	return p.Masked(), nil
}

// CountHosts returns the number of usable hosts in p without expanding it.
// Network and broadcast are excluded except for /31 and /32. p must be IPv4.
func CountHosts(p netip.Prefix) uint64 {
	hostBits := p.Addr().BitLen() - p.Bits()
	switch {
	case hostBits <= 0:
		return 1
	case hostBits == 1:
		return 2
	default:
		return 1<<uint(hostBits) - 2
	}
}

// ExpandCIDR returns every usable host address in cidr in ascending order.
// A /24 yields 254 addresses; /31 yields both point-to-point addresses.
func ExpandCIDR(cidr string) ([]netip.Addr, error) {
	p, err := ParseRange(cidr)
	if err != nil {
		return nil, err
	}
	return expandPrefix(p), nil
}

func expandPrefix(p netip.Prefix) []netip.Addr {
	hosts := make([]netip.Addr, 0, CountHosts(p))
	first := p.Addr()
	if p.Bits() >= 31 {
		for a := first; a.IsValid() && p.Contains(a); a = a.Next() {
			hosts = append(hosts, a)
		}
		return hosts
	}

	// Skip the network address, stop before broadcast.
	for a := first.Next(); a.IsValid() && p.Contains(a); a = a.Next() {
		if !p.Contains(a.Next()) {
			break
		}
		hosts = append(hosts, a)
	}
	return hosts
}

// ExpandRanges expands several ranges, dropping duplicates while keeping the
// first-seen order. It fails before allocating when the total would exceed
// limit; a limit of zero means unbounded.
func ExpandRanges(ranges []string, limit int) ([]netip.Addr, error) {
	prefixes, err := parseRanges(ranges)
	if err != nil {
		return nil, err
	}
	var total uint64
	for _, p := range prefixes {
		total += CountHosts(p)
	}
	if limit > 0 && total > uint64(limit) {
		return nil, fmt.Errorf("%w: %d hosts exceeds limit of %d", ErrRangeTooLarge, total, limit)
	}

	seen := make(map[netip.Addr]struct{}, total)
	out := make([]netip.Addr, 0, total)
	for _, p := range prefixes {
		for _, a := range expandPrefix(p) {
			if _, dup := seen[a]; dup {
				continue
			}
			seen[a] = struct{}{}
			out = append(out, a)
		}
	}
	return out, nil
}

// containedIn reports whether addr falls in any of the given prefixes.
func containedIn(addr netip.Addr, prefixes []netip.Prefix) bool {
	for _, p := range prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func parseRanges(ranges []string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(ranges))
	for _, r := range ranges {
		p, err := ParseRange(r)
		if err != nil {
			return nil, err
		}
		prefixes = append(prefixes, p)
	}
	return prefixes, nil
}

func parseAddr(s string) (netip.Addr, bool) {
	a, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, false
	}
	return a, true
}

// ipNum is the numeric value of an IPv4 address, used as a sort key.
func ipNum(s string) int64 {
	a, ok := parseAddr(s)
	if !ok || !a.Is4() {
		return 0
	}
	b := a.As4()
	return int64(b[0])<<24 | int64(b[1])<<16 | int64(b[2])<<8 | int64(b[3])
}
