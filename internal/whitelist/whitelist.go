// Package whitelist implements the IPv4-CIDR and exact-fingerprint skip
// lists the pipeline consults before any accounting happens.
package whitelist

import "net"

// Whitelist is immutable after construction and safe to share by reference
// across goroutines.
type Whitelist struct {
	networks     []*net.IPNet
	fingerprints map[string]struct{}
}

// New builds a Whitelist from CIDR strings and exact-match fingerprint
// strings. A malformed CIDR is a configuration error: New returns the
// parse error and no Whitelist.
func New(cidrs []string, fingerprints []string) (*Whitelist, error) {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			return nil, err
		}
		nets = append(nets, n)
	}

	fps := make(map[string]struct{}, len(fingerprints))
	for _, fp := range fingerprints {
		fps[fp] = struct{}{}
	}

	return &Whitelist{networks: nets, fingerprints: fps}, nil
}

// IsIPWhitelisted parses ip as IPv4 and reports whether any configured
// network contains it. A parse failure is not whitelisted.
func (w *Whitelist) IsIPWhitelisted(ip string) bool {
	addr := net.ParseIP(ip)
	if addr == nil {
		return false
	}
	v4 := addr.To4()
	if v4 == nil {
		return false
	}
	for _, n := range w.networks {
		if n.Contains(v4) {
			return true
		}
	}
	return false
}

// IsJA3Whitelisted reports exact membership of fp in the fingerprint set.
// An empty configured set whitelists nothing.
func (w *Whitelist) IsJA3Whitelisted(fp string) bool {
	if len(w.fingerprints) == 0 {
		return false
	}
	_, ok := w.fingerprints[fp]
	return ok
}
