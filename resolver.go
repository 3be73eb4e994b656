/*
File: resolver.go
Version: 1.0.0
Description: HostResolver implementations. DNSResolver races A queries across the configured
             resolvers with miekg/dns and returns the first address; SystemResolver uses the
             operating system resolver.
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"

	"github.com/miekg/dns"
)

// literalOrHostname returns the address for an IPv4 literal, or validates host as a name that
// can be queried. Names with ports, userinfo or empty labels are rejected.
func literalOrHostname(host string) (netip.Addr, bool, error) {
	if ip, err := netip.ParseAddr(host); err == nil {
		if ip.Is4() {
			return ip, true, nil
		}
		return netip.Addr{}, false, fmt.Errorf("not an IPv4 address: %s", host)
	}
	if !isQueryableName(host) {
		return netip.Addr{}, false, fmt.Errorf("not a hostname: %q", host)
	}
	return netip.Addr{}, false, nil
}

func isQueryableName(host string) bool {
	host = strings.TrimSuffix(host, ".")
	if host == "" || len(host) > 253 {
		return false
	}
	for _, label := range strings.Split(host, ".") {
		if label == "" || len(label) > 63 {
			return false
		}
		for i := 0; i < len(label); i++ {
			c := label[i]
			if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '-' || c == '_') {
				return false
			}
		}
	}
	return true
}

// SystemResolver resolves through net.DefaultResolver.
type SystemResolver struct{}

func (SystemResolver) Resolve(ctx context.Context, host string) (netip.Addr, error) {
	if ip, done, err := literalOrHostname(host); done || err != nil {
		return ip, err
	}
	ips, err := net.DefaultResolver.LookupNetIP(ctx, "ip4", host)
	if err != nil {
		return netip.Addr{}, err
	}
	if len(ips) == 0 {
		return netip.Addr{}, ErrNoRecord
	}
	return ips[0].Unmap(), nil
}

// DNSResolver queries the given servers (host:port) directly.
type DNSResolver struct {
	servers []string
	client  *dns.Client
}

func NewDNSResolver(servers []string) *DNSResolver {
	normalized := make([]string, 0, len(servers))
	for _, s := range servers {
		if _, _, err := net.SplitHostPort(s); err != nil {
			s = net.JoinHostPort(s, "53")
		}
		normalized = append(normalized, s)
	}
	return &DNSResolver{
		servers: normalized,
		client:  &dns.Client{Net: "udp"},
	}
}

func (r *DNSResolver) Resolve(ctx context.Context, host string) (netip.Addr, error) {
	if ip, done, err := literalOrHostname(host); done || err != nil {
		return ip, err
	}
	if len(r.servers) == 0 {
		return netip.Addr{}, errors.New("no dns resolvers configured")
	}

	type result struct {
		ip  netip.Addr
		err error
	}
	resultCh := make(chan result, len(r.servers))
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, server := range r.servers {
		go func(server string) {
			msg := new(dns.Msg)
			msg.SetQuestion(dns.Fqdn(host), dns.TypeA)
			msg.RecursionDesired = true

			resp, _, err := r.client.ExchangeContext(ctx, msg, server)
			if err != nil {
				resultCh <- result{err: err}
				return
			}
			if resp.Rcode != dns.RcodeSuccess {
				resultCh <- result{err: fmt.Errorf("%s answered %s", server, dns.RcodeToString[resp.Rcode])}
				return
			}
			for _, ans := range resp.Answer {
				if a, ok := ans.(*dns.A); ok {
					if ip, ok := netip.AddrFromSlice(a.A.To4()); ok {
						resultCh <- result{ip: ip}
						return
					}
				}
			}
			resultCh <- result{err: fmt.Errorf("no A records from %s", server)}
		}(server)
	}

	var lastErr error
	for range r.servers {
		select {
		case res := <-resultCh:
			if res.err == nil {
				return res.ip, nil
			}
			lastErr = res.err
		case <-ctx.Done():
			return netip.Addr{}, ctx.Err()
		}
	}
	return netip.Addr{}, fmt.Errorf("all resolvers failed: %w", lastErr)
}
