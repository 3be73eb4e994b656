/*
File: whois.go
Version: 1.0.0
Description: WHOIS-backed DomainAgeSource. Queries are rate limited so bursts of new
             domains do not get the service banned by registry WHOIS servers.
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/likexian/whois"
	whoisparser "github.com/likexian/whois-parser"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
)

// whoisTimeLayouts is the fallback when whois-parser leaves the creation date unparsed.
var whoisTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05 MST",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02-Jan-2006",
	"02-Jan-2006 15:04:05 MST",
	"2006.01.02",
	"2006.01.02 15:04:05",
	"02.01.2006",
	"2006/01/02",
	"Mon Jan 2 15:04:05 MST 2006",
}

type WhoisSource struct {
	client  *whois.Client
	server  string
	limiter *rate.Limiter
}

// NewWhoisSource creates a source. An empty server follows the IANA referral for each TLD.
func NewWhoisSource(server string, timeout time.Duration, qps float64, burst int) *WhoisSource {
	return &WhoisSource{
		client:  whois.NewClient().SetTimeout(timeout),
		server:  server,
		limiter: rate.NewLimiter(rate.Limit(qps), burst),
	}
}

func (w *WhoisSource) CreationDate(ctx context.Context, domain string) (time.Time, error) {
	domain = strings.ToLower(strings.TrimSuffix(domain, "."))
	if !isWhoisCandidate(domain) {
		return time.Time{}, ErrNoRecord
	}
	if err := w.limiter.Wait(ctx); err != nil {
		return time.Time{}, fmt.Errorf("%w: whois: %w", ErrLookupThrottled, err)
	}

	type result struct {
		raw string
		err error
	}
	ch := make(chan result, 1)
	go func() {
		var servers []string
		if w.server != "" {
			servers = append(servers, w.server)
		}
		raw, err := w.client.Whois(domain, servers...)
		ch <- result{raw: raw, err: err}
	}()

	var res result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return time.Time{}, ctx.Err()
	}
	if res.err != nil {
		return time.Time{}, fmt.Errorf("whois query: %w", res.err)
	}

	info, err := whoisparser.Parse(res.raw)
	switch {
	case errors.Is(err, whoisparser.ErrDomainLimitExceed):
		return time.Time{}, fmt.Errorf("%w: %w", ErrLookupThrottled, err)
	case errors.Is(err, whoisparser.ErrNotFoundDomain):
		return time.Time{}, ErrNoRecord
	case err != nil:
		return time.Time{}, fmt.Errorf("whois parse: %w", err)
	}
	if info.Domain == nil {
		return time.Time{}, ErrNoRecord
	}
	if created := info.Domain.CreatedDateInTime; created != nil {
		return created.UTC(), nil
	}
	if info.Domain.CreatedDate == "" {
		return time.Time{}, ErrNoRecord
	}
	return parseWhoisTime(info.Domain.CreatedDate)
}

// isWhoisCandidate rejects inputs no registry can answer for: IP literals, names carrying a
// port or userinfo, and bare public suffixes such as "co.uk".
func isWhoisCandidate(domain string) bool {
	if domain == "" || strings.ContainsAny(domain, ":@/[] ") {
		return false
	}
	if _, err := netip.ParseAddr(domain); err == nil {
		return false
	}
	if !strings.Contains(domain, ".") {
		return false
	}
	suffix, _ := publicsuffix.PublicSuffix(domain)
	return suffix != domain
}

func parseWhoisTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	// Some registries list several dates; the first one is the registration.
	if i := strings.IndexByte(s, ','); i > 0 {
		s = strings.TrimSpace(s[:i])
	}
	for _, layout := range whoisTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized creation date %q", s)
}
