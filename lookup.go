/*
File: lookup.go
Version: 1.0.0
Description: Memoized, timeout-bounded external lookups used by the rule engine:
             domain registration age, host resolution and IP reputation.
             Failures are cached as "no signal" and never surface as errors; rate-limit
             refusals are retried on the next request instead.
*/

package main

import (
	"context"
	"errors"
	"math"
	"net/netip"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

var (
	// ErrNoRecord marks a lookup that completed but found nothing usable.
	ErrNoRecord = errors.New("no record")
	// ErrLookupThrottled marks a lookup refused by a rate limit. Such results are not cached.
	ErrLookupThrottled = errors.New("lookup throttled")
)

// DomainAgeSource returns the registration date of a registrable domain.
type DomainAgeSource interface {
	CreationDate(ctx context.Context, domain string) (time.Time, error)
}

// HostResolver resolves a hostname to one address.
type HostResolver interface {
	Resolve(ctx context.Context, host string) (netip.Addr, error)
}

// ReputationSource scores an address from 0 (neutral) to 100 (known bad).
type ReputationSource interface {
	Score(ctx context.Context, ip netip.Addr) (int, error)
}

// Signals is the view of the lookup layer the rule engine depends on.
type Signals interface {
	DomainAge(ctx context.Context, domain string) (int, bool)
	ResolveHost(ctx context.Context, host string) (netip.Addr, bool)
	IPReputation(ctx context.Context, ip netip.Addr) int
}

type optionalTime struct {
	t  time.Time
	ok bool
}

type optionalAddr struct {
	ip netip.Addr
	ok bool
}

// Lookups wraps the three sources with bounded LRU caches. The zero TTL keeps entries for
// the process lifetime; capacity pressure is the only eviction.
type Lookups struct {
	ages    *expirable.LRU[string, optionalTime]
	hosts   *expirable.LRU[string, optionalAddr]
	scores  *expirable.LRU[netip.Addr, int]
	flights *ShardedGroup

	ageSource  DomainAgeSource
	resolver   HostResolver
	reputation ReputationSource

	timeout time.Duration
	now     func() time.Time
}

type LookupOptions struct {
	CacheSize int
	CacheTTL  time.Duration
	Timeout   time.Duration
}

func NewLookups(ages DomainAgeSource, resolver HostResolver, reputation ReputationSource, opts LookupOptions) *Lookups {
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultLookupCacheSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultLookupTimeout
	}
	if reputation == nil {
		reputation = NeutralReputation{}
	}
	return &Lookups{
		ages:       expirable.NewLRU[string, optionalTime](opts.CacheSize, nil, opts.CacheTTL),
		hosts:      expirable.NewLRU[string, optionalAddr](opts.CacheSize, nil, opts.CacheTTL),
		scores:     expirable.NewLRU[netip.Addr, int](opts.CacheSize, nil, opts.CacheTTL),
		flights:    NewShardedGroup(),
		ageSource:  ages,
		resolver:   resolver,
		reputation: reputation,
		timeout:    opts.Timeout,
		now:        time.Now,
	}
}

// bounded derives a lookup context that ignores the caller's cancellation (the result is
// shared through the cache) but not the lookup timeout.
func (l *Lookups) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
}

// DomainAge returns whole days since registration. The creation date is cached rather than
// the day count so long-lived entries stay accurate.
func (l *Lookups) DomainAge(ctx context.Context, domain string) (int, bool) {
	if l.ageSource == nil || domain == "" {
		return 0, false
	}
	entry, ok := l.ages.Get(domain)
	if !ok {
		entry, _, _ = flightDo(l.flights, "age:"+domain, func() (optionalTime, error) {
			if e, ok := l.ages.Get(domain); ok {
				return e, nil
			}
			lctx, cancel := l.bounded(ctx)
			defer cancel()

			start := time.Now()
			created, err := l.ageSource.CreationDate(lctx, domain)
			e := optionalTime{t: created, ok: err == nil && !created.IsZero()}
			if err != nil && IsDebugEnabled() {
				LogDebug("[LOOKUP] Domain age for %s unavailable: %v (Time: %v)", domain, err, time.Since(start))
			}
			if !errors.Is(err, ErrLookupThrottled) {
				l.ages.Add(domain, e)
			}
			return e, nil
		})
	}
	if !entry.ok {
		return 0, false
	}
	return int(math.Floor(l.now().Sub(entry.t).Hours() / 24)), true
}

func (l *Lookups) ResolveHost(ctx context.Context, host string) (netip.Addr, bool) {
	if l.resolver == nil || host == "" {
		return netip.Addr{}, false
	}
	entry, ok := l.hosts.Get(host)
	if !ok {
		entry, _, _ = flightDo(l.flights, "host:"+host, func() (optionalAddr, error) {
			if e, ok := l.hosts.Get(host); ok {
				return e, nil
			}
			lctx, cancel := l.bounded(ctx)
			defer cancel()

			start := time.Now()
			ip, err := l.resolver.Resolve(lctx, host)
			e := optionalAddr{ip: ip, ok: err == nil && ip.IsValid()}
			if err != nil && IsDebugEnabled() {
				LogDebug("[LOOKUP] Resolve %s failed: %v (Time: %v)", host, err, time.Since(start))
			}
			if !errors.Is(err, ErrLookupThrottled) {
				l.hosts.Add(host, e)
			}
			return e, nil
		})
	}
	return entry.ip, entry.ok
}

// IPReputation returns 0 for invalid addresses and for any source failure.
func (l *Lookups) IPReputation(ctx context.Context, ip netip.Addr) int {
	if !ip.IsValid() {
		return 0
	}
	if score, ok := l.scores.Get(ip); ok {
		return score
	}
	score, _, _ := flightDo(l.flights, "rep:"+ip.String(), func() (int, error) {
		if s, ok := l.scores.Get(ip); ok {
			return s, nil
		}
		lctx, cancel := l.bounded(ctx)
		defer cancel()

		s, err := l.reputation.Score(lctx, ip)
		if err != nil {
			if IsDebugEnabled() {
				LogDebug("[LOOKUP] Reputation for %s unavailable: %v", ip, err)
			}
			s = 0
		}
		s = max(0, min(100, s))
		if !errors.Is(err, ErrLookupThrottled) {
			l.scores.Add(ip, s)
		}
		return s, nil
	})
	return score
}

// NeutralReputation scores every address 0. It is the default when no feed is configured.
type NeutralReputation struct{}

func (NeutralReputation) Score(context.Context, netip.Addr) (int, error) {
	return 0, nil
}
