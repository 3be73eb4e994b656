/*
File: limiter.go
Version: 2.0.0
Description: Per-client token bucket limiting for the HTTP API.
             Small overshoots are paced (the request waits), large ones are dropped with 429.
             Client state lives in a sharded map and idle clients are swept periodically.
*/

package main

import (
	"context"
	"fmt"
	"hash/maphash"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Actions returned by the limiter
type LimitAction int

const (
	ActionAllow LimitAction = iota
	ActionDelay
	ActionDrop
)

func (a LimitAction) String() string {
	switch a {
	case ActionAllow:
		return "ALLOW"
	case ActionDelay:
		return "DELAY"
	case ActionDrop:
		return "DROP"
	default:
		return "UNKNOWN"
	}
}

const (
	limitShardCount = 256
	// maxPacingDelay is the longest a request is held back before it is dropped instead.
	maxPacingDelay = 1 * time.Second
)

// ClientState holds the rate limiter for a specific client
type ClientState struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type limiterShard struct {
	sync.Mutex
	clients map[string]*ClientState
}

type LimiterManager struct {
	shards  [limitShardCount]*limiterShard
	config  RateLimitConfig
	enabled bool
	seed    maphash.Seed
}

func NewLimiter(cfg RateLimitConfig) *LimiterManager {
	lm := &LimiterManager{
		config:  cfg,
		enabled: cfg.Enabled,
		seed:    maphash.MakeSeed(),
	}
	for i := 0; i < limitShardCount; i++ {
		lm.shards[i] = &limiterShard{
			clients: make(map[string]*ClientState),
		}
	}
	return lm
}

// StartCleanupRoutine removes idle client limiters until ctx is done.
func (lm *LimiterManager) StartCleanupRoutine(ctx context.Context) {
	if !lm.enabled {
		return
	}

	interval := lm.config.parsedCleanupInterval
	if interval == 0 {
		interval = 1 * time.Minute
	}

	LogInfo("[LIMITER] Starting cleanup routine (Interval: %v)", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			LogInfo("[LIMITER] Stopping cleanup routine")
			return
		case <-ticker.C:
			lm.cleanup(time.Now())
		}
	}
}

func (lm *LimiterManager) cleanup(now time.Time) int {
	expiration := lm.config.parsedClientExpiration
	if expiration == 0 {
		expiration = 5 * time.Minute
	}
	removedCount := 0

	for _, shard := range lm.shards {
		shard.Lock()
		for ip, state := range shard.clients {
			if now.Sub(state.lastSeen) > expiration {
				delete(shard.clients, ip)
				removedCount++
			}
		}
		shard.Unlock()
	}

	if removedCount > 0 {
		LogDebug("[LIMITER] Cleaned up %d idle client limiters", removedCount)
	}
	return removedCount
}

func (lm *LimiterManager) getShard(key string) *limiterShard {
	return lm.shards[maphash.String(lm.seed, key)&(limitShardCount-1)]
}

// Check evaluates one request from client against its token bucket.
// Returns action (Allow/Delay/Drop), delay duration, and reason string.
func (lm *LimiterManager) Check(client netip.Addr) (LimitAction, time.Duration, string) {
	if !lm.enabled || !client.IsValid() {
		return ActionAllow, 0, ""
	}

	key := client.Unmap().String()
	shard := lm.getShard(key)

	shard.Lock()
	state, exists := shard.clients[key]
	if !exists {
		state = &ClientState{
			limiter: rate.NewLimiter(rate.Limit(lm.config.ClientQPS), lm.config.ClientBurst),
		}
		shard.clients[key] = state
	}
	state.lastSeen = time.Now()
	reservation := state.limiter.Reserve()
	shard.Unlock()

	if !reservation.OK() {
		return ActionDrop, 0, "Client Rate Limit Exceeded (Burst 0)"
	}

	delay := reservation.Delay()
	if delay == 0 {
		return ActionAllow, 0, ""
	}
	if delay <= maxPacingDelay {
		return ActionDelay, delay, fmt.Sprintf("Client QPS Pacing (IP: %s, Delay: %v)", key, delay)
	}

	reservation.Cancel()
	return ActionDrop, 0, fmt.Sprintf("Client QPS Exceeded (IP: %s, Required Delay: %v > Limit: %v)",
		key, delay, maxPacingDelay)
}

// Middleware applies Check to every request, keyed by the remote address.
func (lm *LimiterManager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		action, delay, reason := lm.Check(clientAddr(r))
		switch action {
		case ActionDelay:
			if IsDebugEnabled() {
				LogDebug("[LIMITER] %s", reason)
			}
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-r.Context().Done():
				timer.Stop()
				return
			}
		case ActionDrop:
			LogWarn("[LIMITER] %s", reason)
			w.Header().Set("Retry-After", strconv.Itoa(int(maxPacingDelay/time.Second)))
			writeError(w, r, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientAddr(r *http.Request) netip.Addr {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}
	}
	return ip
}
