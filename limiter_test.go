package main

import (
	"net/http"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiterActions(t *testing.T) {
	lm := NewLimiter(RateLimitConfig{Enabled: true, ClientQPS: 1, ClientBurst: 1})
	client := netip.MustParseAddr("192.0.2.1")

	action, _, _ := lm.Check(client)
	assert.Equal(t, ActionAllow, action)

	action, delay, reason := lm.Check(client)
	assert.Equal(t, ActionDelay, action)
	assert.Greater(t, delay, time.Duration(0))
	assert.LessOrEqual(t, delay, maxPacingDelay)
	assert.Contains(t, reason, "Pacing")

	action, _, reason = lm.Check(client)
	assert.Equal(t, ActionDrop, action)
	assert.Contains(t, reason, "Exceeded")

	other, _, _ := lm.Check(netip.MustParseAddr("192.0.2.2"))
	assert.Equal(t, ActionAllow, other, "clients have separate buckets")
}

func TestLimiterMappedAddressesShareBucket(t *testing.T) {
	lm := NewLimiter(RateLimitConfig{Enabled: true, ClientQPS: 1, ClientBurst: 1})
	lm.Check(netip.MustParseAddr("192.0.2.1"))
	action, _, _ := lm.Check(netip.MustParseAddr("::ffff:192.0.2.1"))
	assert.Equal(t, ActionDelay, action)
}

func TestLimiterDisabled(t *testing.T) {
	lm := NewLimiter(RateLimitConfig{ClientQPS: 1, ClientBurst: 1})
	for i := 0; i < 5; i++ {
		action, _, _ := lm.Check(netip.MustParseAddr("192.0.2.1"))
		assert.Equal(t, ActionAllow, action)
	}

	enabled := NewLimiter(RateLimitConfig{Enabled: true, ClientQPS: 1, ClientBurst: 1})
	action, _, _ := enabled.Check(netip.Addr{})
	assert.Equal(t, ActionAllow, action, "unknown clients are not limited")
}

func TestLimiterCleanup(t *testing.T) {
	lm := NewLimiter(RateLimitConfig{Enabled: true, ClientQPS: 5, ClientBurst: 5})
	lm.Check(netip.MustParseAddr("192.0.2.1"))
	lm.Check(netip.MustParseAddr("192.0.2.2"))

	assert.Zero(t, lm.cleanup(time.Now()))
	assert.Equal(t, 2, lm.cleanup(time.Now().Add(10*time.Minute)))
	assert.Zero(t, lm.cleanup(time.Now().Add(20*time.Minute)))
}

func TestLimitActionString(t *testing.T) {
	assert.Equal(t, "ALLOW", ActionAllow.String())
	assert.Equal(t, "DELAY", ActionDelay.String())
	assert.Equal(t, "DROP", ActionDrop.String())
	assert.Equal(t, "UNKNOWN", LimitAction(9).String())
}

func TestClientAddr(t *testing.T) {
	cases := map[string]string{
		"192.0.2.1:5000":   "192.0.2.1",
		"[2001:db8::1]:80": "2001:db8::1",
		"198.51.100.4":     "198.51.100.4",
	}
	for remote, want := range cases {
		assert.Equal(t, want, clientAddr(&http.Request{RemoteAddr: remote}).String())
	}
	assert.False(t, clientAddr(&http.Request{RemoteAddr: "@"}).IsValid())
}
