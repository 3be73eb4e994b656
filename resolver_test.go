package main

import (
	"context"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLiteralOrHostname(t *testing.T) {
	ip, done, err := literalOrHostname("192.0.2.7")
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, "192.0.2.7", ip.String())

	_, done, err = literalOrHostname("www.example.com")
	assert.NoError(t, err)
	assert.False(t, done)

	for _, bad := range []string{"2001:db8::1", "example.com:8080", "user@example.com", "a..b", ""} {
		_, _, err := literalOrHostname(bad)
		assert.Error(t, err, bad)
	}
}

func TestIsQueryableName(t *testing.T) {
	assert.True(t, isQueryableName("example.com."))
	assert.True(t, isQueryableName("_dmarc.example.com"))
	assert.False(t, isQueryableName("exa mple.com"))
	assert.False(t, isQueryableName(string(make([]byte, 64))+".com"))
}

// startDNSServer answers A queries from records and NXDOMAIN for anything else.
func startDNSServer(t *testing.T, records map[string]string) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	mux := dns.NewServeMux()
	mux.HandleFunc(".", func(w dns.ResponseWriter, req *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(req)
		q := req.Question[0]
		if ip, ok := records[q.Name]; ok && q.Qtype == dns.TypeA {
			m.Answer = append(m.Answer, &dns.A{
				Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 60},
				A:   net.ParseIP(ip),
			})
		} else {
			m.SetRcode(req, dns.RcodeNameError)
		}
		_ = w.WriteMsg(m)
	})

	started := make(chan struct{})
	srv := &dns.Server{PacketConn: pc, Handler: mux, NotifyStartedFunc: func() { close(started) }}
	go func() { _ = srv.ActivateAndServe() }()
	<-started
	t.Cleanup(func() { _ = srv.Shutdown() })
	return pc.LocalAddr().String()
}

func TestDNSResolver(t *testing.T) {
	addr := startDNSServer(t, map[string]string{"phish.example.": "203.0.113.9"})
	r := NewDNSResolver([]string{addr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ip, err := r.Resolve(ctx, "phish.example")
	require.NoError(t, err)
	assert.Equal(t, netip.MustParseAddr("203.0.113.9"), ip)

	_, err = r.Resolve(ctx, "missing.example")
	assert.ErrorContains(t, err, "NXDOMAIN")

	ip, err = r.Resolve(ctx, "198.51.100.1")
	require.NoError(t, err)
	assert.Equal(t, "198.51.100.1", ip.String())
}

func TestDNSResolverDefaultsPort(t *testing.T) {
	r := NewDNSResolver([]string{"192.0.2.53", "[2001:db8::53]:5353"})
	assert.Equal(t, []string{"192.0.2.53:53", "[2001:db8::53]:5353"}, r.servers)

	_, err := NewDNSResolver(nil).Resolve(context.Background(), "example.com")
	assert.Error(t, err)
}
