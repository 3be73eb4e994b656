package main

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWhoisTime(t *testing.T) {
	want := time.Date(2019, 3, 14, 0, 0, 0, 0, time.UTC)
	for _, s := range []string{
		"2019-03-14",
		"2019-03-14T00:00:00Z",
		"2019-03-14T00:00:00",
		"2019-03-14 00:00:00",
		"14-Mar-2019",
		"2019.03.14",
		"14.03.2019",
		"2019/03/14",
		"  2019-03-14  ",
		"2019-03-14, 2020-01-01",
	} {
		got, err := parseWhoisTime(s)
		require.NoError(t, err, s)
		assert.True(t, want.Equal(got), "%q parsed as %v", s, got)
	}

	got, err := parseWhoisTime("2019-03-14T10:00:00+02:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2019, 3, 14, 8, 0, 0, 0, time.UTC), got)

	_, err = parseWhoisTime("last tuesday")
	assert.Error(t, err)
}

func TestIsWhoisCandidate(t *testing.T) {
	cases := map[string]bool{
		"example.com":        true,
		"shop.example.co.uk": true,
		"co.uk":              false,
		"com":                false,
		"":                   false,
		"192.0.2.1":          false,
		"example.com:8080":   false,
		"user@example.com":   false,
		"localhost":          false,
		"faceb00k-login.tk":  true,
	}
	for in, want := range cases {
		assert.Equal(t, want, isWhoisCandidate(in), in)
	}
}

func TestWhoisSourceSkipsNonCandidates(t *testing.T) {
	src := NewWhoisSource("", time.Second, 1, 1)
	_, err := src.CreationDate(context.Background(), "192.0.2.1")
	assert.ErrorIs(t, err, ErrNoRecord)
}

// startWhoisServer answers each query line with reply(query) and counts the queries.
func startWhoisServer(t *testing.T, reply func(query string) string) (string, *atomic.Int32) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	var queries atomic.Int32
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				line, err := bufio.NewReader(conn).ReadString('\n')
				if err != nil {
					return
				}
				queries.Add(1)
				fmt.Fprint(conn, reply(strings.TrimSpace(line)))
			}(conn)
		}
	}()
	return ln.Addr().String(), &queries
}

func registeredReply(query string) string {
	if strings.HasPrefix(query, "missing.") {
		return fmt.Sprintf("No match for %q.\n", strings.ToUpper(query))
	}
	return fmt.Sprintf("Domain Name: %s\nCreation Date: 2020-01-02T03:04:05Z\nRegistry Expiry Date: 2030-01-02T03:04:05Z\n",
		strings.ToUpper(query))
}

func TestWhoisSourceCreationDate(t *testing.T) {
	addr, queries := startWhoisServer(t, registeredReply)
	src := NewWhoisSource(addr, time.Second, 100, 10)

	created, err := src.CreationDate(context.Background(), "First.com.")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC), created)

	_, err = src.CreationDate(context.Background(), "missing.com")
	assert.ErrorIs(t, err, ErrNoRecord)
	assert.Equal(t, int32(2), queries.Load())
}

func TestWhoisThrottleIsRetried(t *testing.T) {
	addr, queries := startWhoisServer(t, registeredReply)
	src := NewWhoisSource(addr, time.Second, 5, 1)
	l := NewLookups(src, nil, nil, LookupOptions{Timeout: 100 * time.Millisecond})
	ctx := context.Background()

	_, ok := l.DomainAge(ctx, "first.com")
	require.True(t, ok)

	_, ok = l.DomainAge(ctx, "second.com")
	assert.False(t, ok, "no token within the lookup timeout")
	assert.Equal(t, int32(1), queries.Load())

	time.Sleep(300 * time.Millisecond)
	_, ok = l.DomainAge(ctx, "second.com")
	assert.True(t, ok, "a throttled lookup is not cached")
	assert.Equal(t, int32(2), queries.Load())
}
