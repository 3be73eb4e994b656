/*
File: lists.go
Version: 1.0.0
Description: Loads whitelist/blacklist domains from inline config, files and URLs.
             Accepts plain DOMAINS lists and HOSTS files ("0.0.0.0 name1 name2").
*/

package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

const listFetchTimeout = 15 * time.Second

// LoadListSource resolves a ListSource into a de-duplicated, lowercased domain list.
// Unreadable files or URLs are startup errors.
func LoadListSource(ctx context.Context, name string, src ListSource) ([]string, error) {
	set := make(map[string]struct{})
	for _, d := range src.Domains {
		if d = normalizeListDomain(d); d != "" {
			set[d] = struct{}{}
		}
	}

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		firstErr error
	)

	maxConcurrency := runtime.NumCPU() * 2
	if maxConcurrency < 4 {
		maxConcurrency = 4
	}
	sem := make(chan struct{}, maxConcurrency)

	merge := func(key string, domains []string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("%s list source %s: %w", name, key, err)
			}
			return
		}
		for _, d := range domains {
			set[d] = struct{}{}
		}
		LogInfo("[LISTS] Loaded %s source %s (%d names)", name, key, len(domains))
	}

	load := func(key string, isURL bool) {
		defer wg.Done()
		sem <- struct{}{}
		defer func() { <-sem }()

		if isURL {
			domains, err := fetchListURL(ctx, key)
			merge(key, domains, err)
			return
		}
		f, err := os.Open(key)
		if err != nil {
			merge(key, nil, err)
			return
		}
		defer f.Close()
		domains, err := parseDomainList(f)
		merge(key, domains, err)
	}

	for _, p := range src.Files {
		wg.Add(1)
		go load(p, false)
	}
	for _, u := range src.URLs {
		wg.Add(1)
		go load(u, true)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}

	out := make([]string, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	sort.Strings(out)
	return out, nil
}

func fetchListURL(ctx context.Context, url string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, listFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return parseDomainList(resp.Body)
}

// parseDomainList reads one entry per line. '#' starts a comment. A line whose first field
// is an IP address is treated as a HOSTS line and every following name is taken.
func parseDomainList(r io.Reader) ([]string, error) {
	var out []string

	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if idx := bytes.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		fields := strings.Fields(string(line))
		if len(fields) == 0 {
			continue
		}

		names := fields[:1]
		if _, err := netip.ParseAddr(fields[0]); err == nil {
			names = fields[1:]
		}
		for _, n := range names {
			if d := normalizeListDomain(n); d != "" {
				if _, err := netip.ParseAddr(d); err == nil {
					continue
				}
				out = append(out, d)
			}
		}
	}
	return out, scanner.Err()
}

func normalizeListDomain(d string) string {
	return strings.ToLower(strings.Trim(strings.TrimSpace(d), "."))
}
