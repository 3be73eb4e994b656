/*
File: homograph.go
Version: 1.0.0
Description: Edit distance and brand look-alike detection for registrable labels.
*/

package main

import (
	"strings"
)

// levenshtein is the classic dynamic-programming edit distance over runes.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	m, n := len(ra), len(rb)

	dp := make([][]int, m+1)
	for i := range dp {
		dp[i] = make([]int, n+1)
		dp[i][0] = i
	}
	for j := 0; j <= n; j++ {
		dp[0][j] = j
	}

	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			dp[i][j] = min(dp[i-1][j]+1, dp[i][j-1]+1, dp[i-1][j-1]+cost)
		}
	}
	return dp[m][n]
}

// brand is a protected domain and its comparison label ("paypal" for "paypal.com").
type brand struct {
	domain string
	label  string
}

func newBrands(domains []string) []brand {
	out := make([]brand, 0, len(domains))
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		label, _, _ := strings.Cut(d, ".")
		out = append(out, brand{domain: d, label: label})
	}
	return out
}

// domainLabel returns the second-to-last label of host, or host itself with fewer labels.
func domainLabel(host string) string {
	parts := strings.Split(host, ".")
	if len(parts) >= 2 {
		return parts[len(parts)-2]
	}
	return host
}

// registeredDomain returns the last two labels of host, or host itself with fewer labels.
func registeredDomain(host string) string {
	parts := strings.Split(host, ".")
	if len(parts) >= 2 {
		return parts[len(parts)-2] + "." + parts[len(parts)-1]
	}
	return host
}

// matchHomograph reports the first brand that host's label imitates without being equal to it.
func matchHomograph(host string, brands []brand) (string, bool) {
	label := strings.ToLower(strings.ReplaceAll(domainLabel(host), "-", ""))
	labelLen := len([]rune(label))

	for _, b := range brands {
		brandLen := len([]rune(b.label))
		diff := labelLen - brandLen
		if diff < -1 || diff > 1 {
			continue
		}
		dist := levenshtein(label, b.label)
		if diff == 0 && dist <= 2 && label != b.label {
			return b.domain, true
		}
		if diff != 0 && dist <= 1 {
			return b.domain, true
		}
	}
	return "", false
}
