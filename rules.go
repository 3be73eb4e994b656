/*
File: rules.go
Version: 1.0.0
Description: Deterministic rule layer. Produces a decisive verdict (benign via whitelist,
             phishing via blacklist or a high accumulated score) or defers to the ensemble.
*/

package main

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/idna"
)

type Decision string

const (
	DecisionBenign       Decision = "benign"
	DecisionPhishing     Decision = "phishing"
	DecisionUndetermined Decision = "undetermined"
)

const (
	phishingScoreThreshold = 70
	longURLThreshold       = 100
	idnPrefix              = "xn--"

	reasonWhitelisted = "whitelisted trusted domain"
	reasonBlacklisted = "blacklisted malicious domain"
	reasonIDN         = "IDN / Unicode homograph"
)

var bareIPv4Pattern = regexp.MustCompile(`^(\d{1,3}\.){3}\d{1,3}$`)

// RuleVerdict is the outcome of the rule layer. Score is always within [0,100].
type RuleVerdict struct {
	Decision Decision
	Score    int
	Reasons  []string
}

// Decisive reports whether the verdict bypasses the ensemble.
func (v RuleVerdict) Decisive() bool {
	return v.Decision == DecisionBenign || v.Decision == DecisionPhishing
}

// RuleSet is the static configuration of the rule layer.
type RuleSet struct {
	Whitelist      []string
	Blacklist      []string
	SuspiciousTLDs []string
	Keywords       []string
	Brands         []string
}

// RuleEngine is immutable after construction and safe for concurrent use.
type RuleEngine struct {
	whitelist      *DomainTrie[struct{}]
	blacklist      map[string]struct{}
	suspiciousTLDs []string
	keywords       []string
	brands         []brand
	signals        Signals
}

func NewRuleEngine(rs RuleSet, signals Signals) *RuleEngine {
	re := &RuleEngine{
		whitelist: NewDomainTrie[struct{}](),
		blacklist: make(map[string]struct{}, len(rs.Blacklist)),
		brands:    newBrands(rs.Brands),
		signals:   signals,
	}
	for _, d := range rs.Whitelist {
		re.whitelist.Insert(d, struct{}{}, true)
	}
	for _, d := range rs.Blacklist {
		if d = normalizeListDomain(d); d != "" {
			re.blacklist[d] = struct{}{}
		}
	}
	for _, tld := range rs.SuspiciousTLDs {
		re.suspiciousTLDs = append(re.suspiciousTLDs, strings.ToLower(tld))
	}
	for _, k := range rs.Keywords {
		re.keywords = append(re.keywords, strings.ToLower(k))
	}

	for d := range re.blacklist {
		if re.whitelist.Contains(d) {
			LogWarn("[RULES] %s is both blacklisted and whitelisted; the whitelist wins", d)
		}
	}
	LogInfo("[RULES] Ready (Whitelist: %d, Blacklist: %d, Brands: %d)",
		re.whitelist.Len(), len(re.blacklist), len(re.brands))
	return re
}

// Apply evaluates url. Lookup failures only remove their contribution.
func (re *RuleEngine) Apply(ctx context.Context, url string) RuleVerdict {
	host := hostOf(url)
	score := 0
	var reasons []string

	// Registration age
	if age, ok := re.signals.DomainAge(ctx, registeredDomain(host)); ok {
		switch {
		case age < 30:
			score += 30
			reasons = append(reasons, fmt.Sprintf("very young domain (%d days old)", age))
		case age < 180:
			score += 10
			reasons = append(reasons, fmt.Sprintf("newish domain (%d days old)", age))
		}
	}

	// Address reputation; an unresolved host is neutral.
	repScore := 0
	if ip, ok := re.signals.ResolveHost(ctx, host); ok {
		repScore = re.signals.IPReputation(ctx, ip)
	}
	switch {
	case repScore >= 80:
		score += 40
		reasons = append(reasons, fmt.Sprintf("IP has very bad reputation (score %d)", repScore))
	case repScore >= 50:
		score += 20
		reasons = append(reasons, fmt.Sprintf("IP has suspicious reputation (score %d)", repScore))
	}

	// Whitelist replaces the reasons gathered so far but keeps their score.
	if re.whitelist.Contains(host) {
		return RuleVerdict{Decision: DecisionBenign, Score: clampScore(score), Reasons: []string{reasonWhitelisted}}
	}

	if _, ok := re.blacklist[host]; ok {
		return RuleVerdict{Decision: DecisionPhishing, Score: 100, Reasons: []string{reasonBlacklisted}}
	}

	if isIDN(host) {
		score += 50
		reasons = append(reasons, reasonIDN)
		if IsDebugEnabled() {
			if unicodeHost, err := idna.ToUnicode(host); err == nil {
				LogDebug("[RULES] IDN host %s renders as %s", host, unicodeHost)
			}
		}
	}

	if b, ok := matchHomograph(host, re.brands); ok {
		score += 60
		reasons = append(reasons, "homograph of "+b)
	}

	if bareIPv4Pattern.MatchString(host) {
		score += 30
		reasons = append(reasons, "IP address used")
	}

	for _, tld := range re.suspiciousTLDs {
		if strings.HasSuffix(host, tld) {
			score += 20
			reasons = append(reasons, "suspicious TLD "+tld)
			break
		}
	}

	if utf8.RuneCountInString(url) > longURLThreshold {
		score += 20
		reasons = append(reasons, "very long URL")
	}

	lower := strings.ToLower(url)
	var found []string
	for _, k := range re.keywords {
		if strings.Contains(lower, k) {
			found = append(found, k)
		}
	}
	if len(found) > 0 {
		score += 10 + 2*len(found)
		reasons = append(reasons, "suspicious words: "+strings.Join(found, ", "))
	}

	score = clampScore(score)
	decision := DecisionUndetermined
	if score >= phishingScoreThreshold {
		decision = DecisionPhishing
	}
	return RuleVerdict{Decision: decision, Score: score, Reasons: reasons}
}

func isIDN(host string) bool {
	for _, label := range strings.Split(host, ".") {
		if strings.HasPrefix(label, idnPrefix) {
			return true
		}
	}
	return false
}

func clampScore(s int) int {
	return max(0, min(100, s))
}
