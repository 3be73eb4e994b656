/*
File: engine.go
Version: 1.0.0
Description: Decision orchestrator. Runs the rule layer first and only falls through to the
             feature extractor and ensemble when the rules stay undetermined.
             Results are memoized per trimmed URL in a bounded LRU.
*/

package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// ScoredResult is the final verdict for one URL. RiskScore is within [0,100].
type ScoredResult struct {
	Label     string   `json:"label"`
	RiskScore float64  `json:"risk_score"`
	Reasons   []string `json:"reasons"`
}

func (r ScoredResult) clone() ScoredResult {
	r.Reasons = append([]string(nil), r.Reasons...)
	return r
}

// URLRules is the rule layer as seen by the engine.
type URLRules interface {
	Apply(ctx context.Context, url string) RuleVerdict
}

// ProbabilityScorer is the ML layer as seen by the engine.
type ProbabilityScorer interface {
	Score(fv FeatureVector) (label string, prob float64, reasons []string, err error)
}

type EngineOptions struct {
	ResultCacheSize int
	ResultCacheTTL  time.Duration
}

// Engine is safe for concurrent use.
type Engine struct {
	rules     URLRules
	extractor *FeatureExtractor
	scorer    ProbabilityScorer
	results   *expirable.LRU[string, ScoredResult]
	flights   *ShardedGroup
}

func NewEngine(rules URLRules, extractor *FeatureExtractor, scorer ProbabilityScorer, opts EngineOptions) *Engine {
	if opts.ResultCacheSize <= 0 {
		opts.ResultCacheSize = DefaultResultCacheSize
	}
	return &Engine{
		rules:     rules,
		extractor: extractor,
		scorer:    scorer,
		results:   expirable.NewLRU[string, ScoredResult](opts.ResultCacheSize, nil, opts.ResultCacheTTL),
		flights:   NewShardedGroup(),
	}
}

// Evaluate scores url. Only inference failures are returned as errors and those are never cached.
func (e *Engine) Evaluate(ctx context.Context, url string) (ScoredResult, error) {
	key := strings.TrimSpace(url)

	if res, ok := e.results.Get(key); ok {
		if IsDebugEnabled() {
			LogDebug("[ENGINE] Cache Hit: %s -> %s (%.2f)", key, res.Label, res.RiskScore)
		}
		return res.clone(), nil
	}

	res, shared, err := flightDo(e.flights, key, func() (ScoredResult, error) {
		if r, ok := e.results.Get(key); ok {
			return r, nil
		}
		r, err := e.evaluate(ctx, key)
		if err != nil {
			return ScoredResult{}, err
		}
		e.results.Add(key, r)
		return r, nil
	})
	if err != nil {
		return ScoredResult{}, err
	}
	if shared && IsDebugEnabled() {
		LogDebug("[ENGINE] Joined in-flight evaluation for %s", key)
	}
	return res.clone(), nil
}

func (e *Engine) evaluate(ctx context.Context, url string) (ScoredResult, error) {
	start := time.Now()
	verdict := e.rules.Apply(ctx, url)

	if verdict.Decisive() {
		if IsDebugEnabled() {
			LogDebug("[ENGINE] Rule verdict for %s: %s (%d) %v (Time: %v)",
				url, verdict.Decision, verdict.Score, verdict.Reasons, time.Since(start))
		}
		return ScoredResult{
			Label:     string(verdict.Decision),
			RiskScore: float64(verdict.Score),
			Reasons:   append([]string(nil), verdict.Reasons...),
		}, nil
	}

	fv := e.extractor.Extract(url)
	label, prob, mlReasons, err := e.scorer.Score(fv)
	if err != nil {
		LogError("[ENGINE] Ensemble failed for %s: %v", url, err)
		return ScoredResult{}, fmt.Errorf("ensemble: %w", err)
	}

	reasons := make([]string, 0, len(verdict.Reasons)+len(mlReasons))
	reasons = append(reasons, verdict.Reasons...)
	reasons = append(reasons, mlReasons...)

	if IsDebugEnabled() {
		LogDebug("[ENGINE] ML verdict for %s: %s (%.4f), rule score %d (Time: %v)",
			url, label, prob, verdict.Score, time.Since(start))
	}
	return ScoredResult{Label: label, RiskScore: prob * 100, Reasons: reasons}, nil
}

// CachedResults reports the result cache occupancy.
func (e *Engine) CachedResults() int {
	return e.results.Len()
}
