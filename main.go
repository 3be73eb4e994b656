/*
File: main.go
Version: 1.0.0
Description: Startup sequence: configuration, logging, lists, model bundle, lookup sources,
             engine and API listeners. Also provides a one-shot CLI check mode.
*/

package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the YAML configuration file")
	checkURL := flag.String("check", "", "Evaluate a single URL, print the verdict and exit")
	flag.Parse()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		LogFatal("[MAIN] %v", err)
	}
	if err := InitLogger(cfg.Logging); err != nil {
		LogFatal("[MAIN] Failed to initialize logger: %v", err)
	}
	defer ShutdownLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bundle, err := LoadBundle(cfg.Model.BundlePath)
	if err != nil {
		LogFatal("[MAIN] Cannot start without a valid model bundle: %v", err)
	}

	engine, err := buildEngine(ctx, cfg, bundle)
	if err != nil {
		LogFatal("[MAIN] %v", err)
	}

	if *checkURL != "" {
		code := runCheck(ctx, engine, *checkURL, os.Stdout)
		stop()
		// os.Exit skips deferred calls; flush the async log buffer first.
		ShutdownLogger()
		os.Exit(code)
	}

	serve(ctx, cfg, engine, len(bundle.Models))
}

// buildEngine wires lists, lookup sources and the bundle into an Engine.
func buildEngine(ctx context.Context, cfg *Config, bundle *ModelBundle) (*Engine, error) {
	ec := cfg.Engine

	whitelist, err := LoadListSource(ctx, "whitelist", ec.Whitelist)
	if err != nil {
		return nil, err
	}
	blacklist, err := LoadListSource(ctx, "blacklist", ec.Blacklist)
	if err != nil {
		return nil, err
	}
	LogInfo("[MAIN] Lists loaded (Whitelist: %d, Blacklist: %d)", len(whitelist), len(blacklist))

	var ages DomainAgeSource
	if !cfg.Lookups.Whois.Disabled {
		ages = NewWhoisSource(cfg.Lookups.Whois.Server, ec.parsedLookupTimeout,
			cfg.Lookups.Whois.QPS, cfg.Lookups.Whois.Burst)
	} else {
		LogInfo("[MAIN] WHOIS lookups disabled")
	}

	var resolver HostResolver = SystemResolver{}
	if len(cfg.Lookups.DNS.Resolvers) > 0 {
		resolver = NewDNSResolver(cfg.Lookups.DNS.Resolvers)
		LogInfo("[MAIN] Resolving hosts via %v", cfg.Lookups.DNS.Resolvers)
	}

	var reputation ReputationSource = NeutralReputation{}
	if path := cfg.Lookups.Reputation.File; path != "" {
		feed, err := LoadCIDRReputation(path)
		if err != nil {
			return nil, err
		}
		LogInfo("[MAIN] Loaded %d reputation entries from %s", feed.Len(), path)
		reputation = feed
	}

	lookups := NewLookups(ages, resolver, reputation, LookupOptions{
		CacheSize: ec.LookupCacheSize,
		CacheTTL:  ec.parsedLookupCacheTTL,
		Timeout:   ec.parsedLookupTimeout,
	})

	rules := NewRuleEngine(RuleSet{
		Whitelist:      whitelist,
		Blacklist:      blacklist,
		SuspiciousTLDs: ec.SuspiciousTLDs,
		Keywords:       ec.RuleKeywords,
		Brands:         ec.Brands,
	}, lookups)

	return NewEngine(rules, NewFeatureExtractor(ec.Shorteners, ec.FeatureKeywords), NewEnsemble(bundle), EngineOptions{
		ResultCacheSize: ec.ResultCacheSize,
		ResultCacheTTL:  ec.parsedResultCacheTTL,
	}), nil
}

// runCheck evaluates one URL and writes the API response shape to out. It returns the exit code.
func runCheck(ctx context.Context, engine Evaluator, url string, out io.Writer) int {
	url = strings.TrimSpace(url)
	res, err := engine.Evaluate(ctx, url)
	if err != nil {
		LogError("[MAIN] Check of %s failed: %v", url, err)
		return 1
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(newCheckResponse(url, res)); err != nil {
		return 1
	}
	return 0
}

func serve(ctx context.Context, cfg *Config, engine *Engine, models int) {
	tlsConfig, err := loadTLSConfig(cfg.Server)
	if err != nil {
		LogFatal("[MAIN] %v", err)
	}

	var limiter *LimiterManager
	if cfg.RateLimit.Enabled {
		limiter = NewLimiter(cfg.RateLimit)
		go limiter.StartCleanupRoutine(ctx)
	}

	api := NewAPI(engine, cfg.Server, limiter, models)

	var wg sync.WaitGroup
	servers := startServers(&wg, cfg.Server, api.Router(), tlsConfig)

	<-ctx.Done()
	LogInfo("[MAIN] Shutting down (Timeout: %v, Cached results: %d)",
		cfg.Server.parsedShutdownTimeout, engine.CachedResults())

	start := time.Now()
	shutdownServers(servers, cfg.Server.parsedShutdownTimeout)
	wg.Wait()
	LogInfo("[MAIN] Stopped (Time: %v)", time.Since(start))
}
