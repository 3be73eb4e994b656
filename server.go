/*
File: server.go
Version: 4.0.0
Description: HTTP API for URL checks (/health, /api/check-url, /api/batch-check) and the
             listener orchestration: HTTP/1.1 and HTTP/2 on TCP, optional HTTP/3 on QUIC.
*/

package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
	"golang.org/x/sync/errgroup"
)

// Evaluator is the engine as seen by the API.
type Evaluator interface {
	Evaluate(ctx context.Context, url string) (ScoredResult, error)
}

// ServerShutdowner interface for graceful shutdown
type ServerShutdowner interface {
	Shutdown(ctx context.Context) error
	String() string
}

// HTTPServerWrapper wraps http.Server to implement ServerShutdowner
type HTTPServerWrapper struct {
	*http.Server
	tls bool
}

func (w *HTTPServerWrapper) Shutdown(ctx context.Context) error {
	return w.Server.Shutdown(ctx)
}

func (w *HTTPServerWrapper) String() string {
	proto := "HTTP/1.1"
	if w.tls {
		proto = "HTTPS (HTTP/1.1&2)"
	}
	return fmt.Sprintf("Protocol: %s | Addr: %s", proto, w.Addr)
}

// HTTP3ServerWrapper wraps http3.Server to implement ServerShutdowner
type HTTP3ServerWrapper struct {
	*http3.Server
}

func (w *HTTP3ServerWrapper) Shutdown(ctx context.Context) error {
	return w.Server.Close()
}

func (w *HTTP3ServerWrapper) String() string {
	return fmt.Sprintf("Protocol: HTTP/3 (QUIC) | Addr: %s", w.Addr)
}

// --- API ---

type checkRequest struct {
	URL *string `json:"url"`
}

type batchRequest struct {
	URLs []string `json:"urls"`
}

type checkResponse struct {
	URL        string   `json:"url"`
	Prediction string   `json:"prediction"`
	RiskScore  float64  `json:"risk_score"`
	Reasons    []string `json:"reasons"`
	Status     string   `json:"status"`
	Safe       bool     `json:"safe"`
}

// batchError reports a single failed URL inside an otherwise successful batch.
type batchError struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// API serves the JSON endpoints.
type API struct {
	engine  Evaluator
	cfg     ServerConfig
	limiter *LimiterManager
	models  int
	started time.Time
}

func NewAPI(engine Evaluator, cfg ServerConfig, limiter *LimiterManager, models int) *API {
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = DefaultBatchLimit
	}
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = 1
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.parsedRequestTimeout <= 0 {
		cfg.parsedRequestTimeout = DefaultRequestTimeout
	}
	return &API{engine: engine, cfg: cfg, limiter: limiter, models: models, started: time.Now()}
}

// Router builds the chi router with all middleware attached.
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(echoRequestID)
	r.Use(middleware.Recoverer)
	r.Use(corsHeaders)
	if a.limiter != nil {
		r.Use(a.limiter.Middleware)
	}

	r.Get("/health", a.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.AllowContentType("application/json"))
		r.Post("/check-url", a.handleCheckURL)
		r.Post("/batch-check", a.handleBatchCheck)
	})
	return r
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"message": "URL risk API is running",
		"models":  a.models,
		"uptime":  time.Since(a.started).Round(time.Second).String(),
	})
}

func (a *API) handleCheckURL(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := a.decode(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.URL == nil {
		writeError(w, r, http.StatusBadRequest, "Missing 'url' in request body")
		return
	}
	url := strings.TrimSpace(*req.URL)
	if url == "" {
		writeError(w, r, http.StatusBadRequest, "URL cannot be empty")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), a.cfg.parsedRequestTimeout)
	defer cancel()

	res, err := a.engine.Evaluate(ctx, url)
	if err != nil {
		LogError("[API] %s check %s failed: %v", requestIDFrom(r.Context()), url, err)
		writeError(w, r, http.StatusInternalServerError, "Internal server error: "+err.Error())
		return
	}
	LogInfo("[API] %s Prediction for %s: %s, Score: %.2f", requestIDFrom(r.Context()), url, res.Label, res.RiskScore)
	writeJSON(w, http.StatusOK, newCheckResponse(url, res))
}

func (a *API) handleBatchCheck(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := a.decode(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.URLs == nil {
		writeError(w, r, http.StatusBadRequest, "Missing 'urls' array in request body")
		return
	}
	if len(req.URLs) > a.cfg.BatchLimit {
		writeError(w, r, http.StatusBadRequest, fmt.Sprintf("Maximum %d URLs per batch", a.cfg.BatchLimit))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), a.cfg.parsedRequestTimeout)
	defer cancel()

	start := time.Now()
	results := make([]any, len(req.URLs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.BatchConcurrency)
	for i, raw := range req.URLs {
		i, raw := i, raw
		g.Go(func() error {
			res, err := a.engine.Evaluate(gctx, strings.TrimSpace(raw))
			if err != nil {
				results[i] = batchError{URL: raw, Error: err.Error()}
				return nil
			}
			results[i] = newCheckResponse(raw, res)
			return nil
		})
	}
	_ = g.Wait()

	LogInfo("[API] %s Batch of %d URLs checked (Time: %v)", requestIDFrom(r.Context()), len(req.URLs), time.Since(start))
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (a *API) decode(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, a.cfg.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func newCheckResponse(url string, res ScoredResult) checkResponse {
	reasons := res.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	return checkResponse{
		URL:        url,
		Prediction: res.Label,
		RiskScore:  math.Round(res.RiskScore*100) / 100,
		Reasons:    reasons,
		Status:     riskStatus(res.Label, res.RiskScore),
		Safe:       res.Label != string(DecisionPhishing),
	}
}

// riskStatus maps a verdict onto the three states shown to end users.
func riskStatus(label string, score float64) string {
	switch {
	case label == string(DecisionBenign) || score <= 40:
		return "safe"
	case score < 80:
		return "suspicious"
	default:
		return "malicious"
	}
}

// --- Middleware ---

// echoRequestID returns the id assigned by middleware.RequestID so clients can quote it.
func echoRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(middleware.RequestIDHeader, middleware.GetReqID(r.Context()))
		next.ServeHTTP(w, r)
	})
}

func requestIDFrom(ctx context.Context) string {
	return middleware.GetReqID(ctx)
}

// corsHeaders allows browser extensions to call the API from any origin.
func corsHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, "+middleware.RequestIDHeader)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		LogDebug("[API] Write response failed: %v", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, RequestID: requestIDFrom(r.Context())})
}

// --- Listeners ---

func loadTLSConfig(cfg ServerConfig) (*tls.Config, error) {
	if cfg.TLS.CertFile == "" || cfg.TLS.KeyFile == "" {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(cfg.TLS.CertFile, cfg.TLS.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load tls key pair: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
		NextProtos:   []string{"h2", "http/1.1"},
	}, nil
}

func startServers(wg *sync.WaitGroup, cfg ServerConfig, handler http.Handler, tlsConfig *tls.Config) []ServerShutdowner {
	var servers []ServerShutdowner

	for _, addr := range cfg.Listen {
		srv := &http.Server{
			Addr:              addr,
			Handler:           handler,
			TLSConfig:         tlsConfig,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      cfg.parsedRequestTimeout + 5*time.Second,
		}
		wrapper := &HTTPServerWrapper{Server: srv, tls: tlsConfig != nil}

		wg.Add(1)
		go func() {
			defer wg.Done()
			LogInfo("Starting Server [%s]", wrapper.String())
			var err error
			if wrapper.tls {
				err = srv.ListenAndServeTLS("", "")
			} else {
				err = srv.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				LogError("Server [%s] stopped: %v", wrapper.String(), err)
			}
		}()
		servers = append(servers, wrapper)
	}

	if cfg.HTTP3.Enabled && tlsConfig != nil {
		addrs := []string{cfg.HTTP3.Listen}
		if cfg.HTTP3.Listen == "" {
			addrs = cfg.Listen
		}
		for _, addr := range addrs {
			h3TLS := tlsConfig.Clone()
			h3TLS.NextProtos = []string{http3.NextProtoH3}
			h3Server := &http3.Server{
				Addr:      addr,
				Handler:   handler,
				TLSConfig: h3TLS,
				QuicConfig: &quic.Config{
					Allow0RTT: false,
				},
			}
			h3Wrapper := &HTTP3ServerWrapper{h3Server}

			wg.Add(1)
			go func() {
				defer wg.Done()
				LogInfo("Starting Server [%s]", h3Wrapper.String())
				if err := h3Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					LogError("Server [%s] stopped: %v", h3Wrapper.String(), err)
				}
			}()
			servers = append(servers, h3Wrapper)
		}
	}

	return servers
}

// shutdownServers stops every listener, waiting at most timeout in total.
func shutdownServers(servers []ServerShutdowner, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var wg sync.WaitGroup
	for _, s := range servers {
		wg.Add(1)
		go func(s ServerShutdowner) {
			defer wg.Done()
			if err := s.Shutdown(ctx); err != nil {
				LogWarn("Shutdown [%s]: %v", s.String(), err)
			}
		}(s)
	}
	wg.Wait()
}
