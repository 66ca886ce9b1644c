// Package http serves the REST API: transactions, monthly income, savings
// goals, period catalog, monthly summaries and the dashboard aggregate.
package http

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"budgetd/internal/budget"
	"budgetd/internal/cache"
	"budgetd/internal/core"
	"budgetd/internal/log"
	"budgetd/internal/services"
)

type Server struct {
	http.Server

	store     budget.Store
	summaries *services.SummaryService
	goals     *services.GoalService
	logger    *log.Logger

	rateLimiter *rateLimiter

	// Month overviews and the period catalog are cheap to rebuild but hit
	// on every dashboard refresh, so they sit behind small TTL caches.
	overviewCache *cache.LRUCache[core.MonthOverview]
	periodsCache  *cache.LRUCache[core.Catalog]

	appMetrics *appMetrics
	secMetrics *securityMetrics

	stopCacheCleanup chan struct{}
	shutdownOnce     sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, store budget.Store, summaries *services.SummaryService, goals *services.GoalService, logger *log.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		store:            store,
		summaries:        summaries,
		goals:            goals,
		logger:           logger.WithComponent(log.ComponentHTTP),
		rateLimiter:      newRateLimiter(),
		overviewCache:    cache.NewLRUCache[core.MonthOverview](100, 5*time.Minute),
		periodsCache:     cache.NewLRUCache[core.Catalog](1, 5*time.Minute),
		appMetrics:       newAppMetrics(),
		secMetrics:       &securityMetrics{},
		stopCacheCleanup: make(chan struct{}),
	}

	go s.startCacheCleanup()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /transactions", s.withSecurityHeaders(s.handleListTransactions))
	mux.HandleFunc("POST /transactions", s.withSecurityHeaders(s.handleCreateTransaction))
	mux.HandleFunc("DELETE /transactions/{id}", s.withSecurityHeaders(s.handleDeleteTransaction))
	mux.HandleFunc("GET /categories", s.withSecurityHeaders(s.handleListCategories))

	mux.HandleFunc("GET /income", s.withSecurityHeaders(s.handleGetIncome))
	mux.HandleFunc("POST /income", s.withSecurityHeaders(s.handleUpsertIncome))

	mux.HandleFunc("GET /goals", s.withSecurityHeaders(s.handleListGoals))
	mux.HandleFunc("POST /goals", s.withSecurityHeaders(s.handleCreateGoal))
	mux.HandleFunc("GET /goals/{id}", s.withSecurityHeaders(s.handleGetGoal))
	mux.HandleFunc("PUT /goals/{id}", s.withSecurityHeaders(s.handleUpdateGoal))
	mux.HandleFunc("DELETE /goals/{id}", s.withSecurityHeaders(s.handleDeleteGoal))
	mux.HandleFunc("GET /goals/{id}/plan", s.withSecurityHeaders(s.handleGetGoalPlan))
	mux.HandleFunc("POST /goals/{id}/plan", s.withSecurityHeaders(s.handleRegeneratePlan))

	mux.HandleFunc("POST /summary", s.withSecurityHeaders(s.handleSummary))
	mux.HandleFunc("GET /overview", s.withSecurityHeaders(s.handleMonthOverview))
	mux.HandleFunc("GET /available-periods", s.withSecurityHeaders(s.handleAvailablePeriods))
	mux.HandleFunc("GET /dashboard", s.withSecurityHeaders(s.handleDashboard))

	return s
}

// withSecurityHeaders adds security headers, rate limiting and request
// logging to responses.
func (s *Server) withSecurityHeaders(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := extractClientIP(r)
		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		r = r.WithContext(ctx)

		s.logger.DebugContext(ctx, "Request started",
			log.FieldRequestID, requestID,
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldClientIP, clientIP)

		// Rate limit writes only; reads are cache-backed and cheap.
		if r.Method != http.MethodGet && !s.rateLimiter.allow(clientIP, s.secMetrics) {
			s.logger.WarnContext(ctx, "Rate limit exceeded",
				log.FieldClientIP, clientIP,
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded, try again later")
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		s.logger.InfoContext(ctx, "Request completed",
			log.FieldRequestID, requestID,
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldStatusCode, rw.statusCode,
			log.FieldDuration, time.Since(start).Milliseconds(),
			log.FieldClientIP, clientIP)
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// startCacheCleanup runs periodic cleanup for both caches.
func (s *Server) startCacheCleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			overviewCleaned := s.overviewCache.CleanExpired()
			periodsCleaned := s.periodsCache.CleanExpired()
			if overviewCleaned > 0 || periodsCleaned > 0 {
				s.logger.Debug("Cache cleanup completed",
					"overview_entries_removed", overviewCleaned,
					"period_entries_removed", periodsCleaned)
			}
		case <-s.stopCacheCleanup:
			return
		}
	}
}

// Shutdown gracefully shuts down the server and its cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		if s.stopCacheCleanup != nil {
			close(s.stopCacheCleanup)
		}
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

const periodsCacheKey = "periods"

func overviewCacheKey(year, month int) string {
	return strconv.Itoa(year) + "-" + strconv.Itoa(month)
}

// invalidatePeriod drops cached data touched by a write to (year, month).
func (s *Server) invalidatePeriod(year, month int) {
	s.overviewCache.Delete(overviewCacheKey(year, month))
	s.periodsCache.Delete(periodsCacheKey)
}

// getPeriods returns the period catalog, cached.
func (s *Server) getPeriods(ctx context.Context) (core.Catalog, error) {
	if catalog, found := s.periodsCache.Get(periodsCacheKey); found {
		s.appMetrics.cacheHit()
		return catalog, nil
	}
	s.appMetrics.cacheMiss()

	catalog, err := s.store.AvailablePeriods(ctx)
	if err != nil {
		return core.Catalog{}, err
	}
	s.periodsCache.Set(periodsCacheKey, catalog)
	return catalog, nil
}

// getOverview returns the aggregated month overview, cached.
func (s *Server) getOverview(ctx context.Context, year, month int) (core.MonthOverview, error) {
	key := overviewCacheKey(year, month)
	if ov, found := s.overviewCache.Get(key); found {
		s.appMetrics.cacheHit()
		return ov, nil
	}
	s.appMetrics.cacheMiss()

	txs, err := s.store.ListTransactions(ctx, year, month)
	if err != nil {
		return core.MonthOverview{}, err
	}
	income := core.Money{}
	if in, err := s.store.GetIncome(ctx, year, month); err == nil {
		income = in.Amount
	}

	ov := core.Summarize(year, month, txs, income)
	s.overviewCache.Set(key, ov)
	return ov, nil
}
