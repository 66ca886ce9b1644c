package http

import (
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// appMetrics tracks application-level counters exposed on /metrics.
type appMetrics struct {
	startedAt         time.Time
	transactionsTotal int64
	goalsTotal        int64
	summariesTotal    int64
	cacheHits         int64
	cacheMisses       int64
}

func newAppMetrics() *appMetrics {
	return &appMetrics{startedAt: time.Now()}
}

func (m *appMetrics) transactionCreated() { atomic.AddInt64(&m.transactionsTotal, 1) }
func (m *appMetrics) goalCreated()        { atomic.AddInt64(&m.goalsTotal, 1) }
func (m *appMetrics) summaryServed()      { atomic.AddInt64(&m.summariesTotal, 1) }
func (m *appMetrics) cacheHit()           { atomic.AddInt64(&m.cacheHits, 1) }
func (m *appMetrics) cacheMiss()          { atomic.AddInt64(&m.cacheMisses, 1) }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.startedAt).String(),
	})
}

// handleReady verifies the store answers before reporting ready.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if _, err := s.store.AvailablePeriods(r.Context()); err != nil {
		checks["store"] = fmt.Sprintf("failed: %v", err)
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["store"] = "ok"
	}

	checks["cache"] = map[string]any{
		"overview_entries": s.overviewCache.Size(),
		"period_entries":   s.periodsCache.Size(),
	}
	checks["rate_limiter"] = map[string]any{
		"active_clients": s.rateLimiter.activeClients(),
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics exposes counters in plain text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	fmt.Fprintf(w, "uptime_seconds %d\n", int64(time.Since(s.appMetrics.startedAt).Seconds()))
	fmt.Fprintf(w, "transactions_created_total %d\n", atomic.LoadInt64(&s.appMetrics.transactionsTotal))
	fmt.Fprintf(w, "goals_created_total %d\n", atomic.LoadInt64(&s.appMetrics.goalsTotal))
	fmt.Fprintf(w, "summaries_served_total %d\n", atomic.LoadInt64(&s.appMetrics.summariesTotal))
	fmt.Fprintf(w, "cache_hits_total %d\n", atomic.LoadInt64(&s.appMetrics.cacheHits))
	fmt.Fprintf(w, "cache_misses_total %d\n", atomic.LoadInt64(&s.appMetrics.cacheMisses))
	fmt.Fprintf(w, "rate_limit_hits_total %d\n", atomic.LoadInt64(&s.secMetrics.rateLimitHits))
	fmt.Fprintf(w, "cache_overview_entries %d\n", s.overviewCache.Size())
	fmt.Fprintf(w, "rate_limiter_active_clients %d\n", s.rateLimiter.activeClients())
}
