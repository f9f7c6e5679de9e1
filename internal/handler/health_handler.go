package handler

import (
	"context"
	"database/sql"
	"net/http"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/doguto/nari-note-sub000/internal/observability"
	"github.com/doguto/nari-note-sub000/internal/response"
)

const healthTimeout = 5 * time.Second

// HealthCheckResult represents the result of a health check
type HealthCheckResult struct {
	Status    string                 `json:"status"`
	LatencyMs int64                  `json:"latency_ms"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// Health pings the database and, when rdb is not nil, Redis. Checks run
// in parallel; any failure answers 503.
func Health(db *sql.DB, rdb *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		checks := map[string]func(context.Context) HealthCheckResult{
			"database": func(ctx context.Context) HealthCheckResult { return checkDatabase(ctx, db) },
		}
		if rdb != nil {
			checks["redis"] = func(ctx context.Context) HealthCheckResult { return checkRedis(ctx, rdb) }
		}

		var (
			mu      sync.Mutex
			wg      sync.WaitGroup
			results = make(map[string]HealthCheckResult, len(checks))
		)
		for name, check := range checks {
			wg.Add(1)
			go func(name string, check func(context.Context) HealthCheckResult) {
				defer wg.Done()
				res := check(ctx)
				mu.Lock()
				results[name] = res
				mu.Unlock()
			}(name, check)
		}
		wg.Wait()

		status, code := "ok", http.StatusOK
		for _, res := range results {
			if res.Status != "up" {
				status, code = "degraded", http.StatusServiceUnavailable
			}
		}

		response.JSON(w, code, map[string]interface{}{
			"status":    status,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"checks":    results,
		})
	}
}

// checkDatabase verifies database connectivity
func checkDatabase(ctx context.Context, db *sql.DB) HealthCheckResult {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	if err != nil {
		return HealthCheckResult{
			Status:    "down",
			LatencyMs: latency.Milliseconds(),
			Error:     err.Error(),
		}
	}

	stats := db.Stats()
	observability.RecordDBStats(stats)

	return HealthCheckResult{
		Status:    "up",
		LatencyMs: latency.Milliseconds(),
		Metadata: map[string]interface{}{
			"connections_open":   stats.OpenConnections,
			"connections_in_use": stats.InUse,
			"connections_idle":   stats.Idle,
			"max_open":           stats.MaxOpenConnections,
		},
	}
}

func checkRedis(ctx context.Context, rdb *redis.Client) HealthCheckResult {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	if err != nil {
		return HealthCheckResult{
			Status:    "down",
			LatencyMs: latency.Milliseconds(),
			Error:     err.Error(),
		}
	}
	return HealthCheckResult{Status: "up", LatencyMs: latency.Milliseconds()}
}
