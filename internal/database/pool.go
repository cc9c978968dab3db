package database

import (
	"context"
	"log/slog"
	"time"

	"tessera/internal/metrics"
)

// PoolStats is the subset of sql.DBStats the health endpoint exposes.
type PoolStats struct {
	MaxOpenConns int           `json:"max_open_connections"`
	OpenConns    int           `json:"open_connections"`
	InUse        int           `json:"in_use"`
	Idle         int           `json:"idle"`
	WaitCount    int64         `json:"wait_count"`
	WaitDuration time.Duration `json:"wait_duration"`
}

type HealthCheck struct {
	Status       string        `json:"status"`
	ResponseTime time.Duration `json:"response_time"`
	Error        string        `json:"error,omitempty"`
	Stats        PoolStats     `json:"stats"`
	// WriterWaiters counts sessions blocked on the writer advisory lock.
	WriterWaiters int       `json:"writer_waiters"`
	Timestamp     time.Time `json:"timestamp"`
}

func (db *DB) PoolStats() PoolStats {
	stats := db.Stats()
	return PoolStats{
		MaxOpenConns: stats.MaxOpenConnections,
		OpenConns:    stats.OpenConnections,
		InUse:        stats.InUse,
		Idle:         stats.Idle,
		WaitCount:    stats.WaitCount,
		WaitDuration: stats.WaitDuration,
	}
}

// HealthCheck pings the database and counts writers queued on the advisory
// lock. A long queue is the first sign sales will start failing with busy.
func (db *DB) HealthCheck(ctx context.Context) HealthCheck {
	start := time.Now()
	hc := HealthCheck{
		Timestamp: start,
		Stats:     db.PoolStats(),
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := db.PingContext(pingCtx)
	hc.ResponseTime = time.Since(start)
	if err != nil {
		hc.Status = "unhealthy"
		hc.Error = err.Error()
		slog.Error("Database health check failed", "error", err)
		return hc
	}
	hc.Status = "healthy"

	err = db.QueryRowContext(pingCtx, `
		SELECT count(*) FROM pg_locks
		WHERE locktype = 'advisory' AND NOT granted
		  AND ((classid::bigint << 32) | objid::bigint) = $1`, writerLockKey).Scan(&hc.WriterWaiters)
	if err != nil {
		slog.Warn("Could not count writer lock waiters", "error", err)
	}

	return hc
}

// ReportPoolStats publishes pool gauges and warns when the pool looks
// saturated.
func (db *DB) ReportPoolStats() {
	stats := db.Stats()

	metrics.DBConnections.WithLabelValues("in_use").Set(float64(stats.InUse))
	metrics.DBConnections.WithLabelValues("idle").Set(float64(stats.Idle))
	metrics.DBWaitSeconds.Set(stats.WaitDuration.Seconds())

	if stats.MaxOpenConnections > 0 && stats.InUse > stats.MaxOpenConnections*9/10 {
		slog.Warn("High connection usage detected",
			"in_use", stats.InUse, "max_open", stats.MaxOpenConnections)
	}
	if stats.WaitCount > 0 && stats.WaitDuration > time.Second {
		slog.Warn("High database wait times detected",
			"wait_count", stats.WaitCount, "wait_duration", stats.WaitDuration)
	}
}
