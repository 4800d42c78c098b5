package metrics

import (
	"github.com/jackc/pgx/v5/pgxpool"
)

// RecordDBPoolMetrics publishes a snapshot of pool.Stat().
func RecordDBPoolMetrics(pool *pgxpool.Pool) {
	s := pool.Stat()

	for state, n := range map[string]int32{
		"in_use":       s.AcquiredConns(),
		"idle":         s.IdleConns(),
		"constructing": s.ConstructingConns(),
		"total":        s.TotalConns(),
		"max":          s.MaxConns(),
	} {
		DBPoolConnections.WithLabelValues(state).Set(float64(n))
	}
	DBPoolAcquireWait.Set(s.AcquireDuration().Seconds())
}
