package store

import "github.com/VictoriaMetrics/metrics"

var (
	opsQuery  = metrics.NewCounter(`flatstore_ops_total{op="query"}`)
	opsFilter = metrics.NewCounter(`flatstore_ops_total{op="filter"}`)
	opsInsert = metrics.NewCounter(`flatstore_ops_total{op="insert"}`)
	opsUpsert = metrics.NewCounter(`flatstore_ops_total{op="upsert"}`)

	persistErrors   = metrics.NewCounter(`flatstore_persist_errors_total`)
	persistDuration = metrics.NewHistogram(`flatstore_persist_duration_seconds`)
)
