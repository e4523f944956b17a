package monitor

import (
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/fletar/fletar-backend/internal/observability"
)

const (
	queryStartKey    = "fletar:query_start"
	maxRecordedSQLen = 512
)

type QueryEvent struct {
	Operation    string    `json:"operation"`
	Table        string    `json:"table,omitempty"`
	SQL          string    `json:"sql"`
	DurationMs   int64     `json:"duration_ms"`
	RowsAffected int64     `json:"rows_affected"`
	Error        string    `json:"error,omitempty"`
	At           time.Time `json:"at"`
}

// QueryMonitor is a gorm plugin that records statements slower than
// Threshold into a ring buffer.
type QueryMonitor struct {
	Threshold time.Duration

	ring   *Ring[QueryEvent]
	mu     sync.Mutex
	counts map[string]int64
	slow   map[string]int64
}

func NewQueryMonitor(capacity int, threshold time.Duration) *QueryMonitor {
	return &QueryMonitor{
		Threshold: threshold,
		ring:      NewRing[QueryEvent](capacity),
		counts:    map[string]int64{},
		slow:      map[string]int64{},
	}
}

func (q *QueryMonitor) Name() string { return "fletar:query_monitor" }

func (q *QueryMonitor) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	type hook struct {
		op       string
		register func(before, after func(*gorm.DB)) error
	}
	hooks := []hook{
		{"create", func(b, a func(*gorm.DB)) error {
			if err := cb.Create().Before("gorm:create").Register("monitor:before_create", b); err != nil {
				return err
			}
			return cb.Create().After("gorm:create").Register("monitor:after_create", a)
		}},
		{"query", func(b, a func(*gorm.DB)) error {
			if err := cb.Query().Before("gorm:query").Register("monitor:before_query", b); err != nil {
				return err
			}
			return cb.Query().After("gorm:query").Register("monitor:after_query", a)
		}},
		{"update", func(b, a func(*gorm.DB)) error {
			if err := cb.Update().Before("gorm:update").Register("monitor:before_update", b); err != nil {
				return err
			}
			return cb.Update().After("gorm:update").Register("monitor:after_update", a)
		}},
		{"delete", func(b, a func(*gorm.DB)) error {
			if err := cb.Delete().Before("gorm:delete").Register("monitor:before_delete", b); err != nil {
				return err
			}
			return cb.Delete().After("gorm:delete").Register("monitor:after_delete", a)
		}},
		{"row", func(b, a func(*gorm.DB)) error {
			if err := cb.Row().Before("gorm:row").Register("monitor:before_row", b); err != nil {
				return err
			}
			return cb.Row().After("gorm:row").Register("monitor:after_row", a)
		}},
		{"raw", func(b, a func(*gorm.DB)) error {
			if err := cb.Raw().Before("gorm:raw").Register("monitor:before_raw", b); err != nil {
				return err
			}
			return cb.Raw().After("gorm:raw").Register("monitor:after_raw", a)
		}},
	}
	for _, h := range hooks {
		if err := h.register(q.before, q.after(h.op)); err != nil {
			return err
		}
	}
	return nil
}

func (q *QueryMonitor) before(db *gorm.DB) {
	db.InstanceSet(queryStartKey, time.Now())
}

func (q *QueryMonitor) after(op string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		v, ok := db.InstanceGet(queryStartKey)
		if !ok {
			return
		}
		start, ok := v.(time.Time)
		if !ok {
			return
		}
		q.observe(op, db, time.Since(start))
	}
}

func (q *QueryMonitor) observe(op string, db *gorm.DB, dur time.Duration) {
	q.mu.Lock()
	q.counts[op]++
	slow := dur >= q.Threshold
	if slow {
		q.slow[op]++
	}
	q.mu.Unlock()
	if !slow {
		return
	}
	observability.IncSlowQuery(op)

	ev := QueryEvent{
		Operation:  op,
		DurationMs: dur.Milliseconds(),
		At:         time.Now().UTC(),
	}
	if db.Statement != nil {
		ev.Table = db.Statement.Table
		ev.SQL = truncateSQL(db.Statement.SQL.String())
	}
	ev.RowsAffected = db.RowsAffected
	if db.Error != nil {
		ev.Error = db.Error.Error()
	}
	q.ring.Add(ev)
}

func (q *QueryMonitor) Snapshot(limit int) []QueryEvent {
	return q.ring.Snapshot(limit)
}

type QueryStats struct {
	Total map[string]int64 `json:"total"`
	Slow  map[string]int64 `json:"slow"`
}

func (q *QueryMonitor) Stats() QueryStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	st := QueryStats{Total: map[string]int64{}, Slow: map[string]int64{}}
	for k, v := range q.counts {
		st.Total[k] = v
	}
	for k, v := range q.slow {
		st.Slow[k] = v
	}
	return st
}

func truncateSQL(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > maxRecordedSQLen {
		return s[:maxRecordedSQLen] + "…"
	}
	return s
}
