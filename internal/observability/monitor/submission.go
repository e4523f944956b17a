package monitor

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fletar/fletar-backend/internal/observability"
	"github.com/fletar/fletar-backend/internal/pkg/logger"
)

const DefaultCapacity = 200

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Submission kinds.
const (
	KindCargaCreate       = "carga.create"
	KindCargaUpdate       = "carga.update"
	KindCargaStatus       = "carga.status"
	KindCargaBulkUpload   = "carga.bulk_upload"
	KindCamionCreate      = "camion.create"
	KindCamionUpdate      = "camion.update"
	KindPostulacionApply  = "postulacion.apply"
	KindPostulacionStatus = "postulacion.transition"
	KindCalificacion      = "calificacion.create"
	KindSettingUpsert     = "setting.upsert"
	KindModuleToggle      = "module.toggle"
)

type SubmissionEvent struct {
	Kind       string    `json:"kind"`
	UserID     uuid.UUID `json:"user_id"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	At         time.Time `json:"at"`
}

type Observer interface {
	OnSubmission(SubmissionEvent)
}

type ObserverFunc func(SubmissionEvent)

func (f ObserverFunc) OnSubmission(ev SubmissionEvent) { f(ev) }

type SubmissionMonitor struct {
	ring *Ring[SubmissionEvent]

	mu        sync.RWMutex
	observers map[int]Observer
	nextID    int
	counts    map[string]map[string]int64
}

func NewSubmissionMonitor(capacity int) *SubmissionMonitor {
	return &SubmissionMonitor{
		ring:      NewRing[SubmissionEvent](capacity),
		observers: map[int]Observer{},
		counts:    map[string]map[string]int64{},
	}
}

// Subscribe registers o and returns a function that removes it.
func (m *SubmissionMonitor) Subscribe(o Observer) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.observers[id] = o
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.observers, id)
		m.mu.Unlock()
	}
}

func (m *SubmissionMonitor) Record(kind string, userID uuid.UUID, err error, dur time.Duration) {
	if m == nil {
		return
	}
	ev := SubmissionEvent{
		Kind:       kind,
		UserID:     userID,
		Status:     StatusOK,
		DurationMs: dur.Milliseconds(),
		At:         time.Now().UTC(),
	}
	if err != nil {
		ev.Status = StatusError
		ev.Error = err.Error()
	}
	m.ring.Add(ev)
	observability.IncSubmission(kind, ev.Status)

	m.mu.Lock()
	byStatus := m.counts[kind]
	if byStatus == nil {
		byStatus = map[string]int64{}
		m.counts[kind] = byStatus
	}
	byStatus[ev.Status]++
	observers := make([]Observer, 0, len(m.observers))
	for _, o := range m.observers {
		observers = append(observers, o)
	}
	m.mu.Unlock()

	for _, o := range observers {
		o.OnSubmission(ev)
	}
}

// Track starts timing a submission. Call the returned func with the
// operation's final error:
//
//	defer m.Track(kind, userID)(&err)
func (m *SubmissionMonitor) Track(kind string, userID uuid.UUID) func(*error) {
	if m == nil {
		return func(*error) {}
	}
	start := time.Now()
	return func(errp *error) {
		var err error
		if errp != nil {
			err = *errp
		}
		m.Record(kind, userID, err, time.Since(start))
	}
}

func (m *SubmissionMonitor) Snapshot(limit int) []SubmissionEvent {
	return m.ring.Snapshot(limit)
}

// Counts returns totals per kind and status since start-up.
func (m *SubmissionMonitor) Counts() map[string]map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]map[string]int64, len(m.counts))
	for kind, byStatus := range m.counts {
		cp := make(map[string]int64, len(byStatus))
		for s, n := range byStatus {
			cp[s] = n
		}
		out[kind] = cp
	}
	return out
}

// LogObserver logs failed submissions.
func LogObserver(log *logger.Logger) Observer {
	l := log.With("component", "SubmissionMonitor")
	return ObserverFunc(func(ev SubmissionEvent) {
		if ev.Status != StatusError {
			return
		}
		l.Warn("submission failed",
			"kind", ev.Kind,
			"user_id", ev.UserID.String(),
			"error", ev.Error,
			"duration_ms", ev.DurationMs,
		)
	})
}
