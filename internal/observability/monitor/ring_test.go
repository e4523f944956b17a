package monitor

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestRingSnapshotNewestFirst(t *testing.T) {
	r := NewRing[int](3)
	for i := 1; i <= 5; i++ {
		r.Add(i)
	}
	got := r.Snapshot(0)
	want := []int{5, 4, 3}
	if len(got) != len(want) {
		t.Fatalf("len=%d want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("snapshot[%d]=%d want %d", i, got[i], want[i])
		}
	}
	if r.Len() != 3 || r.Cap() != 3 {
		t.Fatalf("len/cap = %d/%d", r.Len(), r.Cap())
	}
	if lim := r.Snapshot(2); len(lim) != 2 || lim[0] != 5 {
		t.Fatalf("limited snapshot = %v", lim)
	}
}

func TestRingPartial(t *testing.T) {
	r := NewRing[string](4)
	r.Add("a")
	r.Add("b")
	got := r.Snapshot(10)
	if len(got) != 2 || got[0] != "b" || got[1] != "a" {
		t.Fatalf("snapshot = %v", got)
	}
}

func TestSubmissionMonitorObserversAndCounts(t *testing.T) {
	m := NewSubmissionMonitor(10)
	var seen []SubmissionEvent
	unsubscribe := m.Subscribe(ObserverFunc(func(ev SubmissionEvent) {
		seen = append(seen, ev)
	}))

	user := uuid.New()
	m.Record(KindCargaCreate, user, nil, 5*time.Millisecond)
	m.Record(KindCargaCreate, user, errors.New("boom"), time.Millisecond)

	if len(seen) != 2 {
		t.Fatalf("observer saw %d events", len(seen))
	}
	if seen[1].Status != StatusError || seen[1].Error != "boom" {
		t.Fatalf("unexpected error event: %+v", seen[1])
	}

	unsubscribe()
	m.Record(KindCamionCreate, user, nil, 0)
	if len(seen) != 2 {
		t.Fatalf("observer should be detached")
	}

	counts := m.Counts()
	if counts[KindCargaCreate][StatusOK] != 1 || counts[KindCargaCreate][StatusError] != 1 {
		t.Fatalf("counts = %v", counts)
	}
	snap := m.Snapshot(0)
	if len(snap) != 3 || snap[0].Kind != KindCamionCreate {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestSubmissionMonitorTrack(t *testing.T) {
	m := NewSubmissionMonitor(5)
	run := func() (err error) {
		defer m.Track(KindPostulacionApply, uuid.New())(&err)
		return errors.New("carga no disponible")
	}
	_ = run()
	snap := m.Snapshot(1)
	if len(snap) != 1 || snap[0].Status != StatusError {
		t.Fatalf("snapshot = %+v", snap)
	}
}
