package service

import (
	"context"
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/langchou/ringgazer/internal/api/ring"
	"github.com/langchou/ringgazer/internal/models"
	"github.com/langchou/ringgazer/internal/state"
)

type fakeConnRecorder struct {
	mu      sync.Mutex
	records []*models.Connectivity
}

func (f *fakeConnRecorder) Create(ctx context.Context, c *models.Connectivity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, c)
	return nil
}

func newObserver(distinct bool) (*LocationObserver, *observer.ObservedLogs) {
	core, logs := observer.New(zap.InfoLevel)
	loc := ring.Location{ID: "loc-1", Name: "Home"}
	return NewLocationObserver(zap.New(core), loc, state.NewMachine(loc.ID, loc.Name, distinct)), logs
}

func statusMessages(logs *observer.ObservedLogs) []string {
	var out []string
	for _, e := range logs.All() {
		switch e.Message {
		case "Connected to location", "Disconnected from location":
			out = append(out, e.Message)
		}
	}
	return out
}

func TestLocationObserverLogsTransitions(t *testing.T) {
	tests := []struct {
		name     string
		distinct bool
		signals  []bool
		want     []string
	}{
		{
			name:     "disconnect before first connect is dropped",
			distinct: true,
			signals:  []bool{false, false, true},
			want:     []string{"Connected to location"},
		},
		{
			name:     "distinct collapses duplicates",
			distinct: true,
			signals:  []bool{true, true, false, false, true},
			want:     []string{"Connected to location", "Disconnected from location", "Connected to location"},
		},
		{
			name:     "non-distinct logs every signal after first connect",
			distinct: false,
			signals:  []bool{false, true, true, false},
			want:     []string{"Connected to location", "Connected to location", "Disconnected from location"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs, logs := newObserver(tt.distinct)
			for _, s := range tt.signals {
				obs.observe(context.Background(), s)
			}

			got := statusMessages(logs)
			if len(got) != len(tt.want) {
				t.Fatalf("messages = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("messages[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestLocationObserverRecordsAndBroadcasts(t *testing.T) {
	obs, logs := newObserver(true)
	recorder := &fakeConnRecorder{}
	b := &fakeBroadcaster{}
	obs.recorder = recorder
	obs.broadcaster = b

	obs.observe(context.Background(), true)
	obs.observe(context.Background(), false)

	if len(recorder.records) != 2 {
		t.Fatalf("records = %d, want 2", len(recorder.records))
	}
	if !recorder.records[0].Connected || recorder.records[1].Connected {
		t.Errorf("records = %+v, %+v", recorder.records[0], recorder.records[1])
	}
	if recorder.records[0].LocationName != "Home" {
		t.Errorf("location name = %q", recorder.records[0].LocationName)
	}
	if got := b.types(); len(got) != 2 || got[0] != "connectivity" {
		t.Errorf("broadcast = %v", got)
	}

	entry := logs.FilterMessage("Connected to location").All()[0]
	if entry.ContextMap()["location"] != "Home" {
		t.Errorf("location field = %v", entry.ContextMap()["location"])
	}
}

func TestLocationObserverRun(t *testing.T) {
	obs, logs := newObserver(true)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		obs.Run(ctx)
		close(done)
	}()

	obs.Signal(true)
	obs.Signal(false)

	waitFor(t, func() bool { return len(statusMessages(logs)) == 2 })

	cancel()
	<-done
}
