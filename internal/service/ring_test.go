package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/langchou/ringgazer/internal/api/ring"
	"github.com/langchou/ringgazer/internal/config"
	"github.com/langchou/ringgazer/internal/state"
	"github.com/langchou/ringgazer/internal/storage"
)

type fakeRingAPI struct {
	fakeSnapshots
	fakeDings

	authErr   error
	rotations chan ring.TokenRotation

	mu          sync.Mutex
	ticketCalls int
}

func newFakeRingAPI() *fakeRingAPI {
	return &fakeRingAPI{rotations: make(chan ring.TokenRotation, 4)}
}

func (f *fakeRingAPI) Authenticate(ctx context.Context) error {
	if f.authErr != nil {
		return f.authErr
	}
	f.rotations <- ring.TokenRotation{NewRefreshToken: "rotated", OldRefreshToken: "initial"}
	return nil
}

func (f *fakeRingAPI) ListLocations(ctx context.Context) ([]ring.Location, error) {
	return []ring.Location{{ID: "loc-1", Name: "Home"}}, nil
}

func (f *fakeRingAPI) ListCameras(ctx context.Context) ([]ring.Camera, error) {
	return []ring.Camera{frontDoor, kitchen}, nil
}

func (f *fakeRingAPI) LocationTicket(ctx context.Context, locationID string) (*ring.Ticket, error) {
	f.mu.Lock()
	f.ticketCalls++
	f.mu.Unlock()
	return &ring.Ticket{Host: "127.0.0.1", Ticket: "t"}, nil
}

func (f *fakeRingAPI) TokenRotations() <-chan ring.TokenRotation {
	return f.rotations
}

func (f *fakeRingAPI) tickets() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ticketCalls
}

type ringFixture struct {
	service *RingService
	api     *fakeRingAPI
	store   *fakeTokenStore
	logs    *observer.ObservedLogs
}

func newRingFixture() *ringFixture {
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)

	cfg := &config.Config{
		DingPollInterval:     time.Hour,
		DingDedupTTL:         time.Minute,
		ConnectivityDistinct: true,
	}
	keys := storage.NewKeyTable(map[string]string{"Front Door": "latest-snapshot-front-door.jpg"}, "latest-snapshot.jpg")

	api := newFakeRingAPI()
	store := &fakeTokenStore{}
	router := NewRouter(logger, api, &fakeUploader{}, &fakeSender{}, keys)

	return &ringFixture{
		service: NewRingService(cfg, logger, api, store, router, keys),
		api:     api,
		store:   store,
		logs:    logs,
	}
}

func TestRingServiceServe(t *testing.T) {
	f := newRingFixture()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- f.service.Serve(ctx) }()

	waitFor(t, func() bool {
		return f.logs.FilterMessage("Listening for motion and doorbell presses on your cameras.").Len() == 1
	})

	if !f.service.Ready() {
		t.Error("service should be ready")
	}
	if got := f.logs.FilterMessage("Found 1 location(s) with 2 camera(s).").Len(); got != 1 {
		t.Errorf("discovery logs = %d, want 1", got)
	}

	locations := f.service.Locations()
	if len(locations) != 1 || locations[0].Name != "Home" || locations[0].State != state.StatePending {
		t.Errorf("locations = %+v", locations)
	}

	cameras := f.service.Cameras()
	if len(cameras) != 2 {
		t.Fatalf("cameras = %d, want 2", len(cameras))
	}
	if cameras[0].SnapshotKey != "latest-snapshot-front-door.jpg" || cameras[1].SnapshotKey != "latest-snapshot.jpg" {
		t.Errorf("snapshot keys = %q, %q", cameras[0].SnapshotKey, cameras[1].SnapshotKey)
	}

	data := f.service.InitData()
	if data.Locations == nil || data.Cameras == nil {
		t.Errorf("init data = %+v", data)
	}

	waitFor(t, func() bool { return f.api.tickets() > 0 })
	waitFor(t, func() bool { return len(f.store.rotated()) == 1 })

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	if calls := f.store.rotated(); calls[0] != [2]string{"rotated", "initial"} {
		t.Errorf("token store calls = %v", calls)
	}
	if f.service.Ready() {
		t.Error("service should not be ready after stop")
	}
}

func TestRingServiceServeErrors(t *testing.T) {
	t.Run("unauthorized terminates the tree", func(t *testing.T) {
		f := newRingFixture()
		f.api.authErr = fmt.Errorf("refresh token: %w", ring.ErrUnauthorized)

		err := f.service.Serve(context.Background())
		if !errors.Is(err, suture.ErrTerminateSupervisorTree) {
			t.Errorf("Serve() = %v, want ErrTerminateSupervisorTree", err)
		}
	})

	t.Run("other bootstrap errors are restartable", func(t *testing.T) {
		f := newRingFixture()
		f.api.authErr = errors.New("connection refused")

		err := f.service.Serve(context.Background())
		if err == nil || errors.Is(err, suture.ErrTerminateSupervisorTree) {
			t.Errorf("Serve() = %v, want plain error", err)
		}
		if f.service.Ready() {
			t.Error("service should not be ready")
		}
	})
}

func TestRingServiceString(t *testing.T) {
	f := newRingFixture()
	if got := f.service.String(); got != "ring-service" {
		t.Errorf("String() = %q", got)
	}
}

func TestRingServiceRoutesDingAfterRestart(t *testing.T) {
	f := newRingFixture()

	serve := func() (context.CancelFunc, chan error) {
		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() { errCh <- f.service.Serve(ctx) }()
		return cancel, errCh
	}

	cancel, errCh := serve()
	waitFor(t, func() bool { return f.service.dings.primed.Load() })
	cancel()
	<-errCh

	// 重启间隙按下门铃
	f.api.set(ring.ActiveDing{ID: 300, DoorbotID: frontDoor.ID, Kind: ring.DingKindDing})

	cancel, errCh = serve()
	defer func() {
		cancel()
		<-errCh
	}()

	waitFor(t, func() bool { return f.api.count() == 1 })
	waitFor(t, func() bool { return f.logs.FilterMessage("Webhook sent").Len() == 1 })
}
