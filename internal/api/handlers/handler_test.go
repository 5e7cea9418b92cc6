package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/langchou/ringgazer/internal/models"
	"github.com/langchou/ringgazer/internal/state"
	"github.com/langchou/ringgazer/pkg/ws"
)

type fakeRing struct {
	ready bool
}

func (f *fakeRing) Ready() bool { return f.ready }

func (f *fakeRing) Locations() []models.Location {
	return []models.Location{{ID: "loc-1", Name: "Home", State: state.StateConnected}}
}

func (f *fakeRing) Cameras() []models.Camera {
	return []models.Camera{{ID: 1, Name: "Front Door", SnapshotKey: "latest-snapshot-front-door.jpg", IsDoorbell: true}}
}

func (f *fakeRing) LocationStates() map[string]*state.LocationState {
	return map[string]*state.LocationState{
		"loc-1": {LocationID: "loc-1", Name: "Home", CurrentState: state.StateConnected, Since: time.Unix(0, 0)},
	}
}

type fakeNotifications struct {
	limit int
	err   error
}

func (f *fakeNotifications) ListRecent(ctx context.Context, limit int) ([]*models.Notification, error) {
	f.limit = limit
	if f.err != nil {
		return nil, f.err
	}
	return []*models.Notification{{ID: 1, CameraName: "Front Door", Kind: models.KindDing}}, nil
}

type fakeConnectivity struct {
	locationID string
}

func (f *fakeConnectivity) ListByLocation(ctx context.Context, locationID string, limit int) ([]*models.Connectivity, error) {
	f.locationID = locationID
	return []*models.Connectivity{{LocationID: locationID, Connected: true}}, nil
}

func newTestRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h.RegisterRoutes(r)
	return r
}

func doGet(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) json.RawMessage {
	t.Helper()
	var body struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body.Data
}

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name   string
		ready  bool
		status int
	}{
		{"ready", true, http.StatusOK},
		{"starting", false, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(zap.NewNop(), &fakeRing{ready: tt.ready}, ws.NewHub(zap.NewNop()))
			w := doGet(newTestRouter(h), "/health")
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}

			var body struct {
				Locations int `json:"locations"`
				Cameras   int `json:"cameras"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if body.Locations != 1 || body.Cameras != 1 {
				t.Errorf("health body = %+v", body)
			}
		})
	}
}

func TestListLocationsAndCameras(t *testing.T) {
	h := NewHandler(zap.NewNop(), &fakeRing{ready: true}, ws.NewHub(zap.NewNop()))
	r := newTestRouter(h)

	w := doGet(r, "/api/locations")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var locations []models.Location
	if err := json.Unmarshal(decodeData(t, w), &locations); err != nil {
		t.Fatal(err)
	}
	if len(locations) != 1 || locations[0].State != state.StateConnected {
		t.Errorf("locations = %+v", locations)
	}

	w = doGet(r, "/api/cameras")
	var cameras []models.Camera
	if err := json.Unmarshal(decodeData(t, w), &cameras); err != nil {
		t.Fatal(err)
	}
	if len(cameras) != 1 || cameras[0].SnapshotKey != "latest-snapshot-front-door.jpg" {
		t.Errorf("cameras = %+v", cameras)
	}

	if w := doGet(r, "/api/locations/loc-1/state"); w.Code != http.StatusOK {
		t.Errorf("state status = %d", w.Code)
	}
	if w := doGet(r, "/api/locations/unknown/state"); w.Code != http.StatusNotFound {
		t.Errorf("unknown state status = %d, want 404", w.Code)
	}
}

func TestHistory(t *testing.T) {
	t.Run("disabled without database", func(t *testing.T) {
		h := NewHandler(zap.NewNop(), &fakeRing{}, ws.NewHub(zap.NewNop()))
		r := newTestRouter(h)

		if w := doGet(r, "/api/events"); w.Code != http.StatusServiceUnavailable {
			t.Errorf("notifications status = %d, want 503", w.Code)
		}
		if w := doGet(r, "/api/locations/loc-1/connectivity"); w.Code != http.StatusServiceUnavailable {
			t.Errorf("connectivity status = %d, want 503", w.Code)
		}
	})

	t.Run("lists history", func(t *testing.T) {
		notifications := &fakeNotifications{}
		connectivity := &fakeConnectivity{}
		h := NewHandler(zap.NewNop(), &fakeRing{}, ws.NewHub(zap.NewNop()))
		h.SetHistory(notifications, connectivity)
		r := newTestRouter(h)

		w := doGet(r, "/api/events?limit=5")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		if notifications.limit != 5 {
			t.Errorf("limit = %d, want 5", notifications.limit)
		}

		doGet(r, "/api/events?limit=100000")
		if notifications.limit != 50 {
			t.Errorf("out of range limit = %d, want 50", notifications.limit)
		}

		w = doGet(r, "/api/locations/loc-9/connectivity")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		if connectivity.locationID != "loc-9" {
			t.Errorf("location id = %q", connectivity.locationID)
		}
	})

	t.Run("repository error", func(t *testing.T) {
		h := NewHandler(zap.NewNop(), &fakeRing{}, ws.NewHub(zap.NewNop()))
		h.SetHistory(&fakeNotifications{err: errors.New("connection reset")}, &fakeConnectivity{})

		w := doGet(newTestRouter(h), "/api/events")
		if w.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", w.Code)
		}
	})
}

func TestMetricsEndpoint(t *testing.T) {
	h := NewHandler(zap.NewNop(), &fakeRing{}, ws.NewHub(zap.NewNop()))
	w := doGet(newTestRouter(h), "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "go_goroutines") {
		t.Error("metrics body missing runtime metrics")
	}
}
