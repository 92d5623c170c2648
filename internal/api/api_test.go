package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"roamradio/pkg/catalog"
	"roamradio/pkg/location"
	"roamradio/pkg/model"
	"roamradio/pkg/playback"
	"roamradio/pkg/store"
)

type fakePlayback struct {
	mu     sync.Mutex
	status playback.Status
	volume float64

	played []string
	plays  int
	pauses int
	stops  int
}

func (f *fakePlayback) PlayStation(st model.Station) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.played = append(f.played, st.ID)
}

func (f *fakePlayback) Play() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plays++
}

func (f *fakePlayback) Pause() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pauses++
}

func (f *fakePlayback) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
}

func (f *fakePlayback) Status() playback.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakePlayback) SetVolume(vol float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volume = vol
}

func (f *fakePlayback) Volume() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.volume
}

type fakeLocation struct {
	auth     location.Authorization
	active   bool
	lastErr  string
	pos      *model.PositionSample
	requests int
}

func (f *fakeLocation) Authorization() location.Authorization { return f.auth }
func (f *fakeLocation) Active() bool                          { return f.active }
func (f *fakeLocation) LastError() string                     { return f.lastErr }
func (f *fakeLocation) LastPosition() *model.PositionSample   { return f.pos }
func (f *fakeLocation) RequestPermission()                    { f.requests++ }

type fakeSelection struct {
	current *model.Station
}

func (f *fakeSelection) Current() *model.Station { return f.current }

type memStore struct {
	mu     sync.Mutex
	state  map[string]string
	events []store.PlayEvent
}

func newMemStore() *memStore {
	return &memStore{state: make(map[string]string)}
}

func (m *memStore) GetState(_ context.Context, key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.state[key]
	return v, ok
}

func (m *memStore) SetState(_ context.Context, key, val string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state[key] = val
	return nil
}

func (m *memStore) DeleteState(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.state, key)
	return nil
}

func (m *memStore) RecordPlay(_ context.Context, stationID, stationName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append([]store.PlayEvent{{
		StationID: stationID, StationName: stationName, StartedAt: time.Now(),
	}}, m.events...)
	return nil
}

func (m *memStore) RecentPlays(_ context.Context, limit int) ([]store.PlayEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit > len(m.events) {
		limit = len(m.events)
	}
	return m.events[:limit], nil
}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New([]model.Station{
		{ID: "kqed", Name: "KQED", StreamURL: "https://streams.kqed.org/kqedradio", Lat: 37.7749, Lon: -122.4194, Region: "San Francisco"},
		{ID: "wnyc", Name: "WNYC", StreamURL: "https://fm939.wnyc.org/wnycfm", Lat: 40.7128, Lon: -74.0060, Region: "New York"},
	})
	require.NoError(t, err)
	return cat
}

func newTestServer(t *testing.T, pb *fakePlayback, loc *fakeLocation, sel *fakeSelection, mem *memStore, hub *Hub) *httptest.Server {
	t.Helper()
	srv := NewServer("localhost:0",
		NewStatusHandler(pb, loc, sel),
		NewStationsHandler(testCatalog(t)),
		NewControlHandler(pb, testCatalog(t), mem),
		NewHistoryHandler(mem),
		hub,
		func() {},
	)
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func TestHandleStatus(t *testing.T) {
	pb := &fakePlayback{
		status: playback.Status{
			State:   playback.StatePlaying,
			Station: &model.Station{ID: "kqed", Name: "KQED"},
		},
		volume: 0.7,
	}
	loc := &fakeLocation{
		auth:   location.AuthAuthorized,
		active: true,
		pos:    &model.PositionSample{Lat: 37.77, Lon: -122.41},
	}
	sel := &fakeSelection{current: &model.Station{ID: "kqed"}}
	ts := newTestServer(t, pb, loc, sel, newMemStore(), nil)

	resp, err := http.Get(ts.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body StatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "playing", body.Playback.State)
	require.Equal(t, "kqed", body.Playback.Station.ID)
	require.InDelta(t, 0.7, body.Playback.Volume, 1e-9)
	require.Equal(t, "authorized", body.Location.Authorization)
	require.True(t, body.Location.Active)
	require.Equal(t, "kqed", body.Selected.ID)
}

func TestHandleControl(t *testing.T) {
	pb := &fakePlayback{}
	ts := newTestServer(t, pb, &fakeLocation{}, &fakeSelection{}, newMemStore(), nil)

	post := func(body string) *http.Response {
		resp, err := http.Post(ts.URL+"/api/control", "application/json", bytes.NewBufferString(body))
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	require.Equal(t, http.StatusOK, post(`{"action":"play"}`).StatusCode)
	require.Equal(t, http.StatusOK, post(`{"action":"pause"}`).StatusCode)
	require.Equal(t, http.StatusOK, post(`{"action":"stop"}`).StatusCode)
	require.Equal(t, http.StatusOK, post(`{"action":"play_station","station_id":"wnyc"}`).StatusCode)
	require.Equal(t, http.StatusNotFound, post(`{"action":"play_station","station_id":"nope"}`).StatusCode)
	require.Equal(t, http.StatusBadRequest, post(`{"action":"rewind"}`).StatusCode)
	require.Equal(t, http.StatusBadRequest, post(`not json`).StatusCode)

	require.Equal(t, 1, pb.plays)
	require.Equal(t, 1, pb.pauses)
	require.Equal(t, 1, pb.stops)
	require.Equal(t, []string{"wnyc"}, pb.played)
}

func TestHandleVolume(t *testing.T) {
	pb := &fakePlayback{}
	mem := newMemStore()
	ts := newTestServer(t, pb, &fakeLocation{}, &fakeSelection{}, mem, nil)

	resp, err := http.Post(ts.URL+"/api/volume", "application/json",
		bytes.NewBufferString(`{"volume":0.25}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.InDelta(t, 0.25, pb.Volume(), 1e-9)

	val, ok := mem.GetState(context.Background(), store.KeyVolume)
	require.True(t, ok, "volume must be persisted")
	require.Equal(t, "0.25", val)

	resp, err = http.Post(ts.URL+"/api/volume", "application/json",
		bytes.NewBufferString(`{"volume":1.5}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleStations(t *testing.T) {
	ts := newTestServer(t, &fakePlayback{}, &fakeLocation{}, &fakeSelection{}, newMemStore(), nil)

	resp, err := http.Get(ts.URL + "/api/stations")
	require.NoError(t, err)
	defer resp.Body.Close()

	var stations []model.Station
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stations))
	require.Len(t, stations, 2)
}

func TestHandleNearby(t *testing.T) {
	ts := newTestServer(t, &fakePlayback{}, &fakeLocation{}, &fakeSelection{}, newMemStore(), nil)

	resp, err := http.Get(ts.URL + "/api/stations/nearby?lat=37.77&lon=-122.40&radius_km=50")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stations []model.Station
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stations))
	require.Len(t, stations, 1)
	require.Equal(t, "kqed", stations[0].ID)

	resp, err = http.Get(ts.URL + "/api/stations/nearby?lat=bogus&lon=0")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleHistory(t *testing.T) {
	mem := newMemStore()
	require.NoError(t, mem.RecordPlay(context.Background(), "kqed", "KQED"))
	require.NoError(t, mem.RecordPlay(context.Background(), "wnyc", "WNYC"))
	ts := newTestServer(t, &fakePlayback{}, &fakeLocation{}, &fakeSelection{}, mem, nil)

	resp, err := http.Get(ts.URL + "/api/history?limit=1")
	require.NoError(t, err)
	defer resp.Body.Close()

	var entries []HistoryEntry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
	require.Len(t, entries, 1)
	require.Equal(t, "wnyc", entries[0].StationID)
}

func TestHandleRequestPermission(t *testing.T) {
	loc := &fakeLocation{auth: location.AuthDenied, lastErr: "location access is denied"}
	ts := newTestServer(t, &fakePlayback{}, loc, &fakeSelection{}, newMemStore(), nil)

	resp, err := http.Post(ts.URL+"/api/location/permission", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "denied", body["authorization"])
	require.Contains(t, body["error"], "denied")
	require.Equal(t, 1, loc.requests)
}

func TestHealthAndVersion(t *testing.T) {
	ts := newTestServer(t, &fakePlayback{}, &fakeLocation{}, &fakeSelection{}, newMemStore(), nil)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/api/version")
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotEmpty(t, body["version"])
}
