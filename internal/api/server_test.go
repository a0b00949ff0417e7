package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/handwave-data/handwave/internal/bus"
	"github.com/handwave-data/handwave/internal/config"
	"github.com/handwave-data/handwave/internal/hand"
	"github.com/handwave-data/handwave/internal/pipeline"
)

func newTestServer(t *testing.T) (*httptest.Server, *pipeline.Engine, *bus.Bus) {
	t.Helper()
	b := bus.New()
	engine := pipeline.New(config.DefaultTuningConfig(), b, nil)
	ts := httptest.NewServer(NewServer(engine, b).ServeMux())
	t.Cleanup(func() {
		ts.Close()
		b.Close()
	})
	return ts, engine, b
}

func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

func getJSON(t *testing.T, url string, v interface{}) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	return resp
}

func TestParams(t *testing.T) {
	t.Parallel()
	ts, engine, _ := newTestServer(t)

	t.Run("get returns the live snapshot", func(t *testing.T) {
		var cfg config.TuningConfig
		resp := getJSON(t, ts.URL+"/api/params", &cfg)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
		assert.Equal(t, config.DefaultConfHigh, cfg.GetConfHigh())
	})

	t.Run("post merges and applies a partial patch", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/api/params", "application/json",
			strings.NewReader(`{"conf_high": 0.75}`))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		assert.Equal(t, 0.75, engine.Tuning().GetConfHigh())
		assert.Equal(t, config.DefaultConfLow, engine.Tuning().GetConfLow(),
			"unnamed fields keep their previous values")
	})

	t.Run("post rejects invalid tuning without applying it", func(t *testing.T) {
		before := engine.Tuning().GetConfHigh()
		resp, err := http.Post(ts.URL+"/api/params", "application/json",
			strings.NewReader(`{"conf_high": 0.1}`))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		assert.Equal(t, before, engine.Tuning().GetConfHigh())
	})

	t.Run("post rejects malformed json", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/api/params", "application/json",
			strings.NewReader(`{"conf_high": `))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("rejects other methods", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/params", nil)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})
}

func TestStats(t *testing.T) {
	t.Parallel()
	ts, engine, _ := newTestServer(t)

	var stats statsResponse
	resp := getJSON(t, ts.URL+"/api/stats", &stats)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, engine.Session(), stats.Session)
	assert.Nil(t, stats.ActiveHandID, "no hand, no owner")

	// One tracked hand acquires the sight lock; stats reflect it.
	engine.ProcessFrames(33, []hand.Frame{
		{HandID: 4, Gesture: hand.GestureOpenPalm, Confidence: 0.9, X: 0.5, Y: 0.5, TimestampMs: 33},
	})
	getJSON(t, ts.URL+"/api/stats", &stats)
	require.NotNil(t, stats.ActiveHandID)
	assert.Equal(t, 4, *stats.ActiveHandID)
	assert.Equal(t, int64(1), stats.Pipeline.FramesIn)
}

func TestLandmarkIngest(t *testing.T) {
	t.Parallel()
	ts, engine, _ := newTestServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws/landmarks"), nil)
	require.NoError(t, err)
	defer conn.Close()

	lm := make([]hand.Landmark, hand.LandmarkCount)
	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"timestamp_ms": 33.0,
		"hands":        []pipeline.SensorHand{{HandID: 2, Landmarks: lm}},
	}))

	// Ingest is asynchronous to the test; poll the engine for the effect.
	require.Eventually(t, func() bool {
		_, ok := engine.HandState(2)
		return ok
	}, 2*time.Second, 10*time.Millisecond, "sensor tick never reached the engine")

	assert.Equal(t, int64(1), engine.MetricsSnapshot().FramesIn)
}

func TestIntentStream(t *testing.T) {
	t.Parallel()
	ts, _, b := newTestServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws/intent"), nil)
	require.NoError(t, err)
	defer conn.Close()

	// Published records reach the websocket consumer as JSON.
	want := hand.Intent{HandID: 1, X: 0.25, Y: 0.75, IsPinching: true,
		Gesture: hand.GesturePointerUp, Confidence: 0.9, TimestampMs: 33}

	// The subscription is created during the upgrade handshake; keep
	// publishing until the consumer observes a record so the test cannot
	// race it.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				b.Publish(want)
			}
		}
	}()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var got hand.Intent
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, want, got)
}
