package transit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corridorutils.mtcplanning.org/internal/clock"
)

func TestLoadCredentials(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "key.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"key": "abc123"}`), 0o600))

		creds, err := LoadCredentials(path)
		require.NoError(t, err)
		assert.Equal(t, "abc123", creds.Key)
	})

	t.Run("missing key", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "key.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"token": "abc123"}`), 0o600))

		_, err := LoadCredentials(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `"key"`)
	})
}

func newRateLimitedServer(t *testing.T, rejections int, body string) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= int64(rejections) {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func newTestTransitClient(baseURL string, mock *clock.MockClock) *Client {
	return NewClient(ClientOptions{
		BaseURL:           baseURL,
		APIKey:            "abc123",
		Clock:             mock,
		RequestsPerSecond: 1000,
	})
}

func TestGPSPlayback_SendsKeyAndParams(t *testing.T) {
	var gotPath, gotAuth, gotKey, gotDate, gotRoute string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotKey = r.URL.Query().Get("api_key")
		gotDate = r.URL.Query().Get("queryDate")
		gotRoute = r.URL.Query().Get("route")
		_, _ = w.Write([]byte(`{"data": []}`))
	}))
	defer server.Close()

	c := newTestTransitClient(server.URL, clock.NewMockClock(time.Unix(0, 0)))
	_, err := c.GPSPlayback(context.Background(), GPSPlaybackOptions{
		AgencyKey: "bigbluebus",
		QueryDate: "09-03-2019",
		Route:     "7",
	})
	require.NoError(t, err)

	assert.Equal(t, "/gps-playback/bigbluebus", gotPath)
	assert.Equal(t, "abc123", gotAuth)
	assert.Equal(t, "abc123", gotKey)
	assert.Equal(t, "09-03-2019", gotDate)
	assert.Equal(t, "7", gotRoute)
}

func TestGPSPlayback_RequiresAgencyAndDate(t *testing.T) {
	c := newTestTransitClient("http://unused.invalid", clock.NewMockClock(time.Unix(0, 0)))
	_, err := c.GPSPlayback(context.Background(), GPSPlaybackOptions{AgencyKey: "bigbluebus"})
	require.Error(t, err)
}

func TestSpeedMap_RetriesOnRateLimit(t *testing.T) {
	server, calls := newRateLimitedServer(t, 2, `{"route": "7"}`)
	mock := clock.NewMockClock(time.Unix(0, 0))
	c := newTestTransitClient(server.URL, mock)

	body, err := c.SpeedMap(context.Background(), SpeedMapOptions{
		AgencyKey: "bigbluebus",
		RouteKey:  "7",
		StartDate: "09-03-2019",
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"route": "7"}`, string(body))

	assert.Equal(t, int64(3), calls.Load())
	assert.Equal(t, []time.Duration{1000 * time.Second, 1000 * time.Second}, mock.Sleeps())
}

func TestSpeedMap_SurfacesRateLimitAfterMaxAttempts(t *testing.T) {
	server, calls := newRateLimitedServer(t, 1000, "")
	mock := clock.NewMockClock(time.Unix(0, 0))
	c := newTestTransitClient(server.URL, mock)

	_, err := c.SpeedMap(context.Background(), SpeedMapOptions{
		AgencyKey: "bigbluebus",
		RouteKey:  "7",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited after 10 attempts")
	assert.Equal(t, int64(10), calls.Load())
	assert.Len(t, mock.Sleeps(), 9)
}

func TestSpeedMap_OtherStatusesSurfaceImmediately(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	mock := clock.NewMockClock(time.Unix(0, 0))
	c := newTestTransitClient(server.URL, mock)

	_, err := c.SpeedMap(context.Background(), SpeedMapOptions{AgencyKey: "bigbluebus", RouteKey: "7"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Empty(t, mock.Sleeps(), "non-429 statuses must not be retried")
}
