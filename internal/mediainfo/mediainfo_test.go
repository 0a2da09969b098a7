package mediainfo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func newTestServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/media/clip.mp4", func(w http.ResponseWriter, r *http.Request) {
		hits.Inc()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"filename":"clip.mp4","container_type":"mov,mp4","pixel_format":"drm_prime","duration":12.5,"size":{"w":1920,"h":1080}}`))
	})
	mux.HandleFunc("/media/broken.mp4", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"duration":`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestSendRequest(t *testing.T) {
	srv, _ := newTestServer(t)
	c := NewClient(srv.URL + "/")

	v, err := c.SendRequest(context.Background(), "/media/clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, 12.5, v["duration"])
	assert.Equal(t, map[string]any{"w": 1920.0, "h": 1080.0}, v["size"])

	_, err = c.SendRequest(context.Background(), "media/missing.mp4")
	require.ErrorContains(t, err, "404")
}

func TestFileMeta(t *testing.T) {
	srv, _ := newTestServer(t)
	c := NewClient(srv.URL)

	meta, err := c.FileMeta(context.Background(), "clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, &FileMeta{
		Filename:      "clip.mp4",
		ContainerType: "mov,mp4",
		PixelFormat:   "drm_prime",
		Duration:      12.5,
	}, meta)

	_, err = c.FileMeta(context.Background(), "broken.mp4")
	require.Error(t, err)
}

func TestDurationCached(t *testing.T) {
	srv, hits := newTestServer(t)
	c := NewClient(srv.URL)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := c.Duration(ctx, "clip.mp4")
		require.NoError(t, err)
		assert.Equal(t, 12500*time.Millisecond, d)
	}
	assert.Equal(t, int32(1), hits.Load())

	_, err := c.Duration(ctx, "missing.mp4")
	require.Error(t, err)
}

func TestStartServerExits(t *testing.T) {
	_, err := Start(context.Background(), Config{
		Binary:       "false",
		MediaRoot:    t.TempDir(),
		Port:         1,
		StartTimeout: 5 * time.Second,
	})
	require.Error(t, err)
}

func TestStartMissingBinary(t *testing.T) {
	_, err := Start(context.Background(), Config{
		Binary:    "pivid_server_does_not_exist",
		MediaRoot: t.TempDir(),
	})
	require.Error(t, err)
}
