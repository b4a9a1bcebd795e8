package statusserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/libyal/ewfkit/internal/progress"
)

func TestServer_StatusReflectsLatestTick(t *testing.T) {
	s := New(":0", "acquire", nil)
	s.Observe(progress.Tick{BytesRead: 1024, Percent: 10, Status: progress.StatusRunning})

	r := chi.NewRouter()
	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		s.handleStatus(w, req)
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	var snap Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	require.Equal(t, "acquire", snap.Operation)
	require.Equal(t, "running", snap.Status)
	require.NotNil(t, snap.Tick)
	require.Equal(t, uint64(1024), snap.Tick.BytesRead)
}

func TestServer_ListenAndServeShutsDownOnContextCancel(t *testing.T) {
	s := New("127.0.0.1:0", "verify", nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("ListenAndServe did not shut down in time")
	}
}
