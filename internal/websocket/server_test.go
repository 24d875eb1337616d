package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iolloyd/netwatch/internal/logging"
	"github.com/iolloyd/netwatch/internal/models"
)

func TestServerBroadcastsReports(t *testing.T) {
	s := NewServer("", 0, logging.Discard())
	s.Run()
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return s.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	s.Report(&models.Report{
		ID:     "cycle-1",
		Mode:   models.ModeNamed,
		Groups: []models.Group{{PID: 100, Name: "nginx", Counts: models.StateCounts{Listen: 1}}},
	})
	s.Change(models.Change{Name: "nginx", OldPID: 0, NewPID: 100})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var first struct {
		Type string        `json:"type"`
		Data models.Report `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, MessageReport, first.Type)
	assert.Equal(t, "cycle-1", first.Data.ID)
	require.Len(t, first.Data.Groups, 1)
	assert.Equal(t, 1, first.Data.Groups[0].Counts.Listen)

	var second struct {
		Type string        `json:"type"`
		Data models.Change `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, MessageChange, second.Type)
	assert.Equal(t, models.Change{Name: "nginx", OldPID: 0, NewPID: 100}, second.Data)
}

func TestServerHealth(t *testing.T) {
	s := NewServer("", 0, logging.Discard())
	s.SetHealthSource(func() map[string]interface{} {
		return map[string]interface{}{"snapshots": 3}
	})
	s.Run()
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, float64(0), body["clients"])
	assert.Equal(t, float64(3), body["snapshots"])
}

func TestServerShutdownBeforeStart(t *testing.T) {
	s := NewServer("127.0.0.1:0", 1, logging.Discard())
	require.NoError(t, s.Shutdown(context.Background()))

	done := make(chan error, 1)
	go func() { done <- s.Start() }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start kept serving after Shutdown")
	}
}
