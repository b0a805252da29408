package server

import (
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/boardsync/internal/core/model"
	"github.com/zeusync/boardsync/internal/realtime"
)

func dial(t *testing.T, base, actor string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(base, "http") + "/v1/boards/b1/ws?actor=" + actor
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) realtime.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev realtime.Event
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestWebSocketRequiresActor(t *testing.T) {
	_, ts := newTestServer(t)
	u := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/boards/b1/ws"
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocketDeliversChanges(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dial(t, ts.URL, "bob")

	sync := readEvent(t, conn)
	assert.Equal(t, realtime.EventPresenceSync, sync.Kind)

	resp := do(t, http.MethodPost, ts.URL+"/v1/tasks", "alice", model.Task{ID: "t1", BoardID: "b1", Title: "A"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	ev := readEvent(t, conn)
	require.Equal(t, realtime.EventChange, ev.Kind)
	require.NotNil(t, ev.Change)
	assert.Equal(t, model.KindTask, ev.Change.RecordType)

	rec, err := realtime.Decode[model.Task](ev.Change)
	require.NoError(t, err)
	assert.Equal(t, "A", rec.Data.Title)
	assert.Equal(t, "alice", rec.UpdatedBy)
}

func TestWebSocketPresence(t *testing.T) {
	srv, ts := newTestServer(t)
	alice := dial(t, ts.URL, "alice")
	bob := dial(t, ts.URL, "bob")
	readEvent(t, alice)
	readEvent(t, bob)

	require.NoError(t, alice.WriteJSON(realtime.Command{
		Kind:  realtime.CommandAnnounce,
		Entry: &model.PresenceEntry{ParticipantID: "alice", DisplayLabel: "Alice"},
	}))

	ev := readEvent(t, bob)
	assert.Equal(t, realtime.EventPresenceJoin, ev.Kind)
	require.Len(t, ev.Presence, 1)
	assert.Equal(t, "alice", ev.Presence[0].ParticipantID)
	assert.Equal(t, int64(2), srv.GetStats().ClientCount)

	require.NoError(t, alice.Close())
	ev = readEvent(t, bob)
	assert.Equal(t, realtime.EventPresenceLeave, ev.Kind)
	assert.Equal(t, "alice", ev.Presence[0].ParticipantID)
	assert.Eventually(t, func() bool { return srv.GetStats().ClientCount == 1 }, time.Second, 5*time.Millisecond)
}

func TestWebSocketRateLimitsPointerAnnouncements(t *testing.T) {
	var joins atomic.Int64
	srv, ts := newTestServer(t, realtime.WithObserver(func(_ string, ev realtime.Event, _ int) {
		if ev.Kind == realtime.EventPresenceJoin {
			joins.Add(1)
		}
	}))
	srv.config.PresenceRate = 0.001
	srv.config.PresenceBurst = 2

	conn := dial(t, ts.URL, "alice")
	readEvent(t, conn)

	entry := model.PresenceEntry{ParticipantID: "alice"}
	require.NoError(t, conn.WriteJSON(realtime.Command{Kind: realtime.CommandAnnounce, Entry: &entry}))
	for i := range 10 {
		e := entry
		e.Pointer = &model.Point{X: float64(i)}
		require.NoError(t, conn.WriteJSON(realtime.Command{Kind: realtime.CommandAnnounce, Entry: &e}))
	}

	require.Eventually(t, func() bool { return joins.Load() == 3 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(3), joins.Load())
}
