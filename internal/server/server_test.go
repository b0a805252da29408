package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/boardsync/internal/collab"
	"github.com/zeusync/boardsync/internal/collab/memapi"
	"github.com/zeusync/boardsync/internal/core/model"
	"github.com/zeusync/boardsync/internal/realtime"
)

func newTestServer(t *testing.T, opts ...realtime.HubOption) (*Server, *httptest.Server) {
	t.Helper()
	hub := realtime.NewHub(opts...)
	api := memapi.NewServer(hub)
	api.Boards.Seed(model.VersionedRecord[model.Board]{Data: model.Board{ID: "b1", Name: "Launch"}, Version: 1})
	srv := NewServer(DefaultServerConfig(), api, hub, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		hub.Close()
	})
	return srv, ts
}

func do(t *testing.T, method, url, actor string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	if actor != "" {
		req.Header.Set(ActorHeader, actor)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestTaskLifecycleOverREST(t *testing.T) {
	srv, ts := newTestServer(t)

	resp := do(t, http.MethodPost, ts.URL+"/v1/tasks", "alice", model.Task{ID: "t1", BoardID: "b1", StatusID: "todo", Title: "A"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created model.VersionedRecord[model.Task]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.Equal(t, uint64(1), created.Version)
	assert.Equal(t, "alice", created.UpdatedBy)

	resp = do(t, http.MethodPatch, ts.URL+"/v1/tasks/t1", "bob", model.Patch[model.Task]{
		Fields: []model.Field{model.FieldTitle},
		Data:   model.Task{Title: "B"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var updated model.VersionedRecord[model.Task]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&updated))
	assert.Equal(t, "B", updated.Data.Title)
	assert.Equal(t, "bob", updated.UpdatedBy)
	assert.Equal(t, uint64(2), updated.Version)

	resp = do(t, http.MethodPost, ts.URL+"/v1/tasks/t1/move", "bob", MoveRequest{ContainerID: "done", Order: 0})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, http.MethodPost, ts.URL+"/v1/tasks/reorder", "bob", []model.OrderedItem{{ID: "t1", ContainerID: "done", Order: 4}})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, http.MethodGet, ts.URL+"/v1/tasks?board_id=b1", "bob", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []model.VersionedRecord[model.Task]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, "done", list[0].Data.StatusID)
	assert.Equal(t, 4, list[0].Data.Order)

	resp = do(t, http.MethodDelete, ts.URL+"/v1/tasks/t1", "bob", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	_, ok := srv.api.Tasks.Get("t1")
	assert.False(t, ok)
}

func TestErrorStatusCodes(t *testing.T) {
	_, ts := newTestServer(t)

	resp := do(t, http.MethodGet, ts.URL+"/v1/tasks", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = do(t, http.MethodPatch, ts.URL+"/v1/tasks/missing", "alice", model.Patch[model.Task]{})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	var body ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body.Error, "not found")

	resp = do(t, http.MethodPost, ts.URL+"/v1/boards", "alice", model.Board{ID: "b1"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = do(t, http.MethodPost, ts.URL+"/v1/boards/b1/move", "alice", MoveRequest{ContainerID: "x"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/v1/tasks", bytes.NewBufferString("{"))
	req.Header.Set(ActorHeader, "alice")
	raw, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer raw.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, raw.StatusCode)

	resp = do(t, http.MethodGet, ts.URL+"/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusServiceUnavailable, StatusFor(collab.ErrUnavailable))
	assert.Equal(t, http.StatusForbidden, StatusFor(collab.ErrForbidden))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(assert.AnError))
}

func TestStartStop(t *testing.T) {
	hub := realtime.NewHub()
	cfg := DefaultServerConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	srv := NewServer(cfg, memapi.NewServer(hub), hub, nil)

	require.NoError(t, srv.Start(context.Background()))
	assert.ErrorIs(t, srv.Start(context.Background()), ErrServerAlreadyRunning)
	assert.True(t, srv.GetStats().Running)

	resp, err := http.Get("http://" + srv.Addr() + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, srv.Stop(context.Background()))
	assert.ErrorIs(t, srv.Stop(context.Background()), ErrServerNotRunning)
	require.NoError(t, srv.Close())
	assert.ErrorIs(t, srv.Start(context.Background()), ErrServerClosed)
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultServerConfig()
	require.NoError(t, cfg.Validate())

	cfg.PresenceBurst = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}
