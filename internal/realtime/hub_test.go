package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeusync/boardsync/internal/core/model"
)

func next(t *testing.T, sub Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		require.True(t, ok, "events channel closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
		return Event{}
	}
}

func TestSubscribeStartsWithPresenceSync(t *testing.T) {
	h := NewHub()
	ctx := context.Background()
	require.NoError(t, h.Announce(ctx, "b1", model.PresenceEntry{ParticipantID: "p1"}))

	sub, err := h.Subscribe(ctx, "b1")
	require.NoError(t, err)
	defer sub.Cancel()

	ev := next(t, sub)
	assert.Equal(t, EventPresenceSync, ev.Kind)
	require.Len(t, ev.Presence, 1)
	assert.Equal(t, "p1", ev.Presence[0].ParticipantID)
}

func TestChangeFanOutAndIsolation(t *testing.T) {
	h := NewHub()
	ctx := context.Background()
	a, _ := h.Subscribe(ctx, "b1")
	b, _ := h.Subscribe(ctx, "b1")
	other, _ := h.Subscribe(ctx, "b2")
	for _, s := range []Subscription{a, b, other} {
		next(t, s)
	}

	rec := model.VersionedRecord[model.Task]{Data: model.Task{ID: "t1"}, Version: 2}
	h.PublishChange("b1", ChangeEvent{RecordType: model.KindTask, RecordID: "t1", Record: rec})

	for _, s := range []Subscription{a, b} {
		ev := next(t, s)
		assert.Equal(t, EventChange, ev.Kind)
		got, err := Decode[model.Task](ev.Change)
		require.NoError(t, err)
		assert.Equal(t, rec, got)
	}
	select {
	case ev := <-other.Events():
		t.Fatalf("unexpected event on other board: %+v", ev)
	default:
	}
}

func TestCancelIsIdempotentAndClosesEvents(t *testing.T) {
	h := NewHub()
	sub, err := h.Subscribe(context.Background(), "b1")
	require.NoError(t, err)
	sub.Cancel()
	sub.Cancel()

	_, ok := <-sub.Events()
	assert.True(t, ok, "buffered sync event is still readable")
	_, ok = <-sub.Events()
	assert.False(t, ok)
	assert.Zero(t, h.Subscribers("b1"))

	h.PublishChange("b1", ChangeEvent{RecordType: model.KindTask, RecordID: "x"})
}

func TestBlockedPublisherReleasedByCancel(t *testing.T) {
	h := NewHub(WithBuffer(1))
	sub, _ := h.Subscribe(context.Background(), "b1")
	// buffer is now full with the sync event

	done := make(chan struct{})
	go func() {
		h.PublishChange("b1", ChangeEvent{RecordType: model.KindTask, RecordID: "t1"})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("publish should block on a full subscriber")
	case <-time.After(30 * time.Millisecond):
	}
	sub.Cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher still blocked after cancel")
	}
}

func TestPresenceJoinLeave(t *testing.T) {
	var delivered []int
	h := NewHub(WithObserver(func(_ string, _ Event, n int) { delivered = append(delivered, n) }))
	ctx := context.Background()
	sub, _ := h.Subscribe(ctx, "b1")
	next(t, sub)

	require.NoError(t, h.Announce(ctx, "b1", model.PresenceEntry{ParticipantID: "p1", DisplayLabel: "P"}))
	ev := next(t, sub)
	assert.Equal(t, EventPresenceJoin, ev.Kind)

	require.NoError(t, h.Leave(ctx, "b1", "p1"))
	ev = next(t, sub)
	assert.Equal(t, EventPresenceLeave, ev.Kind)
	assert.Equal(t, "p1", ev.Presence[0].ParticipantID)
	assert.Empty(t, h.Presence("b1"))

	require.NoError(t, h.Leave(ctx, "b1", "nobody"))
	assert.Equal(t, []int{1, 1}, delivered)
}

func TestHubClose(t *testing.T) {
	h := NewHub()
	sub, _ := h.Subscribe(context.Background(), "b1")
	h.Close()
	next(t, sub)
	_, ok := <-sub.Events()
	assert.False(t, ok)

	_, err := h.Subscribe(context.Background(), "b1")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestDecodeRawJSON(t *testing.T) {
	raw, err := json.Marshal(model.VersionedRecord[model.Column]{Data: model.Column{ID: "c1", Name: "Todo"}, Version: 3})
	require.NoError(t, err)

	got, err := Decode[model.Column](&ChangeEvent{RecordType: model.KindColumn, Record: json.RawMessage(raw)})
	require.NoError(t, err)
	assert.Equal(t, "Todo", got.Data.Name)
	assert.Equal(t, uint64(3), got.Version)

	_, err = Decode[model.Column](&ChangeEvent{RecordType: model.KindColumn, Record: 42})
	assert.ErrorIs(t, err, ErrUnexpectedPayload)
}
