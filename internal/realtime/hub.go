package realtime

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/zeusync/boardsync/internal/core/model"
	"github.com/zeusync/boardsync/internal/core/observability/log"
)

const defaultBuffer = 256

var _ Channel = (*Hub)(nil)

// Hub is an in-process Channel. Each board is a topic; the hub also keeps the
// board's current presence so new subscribers start with a sync event.
type Hub struct {
	mu       sync.RWMutex
	boards   map[string]*topic
	buffer   int
	logger   log.Log
	closed   bool
	observer func(boardID string, ev Event, delivered int)
}

type topic struct {
	subs     map[string]*subscription
	presence map[string]model.PresenceEntry
}

type HubOption func(*Hub)

func WithBuffer(n int) HubOption {
	return func(h *Hub) { h.buffer = n }
}

func WithHubLogger(logger log.Log) HubOption {
	return func(h *Hub) { h.logger = logger }
}

// WithObserver is told how many subscribers received each published event.
func WithObserver(fn func(boardID string, ev Event, delivered int)) HubOption {
	return func(h *Hub) { h.observer = fn }
}

func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		boards: make(map[string]*topic),
		buffer: defaultBuffer,
		logger: log.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With(log.String("component", "hub"))
	return h
}

type subscription struct {
	id      string
	boardID string
	events  chan Event
	done    chan struct{}
	once    sync.Once
	hub     *Hub
}

func (s *subscription) ID() string           { return s.id }
func (s *subscription) Events() <-chan Event { return s.events }

func (s *subscription) Cancel() {
	s.once.Do(func() {
		close(s.done)
		s.hub.mu.Lock()
		if t, ok := s.hub.boards[s.boardID]; ok {
			delete(t.subs, s.id)
		}
		s.hub.mu.Unlock()
		close(s.events)
	})
}

func (h *Hub) Subscribe(_ context.Context, boardID string) (Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}
	t := h.topicLocked(boardID)
	s := &subscription{
		id:      uuid.NewString(),
		boardID: boardID,
		events:  make(chan Event, h.buffer),
		done:    make(chan struct{}),
		hub:     h,
	}
	t.subs[s.id] = s

	// buffer is empty, this cannot block
	s.events <- Event{Kind: EventPresenceSync, BoardID: boardID, Presence: presenceList(t)}

	h.logger.Debug("Subscribed", log.String("board_id", boardID), log.String("subscription_id", s.id))
	return s, nil
}

// PublishChange delivers a change event to every subscriber of the board.
// Change events are never dropped: a full subscriber buffer blocks the
// publisher until the consumer catches up or cancels.
func (h *Hub) PublishChange(boardID string, change ChangeEvent) {
	h.publish(Event{Kind: EventChange, BoardID: boardID, Change: &change}, true)
}

func (h *Hub) Announce(_ context.Context, boardID string, entry model.PresenceEntry) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	h.topicLocked(boardID).presence[entry.ParticipantID] = entry
	h.mu.Unlock()

	h.publish(Event{Kind: EventPresenceJoin, BoardID: boardID, Presence: []model.PresenceEntry{entry}}, false)
	return nil
}

func (h *Hub) Leave(_ context.Context, boardID, participantID string) error {
	h.mu.Lock()
	t, ok := h.boards[boardID]
	var entry model.PresenceEntry
	if ok {
		entry, ok = t.presence[participantID]
		delete(t.presence, participantID)
	}
	h.mu.Unlock()
	if !ok {
		return nil
	}
	h.publish(Event{Kind: EventPresenceLeave, BoardID: boardID, Presence: []model.PresenceEntry{entry}}, false)
	return nil
}

// Presence returns the board's current presence entries.
func (h *Hub) Presence(boardID string) []model.PresenceEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	t, ok := h.boards[boardID]
	if !ok {
		return nil
	}
	return presenceList(t)
}

// Subscribers returns the number of live subscriptions on a board.
func (h *Hub) Subscribers(boardID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if t, ok := h.boards[boardID]; ok {
		return len(t.subs)
	}
	return 0
}

// Close cancels every subscription and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	var all []*subscription
	for _, t := range h.boards {
		for _, s := range t.subs {
			all = append(all, s)
		}
	}
	h.mu.Unlock()
	for _, s := range all {
		s.Cancel()
	}
}

func (h *Hub) publish(ev Event, blocking bool) {
	h.mu.RLock()
	t, ok := h.boards[ev.BoardID]
	if !ok {
		h.mu.RUnlock()
		return
	}
	delivered := 0
	for _, s := range t.subs {
		if blocking {
			select {
			case s.events <- ev:
				delivered++
			case <-s.done:
			}
			continue
		}
		select {
		case s.events <- ev:
			delivered++
		case <-s.done:
		default:
			h.logger.Debug("Dropped presence event for slow subscriber",
				log.String("board_id", ev.BoardID), log.String("subscription_id", s.id))
		}
	}
	h.mu.RUnlock()

	if h.observer != nil {
		h.observer(ev.BoardID, ev, delivered)
	}
}

func (h *Hub) topicLocked(boardID string) *topic {
	t, ok := h.boards[boardID]
	if !ok {
		t = &topic{
			subs:     make(map[string]*subscription),
			presence: make(map[string]model.PresenceEntry),
		}
		h.boards[boardID] = t
	}
	return t
}

func presenceList(t *topic) []model.PresenceEntry {
	out := make([]model.PresenceEntry, 0, len(t.presence))
	for _, e := range t.presence {
		out = append(out, e)
	}
	return out
}
