// Package wschannel is a realtime.Channel backed by the board server's
// websocket endpoint. Each subscription owns one connection; presence
// commands for a board go out over any live subscription of that board.
package wschannel

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/zeusync/boardsync/internal/core/model"
	"github.com/zeusync/boardsync/internal/core/observability/log"
	"github.com/zeusync/boardsync/internal/realtime"
)

const (
	defaultBuffer       = 256
	defaultWriteTimeout = 5 * time.Second
)

var _ realtime.Channel = (*Channel)(nil)

type Channel struct {
	base   string
	actor  string
	dialer *websocket.Dialer
	logger log.Log
	buffer int

	mu   sync.Mutex
	subs map[string]map[string]*subscription
}

type Option func(*Channel)

func WithLogger(logger log.Log) Option {
	return func(c *Channel) { c.logger = logger }
}

func WithDialer(d *websocket.Dialer) Option {
	return func(c *Channel) { c.dialer = d }
}

func WithBuffer(n int) Option {
	return func(c *Channel) { c.buffer = n }
}

// New builds a channel for the server at baseURL (http or ws scheme).
func New(baseURL, actor string, opts ...Option) *Channel {
	base := strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	c := &Channel{
		base:   base,
		actor:  actor,
		dialer: websocket.DefaultDialer,
		logger: log.NewNop(),
		buffer: defaultBuffer,
		subs:   make(map[string]map[string]*subscription),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(log.String("component", "wschannel"))
	return c
}

func (c *Channel) Subscribe(ctx context.Context, boardID string) (realtime.Subscription, error) {
	u := fmt.Sprintf("%s/v1/boards/%s/ws?actor=%s", c.base, url.PathEscape(boardID), url.QueryEscape(c.actor))
	conn, _, err := c.dialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", boardID, err)
	}

	s := &subscription{
		id:         uuid.NewString(),
		boardID:    boardID,
		conn:       conn,
		events:     make(chan realtime.Event, c.buffer),
		done:       make(chan struct{}),
		readerDone: make(chan struct{}),
		channel:    c,
	}

	c.mu.Lock()
	board, ok := c.subs[boardID]
	if !ok {
		board = make(map[string]*subscription)
		c.subs[boardID] = board
	}
	board[s.id] = s
	c.mu.Unlock()

	go s.read(c.logger.With(log.String("board_id", boardID), log.String("subscription_id", s.id)))
	return s, nil
}

func (c *Channel) Announce(ctx context.Context, boardID string, entry model.PresenceEntry) error {
	return c.send(ctx, boardID, realtime.Command{Kind: realtime.CommandAnnounce, Entry: &entry})
}

func (c *Channel) Leave(ctx context.Context, boardID, participantID string) error {
	return c.send(ctx, boardID, realtime.Command{Kind: realtime.CommandLeave, ParticipantID: participantID})
}

func (c *Channel) send(ctx context.Context, boardID string, cmd realtime.Command) error {
	c.mu.Lock()
	var s *subscription
	for _, candidate := range c.subs[boardID] {
		s = candidate
		break
	}
	c.mu.Unlock()
	if s == nil {
		return fmt.Errorf("board %s: %w", boardID, realtime.ErrNotSubscribed)
	}
	return s.write(ctx, cmd)
}

func (c *Channel) forget(s *subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if board, ok := c.subs[s.boardID]; ok {
		delete(board, s.id)
		if len(board) == 0 {
			delete(c.subs, s.boardID)
		}
	}
}

type subscription struct {
	id      string
	boardID string
	conn    *websocket.Conn
	channel *Channel

	events     chan realtime.Event
	done       chan struct{}
	readerDone chan struct{}
	once       sync.Once
	writeMu    sync.Mutex
}

func (s *subscription) ID() string                    { return s.id }
func (s *subscription) Events() <-chan realtime.Event { return s.events }

// Cancel closes the connection and returns once Events is closed.
func (s *subscription) Cancel() {
	s.once.Do(func() {
		close(s.done)
		s.channel.forget(s)

		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.writeMu.Unlock()
		_ = s.conn.Close()
	})
	<-s.readerDone
}

func (s *subscription) write(ctx context.Context, cmd realtime.Command) error {
	select {
	case <-s.done:
		return realtime.ErrClosed
	default:
	}
	deadline := time.Now().Add(defaultWriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(deadline)
	if err := s.conn.WriteJSON(cmd); err != nil {
		return fmt.Errorf("%w: %v", realtime.ErrClosed, err)
	}
	return nil
}

// read is the only sender on events and closes it on exit.
func (s *subscription) read(logger log.Log) {
	defer close(s.readerDone)
	defer close(s.events)
	defer s.channel.forget(s)

	for {
		var ev realtime.Event
		if err := s.conn.ReadJSON(&ev); err != nil {
			select {
			case <-s.done:
			default:
				logger.Warn("Realtime connection lost", log.Error(err))
				_ = s.conn.Close()
			}
			return
		}
		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
	}
}
