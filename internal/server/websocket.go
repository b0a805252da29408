package server

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/zeusync/boardsync/internal/collab"
	"github.com/zeusync/boardsync/internal/core/observability/log"
	"github.com/zeusync/boardsync/internal/realtime"
)

// clientConn is one websocket subscriber of a board.
type clientConn struct {
	id       string
	boardID  string
	actor    string
	conn     *websocket.Conn
	sub      realtime.Subscription
	limiter  *rate.Limiter
	lastSeen int64 // atomic unix nanos

	mu           sync.Mutex
	participants map[string]struct{}
	closeOnce    sync.Once
}

func (c *clientConn) touch() {
	atomic.StoreInt64(&c.lastSeen, time.Now().UnixNano())
}

func (c *clientConn) close() {
	c.closeOnce.Do(func() {
		_ = c.conn.Close()
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	boardID := mux.Vars(r)["board"]

	if int(atomic.LoadInt64(&s.clientCount)) >= s.config.MaxClients {
		s.logger.Warn("Maximum clients reached, rejecting connection",
			log.String("remote_addr", r.RemoteAddr))
		writeError(w, ErrMaxClientsReached)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("Websocket upgrade failed", log.Error(err))
		return
	}

	sub, err := s.hub.Subscribe(r.Context(), boardID)
	if err != nil {
		s.logger.Warn("Subscribe failed", log.String("board_id", boardID), log.Error(err))
		_ = conn.Close()
		return
	}

	client := &clientConn{
		id:           uuid.NewString(),
		boardID:      boardID,
		actor:        collab.ActorFrom(r.Context()),
		conn:         conn,
		sub:          sub,
		limiter:      rate.NewLimiter(s.config.PresenceRate, s.config.PresenceBurst),
		participants: make(map[string]struct{}),
	}
	client.touch()

	s.clients.Store(client.id, client)
	atomic.AddInt64(&s.clientCount, 1)

	clientLogger := s.logger.With(
		log.String("client_id", client.id),
		log.String("board_id", boardID),
		log.String("actor", client.actor))
	clientLogger.Info("Client connected",
		log.String("remote_addr", conn.RemoteAddr().String()),
		log.Int64("total_clients", atomic.LoadInt64(&s.clientCount)))

	written := make(chan struct{})
	go func() {
		defer close(written)
		s.writeEvents(client, clientLogger)
	}()

	s.readCommands(r.Context(), client, clientLogger)

	sub.Cancel()
	client.close()
	<-written

	client.mu.Lock()
	for participant := range client.participants {
		_ = s.hub.Leave(r.Context(), boardID, participant)
	}
	client.mu.Unlock()

	s.clients.Delete(client.id)
	atomic.AddInt64(&s.clientCount, -1)

	clientLogger.Info("Client disconnected",
		log.Int64("total_clients", atomic.LoadInt64(&s.clientCount)))
}

// writeEvents pumps subscription events to the socket until either side
// closes.
func (s *Server) writeEvents(client *clientConn, logger log.Log) {
	for ev := range client.sub.Events() {
		_ = client.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
		if err := client.conn.WriteJSON(ev); err != nil {
			logger.Debug("Write failed", log.Error(err))
			client.close()
			// drain so publishers are not held up until Cancel
			for range client.sub.Events() {
			}
			return
		}
	}
}

func (s *Server) readCommands(ctx context.Context, client *clientConn, logger log.Log) {
	client.conn.SetReadLimit(s.config.MaxMessageSize)
	for {
		var cmd realtime.Command
		if err := client.conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("Read failed", log.Error(err))
			}
			return
		}
		client.touch()

		switch cmd.Kind {
		case realtime.CommandAnnounce:
			if cmd.Entry == nil || cmd.Entry.ParticipantID == "" {
				logger.Warn("Invalid announce", log.Error(ErrInvalidMessage))
				continue
			}
			if cmd.Entry.Pointer != nil && !client.limiter.Allow() {
				logger.Debug("Presence rate limited", log.String("participant", cmd.Entry.ParticipantID))
				continue
			}
			client.mu.Lock()
			client.participants[cmd.Entry.ParticipantID] = struct{}{}
			client.mu.Unlock()
			_ = s.hub.Announce(ctx, client.boardID, *cmd.Entry)
		case realtime.CommandLeave:
			client.mu.Lock()
			delete(client.participants, cmd.ParticipantID)
			client.mu.Unlock()
			_ = s.hub.Leave(ctx, client.boardID, cmd.ParticipantID)
		default:
			logger.Warn("Unknown command", log.String("kind", string(cmd.Kind)))
		}
	}
}
