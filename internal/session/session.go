// Package session owns everything one client keeps for one open board: the
// record caches, a mutation coordinator per entity, the presence tracker and
// the single consumer loop reading the board's realtime subscription.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zeusync/boardsync/internal/collab"
	"github.com/zeusync/boardsync/internal/core/cache"
	"github.com/zeusync/boardsync/internal/core/model"
	"github.com/zeusync/boardsync/internal/core/mutation"
	"github.com/zeusync/boardsync/internal/core/observability/log"
	"github.com/zeusync/boardsync/internal/core/presence"
	"github.com/zeusync/boardsync/internal/core/reorder"
	"github.com/zeusync/boardsync/internal/realtime"
)

// Resources are the collaborator endpoints of the three entity kinds.
type Resources struct {
	Tasks   collab.Resource[model.Task]
	Columns collab.Resource[model.Column]
	Boards  collab.Resource[model.Board]
}

type Config struct {
	BoardID     string
	Participant model.Participant
	Channel     realtime.Channel
	Resources   Resources
	Gate        collab.PermissionGate

	Strategy      model.Strategy
	OrderStrategy model.Strategy
	Presence      presence.Config

	Logger log.Log
	Clock  func() time.Time
}

type Session struct {
	boardID string
	logger  log.Log

	tasks   *mutation.Coordinator[model.Task]
	columns *mutation.Coordinator[model.Column]
	board   *mutation.Coordinator[model.Board]
	tracker *presence.Tracker

	sub    realtime.Subscription
	cancel context.CancelFunc
	group  *errgroup.Group

	closeOnce sync.Once
	closeErr  error
}

// Open subscribes to the board, loads its current state and starts the
// consumer and presence loops. The subscription is taken before the initial
// load so no change published in between is lost; such changes arrive as
// ignored or stale duplicates.
func Open(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.BoardID == "" || cfg.Participant.ID == "" {
		return nil, fmt.Errorf("board and participant are required: %w", collab.ErrValidation)
	}
	if cfg.Channel == nil || cfg.Resources.Tasks == nil || cfg.Resources.Columns == nil || cfg.Resources.Boards == nil {
		return nil, fmt.Errorf("channel and resources are required: %w", collab.ErrValidation)
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	logger := cfg.Logger.With(log.String("board_id", cfg.BoardID), log.String("participant", cfg.Participant.ID))

	mcfg := mutation.Config{
		Gate:          cfg.Gate,
		Strategy:      cfg.Strategy,
		OrderStrategy: cfg.OrderStrategy,
		Actor:         cfg.Participant.ID,
		Logger:        logger,
		Clock:         cfg.Clock,
	}
	s := &Session{
		boardID: cfg.BoardID,
		logger:  logger,
		tasks:   mutation.New(model.TaskSchema, cache.NewStore(model.TaskSchema), cfg.Resources.Tasks, mcfg),
		columns: mutation.New(model.ColumnSchema, cache.NewStore(model.ColumnSchema), cfg.Resources.Columns, mcfg),
		board:   mutation.New(model.BoardSchema, cache.NewStore(model.BoardSchema), cfg.Resources.Boards, mcfg),
		tracker: presence.NewTracker(cfg.BoardID, cfg.Participant, cfg.Channel, cfg.Presence,
			presence.WithLogger(logger), presence.WithClock(cfg.Clock)),
	}

	sub, err := cfg.Channel.Subscribe(ctx, cfg.BoardID)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", cfg.BoardID, err)
	}
	s.sub = sub

	if err = s.load(collab.WithActor(ctx, cfg.Participant.ID), cfg.Resources); err != nil {
		sub.Cancel()
		return nil, err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(loopCtx)
	s.cancel = cancel
	s.group = group
	group.Go(func() error { return s.consume(gctx) })
	group.Go(func() error { return s.tracker.Run(gctx) })

	if err = s.tracker.Join(loopCtx); err != nil {
		logger.Warn("Presence join failed", log.Error(err))
	}

	logger.Info("Session opened",
		log.Int("tasks", s.tasks.Store().Len()),
		log.Int("columns", s.columns.Store().Len()))
	return s, nil
}

func (s *Session) load(ctx context.Context, res Resources) error {
	boards, err := res.Boards.List(ctx, s.boardID)
	if err != nil {
		return fmt.Errorf("load board: %w", err)
	}
	columns, err := res.Columns.List(ctx, s.boardID)
	if err != nil {
		return fmt.Errorf("load columns: %w", err)
	}
	tasks, err := res.Tasks.List(ctx, s.boardID)
	if err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}
	s.board.Store().Load(boards)
	s.columns.Store().Load(columns)
	s.tasks.Store().Load(tasks)
	return nil
}

// Close leaves presence, cancels the subscription and waits for the loops.
// It is idempotent.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		if err := s.tracker.Leave(ctx); err != nil {
			s.logger.Debug("Presence leave failed", log.Error(err))
		}
		s.cancel()
		s.sub.Cancel()
		s.closeErr = s.group.Wait()
		s.logger.Info("Session closed")
	})
	return s.closeErr
}

func (s *Session) consume(ctx context.Context) error {
	events := s.sub.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("board %s: %w", s.boardID, realtime.ErrClosed)
			}
			s.dispatch(ev)
		}
	}
}

func (s *Session) dispatch(ev realtime.Event) {
	switch ev.Kind {
	case realtime.EventChange:
		if ev.Change == nil {
			return
		}
		if err := s.applyChange(ev.Change); err != nil {
			s.logger.Warn("Dropped undecodable change",
				log.String("record_type", string(ev.Change.RecordType)),
				log.String("record_id", ev.Change.RecordID),
				log.Error(err))
		}
	case realtime.EventPresenceSync:
		s.tracker.Sync(ev.Presence)
	case realtime.EventPresenceJoin:
		for _, e := range ev.Presence {
			s.tracker.Upsert(e)
		}
	case realtime.EventPresenceLeave:
		for _, e := range ev.Presence {
			s.tracker.Remove(e.ParticipantID)
		}
	}
}

func (s *Session) applyChange(c *realtime.ChangeEvent) error {
	switch c.RecordType {
	case model.KindTask:
		return apply(s.tasks, c)
	case model.KindColumn:
		return apply(s.columns, c)
	case model.KindBoard:
		return apply(s.board, c)
	default:
		return fmt.Errorf("record type %q: %w", c.RecordType, realtime.ErrUnexpectedPayload)
	}
}

func apply[T any](c *mutation.Coordinator[T], change *realtime.ChangeEvent) error {
	rec, err := realtime.Decode[T](change)
	if err != nil {
		return err
	}
	c.ApplyRemote(rec)
	return nil
}

func (s *Session) BoardID() string { return s.boardID }

func (s *Session) Tasks() *mutation.Coordinator[model.Task]     { return s.tasks }
func (s *Session) Columns() *mutation.Coordinator[model.Column] { return s.columns }
func (s *Session) Board() *mutation.Coordinator[model.Board]    { return s.board }
func (s *Session) Presence() *presence.Tracker                  { return s.tracker }

// Stats returns the coordinator counters per entity kind.
func (s *Session) Stats() map[model.RecordKind]mutation.Stats {
	return map[model.RecordKind]mutation.Stats{
		model.KindTask:   s.tasks.Stats(),
		model.KindColumn: s.columns.Stats(),
		model.KindBoard:  s.board.Stats(),
	}
}

// ColumnTasks returns the live tasks of a column in display order.
func (s *Session) ColumnTasks(statusID string) []model.Task {
	return sortedLive(s.tasks.Store(), statusID)
}

// OrderedColumns returns the live columns of the board in display order.
func (s *Session) OrderedColumns() []model.Column {
	return sortedLive(s.columns.Store(), s.boardID)
}

func (s *Session) MoveTask(ctx context.Context, taskID, statusID string, index int) (reorder.MoveResult, error) {
	return s.tasks.Move(ctx, taskID, statusID, index)
}

func (s *Session) ReorderTasks(ctx context.Context, statusID string, from, to int) ([]model.OrderedItem, error) {
	return s.tasks.Reorder(ctx, statusID, from, to)
}

func (s *Session) ReorderColumns(ctx context.Context, from, to int) ([]model.OrderedItem, error) {
	return s.columns.Reorder(ctx, s.boardID, from, to)
}

func sortedLive[T any](store *cache.Store[T], containerID string) []T {
	schema := store.Schema()
	items := reorder.Sorted(store.Items(containerID))
	out := make([]T, 0, len(items))
	for _, it := range items {
		if r, ok := store.Get(it.ID); ok && !schema.Deleted(r.Data) {
			out = append(out, r.Data)
		}
	}
	return out
}
