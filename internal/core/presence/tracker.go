// Package presence tracks the other participants of a board and their last
// known pointer. Presence is ephemeral and last-write-wins by construction:
// each participant is the only writer of its own entry.
package presence

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/zeusync/boardsync/internal/core/model"
	"github.com/zeusync/boardsync/internal/core/observability/log"
	"github.com/zeusync/boardsync/pkg/sequence"
	"github.com/zeusync/boardsync/pkg/throttle"
)

const (
	DefaultStaleAfter    = 5 * time.Second
	DefaultSweepInterval = time.Second
	DefaultThrottle      = 50 * time.Millisecond
)

// Announcer publishes the local participant's entry on a board channel.
type Announcer interface {
	Announce(ctx context.Context, boardID string, entry model.PresenceEntry) error
	Leave(ctx context.Context, boardID, participantID string) error
}

type Config struct {
	StaleAfter    time.Duration
	SweepInterval time.Duration
	Throttle      time.Duration
}

func DefaultConfig() Config {
	return Config{
		StaleAfter:    DefaultStaleAfter,
		SweepInterval: DefaultSweepInterval,
		Throttle:      DefaultThrottle,
	}
}

type Tracker struct {
	boardID   string
	self      model.Participant
	announcer Announcer
	config    Config
	logger    log.Log
	now       func() time.Time
	pointer   *throttle.Throttle[model.Point]

	mu        sync.RWMutex
	ctx       context.Context
	peers     map[string]model.PresenceEntry
	onChange  func([]model.PresenceEntry)
	last      *model.Point
	announced time.Time
}

type Option func(*Tracker)

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

func WithLogger(logger log.Log) Option {
	return func(t *Tracker) { t.logger = logger }
}

// OnChange is called with the visible peer set after every change.
func OnChange(fn func([]model.PresenceEntry)) Option {
	return func(t *Tracker) { t.onChange = fn }
}

func NewTracker(boardID string, self model.Participant, announcer Announcer, config Config, opts ...Option) *Tracker {
	if config.StaleAfter <= 0 {
		config.StaleAfter = DefaultStaleAfter
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = DefaultSweepInterval
	}
	if config.Throttle <= 0 {
		config.Throttle = DefaultThrottle
	}
	t := &Tracker{
		boardID:   boardID,
		self:      self,
		announcer: announcer,
		config:    config,
		logger:    log.NewNop(),
		now:       time.Now,
		ctx:       context.Background(),
		peers:     make(map[string]model.PresenceEntry),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With(log.String("component", "presence"), log.String("board_id", boardID))
	t.pointer = throttle.New(config.Throttle, t.announcePointer)
	return t
}

// Join announces the local participant with no pointer yet.
func (t *Tracker) Join(ctx context.Context) error {
	t.mu.Lock()
	t.ctx = ctx
	t.last = nil
	t.announced = t.now()
	t.mu.Unlock()
	return t.announcer.Announce(ctx, t.boardID, t.entry(nil))
}

// MovePointer records a local pointer move. Announcements are throttled and
// intermediate positions coalesced.
func (t *Tracker) MovePointer(x, y float64) {
	t.pointer.Call(model.Point{X: x, Y: y})
}

// Leave stops pointer announcements and tells peers we are gone.
func (t *Tracker) Leave(ctx context.Context) error {
	t.pointer.Stop()
	return t.announcer.Leave(ctx, t.boardID, t.self.ID)
}

func (t *Tracker) announcePointer(p model.Point) {
	t.mu.Lock()
	ctx := t.ctx
	t.last = &p
	t.announced = t.now()
	t.mu.Unlock()
	if err := t.announcer.Announce(ctx, t.boardID, t.entry(&p)); err != nil {
		t.logger.Debug("Pointer announcement failed", log.Error(err))
	}
}

func (t *Tracker) entry(p *model.Point) model.PresenceEntry {
	return model.PresenceEntry{
		ParticipantID: t.self.ID,
		DisplayLabel:  t.self.DisplayLabel,
		Color:         t.self.Color,
		Pointer:       p,
		LastUpdate:    t.now(),
	}
}

// Upsert replaces a peer's entry wholesale. Our own echoes are ignored.
func (t *Tracker) Upsert(entry model.PresenceEntry) {
	if entry.ParticipantID == "" || entry.ParticipantID == t.self.ID {
		return
	}
	t.mu.Lock()
	t.peers[entry.ParticipantID] = entry
	t.mu.Unlock()
	t.changed()
}

// Sync replaces the whole peer set with a channel snapshot.
func (t *Tracker) Sync(entries []model.PresenceEntry) {
	next := make(map[string]model.PresenceEntry, len(entries))
	for _, e := range entries {
		if e.ParticipantID == "" || e.ParticipantID == t.self.ID {
			continue
		}
		next[e.ParticipantID] = e
	}
	t.mu.Lock()
	t.peers = next
	t.mu.Unlock()
	t.changed()
}

func (t *Tracker) Remove(participantID string) {
	t.mu.Lock()
	_, ok := t.peers[participantID]
	delete(t.peers, participantID)
	t.mu.Unlock()
	if ok {
		t.changed()
	}
}

// Sweep drops entries not updated within StaleAfter and returns their ids.
func (t *Tracker) Sweep() []string {
	cutoff := t.now().Add(-t.config.StaleAfter)
	var removed []string
	t.mu.Lock()
	for id, e := range t.peers {
		if e.LastUpdate.Before(cutoff) {
			delete(t.peers, id)
			removed = append(removed, id)
		}
	}
	t.mu.Unlock()

	if len(removed) > 0 {
		t.logger.Debug("Swept stale participants", log.Strings("participants", removed))
		t.changed()
	}
	return removed
}

// Heartbeat re-announces the last known entry when nothing was announced for
// half of StaleAfter, so idle participants are not swept by their peers.
func (t *Tracker) Heartbeat(ctx context.Context) error {
	t.mu.Lock()
	if t.now().Sub(t.announced) < t.config.StaleAfter/2 {
		t.mu.Unlock()
		return nil
	}
	t.announced = t.now()
	var last *model.Point
	if t.last != nil {
		p := *t.last
		last = &p
	}
	t.mu.Unlock()
	return t.announcer.Announce(ctx, t.boardID, t.entry(last))
}

// Run sweeps and heartbeats on every SweepInterval tick until ctx is done.
func (t *Tracker) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.config.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			t.Sweep()
			if err := t.Heartbeat(ctx); err != nil {
				t.logger.Debug("Heartbeat failed", log.Error(err))
			}
		}
	}
}

// Peers returns the fresh peers sorted by display label.
func (t *Tracker) Peers() []model.PresenceEntry {
	cutoff := t.now().Add(-t.config.StaleAfter)
	t.mu.RLock()
	defer t.mu.RUnlock()
	return sequence.FromMap(t.peers).
		Filter(func(e model.PresenceEntry) bool { return !e.LastUpdate.Before(cutoff) }).
		SortBy(func(a, b model.PresenceEntry) int {
			if c := strings.Compare(a.DisplayLabel, b.DisplayLabel); c != 0 {
				return c
			}
			return strings.Compare(a.ParticipantID, b.ParticipantID)
		}).
		Collect()
}

func (t *Tracker) changed() {
	if t.onChange != nil {
		t.onChange(t.Peers())
	}
}
