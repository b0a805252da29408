package memapi

import (
	"time"

	"github.com/zeusync/boardsync/internal/core/model"
	"github.com/zeusync/boardsync/internal/core/observability/log"
)

// Server groups the tables of one deployment behind a single publisher.
type Server struct {
	Tasks   *Table[model.Task]
	Columns *Table[model.Column]
	Boards  *Table[model.Board]
}

type options struct {
	logger log.Log
	clock  func() time.Time
}

type Option func(*options)

func WithLogger(logger log.Log) Option {
	return func(o *options) { o.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

func NewServer(pub Publisher, opts ...Option) *Server {
	o := options{logger: log.NewNop(), clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger.With(log.String("component", "memapi"))
	return &Server{
		Tasks:   NewTable(model.TaskSchema, func(t model.Task) string { return t.BoardID }, pub, logger, o.clock),
		Columns: NewTable(model.ColumnSchema, func(c model.Column) string { return c.BoardID }, pub, logger, o.clock),
		Boards:  NewTable(model.BoardSchema, func(b model.Board) string { return b.ID }, pub, logger, o.clock),
	}
}

// Fail injects err into every table; Fail(nil) heals them.
func (s *Server) Fail(err error) {
	s.Tasks.Fail(err)
	s.Columns.Fail(err)
	s.Boards.Fail(err)
}
