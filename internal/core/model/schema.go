package model

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/cespare/xxhash/v2"
)

type Field string

const (
	FieldTitle       Field = "title"
	FieldName        Field = "name"
	FieldDescription Field = "description"
	FieldStatus      Field = "status_id"
	FieldBoard       Field = "board_id"
	FieldOrder       Field = "order"
	FieldPriority    Field = "priority"
	FieldAssignee    Field = "assignee_id"
	FieldDueDate     Field = "due_date"
	FieldTags        Field = "tags"
	FieldColor       Field = "color"
	FieldDeleted     Field = "deleted"
)

// IsNonCritical reports whether a differing value of f may be auto-merged.
// The list is fixed: tags, free-text description and decorative color.
func IsNonCritical(f Field) bool {
	switch f {
	case FieldTags, FieldDescription, FieldColor:
		return true
	default:
		return false
	}
}

// FieldSpec is one enumerated field of an entity. Value and Set move the field
// in and out of the entity as a plain value so the resolver can deep-merge it.
type FieldSpec[T any] struct {
	Name  Field
	Equal func(a, b T) bool
	Value func(v T) any
	Set   func(v *T, value any)
}

// Schema describes an entity type explicitly, so detection and merging walk a
// fixed list instead of reflecting over arbitrary keys.
type Schema[T any] struct {
	Kind   RecordKind
	Fields []FieldSpec[T]

	ID          func(v T) string
	SetID       func(v T, id string) T
	Deleted     func(v T) bool
	MarkDeleted func(v T) T

	// Order, Container and Place are nil for entities that do not live in a
	// sequenced container.
	Order     func(v T) int
	Container func(v T) string
	Place     func(v T, containerID string, order int) T
}

func (s *Schema[T]) Ordered() bool {
	return s.Order != nil && s.Container != nil && s.Place != nil
}

func (s *Schema[T]) Field(name Field) (FieldSpec[T], bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec[T]{}, false
}

// Clone copies v field by field so reference-typed fields are not shared.
func (s *Schema[T]) Clone(v T) T {
	out := v
	for _, f := range s.Fields {
		f.Set(&out, f.Value(v))
	}
	return out
}

// Diff lists the fields whose values differ between a and b, in schema order.
func (s *Schema[T]) Diff(a, b T) []Field {
	var out []Field
	for _, f := range s.Fields {
		if !f.Equal(a, b) {
			out = append(out, f.Name)
		}
	}
	return out
}

// Item projects v onto its container position. ok is false for unordered
// entities.
func (s *Schema[T]) Item(v T) (item OrderedItem, ok bool) {
	if !s.Ordered() {
		return OrderedItem{}, false
	}
	return OrderedItem{ID: s.ID(v), ContainerID: s.Container(v), Order: s.Order(v)}, true
}

// Fingerprint hashes the JSON form of v. Equal fingerprints mean equal content.
func Fingerprint[T any](v T) uint64 {
	b, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return xxhash.Sum64(b)
}

func stringField[T any](name Field, get func(T) string, set func(*T, string)) FieldSpec[T] {
	return FieldSpec[T]{
		Name:  name,
		Equal: func(a, b T) bool { return get(a) == get(b) },
		Value: func(v T) any { return get(v) },
		Set:   func(v *T, value any) { set(v, value.(string)) },
	}
}

func intField[T any](name Field, get func(T) int, set func(*T, int)) FieldSpec[T] {
	return FieldSpec[T]{
		Name:  name,
		Equal: func(a, b T) bool { return get(a) == get(b) },
		Value: func(v T) any { return get(v) },
		Set:   func(v *T, value any) { set(v, value.(int)) },
	}
}

func boolField[T any](name Field, get func(T) bool, set func(*T, bool)) FieldSpec[T] {
	return FieldSpec[T]{
		Name:  name,
		Equal: func(a, b T) bool { return get(a) == get(b) },
		Value: func(v T) any { return get(v) },
		Set:   func(v *T, value any) { set(v, value.(bool)) },
	}
}

var TaskSchema = &Schema[Task]{
	Kind: KindTask,
	Fields: []FieldSpec[Task]{
		stringField(FieldTitle, func(t Task) string { return t.Title }, func(t *Task, s string) { t.Title = s }),
		stringField(FieldDescription, func(t Task) string { return t.Description }, func(t *Task, s string) { t.Description = s }),
		stringField(FieldStatus, func(t Task) string { return t.StatusID }, func(t *Task, s string) { t.StatusID = s }),
		intField(FieldOrder, func(t Task) int { return t.Order }, func(t *Task, n int) { t.Order = n }),
		intField(FieldPriority, func(t Task) int { return t.Priority }, func(t *Task, n int) { t.Priority = n }),
		stringField(FieldAssignee, func(t Task) string { return t.AssigneeID }, func(t *Task, s string) { t.AssigneeID = s }),
		{
			Name:  FieldDueDate,
			Equal: func(a, b Task) bool { return a.DueDate.Equal(b.DueDate) },
			Value: func(t Task) any { return t.DueDate },
			Set:   func(t *Task, value any) { t.DueDate = value.(time.Time) },
		},
		{
			Name:  FieldTags,
			Equal: func(a, b Task) bool { return slices.Equal(a.Tags, b.Tags) },
			Value: func(t Task) any { return slices.Clone(t.Tags) },
			Set:   func(t *Task, value any) { t.Tags = value.([]string) },
		},
		stringField(FieldColor, func(t Task) string { return t.Color }, func(t *Task, s string) { t.Color = s }),
		boolField(FieldDeleted, func(t Task) bool { return t.Deleted }, func(t *Task, b bool) { t.Deleted = b }),
	},
	ID:          func(t Task) string { return t.ID },
	SetID:       func(t Task, id string) Task { t.ID = id; return t },
	Deleted:     func(t Task) bool { return t.Deleted },
	MarkDeleted: func(t Task) Task { t.Deleted = true; return t },
	Order:       func(t Task) int { return t.Order },
	Container:   func(t Task) string { return t.StatusID },
	Place: func(t Task, containerID string, order int) Task {
		t.StatusID = containerID
		t.Order = order
		return t
	},
}

var ColumnSchema = &Schema[Column]{
	Kind: KindColumn,
	Fields: []FieldSpec[Column]{
		stringField(FieldName, func(c Column) string { return c.Name }, func(c *Column, s string) { c.Name = s }),
		stringField(FieldBoard, func(c Column) string { return c.BoardID }, func(c *Column, s string) { c.BoardID = s }),
		intField(FieldOrder, func(c Column) int { return c.Order }, func(c *Column, n int) { c.Order = n }),
		stringField(FieldColor, func(c Column) string { return c.Color }, func(c *Column, s string) { c.Color = s }),
		boolField(FieldDeleted, func(c Column) bool { return c.Deleted }, func(c *Column, b bool) { c.Deleted = b }),
	},
	ID:          func(c Column) string { return c.ID },
	SetID:       func(c Column, id string) Column { c.ID = id; return c },
	Deleted:     func(c Column) bool { return c.Deleted },
	MarkDeleted: func(c Column) Column { c.Deleted = true; return c },
	Order:       func(c Column) int { return c.Order },
	Container:   func(c Column) string { return c.BoardID },
	Place: func(c Column, containerID string, order int) Column {
		c.BoardID = containerID
		c.Order = order
		return c
	},
}

var BoardSchema = &Schema[Board]{
	Kind: KindBoard,
	Fields: []FieldSpec[Board]{
		stringField(FieldName, func(b Board) string { return b.Name }, func(b *Board, s string) { b.Name = s }),
		stringField(FieldDescription, func(b Board) string { return b.Description }, func(b *Board, s string) { b.Description = s }),
		stringField(FieldColor, func(b Board) string { return b.Color }, func(b *Board, s string) { b.Color = s }),
		boolField(FieldDeleted, func(b Board) bool { return b.Deleted }, func(b *Board, v bool) { b.Deleted = v }),
	},
	ID:          func(b Board) string { return b.ID },
	SetID:       func(b Board, id string) Board { b.ID = id; return b },
	Deleted:     func(b Board) bool { return b.Deleted },
	MarkDeleted: func(b Board) Board { b.Deleted = true; return b },
}
