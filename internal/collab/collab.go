// Package collab defines the collaborators the mutation core talks to: the
// authoritative Mutation API and the permission gate.
package collab

import (
	"context"

	"github.com/zeusync/boardsync/internal/core/model"
)

type Action string

const (
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionMove    Action = "move"
	ActionReorder Action = "reorder"
)

// MutationAPI is the request/response API of one entity type. Create and
// Update return the full post-write record including Version and UpdatedAt.
type MutationAPI[T any] interface {
	Create(ctx context.Context, data T) (model.VersionedRecord[T], error)
	Update(ctx context.Context, id string, patch model.Patch[T]) (model.VersionedRecord[T], error)
	Delete(ctx context.Context, id string) error
	Move(ctx context.Context, id, containerID string, order int) error
	Reorder(ctx context.Context, items []model.OrderedItem) error
}

// Lister loads every record of a board, used on cold start.
type Lister[T any] interface {
	List(ctx context.Context, boardID string) ([]model.VersionedRecord[T], error)
}

// Resource is the full per-entity surface a board session needs.
type Resource[T any] interface {
	MutationAPI[T]
	Lister[T]
}

type PermissionGate interface {
	CanPerform(ctx context.Context, action Action, recordID string) (bool, error)
}

// PermissionFunc adapts a function to PermissionGate.
type PermissionFunc func(ctx context.Context, action Action, recordID string) (bool, error)

func (f PermissionFunc) CanPerform(ctx context.Context, action Action, recordID string) (bool, error) {
	return f(ctx, action, recordID)
}

// AllowAll permits every action.
var AllowAll PermissionGate = PermissionFunc(func(context.Context, Action, string) (bool, error) {
	return true, nil
})

type Role string

const (
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
	RoleOwner  Role = "owner"
)

// RoleGate grants actions by board role: viewers may not mutate, editors may
// do everything except delete, owners may do everything.
type RoleGate struct {
	Role Role
}

func (g RoleGate) CanPerform(_ context.Context, action Action, _ string) (bool, error) {
	switch g.Role {
	case RoleOwner:
		return true, nil
	case RoleEditor:
		return action != ActionDelete, nil
	default:
		return false, nil
	}
}

type actorKey struct{}

// WithActor records the writer identity for the collaborator call.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func ActorFrom(ctx context.Context) string {
	actor, _ := ctx.Value(actorKey{}).(string)
	return actor
}
