package httpapi

import (
	"context"
	"net/http"
	"net/url"

	"github.com/zeusync/boardsync/internal/collab"
	"github.com/zeusync/boardsync/internal/core/model"
)

var (
	_ collab.Resource[model.Task]   = (*Resource[model.Task])(nil)
	_ collab.Resource[model.Column] = (*Resource[model.Column])(nil)
	_ collab.Resource[model.Board]  = (*Resource[model.Board])(nil)
)

// Resource is the remote collection of one entity kind.
type Resource[T any] struct {
	client *Client
	path   string
}

func Tasks(c *Client) *Resource[model.Task] {
	return &Resource[model.Task]{client: c, path: "/v1/tasks"}
}
func Columns(c *Client) *Resource[model.Column] {
	return &Resource[model.Column]{client: c, path: "/v1/columns"}
}
func Boards(c *Client) *Resource[model.Board] {
	return &Resource[model.Board]{client: c, path: "/v1/boards"}
}

func (r *Resource[T]) List(ctx context.Context, boardID string) ([]model.VersionedRecord[T], error) {
	var out []model.VersionedRecord[T]
	err := r.client.do(ctx, http.MethodGet, r.path+"?board_id="+url.QueryEscape(boardID), nil, &out)
	return out, err
}

func (r *Resource[T]) Create(ctx context.Context, v T) (model.VersionedRecord[T], error) {
	var out model.VersionedRecord[T]
	err := r.client.do(ctx, http.MethodPost, r.path, v, &out)
	return out, err
}

func (r *Resource[T]) Update(ctx context.Context, id string, patch model.Patch[T]) (model.VersionedRecord[T], error) {
	var out model.VersionedRecord[T]
	err := r.client.do(ctx, http.MethodPatch, r.path+"/"+url.PathEscape(id), patch, &out)
	return out, err
}

func (r *Resource[T]) Delete(ctx context.Context, id string) error {
	return r.client.do(ctx, http.MethodDelete, r.path+"/"+url.PathEscape(id), nil, nil)
}

func (r *Resource[T]) Move(ctx context.Context, id, containerID string, order int) error {
	body := struct {
		ContainerID string `json:"container_id"`
		Order       int    `json:"order"`
	}{containerID, order}
	return r.client.do(ctx, http.MethodPost, r.path+"/"+url.PathEscape(id)+"/move", body, nil)
}

func (r *Resource[T]) Reorder(ctx context.Context, items []model.OrderedItem) error {
	return r.client.do(ctx, http.MethodPost, r.path+"/reorder", items, nil)
}
