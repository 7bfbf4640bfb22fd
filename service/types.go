package service

import (
	"context"
	"fmt"

	"kanban-api/domain"
)

// Store is the storage-client surface the services require. A single
// concrete client (storage.Storage, or storage.Cache wrapping it) satisfies
// the whole interface; services receive it by injection.
type Store interface {
	GetBoard(ctx context.Context, userID, id string) (domain.Board, error)
	ListBoards(ctx context.Context, userID string) ([]domain.Board, error)
	InsertBoard(ctx context.Context, b domain.Board) error
	UpdateBoard(ctx context.Context, userID, id string, patch domain.BoardPatch) (domain.Board, error)
	DeleteBoard(ctx context.Context, userID, id string) error
	DeleteBoards(ctx context.Context, userID string, ids []string) error

	GetColumn(ctx context.Context, userID, id string) (domain.Column, error)
	ListColumns(ctx context.Context, userID, boardID string) ([]domain.Column, error)
	InsertColumn(ctx context.Context, col domain.Column) error
	UpdateColumn(ctx context.Context, userID, id string, patch domain.ColumnPatch) (domain.Column, error)
	DeleteColumn(ctx context.Context, userID, id string) error
	DeleteColumnsByBoard(ctx context.Context, userID, boardID string) error

	GetTask(ctx context.Context, userID, id string) (domain.Task, error)
	ListTasks(ctx context.Context, userID, columnID string) ([]domain.Task, error)
	ListTasksByBoard(ctx context.Context, userID, boardID string) ([]domain.Task, error)
	InsertTask(ctx context.Context, task domain.Task) error
	UpdateTask(ctx context.Context, userID, id string, patch domain.TaskPatch) (domain.Task, error)
	DeleteTask(ctx context.Context, userID, id string) error
	DeleteTasksByColumns(ctx context.Context, userID string, columnIDs []string) error
}

// ValidationError reports a request rejected before reaching storage.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
