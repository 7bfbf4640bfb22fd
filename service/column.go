package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"kanban-api/domain"
)

// ColumnService is the CRUD facade for columns.
type ColumnService struct {
	store Store
	feed  *ChangeFeed
}

// NewColumnService creates a column service on top of the given store.
func NewColumnService(store Store, feed *ChangeFeed) *ColumnService {
	return &ColumnService{store: store, feed: feed}
}

// Get retrieves one column owned by the user.
func (s *ColumnService) Get(ctx context.Context, userID, id string) (domain.Column, error) {
	return s.store.GetColumn(ctx, userID, id)
}

// ListByBoard returns the board's columns ordered by sort order, never nil.
func (s *ColumnService) ListByBoard(ctx context.Context, userID, boardID string) ([]domain.Column, error) {
	columns, err := s.store.ListColumns(ctx, userID, boardID)
	if err != nil {
		return nil, err
	}
	if columns == nil {
		columns = []domain.Column{}
	}
	return columns, nil
}

// Create inserts a new column and returns the hydrated record.
func (s *ColumnService) Create(ctx context.Context, userID, boardID, title string, sortOrder int) (domain.Column, error) {
	if strings.TrimSpace(title) == "" {
		return domain.Column{}, invalid("title", "must not be empty")
	}
	if boardID == "" {
		return domain.Column{}, invalid("boardId", "must not be empty")
	}
	col := domain.Column{
		ID:        uuid.NewString(),
		BoardID:   boardID,
		Title:     title,
		SortOrder: sortOrder,
		OwnerID:   userID,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.InsertColumn(ctx, col); err != nil {
		return domain.Column{}, err
	}
	s.feed.Publish(userID, changeEvent("column", col.ID, domain.OpCreated))
	return col, nil
}

// Update applies a partial patch to one column and returns the updated record.
func (s *ColumnService) Update(ctx context.Context, userID, id string, patch domain.ColumnPatch) (domain.Column, error) {
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return domain.Column{}, invalid("title", "must not be empty")
	}
	col, err := s.store.UpdateColumn(ctx, userID, id, patch)
	if err != nil {
		return domain.Column{}, err
	}
	s.feed.Publish(userID, changeEvent("column", id, domain.OpUpdated))
	return col, nil
}

// Delete removes one column row only; tasks in the column are the caller's
// concern.
func (s *ColumnService) Delete(ctx context.Context, userID, id string) error {
	if err := s.store.DeleteColumn(ctx, userID, id); err != nil {
		return err
	}
	s.feed.Publish(userID, changeEvent("column", id, domain.OpDeleted))
	return nil
}

// DeleteByBoard removes every column of the given board.
func (s *ColumnService) DeleteByBoard(ctx context.Context, userID, boardID string) error {
	return s.store.DeleteColumnsByBoard(ctx, userID, boardID)
}
