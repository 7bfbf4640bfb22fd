package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"kanban-api/domain"
)

// BoardService is the CRUD facade for boards.
type BoardService struct {
	store Store
	feed  *ChangeFeed
}

// NewBoardService creates a board service on top of the given store.
func NewBoardService(store Store, feed *ChangeFeed) *BoardService {
	return &BoardService{store: store, feed: feed}
}

// Get retrieves one board owned by the user.
func (s *BoardService) Get(ctx context.Context, userID, id string) (domain.Board, error) {
	return s.store.GetBoard(ctx, userID, id)
}

// List returns the user's boards ordered by creation time. The result is
// never nil.
func (s *BoardService) List(ctx context.Context, userID string) ([]domain.Board, error) {
	boards, err := s.store.ListBoards(ctx, userID)
	if err != nil {
		return nil, err
	}
	if boards == nil {
		boards = []domain.Board{}
	}
	return boards, nil
}

// Create inserts a new board and returns the hydrated record with its
// generated id and timestamps.
func (s *BoardService) Create(ctx context.Context, userID, title, description, color string) (domain.Board, error) {
	if strings.TrimSpace(title) == "" {
		return domain.Board{}, invalid("title", "must not be empty")
	}
	if userID == "" {
		return domain.Board{}, invalid("userId", "must not be empty")
	}
	now := time.Now().UTC()
	board := domain.Board{
		ID:          uuid.NewString(),
		Title:       title,
		Description: description,
		Color:       color,
		OwnerID:     userID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.InsertBoard(ctx, board); err != nil {
		return domain.Board{}, err
	}
	s.feed.Publish(userID, changeEvent("board", board.ID, domain.OpCreated))
	return board, nil
}

// Update applies a partial patch to one board and returns the updated record.
func (s *BoardService) Update(ctx context.Context, userID, id string, patch domain.BoardPatch) (domain.Board, error) {
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return domain.Board{}, invalid("title", "must not be empty")
	}
	board, err := s.store.UpdateBoard(ctx, userID, id, patch)
	if err != nil {
		return domain.Board{}, err
	}
	s.feed.Publish(userID, changeEvent("board", id, domain.OpUpdated))
	return board, nil
}

// Delete removes one board row only. Dependent rows are the caller's
// concern; BoardDataService.DeleteBoardCascade removes them first.
func (s *BoardService) Delete(ctx context.Context, userID, id string) error {
	if err := s.store.DeleteBoard(ctx, userID, id); err != nil {
		return err
	}
	s.feed.Publish(userID, changeEvent("board", id, domain.OpDeleted))
	return nil
}

// BulkDelete removes a set of boards. An empty set is a no-op that issues
// no storage request.
func (s *BoardService) BulkDelete(ctx context.Context, userID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.store.DeleteBoards(ctx, userID, ids); err != nil {
		return err
	}
	events := make([]domain.ChangeEvent, len(ids))
	for i, id := range ids {
		events[i] = changeEvent("board", id, domain.OpDeleted)
	}
	s.feed.Publish(userID, events...)
	return nil
}
