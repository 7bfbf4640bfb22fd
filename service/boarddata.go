package service

import (
	"context"
	"fmt"

	"kanban-api/domain"
)

// BoardDataService orchestrates the entity services for aggregate reads and
// multi-row operations. None of the multi-row operations are atomic: a
// failure partway through leaves the rows written so far in place.
type BoardDataService struct {
	boards  *BoardService
	columns *ColumnService
	tasks   *TaskService
}

// NewBoardDataService composes the entity services.
func NewBoardDataService(boards *BoardService, columns *ColumnService, tasks *TaskService) *BoardDataService {
	return &BoardDataService{boards: boards, columns: columns, tasks: tasks}
}

// ColumnWithTasks pairs a column with its ordered task list.
type ColumnWithTasks struct {
	domain.Column
	Tasks []domain.Task `json:"tasks"`
}

// BoardView is the aggregate read model for rendering one board.
type BoardView struct {
	Board            domain.Board      `json:"board"`
	ColumnsWithTasks []ColumnWithTasks `json:"columnsWithTasks"`
}

// GetBoardWithColumns assembles the board, its ordered columns and each
// column's ordered tasks. The board's tasks are fetched in one query and
// grouped by column. Read-only; a missing board surfaces the storage
// not-found error.
func (s *BoardDataService) GetBoardWithColumns(ctx context.Context, userID, boardID string) (BoardView, error) {
	board, err := s.boards.Get(ctx, userID, boardID)
	if err != nil {
		return BoardView{}, err
	}
	columns, err := s.columns.ListByBoard(ctx, userID, boardID)
	if err != nil {
		return BoardView{}, err
	}
	tasks, err := s.tasks.ListByBoard(ctx, userID, boardID)
	if err != nil {
		return BoardView{}, err
	}

	byColumn := make(map[string][]domain.Task, len(columns))
	for _, task := range tasks {
		byColumn[task.ColumnID] = append(byColumn[task.ColumnID], task)
	}

	view := BoardView{Board: board, ColumnsWithTasks: make([]ColumnWithTasks, 0, len(columns))}
	for _, col := range columns {
		colTasks := byColumn[col.ID]
		if colTasks == nil {
			colTasks = []domain.Task{}
		}
		view.ColumnsWithTasks = append(view.ColumnsWithTasks, ColumnWithTasks{Column: col, Tasks: colTasks})
	}
	return view, nil
}

// CreateBoardWithDefaultColumns inserts one board and then the default
// column set, sort order 0..k-1, as separate sequential inserts. When a
// column insert fails the board keeps whatever columns were created before
// the failure; the partially created board is returned with the error.
func (s *BoardDataService) CreateBoardWithDefaultColumns(ctx context.Context, userID, title, description, color string) (domain.Board, error) {
	board, err := s.boards.Create(ctx, userID, title, description, color)
	if err != nil {
		return domain.Board{}, err
	}
	for i, colTitle := range domain.DefaultColumnTitles {
		if _, err := s.columns.Create(ctx, userID, board.ID, colTitle, i); err != nil {
			return board, fmt.Errorf("create default column %d: %w", i, err)
		}
	}
	return board, nil
}

// DeleteBoardCascade removes a board and its dependents in child-to-parent
// order: the columns' tasks, then the columns, then the board row. The
// backend does not cascade, so each step is a separate request and a
// failure leaves the earlier deletions in place.
func (s *BoardDataService) DeleteBoardCascade(ctx context.Context, userID, boardID string) error {
	columns, err := s.columns.ListByBoard(ctx, userID, boardID)
	if err != nil {
		return err
	}
	columnIDs := make([]string, len(columns))
	for i, col := range columns {
		columnIDs[i] = col.ID
	}
	if err := s.tasks.DeleteByColumns(ctx, userID, columnIDs); err != nil {
		return err
	}
	if err := s.columns.DeleteByBoard(ctx, userID, boardID); err != nil {
		return err
	}
	return s.boards.Delete(ctx, userID, boardID)
}

// DeleteColumnWithTasks removes a column and its tasks, tasks first.
func (s *BoardDataService) DeleteColumnWithTasks(ctx context.Context, userID, columnID string) error {
	if err := s.tasks.DeleteByColumns(ctx, userID, []string{columnID}); err != nil {
		return err
	}
	return s.columns.Delete(ctx, userID, columnID)
}
