package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"kanban-api/domain"
)

// TaskService is the CRUD facade for tasks, including the move and batch
// reorder operations behind drag-and-drop.
type TaskService struct {
	store Store
	feed  *ChangeFeed
}

// NewTaskService creates a task service on top of the given store.
func NewTaskService(store Store, feed *ChangeFeed) *TaskService {
	return &TaskService{store: store, feed: feed}
}

// TaskInput carries the caller-supplied fields of a new task.
type TaskInput struct {
	Title       string
	Description string
	Assignee    string
	DueDate     *time.Time
	Priority    domain.Priority
	SortOrder   int
}

// Get retrieves one task owned by the user.
func (s *TaskService) Get(ctx context.Context, userID, id string) (domain.Task, error) {
	return s.store.GetTask(ctx, userID, id)
}

// ListByColumn returns the column's tasks ordered by sort order, never nil.
func (s *TaskService) ListByColumn(ctx context.Context, userID, columnID string) ([]domain.Task, error) {
	tasks, err := s.store.ListTasks(ctx, userID, columnID)
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}
	return tasks, nil
}

// ListByBoard returns every task on the board ordered by sort order, never nil.
func (s *TaskService) ListByBoard(ctx context.Context, userID, boardID string) ([]domain.Task, error) {
	tasks, err := s.store.ListTasksByBoard(ctx, userID, boardID)
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}
	return tasks, nil
}

// Create inserts a new task into the given column and returns the hydrated
// record. The parent column is fetched to resolve the board reference, so
// creating a task in a missing column fails with the column's not-found
// error.
func (s *TaskService) Create(ctx context.Context, userID, columnID string, in TaskInput) (domain.Task, error) {
	if strings.TrimSpace(in.Title) == "" {
		return domain.Task{}, invalid("title", "must not be empty")
	}
	if columnID == "" {
		return domain.Task{}, invalid("columnId", "must not be empty")
	}
	if in.Priority == "" {
		in.Priority = domain.PriorityMedium
	}
	if !in.Priority.Valid() {
		return domain.Task{}, invalid("priority", "must be low, medium or high")
	}
	col, err := s.store.GetColumn(ctx, userID, columnID)
	if err != nil {
		return domain.Task{}, err
	}
	now := time.Now().UTC()
	task := domain.Task{
		ID:          uuid.NewString(),
		ColumnID:    columnID,
		BoardID:     col.BoardID,
		OwnerID:     userID,
		Title:       in.Title,
		Description: in.Description,
		Assignee:    in.Assignee,
		DueDate:     in.DueDate,
		Priority:    in.Priority,
		SortOrder:   in.SortOrder,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.InsertTask(ctx, task); err != nil {
		return domain.Task{}, err
	}
	s.feed.Publish(userID, changeEvent("task", task.ID, domain.OpCreated))
	return task, nil
}

// Update applies a partial patch to one task and returns the updated record.
func (s *TaskService) Update(ctx context.Context, userID, id string, patch domain.TaskPatch) (domain.Task, error) {
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return domain.Task{}, invalid("title", "must not be empty")
	}
	if patch.Priority != nil && !patch.Priority.Valid() {
		return domain.Task{}, invalid("priority", "must be low, medium or high")
	}
	task, err := s.store.UpdateTask(ctx, userID, id, patch)
	if err != nil {
		return domain.Task{}, err
	}
	s.feed.Publish(userID, changeEvent("task", id, domain.OpUpdated))
	return task, nil
}

// Delete removes one task row.
func (s *TaskService) Delete(ctx context.Context, userID, id string) error {
	if err := s.store.DeleteTask(ctx, userID, id); err != nil {
		return err
	}
	s.feed.Publish(userID, changeEvent("task", id, domain.OpDeleted))
	return nil
}

// DeleteByColumns removes every task belonging to any of the given columns.
func (s *TaskService) DeleteByColumns(ctx context.Context, userID string, columnIDs []string) error {
	if len(columnIDs) == 0 {
		return nil
	}
	return s.store.DeleteTasksByColumns(ctx, userID, columnIDs)
}

// Move assigns the task to the target column at the target position with a
// single row update. Sibling tasks are not renumbered; the caller computes
// the destination sort order.
func (s *TaskService) Move(ctx context.Context, userID, taskID, targetColumnID string, targetSortOrder int) (domain.Task, error) {
	if targetColumnID == "" {
		return domain.Task{}, invalid("columnId", "must not be empty")
	}
	patch := domain.TaskPatch{ColumnID: &targetColumnID, SortOrder: &targetSortOrder}
	task, err := s.store.UpdateTask(ctx, userID, taskID, patch)
	if err != nil {
		return domain.Task{}, err
	}
	s.feed.Publish(userID, changeEvent("task", taskID, domain.OpMoved))
	return task, nil
}

// UpdateOrder applies every move as an independent single-row update. The
// updates are issued concurrently and the call waits for all of them to
// settle; a failed update does not roll back the others. An empty list
// short-circuits without touching storage.
func (s *TaskService) UpdateOrder(ctx context.Context, userID string, moves []domain.TaskMove) error {
	if len(moves) == 0 {
		return nil
	}
	errs := make([]error, len(moves))
	var wg sync.WaitGroup
	for i, m := range moves {
		wg.Add(1)
		go func(i int, m domain.TaskMove) {
			defer wg.Done()
			patch := domain.TaskPatch{ColumnID: &m.ColumnID, SortOrder: &m.SortOrder}
			_, errs[i] = s.store.UpdateTask(ctx, userID, m.ID, patch)
		}(i, m)
	}
	wg.Wait()

	events := make([]domain.ChangeEvent, 0, len(moves))
	for i, m := range moves {
		if errs[i] == nil {
			events = append(events, changeEvent("task", m.ID, domain.OpMoved))
		}
	}
	s.feed.Publish(userID, events...)
	return errors.Join(errs...)
}
