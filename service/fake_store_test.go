package service

import (
	"context"
	"errors"
	"sort"
	"sync"

	"kanban-api/domain"
	"kanban-api/storage"
)

var errRejected = errors.New("backend rejected")

func sortColumns(columns []domain.Column) {
	sort.Slice(columns, func(i, j int) bool { return columns[i].SortOrder < columns[j].SortOrder })
}

func sortTasks(tasks []domain.Task) {
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].SortOrder < tasks[j].SortOrder })
}

// fakeStore is an in-memory Store that records every call in order so
// tests can assert call counts and cascade ordering.
type fakeStore struct {
	mu      sync.Mutex
	boards  map[string]domain.Board
	columns map[string]domain.Column
	tasks   map[string]domain.Task
	ops     []string

	failInsertColumnAfter int // fail the nth column insert (1-based); 0 disables
	failUpdateTaskID      string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		boards:  map[string]domain.Board{},
		columns: map[string]domain.Column{},
		tasks:   map[string]domain.Task{},
	}
}

func (f *fakeStore) record(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, op)
}

func (f *fakeStore) opLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ops...)
}

func (f *fakeStore) countOp(op string) int {
	n := 0
	for _, o := range f.opLog() {
		if o == op {
			n++
		}
	}
	return n
}

func (f *fakeStore) GetBoard(ctx context.Context, userID, id string) (domain.Board, error) {
	f.record("GetBoard")
	b, ok := f.boards[id]
	if !ok || b.OwnerID != userID {
		return domain.Board{}, &storage.NotFoundError{Table: "boards", ID: id}
	}
	return b, nil
}

func (f *fakeStore) ListBoards(ctx context.Context, userID string) ([]domain.Board, error) {
	f.record("ListBoards")
	boards := []domain.Board{}
	for _, b := range f.boards {
		if b.OwnerID == userID {
			boards = append(boards, b)
		}
	}
	return boards, nil
}

func (f *fakeStore) InsertBoard(ctx context.Context, b domain.Board) error {
	f.record("InsertBoard")
	f.boards[b.ID] = b
	return nil
}

func (f *fakeStore) UpdateBoard(ctx context.Context, userID, id string, patch domain.BoardPatch) (domain.Board, error) {
	f.record("UpdateBoard")
	b, ok := f.boards[id]
	if !ok {
		return domain.Board{}, &storage.NotFoundError{Table: "boards", ID: id}
	}
	if patch.Title != nil {
		b.Title = *patch.Title
	}
	if patch.Description != nil {
		b.Description = *patch.Description
	}
	if patch.Color != nil {
		b.Color = *patch.Color
	}
	f.boards[id] = b
	return b, nil
}

func (f *fakeStore) DeleteBoard(ctx context.Context, userID, id string) error {
	f.record("DeleteBoard")
	delete(f.boards, id)
	return nil
}

func (f *fakeStore) DeleteBoards(ctx context.Context, userID string, ids []string) error {
	f.record("DeleteBoards")
	for _, id := range ids {
		delete(f.boards, id)
	}
	return nil
}

func (f *fakeStore) GetColumn(ctx context.Context, userID, id string) (domain.Column, error) {
	f.record("GetColumn")
	col, ok := f.columns[id]
	if !ok || col.OwnerID != userID {
		return domain.Column{}, &storage.NotFoundError{Table: "columns", ID: id}
	}
	return col, nil
}

func (f *fakeStore) ListColumns(ctx context.Context, userID, boardID string) ([]domain.Column, error) {
	f.record("ListColumns")
	columns := []domain.Column{}
	for _, col := range f.columns {
		if col.OwnerID == userID && col.BoardID == boardID {
			columns = append(columns, col)
		}
	}
	sortColumns(columns)
	return columns, nil
}

func (f *fakeStore) InsertColumn(ctx context.Context, col domain.Column) error {
	f.record("InsertColumn")
	if f.failInsertColumnAfter > 0 && f.countOp("InsertColumn") >= f.failInsertColumnAfter {
		return &storage.PersistenceError{Op: "insert", Table: "columns", Err: errRejected}
	}
	f.columns[col.ID] = col
	return nil
}

func (f *fakeStore) UpdateColumn(ctx context.Context, userID, id string, patch domain.ColumnPatch) (domain.Column, error) {
	f.record("UpdateColumn")
	col, ok := f.columns[id]
	if !ok {
		return domain.Column{}, &storage.NotFoundError{Table: "columns", ID: id}
	}
	if patch.Title != nil {
		col.Title = *patch.Title
	}
	if patch.SortOrder != nil {
		col.SortOrder = *patch.SortOrder
	}
	f.columns[id] = col
	return col, nil
}

func (f *fakeStore) DeleteColumn(ctx context.Context, userID, id string) error {
	f.record("DeleteColumn")
	delete(f.columns, id)
	return nil
}

func (f *fakeStore) DeleteColumnsByBoard(ctx context.Context, userID, boardID string) error {
	f.record("DeleteColumnsByBoard")
	for id, col := range f.columns {
		if col.BoardID == boardID {
			delete(f.columns, id)
		}
	}
	return nil
}

func (f *fakeStore) GetTask(ctx context.Context, userID, id string) (domain.Task, error) {
	f.record("GetTask")
	task, ok := f.tasks[id]
	if !ok || task.OwnerID != userID {
		return domain.Task{}, &storage.NotFoundError{Table: "tasks", ID: id}
	}
	return task, nil
}

func (f *fakeStore) ListTasks(ctx context.Context, userID, columnID string) ([]domain.Task, error) {
	f.record("ListTasks")
	tasks := []domain.Task{}
	for _, task := range f.tasks {
		if task.OwnerID == userID && task.ColumnID == columnID {
			tasks = append(tasks, task)
		}
	}
	sortTasks(tasks)
	return tasks, nil
}

func (f *fakeStore) ListTasksByBoard(ctx context.Context, userID, boardID string) ([]domain.Task, error) {
	f.record("ListTasksByBoard")
	tasks := []domain.Task{}
	for _, task := range f.tasks {
		if task.OwnerID == userID && task.BoardID == boardID {
			tasks = append(tasks, task)
		}
	}
	sortTasks(tasks)
	return tasks, nil
}

func (f *fakeStore) InsertTask(ctx context.Context, task domain.Task) error {
	f.record("InsertTask")
	f.tasks[task.ID] = task
	return nil
}

func (f *fakeStore) UpdateTask(ctx context.Context, userID, id string, patch domain.TaskPatch) (domain.Task, error) {
	f.record("UpdateTask")
	f.mu.Lock()
	defer f.mu.Unlock()
	if id == f.failUpdateTaskID {
		return domain.Task{}, &storage.PersistenceError{Op: "update", Table: "tasks", Err: errRejected}
	}
	task, ok := f.tasks[id]
	if !ok {
		return domain.Task{}, &storage.NotFoundError{Table: "tasks", ID: id}
	}
	if patch.Title != nil {
		task.Title = *patch.Title
	}
	if patch.Description != nil {
		task.Description = *patch.Description
	}
	if patch.Assignee != nil {
		task.Assignee = *patch.Assignee
	}
	if patch.DueDate != nil {
		task.DueDate = patch.DueDate
	}
	if patch.Priority != nil {
		task.Priority = *patch.Priority
	}
	if patch.ColumnID != nil {
		task.ColumnID = *patch.ColumnID
	}
	if patch.SortOrder != nil {
		task.SortOrder = *patch.SortOrder
	}
	f.tasks[id] = task
	return task, nil
}

func (f *fakeStore) DeleteTask(ctx context.Context, userID, id string) error {
	f.record("DeleteTask")
	delete(f.tasks, id)
	return nil
}

func (f *fakeStore) DeleteTasksByColumns(ctx context.Context, userID string, columnIDs []string) error {
	f.record("DeleteTasksByColumns")
	member := map[string]bool{}
	for _, id := range columnIDs {
		member[id] = true
	}
	for id, task := range f.tasks {
		if member[task.ColumnID] {
			delete(f.tasks, id)
		}
	}
	return nil
}
