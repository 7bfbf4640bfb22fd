package storage

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"kanban-api/domain"
)

// Storage provides access to the board, column and task tables and the
// change feed queue. Rows are partitioned by owning user id; the row key
// is the entity id.
type Storage struct {
	boardTable  *aztables.Client
	columnTable *aztables.Client
	taskTable   *aztables.Client
	changeQueue *azqueue.QueueClient
}

// New creates a Storage instance from the given connection string.
func New(connStr, boardsTable, columnsTable, tasksTable, changeQueue string) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	cq, err := azqueue.NewQueueClientFromConnectionString(connStr, changeQueue, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	return &Storage{
		boardTable:  svc.NewClient(boardsTable),
		columnTable: svc.NewClient(columnsTable),
		taskTable:   svc.NewClient(tasksTable),
		changeQueue: cq,
	}, nil
}

// EnsureTables creates the tables and queue when they do not exist yet.
func EnsureTables(ctx context.Context, connStr, boardsTable, columnsTable, tasksTable, changeQueue string) error {
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, nil)
	if err != nil {
		return err
	}
	for _, name := range []string{boardsTable, columnsTable, tasksTable} {
		if _, err := svc.NewClient(name).CreateTable(ctx, nil); err != nil {
			var respErr *azcore.ResponseError
			if !(errors.As(err, &respErr) && respErr.ErrorCode == string(aztables.TableAlreadyExists)) {
				return err
			}
		}
	}
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, changeQueue, nil)
	if err != nil {
		return err
	}
	if _, err := q.Create(ctx, nil); err != nil {
		var respErr *azcore.ResponseError
		if !(errors.As(err, &respErr) && respErr.ErrorCode == "QueueAlreadyExists") {
			return err
		}
	}
	return nil
}

const timeFormat = time.RFC3339Nano

type boardEntity struct {
	aztables.Entity
	Title       string `json:"Title"`
	Description string `json:"Description"`
	Color       string `json:"Color"`
	CreatedAt   string `json:"CreatedAt"`
	UpdatedAt   string `json:"UpdatedAt"`
}

type columnEntity struct {
	aztables.Entity
	BoardID   string `json:"BoardID"`
	Title     string `json:"Title"`
	SortOrder int    `json:"SortOrder"`
	CreatedAt string `json:"CreatedAt"`
}

type taskEntity struct {
	aztables.Entity
	ColumnID    string `json:"ColumnID"`
	BoardID     string `json:"BoardID"`
	Title       string `json:"Title"`
	Description string `json:"Description"`
	Assignee    string `json:"Assignee"`
	DueDate     string `json:"DueDate"`
	Priority    string `json:"Priority"`
	SortOrder   int    `json:"SortOrder"`
	CreatedAt   string `json:"CreatedAt"`
	UpdatedAt   string `json:"UpdatedAt"`
}

func decodeBoardEntity(data []byte) (domain.Board, error) {
	var ent boardEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Board{}, err
	}
	return domain.Board{
		ID:          ent.RowKey,
		Title:       ent.Title,
		Description: ent.Description,
		Color:       ent.Color,
		OwnerID:     ent.PartitionKey,
		CreatedAt:   parseTime(ent.CreatedAt),
		UpdatedAt:   parseTime(ent.UpdatedAt),
	}, nil
}

func decodeColumnEntity(data []byte) (domain.Column, error) {
	var ent columnEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Column{}, err
	}
	return domain.Column{
		ID:        ent.RowKey,
		BoardID:   ent.BoardID,
		Title:     ent.Title,
		SortOrder: ent.SortOrder,
		OwnerID:   ent.PartitionKey,
		CreatedAt: parseTime(ent.CreatedAt),
	}, nil
}

func decodeTaskEntity(data []byte) (domain.Task, error) {
	var ent taskEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Task{}, err
	}
	t := domain.Task{
		ID:          ent.RowKey,
		ColumnID:    ent.ColumnID,
		BoardID:     ent.BoardID,
		OwnerID:     ent.PartitionKey,
		Title:       ent.Title,
		Description: ent.Description,
		Assignee:    ent.Assignee,
		Priority:    domain.Priority(ent.Priority),
		SortOrder:   ent.SortOrder,
		CreatedAt:   parseTime(ent.CreatedAt),
		UpdatedAt:   parseTime(ent.UpdatedAt),
	}
	if ent.DueDate != "" {
		due := parseTime(ent.DueDate)
		t.DueDate = &due
	}
	return t, nil
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeFormat, s)
	return t
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeFormat)
}

// escapeFilterValue doubles single quotes so values are safe inside an
// OData string literal.
func escapeFilterValue(v string) string {
	return strings.ReplaceAll(v, "'", "''")
}

func userFilter(userID string) string {
	return "PartitionKey eq '" + escapeFilterValue(userID) + "'"
}

// GetBoard retrieves one board row.
func (s *Storage) GetBoard(ctx context.Context, userID, id string) (domain.Board, error) {
	ent, err := s.boardTable.GetEntity(ctx, userID, id, nil)
	if err != nil {
		return domain.Board{}, wrapErr("get", "boards", id, err)
	}
	return decodeBoardEntity(ent.Value)
}

// ListBoards retrieves all boards owned by the user, oldest first.
func (s *Storage) ListBoards(ctx context.Context, userID string) ([]domain.Board, error) {
	filter := userFilter(userID)
	pager := s.boardTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	boards := []domain.Board{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, wrapErr("list", "boards", "", err)
		}
		for _, e := range resp.Entities {
			b, err := decodeBoardEntity(e)
			if err != nil {
				return nil, err
			}
			boards = append(boards, b)
		}
	}
	sort.Slice(boards, func(i, j int) bool { return boards[i].CreatedAt.Before(boards[j].CreatedAt) })
	return boards, nil
}

// InsertBoard adds a new board row.
func (s *Storage) InsertBoard(ctx context.Context, b domain.Board) error {
	ent := boardEntity{
		Entity:      aztables.Entity{PartitionKey: b.OwnerID, RowKey: b.ID},
		Title:       b.Title,
		Description: b.Description,
		Color:       b.Color,
		CreatedAt:   formatTime(b.CreatedAt),
		UpdatedAt:   formatTime(b.UpdatedAt),
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	if _, err := s.boardTable.AddEntity(ctx, payload, nil); err != nil {
		return wrapErr("insert", "boards", "", err)
	}
	return nil
}

// UpdateBoard merges a partial patch into one board row and returns the
// updated record.
func (s *Storage) UpdateBoard(ctx context.Context, userID, id string, patch domain.BoardPatch) (domain.Board, error) {
	props := map[string]any{
		"PartitionKey": userID,
		"RowKey":       id,
		"UpdatedAt":    formatTime(time.Now()),
	}
	if patch.Title != nil {
		props["Title"] = *patch.Title
	}
	if patch.Description != nil {
		props["Description"] = *patch.Description
	}
	if patch.Color != nil {
		props["Color"] = *patch.Color
	}
	if err := s.mergeEntity(ctx, s.boardTable, props); err != nil {
		return domain.Board{}, wrapErr("update", "boards", id, err)
	}
	return s.GetBoard(ctx, userID, id)
}

// DeleteBoard removes one board row. Missing rows surface whatever the
// backend reports.
func (s *Storage) DeleteBoard(ctx context.Context, userID, id string) error {
	if _, err := s.boardTable.DeleteEntity(ctx, userID, id, nil); err != nil {
		return wrapErr("delete", "boards", id, err)
	}
	return nil
}

// DeleteBoards removes a set of board rows.
func (s *Storage) DeleteBoards(ctx context.Context, userID string, ids []string) error {
	for _, id := range ids {
		if err := s.DeleteBoard(ctx, userID, id); err != nil {
			return err
		}
	}
	return nil
}

// GetColumn retrieves one column row.
func (s *Storage) GetColumn(ctx context.Context, userID, id string) (domain.Column, error) {
	ent, err := s.columnTable.GetEntity(ctx, userID, id, nil)
	if err != nil {
		return domain.Column{}, wrapErr("get", "columns", id, err)
	}
	return decodeColumnEntity(ent.Value)
}

// ListColumns retrieves the board's columns ordered by sort order.
func (s *Storage) ListColumns(ctx context.Context, userID, boardID string) ([]domain.Column, error) {
	filter := userFilter(userID) + " and BoardID eq '" + escapeFilterValue(boardID) + "'"
	pager := s.columnTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	columns := []domain.Column{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, wrapErr("list", "columns", "", err)
		}
		for _, e := range resp.Entities {
			col, err := decodeColumnEntity(e)
			if err != nil {
				return nil, err
			}
			columns = append(columns, col)
		}
	}
	sort.Slice(columns, func(i, j int) bool { return columns[i].SortOrder < columns[j].SortOrder })
	return columns, nil
}

// InsertColumn adds a new column row.
func (s *Storage) InsertColumn(ctx context.Context, col domain.Column) error {
	ent := columnEntity{
		Entity:    aztables.Entity{PartitionKey: col.OwnerID, RowKey: col.ID},
		BoardID:   col.BoardID,
		Title:     col.Title,
		SortOrder: col.SortOrder,
		CreatedAt: formatTime(col.CreatedAt),
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	if _, err := s.columnTable.AddEntity(ctx, payload, nil); err != nil {
		return wrapErr("insert", "columns", "", err)
	}
	return nil
}

// UpdateColumn merges a partial patch into one column row and returns the
// updated record.
func (s *Storage) UpdateColumn(ctx context.Context, userID, id string, patch domain.ColumnPatch) (domain.Column, error) {
	props := map[string]any{
		"PartitionKey": userID,
		"RowKey":       id,
	}
	if patch.Title != nil {
		props["Title"] = *patch.Title
	}
	if patch.SortOrder != nil {
		props["SortOrder"] = *patch.SortOrder
	}
	if err := s.mergeEntity(ctx, s.columnTable, props); err != nil {
		return domain.Column{}, wrapErr("update", "columns", id, err)
	}
	return s.GetColumn(ctx, userID, id)
}

// DeleteColumn removes one column row.
func (s *Storage) DeleteColumn(ctx context.Context, userID, id string) error {
	if _, err := s.columnTable.DeleteEntity(ctx, userID, id, nil); err != nil {
		return wrapErr("delete", "columns", id, err)
	}
	return nil
}

// DeleteColumnsByBoard removes every column of the given board.
func (s *Storage) DeleteColumnsByBoard(ctx context.Context, userID, boardID string) error {
	columns, err := s.ListColumns(ctx, userID, boardID)
	if err != nil {
		return err
	}
	for _, col := range columns {
		if err := s.DeleteColumn(ctx, userID, col.ID); err != nil {
			return err
		}
	}
	return nil
}

// GetTask retrieves one task row.
func (s *Storage) GetTask(ctx context.Context, userID, id string) (domain.Task, error) {
	ent, err := s.taskTable.GetEntity(ctx, userID, id, nil)
	if err != nil {
		return domain.Task{}, wrapErr("get", "tasks", id, err)
	}
	return decodeTaskEntity(ent.Value)
}

// ListTasks retrieves the column's tasks ordered by sort order.
func (s *Storage) ListTasks(ctx context.Context, userID, columnID string) ([]domain.Task, error) {
	filter := userFilter(userID) + " and ColumnID eq '" + escapeFilterValue(columnID) + "'"
	return s.listTasksFiltered(ctx, filter)
}

// ListTasksByBoard retrieves every task on the board ordered by sort order.
func (s *Storage) ListTasksByBoard(ctx context.Context, userID, boardID string) ([]domain.Task, error) {
	filter := userFilter(userID) + " and BoardID eq '" + escapeFilterValue(boardID) + "'"
	return s.listTasksFiltered(ctx, filter)
}

func (s *Storage) listTasksFiltered(ctx context.Context, filter string) ([]domain.Task, error) {
	pager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, wrapErr("list", "tasks", "", err)
		}
		for _, e := range resp.Entities {
			task, err := decodeTaskEntity(e)
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, task)
		}
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].SortOrder < tasks[j].SortOrder })
	return tasks, nil
}

// InsertTask adds a new task row.
func (s *Storage) InsertTask(ctx context.Context, task domain.Task) error {
	ent := taskEntity{
		Entity:      aztables.Entity{PartitionKey: task.OwnerID, RowKey: task.ID},
		ColumnID:    task.ColumnID,
		BoardID:     task.BoardID,
		Title:       task.Title,
		Description: task.Description,
		Assignee:    task.Assignee,
		Priority:    string(task.Priority),
		SortOrder:   task.SortOrder,
		CreatedAt:   formatTime(task.CreatedAt),
		UpdatedAt:   formatTime(task.UpdatedAt),
	}
	if task.DueDate != nil {
		ent.DueDate = formatTime(*task.DueDate)
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	if _, err := s.taskTable.AddEntity(ctx, payload, nil); err != nil {
		return wrapErr("insert", "tasks", "", err)
	}
	return nil
}

// UpdateTask merges a partial patch into one task row and returns the
// updated record. A patch carrying ColumnID and SortOrder moves the task.
func (s *Storage) UpdateTask(ctx context.Context, userID, id string, patch domain.TaskPatch) (domain.Task, error) {
	props := map[string]any{
		"PartitionKey": userID,
		"RowKey":       id,
		"UpdatedAt":    formatTime(time.Now()),
	}
	if patch.Title != nil {
		props["Title"] = *patch.Title
	}
	if patch.Description != nil {
		props["Description"] = *patch.Description
	}
	if patch.Assignee != nil {
		props["Assignee"] = *patch.Assignee
	}
	if patch.DueDate != nil {
		props["DueDate"] = formatTime(*patch.DueDate)
	}
	if patch.Priority != nil {
		props["Priority"] = string(*patch.Priority)
	}
	if patch.ColumnID != nil {
		props["ColumnID"] = *patch.ColumnID
	}
	if patch.SortOrder != nil {
		props["SortOrder"] = *patch.SortOrder
	}
	if err := s.mergeEntity(ctx, s.taskTable, props); err != nil {
		return domain.Task{}, wrapErr("update", "tasks", id, err)
	}
	return s.GetTask(ctx, userID, id)
}

// DeleteTask removes one task row.
func (s *Storage) DeleteTask(ctx context.Context, userID, id string) error {
	if _, err := s.taskTable.DeleteEntity(ctx, userID, id, nil); err != nil {
		return wrapErr("delete", "tasks", id, err)
	}
	return nil
}

// DeleteTasksByColumns removes every task belonging to any of the given
// columns. Column sets are expected to be small (one board's columns), so
// membership is expressed as a disjunction of equality filters.
func (s *Storage) DeleteTasksByColumns(ctx context.Context, userID string, columnIDs []string) error {
	if len(columnIDs) == 0 {
		return nil
	}
	clauses := make([]string, len(columnIDs))
	for i, id := range columnIDs {
		clauses[i] = "ColumnID eq '" + escapeFilterValue(id) + "'"
	}
	filter := userFilter(userID) + " and (" + strings.Join(clauses, " or ") + ")"
	tasks, err := s.listTasksFiltered(ctx, filter)
	if err != nil {
		return err
	}
	for _, task := range tasks {
		if err := s.DeleteTask(ctx, userID, task.ID); err != nil {
			return err
		}
	}
	return nil
}

// EnqueueChanges sends change events to the change feed queue.
func (s *Storage) EnqueueChanges(ctx context.Context, userID string, events []domain.ChangeEvent) error {
	for _, ev := range events {
		env := domain.ChangeEnvelope{UserID: userID, Event: ev}
		data, err := json.Marshal(env)
		if err != nil {
			return err
		}
		if _, err := s.changeQueue.EnqueueMessage(ctx, string(data), nil); err != nil {
			return wrapErr("enqueue", "changes", "", err)
		}
	}
	return nil
}

func (s *Storage) mergeEntity(ctx context.Context, table *aztables.Client, props map[string]any) error {
	payload, err := json.Marshal(props)
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	_, err = table.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{
		IfMatch:    &et,
		UpdateMode: aztables.UpdateModeMerge,
	})
	return err
}
