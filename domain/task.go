package domain

import "time"

// Priority is the task urgency level.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is one of the known priority levels.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Task is a unit of work positioned within a column. BoardID is carried
// alongside ColumnID so a whole board's tasks are a single query.
type Task struct {
	ID          string     `json:"id"`
	ColumnID    string     `json:"columnId"`
	BoardID     string     `json:"boardId"`
	OwnerID     string     `json:"ownerId"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Assignee    string     `json:"assignee,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Priority    Priority   `json:"priority"`
	SortOrder   int        `json:"sortOrder"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// TaskPatch is a partial task update. Nil fields are left untouched.
// ColumnID and SortOrder together express a move between columns.
type TaskPatch struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Assignee    *string    `json:"assignee,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Priority    *Priority  `json:"priority,omitempty"`
	ColumnID    *string    `json:"columnId,omitempty"`
	SortOrder   *int       `json:"sortOrder,omitempty"`
}

// Empty reports whether the patch would change nothing.
func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Assignee == nil &&
		p.DueDate == nil && p.Priority == nil && p.ColumnID == nil && p.SortOrder == nil
}

// TaskMove is one entry of a batch reorder: the task is assigned to the
// given column at the given position. Sibling renumbering is the caller's
// responsibility.
type TaskMove struct {
	ID        string `json:"id"`
	ColumnID  string `json:"columnId"`
	SortOrder int    `json:"sortOrder"`
}
