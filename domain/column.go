package domain

import "time"

// Column is an ordered lane within a board. SortOrder defines its
// left-to-right position; values are unique within a board at rest,
// gaps are allowed.
type Column struct {
	ID        string    `json:"id"`
	BoardID   string    `json:"boardId"`
	Title     string    `json:"title"`
	SortOrder int       `json:"sortOrder"`
	OwnerID   string    `json:"ownerId"`
	CreatedAt time.Time `json:"createdAt"`
}

// ColumnPatch is a partial column update. Nil fields are left untouched.
type ColumnPatch struct {
	Title     *string `json:"title,omitempty"`
	SortOrder *int    `json:"sortOrder,omitempty"`
}

// Empty reports whether the patch would change nothing.
func (p ColumnPatch) Empty() bool {
	return p.Title == nil && p.SortOrder == nil
}

// DefaultColumnTitles are created for every new board, in this order.
var DefaultColumnTitles = []string{"To Do", "In Progress", "Review", "Done"}
