package domain

import "time"

// Board is a top-level container of columns, owned by exactly one user.
type Board struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Color       string    `json:"color,omitempty"`
	OwnerID     string    `json:"ownerId"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// BoardPatch is a partial board update. Nil fields are left untouched.
type BoardPatch struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Color       *string `json:"color,omitempty"`
}

// Empty reports whether the patch would change nothing.
func (p BoardPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Color == nil
}
