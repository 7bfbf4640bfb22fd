package domain

import "testing"

func TestPriorityValid(t *testing.T) {
	tests := []struct {
		p    Priority
		want bool
	}{
		{PriorityLow, true},
		{PriorityMedium, true},
		{PriorityHigh, true},
		{Priority(""), false},
		{Priority("urgent"), false},
	}
	for _, tt := range tests {
		if got := tt.p.Valid(); got != tt.want {
			t.Errorf("Priority(%q).Valid() = %v, want %v", tt.p, got, tt.want)
		}
	}
}

func TestTaskPatchEmpty(t *testing.T) {
	if !(TaskPatch{}).Empty() {
		t.Fatal("zero patch should be empty")
	}
	title := "t"
	if (TaskPatch{Title: &title}).Empty() {
		t.Fatal("patch with title should not be empty")
	}
	order := 3
	if (TaskPatch{SortOrder: &order}).Empty() {
		t.Fatal("patch with sort order should not be empty")
	}
}
