package models

import (
	"encoding/json"
	"fmt"
)

// Priority is a task's urgency.
type Priority string

const (
	PriorityNone     Priority = "None"
	PriorityLow      Priority = "Low"
	PriorityMedium   Priority = "Medium"
	PriorityHigh     Priority = "High"
	PriorityCritical Priority = "Critical"
)

// Category classifies a task.
type Category string

const (
	CategoryNone          Category = "None"
	CategoryBug           Category = "Bug"
	CategoryFeature       Category = "Feature"
	CategoryImprovement   Category = "Improvement"
	CategoryDocumentation Category = "Documentation"
)

// Status is a task's workflow position.
type Status string

const (
	StatusNone       Status = "None"
	StatusToDo       Status = "ToDo"
	StatusInProgress Status = "InProgress"
	StatusReview     Status = "Review"
	StatusDone       Status = "Done"
)

var (
	priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}
	categories = []Category{CategoryBug, CategoryFeature, CategoryImprovement, CategoryDocumentation}
	statuses   = []Status{StatusToDo, StatusInProgress, StatusReview, StatusDone}
)

// Priorities returns the settable priorities in ascending order.
func Priorities() []Priority { return append([]Priority(nil), priorities...) }

// Categories returns the settable categories.
func Categories() []Category { return append([]Category(nil), categories...) }

// Statuses returns the settable statuses in workflow order.
func Statuses() []Status { return append([]Status(nil), statuses...) }

// ParsePriority validates a priority string. Empty and "None" mean unset.
func ParsePriority(s string) (Priority, error) {
	if s == "" || s == string(PriorityNone) {
		return PriorityNone, nil
	}
	for _, p := range priorities {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("invalid priority %q", s)
}

// ParseCategory validates a category string. Empty and "None" mean unset.
func ParseCategory(s string) (Category, error) {
	if s == "" || s == string(CategoryNone) {
		return CategoryNone, nil
	}
	for _, c := range categories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("invalid category %q", s)
}

// ParseStatus validates a status string. Empty and "None" mean unset.
func ParseStatus(s string) (Status, error) {
	if s == "" || s == string(StatusNone) {
		return StatusNone, nil
	}
	for _, st := range statuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("invalid status %q", s)
}

// Task is a unit of work inside a project.
type Task struct {
	ID           int64     `json:"id"`
	ProjectID    int64     `json:"project_id"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	Priority     Priority  `json:"priority"`
	Category     Category  `json:"category"`
	Status       Status    `json:"status"`
	DeadlineDate Timestamp `json:"deadline_date"`
	CreationDate Timestamp `json:"creation_date"`
	Assignees    UserIDs   `json:"assignees,omitempty"`
	ParentID     *int64    `json:"parent_id,omitempty"`
}

// UserIDs decodes either [1, 2] or [{"id": 1}, {"id": 2}].
type UserIDs []int64

func (ids *UserIDs) UnmarshalJSON(data []byte) error {
	var plain []int64
	if err := json.Unmarshal(data, &plain); err == nil {
		*ids = plain
		return nil
	}
	var objects []struct {
		ID     *int64 `json:"id"`
		UserID *int64 `json:"user_id"`
	}
	if err := json.Unmarshal(data, &objects); err != nil {
		return fmt.Errorf("assignees: %w", err)
	}
	out := make([]int64, 0, len(objects))
	for _, o := range objects {
		switch {
		case o.ID != nil:
			out = append(out, *o.ID)
		case o.UserID != nil:
			out = append(out, *o.UserID)
		}
	}
	*ids = out
	return nil
}

// Contains reports whether id is in the set.
func (ids UserIDs) Contains(id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// TaskFilter narrows a task listing. Zero values are omitted.
type TaskFilter struct {
	ProjectID  int64
	Priority   Priority
	Category   Category
	Status     Status
	AssigneeID int64
	Search     string
}

// Comment is a note attached to a task.
type Comment struct {
	ID           int64     `json:"id"`
	TaskID       int64     `json:"task_id"`
	AuthorID     int64     `json:"author_id"`
	Text         string    `json:"text_comment"`
	CreationDate Timestamp `json:"creation_date"`
}
