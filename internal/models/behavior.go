package models

import "time"

// BehaviorKind distinguishes merits from demerits.
type BehaviorKind string

const (
	BehaviorMerit   BehaviorKind = "merit"
	BehaviorDemerit BehaviorKind = "demerit"
)

// BehaviorEvent is an immutable merit or demerit awarded to a student.
type BehaviorEvent struct {
	ID           string       `db:"id" json:"id"`
	StudentID    string       `db:"student_id" json:"student_id"`
	Kind         BehaviorKind `db:"kind" json:"kind"`
	EventDate    time.Time    `db:"event_date" json:"event_date"`
	ClassContext *string      `db:"class_context" json:"class_context,omitempty"`
	StaffID      *string      `db:"staff_id" json:"staff_id,omitempty"`
	Category     string       `db:"category" json:"category"`
	Subcategory  *string      `db:"subcategory" json:"subcategory,omitempty"`
	Points       int          `db:"points" json:"points"`
	Notes        *string      `db:"notes" json:"notes,omitempty"`
	CreatedBy    string       `db:"created_by" json:"created_by"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
}

// BehaviorEventFilter allows listing events.
type BehaviorEventFilter struct {
	StudentID string
	DateFrom  *time.Time
	DateTo    *time.Time
	Kinds     []BehaviorKind
	Page      int
	PageSize  int
}
