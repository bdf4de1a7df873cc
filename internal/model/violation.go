package model

import (
	"time"

	"github.com/google/uuid"
)

// ViolationEvent is one proctoring event, queued for durable storage and
// mirrored to the live monitor channel. Deterrence marks audit-only entries
// (suppressed copy/paste/context-menu) that never touch the violation count.
type ViolationEvent struct {
	ExamID         uuid.UUID `json:"exam_id"`
	StudentName    string    `json:"student_name"`
	ClassName      string    `json:"class_name"`
	Signal         string    `json:"signal"`
	ViolationCount int       `json:"violation_count"`
	Escalated      bool      `json:"escalated"`
	Deterrence     bool      `json:"deterrence"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// MonitorEvent is the live feed entry published to the exam's monitor
// channel for proctor dashboards. Violation is nil for join/finish events.
type MonitorEvent struct {
	Kind        string          `json:"kind"` // "joined" | "violation" | "finalized"
	ExamID      uuid.UUID       `json:"exam_id"`
	StudentName string          `json:"student_name"`
	ClassName   string          `json:"class_name"`
	Violation   *ViolationEvent `json:"violation,omitempty"`
	Trigger     FinalizeTrigger `json:"trigger,omitempty"`
	At          time.Time       `json:"at"`
}
