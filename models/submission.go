package models

import "time"

// SubmissionStatus is the review state of a proof submission.
type SubmissionStatus string

const (
	SubmissionPending  SubmissionStatus = "pending"
	SubmissionApproved SubmissionStatus = "approved"
	SubmissionRejected SubmissionStatus = "rejected"
)

// Submission is a proof-of-completion record for a task. Status moves
// exactly once from pending to a terminal state; the payout for an
// approval happens in the same transaction as the status write.
type Submission struct {
	ID          string           `gorm:"primaryKey;type:uuid" json:"submission_id"`
	UserID      int64            `gorm:"index;not null" json:"user_id"`
	TaskID      string           `gorm:"index;not null" json:"task_id"`
	FilePath    string           `json:"file_path"`
	Status      SubmissionStatus `gorm:"not null;default:'pending';index" json:"status"`
	SubmittedAt  time.Time       `json:"submitted_at"`
	ReviewedBy   *int64          `json:"reviewed_by,omitempty"`
	ReviewReason *string         `gorm:"type:text" json:"review_reason,omitempty"`
}
