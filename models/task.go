package models

import "time"

// Task is a reward-bearing action defined by an administrator.
// The reward value is fixed; deleting a task never invalidates
// submissions that already reference it.
type Task struct {
	ID          string    `gorm:"primaryKey;type:uuid" json:"task_id"`
	Title       string    `gorm:"not null" json:"title"`
	Description string    `gorm:"type:text" json:"description"`
	Link        string    `json:"link"`
	Reward      int64     `gorm:"not null" json:"reward"`
	CreatedAt   time.Time `json:"created_at"`
}
