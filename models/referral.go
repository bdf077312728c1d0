package models

import "time"

// Referral is a referrer→referred edge, created at most once per pair
// when a new user's first registration carries a referrer argument.
// The composite key makes duplicate inserts idempotent no-ops.
type Referral struct {
	ReferrerID int64     `gorm:"primaryKey;autoIncrement:false" json:"referrer_id"`
	ReferredID int64     `gorm:"primaryKey;autoIncrement:false" json:"referred_id"`
	CreatedAt  time.Time `json:"created_at"`
}
