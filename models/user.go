package models

import "time"

// User is a platform user keyed by their platform-assigned id.
// Coins and counters are mutated only through the ledger service;
// the row is created lazily on the first interaction.
type User struct {
	UserID     int64      `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	Username   string     `gorm:"index" json:"username"`
	Coins      int64      `gorm:"not null;default:0" json:"coins"`
	ReferrerID *int64     `gorm:"index" json:"referrer_id,omitempty"`
	JoinedAt   *time.Time `json:"joined_at,omitempty"`

	AdsWatched int64 `gorm:"not null;default:0" json:"ads_watched"`
	// AdCounter counts ad watches since the last boost activation (0..2,
	// resets when the streak threshold triggers a new boost window).
	AdCounter  int        `gorm:"not null;default:0" json:"ad_counter"`
	BoostUntil *time.Time `json:"boost_until,omitempty"`
	// LastDaily holds the UTC calendar date (YYYY-MM-DD) of the last
	// successful daily claim.
	LastDaily *string `json:"last_daily,omitempty"`
}
