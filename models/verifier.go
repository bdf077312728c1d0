package models

// Verifier is an identity granted submission-review privilege.
// Distinct from the admin allow-list, which lives in config.
type Verifier struct {
	VerifierID int64 `gorm:"primaryKey;autoIncrement:false" json:"verifier_id"`
}
