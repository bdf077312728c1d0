package services

import (
	"log"

	"coin-reward-system/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// VerifierService maintains the set of identities with review
// privilege. Adds and removes are idempotent.
type VerifierService struct {
	DB *gorm.DB
}

func NewVerifierService(db *gorm.DB) *VerifierService {
	return &VerifierService{DB: db}
}

// AddVerifier grants review privilege; adding twice is a no-op.
func (s *VerifierService) AddVerifier(verifierID int64) error {
	return s.DB.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.Verifier{VerifierID: verifierID}).Error
}

// RemoveVerifier revokes review privilege; removing an absent id is a
// no-op.
func (s *VerifierService) RemoveVerifier(verifierID int64) error {
	return s.DB.Where("verifier_id = ?", verifierID).Delete(&models.Verifier{}).Error
}

// --- WebApp endpoints (admin only) ---

func (s *VerifierService) AddVerifierEndpoint(c *fiber.Ctx) error {
	var req struct {
		VerifierID int64 `json:"verifier_id"`
	}
	if err := c.BodyParser(&req); err != nil || req.VerifierID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"ok": false, "error": "verifier_id required"})
	}
	if err := s.AddVerifier(req.VerifierID); err != nil {
		log.Printf("DB error adding verifier %d: %v", req.VerifierID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"ok": false, "error": "failed to add verifier"})
	}
	return c.JSON(fiber.Map{"ok": true})
}

func (s *VerifierService) RemoveVerifierEndpoint(c *fiber.Ctx) error {
	var req struct {
		VerifierID int64 `json:"verifier_id"`
	}
	if err := c.BodyParser(&req); err != nil || req.VerifierID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"ok": false, "error": "verifier_id required"})
	}
	if err := s.RemoveVerifier(req.VerifierID); err != nil {
		log.Printf("DB error removing verifier %d: %v", req.VerifierID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"ok": false, "error": "failed to remove verifier"})
	}
	return c.JSON(fiber.Map{"ok": true})
}
