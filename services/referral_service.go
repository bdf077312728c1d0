package services

import (
	"fmt"
	"log"
	"strconv"

	"coin-reward-system/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReferralService is the sole creator of referral edges. Each edge is
// created at most once, and the referrer bonus is gated on the edge
// insert actually landing, so a referrer can never be paid twice for
// the same user.
type ReferralService struct {
	DB          *gorm.DB
	Ledger      *LedgerService
	BotUsername string
}

func NewReferralService(db *gorm.DB, ledger *LedgerService, botUsername string) *ReferralService {
	return &ReferralService{DB: db, Ledger: ledger, BotUsername: botUsername}
}

// RegisterUser handles a first bot registration: the user row is
// created with the registration grant (an existing user keeps their
// state), and a referrer argument on a genuinely new registration
// records the referral. Runs as one transaction.
func (s *ReferralService) RegisterUser(userID int64, username string, referrerID *int64) error {
	return runTx(s.DB, func(tx *gorm.DB) error {
		newUser, err := s.Ledger.EnsureUser(tx, userID, username, RegistrationGrant)
		if err != nil {
			return err
		}
		// Referrals only attach on first registration; a returning
		// user re-sending a referral link changes nothing.
		if !newUser || referrerID == nil || *referrerID == userID {
			return nil
		}
		return s.registerReferral(tx, *referrerID, userID)
	})
}

// RegisterReferral records the referrer→referred edge and credits the
// one-time bonus. Self-referrals and duplicate edges are silent no-ops.
func (s *ReferralService) RegisterReferral(referrerID, referredID int64) error {
	if referrerID == referredID {
		return nil
	}
	return runTx(s.DB, func(tx *gorm.DB) error {
		return s.registerReferral(tx, referrerID, referredID)
	})
}

// registerReferral inserts the edge with set semantics; the bonus is
// credited only when the row did not previously exist.
func (s *ReferralService) registerReferral(tx *gorm.DB, referrerID, referredID int64) error {
	ins := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.Referral{
		ReferrerID: referrerID,
		ReferredID: referredID,
		CreatedAt:  s.Ledger.Now(),
	})
	if ins.Error != nil {
		return ins.Error
	}
	if ins.RowsAffected == 0 {
		return nil
	}

	if err := tx.Model(&models.User{}).
		Where("user_id = ?", referredID).
		Update("referrer_id", referrerID).Error; err != nil {
		return err
	}
	return s.Ledger.CreditTx(tx, referrerID, "", ReferralBonus)
}

// RegisterEndpoint performs the first-registration flow for the
// WebApp: the caller's identity comes from the verified session, and
// the referrer, when present, from its start_param field, so a
// forged referrer can't be injected alongside a valid session.
func (s *ReferralService) RegisterEndpoint(c *fiber.Ctx) error {
	ident := c.Locals(IdentityKey).(Identity)

	var referrerID *int64
	if data, ok := c.Locals(InitDataKey).(*InitData); ok {
		if param := data.Fields["start_param"]; param != "" {
			if id, err := strconv.ParseInt(param, 10, 64); err == nil && id != 0 {
				referrerID = &id
			}
		}
	}

	if err := s.RegisterUser(ident.ID, ident.DisplayName(), referrerID); err != nil {
		log.Printf("DB error registering user %d: %v", ident.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"ok": false, "error": "failed to register"})
	}
	return c.JSON(fiber.Map{
		"ok":            true,
		"referral_link": fmt.Sprintf("https://t.me/%s?start=%d", s.BotUsername, ident.ID),
	})
}
