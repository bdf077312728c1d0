package services

import (
	"errors"
	"log"
	"strconv"
	"time"

	"coin-reward-system/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Domain constants for the coin economy.
const (
	AdReward          = 100
	DailyReward       = 50
	ReferralBonus     = 200
	RegistrationGrant = 100
	StreakThreshold   = 3
	BoostDuration     = 2 * time.Hour
	BoostMultiplier   = 2
)

// IdentityKey and InitDataKey are the fiber Locals keys under which
// the auth middleware stores the verified Identity and the full
// decoded payload.
const (
	IdentityKey = "identity"
	InitDataKey = "init_data"
)

// ErrAlreadyClaimed signals that the daily bonus was already claimed on
// the current UTC calendar day. It is an expected outcome, not a fault.
var ErrAlreadyClaimed = errors.New("daily bonus already claimed")

// LedgerService is the sole mutator of user balances, counters and
// boost state. Every multi-step mutation runs as a single transaction so two
// concurrent callers acting on the same user observe linearizable
// outcomes.
type LedgerService struct {
	DB *gorm.DB
	// Now is the store clock; callers' reported times are ignored.
	Now func() time.Time

	Membership  MembershipChecker
	ChannelLink string
}

func NewLedgerService(db *gorm.DB, membership MembershipChecker, channelLink string) *LedgerService {
	return &LedgerService{
		DB:          db,
		Now:         func() time.Time { return time.Now().UTC() },
		Membership:  membership,
		ChannelLink: channelLink,
	}
}

// runTx executes fn in one transaction and retries once on a store
// failure. fn must be re-runnable from scratch; domain outcomes are
// carried through captured variables, never through the returned error.
func runTx(db *gorm.DB, fn func(tx *gorm.DB) error) error {
	err := db.Transaction(fn)
	if err != nil {
		log.Printf("store transaction failed, retrying once: %v", err)
		err = db.Transaction(fn)
	}
	return err
}

// EnsureUser lazily creates the user row if absent. The username and
// the initial coin grant apply only on first creation; an existing row
// is left untouched. Returns true when the row was newly created.
func (s *LedgerService) EnsureUser(tx *gorm.DB, userID int64, username string, coins int64) (bool, error) {
	now := s.Now()
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.User{
		UserID:   userID,
		Username: username,
		Coins:    coins,
		JoinedAt: &now,
	})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// CreditTx increases the user's balance by amount within the caller's
// transaction, creating the row with zero balance if absent.
func (s *LedgerService) CreditTx(tx *gorm.DB, userID int64, username string, amount int64) error {
	if _, err := s.EnsureUser(tx, userID, username, 0); err != nil {
		return err
	}
	return tx.Model(&models.User{}).
		Where("user_id = ?", userID).
		Update("coins", gorm.Expr("coins + ?", amount)).Error
}

// EffectiveReward applies the boost multiplier to a base task reward.
func EffectiveReward(base int64, boostActive bool) int64 {
	if boostActive {
		return base * BoostMultiplier
	}
	return base
}

// boostActive reports whether the stored expiry is strictly in the
// future. A missing expiry is simply inactive, never an error.
func boostActive(boostUntil *time.Time, now time.Time) bool {
	return boostUntil != nil && boostUntil.After(now)
}

// IsBoostActive reports whether the user currently has a reward boost.
// Expiry is evaluated lazily here; nothing ever writes a deactivation.
func (s *LedgerService) IsBoostActive(userID int64) (bool, error) {
	var u models.User
	err := s.DB.Where("user_id = ?", userID).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return boostActive(u.BoostUntil, s.Now()), nil
}

// AdWatchResult reports the outcome of a single rewarded ad watch.
type AdWatchResult struct {
	Awarded        int64      `json:"coins_awarded"`
	Coins          int64      `json:"coins_total"`
	AdsWatched     int64      `json:"ads_watched"`
	AdsToNextBoost int        `json:"ads_to_next_boost"`
	// BoostUntil is set only when this watch triggered a boost window.
	BoostUntil *time.Time `json:"boost_until,omitempty"`
}

// RecordAdWatch credits the fixed ad reward, bumps the lifetime and
// streak counters, and activates a fresh boost window when the streak
// reaches the threshold. Re-triggering while a boost is active resets
// and restarts the window.
func (s *LedgerService) RecordAdWatch(userID int64, username string) (*AdWatchResult, error) {
	var res AdWatchResult
	err := runTx(s.DB, func(tx *gorm.DB) error {
		res = AdWatchResult{}
		if _, err := s.EnsureUser(tx, userID, username, 0); err != nil {
			return err
		}
		// Atomic increments: no read-then-write window for a
		// concurrent watcher to lose an update in.
		if err := tx.Model(&models.User{}).
			Where("user_id = ?", userID).
			Updates(map[string]interface{}{
				"coins":       gorm.Expr("coins + ?", AdReward),
				"ads_watched": gorm.Expr("ads_watched + 1"),
				"ad_counter":  gorm.Expr("ad_counter + 1"),
			}).Error; err != nil {
			return err
		}

		// Streak threshold reached: open a fresh window and reset the
		// counter. The guard makes exactly one concurrent watcher the
		// activator; the counter may sit above the threshold briefly
		// before the reset lands.
		until := s.Now().Add(BoostDuration)
		upd := tx.Model(&models.User{}).
			Where("user_id = ? AND ad_counter >= ?", userID, StreakThreshold).
			Updates(map[string]interface{}{"boost_until": until, "ad_counter": 0})
		if upd.Error != nil {
			return upd.Error
		}
		if upd.RowsAffected == 1 {
			res.BoostUntil = &until
		}

		var u models.User
		if err := tx.Where("user_id = ?", userID).First(&u).Error; err != nil {
			return err
		}
		res.Awarded = AdReward
		res.Coins = u.Coins
		res.AdsWatched = u.AdsWatched
		res.AdsToNextBoost = StreakThreshold - u.AdCounter
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// DailyResult reports a successful daily claim.
type DailyResult struct {
	Awarded int64 `json:"awarded"`
	Coins   int64 `json:"coins"`
}

// ClaimDaily credits the daily bonus at most once per UTC calendar day.
// The date check and the credit are one guarded UPDATE, so concurrent
// claims resolve to exactly one winner; losers get ErrAlreadyClaimed.
func (s *LedgerService) ClaimDaily(userID int64, username string) (*DailyResult, error) {
	today := s.Now().Format("2006-01-02")
	var (
		res     DailyResult
		claimed bool
	)
	err := runTx(s.DB, func(tx *gorm.DB) error {
		res, claimed = DailyResult{}, false
		if _, err := s.EnsureUser(tx, userID, username, 0); err != nil {
			return err
		}
		upd := tx.Model(&models.User{}).
			Where("user_id = ? AND (last_daily IS NULL OR last_daily <> ?)", userID, today).
			Updates(map[string]interface{}{
				"coins":      gorm.Expr("coins + ?", DailyReward),
				"last_daily": today,
			})
		if upd.Error != nil {
			return upd.Error
		}
		if upd.RowsAffected == 0 {
			return nil
		}
		claimed = true
		var u models.User
		if err := tx.Where("user_id = ?", userID).First(&u).Error; err != nil {
			return err
		}
		res = DailyResult{Awarded: DailyReward, Coins: u.Coins}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, ErrAlreadyClaimed
	}
	return &res, nil
}

// BalanceView is the read-only balance summary for a user.
type BalanceView struct {
	Coins       int64 `json:"coins"`
	AdsWatched  int64 `json:"ads_watched"`
	BoostActive bool  `json:"boost_active"`
}

// Balance returns the user's balance summary; an unknown user reads as
// all zeroes rather than an error.
func (s *LedgerService) Balance(userID int64) (*BalanceView, error) {
	var u models.User
	err := s.DB.Where("user_id = ?", userID).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &BalanceView{}, nil
	}
	if err != nil {
		return nil, err
	}
	return &BalanceView{
		Coins:       u.Coins,
		AdsWatched:  u.AdsWatched,
		BoostActive: boostActive(u.BoostUntil, s.Now()),
	}, nil
}

// --- WebApp endpoints ---

// BalanceEndpoint serves the public balance view.
func (s *LedgerService) BalanceEndpoint(c *fiber.Ctx) error {
	userID, err := strconv.ParseInt(c.Params("user_id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"ok": false, "error": "invalid user id"})
	}
	view, err := s.Balance(userID)
	if err != nil {
		log.Printf("DB error fetching balance for %d: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"ok": false, "error": "failed to fetch balance"})
	}
	return c.JSON(fiber.Map{
		"ok":           true,
		"coins":        view.Coins,
		"ads_watched":  view.AdsWatched,
		"boost_active": view.BoostActive,
	})
}

// CheckJoinEndpoint reports the caller's channel membership so the UI
// can render a join prompt.
func (s *LedgerService) CheckJoinEndpoint(c *fiber.Ctx) error {
	ident := c.Locals(IdentityKey).(Identity)
	member := s.Membership != nil && s.Membership.IsMember(c.UserContext(), ident.ID)
	return c.JSON(fiber.Map{"ok": true, "member": member, "channel": s.ChannelLink})
}

// AdWatchedEndpoint records a rewarded ad watch for the caller.
// Watching requires current channel membership; a non-member gets the
// soft join_channel signal, not a hard failure.
func (s *LedgerService) AdWatchedEndpoint(c *fiber.Ctx) error {
	ident := c.Locals(IdentityKey).(Identity)
	if s.Membership == nil || !s.Membership.IsMember(c.UserContext(), ident.ID) {
		return c.JSON(fiber.Map{"ok": false, "error": "join_channel", "channel": s.ChannelLink})
	}
	res, err := s.RecordAdWatch(ident.ID, ident.DisplayName())
	if err != nil {
		log.Printf("DB error recording ad watch for %d: %v", ident.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"ok": false, "error": "failed to record ad watch"})
	}
	return c.JSON(fiber.Map{
		"ok":                true,
		"coins_awarded":     res.Awarded,
		"coins_total":       res.Coins,
		"ads_watched":       res.AdsWatched,
		"ads_to_next_boost": res.AdsToNextBoost,
		"boost_until":       res.BoostUntil,
	})
}

// DailyClaimEndpoint performs the once-per-day bonus claim.
func (s *LedgerService) DailyClaimEndpoint(c *fiber.Ctx) error {
	ident := c.Locals(IdentityKey).(Identity)
	res, err := s.ClaimDaily(ident.ID, ident.DisplayName())
	if errors.Is(err, ErrAlreadyClaimed) {
		return c.JSON(fiber.Map{"ok": false, "error": "already_claimed"})
	}
	if err != nil {
		log.Printf("DB error on daily claim for %d: %v", ident.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"ok": false, "error": "failed to claim daily bonus"})
	}
	return c.JSON(fiber.Map{"ok": true, "awarded": res.Awarded, "coins": res.Coins})
}
