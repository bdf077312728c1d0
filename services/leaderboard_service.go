package services

import (
	"log"

	"coin-reward-system/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// Leaderboard kinds.
const (
	LeaderboardCoins   = "coins"
	LeaderboardInvites = "invites"
	LeaderboardAds     = "ads"
)

// LeaderboardEntry is one ranked row. Which fields are populated
// depends on the kind; ties fall back to storage order.
type LeaderboardEntry struct {
	UserID   int64  `json:"user_id,omitempty"`
	Username string `json:"username"`
	Coins    int64  `json:"coins,omitempty"`
	Ads      int64  `json:"ads,omitempty"`
	Invites  int64  `json:"invites,omitempty"`
}

// LeaderboardPage is one page of a ranked view.
type LeaderboardPage struct {
	Items   []LeaderboardEntry `json:"items"`
	Page    int                `json:"page"`
	PerPage int                `json:"per_page"`
	Total   int64              `json:"total"`
}

// LeaderboardService serves the read-only ranked views. Never mutates.
type LeaderboardService struct {
	DB *gorm.DB
}

func NewLeaderboardService(db *gorm.DB) *LeaderboardService {
	return &LeaderboardService{DB: db}
}

// Leaderboard returns one page of the requested ranking: coins and ads
// rank users directly, invites groups referral edges per referrer and
// joins the display name. An unknown kind falls back to ads.
func (s *LeaderboardService) Leaderboard(kind string, page, perPage int) (*LeaderboardPage, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 50 {
		perPage = 10
	}
	offset := (page - 1) * perPage

	result := &LeaderboardPage{Items: []LeaderboardEntry{}, Page: page, PerPage: perPage}

	switch kind {
	case LeaderboardCoins:
		if err := s.DB.Model(&models.User{}).Count(&result.Total).Error; err != nil {
			return nil, err
		}
		var users []models.User
		if err := s.DB.Order("coins DESC").Limit(perPage).Offset(offset).Find(&users).Error; err != nil {
			return nil, err
		}
		for _, u := range users {
			result.Items = append(result.Items, LeaderboardEntry{Username: u.Username, Coins: u.Coins})
		}

	case LeaderboardInvites:
		if err := s.DB.Model(&models.Referral{}).
			Distinct("referrer_id").Count(&result.Total).Error; err != nil {
			return nil, err
		}
		var rows []struct {
			ReferrerID int64
			Cnt        int64
			Username   string
		}
		if err := s.DB.Table("referrals").
			Select("referrals.referrer_id AS referrer_id, COUNT(referrals.referred_id) AS cnt, users.username AS username").
			Joins("JOIN users ON users.user_id = referrals.referrer_id").
			Group("referrals.referrer_id, users.username").
			Order("cnt DESC").
			Limit(perPage).Offset(offset).
			Scan(&rows).Error; err != nil {
			return nil, err
		}
		for _, r := range rows {
			name := r.Username
			if name == "" {
				name = "Unknown"
			}
			result.Items = append(result.Items, LeaderboardEntry{UserID: r.ReferrerID, Username: name, Invites: r.Cnt})
		}

	default: // ads
		if err := s.DB.Model(&models.User{}).Count(&result.Total).Error; err != nil {
			return nil, err
		}
		var users []models.User
		if err := s.DB.Order("ads_watched DESC").Limit(perPage).Offset(offset).Find(&users).Error; err != nil {
			return nil, err
		}
		for _, u := range users {
			result.Items = append(result.Items, LeaderboardEntry{Username: u.Username, Ads: u.AdsWatched, Coins: u.Coins})
		}
	}

	return result, nil
}

// LeaderboardsEndpoint serves the public ranked views.
func (s *LeaderboardService) LeaderboardsEndpoint(c *fiber.Ctx) error {
	kind := c.Query("type", LeaderboardCoins)
	page := c.QueryInt("page", 1)
	perPage := c.QueryInt("per_page", 10)

	result, err := s.Leaderboard(kind, page, perPage)
	if err != nil {
		log.Printf("DB error building %s leaderboard: %v", kind, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"ok": false, "error": "failed to build leaderboard"})
	}
	return c.JSON(fiber.Map{
		"ok":       true,
		"items":    result.Items,
		"page":     result.Page,
		"per_page": result.PerPage,
		"total":    result.Total,
	})
}
