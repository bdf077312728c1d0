package services

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"coin-reward-system/models"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// testDB opens a per-test in-memory database to avoid cross-test
// interference. Connections are capped at one so concurrent callers
// serialize on the store instead of tripping sqlite busy errors.
func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Task{},
		&models.Submission{},
		&models.Verifier{},
		&models.Referral{},
	))
	return db
}

// newTestLedger returns a ledger on a pinned clock; advance the clock
// through the returned pointer.
func newTestLedger(t *testing.T, db *gorm.DB) (*LedgerService, *time.Time) {
	t.Helper()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := &now
	led := NewLedgerService(db, nil, "https://t.me/TestChannel")
	led.Now = func() time.Time { return *clock }
	return led, clock
}

func TestRecordAdWatchStreakAndBoost(t *testing.T) {
	db := testDB(t)
	led, clock := newTestLedger(t, db)

	first, err := led.RecordAdWatch(7, "alice")
	require.NoError(t, err)
	require.EqualValues(t, AdReward, first.Awarded)
	require.EqualValues(t, 100, first.Coins)
	require.EqualValues(t, 1, first.AdsWatched)
	require.Equal(t, 2, first.AdsToNextBoost)
	require.Nil(t, first.BoostUntil)

	second, err := led.RecordAdWatch(7, "alice")
	require.NoError(t, err)
	require.Equal(t, 1, second.AdsToNextBoost)
	require.Nil(t, second.BoostUntil)

	third, err := led.RecordAdWatch(7, "alice")
	require.NoError(t, err)
	require.EqualValues(t, 300, third.Coins)
	require.EqualValues(t, 3, third.AdsWatched)
	require.NotNil(t, third.BoostUntil)
	require.Equal(t, clock.Add(BoostDuration), third.BoostUntil.UTC())
	// The ad reward itself is never boosted; the streak just resets.
	require.Equal(t, StreakThreshold, third.AdsToNextBoost)

	active, err := led.IsBoostActive(7)
	require.NoError(t, err)
	require.True(t, active)

	// Expiry is evaluated lazily: advancing the clock past the window
	// deactivates the boost with no write anywhere.
	*clock = clock.Add(BoostDuration + time.Minute)
	active, err = led.IsBoostActive(7)
	require.NoError(t, err)
	require.False(t, active)
}

func TestBoostRetriggerResetsWindow(t *testing.T) {
	db := testDB(t)
	led, clock := newTestLedger(t, db)

	for i := 0; i < 3; i++ {
		_, err := led.RecordAdWatch(7, "alice")
		require.NoError(t, err)
	}
	firstWindow := clock.Add(BoostDuration)

	// A second full streak while the boost is live restarts the window
	// from the current time.
	*clock = clock.Add(time.Hour)
	var res *AdWatchResult
	for i := 0; i < 3; i++ {
		var err error
		res, err = led.RecordAdWatch(7, "alice")
		require.NoError(t, err)
	}
	require.NotNil(t, res.BoostUntil)
	require.True(t, res.BoostUntil.After(firstWindow))
	require.Equal(t, clock.Add(BoostDuration), res.BoostUntil.UTC())
}

func TestClaimDailyOncePerUTCDay(t *testing.T) {
	db := testDB(t)
	led, clock := newTestLedger(t, db)

	res, err := led.ClaimDaily(9, "bob")
	require.NoError(t, err)
	require.EqualValues(t, DailyReward, res.Awarded)
	require.EqualValues(t, DailyReward, res.Coins)

	_, err = led.ClaimDaily(9, "bob")
	require.ErrorIs(t, err, ErrAlreadyClaimed)

	// Next UTC day reopens the claim.
	*clock = clock.Add(24 * time.Hour)
	res, err = led.ClaimDaily(9, "bob")
	require.NoError(t, err)
	require.EqualValues(t, 2*DailyReward, res.Coins)
}

func TestClaimDailyConcurrentSingleWinner(t *testing.T) {
	db := testDB(t)
	led, _ := newTestLedger(t, db)

	const n = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		wins    int
		already int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := led.ClaimDaily(11, "carol")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrAlreadyClaimed):
				already++
			default:
				t.Errorf("unexpected claim error: %v", err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, wins)
	require.Equal(t, n-1, already)

	var u models.User
	require.NoError(t, db.Where("user_id = ?", 11).First(&u).Error)
	require.EqualValues(t, DailyReward, u.Coins)
}

func TestBalanceUnknownUserReadsZero(t *testing.T) {
	db := testDB(t)
	led, _ := newTestLedger(t, db)

	view, err := led.Balance(404)
	require.NoError(t, err)
	require.EqualValues(t, 0, view.Coins)
	require.EqualValues(t, 0, view.AdsWatched)
	require.False(t, view.BoostActive)

	active, err := led.IsBoostActive(404)
	require.NoError(t, err)
	require.False(t, active)
}

func TestEffectiveReward(t *testing.T) {
	require.EqualValues(t, 50, EffectiveReward(50, false))
	require.EqualValues(t, 100, EffectiveReward(50, true))
	require.EqualValues(t, 0, EffectiveReward(0, true))
}
