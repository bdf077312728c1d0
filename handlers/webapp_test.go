package handlers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path"
	"sort"
	"strings"
	"testing"

	"coin-reward-system/models"
	"coin-reward-system/services"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const testBotToken = "test-bot-token"

type fakeMembership struct{ member bool }

func (f *fakeMembership) IsMember(ctx context.Context, userID int64) bool { return f.member }

// signInitData produces a session payload signed the way the WebApp
// client signs it.
func signInitData(t *testing.T, fields map[string]string) string {
	t.Helper()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+fields[k])
	}
	secret := sha256.Sum256([]byte(testBotToken))
	mac := hmac.New(sha256.New, secret[:])
	mac.Write([]byte(strings.Join(lines, "\n")))

	v := url.Values{}
	for k, val := range fields {
		v.Set(k, val)
	}
	v.Set("hash", hex.EncodeToString(mac.Sum(nil)))
	return v.Encode()
}

func initDataFor(t *testing.T, userID int64, username string, extra map[string]string) string {
	t.Helper()
	fields := map[string]string{
		"user":      fmt.Sprintf(`{"id":%d,"username":%q}`, userID, username),
		"auth_date": "1735730000",
	}
	for k, v := range extra {
		fields[k] = v
	}
	return signInitData(t, fields)
}

func newTestApp(t *testing.T, membership services.MembershipChecker) (*fiber.App, *gorm.DB, string) {
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

	uploadRoot := t.TempDir()
	adminIDs := map[int64]bool{999: true}

	ledger := services.NewLedgerService(db, membership, "https://t.me/TestChannel")
	tasks := services.NewTaskService(db)
	submissions := services.NewSubmissionService(db, ledger, membership, adminIDs, uploadRoot, nil)
	referrals := services.NewReferralService(db, ledger, "CoinRewardBot")
	leaderboards := services.NewLeaderboardService(db)
	verifiers := services.NewVerifierService(db)

	app := fiber.New()
	SetupWebAppRoutes(app, testBotToken, adminIDs, uploadRoot, ledger, tasks, submissions, referrals, leaderboards, verifiers)
	return app, db, uploadRoot
}

func doJSON(t *testing.T, app *fiber.App, method, target, initData string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if initData != "" {
		req.Header.Set("X-Telegram-Init-Data", initData)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]interface{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded))
	}
	return resp.StatusCode, decoded
}

func balanceOf(t *testing.T, app *fiber.App, userID int64) float64 {
	t.Helper()
	status, body := doJSON(t, app, http.MethodGet, fmt.Sprintf("/balance/%d", userID), "", nil)
	require.Equal(t, http.StatusOK, status)
	return body["coins"].(float64)
}

func TestWebAppFullFlow(t *testing.T) {
	app, _, _ := newTestApp(t, &fakeMembership{member: true})

	alice := initDataFor(t, 1, "alice", map[string]string{"start_param": "2"})
	admin := initDataFor(t, 999, "admin", nil)
	verifier := initDataFor(t, 50, "vera", nil)

	// Registration grants the signup bonus and pays the referrer once.
	status, body := doJSON(t, app, http.MethodPost, "/webapp/register", alice, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, true, body["ok"])
	require.Equal(t, "https://t.me/CoinRewardBot?start=1", body["referral_link"])
	require.EqualValues(t, 100, balanceOf(t, app, 1))
	require.EqualValues(t, 200, balanceOf(t, app, 2))

	status, _ = doJSON(t, app, http.MethodPost, "/webapp/register", alice, nil)
	require.Equal(t, http.StatusOK, status)
	require.EqualValues(t, 100, balanceOf(t, app, 1))
	require.EqualValues(t, 200, balanceOf(t, app, 2))

	// Three ad watches complete a streak and open a boost window.
	var last map[string]interface{}
	for i := 0; i < 3; i++ {
		status, last = doJSON(t, app, http.MethodPost, "/webapp/ad_watched", alice, nil)
		require.Equal(t, http.StatusOK, status)
		require.Equal(t, true, last["ok"])
	}
	require.NotNil(t, last["boost_until"])
	require.EqualValues(t, 400, balanceOf(t, app, 1))

	status, body = doJSON(t, app, http.MethodGet, "/balance/1", "", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, true, body["boost_active"])

	// Admin publishes a task.
	status, body = doJSON(t, app, http.MethodPost, "/webapp/add_task", admin,
		map[string]interface{}{"title": "Join the group", "reward": 50})
	require.Equal(t, http.StatusOK, status)
	taskID := body["task_id"].(string)
	require.NotEmpty(t, taskID)

	// A regular user can't reach the admin surface.
	status, _ = doJSON(t, app, http.MethodPost, "/webapp/add_task", alice,
		map[string]interface{}{"title": "Nope", "reward": 1})
	require.Equal(t, http.StatusForbidden, status)

	// Proof upload.
	mpBody := new(bytes.Buffer)
	w := multipart.NewWriter(mpBody)
	require.NoError(t, w.WriteField("task_id", taskID))
	fw, err := w.CreateFormFile("file", "proof.png")
	require.NoError(t, err)
	_, err = fw.Write([]byte("screenshot-bytes"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/webapp/submit_proof", mpBody)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("X-Telegram-Init-Data", alice)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	var submitBody map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&submitBody))
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, submitBody["ok"])
	submissionID := submitBody["submission_id"].(string)
	require.NotEmpty(t, submissionID)

	// The queue is visible to moderators and the proof is servable.
	status, body = doJSON(t, app, http.MethodPost, "/webapp/submissions", admin, nil)
	require.Equal(t, http.StatusOK, status)
	subs := body["submissions"].([]interface{})
	require.Len(t, subs, 1)
	fileURL := subs[0].(map[string]interface{})["file_path"].(string)
	require.True(t, strings.HasPrefix(fileURL, "/uploads/"))

	req = httptest.NewRequest(http.MethodGet, fileURL, nil)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	served, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "screenshot-bytes", string(served))

	_, notFound := doJSON(t, app, http.MethodGet, "/uploads/"+url.PathEscape("nope"+path.Ext(fileURL)), "", nil)
	require.Equal(t, false, notFound["ok"])

	// A registered verifier approves; the boost doubles the task reward.
	status, _ = doJSON(t, app, http.MethodPost, "/webapp/add_verifier", admin,
		map[string]interface{}{"verifier_id": 50})
	require.Equal(t, http.StatusOK, status)

	status, body = doJSON(t, app, http.MethodPost, "/webapp/review_submission", verifier,
		map[string]interface{}{"submission_id": submissionID, "action": "approve"})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, true, body["ok"])
	require.EqualValues(t, 100, body["awarded"])
	require.EqualValues(t, 500, balanceOf(t, app, 1))

	// The decision is terminal; a rerun changes nothing.
	status, body = doJSON(t, app, http.MethodPost, "/webapp/review_submission", admin,
		map[string]interface{}{"submission_id": submissionID, "action": "approve"})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, false, body["ok"])
	require.Equal(t, "already reviewed", body["error"])
	require.EqualValues(t, 500, balanceOf(t, app, 1))

	// Daily claim succeeds once per day.
	status, body = doJSON(t, app, http.MethodPost, "/webapp/daily_claim", alice, nil)
	require.Equal(t, http.StatusOK, status)
	require.EqualValues(t, 50, body["awarded"])
	status, body = doJSON(t, app, http.MethodPost, "/webapp/daily_claim", alice, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "already_claimed", body["error"])
	require.EqualValues(t, 550, balanceOf(t, app, 1))

	// Public leaderboard reflects the ledger.
	status, body = doJSON(t, app, http.MethodGet, "/webapp/leaderboards?type=coins", "", nil)
	require.Equal(t, http.StatusOK, status)
	items := body["items"].([]interface{})
	require.NotEmpty(t, items)
	top := items[0].(map[string]interface{})
	require.Equal(t, "alice", top["username"])
	require.EqualValues(t, 550, top["coins"])
}

func TestWebAppRejectsBadSessions(t *testing.T) {
	app, _, _ := newTestApp(t, &fakeMembership{member: true})

	status, body := doJSON(t, app, http.MethodPost, "/webapp/daily_claim", "", nil)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "init_data required", body["error"])

	tampered := strings.Replace(initDataFor(t, 1, "alice", nil), "alice", "mallory", 1)
	status, body = doJSON(t, app, http.MethodPost, "/webapp/daily_claim", tampered, nil)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "invalid init data", body["error"])

	// A valid signature without a user field still can't open a session.
	noUser := signInitData(t, map[string]string{"auth_date": "1735730000"})
	status, _ = doJSON(t, app, http.MethodPost, "/webapp/daily_claim", noUser, nil)
	require.Equal(t, http.StatusUnauthorized, status)
}

func TestWebAppNonMemberGetsJoinPrompt(t *testing.T) {
	app, _, _ := newTestApp(t, &fakeMembership{member: false})
	alice := initDataFor(t, 1, "alice", nil)

	status, body := doJSON(t, app, http.MethodPost, "/webapp/ad_watched", alice, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, false, body["ok"])
	require.Equal(t, "join_channel", body["error"])
	require.Equal(t, "https://t.me/TestChannel", body["channel"])

	status, body = doJSON(t, app, http.MethodPost, "/webapp/check_join", alice, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, false, body["member"])
}
