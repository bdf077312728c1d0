package handlers

import (
	"os"

	"coin-reward-system/middleware"
	"coin-reward-system/services"
	"coin-reward-system/utils"

	"github.com/gofiber/fiber/v2"
)

// SetupWebAppRoutes wires the dashboard API: public reads, secured
// (session-verified) mutations, and the admin surface.
func SetupWebAppRoutes(
	app *fiber.App,
	botToken string,
	adminIDs map[int64]bool,
	uploadRoot string,
	ledger *services.LedgerService,
	tasks *services.TaskService,
	submissions *services.SubmissionService,
	referrals *services.ReferralService,
	leaderboards *services.LeaderboardService,
	verifiers *services.VerifierService,
) {
	// Public reads
	app.Get("/balance/:user_id", ledger.BalanceEndpoint)
	app.Get("/webapp/get_tasks", tasks.GetTasksEndpoint)
	app.Get("/webapp/leaderboards", leaderboards.LeaderboardsEndpoint)

	// Uploaded proofs, basename-sanitized so traversal can't escape
	// the upload root.
	app.Get("/uploads/:filename", func(c *fiber.Ctx) error {
		safe, err := utils.SafeJoin(uploadRoot, c.Params("filename"))
		if err != nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"ok": false, "error": "not found"})
		}
		if _, err := os.Stat(safe); err != nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"ok": false, "error": "not found"})
		}
		return c.SendFile(safe)
	})

	// Session-verified routes
	secured := app.Group("/webapp", middleware.InitDataAuth(botToken))
	secured.Post("/register", referrals.RegisterEndpoint)
	secured.Post("/check_join", ledger.CheckJoinEndpoint)
	secured.Post("/ad_watched", ledger.AdWatchedEndpoint)
	secured.Post("/daily_claim", ledger.DailyClaimEndpoint)
	secured.Post("/submit_proof", submissions.SubmitProofEndpoint)
	secured.Post("/submissions", submissions.ListSubmissionsEndpoint)
	secured.Post("/review_submission", submissions.ReviewSubmissionEndpoint)

	// Admin-only routes
	admin := secured.Group("/", middleware.AdminOnly(adminIDs))
	admin.Post("/add_task", tasks.AddTaskEndpoint)
	admin.Post("/delete_task", tasks.DeleteTaskEndpoint)
	admin.Post("/add_verifier", verifiers.AddVerifierEndpoint)
	admin.Post("/remove_verifier", verifiers.RemoveVerifierEndpoint)
}
