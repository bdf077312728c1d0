package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"mime/multipart"
	"path/filepath"
	"time"

	"coin-reward-system/models"
	"coin-reward-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrJoinRequired is the distinguished "join the channel first"
	// signal; callers render a join prompt instead of a plain 403.
	ErrJoinRequired = errors.New("channel membership required")
	// ErrNotAuthorized means the caller is authenticated but lacks
	// review privilege.
	ErrNotAuthorized = errors.New("not authorized")
	// ErrTaskNotFound means the referenced task does not exist.
	ErrTaskNotFound = errors.New("task not found")
)

// ReviewStatus enumerates the possible outcomes of a review attempt.
// Races between moderators are expected, so "already reviewed" is a
// result to branch on, not an error.
type ReviewStatus string

const (
	ReviewApproved    ReviewStatus = "approved"
	ReviewRejected    ReviewStatus = "rejected"
	ReviewAlreadyDone ReviewStatus = "already_reviewed"
	ReviewNotFound    ReviewStatus = "not_found"
)

// ReviewOutcome is the result of Review. Awarded is set only for an
// approval.
type ReviewOutcome struct {
	Status  ReviewStatus `json:"status"`
	Awarded int64        `json:"awarded,omitempty"`
}

// SubmissionService governs task-proof submissions from creation
// through moderation decision and payout. It is the sole mutator of
// submission status.
type SubmissionService struct {
	DB         *gorm.DB
	Ledger     *LedgerService
	Membership MembershipChecker
	// AdminIDs is the administrator allow-list from config; verifiers
	// come from the verifiers table and are resolved per call.
	AdminIDs   map[int64]bool
	UploadRoot string
	// Mirror, when set, copies proof images to object storage as well.
	Mirror *utils.R2Uploader
}

func NewSubmissionService(db *gorm.DB, ledger *LedgerService, membership MembershipChecker, adminIDs map[int64]bool, uploadRoot string, mirror *utils.R2Uploader) *SubmissionService {
	return &SubmissionService{
		DB:         db,
		Ledger:     ledger,
		Membership: membership,
		AdminIDs:   adminIDs,
		UploadRoot: uploadRoot,
		Mirror:     mirror,
	}
}

// canReview reports whether the identity is an administrator or a
// registered verifier.
func (s *SubmissionService) canReview(userID int64) (bool, error) {
	if s.AdminIDs[userID] {
		return true, nil
	}
	var count int64
	if err := s.DB.Model(&models.Verifier{}).Where("verifier_id = ?", userID).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// SubmitProof stores the uploaded proof file and creates a pending
// submission. The submitter must currently be a channel member; the
// proof file is written once under a generated name and never mutated.
func (s *SubmissionService) SubmitProof(ctx context.Context, ident Identity, taskID string, file *multipart.FileHeader) (string, error) {
	if s.Membership == nil || !s.Membership.IsMember(ctx, ident.ID) {
		return "", ErrJoinRequired
	}

	var task models.Task
	if err := s.DB.Where("id = ?", taskID).First(&task).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrTaskNotFound
		}
		return "", err
	}

	ext := filepath.Ext(file.Filename)
	if ext == "" {
		ext = ".jpg"
	}
	fname := fmt.Sprintf("%d_%s%s", ident.ID, s.Ledger.Now().Format("20060102150405"), ext)
	destPath := filepath.Join(s.UploadRoot, fname)

	if err := utils.SaveFile(file, destPath); err != nil {
		return "", fmt.Errorf("failed to store proof file: %w", err)
	}

	if s.Mirror != nil {
		if _, err := s.Mirror.Upload(ctx, file, "proofs/"+fname); err != nil {
			// Mirroring is best-effort; the local copy is authoritative.
			log.Printf("proof mirror upload failed for %s: %v", fname, err)
		}
	}

	submissionID := uuid.NewString()
	err := runTx(s.DB, func(tx *gorm.DB) error {
		if _, err := s.Ledger.EnsureUser(tx, ident.ID, ident.DisplayName(), 0); err != nil {
			return err
		}
		return tx.Create(&models.Submission{
			ID:          submissionID,
			UserID:      ident.ID,
			TaskID:      taskID,
			FilePath:    destPath,
			Status:      models.SubmissionPending,
			SubmittedAt: s.Ledger.Now(),
		}).Error
	})
	if err != nil {
		return "", err
	}
	return submissionID, nil
}

// SubmissionView is the moderation listing entry; the file is exposed
// as its public /uploads URL, never as the storage path.
type SubmissionView struct {
	SubmissionID string                  `json:"submission_id"`
	UserID       int64                   `json:"user_id"`
	TaskID       string                  `json:"task_id"`
	FileURL      string                  `json:"file_path"`
	Status       models.SubmissionStatus `json:"status"`
	SubmittedAt  time.Time               `json:"submitted_at"`
}

// ListSubmissions returns all submissions, newest first. Admins and
// verifiers only.
func (s *SubmissionService) ListSubmissions(ident Identity) ([]SubmissionView, error) {
	ok, err := s.canReview(ident.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotAuthorized
	}

	var subs []models.Submission
	if err := s.DB.Order("submitted_at DESC").Find(&subs).Error; err != nil {
		return nil, err
	}

	views := make([]SubmissionView, len(subs))
	for i, sub := range subs {
		fileURL := ""
		if sub.FilePath != "" {
			fileURL = "/uploads/" + filepath.Base(sub.FilePath)
		}
		views[i] = SubmissionView{
			SubmissionID: sub.ID,
			UserID:       sub.UserID,
			TaskID:       sub.TaskID,
			FileURL:      fileURL,
			Status:       sub.Status,
			SubmittedAt:  sub.SubmittedAt,
		}
	}
	return views, nil
}

// Review applies a terminal moderation decision. The status check, the
// terminal write and the payout form one transaction: a submission
// pays out at most once no matter how many reviewers race on it, and a
// non-pending submission reports already_reviewed instead of silently
// succeeding.
func (s *SubmissionService) Review(ident Identity, submissionID, action, reason string) (*ReviewOutcome, error) {
	ok, err := s.canReview(ident.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotAuthorized
	}

	var outcome ReviewOutcome
	err = runTx(s.DB, func(tx *gorm.DB) error {
		outcome = ReviewOutcome{}

		var sub models.Submission
		err := tx.Where("id = ?", submissionID).First(&sub).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			outcome.Status = ReviewNotFound
			return nil
		}
		if err != nil {
			return err
		}
		if sub.Status != models.SubmissionPending {
			outcome.Status = ReviewAlreadyDone
			return nil
		}

		newStatus := models.SubmissionRejected
		var awarded int64
		if action == "approve" {
			newStatus = models.SubmissionApproved

			// A deleted task never retroactively invalidates its
			// submissions; it just pays nothing.
			var task models.Task
			var reward int64
			if err := tx.Where("id = ?", sub.TaskID).First(&task).Error; err == nil {
				reward = task.Reward
			} else if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}

			var target models.User
			boosted := false
			if err := tx.Where("user_id = ?", sub.UserID).First(&target).Error; err == nil {
				boosted = boostActive(target.BoostUntil, s.Ledger.Now())
			} else if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			awarded = EffectiveReward(reward, boosted)
		}

		// Status-conditioned write: if another reviewer got here first
		// the row count is zero and nothing is paid.
		upd := tx.Model(&models.Submission{}).
			Where("id = ? AND status = ?", sub.ID, models.SubmissionPending).
			Updates(map[string]interface{}{
				"status":        newStatus,
				"reviewed_by":   ident.ID,
				"review_reason": reason,
			})
		if upd.Error != nil {
			return upd.Error
		}
		if upd.RowsAffected == 0 {
			outcome.Status = ReviewAlreadyDone
			return nil
		}

		if newStatus == models.SubmissionApproved {
			if err := s.Ledger.CreditTx(tx, sub.UserID, "", awarded); err != nil {
				return err
			}
			outcome = ReviewOutcome{Status: ReviewApproved, Awarded: awarded}
			return nil
		}
		outcome.Status = ReviewRejected
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &outcome, nil
}

// --- WebApp endpoints ---

// SubmitProofEndpoint accepts the multipart proof upload.
func (s *SubmissionService) SubmitProofEndpoint(c *fiber.Ctx) error {
	ident := c.Locals(IdentityKey).(Identity)

	taskID := c.FormValue("task_id")
	if taskID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"ok": false, "error": "task_id required"})
	}
	file, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"ok": false, "error": "file required"})
	}

	submissionID, err := s.SubmitProof(c.UserContext(), ident, taskID, file)
	switch {
	case errors.Is(err, ErrJoinRequired):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"ok": false, "error": "join_channel", "channel": s.Ledger.ChannelLink})
	case errors.Is(err, ErrTaskNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"ok": false, "error": "task not found"})
	case err != nil:
		log.Printf("proof submission failed for %d: %v", ident.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"ok": false, "error": "failed to submit proof"})
	}
	return c.JSON(fiber.Map{
		"ok":            true,
		"submission_id": submissionID,
		"msg":           "Proof submitted. Waiting for review.",
	})
}

// ListSubmissionsEndpoint serves the moderation queue.
func (s *SubmissionService) ListSubmissionsEndpoint(c *fiber.Ctx) error {
	ident := c.Locals(IdentityKey).(Identity)
	views, err := s.ListSubmissions(ident)
	if errors.Is(err, ErrNotAuthorized) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"ok": false, "error": "not authorized"})
	}
	if err != nil {
		log.Printf("DB error listing submissions: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"ok": false, "error": "failed to list submissions"})
	}
	return c.JSON(fiber.Map{"ok": true, "submissions": views})
}

// ReviewSubmissionEndpoint applies an approve/reject decision.
func (s *SubmissionService) ReviewSubmissionEndpoint(c *fiber.Ctx) error {
	ident := c.Locals(IdentityKey).(Identity)

	var req struct {
		SubmissionID string `json:"submission_id"`
		Action       string `json:"action"`
		Reason       string `json:"reason"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"ok": false, "error": "invalid request body"})
	}
	if req.SubmissionID == "" || (req.Action != "approve" && req.Action != "reject") {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"ok": false, "error": "submission_id and valid action required"})
	}

	outcome, err := s.Review(ident, req.SubmissionID, req.Action, req.Reason)
	if errors.Is(err, ErrNotAuthorized) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"ok": false, "error": "not authorized"})
	}
	if err != nil {
		log.Printf("review failed for submission %s: %v", req.SubmissionID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"ok": false, "error": "failed to review submission"})
	}

	switch outcome.Status {
	case ReviewNotFound:
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"ok": false, "error": "not found"})
	case ReviewAlreadyDone:
		return c.JSON(fiber.Map{"ok": false, "error": "already reviewed"})
	case ReviewApproved:
		return c.JSON(fiber.Map{"ok": true, "awarded": outcome.Awarded})
	default:
		return c.JSON(fiber.Map{"ok": true, "msg": "Rejected"})
	}
}
