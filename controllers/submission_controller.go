package controllers

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/kcbuddy/kcbuddy/models"
	"github.com/kcbuddy/kcbuddy/storage"
	"github.com/kcbuddy/kcbuddy/utils"
)

// SubmissionController handles chore photo submissions and parent review.
type SubmissionController struct {
	db     *gorm.DB
	s3Base string
	log    *zap.Logger
	now    func() time.Time
}

// NewSubmissionController creates a SubmissionController. s3Base is the public S3
// base URL accepted as photo origin in addition to local uploads; empty disables it.
func NewSubmissionController(db *gorm.DB, s3Base string, log *zap.Logger) *SubmissionController {
	return &SubmissionController{db: db, s3Base: strings.TrimRight(s3Base, "/"), log: log, now: time.Now}
}

type submissionRow struct {
	ID           uint            `json:"id"`
	Status       string          `json:"status"`
	PhotoURL     string          `json:"photoUrl"`
	CreatedAt    time.Time       `json:"createdAt"`
	ApprovedAt   *time.Time      `json:"approvedAt"`
	ChoreID      uint            `json:"choreId"`
	Title        string          `json:"title"`
	RewardAmount decimal.Decimal `json:"rewardAmount"`
	KidID        uint            `json:"kidId,omitempty"`
	KidName      string          `json:"kidName,omitempty"`
}

// ListSubmissions returns newest first. Kids see their own; parents see the whole family.
func (s *SubmissionController) ListSubmissions(ctx *gin.Context) {
	me := caller(ctx)
	rows := []submissionRow{}

	q := s.db.WithContext(ctx.Request.Context()).
		Table("submissions").
		Joins("JOIN chores ON chores.id = submissions.chore_id")
	if me.Role == models.RoleKid {
		q = q.Select("submissions.id, submissions.status, submissions.photo_url, submissions.created_at, submissions.approved_at, " +
			"submissions.chore_id, chores.title, chores.reward_amount").
			Where("submissions.kid_id = ?", me.UserID)
	} else {
		q = q.Select("submissions.id, submissions.status, submissions.photo_url, submissions.created_at, submissions.approved_at, "+
			"submissions.chore_id, chores.title, chores.reward_amount, kids.id AS kid_id, kids.name AS kid_name").
			Joins("JOIN kids ON kids.id = submissions.kid_id").
			Where("kids.family_id = ?", me.FamilyID)
	}
	if err := q.Order("submissions.created_at DESC").Order("submissions.id DESC").Scan(&rows).Error; err != nil {
		utils.Fail(ctx, s.log, fmt.Errorf("list submissions: %w", err))
		return
	}
	utils.Success(ctx, gin.H{"submissions": rows})
}

// CreateSubmission records a pending claim for a chore of the kid's family.
func (s *SubmissionController) CreateSubmission(ctx *gin.Context) {
	type request struct {
		ChoreID  uint   `json:"choreId"`
		PhotoURL string `json:"photoUrl"`
	}

	var req request
	if err := bindJSON(ctx, &req); err != nil {
		utils.Fail(ctx, s.log, err)
		return
	}
	req.PhotoURL = strings.TrimSpace(req.PhotoURL)
	if req.ChoreID == 0 || req.PhotoURL == "" {
		utils.Fail(ctx, s.log, utils.ErrValidation.WithMessage("choreId and photoUrl are required"))
		return
	}
	if !storage.PhotoURLAllowed(req.PhotoURL, s.s3Base) {
		utils.Fail(ctx, s.log, utils.ErrInvalidPhoto)
		return
	}

	me := caller(ctx)
	db := s.db.WithContext(ctx.Request.Context())

	var chore models.Chore
	if err := db.Select("id").Where("id = ? AND family_id = ?", req.ChoreID, me.FamilyID).First(&chore).Error; err != nil {
		utils.Fail(ctx, s.log, notFound(err, utils.ErrChoreNotFound, "find chore"))
		return
	}

	sub := models.Submission{
		ChoreID:  chore.ID,
		KidID:    me.UserID,
		PhotoURL: req.PhotoURL,
		Status:   models.StatusPending,
	}
	if err := db.Create(&sub).Error; err != nil {
		utils.Fail(ctx, s.log, fmt.Errorf("create submission: %w", err))
		return
	}
	utils.Created(ctx, gin.H{"id": sub.ID, "status": sub.Status})
}

// DecideSubmission approves or rejects a submission from the caller's family.
// Approval stamps approved_at; rejection clears it.
func (s *SubmissionController) DecideSubmission(ctx *gin.Context) {
	id, ok := paramID(ctx, "id")
	if !ok {
		utils.Fail(ctx, s.log, utils.ErrSubmissionNotFound)
		return
	}
	type request struct {
		Decision string `json:"decision"`
	}
	var req request
	// An empty or unreadable body approves
	_ = ctx.ShouldBindJSON(&req)

	me := caller(ctx)
	status := models.DecisionStatus(req.Decision)
	var approvedAt *time.Time
	if status == models.StatusApproved {
		t := s.now().UTC()
		approvedAt = &t
	}

	res := s.db.WithContext(ctx.Request.Context()).
		Model(&models.Submission{}).
		Where("id = ? AND EXISTS (SELECT 1 FROM kids WHERE kids.id = submissions.kid_id AND kids.family_id = ?)", id, me.FamilyID).
		Updates(map[string]interface{}{
			"status":      status,
			"approved_at": approvedAt,
			"approver_id": me.UserID,
		})
	if res.Error != nil {
		utils.Fail(ctx, s.log, fmt.Errorf("decide submission: %w", res.Error))
		return
	}
	if res.RowsAffected == 0 {
		utils.Fail(ctx, s.log, utils.ErrSubmissionNotFound)
		return
	}
	utils.Success(ctx, gin.H{"id": id, "status": status})
}
