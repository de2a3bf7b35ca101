package controllers

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/kcbuddy/kcbuddy/models"
	"github.com/kcbuddy/kcbuddy/utils"
)

// GoalController exposes savings goals and what each kid has earned toward them.
type GoalController struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewGoalController(db *gorm.DB, log *zap.Logger) *GoalController {
	return &GoalController{db: db, log: log}
}

// earnedByKid sums reward amounts of approved submissions per kid. Summing in Go
// keeps decimal precision identical across database drivers.
func (g *GoalController) earnedByKid(db *gorm.DB, kidIDs []uint) (map[uint]decimal.Decimal, error) {
	type row struct {
		KidID        uint
		RewardAmount decimal.Decimal
	}
	earned := make(map[uint]decimal.Decimal, len(kidIDs))
	if len(kidIDs) == 0 {
		return earned, nil
	}
	var rows []row
	err := db.Table("submissions").
		Select("submissions.kid_id, chores.reward_amount").
		Joins("JOIN chores ON chores.id = submissions.chore_id").
		Where("submissions.kid_id IN ? AND submissions.status = ?", kidIDs, models.StatusApproved).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		earned[r.KidID] = earned[r.KidID].Add(r.RewardAmount)
	}
	return earned, nil
}

// MyGoal returns the calling kid's goal and earned total.
func (g *GoalController) MyGoal(ctx *gin.Context) {
	me := caller(ctx)
	db := g.db.WithContext(ctx.Request.Context())

	var kid models.Kid
	if err := db.Where("id = ? AND family_id = ?", me.UserID, me.FamilyID).First(&kid).Error; err != nil {
		utils.Fail(ctx, g.log, notFound(err, utils.ErrKidNotFound, "find kid"))
		return
	}
	earned, err := g.earnedByKid(db, []uint{kid.ID})
	if err != nil {
		utils.Fail(ctx, g.log, fmt.Errorf("sum earnings: %w", err))
		return
	}
	utils.Success(ctx, gin.H{
		"goalAmount":   kid.GoalAmount,
		"earnedAmount": earned[kid.ID],
	})
}

// SetMyGoal sets the calling kid's savings target. It must be greater than zero.
func (g *GoalController) SetMyGoal(ctx *gin.Context) {
	fields, err := rawFields(ctx)
	if err != nil {
		utils.Fail(ctx, g.log, err)
		return
	}
	invalid := utils.ErrValidation.WithMessage("goalAmount must be greater than 0")
	raw, ok := fields["goalAmount"]
	if !ok {
		utils.Fail(ctx, g.log, invalid)
		return
	}
	amount, err := decodeAmount(raw)
	if err != nil || amount == nil || !amount.IsPositive() {
		utils.Fail(ctx, g.log, invalid)
		return
	}

	me := caller(ctx)
	res := g.db.WithContext(ctx.Request.Context()).
		Model(&models.Kid{}).
		Where("id = ? AND family_id = ?", me.UserID, me.FamilyID).
		Update("goal_amount", *amount)
	if res.Error != nil {
		utils.Fail(ctx, g.log, fmt.Errorf("update goal: %w", res.Error))
		return
	}
	if res.RowsAffected == 0 {
		utils.Fail(ctx, g.log, utils.ErrKidNotFound)
		return
	}
	utils.Success(ctx, gin.H{"goalAmount": amount})
}

// FamilyGoals lists every kid's goal and earned total for a parent.
func (g *GoalController) FamilyGoals(ctx *gin.Context) {
	me := caller(ctx)
	db := g.db.WithContext(ctx.Request.Context())

	var kids []models.Kid
	if err := db.Where("family_id = ?", me.FamilyID).Order("name").Order("id").Find(&kids).Error; err != nil {
		utils.Fail(ctx, g.log, fmt.Errorf("list kids: %w", err))
		return
	}
	ids := make([]uint, 0, len(kids))
	for _, k := range kids {
		ids = append(ids, k.ID)
	}
	earned, err := g.earnedByKid(db, ids)
	if err != nil {
		utils.Fail(ctx, g.log, fmt.Errorf("sum earnings: %w", err))
		return
	}

	goals := make([]gin.H, 0, len(kids))
	for _, k := range kids {
		goals = append(goals, gin.H{
			"id":           k.ID,
			"name":         k.Name,
			"goalAmount":   k.GoalAmount,
			"earnedAmount": earned[k.ID],
		})
	}
	utils.Success(ctx, gin.H{"goals": goals})
}
