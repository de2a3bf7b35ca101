package controllers

import (
	"encoding/json"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/kcbuddy/kcbuddy/models"
	"github.com/kcbuddy/kcbuddy/utils"
)

// ChoreController manages the family chore list.
type ChoreController struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewChoreController(db *gorm.DB, log *zap.Logger) *ChoreController {
	return &ChoreController{db: db, log: log}
}

type choreRequest struct {
	Title        string           `json:"title"`
	RewardAmount *decimal.Decimal `json:"rewardAmount"`
	Description  *string          `json:"description"`
	Category     *string          `json:"category"`
}

// validate cleans free text and checks required fields.
func (r *choreRequest) validate() error {
	r.Title = utils.CleanText(r.Title)
	r.Description = utils.CleanOptional(r.Description)
	r.Category = utils.CleanOptional(r.Category)
	if r.Title == "" || r.RewardAmount == nil {
		return utils.ErrValidation.WithMessage("title and rewardAmount are required")
	}
	return nil
}

// ListChores returns active chores ordered by title. Parents may pass
// includeInactive=1 to see archived chores as well.
func (c *ChoreController) ListChores(ctx *gin.Context) {
	me := caller(ctx)
	includeInactive := me.Role == models.RoleParent && ctx.Query("includeInactive") == "1"

	q := c.db.WithContext(ctx.Request.Context()).Where("family_id = ?", me.FamilyID)
	if !includeInactive {
		q = q.Where("active = ?", true)
	}
	chores := []models.Chore{}
	if err := q.Order("title").Order("id").Find(&chores).Error; err != nil {
		utils.Fail(ctx, c.log, fmt.Errorf("list chores: %w", err))
		return
	}
	utils.Success(ctx, gin.H{"chores": chores})
}

// CreateChore adds an active chore to the caller's family.
func (c *ChoreController) CreateChore(ctx *gin.Context) {
	var req choreRequest
	if err := bindJSON(ctx, &req); err != nil {
		utils.Fail(ctx, c.log, err)
		return
	}
	if err := req.validate(); err != nil {
		utils.Fail(ctx, c.log, err)
		return
	}

	chore := models.Chore{
		FamilyID:     caller(ctx).FamilyID,
		Title:        req.Title,
		RewardAmount: *req.RewardAmount,
		Description:  req.Description,
		Category:     req.Category,
		Active:       true,
	}
	if err := c.db.WithContext(ctx.Request.Context()).Create(&chore).Error; err != nil {
		utils.Fail(ctx, c.log, fmt.Errorf("create chore: %w", err))
		return
	}
	utils.Created(ctx, chore)
}

// UpdateChore replaces title, reward, description and category. Omitted optional
// fields are cleared.
func (c *ChoreController) UpdateChore(ctx *gin.Context) {
	id, ok := paramID(ctx, "id")
	if !ok {
		utils.Fail(ctx, c.log, utils.ErrChoreNotFound)
		return
	}
	var req choreRequest
	if err := bindJSON(ctx, &req); err != nil {
		utils.Fail(ctx, c.log, err)
		return
	}
	if err := req.validate(); err != nil {
		utils.Fail(ctx, c.log, err)
		return
	}

	c.apply(ctx, id, map[string]interface{}{
		"title":         req.Title,
		"reward_amount": *req.RewardAmount,
		"description":   req.Description,
		"category":      req.Category,
	})
}

// SetChoreStatus archives or restores a chore.
func (c *ChoreController) SetChoreStatus(ctx *gin.Context) {
	id, ok := paramID(ctx, "id")
	if !ok {
		utils.Fail(ctx, c.log, utils.ErrChoreNotFound)
		return
	}
	fields, err := rawFields(ctx)
	if err != nil {
		utils.Fail(ctx, c.log, err)
		return
	}
	var active bool
	raw, present := fields["active"]
	if !present || isNull(raw) || json.Unmarshal(raw, &active) != nil {
		utils.Fail(ctx, c.log, utils.ErrValidation.WithMessage("active must be a boolean"))
		return
	}

	c.apply(ctx, id, map[string]interface{}{"active": active})
}

// apply updates a chore scoped to the caller's family and answers with the new row.
func (c *ChoreController) apply(ctx *gin.Context, id uint, updates map[string]interface{}) {
	familyID := caller(ctx).FamilyID
	db := c.db.WithContext(ctx.Request.Context())

	var chore models.Chore
	if err := db.Where("id = ? AND family_id = ?", id, familyID).First(&chore).Error; err != nil {
		utils.Fail(ctx, c.log, notFound(err, utils.ErrChoreNotFound, "find chore"))
		return
	}
	if err := db.Model(&chore).Updates(updates).Error; err != nil {
		utils.Fail(ctx, c.log, fmt.Errorf("update chore: %w", err))
		return
	}
	if err := db.First(&chore, chore.ID).Error; err != nil {
		utils.Fail(ctx, c.log, notFound(err, utils.ErrChoreNotFound, "reload chore"))
		return
	}
	utils.Success(ctx, chore)
}
