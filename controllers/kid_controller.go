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

// KidController manages the kids of the caller's family. Parent only.
type KidController struct {
	db        *gorm.DB
	hasher    *utils.CodeHasher
	codeBytes int
	log       *zap.Logger
}

func NewKidController(db *gorm.DB, hasher *utils.CodeHasher, codeBytes int, log *zap.Logger) *KidController {
	return &KidController{db: db, hasher: hasher, codeBytes: codeBytes, log: log}
}

// ListKids returns the family's kids ordered by name.
func (k *KidController) ListKids(ctx *gin.Context) {
	me := caller(ctx)
	kids := []models.Kid{}
	if err := k.db.WithContext(ctx.Request.Context()).
		Where("family_id = ?", me.FamilyID).
		Order("name").Order("id").
		Find(&kids).Error; err != nil {
		utils.Fail(ctx, k.log, fmt.Errorf("list kids: %w", err))
		return
	}
	utils.Success(ctx, gin.H{"kids": kids})
}

// CreateKid adds a kid and returns its login code. The code is not retrievable later.
func (k *KidController) CreateKid(ctx *gin.Context) {
	type request struct {
		Name       string           `json:"name"`
		AvatarURL  *string          `json:"avatarUrl"`
		GoalAmount *decimal.Decimal `json:"goalAmount"`
	}

	var req request
	if err := bindJSON(ctx, &req); err != nil {
		utils.Fail(ctx, k.log, err)
		return
	}
	name := utils.CleanText(req.Name)
	if name == "" {
		utils.Fail(ctx, k.log, utils.ErrValidation.WithMessage("name is required"))
		return
	}

	loginCode, err := utils.GenerateLoginCode(models.PrefixKid, k.codeBytes)
	if err != nil {
		utils.Fail(ctx, k.log, fmt.Errorf("generate kid code: %w", err))
		return
	}

	kid := models.Kid{
		FamilyID:   caller(ctx).FamilyID,
		Name:       name,
		LoginCode:  k.hasher.Hash(loginCode),
		AvatarURL:  utils.CleanOptional(req.AvatarURL),
		GoalAmount: req.GoalAmount,
	}
	if err := k.db.WithContext(ctx.Request.Context()).Create(&kid).Error; err != nil {
		utils.Fail(ctx, k.log, fmt.Errorf("create kid: %w", err))
		return
	}

	utils.Created(ctx, gin.H{
		"id":         kid.ID,
		"name":       kid.Name,
		"loginCode":  loginCode,
		"avatarUrl":  kid.AvatarURL,
		"goalAmount": kid.GoalAmount,
	})
}

// UpdateKid applies only the keys present in the body.
func (k *KidController) UpdateKid(ctx *gin.Context) {
	id, ok := paramID(ctx, "id")
	if !ok {
		utils.Fail(ctx, k.log, utils.ErrKidNotFound)
		return
	}
	fields, err := rawFields(ctx)
	if err != nil {
		utils.Fail(ctx, k.log, err)
		return
	}

	updates := map[string]interface{}{}
	if raw, ok := fields["name"]; ok {
		var name string
		if !isNull(raw) {
			if err := json.Unmarshal(raw, &name); err != nil {
				utils.Fail(ctx, k.log, utils.ErrValidation.WithMessage("name must be a string"))
				return
			}
		}
		name = utils.CleanText(name)
		if name == "" {
			utils.Fail(ctx, k.log, utils.ErrValidation.WithMessage("name cannot be empty"))
			return
		}
		updates["name"] = name
	}
	if raw, ok := fields["goalAmount"]; ok {
		amount, err := decodeAmount(raw)
		if err != nil {
			utils.Fail(ctx, k.log, err)
			return
		}
		updates["goal_amount"] = amount
	}
	if raw, ok := fields["avatarUrl"]; ok {
		var avatar *string
		if err := json.Unmarshal(raw, &avatar); err != nil {
			utils.Fail(ctx, k.log, utils.ErrValidation.WithMessage("avatarUrl must be a string"))
			return
		}
		updates["avatar_url"] = utils.CleanOptional(avatar)
	}
	if len(updates) == 0 {
		utils.Fail(ctx, k.log, utils.ErrValidation.WithMessage("no updates provided"))
		return
	}

	familyID := caller(ctx).FamilyID
	db := k.db.WithContext(ctx.Request.Context())
	res := db.Model(&models.Kid{}).Where("id = ? AND family_id = ?", id, familyID).Updates(updates)
	if res.Error != nil {
		utils.Fail(ctx, k.log, fmt.Errorf("update kid: %w", res.Error))
		return
	}

	var kid models.Kid
	if err := db.Where("id = ? AND family_id = ?", id, familyID).First(&kid).Error; err != nil {
		utils.Fail(ctx, k.log, notFound(err, utils.ErrKidNotFound, "reload kid"))
		return
	}
	utils.Success(ctx, kid)
}
