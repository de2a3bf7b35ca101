package controllers

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/kcbuddy/kcbuddy/models"
	"github.com/kcbuddy/kcbuddy/utils"
)

// MailSender accepts outbound mail without blocking the request.
type MailSender interface {
	Enqueue(msg utils.Message) bool
}

// AuthController handles family registration and code login.
type AuthController struct {
	db          *gorm.DB
	issuer      *utils.TokenIssuer
	hasher      *utils.CodeHasher
	codeLimiter utils.Limiter
	mail        MailSender
	codeBytes   int
	log         *zap.Logger
}

// NewAuthController creates an AuthController. codeLimiter throttles attempts per
// submitted code and is applied before any hashing.
func NewAuthController(db *gorm.DB, issuer *utils.TokenIssuer, hasher *utils.CodeHasher, codeLimiter utils.Limiter, mail MailSender, codeBytes int, log *zap.Logger) *AuthController {
	return &AuthController{
		db:          db,
		issuer:      issuer,
		hasher:      hasher,
		codeLimiter: codeLimiter,
		mail:        mail,
		codeBytes:   codeBytes,
		log:         log,
	}
}

// Register creates a family and its first parent, and returns the parent's
// login code. The code is shown once and only its digest is stored.
func (a *AuthController) Register(ctx *gin.Context) {
	type request struct {
		FamilyName string `json:"familyName" binding:"required"`
		ParentName string `json:"parentName" binding:"required"`
		Email      string `json:"email" binding:"required,email"`
	}

	var req request
	if err := bindJSON(ctx, &req); err != nil {
		utils.Fail(ctx, a.log, utils.ErrValidation.WithMessage("familyName, parentName and a valid email are required"))
		return
	}

	familyName := utils.CleanText(req.FamilyName)
	parentName := utils.CleanText(req.ParentName)
	email := strings.TrimSpace(req.Email)
	if familyName == "" || parentName == "" {
		utils.Fail(ctx, a.log, utils.ErrValidation.WithMessage("familyName and parentName are required"))
		return
	}

	familyCode, err := utils.GenerateLoginCode(models.PrefixFamily, a.codeBytes)
	if err != nil {
		utils.Fail(ctx, a.log, fmt.Errorf("generate family code: %w", err))
		return
	}
	parentCode, err := utils.GenerateLoginCode(models.PrefixParent, a.codeBytes)
	if err != nil {
		utils.Fail(ctx, a.log, fmt.Errorf("generate parent code: %w", err))
		return
	}

	family := models.Family{Name: familyName, FamilyCode: familyCode}
	parent := models.Parent{Name: parentName, Email: email, LoginCode: a.hasher.Hash(parentCode)}

	err = a.db.WithContext(ctx.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&family).Error; err != nil {
			return err
		}
		parent.FamilyID = family.ID
		return tx.Create(&parent).Error
	})
	if err != nil {
		a.log.Error("family registration failed", zap.Error(err))
		utils.Fail(ctx, a.log, utils.ErrRegistrationFailed)
		return
	}

	token, err := a.issuer.Issue(utils.Identity{Role: models.RoleParent, FamilyID: family.ID, UserID: parent.ID})
	if err != nil {
		utils.Fail(ctx, a.log, fmt.Errorf("issue parent token: %w", err))
		return
	}

	if a.mail != nil {
		a.mail.Enqueue(utils.WelcomeMessage(email, familyName, familyCode, parentName, parentCode))
	}

	utils.Created(ctx, gin.H{
		"token": token,
		"family": gin.H{
			"id":         family.ID,
			"name":       family.Name,
			"familyCode": family.FamilyCode,
		},
		"parent": gin.H{
			"id":        parent.ID,
			"name":      parent.Name,
			"loginCode": parentCode,
		},
	})
}

// CodeLogin exchanges a parent or kid login code for a role token. Parents are
// matched first. Unknown codes all get the same 401.
func (a *AuthController) CodeLogin(ctx *gin.Context) {
	type request struct {
		Code interface{} `json:"code"`
	}

	var req request
	if err := bindJSON(ctx, &req); err != nil {
		utils.Fail(ctx, a.log, utils.ErrValidation.WithMessage("code is required"))
		return
	}
	code := utils.NormalizeLoginCode(req.Code)
	if code == "" {
		utils.Fail(ctx, a.log, utils.ErrValidation.WithMessage("code is required"))
		return
	}

	if a.codeLimiter != nil {
		allowed, err := a.codeLimiter.Allow(ctx.Request.Context(), code)
		if err != nil {
			a.log.Warn("code limiter unavailable, allowing request", zap.Error(err))
		}
		if !allowed {
			utils.Fail(ctx, a.log, utils.ErrRateLimited)
			return
		}
	}

	digest := a.hasher.Hash(code)
	db := a.db.WithContext(ctx.Request.Context())

	var parents []models.Parent
	if err := db.Where("login_code = ?", digest).Limit(1).Find(&parents).Error; err != nil {
		utils.Fail(ctx, a.log, fmt.Errorf("lookup parent code: %w", err))
		return
	}
	if len(parents) > 0 {
		parent := parents[0]
		token, err := a.issuer.Issue(utils.Identity{Role: models.RoleParent, FamilyID: parent.FamilyID, UserID: parent.ID})
		if err != nil {
			utils.Fail(ctx, a.log, fmt.Errorf("issue parent token: %w", err))
			return
		}
		utils.Success(ctx, gin.H{
			"token": token,
			"role":  models.RoleParent,
			"user":  gin.H{"id": parent.ID, "name": parent.Name},
		})
		return
	}

	var kids []models.Kid
	if err := db.Where("login_code = ?", digest).Limit(1).Find(&kids).Error; err != nil {
		utils.Fail(ctx, a.log, fmt.Errorf("lookup kid code: %w", err))
		return
	}
	if len(kids) > 0 {
		kid := kids[0]
		token, err := a.issuer.Issue(utils.Identity{Role: models.RoleKid, FamilyID: kid.FamilyID, UserID: kid.ID})
		if err != nil {
			utils.Fail(ctx, a.log, fmt.Errorf("issue kid token: %w", err))
			return
		}
		utils.Success(ctx, gin.H{
			"token": token,
			"role":  models.RoleKid,
			"user": gin.H{
				"id":         kid.ID,
				"name":       kid.Name,
				"goalAmount": kid.GoalAmount,
				"avatarUrl":  kid.AvatarURL,
			},
		})
		return
	}

	utils.Fail(ctx, a.log, utils.ErrInvalidCode)
}
