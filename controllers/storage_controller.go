package controllers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kcbuddy/kcbuddy/storage"
	"github.com/kcbuddy/kcbuddy/utils"
)

// StorageController accepts chore photos from kids.
type StorageController struct {
	store     *storage.LocalStore
	presigner storage.Presigner
	maxBytes  int64
	log       *zap.Logger
}

// NewStorageController creates a StorageController. presigner may be nil when S3
// is not configured; presign requests then fail with 500.
func NewStorageController(store *storage.LocalStore, presigner storage.Presigner, maxBytes int64, log *zap.Logger) *StorageController {
	return &StorageController{store: store, presigner: presigner, maxBytes: maxBytes, log: log}
}

// Upload stores a multipart "photo" on local disk and returns its public path.
func (s *StorageController) Upload(ctx *gin.Context) {
	// Leave headroom for multipart framing; the store enforces the exact limit
	ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, s.maxBytes+1<<20)

	file, header, err := ctx.Request.FormFile("photo")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			utils.Fail(ctx, s.log, utils.ErrPhotoTooLarge)
			return
		}
		utils.Fail(ctx, s.log, utils.ErrValidation.WithMessage("photo is required"))
		return
	}
	defer file.Close()

	if header.Size > s.maxBytes {
		utils.Fail(ctx, s.log, utils.ErrPhotoTooLarge)
		return
	}

	me := caller(ctx)
	photoURL, err := s.store.Save(file, me.FamilyID, me.UserID)
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrTooLarge):
		utils.Fail(ctx, s.log, utils.ErrPhotoTooLarge)
		return
	case errors.Is(err, storage.ErrUnsupportedType), errors.Is(err, storage.ErrEmpty):
		utils.Fail(ctx, s.log, utils.ErrInvalidUpload)
		return
	default:
		s.log.Error("save upload failed", zap.Uint("kid_id", me.UserID), zap.Error(err))
		utils.Fail(ctx, s.log, utils.ErrUploadFailed)
		return
	}

	utils.Created(ctx, gin.H{"photoUrl": photoURL})
}

// Presign returns a short-lived URL the kid can PUT a photo to directly.
func (s *StorageController) Presign(ctx *gin.Context) {
	type request struct {
		ContentType string `json:"contentType"`
	}
	var req request
	if err := bindJSON(ctx, &req); err != nil {
		utils.Fail(ctx, s.log, err)
		return
	}
	contentType := strings.TrimSpace(req.ContentType)
	if contentType == "" {
		utils.Fail(ctx, s.log, utils.ErrValidation.WithMessage("contentType is required"))
		return
	}
	if !storage.AllowedContentType(contentType) {
		utils.Fail(ctx, s.log, utils.ErrInvalidUpload)
		return
	}
	if s.presigner == nil {
		utils.Fail(ctx, s.log, utils.ErrPresignFailed)
		return
	}

	me := caller(ctx)
	upload, err := s.presigner.PresignPut(ctx.Request.Context(), me.FamilyID, me.UserID, contentType)
	if err != nil {
		s.log.Error("presign failed", zap.Uint("kid_id", me.UserID), zap.Error(err))
		utils.Fail(ctx, s.log, utils.ErrPresignFailed)
		return
	}
	utils.Success(ctx, upload)
}
