package utils

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AppError is a request-terminal failure with its HTTP mapping.
type AppError struct {
	Status  int
	Code    int
	Message string
}

func (e *AppError) Error() string {
	return e.Message
}

// WithMessage copies e with a more specific client message, keeping status and code.
func (e *AppError) WithMessage(msg string) *AppError {
	return &AppError{Status: e.Status, Code: e.Code, Message: msg}
}

// Is matches on code so wrapped copies made by WithMessage still compare equal.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrValidation         = &AppError{Status: http.StatusBadRequest, Code: 40001, Message: "invalid request payload"}
	ErrInvalidPhoto       = &AppError{Status: http.StatusBadRequest, Code: 40010, Message: "photoUrl must be from approved storage"}
	ErrInvalidUpload      = &AppError{Status: http.StatusBadRequest, Code: 40011, Message: "only jpeg, png, webp, or gif images are allowed"}
	ErrPhotoTooLarge      = &AppError{Status: http.StatusBadRequest, Code: 40012, Message: "photo exceeds the upload size limit"}
	ErrUnauthenticated    = &AppError{Status: http.StatusUnauthorized, Code: 40101, Message: "unauthenticated"}
	ErrInvalidCode        = &AppError{Status: http.StatusUnauthorized, Code: 40110, Message: "invalid code"}
	ErrForbidden          = &AppError{Status: http.StatusForbidden, Code: 40301, Message: "forbidden"}
	ErrNotFound           = &AppError{Status: http.StatusNotFound, Code: 40400, Message: "not found"}
	ErrKidNotFound        = &AppError{Status: http.StatusNotFound, Code: 40401, Message: "kid not found"}
	ErrChoreNotFound      = &AppError{Status: http.StatusNotFound, Code: 40402, Message: "chore not found"}
	ErrSubmissionNotFound = &AppError{Status: http.StatusNotFound, Code: 40403, Message: "submission not found"}
	ErrRateLimited        = &AppError{Status: http.StatusTooManyRequests, Code: 42901, Message: "rate limit exceeded"}
	ErrInternal           = &AppError{Status: http.StatusInternalServerError, Code: 50000, Message: "internal server error"}
	ErrRegistrationFailed = &AppError{Status: http.StatusInternalServerError, Code: 50010, Message: "unable to register family"}
	ErrUploadFailed       = &AppError{Status: http.StatusInternalServerError, Code: 50020, Message: "unable to save upload"}
	ErrPresignFailed      = &AppError{Status: http.StatusInternalServerError, Code: 50021, Message: "unable to create upload URL"}
)

// Fail writes the envelope for err and aborts the chain. Errors that are not
// AppErrors are logged and surface as a plain 500.
func Fail(ctx *gin.Context, log *zap.Logger, err error) {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		appErr = ErrInternal
	}
	if appErr.Status >= http.StatusInternalServerError && log != nil {
		log.Error("request failed",
			zap.String("method", ctx.Request.Method),
			zap.String("path", ctx.FullPath()),
			zap.Error(err),
		)
	}
	Error(ctx, appErr.Status, appErr.Code, appErr.Message)
	ctx.Abort()
}
