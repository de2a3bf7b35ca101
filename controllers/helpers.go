package controllers

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/kcbuddy/kcbuddy/middleware"
	"github.com/kcbuddy/kcbuddy/utils"
)

// caller returns the identity RequireAuth stored. Routes behind RequireAuth always have one.
func caller(ctx *gin.Context) utils.Identity {
	identity, _ := middleware.CurrentIdentity(ctx)
	return identity
}

// paramID parses a positive numeric path parameter.
func paramID(ctx *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(strings.TrimSpace(ctx.Param(name)), 10, 64)
	if err != nil || v == 0 {
		return 0, false
	}
	return uint(v), true
}

// bindJSON decodes the body into req, mapping any failure to a validation error.
func bindJSON(ctx *gin.Context, req interface{}) error {
	if err := ctx.ShouldBindJSON(req); err != nil {
		return utils.ErrValidation
	}
	return nil
}

// rawFields decodes a JSON object body keeping raw values so handlers can tell
// an absent key from an explicit null.
func rawFields(ctx *gin.Context) (map[string]json.RawMessage, error) {
	body, err := ctx.GetRawData()
	if err != nil {
		return nil, utils.ErrValidation
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		return nil, utils.ErrValidation
	}
	return fields, nil
}

func isNull(raw json.RawMessage) bool {
	return strings.TrimSpace(string(raw)) == "null"
}

// decodeAmount reads a money value sent either as a JSON number or a numeric string.
func decodeAmount(raw json.RawMessage) (*decimal.Decimal, error) {
	if isNull(raw) {
		return nil, nil
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(raw); err != nil {
		return nil, utils.ErrValidation.WithMessage("amount must be a number")
	}
	return &d, nil
}

// notFound turns gorm's missing-row error into the given AppError and wraps everything else.
func notFound(err error, as *utils.AppError, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return as
	}
	return fmt.Errorf("%s: %w", op, err)
}
