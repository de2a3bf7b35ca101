package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kcbuddy/kcbuddy/utils"
)

// ContextIdentityKey is the key used to store the authenticated caller in Gin context.
const ContextIdentityKey = "identity"

// RequireAuth ensures the request carries a valid bearer token. Every failure
// answers with the same 401 body so callers cannot tell why a token was refused.
func RequireAuth(issuer *utils.TokenIssuer) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		authHeader := ctx.GetHeader("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			utils.Fail(ctx, nil, utils.ErrUnauthenticated)
			return
		}

		tokenString := strings.TrimSpace(parts[1])
		if tokenString == "" {
			utils.Fail(ctx, nil, utils.ErrUnauthenticated)
			return
		}

		identity, err := issuer.Parse(tokenString)
		if err != nil {
			utils.Fail(ctx, nil, utils.ErrUnauthenticated)
			return
		}

		ctx.Set(ContextIdentityKey, identity)
		ctx.Next()
	}
}

// RequireRole lets the request through only when the caller has role.
// It must run after RequireAuth.
func RequireRole(role string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		identity, ok := CurrentIdentity(ctx)
		if !ok {
			utils.Fail(ctx, nil, utils.ErrUnauthenticated)
			return
		}
		if identity.Role != role {
			utils.Fail(ctx, nil, utils.ErrForbidden)
			return
		}
		ctx.Next()
	}
}

// CurrentIdentity returns the caller stored by RequireAuth.
func CurrentIdentity(ctx *gin.Context) (utils.Identity, bool) {
	v, ok := ctx.Get(ContextIdentityKey)
	if !ok {
		return utils.Identity{}, false
	}
	identity, ok := v.(utils.Identity)
	return identity, ok
}
