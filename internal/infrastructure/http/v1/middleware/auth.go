package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"khmerpos/internal/core/actor"
	"khmerpos/internal/core/apperror"
)

// TokenValidator validates a terminal token and resolves the actor.
type TokenValidator interface {
	ValidateToken(tokenString string) (actor.Context, error)
}

// Auth middleware validates terminal JWTs and populates the actor context.
// Every request downstream carries the (tenant, branch, employee, role)
// tuple the token binds.
func Auth(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			abortUnauthorized(c, "invalid authorization header format")
			return
		}

		act, err := validator.ValidateToken(parts[1])
		if err != nil {
			abortUnauthorized(c, "invalid token")
			return
		}

		ctx := actor.WithContext(c.Request.Context(), act)
		c.Request = c.Request.WithContext(ctx)

		c.Set("tenant_id", act.TenantID.String())
		c.Set("branch_id", act.BranchID.String())

		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, message string) {
	_ = c.Error(apperror.NewUnauthorized(message))
	c.Abort()
}
