package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/vimo-chat/vimo/internal/auth"
)

const userIDKey = "userID"

// AuthRequired validates the bearer token and stores the caller's user id
// in the request context.
func AuthRequired(tokens *auth.TokenService) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		header := ctx.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		userID, err := tokens.Validate(token)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		ctx.Set(userIDKey, userID)
		ctx.Next()
	}
}
