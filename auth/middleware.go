package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

func (a *Auth) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		authHeader := ctx.GetHeader("Authorization")
		if authHeader == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization is not found!"})
			return
		}

		// verify token
		token := strings.TrimPrefix(authHeader, "Bearer ")
		account, err := a.VerifyJWT(token)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		// check on redis
		known, err := a.tokenKnown(ctx.Request.Context(), token)
		if err != nil || !known {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token expired or not found"})
			return
		}

		ctx.Set("jwt_token", token)
		ctx.Set("account_id", account)
		ctx.Next()
	}
}
