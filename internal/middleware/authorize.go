package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/crlx1q/antimat/internal/security"
)

// RequireAdmin accepts only tokens issued by the admin login. A valid token
// without the admin flag is rejected with 403.
func RequireAdmin(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, ok := bearerToken(c)
		if !ok {
			abort(c, http.StatusUnauthorized, "missing_token", "Требуется авторизация")
			return
		}

		claims, err := security.ParseAdminToken(tokenStr, secret)
		if err != nil {
			if errors.Is(err, security.ErrNotAdmin) {
				abort(c, http.StatusForbidden, "forbidden", "Доступ запрещён")
				return
			}
			code, message := tokenFailure(err)
			abort(c, http.StatusUnauthorized, code, message)
			return
		}

		c.Set(adminClaimsKey, *claims)
		c.Next()
	}
}
