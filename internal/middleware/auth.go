package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/crlx1q/antimat/internal/models"
	"github.com/crlx1q/antimat/internal/repository"
	"github.com/crlx1q/antimat/internal/security"
)

const (
	currentUserKey = "current_user"
	adminClaimsKey = "admin_claims"
)

type UserLookup interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (models.User, error)
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	return token, token != ""
}

// tokenFailure maps a JWT parse error to the code and message sent to the
// client.
func tokenFailure(err error) (string, string) {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "token_expired", "Срок действия токена истёк"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "malformed_token", "Некорректный токен"
	default:
		return "invalid_token", "Недействительный токен"
	}
}

// Auth verifies the user bearer token and loads the user it names.
func Auth(secret string, users UserLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, ok := bearerToken(c)
		if !ok {
			abort(c, http.StatusUnauthorized, "missing_token", "Требуется авторизация")
			return
		}

		claims, err := security.ParseAccessToken(tokenStr, secret)
		if err != nil {
			code, message := tokenFailure(err)
			abort(c, http.StatusUnauthorized, code, message)
			return
		}

		id, err := primitive.ObjectIDFromHex(claims.UserID)
		if err != nil {
			abort(c, http.StatusUnauthorized, "invalid_token", "Недействительный токен")
			return
		}
		user, err := users.GetByID(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				abort(c, http.StatusUnauthorized, "user_not_found", "Пользователь не найден")
				return
			}
			abort(c, http.StatusInternalServerError, "internal_error", "Внутренняя ошибка сервера")
			return
		}

		c.Set(currentUserKey, user)
		c.Next()
	}
}

// CurrentUser returns the user loaded by Auth.
func CurrentUser(c *gin.Context) (models.User, bool) {
	val, ok := c.Get(currentUserKey)
	if !ok {
		return models.User{}, false
	}
	user, ok := val.(models.User)
	return user, ok
}
