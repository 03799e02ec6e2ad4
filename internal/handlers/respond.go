package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/crlx1q/antimat/internal/apperr"
	"github.com/crlx1q/antimat/internal/middleware"
	"github.com/crlx1q/antimat/internal/models"
	"github.com/crlx1q/antimat/internal/service"
)

// envelope is the body of every JSON response.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func respond(c *gin.Context, status int, message string, data any) {
	c.JSON(status, envelope{Success: true, Message: message, Data: data})
}

// fail writes err through the apperr taxonomy. Internal errors are logged
// with the request id and answered with a generic message.
func (h HandlerSet) fail(c *gin.Context, err error) {
	e := apperr.From(err)
	if e.Kind == apperr.KindInternal {
		h.log.Error().
			Err(err).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Str("request_id", middleware.GetRequestID(c)).
			Msg("request failed")
	}
	c.AbortWithStatusJSON(e.Kind.Status(), envelope{Success: false, Code: e.Code, Message: e.Message})
}

func (h HandlerSet) badRequest(c *gin.Context, message string) {
	h.fail(c, service.ErrInvalidInput.WithMessage("%s", message))
}

// bindJSON decodes an optional JSON body. An empty body is not an error.
func (h HandlerSet) bindJSON(c *gin.Context, out any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(out); err != nil {
		h.badRequest(c, "Некорректное тело запроса")
		return false
	}
	return true
}

func (h HandlerSet) currentUser(c *gin.Context) (models.User, bool) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, envelope{Success: false, Code: "missing_token", Message: "Требуется авторизация"})
	}
	return user, ok
}

func (h HandlerSet) pathID(c *gin.Context, name string) (primitive.ObjectID, bool) {
	id, err := service.ParseID(c.Param(name))
	if err != nil {
		h.fail(c, err)
		return primitive.NilObjectID, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string, fallback int) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return fallback
	}
	return v
}
