package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/crlx1q/antimat/internal/service"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string   `json:"token"`
	User  userView `json:"user"`
}

func (h HandlerSet) RegisterUser(c *gin.Context) {
	var req registerRequest
	if !h.bindJSON(c, &req) {
		return
	}

	result, err := h.authService.Register(c.Request.Context(), service.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	respond(c, http.StatusCreated, "Регистрация успешна", authResponse{
		Token: result.Token,
		User:  newUserView(result.User, h.now()),
	})
}

func (h HandlerSet) Login(c *gin.Context) {
	var req loginRequest
	if !h.bindJSON(c, &req) {
		return
	}

	result, err := h.authService.Login(c.Request.Context(), service.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	respond(c, http.StatusOK, "Вход выполнен успешно", authResponse{
		Token: result.Token,
		User:  newUserView(result.User, h.now()),
	})
}

func (h HandlerSet) Me(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	respond(c, http.StatusOK, "", gin.H{"user": newUserView(user, h.now())})
}
