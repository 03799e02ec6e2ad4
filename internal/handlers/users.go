package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/crlx1q/antimat/internal/service"
)

func (h HandlerSet) GetProfile(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	profile, err := h.userService.Profile(c.Request.Context(), user.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	groups := make([]groupView, 0, len(profile.Groups))
	for _, g := range profile.Groups {
		groups = append(groups, h.newGroupSummary(g))
	}
	respond(c, http.StatusOK, "", gin.H{
		"user":   newUserView(profile.User, h.now()),
		"groups": groups,
	})
}

type profileRequest struct {
	Name   *string `json:"name"`
	Avatar *string `json:"avatar"`
}

func (h HandlerSet) UpdateProfile(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	var req profileRequest
	if !h.bindJSON(c, &req) {
		return
	}
	updated, err := h.userService.UpdateProfile(c.Request.Context(), user.ID, service.ProfileInput{
		Name:   req.Name,
		Avatar: req.Avatar,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Профиль обновлён", gin.H{"user": newUserView(updated, h.now())})
}

type settingsRequest struct {
	PenaltyAmount        *int64  `json:"penaltyAmount"`
	Theme                *string `json:"theme"`
	SoundEnabled         *bool   `json:"soundEnabled"`
	NotificationsEnabled *bool   `json:"notificationsEnabled"`
	ContinuousRecording  *bool   `json:"continuousRecording"`
}

func (h HandlerSet) UpdateSettings(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	var req settingsRequest
	if !h.bindJSON(c, &req) {
		return
	}
	updated, err := h.userService.UpdateSettings(c.Request.Context(), user.ID, service.SettingsInput{
		PenaltyAmount:        req.PenaltyAmount,
		Theme:                req.Theme,
		SoundEnabled:         req.SoundEnabled,
		NotificationsEnabled: req.NotificationsEnabled,
		ContinuousRecording:  req.ContinuousRecording,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Настройки обновлены", gin.H{
		"penaltyAmount":          updated.PenaltyAmount,
		"penaltyAmountUpdatedAt": updated.PenaltyAmountUpdatedAt,
		"continuousRecording":    updated.ContinuousRecording,
		"settings":               updated.Settings,
	})
}

type pushTokenRequest struct {
	Token string `json:"fcmToken"`
}

func (h HandlerSet) SavePushToken(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	var req pushTokenRequest
	if !h.bindJSON(c, &req) {
		return
	}
	if err := h.userService.SavePushToken(c.Request.Context(), user.ID, req.Token); err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Push токен сохранён", nil)
}

type pingRequest struct {
	Recording *bool `json:"recording"`
}

func (h HandlerSet) Ping(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	var req pingRequest
	if !h.bindJSON(c, &req) {
		return
	}
	status, err := h.userService.Heartbeat(c.Request.Context(), user.ID, req.Recording)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "", gin.H{"status": status})
}
