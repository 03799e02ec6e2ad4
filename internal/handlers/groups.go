package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/crlx1q/antimat/internal/service"
)

func (h HandlerSet) ListGroups(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	views, err := h.groupService.List(c.Request.Context(), user.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	now := h.now()
	groups := make([]groupView, 0, len(views))
	for _, v := range views {
		groups = append(groups, h.newGroupView(v, now))
	}
	respond(c, http.StatusOK, "", gin.H{"groups": groups})
}

type createGroupRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h HandlerSet) CreateGroup(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	var req createGroupRequest
	if !h.bindJSON(c, &req) {
		return
	}
	group, err := h.groupService.Create(c.Request.Context(), user.ID, service.CreateGroupInput{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, "Группа создана", gin.H{"group": h.newGroupSummary(group)})
}

type joinGroupRequest struct {
	Code string `json:"code"`
}

func (h HandlerSet) JoinGroup(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	var req joinGroupRequest
	if !h.bindJSON(c, &req) {
		return
	}
	group, err := h.groupService.Join(c.Request.Context(), user.ID, req.Code)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Вы присоединились к группе", gin.H{
		"group": gin.H{"id": group.ID.Hex(), "name": group.Name},
	})
}

func (h HandlerSet) GetGroup(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	view, err := h.groupService.Get(c.Request.Context(), id, user.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "", gin.H{"group": h.newGroupView(view, h.now())})
}

func (h HandlerSet) GroupStats(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	stats, err := h.penaltyService.GroupStats(c.Request.Context(), id, user.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "", gin.H{
		"group":   gin.H{"id": stats.Group.ID.Hex(), "name": stats.Group.Name},
		"members": stats.Members,
		"totals":  stats.Totals,
	})
}

type groupSettingsRequest struct {
	CanMembersAddWords    *bool `json:"canMembersAddWords"`
	CanMembersSeeAllStats *bool `json:"canMembersSeeAllStats"`
	CanMembersForgiveDebt *bool `json:"canMembersForgiveDebt"`
}

func (h HandlerSet) UpdateGroupSettings(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req groupSettingsRequest
	if !h.bindJSON(c, &req) {
		return
	}
	group, err := h.groupService.UpdateSettings(c.Request.Context(), id, user.ID, service.GroupSettingsInput{
		CanMembersAddWords:    req.CanMembersAddWords,
		CanMembersSeeAllStats: req.CanMembersSeeAllStats,
		CanMembersForgiveDebt: req.CanMembersForgiveDebt,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Настройки группы обновлены", gin.H{"group": h.newGroupSummary(group)})
}

type transferRequest struct {
	UserID string `json:"userId"`
}

func (h HandlerSet) TransferOwnership(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req transferRequest
	if !h.bindJSON(c, &req) {
		return
	}
	group, err := h.groupService.TransferOwnership(c.Request.Context(), id, user.ID, req.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Владелец группы изменён", gin.H{"group": h.newGroupSummary(group)})
}

func (h HandlerSet) DeleteGroup(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	if err := h.groupService.Delete(c.Request.Context(), id, user.ID); err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Группа удалена", nil)
}

func (h HandlerSet) LeaveGroup(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	if err := h.groupService.Leave(c.Request.Context(), id, user.ID); err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Вы покинули группу", nil)
}
