package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/crlx1q/antimat/internal/service"
)

type adminLoginRequest struct {
	Password string `json:"password"`
}

func (h HandlerSet) AdminLogin(c *gin.Context) {
	var req adminLoginRequest
	if !h.bindJSON(c, &req) {
		return
	}
	token, err := h.adminService.Login(req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Вход выполнен успешно", gin.H{"token": token})
}

func (h HandlerSet) AdminStats(c *gin.Context) {
	stats, err := h.adminService.Stats(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "", gin.H{
		"totalUsers":           stats.TotalUsers,
		"totalGroups":          stats.TotalGroups,
		"activePremium":        stats.ActivePremium,
		"totalPenalties":       stats.TotalPenalties,
		"totalPenaltiesAmount": stats.TotalPenaltiesAmount,
	})
}

func (h HandlerSet) AdminListUsers(c *gin.Context) {
	page, err := h.adminService.ListUsers(
		c.Request.Context(),
		strings.TrimSpace(c.Query("search")),
		queryInt(c, "page", 1),
		queryInt(c, "limit", 50),
	)
	if err != nil {
		h.fail(c, err)
		return
	}
	now := h.now()
	users := make([]adminUserView, 0, len(page.Users))
	for _, u := range page.Users {
		users = append(users, adminUserView{
			userView:     newUserView(u, now),
			LastActiveAt: u.LastActiveAt,
			HasPushToken: u.PushToken() != "",
		})
	}
	respond(c, http.StatusOK, "", gin.H{"users": users, "pagination": page.Pagination})
}

type premiumRequest struct {
	Period string `json:"period"`
}

func (h HandlerSet) AdminGrantPremium(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req premiumRequest
	if !h.bindJSON(c, &req) {
		return
	}
	user, err := h.adminService.GrantPremium(c.Request.Context(), id, req.Period)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "PRO подписка выдана", gin.H{"user": newUserView(user, h.now())})
}

func (h HandlerSet) AdminRevokePremium(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	user, err := h.adminService.RevokePremium(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "PRO подписка отозвана", gin.H{"user": newUserView(user, h.now())})
}

func (h HandlerSet) AdminClearPenalties(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	if err := h.adminService.ClearDebt(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Долг пользователя обнулён", nil)
}

func (h HandlerSet) AdminDeleteUser(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	if err := h.adminService.DeleteAccount(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Пользователь удалён", nil)
}

type pushTestRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

func (h HandlerSet) AdminPushTest(c *gin.Context) {
	var req pushTestRequest
	if !h.bindJSON(c, &req) {
		return
	}
	result, err := h.adminService.PushTest(c.Request.Context(), req.Title, req.Body)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusAccepted, "Тестовое уведомление поставлено в очередь", gin.H{
		"jobId":  result.JobID,
		"tokens": result.Tokens,
	})
}

func (h HandlerSet) AdminListUpdates(c *gin.Context) {
	updates, err := h.updateService.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "", gin.H{"updates": updates})
}

func (h HandlerSet) AdminUploadUpdate(c *gin.Context) {
	if limit := h.cfg.Storage.MaxUpload; limit > 0 {
		// room for the other form fields
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+1<<20)
	}
	header, err := c.FormFile("apk")
	if err != nil {
		h.badRequest(c, "APK файл обязателен")
		return
	}
	file, err := header.Open()
	if err != nil {
		h.badRequest(c, "Ошибка загрузки файла")
		return
	}
	defer file.Close()

	update, err := h.updateService.Upload(c.Request.Context(), service.UploadInput{
		Version:     c.PostForm("version"),
		Title:       c.PostForm("title"),
		Description: c.PostForm("description"),
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, "Обновление загружено", gin.H{"update": update})
}

func (h HandlerSet) AdminDeleteUpdate(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	if err := h.updateService.Delete(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Обновление удалено", nil)
}
