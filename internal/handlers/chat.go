package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

func (h HandlerSet) ListMessages(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	page, err := h.chatService.List(c.Request.Context(), id, user.ID, queryInt(c, "page", 1), queryInt(c, "limit", 0))
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "", gin.H{
		"messages":   newMessageViews(page.Messages),
		"pagination": page.Pagination,
	})
}

// PollMessages holds the request open until new messages arrive. The
// optional timeout query is in seconds and is clamped by the service.
func (h HandlerSet) PollMessages(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	timeout := h.cfg.Chat.PollTimeout
	if secs := queryInt(c, "timeout", 0); secs > 0 {
		timeout = time.Duration(secs) * time.Second
	}

	view, err := h.chatService.Poll(c.Request.Context(), id, user.ID, c.Query("lastMessageId"), timeout)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// client went away; nobody is left to answer
			c.Abort()
			return
		}
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "", gin.H{
		"messages":       newMessageViews(view.Messages),
		"hasNewMessages": view.HasNewMessages,
	})
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

func (h HandlerSet) SendMessage(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req sendMessageRequest
	if !h.bindJSON(c, &req) {
		return
	}
	msg, err := h.chatService.Send(c.Request.Context(), id, user.ID, req.Text)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, "Сообщение отправлено", gin.H{"message": newMessageView(msg)})
}
