package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/crlx1q/antimat/internal/service"
)

type wordsResponse struct {
	Words     any  `json:"words"`
	Limit     int  `json:"limit"`
	Count     int  `json:"count"`
	IsPremium bool `json:"isPremium"`
}

func newWordsResponse(l service.WordList) wordsResponse {
	return wordsResponse{Words: l.Words, Limit: l.Limit, Count: l.Count(), IsPremium: l.IsPremium}
}

func (h HandlerSet) ListWords(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	list, err := h.wordService.List(c.Request.Context(), user.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "", newWordsResponse(list))
}

type wordRequest struct {
	Word string `json:"word"`
}

func (h HandlerSet) AddWord(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	var req wordRequest
	if !h.bindJSON(c, &req) {
		return
	}
	word, list, err := h.wordService.Add(c.Request.Context(), user.ID, req.Word)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, "Слово добавлено", gin.H{
		"word":  word,
		"words": newWordsResponse(list).Words,
		"limit": list.Limit,
		"count": list.Count(),
	})
}

func (h HandlerSet) RemoveWord(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	list, err := h.wordService.Remove(c.Request.Context(), user.ID, c.Param("word"))
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Слово удалено", newWordsResponse(list))
}
