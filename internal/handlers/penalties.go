package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/crlx1q/antimat/internal/service"
)

type penaltyRequest struct {
	Word       string   `json:"word"`
	GroupID    string   `json:"groupId"`
	Context    string   `json:"context"`
	Confidence *float64 `json:"confidence"`
}

func (h HandlerSet) AddPenalty(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	var req penaltyRequest
	if !h.bindJSON(c, &req) {
		return
	}
	result, err := h.penaltyService.RecordViolation(c.Request.Context(), user.ID, service.ViolationInput{
		Word:       req.Word,
		GroupID:    req.GroupID,
		Context:    req.Context,
		Confidence: req.Confidence,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	p := result.Penalty
	respond(c, http.StatusCreated, "Штраф добавлен", gin.H{
		"penalty": gin.H{
			"id":           p.ID.Hex(),
			"word":         p.Word,
			"amount":       p.Amount,
			"aiPunishment": p.AIPunishment,
			"detectedAt":   p.DetectedAt,
		},
		"totalDebt": result.TotalDebt,
	})
}

func (h HandlerSet) PenaltyStats(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	period := service.Period(c.DefaultQuery("period", string(service.PeriodAll)))
	stats, err := h.penaltyService.Stats(c.Request.Context(), user.ID, period)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "", gin.H{
		"totalCount":     stats.TotalCount,
		"totalAmount":    stats.TotalAmount,
		"forgivenCount":  stats.ForgivenCount,
		"forgivenAmount": stats.ForgivenAmount,
		"currentDebt":    stats.CurrentDebt,
		"penaltyAmount":  stats.PenaltyAmount,
		"topWords":       stats.TopWords,
		"dailyStats":     stats.Daily,
	})
}

func (h HandlerSet) PenaltyHistory(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	page, err := h.penaltyService.History(
		c.Request.Context(),
		user.ID,
		c.Query("groupId"),
		queryInt(c, "page", 1),
		queryInt(c, "limit", 20),
	)
	if err != nil {
		h.fail(c, err)
		return
	}
	penalties := make([]penaltyView, 0, len(page.Penalties))
	for _, p := range page.Penalties {
		penalties = append(penalties, newPenaltyView(p, page.GroupNames))
	}
	respond(c, http.StatusOK, "", gin.H{
		"penalties":  penalties,
		"pagination": page.Pagination,
	})
}

func (h HandlerSet) ForgivePenalty(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	p, err := h.penaltyService.Forgive(c.Request.Context(), id, user.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Штраф списан", gin.H{"penalty": newPenaltyView(p, nil)})
}
