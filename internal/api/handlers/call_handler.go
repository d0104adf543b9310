package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yoockh/callrelay/internal/services"
)

type CallHandler struct {
	svc services.PostCallService
}

func NewCallHandler(svc services.PostCallService) *CallHandler {
	return &CallHandler{svc: svc}
}

func (h *CallHandler) Summary(c *gin.Context) {
	out, err := h.svc.Summary(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *CallHandler) Get(c *gin.Context) {
	rec, err := h.svc.Call(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *CallHandler) Recent(c *gin.Context) {
	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "50"), 10, 64)
	out, err := h.svc.RecentCalls(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": out})
}
