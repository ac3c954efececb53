package handler

import (
	"github.com/gin-gonic/gin"

	"literature-manager/internal/app"
	"literature-manager/internal/transport/http/response"
)

type SyncHandler struct {
	sync *app.SyncService
}

func NewSyncHandler(sync *app.SyncService) *SyncHandler {
	return &SyncHandler{sync: sync}
}

func (h *SyncHandler) SyncPaper(c *gin.Context) {
	id, ok := paperID(c)
	if !ok {
		return
	}

	paper, err := h.sync.SyncPaper(c.Request.Context(), id)
	if err != nil {
		writeError(c, err, "sync paper failed")
		return
	}
	response.OK(c, paper)
}

func (h *SyncHandler) SyncAll(c *gin.Context) {
	n, err := h.sync.SyncAll(c.Request.Context())
	if err != nil {
		writeError(c, err, "sync collection failed")
		return
	}
	response.OK(c, gin.H{"count": n})
}

func (h *SyncHandler) Status(c *gin.Context) {
	response.OK(c, h.sync.Status())
}
