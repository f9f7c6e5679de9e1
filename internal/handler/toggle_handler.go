package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/doguto/nari-note-sub000/internal/response"
	"github.com/doguto/nari-note-sub000/internal/service"
)

// ToggleHandler exposes one ToggleService as POST /{collection}/{id}/{action}.
type ToggleHandler struct {
	svc *service.ToggleService
	log *zap.Logger
}

func NewToggleHandler(svc *service.ToggleService, log *zap.Logger) *ToggleHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ToggleHandler{svc: svc, log: log}
}

func (h *ToggleHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	targetID, err := pathID(r)
	if err != nil {
		response.Error(w, r, h.log, err)
		return
	}

	res, err := h.svc.Toggle(r.Context(), id.UserID, targetID)
	if err != nil {
		response.Error(w, r, h.log, err)
		return
	}
	response.JSON(w, http.StatusOK, res)
}
