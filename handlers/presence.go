package handlers

import (
	"net/http"

	"github.com/akinalp/sohbet/pkg"
	"github.com/akinalp/sohbet/services"
)

// PresenceHandler, kalıcı presence kaydını sunar.
type PresenceHandler struct {
	tracker services.PresenceTracker
}

// NewPresenceHandler, constructor.
func NewPresenceHandler(tracker services.PresenceTracker) *PresenceHandler {
	return &PresenceHandler{tracker: tracker}
}

// Get godoc
// GET /api/users/{id}/presence
func (h *PresenceHandler) Get(w http.ResponseWriter, r *http.Request) {
	if _, ok := currentUser(w, r); !ok {
		return
	}

	presence, err := h.tracker.Snapshot(r.Context(), r.PathValue("id"))
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, presence)
}
