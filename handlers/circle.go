package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/akinalp/sohbet/models"
	"github.com/akinalp/sohbet/pkg"
	"github.com/akinalp/sohbet/services"
)

// CircleHandler, circle endpoint'lerini yönetir.
type CircleHandler struct {
	circleService services.CircleService
	maxUploadSize int64
}

// NewCircleHandler, constructor.
func NewCircleHandler(circleService services.CircleService, maxUploadSize int64) *CircleHandler {
	return &CircleHandler{
		circleService: circleService,
		maxUploadSize: maxUploadSize,
	}
}

// Create godoc
// POST /api/circles
// Body: { "name", "description", "visibility": "public|private", "join_key", "theme" }
func (h *CircleHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req models.CreateCircleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	circle, err := h.circleService.Create(r.Context(), user.ID, &req)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusCreated, circle)
}

// List godoc
// GET /api/circles
func (h *CircleHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	circles, err := h.circleService.List(r.Context(), user.ID)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, circles)
}

// Get godoc
// GET /api/circles/{id}
func (h *CircleHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	details, err := h.circleService.Get(r.Context(), user.ID, r.PathValue("id"))
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, details)
}

// Delete godoc
// DELETE /api/circles/{id}
func (h *CircleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	if err := h.circleService.Delete(r.Context(), user.ID, r.PathValue("id")); err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, map[string]string{"message": "circle deleted"})
}

// Join godoc
// POST /api/circles/{id}/join
// Body (opsiyonel): { "join_key": "abcd" }
func (h *CircleHandler) Join(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req models.JoinCircleRequest
	// Public circle için body gönderilmeyebilir.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.circleService.Join(r.Context(), user.ID, r.PathValue("id"), req.JoinKey)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, result)
}

// Leave godoc
// POST /api/circles/{id}/leave
func (h *CircleHandler) Leave(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	result, err := h.circleService.Leave(r.Context(), user.ID, r.PathValue("id"))
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, result)
}

// TransferOwnership godoc
// POST /api/circles/{id}/transfer
// Body: { "member_id": "..." }
func (h *CircleHandler) TransferOwnership(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req models.TransferOwnershipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.circleService.TransferOwnership(r.Context(), user.ID, r.PathValue("id"), req.MemberID); err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, map[string]string{"message": "ownership transferred"})
}

// RemoveMember godoc
// DELETE /api/circles/{id}/members/{userId}
func (h *CircleHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	if err := h.circleService.RemoveMember(r.Context(), user.ID, r.PathValue("id"), r.PathValue("userId")); err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, map[string]string{"message": "member removed"})
}

// TogglePin godoc
// POST /api/circles/{id}/pin
func (h *CircleHandler) TogglePin(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	pinned, err := h.circleService.TogglePin(r.Context(), user.ID, r.PathValue("id"))
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, map[string]bool{"is_pinned": pinned})
}

// GetMessages godoc
// GET /api/circles/{id}/messages?page=1&limit=30
func (h *CircleHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	page, err := h.circleService.GetMessages(r.Context(), user.ID, r.PathValue("id"),
		queryInt(r, "page", 1), queryInt(r, "limit", services.DefaultCircleMessageLimit))
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, page)
}

// PostMessage godoc
// POST /api/circles/{id}/messages
// JSON { "text" } veya multipart ("text" + "file").
func (h *CircleHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req models.PostCircleMessageRequest
	var upload *services.Upload

	if isMultipart(r.Header.Get("Content-Type")) {
		u, closeUpload, err := parseUpload(w, r, h.maxUploadSize)
		defer closeUpload()
		if err != nil {
			pkg.ErrorWithMessage(w, http.StatusBadRequest, "failed to parse multipart form")
			return
		}
		upload = u
		req.Text = r.FormValue("text")
	} else {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			pkg.ErrorWithMessage(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	msg, err := h.circleService.PostMessage(r.Context(), user.ID, r.PathValue("id"), &req, upload)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusCreated, msg)
}
