package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/akinalp/sohbet/models"
	"github.com/akinalp/sohbet/pkg"
	"github.com/akinalp/sohbet/services"
)

// ChatHandler, direkt sohbet endpoint'lerini yönetir.
// Tüm route'lar karşı kullanıcının id'si ({targetId}) ile adreslenir.
type ChatHandler struct {
	chatService   services.ChatService
	maxUploadSize int64
}

// NewChatHandler, constructor.
func NewChatHandler(chatService services.ChatService, maxUploadSize int64) *ChatHandler {
	return &ChatHandler{
		chatService:   chatService,
		maxUploadSize: maxUploadSize,
	}
}

// List godoc
// GET /api/chats
func (h *ChatHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	chats, err := h.chatService.ListChats(r.Context(), user.ID)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, chats)
}

// GetMessages godoc
// GET /api/chats/{targetId}/messages?page=1&limit=50
// Sohbet yoksa oluşturulur; çağırana gelen mesajlar okundu işaretlenir.
func (h *ChatHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	page, err := h.chatService.GetMessages(r.Context(), user.ID, r.PathValue("targetId"),
		queryInt(r, "page", 1), queryInt(r, "limit", services.DefaultChatMessageLimit))
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, page)
}

// SendMessage godoc
// POST /api/chats/{targetId}/messages
//
// JSON: { "text": "...", "call_type": "voice", "call_status": "ended", "call_duration": 42 }
// Multipart: "text" alanı + tek "file" alanı.
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req models.SendMessageRequest
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

	msg, err := h.chatService.SendMessage(r.Context(), user.ID, r.PathValue("targetId"), &req, upload)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusCreated, msg)
}

// Block godoc
// POST /api/chats/{targetId}/block
func (h *ChatHandler) Block(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	perms, err := h.chatService.Block(r.Context(), user.ID, r.PathValue("targetId"))
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, perms)
}

// Unblock godoc
// POST /api/chats/{targetId}/unblock
func (h *ChatHandler) Unblock(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	perms, err := h.chatService.Unblock(r.Context(), user.ID, r.PathValue("targetId"))
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, perms)
}

// Hide godoc
// DELETE /api/chats/{targetId}
// Sohbeti sadece çağıranın listesinden kaldırır; veri silinmez.
func (h *ChatHandler) Hide(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	if err := h.chatService.Hide(r.Context(), user.ID, r.PathValue("targetId")); err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, map[string]string{"message": "chat hidden"})
}

// Clear godoc
// POST /api/chats/{targetId}/clear
func (h *ChatHandler) Clear(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	if err := h.chatService.Clear(r.Context(), user.ID, r.PathValue("targetId")); err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, map[string]string{"message": "chat cleared"})
}
