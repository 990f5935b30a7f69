package handlers

import (
	"net/http"

	"github.com/akinalp/sohbet/pkg"
	"github.com/akinalp/sohbet/services"
)

// UploadHandler, saklanan ek dosyaları sunar.
type UploadHandler struct {
	store services.AttachmentStore
}

// NewUploadHandler, constructor.
func NewUploadHandler(store services.AttachmentStore) *UploadHandler {
	return &UploadHandler{store: store}
}

// Serve godoc
// GET /api/uploads/{file}
// Sadece düz dosya adları kabul edilir; alt dizin ve gizli dosyalar 404.
func (h *UploadHandler) Serve(w http.ResponseWriter, r *http.Request) {
	path, err := h.store.Path(r.PathValue("file"))
	if err != nil {
		pkg.Error(w, err)
		return
	}
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeFile(w, r, path)
}
