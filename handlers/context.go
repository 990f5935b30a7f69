// Package handlers, HTTP endpoint'lerini barındırır.
//
// Handler'lar ince tutulur: request'i parse eder, service'i çağırır ve
// pkg.JSON / pkg.Error ile standart zarfı yazar. İş kuralları service'tedir.
package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/akinalp/sohbet/models"
	"github.com/akinalp/sohbet/pkg"
	"github.com/akinalp/sohbet/services"
)

// contextKey, context'te değer taşımak için özel key tipi.
// String key kullanmak başka paketlerle çakışmaya neden olabilir.
type contextKey string

// UserContextKey, auth middleware'ın doğruladığı kullanıcıyı taşır (*models.User).
const UserContextKey contextKey = "user"

// currentUser, context'teki kullanıcıyı döner; yoksa 401 yazar.
func currentUser(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	user, ok := r.Context().Value(UserContextKey).(*models.User)
	if !ok {
		pkg.ErrorWithMessage(w, http.StatusUnauthorized, "user not found in context")
		return nil, false
	}
	return user, true
}

// queryInt, query parametresini int olarak okur; yoksa veya bozuksa def.
// Sınırlar service katmanında uygulanır.
func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func isMultipart(contentType string) bool {
	return strings.HasPrefix(contentType, "multipart/form-data")
}

// multipartMemory, ParseMultipartForm'un RAM'de tutacağı üst sınır;
// fazlası geçici dosyaya yazılır.
const multipartMemory = 8 << 20

// parseUpload, multipart form'u parse eder ve varsa "file" alanını döner.
// Dönen close fonksiyonu dosyayı kapatır ve geçici dosyaları temizler.
func parseUpload(w http.ResponseWriter, r *http.Request, maxUploadSize int64) (*services.Upload, func(), error) {
	// Form alanları için 1MB pay.
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize+1<<20)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, func() {}, err
	}

	cleanup := func() {
		if r.MultipartForm != nil {
			r.MultipartForm.RemoveAll()
		}
	}

	if r.MultipartForm == nil || len(r.MultipartForm.File["file"]) == 0 {
		return nil, cleanup, nil
	}

	header := r.MultipartForm.File["file"][0]
	file, err := header.Open()
	if err != nil {
		return nil, cleanup, err
	}
	return &services.Upload{File: file, Header: header}, func() {
		file.Close()
		cleanup()
	}, nil
}
