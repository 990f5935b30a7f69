package services

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/akinalp/sohbet/models"
	"github.com/akinalp/sohbet/pkg"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UploadURLPrefix, saklanan dosyaların public URL öneki.
const UploadURLPrefix = "/api/uploads/"

// StoredAttachment, diske yazılmış ek dosya.
type StoredAttachment struct {
	URL      string
	Name     string
	Type     models.MediaType
	MimeType string
	Size     int64
}

// AttachmentStore, "binary ek dosyayı sakla ve URL dön" sözleşmesi.
//
// Save, mesaj kalıcı yazılmadan önce çağrılır; mesaj yazımı başarısız olursa
// çağıran Remove ile dosyayı temizler (yetim dosya kalmaz).
type AttachmentStore interface {
	Save(ctx context.Context, file io.Reader, header *multipart.FileHeader) (*StoredAttachment, error)
	Remove(att *StoredAttachment) error
	// Path, indirme için dosya adının disk yolunu döner. Geçersiz ad → pkg.ErrNotFound.
	Path(name string) (string, error)
}

type diskAttachmentStore struct {
	dir     string
	maxSize int64
}

// NewDiskAttachmentStore, constructor. Dizin yoksa oluşturur.
func NewDiskAttachmentStore(dir string, maxSize int64) (AttachmentStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	return &diskAttachmentStore{dir: dir, maxSize: maxSize}, nil
}

// allowedMimeTypes, yüklemeye izin verilen dosya türleri.
var allowedMimeTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/gif":       true,
	"image/webp":      true,
	"image/heic":      true,
	"video/mp4":       true,
	"video/webm":      true,
	"video/quicktime": true,
	"audio/mpeg":      true,
	"audio/ogg":       true,
	"audio/webm":      true,
	"audio/mp4":       true,
	"application/pdf": true,
	"text/plain":      true,
}

// Save, dosyayı doğrular ve diske yazar. Doğrulama hatası ErrBadRequest,
// disk hatası ErrInternal ile sarılır.
func (s *diskAttachmentStore) Save(ctx context.Context, file io.Reader, header *multipart.FileHeader) (*StoredAttachment, error) {
	if header.Size > s.maxSize {
		return nil, fmt.Errorf("%w: file too large (max %dMB)", pkg.ErrBadRequest, s.maxSize/(1024*1024))
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	mimeBase := strings.TrimSpace(strings.Split(contentType, ";")[0])
	if !allowedMimeTypes[mimeBase] {
		return nil, fmt.Errorf("%w: file type not allowed: %s", pkg.ErrBadRequest, mimeBase)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	diskName := uuid.NewString() + "_" + sanitizeFilename(header.Filename)
	destPath := filepath.Join(s.dir, diskName)

	dest, err := os.Create(destPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create file: %v", pkg.ErrInternal, err)
	}

	// Header.Size istemciden gelir; gerçek boyut kopyalanırken sınırlanır.
	written, err := io.Copy(dest, io.LimitReader(file, s.maxSize+1))
	closeErr := dest.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(destPath)
		return nil, fmt.Errorf("%w: failed to save file: %v", pkg.ErrInternal, err)
	}
	if written > s.maxSize {
		os.Remove(destPath)
		return nil, fmt.Errorf("%w: file too large (max %dMB)", pkg.ErrBadRequest, s.maxSize/(1024*1024))
	}

	return &StoredAttachment{
		URL:      UploadURLPrefix + diskName,
		Name:     diskName,
		Type:     models.MediaTypeFromMime(mimeBase),
		MimeType: mimeBase,
		Size:     written,
	}, nil
}

func (s *diskAttachmentStore) Remove(att *StoredAttachment) error {
	if att == nil {
		return nil
	}
	path, err := s.Path(att.Name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		zap.S().Warnw("[upload] failed to remove file", "name", att.Name, "error", err)
		return fmt.Errorf("failed to remove attachment: %w", err)
	}
	return nil
}

func (s *diskAttachmentStore) Path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: attachment not found", pkg.ErrNotFound)
	}
	return filepath.Join(s.dir, name), nil
}

// sanitizeFilename, dosya adını güvenli hale getirir (path traversal, NUL).
func sanitizeFilename(name string) string {
	name = filepath.Base(name)

	name = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == '\x00' {
			return -1
		}
		return r
	}, name)

	if name == "" || name == "." || name == ".." {
		name = "unnamed"
	}

	return name
}

// Upload, handler'ın multipart form'dan çıkardığı tek dosya.
type Upload struct {
	File   io.Reader
	Header *multipart.FileHeader
}
