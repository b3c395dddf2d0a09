package service

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const MaxUploadSize = 5 << 20

var allowedImageExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".webp": true, ".gif": true}

type UploadService struct {
	uploader ImageUploader
}

func NewUploadService(uploader ImageUploader) *UploadService {
	return &UploadService{uploader: uploader}
}

// UploadImage stores the image with the image host and returns its public URL.
func (s *UploadService) UploadImage(ctx context.Context, ownerID uuid.UUID, file io.Reader, filename string, size int64) (string, error) {
	if ownerID == uuid.Nil {
		return "", ErrUnauthenticated
	}
	if s.uploader == nil {
		return "", fmt.Errorf("%w: image host is not configured", ErrInvalidUpload)
	}
	if size <= 0 || size > MaxUploadSize {
		return "", fmt.Errorf("%w: file must be between 1 byte and %d bytes", ErrInvalidUpload, MaxUploadSize)
	}
	if !allowedImageExtensions[strings.ToLower(filepath.Ext(filename))] {
		return "", fmt.Errorf("%w: unsupported file type %q", ErrInvalidUpload, filepath.Ext(filename))
	}

	url, err := s.uploader.Upload(ctx, file, filename)
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	return url, nil
}
