package utils

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"nutrilog/apperr"
)

// UploadPolicy bounds what the segment endpoint accepts.
type UploadPolicy struct {
	Dir      string
	MaxBytes int64
}

// UploadedImage is a request-scoped file on local disk.
type UploadedImage struct {
	Path         string
	ContentType  string
	OriginalName string
	Size         int64
}

// Cleanup removes the stored file. Missing files are not an error.
func (u *UploadedImage) Cleanup() error {
	if u == nil || u.Path == "" {
		return nil
	}
	if err := os.Remove(u.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove upload %s: %w", u.Path, err)
	}
	return nil
}

// SaveImage validates fh and writes it under p.Dir with a generated unique name.
// Callers own the returned file and must Cleanup it.
func SaveImage(fh *multipart.FileHeader, p UploadPolicy) (*UploadedImage, error) {
	if fh == nil {
		return nil, apperr.Validation("image file is required (form field 'image')")
	}
	contentType := fh.Header.Get("Content-Type")
	if !strings.HasPrefix(strings.ToLower(contentType), "image/") {
		return nil, apperr.Validation("uploaded file must be an image, got %q", contentType)
	}
	if p.MaxBytes > 0 && fh.Size > p.MaxBytes {
		return nil, apperr.Validation("image too large (max %d MB)", p.MaxBytes>>20)
	}

	if err := os.MkdirAll(p.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}

	src, err := fh.Open()
	if err != nil {
		return nil, apperr.Validation("failed to open uploaded file")
	}
	defer src.Close()

	name := fmt.Sprintf("%d-%s%s", time.Now().UnixNano(), uuid.NewString()[:8], extensionFor(fh.Filename, contentType))
	path := filepath.Join(p.Dir, name)

	dst, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload file: %w", err)
	}
	img := &UploadedImage{Path: path, ContentType: contentType, OriginalName: fh.Filename}

	// Read one byte past the ceiling so a lying Size header is still caught.
	limit := p.MaxBytes
	if limit <= 0 {
		limit = fh.Size
	}
	n, err := io.Copy(dst, io.LimitReader(src, limit+1))
	closeErr := dst.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = img.Cleanup()
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}
	if p.MaxBytes > 0 && n > p.MaxBytes {
		_ = img.Cleanup()
		return nil, apperr.Validation("image too large (max %d MB)", p.MaxBytes>>20)
	}
	img.Size = n
	return img, nil
}

func extensionFor(filename, contentType string) string {
	if ext := strings.ToLower(filepath.Ext(filename)); ext != "" {
		return ext
	}
	switch ct := strings.SplitN(contentType, ";", 2)[0]; ct {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	default:
		if exts, _ := mime.ExtensionsByType(ct); len(exts) > 0 {
			return exts[0]
		}
		if parts := strings.SplitN(ct, "/", 2); len(parts) == 2 {
			return "." + parts[1]
		}
	}
	return ""
}
