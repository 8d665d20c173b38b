package httpapi

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// storeUpload persists a multipart file under the configured upload
// directory following the naming scheme of spec §6.3:
// <uploadDir>/<fieldname>-<epoch>-<rand><ext>, and returns the URL the
// file is served under.
func (s *Server) storeUpload(header *multipart.FileHeader, file multipart.File) (string, error) {
	if err := os.MkdirAll(s.cfg.Upload.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	randSuffix := make([]byte, 6)
	if _, err := rand.Read(randSuffix); err != nil {
		return "", fmt.Errorf("generate upload filename: %w", err)
	}

	ext := filepath.Ext(header.Filename)
	name := "media-" + strconv.FormatInt(time.Now().UnixMilli(), 10) + "-" + hex.EncodeToString(randSuffix) + ext
	dst := filepath.Join(s.cfg.Upload.Dir, name)

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, file); err != nil {
		return "", fmt.Errorf("write upload file: %w", err)
	}

	base := strings.TrimRight(s.cfg.BaseURL, "/")
	return base + "/uploads/" + name, nil
}

// uploadsHandler serves previously stored media files under /uploads/.
func (s *Server) uploadsHandler() http.Handler {
	return http.StripPrefix("/uploads/", http.FileServer(http.Dir(s.cfg.Upload.Dir)))
}
