package upload

import (
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/anurag-sv/bazaar-api/internal/common"
)

const maxUploadBytes = 10 << 20

var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

// Handler accepts admin image uploads.
type Handler struct {
	Storage *SupabaseStorage
	Log     zerolog.Logger
}

// Create handles POST /admin/uploads. The multipart field is named "file";
// the object key is randomised so uploads never collide.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "file too large or malformed form", nil)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "a file field is required", nil)
		return
	}
	defer file.Close()

	ext := strings.ToLower(path.Ext(header.Filename))
	if !allowedExtensions[ext] {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION",
			"only jpg, jpeg, png, and webp files are accepted", nil)
		return
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	objectPath := fmt.Sprintf("products/%s%s", uuid.NewString(), ext)
	url, err := h.Storage.Upload(r.Context(), objectPath, contentType, file)
	if err != nil {
		h.Log.Error().Err(err).Msg("image upload failed")
		common.JSONError(w, http.StatusBadGateway, "UPLOAD_FAILED", "image upload failed", nil)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"url": url})
}
