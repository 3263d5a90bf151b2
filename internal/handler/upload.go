package handler

import (
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/practicetrack/api/internal/service"
	"github.com/practicetrack/api/pkg/response"
)

const maxUploadSize = 500 * 1024 * 1024 // 500MB

type UploadHandler struct {
	service   *service.PipelineService
	validator *validator.Validate
}

func NewUploadHandler(svc *service.PipelineService, v *validator.Validate) *UploadHandler {
	return &UploadHandler{
		service:   svc,
		validator: v,
	}
}

// Recording handles POST /api/pipeline/upload
func (h *UploadHandler) Recording(c *fiber.Ctx) error {
	sessionID := c.FormValue("sessionId")
	if sessionID == "" {
		return response.ValidationError(c, "sessionId is required", nil)
	}

	file, err := c.FormFile("file")
	if err != nil {
		return response.ValidationError(c, "File is required", nil)
	}

	if file.Size > maxUploadSize {
		return response.ValidationError(c, "File size exceeds 500MB limit", map[string]interface{}{
			"maxSize":  maxUploadSize,
			"fileSize": file.Size,
		})
	}

	contentType := file.Header.Get("Content-Type")
	validTypes := map[string]bool{
		"video/mp4":        true,
		"video/quicktime":  true,
		"video/webm":       true,
		"video/x-matroska": true,
	}

	if !validTypes[contentType] {
		return response.ValidationError(c, "Invalid file type. Supported: MP4, MOV, WebM, MKV", map[string]interface{}{
			"contentType": contentType,
		})
	}

	f, err := file.Open()
	if err != nil {
		return response.ServiceError(c, "Failed to open file")
	}
	defer f.Close()

	result, err := h.service.UploadRecording(c.Context(), sessionID, f, contentType, filepath.Ext(file.Filename))
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, result)
}
