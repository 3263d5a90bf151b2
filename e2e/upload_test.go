package e2e

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"testing"

	"github.com/google/uuid"
)

// buildUpload constructs a multipart recording upload request body.
func buildUpload(t *testing.T, sessionID, fileName, contentType string, payload []byte) (string, *bytes.Buffer) {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if sessionID != "" {
		if err := w.WriteField("sessionId", sessionID); err != nil {
			t.Fatalf("failed to write field: %v", err)
		}
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+fileName+`"`)
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := part.Write(payload); err != nil {
		t.Fatalf("failed to write file payload: %v", err)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}
	return w.FormDataContentType(), &buf
}

func doUpload(t *testing.T, ta *testApp, sessionID, fileName, contentType string, payload []byte) *http.Response {
	t.Helper()

	formContentType, body := buildUpload(t, sessionID, fileName, contentType, payload)
	req, err := http.NewRequest(http.MethodPost, "/api/pipeline/upload", body)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", formContentType)
	req.Header.Set("X-Service-Token", testServiceToken)
	req.Header.Set("X-Caller-Id", "e2e-tests")

	resp, err := ta.app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func TestUploadRecording_Success(t *testing.T) {
	ta := setupApp(t)

	sessionID := uuid.New().String()
	resp := doUpload(t, ta, sessionID, "recording.mp4", "video/mp4", []byte("fake-video-bytes"))

	assertStatus(t, resp, http.StatusAccepted)

	result := parseJSON(t, resp)
	if result["jobId"] == nil || result["jobId"] == "" {
		t.Error("expected 'jobId' in response")
	}
	rawKey, _ := result["rawAssetKey"].(string)
	if !strings.HasPrefix(rawKey, "sessions/"+sessionID+"/raw/") {
		t.Errorf("expected raw asset key under session prefix, got %q", rawKey)
	}
}

func TestUploadRecording_ProvisionalPrefix(t *testing.T) {
	ta := setupApp(t)

	resp := doUpload(t, ta, "1750991604496", "recording.mp4", "video/mp4", []byte("fake-video-bytes"))

	assertStatus(t, resp, http.StatusAccepted)

	result := parseJSON(t, resp)
	rawKey, _ := result["rawAssetKey"].(string)
	if !strings.HasPrefix(rawKey, "pending/1750991604496/raw/") {
		t.Errorf("expected raw asset key under pending prefix, got %q", rawKey)
	}
}

func TestUploadRecording_MissingSession(t *testing.T) {
	ta := setupApp(t)

	resp := doUpload(t, ta, "", "recording.mp4", "video/mp4", []byte("fake-video-bytes"))

	assertStatus(t, resp, http.StatusBadRequest)
}

func TestUploadRecording_InvalidType(t *testing.T) {
	ta := setupApp(t)

	resp := doUpload(t, ta, uuid.New().String(), "notes.txt", "text/plain", []byte("not a video"))

	assertStatus(t, resp, http.StatusBadRequest)

	result := parseJSON(t, resp)
	errObj := result["error"].(map[string]interface{})
	if errObj["code"] != "VALIDATION_ERROR" {
		t.Errorf("expected error code VALIDATION_ERROR, got %v", errObj["code"])
	}
}
