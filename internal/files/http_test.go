package files

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/anshikanegi280/pdf-merger/internal/pdf"
)

func multipartRequest(t *testing.T, field, filename string, content []byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	fw, err := writer.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := io.Copy(fw, bytes.NewReader(content)); err != nil {
		t.Fatalf("failed to write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/files", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestUploadHandlerCreatesRecord(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc, _, _ := newTestFileService(t, &stubInspector{info: &pdf.DocumentInfo{Pages: 2}})

	router := gin.New()
	router.POST("/api/files", UploadHandler(svc))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartRequest(t, "file", "input.pdf", pdfBytes()))

	if rec.Code != http.StatusCreated {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if payload["fileId"] == "" || payload["originalName"] != "input.pdf" {
		t.Fatalf("unexpected payload: %v", payload)
	}
	if payload["pages"] != float64(2) {
		t.Fatalf("unexpected pages: %v", payload["pages"])
	}
}

func TestUploadHandlerAcceptsAlternateFieldNames(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc, _, _ := newTestFileService(t, &stubInspector{info: &pdf.DocumentInfo{Pages: 1}})

	router := gin.New()
	router.POST("/api/files", UploadHandler(svc))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartRequest(t, "files[]", "alt.pdf", pdfBytes()))

	if rec.Code != http.StatusCreated {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}
}

func multipartRequestFiles(t *testing.T, field string, names []string, contents [][]byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for i, name := range names {
		fw, err := writer.CreateFormFile(field, name)
		if err != nil {
			t.Fatalf("failed to create form file: %v", err)
		}
		if _, err := io.Copy(fw, bytes.NewReader(contents[i])); err != nil {
			t.Fatalf("failed to write form file: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/files", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestUploadHandlerCreatesRecordPerFile(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc, _, _ := newTestFileService(t, &stubInspector{info: &pdf.DocumentInfo{Pages: 1}})

	router := gin.New()
	router.POST("/api/files", UploadHandler(svc))

	names := []string{"a.pdf", "b.pdf", "c.pdf"}
	contents := [][]byte{pdfBytes(), pdfBytes(), pdfBytes()}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartRequestFiles(t, "files", names, contents))

	if rec.Code != http.StatusCreated {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}
	var payload struct {
		Files  []*Record `json:"files"`
		Count  int       `json:"count"`
		Errors []any     `json:"errors"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if payload.Count != 3 || len(payload.Files) != 3 {
		t.Fatalf("unexpected payload: %s", rec.Body.String())
	}
	if len(payload.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", payload.Errors)
	}
	for i, record := range payload.Files {
		if record.OriginalName != names[i] {
			t.Fatalf("unexpected original name at %d: %s", i, record.OriginalName)
		}
	}

	result, err := svc.List(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if result.Total != 3 {
		t.Fatalf("unexpected record count: %d", result.Total)
	}
}

func TestUploadHandlerReportsPerFileFailures(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc, _, _ := newTestFileService(t, &stubInspector{info: &pdf.DocumentInfo{Pages: 1}})

	router := gin.New()
	router.POST("/api/files", UploadHandler(svc))

	names := []string{"good.pdf", "bad.txt"}
	contents := [][]byte{pdfBytes(), []byte("plain text")}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartRequestFiles(t, "files", names, contents))

	if rec.Code != http.StatusCreated {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}
	var payload struct {
		Files  []*Record `json:"files"`
		Count  int       `json:"count"`
		Errors []struct {
			Filename string `json:"filename"`
			Code     string `json:"code"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if payload.Count != 1 || len(payload.Files) != 1 || payload.Files[0].OriginalName != "good.pdf" {
		t.Fatalf("unexpected files: %s", rec.Body.String())
	}
	if len(payload.Errors) != 1 || payload.Errors[0].Filename != "bad.txt" || payload.Errors[0].Code != pdf.CodeDocumentInvalid {
		t.Fatalf("unexpected errors: %s", rec.Body.String())
	}
}

func TestUploadHandlerAllFilesInvalid(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc, _, _ := newTestFileService(t, &stubInspector{info: &pdf.DocumentInfo{Pages: 1}})

	router := gin.New()
	router.POST("/api/files", UploadHandler(svc))

	names := []string{"a.txt", "b.txt"}
	contents := [][]byte{[]byte("plain"), []byte("text")}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartRequestFiles(t, "files", names, contents))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}
	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if payload["code"] != pdf.CodeDocumentInvalid {
		t.Fatalf("unexpected code: %s", payload["code"])
	}
}

func TestUploadHandlerRejectsTooManyFiles(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc, _, _ := newTestFileService(t, &stubInspector{info: &pdf.DocumentInfo{Pages: 1}})

	router := gin.New()
	router.POST("/api/files", UploadHandler(svc))

	names := make([]string, maxUploadFiles+1)
	contents := make([][]byte, maxUploadFiles+1)
	for i := range names {
		names[i] = fmt.Sprintf("doc-%d.pdf", i)
		contents[i] = pdfBytes()
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartRequestFiles(t, "files", names, contents))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}
	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if payload["code"] != pdf.CodeValidation {
		t.Fatalf("unexpected code: %s", payload["code"])
	}
}

func TestUploadHandlerMissingFile(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc, _, _ := newTestFileService(t, &stubInspector{info: &pdf.DocumentInfo{Pages: 1}})

	router := gin.New()
	router.POST("/api/files", UploadHandler(svc))

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if err := writer.WriteField("note", "no file here"); err != nil {
		t.Fatalf("failed to write field: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/files", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func TestUploadHandlerRejectsNonPDF(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc, _, _ := newTestFileService(t, &stubInspector{info: &pdf.DocumentInfo{Pages: 1}})

	router := gin.New()
	router.POST("/api/files", UploadHandler(svc))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartRequest(t, "file", "note.txt", []byte("plain text")))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}
	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if payload["code"] != pdf.CodeDocumentInvalid {
		t.Fatalf("unexpected code: %s", payload["code"])
	}
}

func TestFileDownloadHandlerStreamsContent(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc, _, _ := newTestFileService(t, &stubInspector{info: &pdf.DocumentInfo{Pages: 1}})

	content := pdfBytes()
	header := makeFileHeader(t, "doc.pdf", content)
	record, err := svc.SaveUpload(context.Background(), header)
	if err != nil {
		t.Fatalf("SaveUpload returned error: %v", err)
	}

	router := gin.New()
	router.GET("/api/files/:id/download", DownloadHandler(svc))

	req := httptest.NewRequest(http.MethodGet, "/api/files/"+record.FileID+"/download", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("unexpected content-type: %s", ct)
	}
	if !bytes.Equal(rec.Body.Bytes(), content) {
		t.Fatalf("unexpected body: %q", rec.Body.Bytes())
	}
}

func TestFileDeleteHandlerUnknownFile(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc, _, _ := newTestFileService(t, &stubInspector{info: &pdf.DocumentInfo{Pages: 1}})

	router := gin.New()
	router.DELETE("/api/files/:id", DeleteHandler(svc))

	req := httptest.NewRequest(http.MethodDelete, "/api/files/missing", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}
