package files

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/anshikanegi280/pdf-merger/internal/pdf"
)

// maxUploadFiles は1リクエストで受け付けるファイル数の上限です。
const maxUploadFiles = 10

// UploadHandler は POST /api/files のハンドラーを返します。
// multipart/form-data からPDFを受け取り保存します。複数件を一度に
// 送信した場合は1件ごとに記録を作成し、失敗したファイルは errors に
// 列挙します。
func UploadHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		form, err := c.MultipartForm()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    pdf.CodeValidation,
				"message": "multipart/form-data でPDFファイルを送信してください。",
			})
			return
		}
		defer form.RemoveAll()

		headers, err := extractFiles(form)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    pdf.CodeValidation,
				"message": err.Error(),
			})
			return
		}

		if len(headers) == 1 {
			record, err := svc.SaveUpload(c.Request.Context(), headers[0])
			if err != nil {
				pdf.RespondWithError(c, err)
				return
			}
			c.JSON(http.StatusCreated, record)
			return
		}

		records := make([]*Record, 0, len(headers))
		var failures []gin.H
		var firstErr error
		for _, header := range headers {
			record, err := svc.SaveUpload(c.Request.Context(), header)
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				failures = append(failures, uploadFailure(header.Filename, err))
				continue
			}
			records = append(records, record)
		}

		if len(records) == 0 {
			pdf.RespondWithError(c, firstErr)
			return
		}

		resp := gin.H{"files": records, "count": len(records)}
		if len(failures) > 0 {
			resp["errors"] = failures
		}
		c.JSON(http.StatusCreated, resp)
	}
}

func uploadFailure(filename string, err error) gin.H {
	var apiErr *pdf.Error
	if errors.As(err, &apiErr) {
		return gin.H{"filename": filename, "code": apiErr.Code, "message": apiErr.Message}
	}
	return gin.H{"filename": filename, "code": "INTERNAL_ERROR", "message": err.Error()}
}

// GetHandler は GET /api/files/:id のハンドラーを返します。
func GetHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		fileID := strings.TrimSpace(c.Param("id"))
		if fileID == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    pdf.CodeValidation,
				"message": "fileId を指定してください。",
			})
			return
		}

		record, err := svc.Get(c.Request.Context(), fileID)
		if err != nil {
			pdf.RespondWithError(c, err)
			return
		}
		if record == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"code":    pdf.CodeNotFound,
				"message": "指定されたファイルは存在しません。",
			})
			return
		}
		c.JSON(http.StatusOK, record)
	}
}

// ListHandler は GET /api/files のハンドラーを返します。
func ListHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "0"))

		result, err := svc.List(c.Request.Context(), page, pageSize)
		if err != nil {
			pdf.RespondWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// DeleteHandler は DELETE /api/files/:id のハンドラーを返します。
func DeleteHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		fileID := strings.TrimSpace(c.Param("id"))
		if fileID == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    pdf.CodeValidation,
				"message": "fileId を指定してください。",
			})
			return
		}

		if err := svc.Delete(c.Request.Context(), fileID); err != nil {
			pdf.RespondWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"fileId": fileID, "deleted": true})
	}
}

// DownloadHandler は GET /api/files/:id/download のハンドラーを返します。
func DownloadHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		fileID := strings.TrimSpace(c.Param("id"))
		if fileID == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    pdf.CodeValidation,
				"message": "fileId を指定してください。",
			})
			return
		}

		record, data, err := svc.LoadContent(c.Request.Context(), fileID)
		if err != nil {
			pdf.RespondWithError(c, err)
			return
		}

		encodedName := url.PathEscape(record.OriginalName)
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"; filename*=UTF-8''%s", record.OriginalName, encodedName))
		c.Header("Cache-Control", "no-store")
		c.Data(http.StatusOK, "application/pdf", data)
	}
}

func extractFiles(form *multipart.Form) ([]*multipart.FileHeader, error) {
	if form == nil {
		return nil, errors.New("PDFファイルを選択してください。")
	}
	for _, field := range []string{"file", "file[]", "files", "files[]"} {
		headers := form.File[field]
		if len(headers) == 0 {
			continue
		}
		if len(headers) > maxUploadFiles {
			return nil, fmt.Errorf("一度にアップロードできるファイルは%d件までです。", maxUploadFiles)
		}
		return headers, nil
	}
	return nil, errors.New("PDFファイルを選択してください。")
}
