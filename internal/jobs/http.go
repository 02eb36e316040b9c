package jobs

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/anshikanegi280/pdf-merger/internal/pdf"
)

// Orchestrator はジョブの受付と照会を提供するサービスが実装します。
type Orchestrator interface {
	Submit(ctx context.Context, kind Kind, inputs []string, opts Options, ownerToken string) (string, error)
	Get(ctx context.Context, jobID string) (*Record, error)
	List(ctx context.Context, filter ListFilter) (*ListResult, error)
	Delete(ctx context.Context, jobID string) error
}

// ArtifactResolver は完了ジョブの成果物記述子を解決します。
type ArtifactResolver interface {
	Resolve(ctx context.Context, jobID string, index int) (Artifact, error)
}

// BlobLoader はストレージ参照から本体データを読み込みます。
type BlobLoader interface {
	Load(ctx context.Context, ref string) ([]byte, error)
}

// TokenFunc は呼び出し元のオーナートークンを取り出します。
type TokenFunc func(c *gin.Context) string

// HandlerOptions はハンドラー共通の設定です。
type HandlerOptions struct {
	Tokens TokenFunc
}

func (o HandlerOptions) ownerToken(c *gin.Context) string {
	if o.Tokens == nil {
		return ""
	}
	return o.Tokens(c)
}

type mergeRequest struct {
	FileIDs    []string `json:"fileIds"`
	OutputName string   `json:"outputName"`
	Options    *struct {
		IncludeBookmarks *bool `json:"includeBookmarks"`
		IncludeMetadata  *bool `json:"includeMetadata"`
	} `json:"options"`
}

type splitRequest struct {
	FileID       string   `json:"fileId"`
	SplitBy      string   `json:"splitBy"`
	PagesPerFile int      `json:"pagesPerFile"`
	Ranges       []string `json:"ranges"`
}

// MergeHandler は POST /api/pdf/merge のハンドラーを返します。
// ジョブを作成して即座に 202 とジョブIDを返します。
func MergeHandler(svc Orchestrator, opts HandlerOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req mergeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    pdf.CodeValidation,
				"message": "リクエストボディをJSONとして解析できません。",
			})
			return
		}

		mergeOpts := &MergeOptions{
			IncludeBookmarks: true,
			IncludeMetadata:  true,
			OutputName:       strings.TrimSpace(req.OutputName),
		}
		if req.Options != nil {
			if req.Options.IncludeBookmarks != nil {
				mergeOpts.IncludeBookmarks = *req.Options.IncludeBookmarks
			}
			if req.Options.IncludeMetadata != nil {
				mergeOpts.IncludeMetadata = *req.Options.IncludeMetadata
			}
		}

		ownerToken := opts.ownerToken(c)
		jobID, err := svc.Submit(c.Request.Context(), KindMerge, req.FileIDs, Options{Merge: mergeOpts}, ownerToken)
		if err != nil {
			pdf.RespondWithError(c, err)
			return
		}

		c.JSON(http.StatusAccepted, gin.H{
			"jobId":      jobID,
			"status":     StatusPending,
			"ownerToken": ownerToken,
		})
	}
}

// SplitHandler は POST /api/pdf/split のハンドラーを返します。
func SplitHandler(svc Orchestrator, opts HandlerOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req splitRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    pdf.CodeValidation,
				"message": "リクエストボディをJSONとして解析できません。",
			})
			return
		}

		var inputs []string
		if strings.TrimSpace(req.FileID) != "" {
			inputs = []string{req.FileID}
		}

		ownerToken := opts.ownerToken(c)
		jobID, err := svc.Submit(c.Request.Context(), KindSplit, inputs, Options{
			Split: &SplitOptions{
				Mode:          req.SplitBy,
				PagesPerChunk: req.PagesPerFile,
				Ranges:        req.Ranges,
			},
		}, ownerToken)
		if err != nil {
			pdf.RespondWithError(c, err)
			return
		}

		c.JSON(http.StatusAccepted, gin.H{
			"jobId":      jobID,
			"status":     StatusPending,
			"ownerToken": ownerToken,
		})
	}
}

// StatusHandler は GET /api/jobs/:id のハンドラーを返します。
func StatusHandler(svc Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := strings.TrimSpace(c.Param("id"))
		if jobID == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    pdf.CodeValidation,
				"message": "jobId を指定してください。",
			})
			return
		}

		record, err := svc.Get(c.Request.Context(), jobID)
		if err != nil {
			pdf.RespondWithError(c, err)
			return
		}
		if record == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"code":    pdf.CodeNotFound,
				"message": "指定されたジョブは存在しません。",
			})
			return
		}

		c.JSON(http.StatusOK, record)
	}
}

// ListHandler は GET /api/jobs のハンドラーを返します。
// mine=true を指定すると呼び出し元のオーナートークンで絞り込みます。
func ListHandler(svc Orchestrator, opts HandlerOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := ListFilter{
			Status: Status(strings.TrimSpace(c.Query("status"))),
			Kind:   Kind(strings.TrimSpace(c.Query("kind"))),
		}
		if c.Query("mine") == "true" {
			filter.OwnerToken = opts.ownerToken(c)
		}
		filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
		filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("pageSize", "0"))

		result, err := svc.List(c.Request.Context(), filter)
		if err != nil {
			pdf.RespondWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// DeleteHandler は DELETE /api/jobs/:id のハンドラーを返します。
// 成果物の削除後にレコードを削除します。
func DeleteHandler(svc Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := strings.TrimSpace(c.Param("id"))
		if jobID == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    pdf.CodeValidation,
				"message": "jobId を指定してください。",
			})
			return
		}

		if err := svc.Delete(c.Request.Context(), jobID); err != nil {
			pdf.RespondWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"jobId": jobID, "deleted": true})
	}
}

// DownloadHandler は GET /api/jobs/:id/outputs/:index/download のハンドラーを
// 返します。
func DownloadHandler(resolver ArtifactResolver, blobs BlobLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := strings.TrimSpace(c.Param("id"))
		index, err := strconv.Atoi(c.Param("index"))
		if jobID == "" || err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    pdf.CodeValidation,
				"message": "jobId と成果物インデックスを指定してください。",
			})
			return
		}

		artifact, err := resolver.Resolve(c.Request.Context(), jobID, index)
		if err != nil {
			pdf.RespondWithError(c, err)
			return
		}

		data, err := blobs.Load(c.Request.Context(), artifact.StorageRef)
		if err != nil {
			pdf.RespondWithError(c, pdf.NewError(pdf.CodeStorage, "成果物の読み込みに失敗しました。", err))
			return
		}

		encodedName := url.PathEscape(artifact.Filename)
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"; filename*=UTF-8''%s", artifact.Filename, encodedName))
		c.Header("Cache-Control", "no-store")
		c.Header("X-Job-Id", jobID)
		c.Data(http.StatusOK, "application/pdf", data)
	}
}
