package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/anshikanegi280/pdf-merger/internal/files"
	"github.com/anshikanegi280/pdf-merger/internal/jobs"
	"github.com/anshikanegi280/pdf-merger/internal/session"
)

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "pdf-merger-api",
		"version": "0.1.0",
	})
}

// setupRoutes は API グループの配線を行います。
func setupRoutes(router *gin.Engine, a *app) {
	// まずは誰でも叩けるヘルスチェックを登録
	router.GET("/health", handleHealth)

	handlerOpts := jobs.HandlerOptions{Tokens: session.OwnerToken}

	api := router.Group("/api")
	{
		authRoutes := api.Group("/auth")
		{
			authRoutes.POST("/session", session.IssueHandler)
		}

		pdfRoutes := api.Group("/pdf")
		{
			pdfRoutes.POST("/merge", jobs.MergeHandler(a.manager, handlerOpts))
			pdfRoutes.POST("/split", jobs.SplitHandler(a.manager, handlerOpts))
		}

		jobRoutes := api.Group("/jobs")
		{
			jobRoutes.GET("", jobs.ListHandler(a.manager, handlerOpts))
			jobRoutes.GET("/:id", jobs.StatusHandler(a.manager))
			jobRoutes.DELETE("/:id", jobs.DeleteHandler(a.manager))
			jobRoutes.GET("/:id/outputs/:index/download", jobs.DownloadHandler(a.registry, a.blobs))
		}

		fileRoutes := api.Group("/files")
		{
			fileRoutes.POST("", files.UploadHandler(a.files))
			fileRoutes.GET("", files.ListHandler(a.files))
			fileRoutes.GET("/:id", files.GetHandler(a.files))
			fileRoutes.DELETE("/:id", files.DeleteHandler(a.files))
			fileRoutes.GET("/:id/download", files.DownloadHandler(a.files))
		}
	}
}
