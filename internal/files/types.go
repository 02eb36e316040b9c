// Package files はアップロードされた入力PDFの記録を管理します。
package files

import "time"

// Metadata はPDFの記述メタデータです。
type Metadata struct {
	Title    string `json:"title,omitempty"`
	Author   string `json:"author,omitempty"`
	Subject  string `json:"subject,omitempty"`
	Creator  string `json:"creator,omitempty"`
	Producer string `json:"producer,omitempty"`
}

// Record はアップロード済みファイルの記録です。
type Record struct {
	FileID       string    `json:"fileId"`
	OriginalName string    `json:"originalName"`
	StorageRef   string    `json:"storageRef"`
	Size         int64     `json:"size"`
	Pages        int       `json:"pages"`
	Metadata     Metadata  `json:"metadata"`
	UploadedAt   time.Time `json:"uploadedAt"`
}

// ListResult はファイル一覧の1ページ分の結果です。
type ListResult struct {
	Records    []*Record `json:"records"`
	Total      int       `json:"total"`
	Page       int       `json:"page"`
	TotalPages int       `json:"totalPages"`
}
