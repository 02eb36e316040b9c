// Package jobs は非同期変換ジョブのライフサイクル管理を提供します。
package jobs

import "time"

// Kind はジョブの操作種別を表します。
type Kind string

const (
	KindMerge Kind = "merge"
	KindSplit Kind = "split"
)

// Status はジョブの実行状態を表します。
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal は終端状態（completed / failed）かどうかを返します。
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// MergeOptions は結合ジョブのオプションです。
type MergeOptions struct {
	IncludeBookmarks bool   `json:"includeBookmarks"`
	IncludeMetadata  bool   `json:"includeMetadata"`
	OutputName       string `json:"outputName,omitempty"`
}

// SplitOptions は分割ジョブのオプションです。
type SplitOptions struct {
	Mode          string   `json:"mode"` // pages | range
	PagesPerChunk int      `json:"pagesPerChunk,omitempty"`
	Ranges        []string `json:"ranges,omitempty"`
}

// Options は種別ごとのオプションを保持します。Kindに対応する側のみ設定されます。
type Options struct {
	Merge *MergeOptions `json:"merge,omitempty"`
	Split *SplitOptions `json:"split,omitempty"`
}

// Artifact は完了したジョブが生成した成果物の記述子です。
type Artifact struct {
	Filename      string `json:"filename"`
	OriginalLabel string `json:"originalLabel"`
	StorageRef    string `json:"storageRef"`
	Size          int64  `json:"size"`
	Pages         int    `json:"pages"`
}

// ErrorInfo はジョブ失敗時のエラー情報を保持します。
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Record はジョブの現在状態を表します。実行中の書き込みは担当ワーカーのみが
// 行い、各チェックポイントは1つの可視単位として保存されます。
type Record struct {
	JobID       string     `json:"jobId"`
	Kind        Kind       `json:"kind"`
	Inputs      []string   `json:"inputs"`
	Options     Options    `json:"options"`
	Status      Status     `json:"status"`
	Progress    int        `json:"progress"`
	Outputs     []Artifact `json:"outputs,omitempty"`
	Error       *ErrorInfo `json:"error,omitempty"`
	OwnerToken  string     `json:"ownerToken,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Clone は Record の複製を返します。読み取り側に内部状態を共有させないために
// 使用します。
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	dup := *r
	dup.Inputs = append([]string(nil), r.Inputs...)
	dup.Outputs = append([]Artifact(nil), r.Outputs...)
	if r.Error != nil {
		errCopy := *r.Error
		dup.Error = &errCopy
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		dup.CompletedAt = &t
	}
	if r.Options.Merge != nil {
		m := *r.Options.Merge
		dup.Options.Merge = &m
	}
	if r.Options.Split != nil {
		sp := *r.Options.Split
		sp.Ranges = append([]string(nil), r.Options.Split.Ranges...)
		dup.Options.Split = &sp
	}
	return &dup
}

// ListFilter は一覧取得の絞り込み条件です。
type ListFilter struct {
	Status     Status
	Kind       Kind
	OwnerToken string
	Page       int
	PageSize   int
}

// ListResult は一覧取得の1ページ分の結果です。
type ListResult struct {
	Records    []*Record `json:"records"`
	Total      int       `json:"total"`
	Page       int       `json:"page"`
	TotalPages int       `json:"totalPages"`
}
