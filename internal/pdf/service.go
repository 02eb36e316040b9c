// Package pdf はPDF操作機能を提供します。
package pdf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/anshikanegi280/pdf-merger/internal/config"
)

// Service はPDF変換処理を実行するサービスです。入力を変更することはなく、
// 成果物はジョブごとのワークスペースに書き出します。
type Service struct {
	cfg *config.Config
	now func() time.Time
}

// NewService は Service を作成します。
func NewService(cfg *config.Config) *Service {
	return &Service{
		cfg: cfg,
		now: time.Now,
	}
}

type workspace struct {
	jobID  string
	dir    string
	outDir string
}

// createWorkspace はジョブ用のワークスペースディレクトリを作成します。
func (s *Service) createWorkspace(jobID string) (workspace, error) {
	if strings.TrimSpace(jobID) == "" {
		return workspace{}, fmt.Errorf("jobID is required")
	}
	dir := filepath.Join(s.cfg.WorkDir, jobID)
	outDir := filepath.Join(dir, "out")
	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return workspace{}, fmt.Errorf("ワークスペースの作成に失敗しました: %w", err)
	}
	return workspace{jobID: jobID, dir: dir, outDir: outDir}, nil
}

// RemoveWorkspace はジョブのワークスペースを削除します。
func (s *Service) RemoveWorkspace(jobID string) error {
	if strings.TrimSpace(jobID) == "" {
		return nil
	}
	return removeDir(filepath.Join(s.cfg.WorkDir, jobID))
}

func removeDir(dir string) error {
	if dir == "" {
		return nil
	}
	return os.RemoveAll(dir)
}

// uniqueFilename はベース名から衝突しないファイル名を生成します。
func uniqueFilename(base string) string {
	base = strings.TrimSuffix(filepath.Base(base), filepath.Ext(base))
	if base == "" || base == "." {
		base = "document"
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s_%d_%s.pdf", base, time.Now().UnixMilli(), suffix)
}

// sanitizeOutputName は呼び出し元指定の出力ファイル名を安全な形に整えます。
func sanitizeOutputName(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return ""
	}
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		name += ".pdf"
	}
	return name
}

// ProgressReporter は進捗更新用コールバックです。
type ProgressReporter func(stage string, percent int)

func reportProgress(cb ProgressReporter, stage string, percent int) {
	if cb == nil {
		return
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	cb(stage, percent)
}
