// Package artifacts は完了ジョブと成果物ファイルの対応付けを管理します。
package artifacts

import (
	"context"
	"fmt"
	"log"
	"os"
	"path"
	"time"

	"github.com/anshikanegi280/pdf-merger/internal/jobs"
	"github.com/anshikanegi280/pdf-merger/internal/pdf"
	"github.com/anshikanegi280/pdf-merger/internal/storage"
)

// Registry は成果物の保存・解決・削除を担います。
type Registry struct {
	store  jobs.RecordStore
	blobs  storage.Storage
	logger *log.Logger
	now    func() time.Time
}

// NewRegistry は Registry を作成します。
func NewRegistry(store jobs.RecordStore, blobs storage.Storage, logger *log.Logger) *Registry {
	return &Registry{
		store:  store,
		blobs:  blobs,
		logger: logger,
		now:    time.Now,
	}
}

// Register はワークスペース上の成果物をストレージへ保存し、ジョブを completed
// へ遷移させます。completed への遷移と成果物リストの保存は1つの更新です。
// 途中で失敗した場合、保存済みの成果物は取り除かれます。
func (r *Registry) Register(ctx context.Context, jobID string, outputs []pdf.OutputFile) error {
	if len(outputs) == 0 {
		return pdf.NewError(pdf.CodeStorage, "登録する成果物がありません。", nil)
	}

	descriptors := make([]jobs.Artifact, 0, len(outputs))
	saved := make([]string, 0, len(outputs))

	for _, out := range outputs {
		data, err := os.ReadFile(out.Path)
		if err != nil {
			r.removeRefs(ctx, saved)
			return pdf.NewError(pdf.CodeStorage,
				fmt.Sprintf("成果物 %q の読み込みに失敗しました。", out.Filename), err)
		}
		ref := path.Join("jobs", jobID, out.Filename)
		if err := r.blobs.Save(ctx, ref, data); err != nil {
			r.removeRefs(ctx, saved)
			return pdf.NewError(pdf.CodeStorage,
				fmt.Sprintf("成果物 %q の保存に失敗しました。", out.Filename), err)
		}
		saved = append(saved, ref)
		descriptors = append(descriptors, jobs.Artifact{
			Filename:      out.Filename,
			OriginalLabel: out.Label,
			StorageRef:    ref,
			Size:          out.Size,
			Pages:         out.Pages,
		})
	}

	if err := r.store.MarkCompleted(ctx, jobID, descriptors, r.now()); err != nil {
		// レコードが先に削除された場合など。保存済み成果物を孤児にしない。
		r.removeRefs(ctx, saved)
		return err
	}
	return nil
}

// Resolve は完了ジョブの成果物記述子をインデックス指定で返します。
func (r *Registry) Resolve(ctx context.Context, jobID string, index int) (jobs.Artifact, error) {
	record, err := r.store.Get(ctx, jobID)
	if err != nil {
		return jobs.Artifact{}, err
	}
	if record == nil {
		return jobs.Artifact{}, pdf.NewError(pdf.CodeNotFound, "指定されたジョブは存在しません。", nil)
	}
	if record.Status != jobs.StatusCompleted {
		return jobs.Artifact{}, pdf.NewError(pdf.CodeNotReady,
			fmt.Sprintf("ジョブはまだ完了していません (status: %s)。", record.Status), nil)
	}
	if index < 0 || index >= len(record.Outputs) {
		return jobs.Artifact{}, pdf.NewError(pdf.CodeOutOfRange,
			fmt.Sprintf("成果物インデックス %d は範囲外です (outputs: %d)。", index, len(record.Outputs)), nil)
	}
	return record.Outputs[index], nil
}

// Cleanup はジョブの登録済み成果物をベストエフォートで削除します。
// 個々の削除失敗はログに残すだけで、レコード削除を妨げません。
func (r *Registry) Cleanup(ctx context.Context, record *jobs.Record) {
	if record == nil {
		return
	}
	for _, artifact := range record.Outputs {
		if err := r.blobs.Delete(ctx, artifact.StorageRef); err != nil {
			r.logf("failed to delete artifact job=%s ref=%s: %v", record.JobID, artifact.StorageRef, err)
		}
	}
}

func (r *Registry) removeRefs(ctx context.Context, refs []string) {
	for _, ref := range refs {
		if err := r.blobs.Delete(ctx, ref); err != nil {
			r.logf("failed to remove stored artifact ref=%s: %v", ref, err)
		}
	}
}

func (r *Registry) logf(format string, args ...any) {
	if r.logger != nil {
		r.logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}
