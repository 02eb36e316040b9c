package pdf

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
)

// Split は入力PDFを指定された範囲ごとに分割します。
// 出力は要求された範囲の順に並び、ラベルは "開始-終了" 形式です。
func (s *Service) Split(ctx context.Context, jobID string, source Source, opts SplitOptions, progress ProgressReporter) (_ *SplitResult, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ranges, err := resolveRanges(opts, source.Pages)
	if err != nil {
		return nil, newError(CodeSplitFailed,
			fmt.Sprintf("%q の分割範囲を解決できません。", source.Name), err)
	}
	if len(ranges) == 0 {
		return nil, newError(CodeSplitFailed, "分割する範囲が1つも解決されませんでした。", nil)
	}

	if err := pdfapi.ValidateFile(source.Path, nil); err != nil {
		return nil, newError(CodeSplitFailed,
			fmt.Sprintf("入力ファイル %q を読み込めません。PDFが破損していないか確認してください。", source.Name),
			newError(CodeDocumentInvalid, fmt.Sprintf("%q は有効なPDFではありません。", source.Name), err))
	}

	ws, err := s.createWorkspace(jobID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = removeDir(ws.dir)
		}
	}()

	outputs := make([]OutputFile, 0, len(ranges))
	seen := make(map[string]int)

	for i, pr := range ranges {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		filename := splitFilename(opts.Mode, pr)
		// 同一範囲が複数回要求された場合もファイル名は衝突させない
		if n := seen[filename]; n > 0 {
			seen[filename] = n + 1
			filename = fmt.Sprintf("%s_%02d.pdf", filename[:len(filename)-len(".pdf")], i+1)
		} else {
			seen[filename] = 1
		}
		outputPath := filepath.Join(ws.outDir, filename)

		reportProgress(progress, "process", 20+(60*(i+1))/len(ranges))

		if err := pdfapi.CollectFile(source.Path, outputPath, buildPageSelection(pr), nil); err != nil {
			return nil, newError(CodeSplitFailed,
				fmt.Sprintf("範囲 %d-%d の生成に失敗しました。", pr.Start, pr.End), err)
		}

		info, statErr := os.Stat(outputPath)
		if statErr != nil {
			return nil, fmt.Errorf("分割結果の確認に失敗しました: %w", statErr)
		}

		outputs = append(outputs, OutputFile{
			Path:     outputPath,
			Filename: filename,
			Label:    fmt.Sprintf("%d-%d", pr.Start, pr.End),
			Pages:    pr.Pages(),
			Size:     info.Size(),
		})
	}

	reportProgress(progress, "completed", 100)

	return &SplitResult{
		Ranges:  ranges,
		Outputs: outputs,
	}, nil
}

// resolveRanges は分割オプションから対象範囲の列を決定します。
func resolveRanges(opts SplitOptions, totalPages int) ([]PageRange, error) {
	switch opts.Mode {
	case SplitModePages:
		return ChunkRanges(opts.PagesPerChunk, totalPages)
	case SplitModeRange:
		return ParsePageRanges(opts.Ranges, totalPages)
	default:
		return nil, newError(CodeInvalidOption,
			fmt.Sprintf("分割方法には pages または range を指定してください (received: %s)", opts.Mode), nil)
	}
}

func splitFilename(mode SplitMode, pr PageRange) string {
	if mode == SplitModePages {
		return fmt.Sprintf("split_%d_to_%d.pdf", pr.Start, pr.End)
	}
	return fmt.Sprintf("split_pages_%d_to_%d.pdf", pr.Start, pr.End)
}
