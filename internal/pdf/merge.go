package pdf

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
)

// 結合時に includeMetadata が指定された場合に書き込む固定メタデータ。
var mergedMetadata = map[string]string{
	"Title":    "Merged PDF",
	"Author":   "PDF Merger Tool",
	"Subject":  "Merged PDF Document",
	"Creator":  "PDF Merger Tool",
	"Producer": "PDF Merger Tool",
}

// Merge は複数の入力PDFを指定順に連結した1つのPDFを生成します。
// 出力のページ順は入力の提出順をそのまま連結したものです。
func (s *Service) Merge(ctx context.Context, jobID string, sources []Source, opts MergeOptions, progress ProgressReporter) (_ *MergeResult, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(sources) < 2 {
		return nil, newError(CodeMergeFailed, "結合には2つ以上のPDFファイルが必要です。", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
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

	inputPaths := make([]string, len(sources))
	totalPages := 0
	for i, src := range sources {
		if err := pdfapi.ValidateFile(src.Path, nil); err != nil {
			return nil, newError(CodeMergeFailed,
				fmt.Sprintf("入力ファイル %q (%d番目) を読み込めません。PDFが破損していないか確認してください。", src.Name, i+1),
				newError(CodeDocumentInvalid, fmt.Sprintf("%q は有効なPDFではありません。", src.Name), err))
		}
		inputPaths[i] = src.Path
		totalPages += src.Pages
	}

	reportProgress(progress, "process", 40)

	outputFilename := sanitizeOutputName(opts.OutputName)
	if outputFilename == "" {
		outputFilename = uniqueFilename("merged_document")
	}
	outputPath := filepath.Join(ws.outDir, outputFilename)

	if err := pdfapi.MergeCreateFile(inputPaths, outputPath, false, nil); err != nil {
		return nil, newError(CodeMergeFailed, "PDFの結合に失敗しました。", err)
	}

	if opts.IncludeMetadata {
		// メタデータの書き込み失敗は結合結果自体に影響しないため無視します
		_ = pdfapi.AddPropertiesFile(outputPath, "", mergedMetadata, nil)
	}

	reportProgress(progress, "write", 80)

	pages, err := pdfapi.PageCountFile(outputPath)
	if err != nil {
		return nil, fmt.Errorf("結合結果のページ数確認に失敗しました: %w", err)
	}
	if pages != totalPages {
		return nil, newError(CodeMergeFailed,
			fmt.Sprintf("結合結果のページ数が一致しません (expected %d, got %d)", totalPages, pages), nil)
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return nil, fmt.Errorf("結合結果の確認に失敗しました: %w", err)
	}

	reportProgress(progress, "completed", 100)

	return &MergeResult{
		Output: OutputFile{
			Path:     outputPath,
			Filename: outputFilename,
			Label:    fmt.Sprintf("1-%d", totalPages),
			Pages:    totalPages,
			Size:     info.Size(),
		},
		TotalPages: totalPages,
	}, nil
}
