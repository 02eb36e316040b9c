package pdf

import (
	"context"
	"fmt"
	"os"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
)

// Inspect はPDFを検証し、ページ数と記述メタデータを返します。
func (s *Service) Inspect(ctx context.Context, path string) (*DocumentInfo, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := pdfapi.ValidateFile(path, nil); err != nil {
		return nil, newError(CodeDocumentInvalid, "有効なPDFファイルではありません。", err)
	}

	pages, err := pdfapi.PageCountFile(path)
	if err != nil {
		return nil, newError(CodeDocumentInvalid, "PDFのページ数を取得できません。", err)
	}

	result := &DocumentInfo{Pages: pages}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("PDFファイルのオープンに失敗しました: %w", err)
	}
	defer file.Close()

	info, err := pdfapi.PDFInfo(file, path, nil, nil)
	if err != nil {
		// メタデータが読めなくてもページ数は確定しているのでそのまま返す
		return result, nil
	}

	result.Title = info.Title
	result.Author = info.Author
	result.Subject = info.Subject
	result.Creator = info.Creator
	result.Producer = info.Producer
	return result, nil
}
