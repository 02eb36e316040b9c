package pdf

import (
	"fmt"
	"strconv"
	"strings"
)

// ParsePageRanges は "start-end" 形式の範囲式を解析して返します。
// 範囲の重複や順序の入れ替えは許容し、指定された順序をそのまま保持します。
func ParsePageRanges(exprs []string, totalPages int) ([]PageRange, error) {
	ranges := make([]PageRange, 0, len(exprs))
	for _, expr := range exprs {
		pr, err := parsePageRange(expr, totalPages)
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, pr)
	}
	return ranges, nil
}

func parsePageRange(expr string, totalPages int) (PageRange, error) {
	trimmed := strings.TrimSpace(expr)
	parts := strings.SplitN(trimmed, "-", 2)
	if len(parts) != 2 {
		return PageRange{}, newError(CodeInvalidRange,
			fmt.Sprintf("範囲指定 %q の形式が正しくありません。\"開始-終了\" の形式で指定してください。", expr), nil)
	}

	start, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return PageRange{}, newError(CodeInvalidRange,
			fmt.Sprintf("範囲指定 %q の開始ページが整数ではありません。", expr), nil)
	}
	end, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return PageRange{}, newError(CodeInvalidRange,
			fmt.Sprintf("範囲指定 %q の終了ページが整数ではありません。", expr), nil)
	}

	if start < 1 || end > totalPages || start > end {
		return PageRange{}, newError(CodeInvalidRange,
			fmt.Sprintf("範囲指定 %q がページ数（%dページ）の範囲外です。", expr, totalPages), nil)
	}

	return PageRange{Start: start, End: end}, nil
}

// ChunkRanges は1ファイルあたりのページ数から等分割の範囲列を生成します。
// 最終範囲は総ページ数に合わせて切り詰められます。
func ChunkRanges(pagesPerChunk, totalPages int) ([]PageRange, error) {
	if pagesPerChunk < 1 {
		return nil, newError(CodeInvalidOption,
			fmt.Sprintf("1ファイルあたりのページ数は1以上で指定してください (received: %d)", pagesPerChunk), nil)
	}

	ranges := make([]PageRange, 0, (totalPages+pagesPerChunk-1)/pagesPerChunk)
	for start := 1; start <= totalPages; start += pagesPerChunk {
		end := start + pagesPerChunk - 1
		if end > totalPages {
			end = totalPages
		}
		ranges = append(ranges, PageRange{Start: start, End: end})
	}
	return ranges, nil
}

// buildPageSelection は pdfcpu に渡すページ選択リストを組み立てます。
func buildPageSelection(pr PageRange) []string {
	pages := make([]string, 0, pr.Pages())
	for p := pr.Start; p <= pr.End; p++ {
		pages = append(pages, strconv.Itoa(p))
	}
	return pages
}
