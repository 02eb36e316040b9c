package pdf

// PageRange は対象のページ範囲を表します（Start/Endは1-based, End>=Start）。
type PageRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Pages は範囲に含まれるページ数を返します。
func (r PageRange) Pages() int {
	return r.End - r.Start + 1
}

// SplitMode は分割方法の種別を表します。
type SplitMode string

const (
	SplitModePages SplitMode = "pages"
	SplitModeRange SplitMode = "range"
)

// MergeOptions は結合処理のオプションです。
// IncludeBookmarks は互換性のために受け付けますが、ページコピーが持つ以上の
// 効果はありません。
type MergeOptions struct {
	IncludeBookmarks bool
	IncludeMetadata  bool
	OutputName       string
}

// SplitOptions は分割処理のオプションです。
type SplitOptions struct {
	Mode          SplitMode
	PagesPerChunk int
	Ranges        []string
}

// Source は処理対象の入力ドキュメントを表します。
type Source struct {
	Path  string // ローカルファイルパス
	Name  string // 元のファイル名（エラーメッセージ用）
	Pages int
}

// OutputFile はワークスペースに生成された成果物ファイルです。
type OutputFile struct {
	Path     string `json:"-"`
	Filename string `json:"filename"`
	Label    string `json:"label"`
	Pages    int    `json:"pages"`
	Size     int64  `json:"size"`
}

// MergeResult は結合処理の成果を表します。
type MergeResult struct {
	Output     OutputFile
	TotalPages int
}

// SplitResult は分割処理の成果を表します。各範囲につき1ファイル、
// 要求された順序のまま並びます。
type SplitResult struct {
	Ranges  []PageRange
	Outputs []OutputFile
}

// DocumentInfo はPDFの基本メタデータを表します。
type DocumentInfo struct {
	Pages    int    `json:"pages"`
	Title    string `json:"title,omitempty"`
	Author   string `json:"author,omitempty"`
	Subject  string `json:"subject,omitempty"`
	Creator  string `json:"creator,omitempty"`
	Producer string `json:"producer,omitempty"`
}
