package files

import (
	"context"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/anshikanegi280/pdf-merger/internal/config"
	"github.com/anshikanegi280/pdf-merger/internal/pdf"
	"github.com/anshikanegi280/pdf-merger/internal/storage"
)

// BlobStore はこのサービスが必要とするストレージ操作です。pdfcpu に入力を
// 渡すため実パス解決を含みます。
type BlobStore interface {
	storage.Storage
	AbsPath(ref string) (string, error)
}

// Inspector はPDFの検証とメタデータ取得を提供します。
type Inspector interface {
	Inspect(ctx context.Context, path string) (*pdf.DocumentInfo, error)
}

// Service はアップロードファイルの保存・取得・削除を担います。
type Service struct {
	cfg       *config.Config
	store     Store
	blobs     BlobStore
	inspector Inspector
	logger    *log.Logger
	now       func() time.Time
}

// NewService は Service を作成します。
func NewService(cfg *config.Config, store Store, blobs BlobStore, inspector Inspector, logger *log.Logger) *Service {
	return &Service{
		cfg:       cfg,
		store:     store,
		blobs:     blobs,
		inspector: inspector,
		logger:    logger,
		now:       time.Now,
	}
}

// SaveUpload はアップロードされたPDFを検証してストレージと記録に保存します。
func (s *Service) SaveUpload(ctx context.Context, file *multipart.FileHeader) (*Record, error) {
	if file == nil {
		return nil, pdf.NewError(pdf.CodeValidation, "PDFファイルを選択してください。", nil)
	}
	if s.cfg.MaxFileSize > 0 && file.Size > s.cfg.MaxFileSize {
		return nil, pdf.NewError(pdf.CodeValidation,
			fmt.Sprintf("ファイルサイズが上限（%dバイト）を超えています。", s.cfg.MaxFileSize), nil)
	}

	src, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("アップロードファイルのオープンに失敗しました: %w", err)
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("アップロードファイルの読み込みに失敗しました: %w", err)
	}

	if mtype := mimetype.Detect(data); !mtype.Is("application/pdf") {
		return nil, pdf.NewError(pdf.CodeDocumentInvalid,
			fmt.Sprintf("PDFファイルのみアップロードできます (detected: %s)。", mtype.String()), nil)
	}

	ref := path.Join("uploads", storedName(file.Filename))
	if err := s.blobs.Save(ctx, ref, data); err != nil {
		return nil, pdf.NewError(pdf.CodeStorage, "ファイルの保存に失敗しました。", err)
	}

	abs, err := s.blobs.AbsPath(ref)
	if err != nil {
		s.discard(ctx, ref)
		return nil, err
	}
	info, err := s.inspector.Inspect(ctx, abs)
	if err != nil {
		s.discard(ctx, ref)
		return nil, err
	}
	if s.cfg.MaxPages > 0 && info.Pages > s.cfg.MaxPages {
		s.discard(ctx, ref)
		return nil, pdf.NewError(pdf.CodeValidation,
			fmt.Sprintf("ページ数が上限（%dページ）を超えています (pages: %d)。", s.cfg.MaxPages, info.Pages), nil)
	}

	record := &Record{
		FileID:       uuid.NewString(),
		OriginalName: filepath.Base(file.Filename),
		StorageRef:   ref,
		Size:         int64(len(data)),
		Pages:        info.Pages,
		Metadata: Metadata{
			Title:    info.Title,
			Author:   info.Author,
			Subject:  info.Subject,
			Creator:  info.Creator,
			Producer: info.Producer,
		},
		UploadedAt: s.now().UTC(),
	}
	if err := s.store.Create(ctx, record); err != nil {
		s.discard(ctx, ref)
		return nil, err
	}
	return record, nil
}

// Get はファイル記録を取得します。存在しない場合は (nil, nil) です。
func (s *Service) Get(ctx context.Context, fileID string) (*Record, error) {
	return s.store.Get(ctx, fileID)
}

// List はファイル記録の一覧を返します。
func (s *Service) List(ctx context.Context, page, pageSize int) (*ListResult, error) {
	if pageSize < 1 {
		pageSize = s.cfg.DefaultPageSize
	}
	if pageSize > s.cfg.MaxPageSize {
		pageSize = s.cfg.MaxPageSize
	}
	return s.store.List(ctx, page, pageSize)
}

// Delete はストレージ上のファイルを先に削除してから記録を削除します。
func (s *Service) Delete(ctx context.Context, fileID string) error {
	record, err := s.store.Get(ctx, fileID)
	if err != nil {
		return err
	}
	if record == nil {
		return pdf.NewError(pdf.CodeNotFound, "指定されたファイルは存在しません。", nil)
	}
	if err := s.blobs.Delete(ctx, record.StorageRef); err != nil {
		return pdf.NewError(pdf.CodeStorage, "ファイルの削除に失敗しました。", err)
	}
	return s.store.Delete(ctx, fileID)
}

// LoadContent はファイル記録と本体データを返します。
func (s *Service) LoadContent(ctx context.Context, fileID string) (*Record, []byte, error) {
	record, err := s.store.Get(ctx, fileID)
	if err != nil {
		return nil, nil, err
	}
	if record == nil {
		return nil, nil, pdf.NewError(pdf.CodeNotFound, "指定されたファイルは存在しません。", nil)
	}
	data, err := s.blobs.Load(ctx, record.StorageRef)
	if err != nil {
		return nil, nil, pdf.NewError(pdf.CodeStorage, "ファイルの読み込みに失敗しました。", err)
	}
	return record, data, nil
}

// ResolveInput はジョブの入力参照をローカルファイルに解決します。
func (s *Service) ResolveInput(ctx context.Context, fileID string) (pdf.Source, error) {
	record, err := s.store.Get(ctx, fileID)
	if err != nil {
		return pdf.Source{}, err
	}
	if record == nil {
		return pdf.Source{}, pdf.NewError(pdf.CodeNotFound,
			fmt.Sprintf("入力ファイル %q が見つかりません。", fileID), nil)
	}
	abs, err := s.blobs.AbsPath(record.StorageRef)
	if err != nil {
		return pdf.Source{}, err
	}
	return pdf.Source{
		Path:  abs,
		Name:  record.OriginalName,
		Pages: record.Pages,
	}, nil
}

func (s *Service) discard(ctx context.Context, ref string) {
	if err := s.blobs.Delete(ctx, ref); err != nil && s.logger != nil {
		s.logger.Printf("failed to discard uploaded file ref=%s: %v", ref, err)
	}
}

// storedName は元のファイル名から衝突しない保存名を生成します。
func storedName(original string) string {
	base := strings.TrimSuffix(filepath.Base(original), filepath.Ext(original))
	if base == "" || base == "." {
		base = "document"
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s_%d_%s.pdf", base, time.Now().UnixMilli(), suffix)
}
