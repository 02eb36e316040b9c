package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/anshikanegi280/pdf-merger/internal/config"
	"github.com/anshikanegi280/pdf-merger/internal/pdf"
)

const (
	taskTypeTransform = "pdf:transform"
	queueName         = "pdf"
)

// Engine はPDF変換を実行できるサービスが実装します。
type Engine interface {
	Merge(ctx context.Context, jobID string, sources []pdf.Source, opts pdf.MergeOptions, progress pdf.ProgressReporter) (*pdf.MergeResult, error)
	Split(ctx context.Context, jobID string, source pdf.Source, opts pdf.SplitOptions, progress pdf.ProgressReporter) (*pdf.SplitResult, error)
	RemoveWorkspace(jobID string) error
}

// InputResolver は入力ドキュメント参照をローカルファイルに解決します。
type InputResolver interface {
	ResolveInput(ctx context.Context, fileID string) (pdf.Source, error)
}

// ArtifactRegistry は成果物の永続化と完了遷移、削除時のクリーンアップを担います。
type ArtifactRegistry interface {
	Register(ctx context.Context, jobID string, outputs []pdf.OutputFile) error
	Cleanup(ctx context.Context, record *Record)
}

// Manager はジョブの受付・非同期実行・状態管理を担います。
// 1つのジョブIDに対する実行は高々1回で、実行中の書き込みは担当ワーカーのみが
// 行います。
type Manager struct {
	cfg      *config.Config
	client   *asynq.Client
	server   *asynq.Server
	mux      *asynq.ServeMux
	store    RecordStore
	engine   Engine
	resolver InputResolver
	registry ArtifactRegistry
	logger   *log.Logger
	now      func() time.Time
}

// TaskPayload は変換ジョブのペイロードです。
type TaskPayload struct {
	JobID string `json:"jobId"`
	Kind  Kind   `json:"kind"`
}

// NewManager は Manager を初期化します。
func NewManager(cfg *config.Config, store RecordStore, engine Engine, resolver InputResolver, registry ArtifactRegistry, logger *log.Logger) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if store == nil {
		return nil, errors.New("store is nil")
	}
	if engine == nil {
		return nil, errors.New("engine is nil")
	}
	if resolver == nil {
		return nil, errors.New("resolver is nil")
	}
	if registry == nil {
		return nil, errors.New("registry is nil")
	}
	opt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := asynq.NewClient(opt)
	server := asynq.NewServer(
		opt,
		asynq.Config{
			Concurrency: cfg.WorkerConcurrency,
			Queues: map[string]int{
				queueName: 1,
			},
		},
	)

	mux := asynq.NewServeMux()
	manager := &Manager{
		cfg:      cfg,
		client:   client,
		server:   server,
		mux:      mux,
		store:    store,
		engine:   engine,
		resolver: resolver,
		registry: registry,
		logger:   logger,
		now:      time.Now,
	}
	mux.HandleFunc(taskTypeTransform, manager.handleTransformTask)
	return manager, nil
}

// StartWorkers は Asynq サーバーをバックグラウンドで起動します。
func (m *Manager) StartWorkers() {
	go func() {
		if err := m.server.Run(m.mux); err != nil && err != asynq.ErrServerClosed {
			m.logf("asynq server stopped with error: %v", err)
		}
	}()
}

// Shutdown はサーバーとクライアントを閉じます。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.server.Shutdown()
	m.client.Close()
	return nil
}

// Submit はリクエストを検証してジョブを作成し、実行をキューに投入して即座に
// ジョブIDを返します。検証エラー時はジョブレコードを作成しません。
func (m *Manager) Submit(ctx context.Context, kind Kind, inputs []string, opts Options, ownerToken string) (string, error) {
	if err := validateSubmission(kind, inputs, &opts); err != nil {
		return "", err
	}

	jobID := uuid.NewString()
	record := &Record{
		JobID:      jobID,
		Kind:       kind,
		Inputs:     append([]string(nil), inputs...),
		Options:    opts,
		Status:     StatusPending,
		Progress:   0,
		OwnerToken: ownerToken,
		CreatedAt:  m.now().UTC(),
	}
	if err := m.store.Create(ctx, record); err != nil {
		return "", err
	}

	body, err := json.Marshal(&TaskPayload{JobID: jobID, Kind: kind})
	if err != nil {
		_ = m.store.Delete(ctx, jobID)
		return "", err
	}

	task := asynq.NewTask(taskTypeTransform, body, asynq.Queue(queueName))
	if _, err := m.client.EnqueueContext(ctx, task, asynq.TaskID(jobID), asynq.MaxRetry(0)); err != nil {
		_ = m.store.Delete(ctx, jobID)
		return "", err
	}
	return jobID, nil
}

// Get はジョブのスナップショットを取得します。存在しない場合は (nil, nil) です。
func (m *Manager) Get(ctx context.Context, jobID string) (*Record, error) {
	return m.store.Get(ctx, jobID)
}

// List はジョブの一覧を作成時刻の降順で返します。
func (m *Manager) List(ctx context.Context, filter ListFilter) (*ListResult, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = m.cfg.DefaultPageSize
	}
	if filter.PageSize > m.cfg.MaxPageSize {
		filter.PageSize = m.cfg.MaxPageSize
	}
	return m.store.List(ctx, filter)
}

// Delete はジョブと登録済み成果物を削除します。成果物の削除が先、レコードの
// 削除が後です。実行中のジョブを削除しても実行は中断されません。
func (m *Manager) Delete(ctx context.Context, jobID string) error {
	record, err := m.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if record == nil {
		return pdf.NewError(pdf.CodeNotFound, "指定されたジョブは存在しません。", nil)
	}

	m.registry.Cleanup(ctx, record)

	if err := m.store.Delete(ctx, jobID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return pdf.NewError(pdf.CodeNotFound, "指定されたジョブは存在しません。", nil)
		}
		return err
	}
	return nil
}

// handleTransformTask は1件のジョブを終端状態まで実行します。
func (m *Manager) handleTransformTask(ctx context.Context, task *asynq.Task) error {
	var payload TaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return err
	}
	if payload.JobID == "" {
		return fmt.Errorf("missing jobId in payload")
	}
	return m.execute(ctx, payload.JobID)
}

// execute はジョブを processing に遷移させ、エンジンを駆動し、成果物を登録して
// 終端状態へ遷移させます。進捗は 10/30/80/100 の粗いマイルストーンです。
func (m *Manager) execute(ctx context.Context, jobID string) error {
	record, err := m.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if record == nil {
		// 実行前に削除されたジョブ。実行は発生しない。
		m.logf("job %s deleted before execution", jobID)
		return nil
	}

	defer func() {
		if err := m.engine.RemoveWorkspace(jobID); err != nil {
			m.logf("failed to remove workspace job=%s: %v", jobID, err)
		}
	}()

	if err := m.store.MarkProcessing(ctx, jobID, 10); err != nil {
		m.logf("failed to mark processing job=%s: %v", jobID, err)
		return nil
	}

	sources := make([]pdf.Source, len(record.Inputs))
	for i, fileID := range record.Inputs {
		src, err := m.resolver.ResolveInput(ctx, fileID)
		if err != nil {
			m.failJob(ctx, jobID, err)
			return nil
		}
		sources[i] = src
	}
	m.updateProgress(ctx, jobID, 30)

	// エンジン内部の進捗は 30〜80 の帯域に写像する
	reporter := func(stage string, percent int) {
		m.updateProgress(ctx, jobID, 30+percent/2)
	}

	var outputs []pdf.OutputFile
	switch record.Kind {
	case KindMerge:
		opts := pdf.MergeOptions{IncludeBookmarks: true, IncludeMetadata: true}
		if o := record.Options.Merge; o != nil {
			opts = pdf.MergeOptions{
				IncludeBookmarks: o.IncludeBookmarks,
				IncludeMetadata:  o.IncludeMetadata,
				OutputName:       o.OutputName,
			}
		}
		result, err := m.engine.Merge(ctx, jobID, sources, opts, reporter)
		if err != nil {
			m.failJob(ctx, jobID, err)
			return nil
		}
		outputs = []pdf.OutputFile{result.Output}
	case KindSplit:
		o := record.Options.Split
		if o == nil {
			m.failJob(ctx, jobID, pdf.NewError(pdf.CodeSplitFailed, "分割オプションがありません。", nil))
			return nil
		}
		result, err := m.engine.Split(ctx, jobID, sources[0], pdf.SplitOptions{
			Mode:          pdf.SplitMode(o.Mode),
			PagesPerChunk: o.PagesPerChunk,
			Ranges:        o.Ranges,
		}, reporter)
		if err != nil {
			m.failJob(ctx, jobID, err)
			return nil
		}
		outputs = result.Outputs
	default:
		m.failJob(ctx, jobID, fmt.Errorf("unsupported kind: %s", record.Kind))
		return nil
	}

	m.updateProgress(ctx, jobID, 80)

	if err := m.registry.Register(ctx, jobID, outputs); err != nil {
		m.failJob(ctx, jobID, err)
		return nil
	}
	return nil
}

// failJob は失敗を記録して終端状態へ遷移させます。失敗したジョブに成果物が
// 残ることはありません。
func (m *Manager) failJob(ctx context.Context, jobID string, cause error) {
	info := &ErrorInfo{Code: "INTERNAL_ERROR", Message: "サーバー内部でエラーが発生しました。"}
	var apiErr *pdf.Error
	if errors.As(cause, &apiErr) {
		info = &ErrorInfo{Code: apiErr.Code, Message: apiErr.Message}
	} else if cause != nil {
		info.Message = cause.Error()
	}
	if err := m.store.MarkFailed(ctx, jobID, info, m.now()); err != nil {
		m.logf("failed to mark failed job=%s: %v (cause: %v)", jobID, err, cause)
	}
}

func (m *Manager) updateProgress(ctx context.Context, jobID string, progress int) {
	if err := m.store.UpdateProgress(ctx, jobID, progress); err != nil {
		m.logf("failed to update progress job=%s: %v", jobID, err)
	}
}

func (m *Manager) logf(format string, args ...any) {
	if m.logger != nil {
		m.logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// validateSubmission はリクエスト形状の検証を行います。違反時はジョブを
// 作成せずに VALIDATION_ERROR を返します。
func validateSubmission(kind Kind, inputs []string, opts *Options) error {
	for i, id := range inputs {
		if id == "" {
			return pdf.NewError(pdf.CodeValidation,
				fmt.Sprintf("入力ファイルIDが空です (%d番目)。", i+1), nil)
		}
	}

	switch kind {
	case KindMerge:
		if len(inputs) < 2 {
			return pdf.NewError(pdf.CodeValidation, "結合には2つ以上の入力ファイルを指定してください。", nil)
		}
		if opts.Split != nil {
			return pdf.NewError(pdf.CodeValidation, "結合ジョブに分割オプションは指定できません。", nil)
		}
	case KindSplit:
		if len(inputs) != 1 {
			return pdf.NewError(pdf.CodeValidation, "分割の入力ファイルは1つだけ指定してください。", nil)
		}
		if opts.Merge != nil {
			return pdf.NewError(pdf.CodeValidation, "分割ジョブに結合オプションは指定できません。", nil)
		}
		o := opts.Split
		if o == nil {
			return pdf.NewError(pdf.CodeValidation, "分割オプションを指定してください。", nil)
		}
		switch pdf.SplitMode(o.Mode) {
		case pdf.SplitModePages:
			if o.PagesPerChunk == 0 {
				return pdf.NewError(pdf.CodeValidation, "splitBy=pages の場合は pagesPerFile を指定してください。", nil)
			}
		case pdf.SplitModeRange:
			if len(o.Ranges) == 0 {
				return pdf.NewError(pdf.CodeValidation, "splitBy=range の場合は ranges を指定してください。", nil)
			}
		default:
			return pdf.NewError(pdf.CodeValidation,
				fmt.Sprintf("splitBy には pages または range を指定してください (received: %s)", o.Mode), nil)
		}
	default:
		return pdf.NewError(pdf.CodeValidation,
			fmt.Sprintf("操作種別には merge または split を指定してください (received: %s)", kind), nil)
	}
	return nil
}
