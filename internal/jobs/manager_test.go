package jobs

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/anshikanegi280/pdf-merger/internal/config"
	"github.com/anshikanegi280/pdf-merger/internal/pdf"
)

type stubEngine struct {
	mergeResult *pdf.MergeResult
	splitResult *pdf.SplitResult
	mergeErr    error
	splitErr    error
	removed     []string
}

func (s *stubEngine) Merge(ctx context.Context, jobID string, sources []pdf.Source, opts pdf.MergeOptions, progress pdf.ProgressReporter) (*pdf.MergeResult, error) {
	if progress != nil {
		progress("process", 40)
		progress("completed", 100)
	}
	return s.mergeResult, s.mergeErr
}

func (s *stubEngine) Split(ctx context.Context, jobID string, source pdf.Source, opts pdf.SplitOptions, progress pdf.ProgressReporter) (*pdf.SplitResult, error) {
	return s.splitResult, s.splitErr
}

func (s *stubEngine) RemoveWorkspace(jobID string) error {
	s.removed = append(s.removed, jobID)
	return nil
}

type stubResolver struct {
	sources map[string]pdf.Source
	err     error
}

func (s *stubResolver) ResolveInput(ctx context.Context, fileID string) (pdf.Source, error) {
	if s.err != nil {
		return pdf.Source{}, s.err
	}
	src, ok := s.sources[fileID]
	if !ok {
		return pdf.Source{}, pdf.NewError(pdf.CodeNotFound,
			fmt.Sprintf("入力ファイル %q が見つかりません。", fileID), nil)
	}
	return src, nil
}

// stubRegistry は本来の成果物登録と同じく、成功時にレコードを completed へ
// 遷移させます。
type stubRegistry struct {
	store      RecordStore
	registered [][]pdf.OutputFile
	cleaned    []string
	err        error
}

func (s *stubRegistry) Register(ctx context.Context, jobID string, outputs []pdf.OutputFile) error {
	if s.err != nil {
		return s.err
	}
	s.registered = append(s.registered, outputs)
	artifacts := make([]Artifact, len(outputs))
	for i, out := range outputs {
		artifacts[i] = Artifact{
			Filename:      out.Filename,
			OriginalLabel: out.Label,
			StorageRef:    "jobs/" + jobID + "/" + out.Filename,
			Size:          out.Size,
			Pages:         out.Pages,
		}
	}
	return s.store.MarkCompleted(ctx, jobID, artifacts, time.Now().UTC())
}

func (s *stubRegistry) Cleanup(ctx context.Context, record *Record) {
	s.cleaned = append(s.cleaned, record.JobID)
}

func newTestManager(store RecordStore, engine Engine, resolver InputResolver, registry ArtifactRegistry) *Manager {
	return &Manager{
		cfg:      &config.Config{DefaultPageSize: 10, MaxPageSize: 100},
		store:    store,
		engine:   engine,
		resolver: resolver,
		registry: registry,
		now:      time.Now,
	}
}

func createPendingJob(t *testing.T, store RecordStore, kind Kind, inputs []string, opts Options) string {
	t.Helper()
	jobID := "job-" + string(kind) + "-test"
	record := &Record{
		JobID:     jobID,
		Kind:      kind,
		Inputs:    inputs,
		Options:   opts,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := store.Create(context.Background(), record); err != nil {
		t.Fatalf("failed to create record: %v", err)
	}
	return jobID
}

func TestExecuteMergeCompletesJob(t *testing.T) {
	store := NewMemoryStore()
	engine := &stubEngine{
		mergeResult: &pdf.MergeResult{
			Output: pdf.OutputFile{
				Path:     "/tmp/out/merged.pdf",
				Filename: "merged.pdf",
				Label:    "1-5",
				Pages:    5,
				Size:     1234,
			},
			TotalPages: 5,
		},
	}
	resolver := &stubResolver{sources: map[string]pdf.Source{
		"file-a": {Path: "/tmp/a.pdf", Name: "a.pdf", Pages: 2},
		"file-b": {Path: "/tmp/b.pdf", Name: "b.pdf", Pages: 3},
	}}
	registry := &stubRegistry{store: store}
	manager := newTestManager(store, engine, resolver, registry)

	jobID := createPendingJob(t, store, KindMerge, []string{"file-a", "file-b"}, Options{})

	if err := manager.execute(context.Background(), jobID); err != nil {
		t.Fatalf("execute returned error: %v", err)
	}

	record, err := store.Get(context.Background(), jobID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if record.Status != StatusCompleted {
		t.Fatalf("status = %s, want %s", record.Status, StatusCompleted)
	}
	if record.Progress != 100 {
		t.Fatalf("progress = %d, want 100", record.Progress)
	}
	if len(record.Outputs) != 1 || record.Outputs[0].Filename != "merged.pdf" {
		t.Fatalf("unexpected outputs: %+v", record.Outputs)
	}
	if record.CompletedAt == nil {
		t.Fatal("expected CompletedAt to be set")
	}
	if record.Error != nil {
		t.Fatalf("unexpected error info: %+v", record.Error)
	}
	if len(engine.removed) != 1 || engine.removed[0] != jobID {
		t.Fatalf("workspace not removed: %v", engine.removed)
	}
}

func TestExecuteSplitCompletesJob(t *testing.T) {
	store := NewMemoryStore()
	engine := &stubEngine{
		splitResult: &pdf.SplitResult{
			Outputs: []pdf.OutputFile{
				{Path: "/tmp/out/split_1_to_2.pdf", Filename: "split_1_to_2.pdf", Label: "1-2", Pages: 2, Size: 100},
				{Path: "/tmp/out/split_3_to_4.pdf", Filename: "split_3_to_4.pdf", Label: "3-4", Pages: 2, Size: 100},
			},
		},
	}
	resolver := &stubResolver{sources: map[string]pdf.Source{
		"file-a": {Path: "/tmp/a.pdf", Name: "a.pdf", Pages: 4},
	}}
	registry := &stubRegistry{store: store}
	manager := newTestManager(store, engine, resolver, registry)

	jobID := createPendingJob(t, store, KindSplit, []string{"file-a"}, Options{
		Split: &SplitOptions{Mode: "pages", PagesPerChunk: 2},
	})

	if err := manager.execute(context.Background(), jobID); err != nil {
		t.Fatalf("execute returned error: %v", err)
	}

	record, _ := store.Get(context.Background(), jobID)
	if record.Status != StatusCompleted {
		t.Fatalf("status = %s, want %s", record.Status, StatusCompleted)
	}
	if len(record.Outputs) != 2 {
		t.Fatalf("unexpected output count: %d", len(record.Outputs))
	}
	if record.Outputs[0].OriginalLabel != "1-2" {
		t.Fatalf("unexpected label: %q", record.Outputs[0].OriginalLabel)
	}
}

func TestExecuteFailsJobOnEngineError(t *testing.T) {
	store := NewMemoryStore()
	engine := &stubEngine{
		mergeErr: pdf.NewError(pdf.CodeMergeFailed, "PDFの結合に失敗しました。", nil),
	}
	resolver := &stubResolver{sources: map[string]pdf.Source{
		"file-a": {Path: "/tmp/a.pdf", Pages: 1},
		"file-b": {Path: "/tmp/b.pdf", Pages: 1},
	}}
	registry := &stubRegistry{store: store}
	manager := newTestManager(store, engine, resolver, registry)

	jobID := createPendingJob(t, store, KindMerge, []string{"file-a", "file-b"}, Options{})

	if err := manager.execute(context.Background(), jobID); err != nil {
		t.Fatalf("execute returned error: %v", err)
	}

	record, _ := store.Get(context.Background(), jobID)
	if record.Status != StatusFailed {
		t.Fatalf("status = %s, want %s", record.Status, StatusFailed)
	}
	if record.Error == nil || record.Error.Code != pdf.CodeMergeFailed {
		t.Fatalf("unexpected error info: %+v", record.Error)
	}
	if len(record.Outputs) != 0 {
		t.Fatalf("failed job should not have outputs: %+v", record.Outputs)
	}
	if record.CompletedAt == nil {
		t.Fatal("expected CompletedAt to be set on failure")
	}
}

func TestExecuteFailsJobOnMissingInput(t *testing.T) {
	store := NewMemoryStore()
	engine := &stubEngine{}
	resolver := &stubResolver{sources: map[string]pdf.Source{}}
	registry := &stubRegistry{store: store}
	manager := newTestManager(store, engine, resolver, registry)

	jobID := createPendingJob(t, store, KindMerge, []string{"ghost-1", "ghost-2"}, Options{})

	if err := manager.execute(context.Background(), jobID); err != nil {
		t.Fatalf("execute returned error: %v", err)
	}

	record, _ := store.Get(context.Background(), jobID)
	if record.Status != StatusFailed {
		t.Fatalf("status = %s, want %s", record.Status, StatusFailed)
	}
	if record.Error == nil || record.Error.Code != pdf.CodeNotFound {
		t.Fatalf("unexpected error info: %+v", record.Error)
	}
}

func TestExecuteSkipsDeletedJob(t *testing.T) {
	store := NewMemoryStore()
	engine := &stubEngine{}
	registry := &stubRegistry{store: store}
	manager := newTestManager(store, engine, &stubResolver{}, registry)

	if err := manager.execute(context.Background(), "gone"); err != nil {
		t.Fatalf("execute returned error: %v", err)
	}
	if len(registry.registered) != 0 {
		t.Fatalf("unexpected registrations: %v", registry.registered)
	}
}

func TestExecuteDoesNotResurrectTerminalJob(t *testing.T) {
	store := NewMemoryStore()
	engine := &stubEngine{
		mergeResult: &pdf.MergeResult{Output: pdf.OutputFile{Filename: "merged.pdf", Pages: 2}},
	}
	resolver := &stubResolver{sources: map[string]pdf.Source{
		"file-a": {Path: "/tmp/a.pdf", Pages: 1},
		"file-b": {Path: "/tmp/b.pdf", Pages: 1},
	}}
	registry := &stubRegistry{store: store}
	manager := newTestManager(store, engine, resolver, registry)

	jobID := createPendingJob(t, store, KindMerge, []string{"file-a", "file-b"}, Options{})
	if err := store.MarkFailed(context.Background(), jobID, &ErrorInfo{Code: "MERGE_FAILED", Message: "x"}, time.Now()); err != nil {
		t.Fatalf("MarkFailed returned error: %v", err)
	}

	if err := manager.execute(context.Background(), jobID); err != nil {
		t.Fatalf("execute returned error: %v", err)
	}

	record, _ := store.Get(context.Background(), jobID)
	if record.Status != StatusFailed {
		t.Fatalf("terminal status changed: %s", record.Status)
	}
}

func TestManagerDeleteCleansArtifacts(t *testing.T) {
	store := NewMemoryStore()
	registry := &stubRegistry{store: store}
	manager := newTestManager(store, &stubEngine{}, &stubResolver{}, registry)

	jobID := createPendingJob(t, store, KindMerge, []string{"a", "b"}, Options{})

	if err := manager.Delete(context.Background(), jobID); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if len(registry.cleaned) != 1 || registry.cleaned[0] != jobID {
		t.Fatalf("cleanup not invoked: %v", registry.cleaned)
	}
	record, err := store.Get(context.Background(), jobID)
	if err != nil || record != nil {
		t.Fatalf("expected record gone, got %+v err=%v", record, err)
	}
}

func TestManagerDeleteUnknownJob(t *testing.T) {
	store := NewMemoryStore()
	manager := newTestManager(store, &stubEngine{}, &stubResolver{}, &stubRegistry{store: store})

	err := manager.Delete(context.Background(), "missing")
	var appErr *pdf.Error
	if !errors.As(err, &appErr) || appErr.Code != pdf.CodeNotFound {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestManagerListClampsPageSize(t *testing.T) {
	store := NewMemoryStore()
	manager := newTestManager(store, &stubEngine{}, &stubResolver{}, &stubRegistry{store: store})

	for i := 0; i < 3; i++ {
		record := &Record{
			JobID:     fmt.Sprintf("job-%d", i),
			Kind:      KindMerge,
			Status:    StatusPending,
			CreatedAt: time.Now().UTC().Add(time.Duration(i) * time.Millisecond),
		}
		if err := store.Create(context.Background(), record); err != nil {
			t.Fatalf("failed to create record: %v", err)
		}
	}

	result, err := manager.List(context.Background(), ListFilter{PageSize: 100000})
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if result.Total != 3 {
		t.Fatalf("Total = %d, want 3", result.Total)
	}
	if result.TotalPages != 1 {
		t.Fatalf("TotalPages = %d, want 1", result.TotalPages)
	}

	// 既定のページサイズが適用される
	paged, err := manager.List(context.Background(), ListFilter{})
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(paged.Records) != 3 || paged.Page != 1 {
		t.Fatalf("unexpected default page: %+v", paged)
	}
}

func TestValidateSubmission(t *testing.T) {
	cases := []struct {
		name    string
		kind    Kind
		inputs  []string
		opts    Options
		wantErr bool
	}{
		{"merge ok", KindMerge, []string{"a", "b"}, Options{}, false},
		{"merge single input", KindMerge, []string{"a"}, Options{}, true},
		{"merge with split options", KindMerge, []string{"a", "b"}, Options{Split: &SplitOptions{Mode: "pages"}}, true},
		{"merge empty input id", KindMerge, []string{"a", ""}, Options{}, true},
		{"split pages ok", KindSplit, []string{"a"}, Options{Split: &SplitOptions{Mode: "pages", PagesPerChunk: 3}}, false},
		{"split range ok", KindSplit, []string{"a"}, Options{Split: &SplitOptions{Mode: "range", Ranges: []string{"1-2"}}}, false},
		{"split multiple inputs", KindSplit, []string{"a", "b"}, Options{Split: &SplitOptions{Mode: "pages", PagesPerChunk: 3}}, true},
		{"split missing options", KindSplit, []string{"a"}, Options{}, true},
		{"split pages without size", KindSplit, []string{"a"}, Options{Split: &SplitOptions{Mode: "pages"}}, true},
		{"split range without ranges", KindSplit, []string{"a"}, Options{Split: &SplitOptions{Mode: "range"}}, true},
		{"split unknown mode", KindSplit, []string{"a"}, Options{Split: &SplitOptions{Mode: "chapters"}}, true},
		{"unknown kind", Kind("rotate"), []string{"a"}, Options{}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateSubmission(tc.kind, tc.inputs, &tc.opts)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected validation error")
				}
				var appErr *pdf.Error
				if !errors.As(err, &appErr) || appErr.Code != pdf.CodeValidation {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
