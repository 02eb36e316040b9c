package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore はメモリ上の RecordStore 実装です。テストと開発用です。
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryStore は MemoryStore を作成します。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Record),
	}
}

// Create はジョブを新規保存します。
func (m *MemoryStore) Create(ctx context.Context, record *Record) error {
	if record == nil {
		return fmt.Errorf("record is nil")
	}
	if record.JobID == "" {
		return fmt.Errorf("record.JobID is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[record.JobID]; exists {
		return fmt.Errorf("job already exists: %s", record.JobID)
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	m.records[record.JobID] = record.Clone()
	return nil
}

// Get はジョブ情報を取得します。存在しない場合は (nil, nil) を返します。
func (m *MemoryStore) Get(ctx context.Context, jobID string) (*Record, error) {
	if jobID == "" {
		return nil, fmt.Errorf("jobID is required")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.records[jobID].Clone(), nil
}

// MarkProcessing は処理開始を記録します。
func (m *MemoryStore) MarkProcessing(ctx context.Context, jobID string, progress int) error {
	return m.updatePartial(jobID, func(record *Record) error {
		record.Status = StatusProcessing
		if progress > record.Progress {
			record.Progress = progress
		}
		return nil
	})
}

// UpdateProgress は進捗を更新します。進捗は後退しません。
func (m *MemoryStore) UpdateProgress(ctx context.Context, jobID string, progress int) error {
	return m.updatePartial(jobID, func(record *Record) error {
		if progress > record.Progress {
			record.Progress = progress
		}
		return nil
	})
}

// MarkCompleted はジョブ完了と成果物を1つの更新として保存します。
func (m *MemoryStore) MarkCompleted(ctx context.Context, jobID string, outputs []Artifact, completedAt time.Time) error {
	return m.updatePartial(jobID, func(record *Record) error {
		if len(outputs) == 0 {
			return fmt.Errorf("completed job requires outputs")
		}
		record.Status = StatusCompleted
		record.Progress = 100
		record.Outputs = append([]Artifact(nil), outputs...)
		record.Error = nil
		t := completedAt.UTC()
		record.CompletedAt = &t
		return nil
	})
}

// MarkFailed はジョブ失敗とエラー情報を1つの更新として保存します。
func (m *MemoryStore) MarkFailed(ctx context.Context, jobID string, errInfo *ErrorInfo, completedAt time.Time) error {
	return m.updatePartial(jobID, func(record *Record) error {
		record.Status = StatusFailed
		record.Outputs = nil
		if errInfo != nil {
			record.Error = errInfo
		} else {
			record.Error = &ErrorInfo{Code: "INTERNAL_ERROR", Message: "unknown failure"}
		}
		t := completedAt.UTC()
		record.CompletedAt = &t
		return nil
	})
}

// Delete はジョブを削除します。
func (m *MemoryStore) Delete(ctx context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.records[jobID]; !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	delete(m.records, jobID)
	return nil
}

// List は作成時刻の降順でジョブの一覧を返します。
func (m *MemoryStore) List(ctx context.Context, filter ListFilter) (*ListResult, error) {
	m.mu.RLock()
	matched := make([]*Record, 0, len(m.records))
	for _, record := range m.records {
		if filter.Matches(record) {
			matched = append(matched, record.Clone())
		}
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	return paginate(matched, filter), nil
}

func (m *MemoryStore) updatePartial(jobID string, mutate func(*Record) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, exists := m.records[jobID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	if record.Status.Terminal() {
		return fmt.Errorf("%w: %s", ErrTerminal, jobID)
	}
	updated := record.Clone()
	if err := mutate(updated); err != nil {
		return err
	}
	updated.UpdatedAt = time.Now().UTC()
	m.records[jobID] = updated
	return nil
}
