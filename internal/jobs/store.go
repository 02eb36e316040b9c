package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	jobKeyPrefix = "job:"
	jobIndexKey  = "jobs:index"
)

// ErrNotFound は対象のジョブが存在しないことを表します。
var ErrNotFound = errors.New("job not found")

// ErrTerminal は終端状態のジョブへの書き込みを拒否したことを表します。
var ErrTerminal = errors.New("job already in terminal state")

// RecordStore はジョブ状態の永続化層です。ステータス・進捗・成果物・エラーの
// 各更新は1つの可視単位として適用されます。
type RecordStore interface {
	Create(ctx context.Context, record *Record) error
	// Get はジョブを取得します。存在しない場合は (nil, nil) を返します。
	Get(ctx context.Context, jobID string) (*Record, error)
	MarkProcessing(ctx context.Context, jobID string, progress int) error
	UpdateProgress(ctx context.Context, jobID string, progress int) error
	MarkCompleted(ctx context.Context, jobID string, outputs []Artifact, completedAt time.Time) error
	MarkFailed(ctx context.Context, jobID string, errInfo *ErrorInfo, completedAt time.Time) error
	Delete(ctx context.Context, jobID string) error
	List(ctx context.Context, filter ListFilter) (*ListResult, error)
}

// Store はジョブ状態を Redis に保存する RecordStore 実装です。
// 一覧用に作成時刻の sorted set インデックスを併せて管理します。
type Store struct {
	rdb *redis.Client
}

// NewStore は Store を作成します。
func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// Create はジョブを新規保存します。
func (s *Store) Create(ctx context.Context, record *Record) error {
	if record == nil {
		return fmt.Errorf("record is nil")
	}
	if record.JobID == "" {
		return fmt.Errorf("record.JobID is required")
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, jobKey(record.JobID), payload, 0)
	pipe.ZAdd(ctx, jobIndexKey, redis.Z{
		Score:  float64(record.CreatedAt.UnixNano()),
		Member: record.JobID,
	})
	_, err = pipe.Exec(ctx)
	return err
}

// Get はジョブ情報を取得します。
func (s *Store) Get(ctx context.Context, jobID string) (*Record, error) {
	if jobID == "" {
		return nil, fmt.Errorf("jobID is required")
	}
	data, err := s.rdb.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// MarkProcessing は処理開始を記録します。
func (s *Store) MarkProcessing(ctx context.Context, jobID string, progress int) error {
	return s.updatePartial(ctx, jobID, func(record *Record) error {
		record.Status = StatusProcessing
		if progress > record.Progress {
			record.Progress = progress
		}
		return nil
	})
}

// UpdateProgress は進捗を更新します。進捗は後退しません。
func (s *Store) UpdateProgress(ctx context.Context, jobID string, progress int) error {
	return s.updatePartial(ctx, jobID, func(record *Record) error {
		if progress > record.Progress {
			record.Progress = progress
		}
		return nil
	})
}

// MarkCompleted はジョブ完了と成果物を1つの更新として保存します。
func (s *Store) MarkCompleted(ctx context.Context, jobID string, outputs []Artifact, completedAt time.Time) error {
	return s.updatePartial(ctx, jobID, func(record *Record) error {
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
func (s *Store) MarkFailed(ctx context.Context, jobID string, errInfo *ErrorInfo, completedAt time.Time) error {
	return s.updatePartial(ctx, jobID, func(record *Record) error {
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

// Delete はジョブとインデックスエントリを削除します。
func (s *Store) Delete(ctx context.Context, jobID string) error {
	if jobID == "" {
		return fmt.Errorf("jobID is required")
	}
	pipe := s.rdb.TxPipeline()
	del := pipe.Del(ctx, jobKey(jobID))
	pipe.ZRem(ctx, jobIndexKey, jobID)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	if del.Val() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	return nil
}

// List は作成時刻の降順でジョブの一覧を返します。
func (s *Store) List(ctx context.Context, filter ListFilter) (*ListResult, error) {
	ids, err := s.rdb.ZRevRange(ctx, jobIndexKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}

	matched := make([]*Record, 0, len(ids))
	for _, id := range ids {
		record, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if record == nil {
			// インデックスだけ残った項目は読み飛ばす
			continue
		}
		if filter.Matches(record) {
			matched = append(matched, record)
		}
	}

	return paginate(matched, filter), nil
}

// Matches はレコードが絞り込み条件に一致するかを返します。
func (f ListFilter) Matches(record *Record) bool {
	if record == nil {
		return false
	}
	if f.Status != "" && record.Status != f.Status {
		return false
	}
	if f.Kind != "" && record.Kind != f.Kind {
		return false
	}
	if f.OwnerToken != "" && record.OwnerToken != f.OwnerToken {
		return false
	}
	return true
}

// paginate は一致済みレコード列から1ページ分を切り出します。
func paginate(matched []*Record, filter ListFilter) *ListResult {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = 10
	}

	total := len(matched)
	totalPages := (total + pageSize - 1) / pageSize
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	return &ListResult{
		Records:    matched[start:end],
		Total:      total,
		Page:       page,
		TotalPages: totalPages,
	}
}

// maxUpdateRetries は楽観ロック競合時の再試行上限です。
const maxUpdateRetries = 5

// updatePartial はジョブキーを WATCH した read-modify-write でレコードを
// 更新します。Exec までの間に Delete や別の更新が入ると Exec が失敗し、
// 次の試行で最新状態（削除済みなら not-found）を観測します。
func (s *Store) updatePartial(ctx context.Context, jobID string, mutate func(*Record) error) error {
	key := jobKey(jobID)
	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if err == redis.Nil {
				return fmt.Errorf("%w: %s", ErrNotFound, jobID)
			}
			return err
		}
		var record Record
		if err := json.Unmarshal(data, &record); err != nil {
			return err
		}
		if record.Status.Terminal() {
			return fmt.Errorf("%w: %s", ErrTerminal, jobID)
		}
		if err := mutate(&record); err != nil {
			return err
		}
		record.UpdatedAt = time.Now().UTC()
		payload, err := json.Marshal(&record)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			return nil
		})
		return err
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := s.rdb.Watch(ctx, txn, key)
		if err != redis.TxFailedErr {
			return err
		}
	}
	return fmt.Errorf("job update contention: %s", jobID)
}

func jobKey(id string) string {
	return jobKeyPrefix + id
}
