package files

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	fileKeyPrefix = "file:"
	fileIndexKey  = "files:index"
)

// ErrNotFound は対象のファイル記録が存在しないことを表します。
var ErrNotFound = errors.New("file not found")

// Store はファイル記録の永続化層です。
type Store interface {
	Create(ctx context.Context, record *Record) error
	// Get は記録を取得します。存在しない場合は (nil, nil) を返します。
	Get(ctx context.Context, fileID string) (*Record, error)
	Delete(ctx context.Context, fileID string) error
	List(ctx context.Context, page, pageSize int) (*ListResult, error)
}

// RedisStore はファイル記録を Redis に保存する Store 実装です。
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore は RedisStore を作成します。
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// Create はファイル記録を新規保存します。
func (s *RedisStore) Create(ctx context.Context, record *Record) error {
	if record == nil {
		return fmt.Errorf("record is nil")
	}
	if record.FileID == "" {
		return fmt.Errorf("record.FileID is required")
	}
	if record.UploadedAt.IsZero() {
		record.UploadedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, fileKey(record.FileID), payload, 0)
	pipe.ZAdd(ctx, fileIndexKey, redis.Z{
		Score:  float64(record.UploadedAt.UnixNano()),
		Member: record.FileID,
	})
	_, err = pipe.Exec(ctx)
	return err
}

// Get はファイル記録を取得します。
func (s *RedisStore) Get(ctx context.Context, fileID string) (*Record, error) {
	if fileID == "" {
		return nil, fmt.Errorf("fileID is required")
	}
	data, err := s.rdb.Get(ctx, fileKey(fileID)).Bytes()
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

// Delete はファイル記録とインデックスエントリを削除します。
func (s *RedisStore) Delete(ctx context.Context, fileID string) error {
	pipe := s.rdb.TxPipeline()
	del := pipe.Del(ctx, fileKey(fileID))
	pipe.ZRem(ctx, fileIndexKey, fileID)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	if del.Val() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, fileID)
	}
	return nil
}

// List はアップロード時刻の降順でファイル記録の一覧を返します。
func (s *RedisStore) List(ctx context.Context, page, pageSize int) (*ListResult, error) {
	ids, err := s.rdb.ZRevRange(ctx, fileIndexKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}

	records := make([]*Record, 0, len(ids))
	for _, id := range ids {
		record, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if record == nil {
			continue
		}
		records = append(records, record)
	}

	return paginate(records, page, pageSize), nil
}

func fileKey(id string) string {
	return fileKeyPrefix + id
}

// MemoryStore はメモリ上の Store 実装です。テストと開発用です。
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryStore は MemoryStore を作成します。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

// Create はファイル記録を新規保存します。
func (m *MemoryStore) Create(ctx context.Context, record *Record) error {
	if record == nil {
		return fmt.Errorf("record is nil")
	}
	if record.FileID == "" {
		return fmt.Errorf("record.FileID is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if record.UploadedAt.IsZero() {
		record.UploadedAt = time.Now().UTC()
	}
	dup := *record
	m.records[record.FileID] = &dup
	return nil
}

// Get はファイル記録を取得します。存在しない場合は (nil, nil) を返します。
func (m *MemoryStore) Get(ctx context.Context, fileID string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, exists := m.records[fileID]
	if !exists {
		return nil, nil
	}
	dup := *record
	return &dup, nil
}

// Delete はファイル記録を削除します。
func (m *MemoryStore) Delete(ctx context.Context, fileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.records[fileID]; !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, fileID)
	}
	delete(m.records, fileID)
	return nil
}

// List はアップロード時刻の降順でファイル記録の一覧を返します。
func (m *MemoryStore) List(ctx context.Context, page, pageSize int) (*ListResult, error) {
	m.mu.RLock()
	records := make([]*Record, 0, len(m.records))
	for _, record := range m.records {
		dup := *record
		records = append(records, &dup)
	}
	m.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		return records[i].UploadedAt.After(records[j].UploadedAt)
	})
	return paginate(records, page, pageSize), nil
}

func paginate(records []*Record, page, pageSize int) *ListResult {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}

	total := len(records)
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
		Records:    records[start:end],
		Total:      total,
		Page:       page,
		TotalPages: totalPages,
	}
}
