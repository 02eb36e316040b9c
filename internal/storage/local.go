// Package storage はストレージ抽象化レイヤーを提供します。
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Storage はファイル保存先の抽象化です。参照はルート相対のパスです。
type Storage interface {
	Save(ctx context.Context, ref string, data []byte) error
	Load(ctx context.Context, ref string) ([]byte, error)
	Delete(ctx context.Context, ref string) error
	Exists(ctx context.Context, ref string) (bool, error)
}

// Local はローカルファイルシステム上の Storage 実装です。
type Local struct {
	root string
}

// NewLocal はルートディレクトリ配下に保存する Local を作成します。
func NewLocal(root string) (*Local, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("storage root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &Local{root: abs}, nil
}

// Save はデータを参照パスに書き込みます。親ディレクトリは自動作成されます。
func (l *Local) Save(ctx context.Context, ref string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := l.resolve(ref)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}
	return os.WriteFile(path, data, 0o640)
}

// Load は参照パスのデータを読み込みます。
func (l *Local) Load(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := l.resolve(ref)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

// Delete は参照パスのファイルを削除します。存在しない場合はエラーにしません。
func (l *Local) Delete(ctx context.Context, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := l.resolve(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Exists は参照パスのファイルが存在するかを返します。
func (l *Local) Exists(ctx context.Context, ref string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	path, err := l.resolve(ref)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// AbsPath は参照パスに対応する実ファイルパスを返します。
// pdfcpu のファイルベースAPIに入力を渡すために使用します。
func (l *Local) AbsPath(ref string) (string, error) {
	return l.resolve(ref)
}

// resolve はルート外への参照を拒否しつつ実パスを組み立てます。
func (l *Local) resolve(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("storage reference is required")
	}
	cleaned := filepath.Clean(filepath.FromSlash(ref))
	if filepath.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid storage reference: %s", ref)
	}
	return filepath.Join(l.root, cleaned), nil
}
