package filestore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/z-wentao/audioscribe/pkg/models"
)

// FileStore 音频文件存储协作方
// 核心只保存和传递 ref，不关心字节存在哪里
type FileStore interface {
	// Save 保存文件，返回不透明的存储引用
	Save(r io.Reader, originalName string) (string, error)

	// Open 按引用打开文件（不存在返回 ErrNotFound）
	Open(ref string) (io.ReadCloser, error)

	// Path 返回引用对应的本地路径（供识别引擎和播放器读取）
	Path(ref string) (string, error)

	// Delete 删除文件（不存在返回 ErrNotFound）
	Delete(ref string) error
}

// LocalStore 本地磁盘实现
type LocalStore struct {
	dir string
}

// NewLocalStore 创建本地文件存储，目录不存在时自动创建
func NewLocalStore(dir string) (*LocalStore, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("解析存储目录失败: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("创建存储目录失败: %w", err)
	}
	return &LocalStore{dir: abs}, nil
}

// Save 以 uuid + 原扩展名命名，避免用户文件名冲突和路径注入
func (ls *LocalStore) Save(r io.Reader, originalName string) (string, error) {
	ref := uuid.New().String() + strings.ToLower(filepath.Ext(originalName))

	f, err := os.Create(filepath.Join(ls.dir, ref))
	if err != nil {
		return "", fmt.Errorf("创建文件失败: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("写入文件失败: %w", err)
	}

	return ref, nil
}

func (ls *LocalStore) Open(ref string) (io.ReadCloser, error) {
	path, err := ls.Path(ref)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("打开文件失败: %w", err)
	}
	return f, nil
}

// Path 校验引用不含路径分隔符，防止目录穿越
func (ls *LocalStore) Path(ref string) (string, error) {
	if ref == "" || filepath.Base(ref) != ref {
		return "", fmt.Errorf("%w: 非法的存储引用 %q", models.ErrNotFound, ref)
	}
	return filepath.Join(ls.dir, ref), nil
}

func (ls *LocalStore) Delete(ref string) error {
	path, err := ls.Path(ref)
	if err != nil {
		return err
	}

	err = os.Remove(path)
	if os.IsNotExist(err) {
		return models.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("删除文件失败: %w", err)
	}
	return nil
}
