package cache

import (
	"errors"
	"io/fs"
	"os"
)

// DirectoryManager 封装目录级操作，FileStore 只调用而不关心具体实现，测试可注入失败场景。
type DirectoryManager interface {
	// Mkdir 递归创建目录。
	Mkdir(path string) error
	// Rmdir 删除目录；recursive=false 时仅删除空目录。目录不存在视为成功。
	Rmdir(path string, recursive bool) error
	// Unlink 删除单个文件，文件不存在视为成功。
	Unlink(path string) error
}

// OSDirs 是基于本地文件系统的 DirectoryManager。
type OSDirs struct{}

func (OSDirs) Mkdir(path string) error {
	return os.MkdirAll(path, 0o755)
}

func (OSDirs) Rmdir(path string, recursive bool) error {
	var err error
	if recursive {
		err = os.RemoveAll(path)
	} else {
		err = os.Remove(path)
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (OSDirs) Unlink(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
