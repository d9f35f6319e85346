package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultNamespace = "cache"
	DefaultPrefix    = "zf_"
	DefaultSuffix    = "bat"

	// DefaultFileMode 为写入后的文件权限，默认仅属主可读写。
	DefaultFileMode os.FileMode = 0o600
)

// FileStoreOptions 描述 FileStore 的构造参数，零值字段取默认值。
type FileStoreOptions struct {
	Namespace string
	Prefix    string
	Suffix    string
	// BasePath 为运行时根目录，命名空间目录默认为 BasePath/Namespace。
	BasePath string
	// Path 显式指定命名空间目录，优先于 BasePath。
	Path     string
	FileMode os.FileMode
	Dirs     DirectoryManager
	Logger   *logrus.Logger
	Now      func() time.Time
}

// FileStore 以单个目录承载一个命名空间，每个条目对应 <id>.<suffix> 文件，
// 过期时间记录在 mtime 中。除解析后的目录外不保存任何进程内状态。
type FileStore struct {
	namespace string
	path      string
	suffix    string
	hasher    KeyHasher
	mode      os.FileMode
	dirs      DirectoryManager
	logger    *logrus.Logger
	now       func() time.Time
	locks     *entryLocks
}

// NewFileStore 解析命名空间目录，不存在时通过 DirectoryManager 创建。
func NewFileStore(opts FileStoreOptions) (*FileStore, error) {
	namespace := strings.TrimSpace(opts.Namespace)
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if strings.ContainsAny(namespace, `/\`) || namespace == "." || namespace == ".." {
		return nil, fmt.Errorf("invalid namespace: %q", namespace)
	}

	dir := opts.Path
	if dir == "" {
		if opts.BasePath == "" {
			return nil, errors.New("storage path required")
		}
		dir = filepath.Join(opts.BasePath, namespace)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve namespace path: %w", err)
	}

	store := &FileStore{
		namespace: namespace,
		path:      abs,
		suffix:    strings.TrimPrefix(opts.Suffix, "."),
		hasher:    NewKeyHasher(opts.Prefix),
		mode:      opts.FileMode,
		dirs:      opts.Dirs,
		logger:    opts.Logger,
		now:       opts.Now,
		locks:     newEntryLocks(),
	}
	if opts.Prefix == "" {
		store.hasher = NewKeyHasher(DefaultPrefix)
	}
	if store.suffix == "" {
		store.suffix = DefaultSuffix
	}
	if store.mode == 0 {
		store.mode = DefaultFileMode
	}
	if store.dirs == nil {
		store.dirs = OSDirs{}
	}
	if store.logger == nil {
		store.logger = discardLogger()
	}
	if store.now == nil {
		store.now = time.Now
	}

	if err := store.init(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *FileStore) init() error {
	info, err := os.Stat(s.path)
	switch {
	case err == nil && info.IsDir():
		return nil
	case err == nil:
		return fmt.Errorf("namespace path is not a directory: %s", s.path)
	case !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("stat namespace path: %w", err)
	}
	if err := s.dirs.Mkdir(s.path); err != nil {
		return fmt.Errorf("create namespace path: %w", err)
	}
	return nil
}

// Namespace 返回命名空间名称。
func (s *FileStore) Namespace() string { return s.namespace }

// Path 返回命名空间目录的绝对路径。
func (s *FileStore) Path() string { return s.path }

// Suffix 返回条目文件扩展名（不含点）。
func (s *FileStore) Suffix() string { return s.suffix }

// Hasher 返回该命名空间使用的 KeyHasher。
func (s *FileStore) Hasher() KeyHasher { return s.hasher }

// BuildID 使用本命名空间的前缀计算 key 对应的 id，便于排查磁盘文件。
func (s *FileStore) BuildID(key any) (string, error) {
	return s.hasher.BuildID(key)
}

// FilePath 返回 id 对应的条目文件路径。
func (s *FileStore) FilePath(id string) string {
	return filepath.Join(s.path, id+"."+s.suffix)
}

func (s *FileStore) Get(ctx context.Context, id string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	filePath := s.FilePath(id)
	f, err := os.Open(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer f.Close()

	// mtime 与正文取自同一个已打开的 inode，rename 替换不会造成二者错配。
	info, err := f.Stat()
	if err != nil {
		return nil, false, err
	}
	if info.IsDir() {
		return nil, false, nil
	}
	if Expired(info.ModTime(), s.now()) {
		s.evict(filePath, info)
		return nil, false, nil
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (s *FileStore) Exists(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	filePath := s.FilePath(id)
	info, err := os.Stat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() {
		return false, nil
	}
	if Expired(info.ModTime(), s.now()) {
		s.evict(filePath, info)
		return false, nil
	}
	return true, nil
}

// Set 先写临时文件并设置好 mtime，再 rename 到条目路径：读者只会看到旧内容或
// 完整的新内容，且不会看到 mtime 尚未调整的新文件。写入失败时原条目保持不变。
func (s *FileStore) Set(ctx context.Context, id string, value []byte, ttl int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	unlock := s.locks.lock(id)
	defer unlock()
	// 目录锁让 Clear 与写入互斥，代价是同一命名空间内的写入全部串行。
	unlockDir, err := s.lockNamespace(ctx, true)
	if err != nil {
		return err
	}
	defer unlockDir()

	tempName, err := s.writeTemp(value)
	if err != nil {
		s.logger.WithError(err).WithFields(s.fields(id)).Warn("cache_write_failed")
		return fmt.Errorf("write cache entry: %w", err)
	}

	expireAt, keep := ExpiryFor(ttl, s.now())
	if keep {
		if err := os.Chtimes(tempName, expireAt, expireAt); err != nil {
			os.Remove(tempName)
			return fmt.Errorf("set cache expiry: %w", err)
		}
	}

	filePath := s.FilePath(id)
	if err := os.Rename(tempName, filePath); err != nil {
		os.Remove(tempName)
		return fmt.Errorf("commit cache entry: %w", err)
	}
	if keep {
		return nil
	}

	// ttl <= 0 且非永久：条目写入即过期。
	if err := s.dirs.Unlink(filePath); err != nil {
		return fmt.Errorf("expire cache entry: %w", err)
	}
	return nil
}

func (s *FileStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	unlock := s.locks.lock(id)
	defer unlock()
	return s.dirs.Unlink(s.FilePath(id))
}

// Clear 递归删除命名空间目录后重新创建。该操作不是原子的，中途失败会留下部分条目。
func (s *FileStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	unlockDir, err := s.lockNamespace(ctx, false)
	if err != nil {
		return err
	}
	defer unlockDir()

	if err := s.dirs.Rmdir(s.path, true); err != nil {
		s.logger.WithError(err).WithFields(s.fields("")).Warn("cache_clear_failed")
		return fmt.Errorf("clear namespace: %w", err)
	}
	if err := s.dirs.Mkdir(s.path); err != nil {
		return fmt.Errorf("recreate namespace path: %w", err)
	}
	s.logger.WithFields(s.fields("")).Info("cache_cleared")
	return nil
}

// lockNamespace 获取命名空间目录锁。锁住的目录已被 Clear 替换时重新加锁；
// 目录不存在时，create 为 true 则重建后重试，否则返回空操作解锁函数。
func (s *FileStore) lockNamespace(ctx context.Context, create bool) (func(), error) {
	const maxRecreate = 3
	recreated := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		unlockDir, err := lockDir(s.path)
		switch {
		case err == nil:
			return unlockDir, nil
		case errors.Is(err, errStaleLock):
			continue
		case !errors.Is(err, fs.ErrNotExist):
			return nil, err
		case !create:
			return func() {}, nil
		case recreated >= maxRecreate:
			return nil, err
		}
		recreated++
		if mkErr := s.dirs.Mkdir(s.path); mkErr != nil {
			return nil, fmt.Errorf("recreate namespace path: %w", mkErr)
		}
	}
}

func (s *FileStore) writeTemp(value []byte) (string, error) {
	tempFile, err := os.CreateTemp(s.path, ".tmp-*")
	if err != nil {
		return "", err
	}
	tempName := tempFile.Name()

	_, err = tempFile.Write(value)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Chmod(tempName, s.mode)
	}
	if err != nil {
		os.Remove(tempName)
		return "", err
	}
	return tempName, nil
}

// evict 尽力删除已过期条目，失败只记录日志。删除前确认路径仍指向同一文件，
// 避免误删并发 Set 刚替换进来的新条目。
func (s *FileStore) evict(filePath string, stale fs.FileInfo) {
	current, err := os.Stat(filePath)
	if err != nil || !os.SameFile(current, stale) {
		return
	}
	if err := s.dirs.Unlink(filePath); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"namespace": s.namespace,
			"file":      filePath,
		}).Debug("cache_evict_failed")
	}
}

func (s *FileStore) fields(id string) logrus.Fields {
	fields := logrus.Fields{
		"namespace": s.namespace,
		"path":      s.path,
	}
	if id != "" {
		fields["id"] = id
	}
	return fields
}

func discardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
