//go:build unix

package cache

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// lockDir 对命名空间目录加 flock(LOCK_EX)，跨进程串行化写入与清空。
// flock 绑定在打开的文件描述上，同一进程内的不同 goroutine 也会互斥。
// 加锁后若路径已指向新建的目录（期间发生过 Clear），返回 errStaleLock。
func lockDir(path string) (func(), error) {
	dir, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open namespace dir: %w", err)
	}
	fd := int(dir.Fd())
	for {
		err = unix.Flock(fd, unix.LOCK_EX)
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		dir.Close()
		return nil, fmt.Errorf("flock namespace dir: %w", err)
	}
	unlock := func() {
		_ = unix.Flock(fd, unix.LOCK_UN)
		dir.Close()
	}

	locked, err := dir.Stat()
	if err != nil {
		unlock()
		return nil, fmt.Errorf("stat namespace dir: %w", err)
	}
	current, err := os.Stat(path)
	if err != nil {
		unlock()
		return nil, fmt.Errorf("stat namespace dir: %w", err)
	}
	if !os.SameFile(locked, current) {
		unlock()
		return nil, errStaleLock
	}
	return unlock, nil
}
