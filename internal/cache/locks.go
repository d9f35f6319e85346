package cache

import (
	"errors"
	"sync"
)

// entryLocks 为同一 id 的并发写入提供进程内互斥，锁在无人引用时回收。
type entryLocks struct {
	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

func newEntryLocks() *entryLocks {
	return &entryLocks{locks: make(map[string]*entryLock)}
}

func (l *entryLocks) lock(id string) func() {
	l.mu.Lock()
	lock := l.locks[id]
	if lock == nil {
		lock = &entryLock{}
		l.locks[id] = lock
	}
	lock.refs++
	l.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		l.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

// held 返回当前仍被引用的 id 数量，仅供测试观察锁回收。
func (l *entryLocks) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// errStaleLock 表示锁住的目录已被 Clear 替换，需要重新加锁。
var errStaleLock = errors.New("namespace dir replaced while locking")
