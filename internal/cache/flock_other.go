//go:build !unix

package cache

// lockDir 在不支持 flock 的平台上退化为仅依赖进程内 entryLocks。
func lockDir(string) (func(), error) {
	return func() {}, nil
}
