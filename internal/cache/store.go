package cache

import (
	"context"
	"errors"
	"time"
)

// Store 是所有缓存后端共享的五操作契约，全部以派生 id 寻址，而非调用方原始 key。
//
//	<Path>/<id>.<suffix>    # 正文，mtime 即过期时间
//
// 未命中不是错误：Get 返回 (nil, false, nil)。
type Store interface {
	// Get 返回条目完整内容；不存在或已过期时返回 ok=false。过期条目会被顺手删除。
	Get(ctx context.Context, id string) ([]byte, bool, error)

	// Set 写入正文并按 ttl（秒）设置过期：Permanent 永不过期，>0 为 now+ttl，
	// 其余视为已过期并立即删除。
	Set(ctx context.Context, id string, value []byte, ttl int64) error

	// Delete 删除条目，条目不存在时同样成功。
	Delete(ctx context.Context, id string) error

	// Exists 与 Get 使用相同的过期判断（含惰性删除），但不读取正文。
	Exists(ctx context.Context, id string) (bool, error)

	// Clear 清空当前命名空间下的所有条目。
	Clear(ctx context.Context) error
}

// Permanent 作为 ttl 传入时表示条目永不过期。
const Permanent int64 = -1

// PermanentModTime 是永久条目写入的 mtime 哨兵值（2038-01-19T03:14:07Z）。
// 读取时先做相等判断，再与时钟比较，因此与当前时间无关。
var PermanentModTime = time.Unix(0x7FFFFFFF, 0)

// MaxTTL 是 ttl（秒）的上限，约 100 年。更大的值按此截断，避免换算成 time.Duration 时溢出。
const MaxTTL int64 = 100 * 365 * 24 * 60 * 60

// ErrUnsupportedKey 表示复合 key 无法被规范化序列化。
var ErrUnsupportedKey = errors.New("unsupported cache key")

// IsPermanent 判断 mtime 是否为永久哨兵。
func IsPermanent(modTime time.Time) bool {
	return modTime.Unix() == PermanentModTime.Unix()
}

// Expired 判断条目在 now 时刻是否已失效：哨兵永不过期，其余 now >= mtime 即过期。
func Expired(modTime, now time.Time) bool {
	if IsPermanent(modTime) {
		return false
	}
	return !now.Before(modTime)
}

// ExpiryFor 根据 ttl 计算需要写入的 mtime；ok=false 表示条目应立即删除。
func ExpiryFor(ttl int64, now time.Time) (time.Time, bool) {
	switch {
	case ttl == Permanent:
		return PermanentModTime, true
	case ttl > 0:
		at := now.Add(TTLDuration(ttl))
		// 恰好落在哨兵上的过期时间会被误判为永久。
		if IsPermanent(at) {
			at = at.Add(time.Second)
		}
		return at, true
	default:
		return time.Time{}, false
	}
}

// TTLDuration 将正的 ttl（秒）换算为 time.Duration，超过 MaxTTL 时截断。
func TTLDuration(ttl int64) time.Duration {
	if ttl > MaxTTL {
		ttl = MaxTTL
	}
	return time.Duration(ttl) * time.Second
}
