package version

import (
	"fmt"
	"runtime/debug"
)

// Name 是 CLI 与日志中使用的程序名。
const Name = "filecache"

// Version/Commit 可在构建时通过 -ldflags 注入，默认使用开发占位符。
var (
	Version = "0.1.0"
	Commit  = "dev"
)

// Full 返回便于 CLI 打印的完整版本信息。未注入 Commit 时尝试读取构建信息中的 vcs.revision。
func Full() string {
	return fmt.Sprintf("%s %s (%s)", Name, Version, commit(debug.ReadBuildInfo))
}

func commit(read func() (*debug.BuildInfo, bool)) string {
	if Commit != "dev" {
		return Commit
	}
	info, ok := read()
	if !ok {
		return Commit
	}
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" && setting.Value != "" {
			rev := setting.Value
			if len(rev) > 12 {
				rev = rev[:12]
			}
			return rev
		}
	}
	return Commit
}
