package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if _, err := logrus.ParseLevel(g.LogLevel); err != nil {
		return wrapFieldError("Global.LogLevel", err)
	}
	if strings.TrimSpace(g.RuntimePath) == "" {
		return newFieldError("Global.RuntimePath", "不能为空")
	}
	if err := validateFileMode(g.FileMode); err != nil {
		return wrapFieldError("Global.FileMode", err)
	}
	if g.DefaultTTL == 0 {
		return newFieldError("Global.DefaultTTL", "不能为 0")
	}
	if g.MemoryCacheSize <= 0 {
		return newFieldError("Global.MemoryCacheSize", "必须大于 0")
	}
	if g.MemoryBackfillTTL.DurationValue() < 0 {
		return newFieldError("Global.MemoryBackfillTTL", "不能为负数")
	}

	if len(c.Namespaces) == 0 {
		return errors.New("至少需要配置一个 Namespace")
	}

	seenNames := map[string]struct{}{}
	for i := range c.Namespaces {
		ns := &c.Namespaces[i]
		if err := validateNamespaceName(ns.Name); err != nil {
			return wrapFieldError(namespaceField(ns.Name, "Name"), err)
		}
		if _, exists := seenNames[ns.Name]; exists {
			return newFieldError(namespaceField(ns.Name, "Name"), "重复")
		}
		seenNames[ns.Name] = struct{}{}

		if strings.ContainsAny(ns.Prefix, `/\`) {
			return newFieldError(namespaceField(ns.Name, "Prefix"), "不允许包含路径分隔符")
		}
		if ns.Suffix == "" || strings.ContainsAny(ns.Suffix, `/\ `) {
			return newFieldError(namespaceField(ns.Name, "Suffix"), "不能为空且不允许包含路径分隔符或空格")
		}
		if ns.FileMode != 0 {
			if err := validateFileMode(ns.FileMode); err != nil {
				return wrapFieldError(namespaceField(ns.Name, "FileMode"), err)
			}
		}
	}

	return nil
}

// validatePaths 要求各命名空间目录互不相同且互不嵌套，保证 Clear 不会波及其它命名空间。
func (c *Config) validatePaths() error {
	dirs := make([]string, len(c.Namespaces))
	for i, ns := range c.Namespaces {
		dirs[i] = c.NamespacePath(ns)
		for j := 0; j < i; j++ {
			if overlaps(dirs[i], dirs[j]) {
				other := c.Namespaces[j].Name
				return newFieldError(namespaceField(ns.Name, "Path"), fmt.Sprintf("与 %s 目录重叠", other))
			}
		}
	}
	return nil
}

func overlaps(a, b string) bool {
	for _, pair := range [][2]string{{a, b}, {b, a}} {
		rel, err := filepath.Rel(pair[0], pair[1])
		if err != nil {
			continue
		}
		if rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))) {
			return true
		}
	}
	return false
}

func validateNamespaceName(name string) error {
	if name == "" {
		return errors.New("不能为空")
	}
	if strings.ContainsAny(name, `/\`) {
		return errors.New("不允许包含路径分隔符")
	}
	if name == "." || name == ".." {
		return errors.New("不允许使用相对目录名")
	}
	return nil
}

func validateFileMode(mode FileMode) error {
	if mode.Perm()&^0o777 != 0 {
		return fmt.Errorf("仅支持 0000-0777 权限位: %s", mode)
	}
	if mode.Perm()&0o600 != 0o600 {
		return fmt.Errorf("属主必须可读写: %s", mode)
	}
	return nil
}
