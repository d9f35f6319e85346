package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数、Go Duration 字符串与 "permanent"。
type Duration time.Duration

// PermanentDuration 表示永不过期，对应 cache.Permanent。
const PermanentDuration = Duration(-time.Second)

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m"、"permanent" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := parseDuration(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// Seconds 将 Duration 转换为缓存 ttl（秒）；负值统一视为永久（-1），
// 不足一秒的正数按一秒处理，避免被截断成 0 而立即过期。
func (d Duration) Seconds() int64 {
	if d < 0 {
		return -1
	}
	seconds := int64(time.Duration(d) / time.Second)
	if d > 0 && seconds == 0 {
		seconds = 1
	}
	return seconds
}

func parseDuration(value string) (Duration, error) {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return Duration(0), nil
	}
	if strings.EqualFold(raw, "permanent") || strings.EqualFold(raw, "forever") {
		return PermanentDuration, nil
	}
	if parsed, err := time.ParseDuration(raw); err == nil {
		return Duration(parsed), nil
	}
	if intVal, err := parseInt(raw); err == nil {
		return Duration(time.Duration(intVal) * time.Second), nil
	}
	return 0, fmt.Errorf("invalid duration value: %s", raw)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// FileMode 以八进制字符串（"0600"、"0o644"、"600"）描述缓存文件权限。
type FileMode os.FileMode

// UnmarshalText 解析八进制权限字符串。
func (m *FileMode) UnmarshalText(text []byte) error {
	parsed, err := parseFileMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Perm 返回 os.FileMode。
func (m FileMode) Perm() os.FileMode {
	return os.FileMode(m)
}

func (m FileMode) String() string {
	return fmt.Sprintf("%04o", uint32(m))
}

func parseFileMode(value string) (FileMode, error) {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return FileMode(0), nil
	}
	raw = strings.TrimPrefix(strings.TrimPrefix(raw, "0o"), "0O")
	parsed, err := strconv.ParseUint(raw, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid file mode: %s", value)
	}
	return FileMode(parsed), nil
}

// GlobalConfig 描述全局运行时行为，所有命名空间共享同一份参数。
type GlobalConfig struct {
	ListenPort        int      `mapstructure:"ListenPort"`
	LogLevel          string   `mapstructure:"LogLevel"`
	LogFilePath       string   `mapstructure:"LogFilePath"`
	LogMaxSize        int      `mapstructure:"LogMaxSize"`
	LogMaxBackups     int      `mapstructure:"LogMaxBackups"`
	LogCompress       bool     `mapstructure:"LogCompress"`
	RuntimePath       string   `mapstructure:"RuntimePath"`
	FileMode          FileMode `mapstructure:"FileMode"`
	DefaultTTL        Duration `mapstructure:"DefaultTTL"`
	MemoryCacheSize   int64    `mapstructure:"MemoryCacheSize"`
	MemoryBackfillTTL Duration `mapstructure:"MemoryBackfillTTL"`
}

// NamespaceConfig 决定单个命名空间的目录、文件命名与默认 TTL。
type NamespaceConfig struct {
	Name       string   `mapstructure:"Name"`
	Prefix     string   `mapstructure:"Prefix"`
	Suffix     string   `mapstructure:"Suffix"`
	Path       string   `mapstructure:"Path"`
	FileMode   FileMode `mapstructure:"FileMode"`
	DefaultTTL Duration `mapstructure:"DefaultTTL"`
	Memory     bool     `mapstructure:"Memory"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global     GlobalConfig      `mapstructure:",squash"`
	Namespaces []NamespaceConfig `mapstructure:"Namespace"`
}

// NamespacePath 返回命名空间目录：显式 Path 优先，否则为 RuntimePath/Name。
func (c *Config) NamespacePath(ns NamespaceConfig) string {
	if ns.Path != "" {
		return ns.Path
	}
	return filepath.Join(c.Global.RuntimePath, ns.Name)
}

// EffectiveFileMode 返回命名空间生效的文件权限，未覆盖时回退至全局值。
func (c *Config) EffectiveFileMode(ns NamespaceConfig) os.FileMode {
	if ns.FileMode != 0 {
		return ns.FileMode.Perm()
	}
	return c.Global.FileMode.Perm()
}

// EffectiveTTL 返回命名空间生效的默认 ttl（秒），未覆盖时回退至全局值。
func (c *Config) EffectiveTTL(ns NamespaceConfig) int64 {
	if ns.DefaultTTL != 0 {
		return ns.DefaultTTL.Seconds()
	}
	return c.Global.DefaultTTL.Seconds()
}

// NamespaceNames 返回所有命名空间名称，供日志字段使用。
func NamespaceNames(namespaces []NamespaceConfig) []string {
	if len(namespaces) == 0 {
		return nil
	}
	result := make([]string, len(namespaces))
	for i, ns := range namespaces {
		result[i] = ns.Name
	}
	return result
}
