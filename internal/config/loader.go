package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	defaultNamespace = "cache"
	defaultPrefix    = "zf_"
	defaultSuffix    = "bat"
	defaultFileMode  = FileMode(0o600)
)

// RuntimePathEnv 可覆盖配置文件中的 RuntimePath。
const RuntimePathEnv = "FILECACHE_RUNTIME"

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)
	if err := v.BindEnv("RuntimePath", RuntimePathEnv); err != nil {
		return nil, fmt.Errorf("绑定环境变量失败: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	var cfg Config
	hooks := mapstructure.ComposeDecodeHookFunc(durationDecodeHook(), fileModeDecodeHook())
	if err := v.Unmarshal(&cfg, viper.DecodeHook(hooks)); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := finalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// finalize 填充默认值、校验并把所有目录解析为绝对路径。RuntimePath 只在此处解析一次。
func finalize(cfg *Config) error {
	applyGlobalDefaults(&cfg.Global)
	if len(cfg.Namespaces) == 0 {
		cfg.Namespaces = []NamespaceConfig{{Name: defaultNamespace}}
	}
	for i := range cfg.Namespaces {
		applyNamespaceDefaults(&cfg.Namespaces[i])
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	absRuntime, err := filepath.Abs(cfg.Global.RuntimePath)
	if err != nil {
		return fmt.Errorf("无法解析运行时目录: %w", err)
	}
	cfg.Global.RuntimePath = absRuntime
	for i := range cfg.Namespaces {
		ns := &cfg.Namespaces[i]
		if ns.Path == "" {
			continue
		}
		absPath, err := filepath.Abs(ns.Path)
		if err != nil {
			return wrapFieldError(namespaceField(ns.Name, "Path"), err)
		}
		ns.Path = absPath
	}
	return cfg.validatePaths()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 5000)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("RuntimePath", "./runtime")
	v.SetDefault("FileMode", "0600")
	v.SetDefault("DefaultTTL", 3600)
	v.SetDefault("MemoryCacheSize", 64*1024*1024)
	v.SetDefault("MemoryBackfillTTL", "60s")
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 5000
	}
	if strings.TrimSpace(g.RuntimePath) == "" {
		g.RuntimePath = "./runtime"
	}
	if g.FileMode == 0 {
		g.FileMode = defaultFileMode
	}
	if g.DefaultTTL == 0 {
		g.DefaultTTL = Duration(time.Hour)
	}
	if g.MemoryBackfillTTL == 0 {
		g.MemoryBackfillTTL = Duration(time.Minute)
	}
}

func applyNamespaceDefaults(ns *NamespaceConfig) {
	ns.Name = strings.TrimSpace(ns.Name)
	if ns.Prefix == "" {
		ns.Prefix = defaultPrefix
	}
	ns.Suffix = strings.TrimPrefix(strings.TrimSpace(ns.Suffix), ".")
	if ns.Suffix == "" {
		ns.Suffix = defaultSuffix
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			parsed, err := parseDuration(v)
			if err != nil {
				return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
			}
			return parsed, nil
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}

// fileModeDecodeHook 接受八进制字符串，或 TOML 中 0o600 这样的整数字面量。
func fileModeDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(FileMode(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			parsed, err := parseFileMode(v)
			if err != nil {
				return nil, fmt.Errorf("无法解析 FileMode 字段: %s", v)
			}
			return parsed, nil
		case int:
			return FileMode(v), nil
		case int64:
			return FileMode(v), nil
		case FileMode:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 FileMode 类型: %T", v)
		}
	}
}
