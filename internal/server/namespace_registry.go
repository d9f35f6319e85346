package server

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/filecache/internal/cache"
	"github.com/any-hub/filecache/internal/cache/chain"
	"github.com/any-hub/filecache/internal/cache/memory"
	"github.com/any-hub/filecache/internal/config"
	"github.com/any-hub/filecache/internal/logging"
)

// NamespaceRoute 将命名空间配置与派生属性（目录、生效 TTL、已构建的存储）聚合在一起，
// 供 HTTP 层直接复用，避免重复解析配置。
type NamespaceRoute struct {
	// Config 是用户在 config.toml 中声明的命名空间字段副本。
	Config config.NamespaceConfig
	// Path 为命名空间目录的绝对路径。
	Path string
	// DefaultTTL 是 PUT 未携带 ttl 时使用的秒数，-1 表示永久。
	DefaultTTL int64
	FileMode   os.FileMode
	// Files 是磁盘存储；Memory 仅在启用内存层时非空。
	Files  *cache.FileStore
	Memory *memory.Store
	// Cache 是最终对外的门面，启用内存层时其底层为 chain(memory, files)。
	Cache *cache.Cache
}

// NamespaceRegistry 提供命名空间名称到 NamespaceRoute 的查询能力。
type NamespaceRegistry struct {
	routes  map[string]*NamespaceRoute
	ordered []*NamespaceRoute
}

// NewNamespaceRegistry 根据配置为每个命名空间构建存储。调用方应在启动阶段创建一次并复用。
func NewNamespaceRegistry(cfg *config.Config, logger *logrus.Logger) (*NamespaceRegistry, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}

	registry := &NamespaceRegistry{
		routes: make(map[string]*NamespaceRoute, len(cfg.Namespaces)),
	}
	for _, ns := range cfg.Namespaces {
		if _, exists := registry.routes[ns.Name]; exists {
			registry.Close()
			return nil, fmt.Errorf("duplicate namespace %s", ns.Name)
		}
		route, err := buildNamespaceRoute(cfg, ns, logger)
		if err != nil {
			registry.Close()
			return nil, err
		}
		registry.routes[ns.Name] = route
		registry.ordered = append(registry.ordered, route)
		logger.WithFields(logging.NamespaceFields(cfg, ns)).Debug("namespace_ready")
	}
	return registry, nil
}

// Lookup 根据名称查找命名空间。
func (r *NamespaceRegistry) Lookup(name string) (*NamespaceRoute, bool) {
	if r == nil {
		return nil, false
	}
	route, ok := r.routes[name]
	return route, ok
}

// List 返回按名称排序的命名空间列表，用于诊断输出。
func (r *NamespaceRegistry) List() []NamespaceRoute {
	if r == nil || len(r.ordered) == 0 {
		return nil
	}
	result := make([]NamespaceRoute, len(r.ordered))
	for i, route := range r.ordered {
		result[i] = *route
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Config.Name < result[j].Config.Name
	})
	return result
}

// Close 释放内存层资源；磁盘条目保持不变。
func (r *NamespaceRegistry) Close() {
	if r == nil {
		return
	}
	for _, route := range r.ordered {
		if route.Memory != nil {
			route.Memory.Close()
		}
	}
}

func buildNamespaceRoute(cfg *config.Config, ns config.NamespaceConfig, logger *logrus.Logger) (*NamespaceRoute, error) {
	dir := cfg.NamespacePath(ns)
	mode := cfg.EffectiveFileMode(ns)

	files, err := cache.NewFileStore(cache.FileStoreOptions{
		Namespace: ns.Name,
		Prefix:    ns.Prefix,
		Suffix:    ns.Suffix,
		Path:      dir,
		FileMode:  mode,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("namespace %s: %w", ns.Name, err)
	}

	route := &NamespaceRoute{
		Config:     ns,
		Path:       files.Path(),
		DefaultTTL: cfg.EffectiveTTL(ns),
		FileMode:   mode,
		Files:      files,
	}

	var store cache.Store = files
	if ns.Memory {
		mem, err := memory.New(cfg.Global.MemoryCacheSize)
		if err != nil {
			return nil, fmt.Errorf("namespace %s: memory tier: %w", ns.Name, err)
		}
		route.Memory = mem
		store = chain.New(cfg.Global.MemoryBackfillTTL.Seconds(), mem, files)
	}

	route.Cache = cache.New(store, files.Hasher(),
		cache.WithDefaultTTL(route.DefaultTTL),
		cache.WithLogger(logger),
	)
	return route, nil
}
