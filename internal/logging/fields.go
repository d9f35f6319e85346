package logging

import (
	"github.com/sirupsen/logrus"

	"github.com/any-hub/filecache/internal/config"
)

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// NamespaceFields 描述一个命名空间的存储布局，供启动与诊断日志复用。
func NamespaceFields(cfg *config.Config, ns config.NamespaceConfig) logrus.Fields {
	return logrus.Fields{
		"namespace": ns.Name,
		"path":      cfg.NamespacePath(ns),
		"prefix":    ns.Prefix,
		"suffix":    ns.Suffix,
		"file_mode": config.FileMode(cfg.EffectiveFileMode(ns)).String(),
		"ttl":       cfg.EffectiveTTL(ns),
		"memory":    ns.Memory,
	}
}

// RequestFields 提供命名空间/操作/命中状态字段，供 HTTP 请求日志复用。
func RequestFields(requestID, namespace, op, id string, cacheHit bool) logrus.Fields {
	return logrus.Fields{
		"request_id": requestID,
		"namespace":  namespace,
		"op":         op,
		"id":         id,
		"cache_hit":  cacheHit,
	}
}
