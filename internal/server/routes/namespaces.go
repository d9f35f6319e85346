package routes

import (
	"errors"
	"fmt"
	"sort"

	"github.com/gofiber/fiber/v3"

	"github.com/any-hub/filecache/internal/cache"
	"github.com/any-hub/filecache/internal/server"
)

// RegisterNamespaceRoutes 暴露 /-/namespaces 诊断接口，供 SRE 查询命名空间目录、默认 TTL
// 以及某个 key 对应的缓存 ID 与文件路径。
func RegisterNamespaceRoutes(app *fiber.App, registry *server.NamespaceRegistry) {
	if app == nil || registry == nil {
		return
	}

	app.Get("/-/namespaces", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"namespaces": encodeNamespaces(registry.List()),
		})
	})

	app.Get("/-/namespaces/:ns/id", func(c fiber.Ctx) error {
		route, ok := registry.Lookup(c.Params("ns"))
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "namespace_not_found"})
		}
		key := c.Query("key")
		if key == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "key_required"})
		}
		payload, err := encodeID(route, key)
		if err != nil {
			if errors.Is(err, cache.ErrUnsupportedKey) {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unsupported_key"})
			}
			return err
		}
		return c.JSON(payload)
	})
}

type namespacePayload struct {
	Name       string `json:"name"`
	Prefix     string `json:"prefix"`
	Suffix     string `json:"suffix"`
	Path       string `json:"path"`
	FileMode   string `json:"file_mode"`
	DefaultTTL int64  `json:"default_ttl_seconds"`
	Permanent  bool   `json:"permanent_default"`
	Memory     bool   `json:"memory_tier"`
}

type idPayload struct {
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
	ID        string `json:"id"`
	File      string `json:"file"`
}

func encodeNamespaces(routes []server.NamespaceRoute) []namespacePayload {
	if len(routes) == 0 {
		return nil
	}
	sort.Slice(routes, func(i, j int) bool {
		return routes[i].Config.Name < routes[j].Config.Name
	})
	result := make([]namespacePayload, 0, len(routes))
	for _, route := range routes {
		result = append(result, namespacePayload{
			Name:       route.Config.Name,
			Prefix:     route.Files.Hasher().Prefix(),
			Suffix:     route.Files.Suffix(),
			Path:       route.Path,
			FileMode:   fmt.Sprintf("%04o", uint32(route.FileMode.Perm())),
			DefaultTTL: route.DefaultTTL,
			Permanent:  route.DefaultTTL == cache.Permanent,
			Memory:     route.Memory != nil,
		})
	}
	return result
}

func encodeID(route *server.NamespaceRoute, key string) (idPayload, error) {
	id, err := route.Files.BuildID(key)
	if err != nil {
		return idPayload{}, err
	}
	return idPayload{
		Namespace: route.Config.Name,
		Key:       key,
		ID:        id,
		File:      route.Files.FilePath(id),
	}, nil
}
