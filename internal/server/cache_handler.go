package server

import (
	"errors"
	"net/url"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/filecache/internal/cache"
	"github.com/any-hub/filecache/internal/logging"
)

type cacheHandler struct {
	logger *logrus.Logger
}

func (h *cacheHandler) get(c fiber.Ctx) error {
	route, key, ok := h.resolve(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "key_required"})
	}
	value, hit, err := route.Cache.Get(c.Context(), key)
	if err != nil {
		return h.fail(c, route, "get", key, err)
	}
	h.log(c, route, "get", key, hit)
	if !hit {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "cache_miss"})
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEOctetStream)
	return c.Status(fiber.StatusOK).Send(value)
}

func (h *cacheHandler) put(c fiber.Ctx) error {
	route, key, ok := h.resolve(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "key_required"})
	}
	ttl, err := parseTTL(c.Query("ttl"), route.DefaultTTL)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_ttl"})
	}
	// Body 引用底层缓冲区，请求结束后会被复用，这里需要拷贝。
	body := append([]byte(nil), c.Body()...)
	if err := route.Cache.Set(c.Context(), key, body, ttl); err != nil {
		return h.fail(c, route, "set", key, err)
	}
	h.log(c, route, "set", key, false)
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *cacheHandler) delete(c fiber.Ctx) error {
	route, key, ok := h.resolve(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "key_required"})
	}
	if err := route.Cache.Delete(c.Context(), key); err != nil {
		return h.fail(c, route, "delete", key, err)
	}
	h.log(c, route, "delete", key, false)
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *cacheHandler) clear(c fiber.Ctx) error {
	route, ok := getRouteFromContext(c)
	if !ok {
		return fiber.ErrNotFound
	}
	if err := route.Cache.Clear(c.Context()); err != nil {
		return h.fail(c, route, "clear", "", err)
	}
	h.log(c, route, "clear", "", false)
	return c.SendStatus(fiber.StatusNoContent)
}

// resolve 取出命名空间与解码后的 key，key 为空或无法解码时返回 false。
func (h *cacheHandler) resolve(c fiber.Ctx) (*NamespaceRoute, string, bool) {
	route, ok := getRouteFromContext(c)
	if !ok {
		return nil, "", false
	}
	key, err := url.PathUnescape(c.Params("*"))
	if err != nil || key == "" {
		return nil, "", false
	}
	return route, key, true
}

func (h *cacheHandler) fail(c fiber.Ctx, route *NamespaceRoute, op, key string, err error) error {
	fields := h.fields(c, route, op, key, false)
	fields["error"] = err.Error()
	if errors.Is(err, cache.ErrUnsupportedKey) {
		h.logger.WithFields(fields).Warn("cache_request_rejected")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unsupported_key"})
	}
	h.logger.WithFields(fields).Error("cache_request_failed")
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "storage_failure"})
}

func (h *cacheHandler) log(c fiber.Ctx, route *NamespaceRoute, op, key string, hit bool) {
	h.logger.WithFields(h.fields(c, route, op, key, hit)).Debug("cache_request")
}

func (h *cacheHandler) fields(c fiber.Ctx, route *NamespaceRoute, op, key string, hit bool) logrus.Fields {
	id := ""
	if key != "" {
		id, _ = route.Cache.BuildID(key)
	}
	return logging.RequestFields(RequestID(c), route.Config.Name, op, id, hit)
}

// parseTTL 解析 PUT 的 ttl 查询参数：空值使用命名空间默认值，permanent 表示永久，
// 其余按整数秒处理（允许 0 与负数，语义为立即过期）。
func parseTTL(raw string, fallback int64) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	if strings.EqualFold(raw, "permanent") {
		return cache.Permanent, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}
