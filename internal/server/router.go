package server

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// AppOptions controls how the Fiber application should behave on a specific port.
type AppOptions struct {
	Logger     *logrus.Logger
	Registry   *NamespaceRegistry
	ListenPort int
}

const (
	contextKeyRoute     = "_filecache_namespace"
	contextKeyRequestID = "_filecache_request_id"
)

// NewApp builds a Fiber application exposing the cache namespaces under
// /cache/:ns with request-id tagging and structured error handling.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("namespace registry is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestIDMiddleware())

	h := &cacheHandler{logger: opts.Logger}
	ns := app.Group("/cache/:ns", namespaceMiddleware(opts))
	// 清空命名空间需先于带 key 的 DELETE 注册，避免被空通配符吞掉。
	ns.Delete("", h.clear)
	// GET 路由同时承接 HEAD，Fiber 会自动去掉响应体。
	ns.Get("/*", h.get)
	ns.Put("/*", h.put)
	ns.Delete("/*", h.delete)

	return app, nil
}

// requestIDMiddleware 为每个请求生成 ID，并写入响应头 X-Request-ID。
func requestIDMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
	}
}

// namespaceMiddleware 根据 :ns 参数查找命名空间，未知命名空间直接返回 404。
func namespaceMiddleware(opts AppOptions) fiber.Handler {
	return func(c fiber.Ctx) error {
		name := c.Params("ns")
		route, ok := opts.Registry.Lookup(name)
		if !ok {
			return renderNamespaceNotFound(c, opts.Logger, name, opts.ListenPort)
		}
		c.Locals(contextKeyRoute, route)
		return c.Next()
	}
}

func renderNamespaceNotFound(c fiber.Ctx, logger *logrus.Logger, name string, port int) error {
	logger.WithFields(logrus.Fields{
		"action":     "namespace_lookup",
		"namespace":  name,
		"port":       port,
		"request_id": RequestID(c),
	}).Warn("namespace not found")

	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error": "namespace_not_found",
	})
}

func getRouteFromContext(c fiber.Ctx) (*NamespaceRoute, bool) {
	if value := c.Locals(contextKeyRoute); value != nil {
		if route, ok := value.(*NamespaceRoute); ok {
			return route, true
		}
	}
	return nil, false
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}
