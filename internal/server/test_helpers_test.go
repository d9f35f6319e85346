package server

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/filecache/internal/config"
)

func testConfig(t *testing.T, namespaces ...config.NamespaceConfig) *config.Config {
	t.Helper()
	if len(namespaces) == 0 {
		namespaces = []config.NamespaceConfig{{Name: "cache", Prefix: "zf_", Suffix: "bat"}}
	}
	return &config.Config{
		Global: config.GlobalConfig{
			ListenPort:        5000,
			RuntimePath:       t.TempDir(),
			FileMode:          config.FileMode(0o600),
			DefaultTTL:        config.Duration(time.Hour),
			MemoryCacheSize:   1 << 20,
			MemoryBackfillTTL: config.Duration(time.Minute),
		},
		Namespaces: namespaces,
	}
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestRegistry(t *testing.T, cfg *config.Config) *NamespaceRegistry {
	t.Helper()
	registry, err := NewNamespaceRegistry(cfg, testLogger())
	if err != nil {
		t.Fatalf("registry error: %v", err)
	}
	t.Cleanup(registry.Close)
	return registry
}
