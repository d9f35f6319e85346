package cache

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// KeyHasher 将任意缓存 key 映射为定长、可直接用作文件名的 id：
// hex(md5(prefix + canonical(key)))。同一 (prefix, key) 在不同进程间结果一致。
type KeyHasher struct {
	prefix string
}

// NewKeyHasher 使用给定前缀构建 KeyHasher。
func NewKeyHasher(prefix string) KeyHasher {
	return KeyHasher{prefix: prefix}
}

// Prefix 返回参与哈希的前缀。
func (h KeyHasher) Prefix() string {
	return h.prefix
}

// BuildID 计算 key 的 id。字符串直接拼接；其它类型先经 JSON 规范化
// （结构体按字段声明顺序、map 按键排序）。无法序列化时返回 ErrUnsupportedKey。
func (h KeyHasher) BuildID(key any) (string, error) {
	canonical, err := canonicalKey(key)
	if err != nil {
		return "", err
	}
	sum := md5.Sum([]byte(h.prefix + canonical))
	return hex.EncodeToString(sum[:]), nil
}

// canonicalKey 对 string/[]byte 原样使用，其余类型走 encoding/json：map 按键排序，
// 不转义 / 与非 ASCII 字符。
func canonicalKey(key any) (string, error) {
	switch k := key.(type) {
	case string:
		return k, nil
	case []byte:
		return string(k), nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(key); err != nil {
		return "", fmt.Errorf("%w: %T: %v", ErrUnsupportedKey, key, err)
	}
	return string(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}
