package config

import (
	"errors"
	"fmt"
)

// FieldError 提供字段路径与错误原因，便于 CLI 向用户反馈。Err 保存底层原因（可为空），
// 调用方可通过 errors.As 取回字段路径，或通过 errors.Is 匹配底层错误。
type FieldError struct {
	Field  string
	Reason string
	Err    error
}

func (e FieldError) Error() string {
	if e.Reason == "" && e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e FieldError) Unwrap() error { return e.Err }

func newFieldError(field, reason string) error {
	return FieldError{Field: field, Reason: reason}
}

// wrapFieldError 将已有错误挂到字段路径下。
func wrapFieldError(field string, err error) error {
	return FieldError{Field: field, Err: err}
}

// AsFieldError 从错误链中取出 FieldError。
func AsFieldError(err error) (FieldError, bool) {
	var fe FieldError
	ok := errors.As(err, &fe)
	return fe, ok
}

// namespaceField 输出 Namespace[xxx].Field 形式的字段路径。
func namespaceField(name, field string) string {
	if name == "" {
		return fmt.Sprintf("Namespace[].%s", field)
	}
	return fmt.Sprintf("Namespace[%s].%s", name, field)
}
