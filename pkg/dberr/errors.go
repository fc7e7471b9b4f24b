// Package dberr 定义存储引擎各层共用的错误分类。
package dberr

import (
	"errors"
	"fmt"
)

// Kind 错误类别
type Kind int

const (
	KindUnknown Kind = iota
	KindIO           // 打开/读/写/stat 失败
	KindCapacity     // 缓冲区耗尽
	KindEncoding     // 记录与 schema 不匹配
	KindNotFound     // 表或字段不存在
	KindCorrupt      // 页内数据与 schema 不一致
	KindSyntax       // 语句无法解析
	KindConflict     // 对象已存在
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindCapacity:
		return "capacity"
	case KindEncoding:
		return "encoding"
	case KindNotFound:
		return "not found"
	case KindCorrupt:
		return "corrupt data"
	case KindSyntax:
		return "syntax"
	case KindConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Error 带类别的错误，Op 记录出错的操作名
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	if e.Op == "" {
		return fmt.Sprintf("%s error: %s", e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s error: %s", e.Op, e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newf(kind Kind, op string, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...), Err: err}
}

// IO 包装一个操作系统层面的失败
func IO(op string, err error, format string, args ...any) error {
	return newf(KindIO, op, err, format, args...)
}

func Capacity(op string, format string, args ...any) error {
	return newf(KindCapacity, op, nil, format, args...)
}

func Encoding(op string, format string, args ...any) error {
	return newf(KindEncoding, op, nil, format, args...)
}

func NotFound(op string, format string, args ...any) error {
	return newf(KindNotFound, op, nil, format, args...)
}

func Corrupt(op string, format string, args ...any) error {
	return newf(KindCorrupt, op, nil, format, args...)
}

// Conflict 包装一个表示"已存在"的哨兵错误，errors.Is 仍然可以匹配 err
func Conflict(op string, err error, format string, args ...any) error {
	return newf(KindConflict, op, err, format, args...)
}

func Syntax(format string, args ...any) error {
	return newf(KindSyntax, "", nil, format, args...)
}

// KindOf 返回错误链中第一个 *Error 的类别
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
