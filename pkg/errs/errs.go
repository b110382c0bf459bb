// Package errs 定义媒体流水线与请求链路共享的错误分类.
//
// 所有跨边界返回的错误都应能通过 KindOf 得到分类，HTTP 层据此映射状态码，
// worker 据此决定是否交给队列重试.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind 错误类别.
type Kind uint8

const (
	Unknown Kind = iota
	Validation
	NotFound
	Conflict
	Forbidden
	StorageUnavailable
	TranscodeFailure
	UploadFailure
	LedgerWriteFailure
)

var kindNames = map[Kind]string{
	Unknown:            "unknown",
	Validation:         "validation",
	NotFound:           "not_found",
	Conflict:           "conflict",
	Forbidden:          "forbidden",
	StorageUnavailable: "storage_unavailable",
	TranscodeFailure:   "transcode_failure",
	UploadFailure:      "upload_failure",
	LedgerWriteFailure: "ledger_write_failure",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}

	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Error 带分类的错误.
type Error struct {
	Kind Kind
	Op   string // 发生错误的操作，如 "asset.complete"
	Msg  string // 面向调用方的简短原因，如 "ObjectNotFound"
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Msg != "" {
		msg = e.Msg
	}

	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, msg, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", msg, e.Err)
	default:
		return msg
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is 使 errors.Is(err, &Error{Kind: k}) 按类别匹配.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	if t.Kind != e.Kind {
		return false
	}

	return t.Msg == "" || t.Msg == e.Msg
}

// E 构造分类错误.
func E(kind Kind, op, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

// Newf 构造不带底层错误的分类错误.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap 以指定类别包装底层错误，err 为 nil 时返回 nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}

	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf 返回错误链上第一个分类，没有分类时返回 Unknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return Unknown
}

// Is 报告 err 是否属于 kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsRetryable 报告错误是否值得交给队列重投.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case Validation, NotFound, Conflict, Forbidden:
		return false
	default:
		return true
	}
}

// IsPermanent 是 IsRetryable 的反面，nil 不算永久错误.
func IsPermanent(err error) bool {
	return err != nil && !IsRetryable(err)
}

// HTTPStatus 将错误映射为 HTTP 状态码.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case Validation:
		return http.StatusBadRequest
	case Forbidden:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case StorageUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Reason 返回面向客户端的原因码，未分类错误返回 "InternalError".
func Reason(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Msg != "" {
			return e.Msg
		}

		return e.Kind.String()
	}

	return "InternalError"
}
