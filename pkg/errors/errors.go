package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ========== 错误码常量定义 ==========

// CodeSuccess 成功码
const (
	CodeSuccess = 200
)

// HTTP层错误码 (400-599)
const (
	CodeInvalidParam  = 400
	CodeUnauthorized  = 401
	CodeForbidden     = 403
	CodeNotFound      = 404
	CodeConflict      = 409
	CodeUnprocessable = 422
	CodeServerError   = 500
	CodeBusy          = 503
)

// ========== 租约引擎错误类型 ==========

// Kind 稳定的错误类别，调用方据此决定是否重试
type Kind string

const (
	KindValidation        Kind = "validation"
	KindNotFound          Kind = "not_found"
	KindAccessDenied      Kind = "access_denied"
	KindOverlapConflict   Kind = "overlap_conflict"
	KindInvalidTransition Kind = "invalid_transition"
	KindBusy              Kind = "busy"
	KindInternal          Kind = "internal"
)

// Retryable 只有锁竞争/超时类错误允许调用方退避重试
func (k Kind) Retryable() bool {
	return k == KindBusy
}

// Code 错误类别对应的响应码
func (k Kind) Code() int {
	switch k {
	case KindValidation:
		return CodeInvalidParam
	case KindNotFound:
		return CodeNotFound
	case KindAccessDenied:
		return CodeForbidden
	case KindOverlapConflict:
		return CodeConflict
	case KindInvalidTransition:
		return CodeUnprocessable
	case KindBusy:
		return CodeBusy
	default:
		return CodeServerError
	}
}

// Conflict 冲突租约的诊断信息
type Conflict struct {
	LeaseID   string    `json:"lease_id"`
	Reference string    `json:"reference"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

// Error 引擎统一错误
type Error struct {
	Kind     Kind
	Message  string
	Conflict *Conflict
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Validation(format string, args ...interface{}) *Error {
	return New(KindValidation, fmt.Sprintf(format, args...))
}

func NotFound(message string) *Error {
	return New(KindNotFound, message)
}

func AccessDenied(message string) *Error {
	return New(KindAccessDenied, message)
}

func InvalidTransition(format string, args ...interface{}) *Error {
	return New(KindInvalidTransition, fmt.Sprintf(format, args...))
}

func OverlapConflict(conflict *Conflict) *Error {
	return &Error{
		Kind:     KindOverlapConflict,
		Message:  fmt.Sprintf("租期与已有租约 %s 重叠", conflict.Reference),
		Conflict: conflict,
	}
}

func Busy(message string, err error) *Error {
	return Wrap(KindBusy, message, err)
}

func Internal(message string, err error) *Error {
	return Wrap(KindInternal, message, err)
}

// KindOf 解析任意错误的类别
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return KindNotFound
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return KindBusy
	}
	return KindInternal
}

// Is 判断错误是否属于指定类别
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// ConflictOf 提取重叠冲突详情
func ConflictOf(err error) *Conflict {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Conflict
	}
	return nil
}

// MessageOf 面向用户的错误信息
func MessageOf(err error) string {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Message
	}
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return "记录不存在"
	}
	return "服务器内部错误"
}
