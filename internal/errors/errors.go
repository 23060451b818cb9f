// Package errors 提供带错误码的统一错误类型。业务包在 init 阶段通过
// Register 登记各自的错误码属性，API 层据此决定对外的状态码与告警级别。
package errors

import (
	stdErrors "errors"
	"fmt"
	"sync"
)

// Code 是跨模块稳定的错误码，同时作为对外 API 的错误标识。
type Code string

// 基础错误码。业务错误码由各业务包自行定义并注册。
const (
	CodeUnknown               Code = "UNKNOWN"
	CodeInvalidArgument       Code = "INVALID_ARGUMENT"
	CodeNotFound              Code = "NOT_FOUND"
	CodeConflict              Code = "CONFLICT"
	CodeInitializationFailure Code = "INITIALIZATION_FAILURE"
	CodeStorageFailure        Code = "STORAGE_FAILURE"
	CodeCollaboratorFailure   Code = "COLLABORATOR_FAILURE"
	CodeTimeout               Code = "TIMEOUT"
)

// Severity 描述错误对运维的意义，用于日志与告警分级。
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Attributes 是一个错误码的默认属性。
type Attributes struct {
	Message   string
	Severity  Severity
	Retryable bool
	Alert     bool
}

var registry = struct {
	sync.RWMutex
	attrs map[Code]Attributes
}{
	attrs: map[Code]Attributes{
		CodeUnknown:               {Message: "unknown error", Severity: SeverityCritical, Alert: true},
		CodeInvalidArgument:       {Message: "invalid argument", Severity: SeverityInfo},
		CodeNotFound:              {Message: "resource not found", Severity: SeverityInfo},
		CodeConflict:              {Message: "resource conflict", Severity: SeverityWarning},
		CodeInitializationFailure: {Message: "service not initialized", Severity: SeverityWarning, Retryable: true, Alert: true},
		CodeStorageFailure:        {Message: "storage failure", Severity: SeverityCritical, Retryable: true, Alert: true},
		CodeCollaboratorFailure:   {Message: "external collaborator failure", Severity: SeverityWarning, Retryable: true, Alert: true},
		CodeTimeout:               {Message: "operation timed out", Severity: SeverityWarning, Retryable: true, Alert: true},
	},
}

// Register 登记错误码属性，后注册者覆盖先注册者。
func Register(code Code, attr Attributes) {
	registry.Lock()
	defer registry.Unlock()
	registry.attrs[code] = attr
}

// AttributesOf 返回错误码属性，未注册的错误码按 UNKNOWN 处理。
func AttributesOf(code Code) Attributes {
	registry.RLock()
	defer registry.RUnlock()
	if attr, ok := registry.attrs[code]; ok {
		return attr
	}
	return registry.attrs[CodeUnknown]
}

// Error 携带错误码、展示消息与可选元数据，并保留底层原因。
type Error struct {
	code     Code
	message  string
	cause    error
	metadata map[string]string
}

// Option 在构造时修饰错误实例。
type Option func(*Error)

// WithMetadata 附加一对键值，重复的键被覆盖。
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.metadata == nil {
			e.metadata = make(map[string]string, 1)
		}
		e.metadata[key] = value
	}
}

// New 构造错误；message 为空时退回错误码的默认消息。
func New(code Code, message string, opts ...Option) *Error {
	if message == "" {
		message = AttributesOf(code).Message
	}
	e := &Error{code: code, message: message}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Wrap 把底层错误归类到一个错误码下。
func Wrap(code Code, cause error, message string, opts ...Option) *Error {
	e := New(code, message, opts...)
	e.cause = cause
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is 按错误码比较，支持 errors.Is(err, ErrSomething) 的哨兵用法。
func (e *Error) Is(target error) bool {
	var t *Error
	if e == nil || !stdErrors.As(target, &t) {
		return false
	}
	return e.code == t.code
}

// Code 返回错误码。
func (e *Error) Code() Code {
	if e == nil {
		return CodeUnknown
	}
	return e.code
}

// Metadata 返回元数据副本。
func (e *Error) Metadata() map[string]string {
	if e == nil || len(e.metadata) == 0 {
		return nil
	}
	clone := make(map[string]string, len(e.metadata))
	for k, v := range e.metadata {
		clone[k] = v
	}
	return clone
}

// Severity 返回错误码登记的严重程度。
func (e *Error) Severity() Severity {
	return AttributesOf(e.Code()).Severity
}

// From 从错误链中提取本包错误类型。
func From(err error) (*Error, bool) {
	var e *Error
	if err == nil || !stdErrors.As(err, &e) {
		return nil, false
	}
	return e, true
}

// CodeOf 提取任意 error 的错误码，非本包错误归为 UNKNOWN。
func CodeOf(err error) Code {
	if e, ok := From(err); ok {
		return e.Code()
	}
	return CodeUnknown
}

// Retryable 判断任意 error 是否值得重试。
func Retryable(err error) bool {
	return AttributesOf(CodeOf(err)).Retryable
}

// ShouldAlert 判断任意 error 是否需要触发告警。
func ShouldAlert(err error) bool {
	e, ok := From(err)
	if !ok {
		return false
	}
	return AttributesOf(e.Code()).Alert
}
