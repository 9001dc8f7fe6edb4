package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the streaming stack.
type ErrorCode string

// Stream driver error codes
const (
	// ErrInvalidParameter 调用方传入了非法的缓冲区、大小或块大小
	ErrInvalidParameter ErrorCode = "INVALID_PARAMETER"
	// ErrInvalidState 操作顺序错误（例如未初始化、正在传输时 SetBuf）
	ErrInvalidState ErrorCode = "INVALID_STATE"
	// ErrDeviceError 外设在 Start 编程之后未报告激活
	ErrDeviceError ErrorCode = "DEVICE_ERROR"
)

// Configuration error codes
const (
	ErrInvalidConfig ErrorCode = "INVALID_CONFIG"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Channel string    `json:"channel,omitempty"`
	Cause   error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	prefix := fmt.Sprintf("[%s]", e.Code)
	if e.Channel != "" {
		prefix = fmt.Sprintf("[%s] %s:", e.Code, e.Channel)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s %s: %v", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s %s", prefix, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithChannel tags the error with the channel it originated from.
func (e *Error) WithChannel(channel string) *Error {
	e.Channel = channel
	return e
}

// GetErrorCode extracts the error code from an error chain.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether any error in err's chain carries code.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && GetErrorCode(err) == code
}

// =============================================================================
// 常用错误构造
// =============================================================================

// NewInvalidParameterError 参数错误，属于调用方缺陷，不会重试
func NewInvalidParameterError(message string) *Error {
	return NewError(ErrInvalidParameter, message)
}

// NewInvalidStateError 操作顺序错误，调用方修正调用顺序后可恢复
func NewInvalidStateError(message string) *Error {
	return NewError(ErrInvalidState, message)
}

// NewDeviceError 外设未响应激活请求
func NewDeviceError(message string) *Error {
	return NewError(ErrDeviceError, message)
}
