package apperr

import (
	"errors"
	"fmt"
)

// Code 错误类别
type Code string

const (
	CodeAlreadyRunning  Code = "ALREADY_RUNNING"
	CodeNotRunning      Code = "NOT_RUNNING"
	CodeProfileNotFound Code = "PROFILE_NOT_FOUND"
	CodeInvalidConfig   Code = "INVALID_CONFIG"
	CodeInvalidProfile  Code = "INVALID_PROFILE"
	CodeNetwork         Code = "NETWORK"
	CodeParse           Code = "PARSE"
)

var (
	// ErrAlreadyRunning 内核已在运行
	ErrAlreadyRunning = &AppError{Code: CodeAlreadyRunning, Message: "内核已在运行"}
	// ErrNotRunning 内核未运行
	ErrNotRunning = &AppError{Code: CodeNotRunning, Message: "内核未运行"}
	// ErrProfileNotFound 配置文件不存在
	ErrProfileNotFound = &AppError{Code: CodeProfileNotFound, Message: "配置文件不存在"}
)

// AppError 定义结构化应用错误
type AppError struct {
	Code    Code   // 错误码
	Message string // 错误消息
	Err     error  // 原始错误（可选）
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 实现 errors.Unwrap 接口
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 按错误码匹配，使 errors.Is(err, ErrNotRunning) 对任意同类错误成立
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New 创建指定类别的错误
func New(code Code, format string, args ...interface{}) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap 包装底层错误
func Wrap(code Code, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// InvalidConfig 运行时状态、内核二进制或系统设置相关的错误
func InvalidConfig(format string, args ...interface{}) *AppError {
	return New(CodeInvalidConfig, format, args...)
}

// InvalidProfile 内容已获取但无法识别
func InvalidProfile(format string, args ...interface{}) *AppError {
	return New(CodeInvalidProfile, format, args...)
}

// Network 传输或 HTTP 状态错误
func Network(format string, args ...interface{}) *AppError {
	return New(CodeNetwork, format, args...)
}

// Parse 结构化文档格式错误
func Parse(format string, args ...interface{}) *AppError {
	return New(CodeParse, format, args...)
}

// CodeOf 返回错误链中第一个 AppError 的错误码，不存在时返回空字符串
func CodeOf(err error) Code {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}
