// Package xerrors 提供 dealflow 统一的错误处理工具。
//
// 除了常规的包装与错误码工具外，xerrors 还定义了调用方错误的分类：
//   - ValidationError：调用方输入不满足前置条件
//   - ConfigurationError：所选类型/阶段缺少必需的数值参数
//   - Terminal：显式标记为不可重试的错误
//
// 以上三类错误都是终止性错误：不会被重试，也不会计入熔断失败。
// 其余错误默认视为可重试的暂时性错误。
package xerrors

import (
	"errors"
	"fmt"
)

// 通用错误码
const (
	CodeValidation    = "VALIDATION"
	CodeConfiguration = "CONFIGURATION"
	CodeTerminal      = "TERMINAL"
)

// 哨兵错误
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
)

// Wrap 用上下文信息包装错误，保留错误链。
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf 用格式化的上下文信息包装错误。
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// WithCode 用错误码包装错误。
func WithCode(err error, code string) error {
	if err == nil {
		return nil
	}
	return &CodedError{Code: code, Cause: err}
}

// CodedError 带有机器可读错误码的错误。
type CodedError struct {
	Code  string
	Cause error
}

func (e *CodedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %v", e.Code, e.Cause)
	}
	return fmt.Sprintf("[%s]", e.Code)
}

func (e *CodedError) Unwrap() error {
	return e.Cause
}

// GetCode 从错误链中提取错误码。
// 校验类错误与配置类错误即使没有被 WithCode 包装，也会返回各自的错误码。
func GetCode(err error) string {
	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return CodeValidation
	}
	var ce *ConfigurationError
	if errors.As(err, &ce) {
		return CodeConfiguration
	}
	return ""
}

// ValidationError 调用方输入不满足前置条件（例如缺少必填字段）。
// 在任何熔断/重试逻辑介入之前同步返回。
type ValidationError struct {
	Field  string
	Reason string
}

// NewValidation 创建校验错误
func NewValidation(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// Unwrap 使 ValidationError 可以通过 Is(err, ErrInvalidInput) 判断
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// ConfigurationError 所选服务类型或阶段缺少必需的数值参数。
type ConfigurationError struct {
	Field  string
	Reason string
}

// NewConfiguration 创建配置错误
func NewConfiguration(field, reason string) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: reason}
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return ErrInvalidInput
}

// terminalError 标记不可重试的错误
type terminalError struct {
	cause error
}

func (e *terminalError) Error() string { return e.cause.Error() }
func (e *terminalError) Unwrap() error { return e.cause }

// Terminal 将错误标记为终止性错误：重试策略不会再次尝试，
// 熔断器也不会把它计为失败。
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &terminalError{cause: err}
}

// IsTerminal 判断错误链中是否包含终止性错误
func IsTerminal(err error) bool {
	if err == nil {
		return false
	}
	var te *terminalError
	if errors.As(err, &te) {
		return true
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return true
	}
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// IsRetryable 判断错误是否可以重试（非 nil 且非终止性）
func IsRetryable(err error) bool {
	return err != nil && !IsTerminal(err)
}

// IsValidation 判断错误是否为校验错误或配置错误
func IsValidation(err error) bool {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return true
	}
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// Must 如果 err 不为 nil，则 panic。仅用于初始化阶段。
func Must[T any](v T, err error) T {
	if err != nil {
		panic(fmt.Sprintf("must: %v", err))
	}
	return v
}

// MultiError 合并多个错误。
type MultiError struct {
	Errors []error
}

func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}
	return fmt.Sprintf("%v (and %d more errors)", m.Errors[0], len(m.Errors)-1)
}

func (m *MultiError) Unwrap() []error {
	return m.Errors
}

// Combine 将多个错误合并为一个。
func Combine(errs ...error) error {
	var nonNil []error
	for _, err := range errs {
		if err != nil {
			nonNil = append(nonNil, err)
		}
	}
	switch len(nonNil) {
	case 0:
		return nil
	case 1:
		return nonNil[0]
	default:
		return &MultiError{Errors: nonNil}
	}
}

// 标准库函数再导出
var (
	New    = errors.New
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	Join   = errors.Join
)
