package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode 错误码类型
type ErrorCode string

const (
	ErrCodeInternalServer   ErrorCode = "INTERNAL_SERVER_ERROR"
	ErrCodeBadRequest       ErrorCode = "BAD_REQUEST"
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeMissingRequired  ErrorCode = "MISSING_REQUIRED"
	ErrCodeInvalidState     ErrorCode = "INVALID_STATE"
	ErrCodeExternalService  ErrorCode = "EXTERNAL_SERVICE_ERROR"
	ErrCodeTimeout          ErrorCode = "TIMEOUT"
)

// ErrorType 错误类型
type ErrorType int

const (
	ErrorTypeSystem ErrorType = iota
	ErrorTypeValidation
	ErrorTypeExternal
)

// AppError 对外（HTTP层）暴露的错误
type AppError struct {
	Code     ErrorCode `json:"code"`
	Message  string    `json:"message"`
	Type     ErrorType `json:"type"`
	HTTPCode int       `json:"-"`
	Cause    error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithCause 添加错误原因
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// NewSystemError 创建系统错误
func NewSystemError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:     code,
		Message:  message,
		Type:     ErrorTypeSystem,
		HTTPCode: http.StatusInternalServerError,
	}
}

// NewValidationError 创建验证错误
func NewValidationError(message string) *AppError {
	return &AppError{
		Code:     ErrCodeValidationFailed,
		Message:  message,
		Type:     ErrorTypeValidation,
		HTTPCode: http.StatusBadRequest,
	}
}

// NewBadRequestError 请求格式错误
func NewBadRequestError(message string) *AppError {
	return &AppError{
		Code:     ErrCodeBadRequest,
		Message:  message,
		Type:     ErrorTypeValidation,
		HTTPCode: http.StatusBadRequest,
	}
}

// NewMissingFieldError 缺少必填字段
func NewMissingFieldError(field string) *AppError {
	return &AppError{
		Code:     ErrCodeMissingRequired,
		Message:  field + " is required",
		Type:     ErrorTypeValidation,
		HTTPCode: http.StatusBadRequest,
	}
}

// NewExternalError 创建外部服务错误
func NewExternalError(service string, cause error) *AppError {
	return &AppError{
		Code:     ErrCodeExternalService,
		Message:  fmt.Sprintf("%s request failed", service),
		Type:     ErrorTypeExternal,
		HTTPCode: http.StatusBadGateway,
		Cause:    cause,
	}
}

// GetAppError 获取AppError，如果不是则包装为系统错误
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewSystemError(ErrCodeInternalServer, "Internal server error").WithCause(err)
}

// StageKind 描述某个处理阶段的失败策略
type StageKind int

const (
	// KindFatal 终止本次摄取
	KindFatal StageKind = iota
	// KindDegraded 记录后降级继续（跳过条目或使用占位数据）
	KindDegraded
)

func (k StageKind) String() string {
	switch k {
	case KindFatal:
		return "fatal"
	case KindDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// StageError 摄取流水线中某一阶段的错误
type StageError struct {
	Stage string
	Kind  StageKind
	Cause error
}

func (e *StageError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s stage %s", e.Stage, e.Kind)
	}
	return fmt.Sprintf("%s stage %s: %v", e.Stage, e.Kind, e.Cause)
}

func (e *StageError) Unwrap() error {
	return e.Cause
}

// Fatal 创建终止型阶段错误
func Fatal(stage string, cause error) *StageError {
	return &StageError{Stage: stage, Kind: KindFatal, Cause: cause}
}

// Fatalf 以格式化消息创建终止型阶段错误
func Fatalf(stage, format string, args ...interface{}) *StageError {
	return Fatal(stage, fmt.Errorf(format, args...))
}

// Degraded 创建降级型阶段错误
func Degraded(stage string, cause error) *StageError {
	return &StageError{Stage: stage, Kind: KindDegraded, Cause: cause}
}

// IsFatal 判断错误链中是否有终止型阶段错误
func IsFatal(err error) bool {
	var stageErr *StageError
	return errors.As(err, &stageErr) && stageErr.Kind == KindFatal
}

// StageOf 返回错误所属阶段，非阶段错误返回空字符串
func StageOf(err error) string {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Stage
	}
	return ""
}
