// Package core предоставляет систему ошибок фреймворка.
package core

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Коды ошибок фреймворка
const (
	ErrNotFound             = "NOT_FOUND"
	ErrAlreadyExists        = "ALREADY_EXISTS"
	ErrInvalidConfig        = "INVALID_CONFIG"
	ErrInitializationFailed = "INITIALIZATION_FAILED"
	ErrValidationFailed     = "VALIDATION_FAILED"
	ErrForbidden            = "FORBIDDEN"
	ErrConflict             = "CONFLICT"
	ErrInternal             = "INTERNAL"
)

// Коды ошибок взаимодействия с удаленными сервисами
const (
	ErrInsufficientFunds  = "INSUFFICIENT_FUNDS"
	ErrServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrRemote             = "REMOTE_ERROR"
)

// FrameworkError базовый тип ошибки фреймворка
type FrameworkError struct {
	Code       string
	Message    string
	Cause      error
	StackTrace string
}

// Error реализует интерфейс error
func (e *FrameworkError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap возвращает причину ошибки
func (e *FrameworkError) Unwrap() error {
	return e.Cause
}

// Is проверяет, соответствует ли ошибка коду
func (e *FrameworkError) Is(target error) bool {
	if t, ok := target.(*FrameworkError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithContext добавляет контекст к ошибке
func (e *FrameworkError) WithContext(context string) *FrameworkError {
	return &FrameworkError{
		Code:       e.Code,
		Message:    fmt.Sprintf("%s: %s", context, e.Message),
		Cause:      e.Cause,
		StackTrace: e.StackTrace,
	}
}

// NewError создает новую ошибку фреймворка
func NewError(code, message string) *FrameworkError {
	return &FrameworkError{
		Code:       code,
		Message:    message,
		StackTrace: captureStackTrace(),
	}
}

// Errorf создает ошибку с форматированным сообщением
func Errorf(code, format string, args ...interface{}) *FrameworkError {
	return NewError(code, fmt.Sprintf(format, args...))
}

// Wrap оборачивает существующую ошибку
func Wrap(err error, code, message string) *FrameworkError {
	if err == nil {
		return nil
	}
	return &FrameworkError{
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: captureStackTrace(),
	}
}

// WrapWithCode оборачивает ошибку с кодом
func WrapWithCode(err error, code string) *FrameworkError {
	if err == nil {
		return nil
	}
	return &FrameworkError{
		Code:       code,
		Message:    err.Error(),
		Cause:      err,
		StackTrace: captureStackTrace(),
	}
}

// AsFrameworkError извлекает первую FrameworkError из цепочки
func AsFrameworkError(err error) (*FrameworkError, bool) {
	var fe *FrameworkError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// CodeOf возвращает код ошибки или ErrInternal для посторонних ошибок
func CodeOf(err error) string {
	if fe, ok := AsFrameworkError(err); ok {
		return fe.Code
	}
	return ErrInternal
}

// captureStackTrace захватывает stack trace
func captureStackTrace() string {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	stack := string(buf[:n])

	// первые строки относятся к самой captureStackTrace
	lines := strings.Split(stack, "\n")
	if len(lines) > 4 {
		lines = lines[4:]
	}
	return strings.Join(lines, "\n")
}
