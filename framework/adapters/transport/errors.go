package transport

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/akriventsev/ordersaga/framework/core"
)

// ErrorResponse тело ответа с ошибкой
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// StatusFromCode возвращает HTTP статус для кода ошибки
func StatusFromCode(code string) int {
	switch code {
	case core.ErrNotFound:
		return http.StatusNotFound
	case core.ErrInsufficientFunds:
		return http.StatusBadRequest
	case core.ErrServiceUnavailable:
		return http.StatusServiceUnavailable
	case core.ErrRemote:
		return http.StatusBadGateway
	case core.ErrValidationFailed:
		return http.StatusUnprocessableEntity
	case core.ErrForbidden:
		return http.StatusForbidden
	case core.ErrConflict, core.ErrAlreadyExists:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// StatusOf возвращает HTTP статус для ошибки
func StatusOf(err error) int {
	return StatusFromCode(core.CodeOf(err))
}

// DetailOf возвращает сообщение для клиента. Для посторонних ошибок
// текст скрывается, чтобы не раскрывать внутренности.
func DetailOf(err error) string {
	if fe, ok := core.AsFrameworkError(err); ok {
		return fe.Message
	}
	return "Internal server error"
}

// WriteError отправляет ошибку в формате {"detail": ...}
func WriteError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(StatusOf(err), ErrorResponse{Detail: DetailOf(err)})
}

// WriteDetail отправляет ошибку с явным статусом
func WriteDetail(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Detail: detail})
}
