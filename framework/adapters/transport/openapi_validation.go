package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"
	"github.com/gin-gonic/gin"
)

// ValidationOptions опции для валидации OpenAPI
type ValidationOptions struct {
	// StatusCode статус ответа при ошибке валидации
	StatusCode int
	// CustomSchemaErrorFunc позволяет переопределить текст ошибки
	CustomSchemaErrorFunc func(error) string
}

// DefaultValidationOptions возвращает опции валидации по умолчанию
func DefaultValidationOptions() *ValidationOptions {
	return &ValidationOptions{StatusCode: http.StatusUnprocessableEntity}
}

// OpenAPIValidator валидатор HTTP запросов по OpenAPI спецификации
type OpenAPIValidator struct {
	spec    *openapi3.T
	router  routers.Router
	options *ValidationOptions
}

// NewOpenAPIValidator создает валидатор из содержимого спецификации
func NewOpenAPIValidator(specData []byte, options *ValidationOptions) (*OpenAPIValidator, error) {
	loader := openapi3.NewLoader()
	spec, err := loader.LoadFromData(specData)
	if err != nil {
		return nil, fmt.Errorf("failed to load OpenAPI spec: %w", err)
	}
	if err := spec.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("invalid OpenAPI spec: %w", err)
	}

	router, err := legacy.NewRouter(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to create router: %w", err)
	}

	if options == nil {
		options = DefaultValidationOptions()
	}
	if options.StatusCode == 0 {
		options.StatusCode = http.StatusUnprocessableEntity
	}

	return &OpenAPIValidator{spec: spec, router: router, options: options}, nil
}

// Middleware возвращает gin middleware для валидации запросов.
// Маршруты, которых нет в спецификации, пропускаются без проверки.
func (v *OpenAPIValidator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		route, pathParams, err := v.router.FindRoute(c.Request)
		if err != nil {
			c.Next()
			return
		}

		if err := v.validate(c.Request.Context(), c.Request, route, pathParams); err != nil {
			WriteDetail(c, v.options.StatusCode, v.formatValidationError(err))
			return
		}
		c.Next()
	}
}

// ValidateRequest валидирует HTTP запрос по OpenAPI спецификации
func (v *OpenAPIValidator) ValidateRequest(req *http.Request) error {
	route, pathParams, err := v.router.FindRoute(req)
	if err != nil {
		return fmt.Errorf("route not found: %w", err)
	}
	return v.validate(req.Context(), req, route, pathParams)
}

func (v *OpenAPIValidator) validate(ctx context.Context, req *http.Request, route *routers.Route, pathParams map[string]string) error {
	input := &openapi3filter.RequestValidationInput{
		Request:     req,
		PathParams:  pathParams,
		Route:       route,
		QueryParams: req.URL.Query(),
		Options: &openapi3filter.Options{
			AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
		},
	}
	return openapi3filter.ValidateRequest(ctx, input)
}

// formatValidationError формирует короткое сообщение для поля detail
func (v *OpenAPIValidator) formatValidationError(err error) string {
	if v.options.CustomSchemaErrorFunc != nil {
		return v.options.CustomSchemaErrorFunc(err)
	}

	var reqErr *openapi3filter.RequestError
	if errors.As(err, &reqErr) && reqErr.Parameter != nil {
		reason := reqErr.Reason
		if reason == "" && reqErr.Err != nil {
			reason = reqErr.Err.Error()
		}
		return fmt.Sprintf("Invalid %s parameter %s: %s", reqErr.Parameter.In, reqErr.Parameter.Name, reason)
	}

	var schemaErr *openapi3.SchemaError
	if errors.As(err, &schemaErr) {
		field := strings.Join(schemaErr.JSONPointer(), ".")
		if field == "" {
			return "Invalid request body: " + schemaErr.Reason
		}
		return fmt.Sprintf("Invalid field %s: %s", field, schemaErr.Reason)
	}

	if reqErr != nil && reqErr.Reason != "" {
		return "Invalid request: " + reqErr.Reason
	}
	return "Invalid request: " + err.Error()
}

// GetSpec возвращает загруженную OpenAPI спецификацию
func (v *OpenAPIValidator) GetSpec() *openapi3.T {
	return v.spec
}
