package transport

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akriventsev/ordersaga/framework/core"
)

const testSpec = `
openapi: 3.0.3
info:
  title: test
  version: "1.0"
paths:
  /api/v1/items/{id}:
    post:
      parameters:
        - name: id
          in: path
          required: true
          schema:
            type: integer
      requestBody:
        required: true
        content:
          application/json:
            schema:
              type: object
              required: [price]
              properties:
                price:
                  type: number
                  exclusiveMinimum: true
                  minimum: 0
      responses:
        "201":
          description: created
`

func init() {
	gin.SetMode(gin.TestMode)
}

func newValidatedRouter(t *testing.T) *gin.Engine {
	t.Helper()
	validator, err := NewOpenAPIValidator([]byte(testSpec), nil)
	require.NoError(t, err)

	router := gin.New()
	router.Use(validator.Middleware())
	router.POST("/api/v1/items/:id", func(c *gin.Context) {
		c.JSON(http.StatusCreated, gin.H{"ok": true})
	})
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	return router
}

func doRequest(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestOpenAPIValidator_AcceptsValidRequest(t *testing.T) {
	rec := doRequest(newValidatedRouter(t), http.MethodPost, "/api/v1/items/1", `{"price": 10.5}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestOpenAPIValidator_RejectsInvalidBody(t *testing.T) {
	rec := doRequest(newValidatedRouter(t), http.MethodPost, "/api/v1/items/1", `{"price": 0}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), `"detail"`)
}

func TestOpenAPIValidator_RejectsMissingField(t *testing.T) {
	rec := doRequest(newValidatedRouter(t), http.MethodPost, "/api/v1/items/1", `{}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestOpenAPIValidator_SkipsUnknownRoutes(t *testing.T) {
	rec := doRequest(newValidatedRouter(t), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusFromCode(t *testing.T) {
	cases := map[string]int{
		core.ErrNotFound:           http.StatusNotFound,
		core.ErrInsufficientFunds:  http.StatusBadRequest,
		core.ErrServiceUnavailable: http.StatusServiceUnavailable,
		core.ErrRemote:             http.StatusBadGateway,
		core.ErrValidationFailed:   http.StatusUnprocessableEntity,
		core.ErrForbidden:          http.StatusForbidden,
		core.ErrConflict:           http.StatusConflict,
		core.ErrInternal:           http.StatusInternalServerError,
	}
	for code, status := range cases {
		assert.Equal(t, status, StatusFromCode(code), code)
	}
}

func TestWriteError(t *testing.T) {
	router := gin.New()
	router.GET("/framework", func(c *gin.Context) {
		WriteError(c, core.Wrap(errors.New("dial tcp"), core.ErrServiceUnavailable, "Failed to connect to billing service"))
	})
	router.GET("/plain", func(c *gin.Context) {
		WriteError(c, errors.New("pq: secret details"))
	})

	rec := doRequest(router, http.MethodGet, "/framework", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"detail":"Failed to connect to billing service"}`, rec.Body.String())

	rec = doRequest(router, http.MethodGet, "/plain", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"detail":"Internal server error"}`, rec.Body.String())
}

func TestSwaggerUI(t *testing.T) {
	router := gin.New()
	NewSwaggerUI(DefaultSwaggerUIConfig(), []byte(testSpec)).RegisterRoutes(router)

	rec := doRequest(router, http.MethodGet, "/docs/openapi.yaml", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "openapi: 3.0.3")

	rec = doRequest(router, http.MethodGet, "/docs/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "swagger-ui")
}
