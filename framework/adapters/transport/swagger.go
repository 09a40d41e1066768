package transport

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// SwaggerUIConfig конфигурация страницы документации
type SwaggerUIConfig struct {
	Path  string
	Title string
}

// DefaultSwaggerUIConfig возвращает конфигурацию Swagger UI по умолчанию
func DefaultSwaggerUIConfig() SwaggerUIConfig {
	return SwaggerUIConfig{Path: "/docs", Title: "API"}
}

// SwaggerUI отдает встроенную OpenAPI спецификацию и страницу Swagger UI
type SwaggerUI struct {
	config      SwaggerUIConfig
	specContent []byte
}

// NewSwaggerUI создает обработчик документации
func NewSwaggerUI(config SwaggerUIConfig, specContent []byte) *SwaggerUI {
	return &SwaggerUI{config: config, specContent: specContent}
}

// RegisterRoutes регистрирует маршруты документации
func (s *SwaggerUI) RegisterRoutes(router gin.IRouter) {
	group := router.Group(s.config.Path)
	group.GET("/openapi.yaml", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/yaml", s.specContent)
	})
	group.GET("/", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(s.page()))
	})
}

func (s *SwaggerUI) page() string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>%s</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.9.0/swagger-ui.css" />
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5.9.0/swagger-ui-bundle.js"></script>
  <script>
    window.onload = function() {
      SwaggerUIBundle({url: "%s/openapi.yaml", dom_id: '#swagger-ui', deepLinking: true});
    };
  </script>
</body>
</html>`, s.config.Title, s.config.Path)
}
