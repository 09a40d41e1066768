// Package core предоставляет базовые типы для всех компонентов фреймворка.
package core

// ComponentType enum для типов компонентов
type ComponentType string

const (
	ComponentTypeAdapter   ComponentType = "adapter"
	ComponentTypeTransport ComponentType = "transport"
	ComponentTypeService   ComponentType = "service"
)

// HealthStatus состояние компонента для /health
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)
