// Package migrations схема order-service: заказы и журнал саг.
package migrations

import "embed"

// FS встроенные SQL миграции
//
//go:embed *.sql
var FS embed.FS
