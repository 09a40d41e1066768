// Package migrations схема notification-service.
package migrations

import "embed"

// FS встроенные SQL миграции
//
//go:embed *.sql
var FS embed.FS
