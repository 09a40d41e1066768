// Package migrations схема billing-service.
package migrations

import "embed"

// FS встроенные SQL миграции
//
//go:embed *.sql
var FS embed.FS
