// Package migrations предоставляет обертку над goose для миграций схемы из встроенных SQL файлов.
package migrations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
)

// goose хранит base FS и диалект глобально
var gooseMu sync.Mutex

// MigrationStatus представляет статус миграции
type MigrationStatus struct {
	Version int64
	Name    string
	Applied bool
}

// Migrator применяет миграции одного сервиса
type Migrator struct {
	db   *sql.DB
	fsys fs.FS
	dir  string
}

// NewMigrator создает мигратор поверх файловой системы с SQL файлами
func NewMigrator(db *sql.DB, fsys fs.FS, dir string) *Migrator {
	if dir == "" {
		dir = "."
	}
	return &Migrator{db: db, fsys: fsys, dir: dir}
}

func (m *Migrator) with(fn func() error) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(m.fsys)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	return fn()
}

// Up применяет все pending миграции
func (m *Migrator) Up(ctx context.Context) error {
	return m.with(func() error {
		if err := goose.UpContext(ctx, m.db, m.dir); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		return nil
	})
}

// UpBy применяет не более steps pending миграций
func (m *Migrator) UpBy(ctx context.Context, steps int) error {
	if steps <= 0 {
		return m.Up(ctx)
	}
	return m.with(func() error {
		for i := 0; i < steps; i++ {
			if err := goose.UpByOneContext(ctx, m.db, m.dir); err != nil {
				if errors.Is(err, goose.ErrNoNextVersion) {
					return nil
				}
				return fmt.Errorf("failed to run migration: %w", err)
			}
		}
		return nil
	})
}

// Down откатывает steps последних миграций
func (m *Migrator) Down(ctx context.Context, steps int) error {
	if steps <= 0 {
		steps = 1
	}
	return m.with(func() error {
		for i := 0; i < steps; i++ {
			if err := goose.DownContext(ctx, m.db, m.dir); err != nil {
				return fmt.Errorf("failed to rollback migration: %w", err)
			}
		}
		return nil
	})
}

// Version возвращает текущую версию схемы
func (m *Migrator) Version(ctx context.Context) (int64, error) {
	var version int64
	err := m.with(func() error {
		var err error
		version, err = goose.GetDBVersionContext(ctx, m.db)
		if err != nil {
			return fmt.Errorf("failed to get current version: %w", err)
		}
		return nil
	})
	return version, err
}

// Status возвращает статус всех известных миграций
func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	current, err := m.Version(ctx)
	if err != nil {
		// таблицы goose_db_version еще нет, все миграции pending
		current = 0
	}

	available, err := m.Available()
	if err != nil {
		return nil, err
	}
	for i := range available {
		available[i].Applied = available[i].Version <= current
	}
	return available, nil
}

// Available перечисляет миграции из файловой системы без обращения к БД
func (m *Migrator) Available() ([]MigrationStatus, error) {
	var result []MigrationStatus
	err := m.with(func() error {
		collected, err := goose.CollectMigrations(m.dir, 0, goose.MaxVersion)
		if err != nil {
			return fmt.Errorf("failed to collect migrations: %w", err)
		}
		for _, migration := range collected {
			result = append(result, MigrationStatus{
				Version: migration.Version,
				Name:    filepath.Base(migration.Source),
			})
		}
		return nil
	})
	sort.Slice(result, func(i, j int) bool { return result[i].Version < result[j].Version })
	return result, err
}

// CreateMigration создает новый файл миграции в формате goose и возвращает его путь
func CreateMigration(dir, name string, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create migrations directory: %w", err)
	}

	filename := fmt.Sprintf("%s_%s.sql", now.Format("20060102150405"), name)
	path := filepath.Join(dir, filename)
	content := fmt.Sprintf(`-- +goose Up
-- %s

-- +goose Down
`, name)

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to create migration file: %w", err)
	}
	return path, nil
}
