package saga

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB минимальный интерфейс пула соединений, совместимый с pgxpool.Pool
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresPersistence реализация persistence через PostgreSQL
type PostgresPersistence struct {
	db       DB
	registry *SagaRegistry
}

// NewPostgresPersistence создает PostgreSQL persistence поверх пула
func NewPostgresPersistence(db DB, registry *SagaRegistry) *PostgresPersistence {
	if registry == nil {
		registry = NewSagaRegistry()
	}
	return &PostgresPersistence{db: db, registry: registry}
}

const upsertSagaSQL = `
	INSERT INTO saga_instances (id, definition_name, status, context, correlation_id, current_step, created_at, updated_at, completed_at)
	VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7, $8, $9)
	ON CONFLICT (id) DO UPDATE SET
		status = EXCLUDED.status,
		context = EXCLUDED.context,
		current_step = EXCLUDED.current_step,
		updated_at = EXCLUDED.updated_at,
		completed_at = EXCLUDED.completed_at`

const upsertHistorySQL = `
	INSERT INTO saga_history (saga_id, seq, step_name, status, error, retry_attempt, started_at, completed_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (saga_id, seq) DO UPDATE SET
		status = EXCLUDED.status,
		error = EXCLUDED.error,
		retry_attempt = EXCLUDED.retry_attempt,
		completed_at = EXCLUDED.completed_at`

const selectSagaSQL = `
	SELECT id, definition_name, status, context::text, correlation_id, current_step, created_at, updated_at, completed_at
	FROM saga_instances`

func (p *PostgresPersistence) Save(ctx context.Context, saga Saga) error {
	contextJSON, err := json.Marshal(saga.Context().ToMap())
	if err != nil {
		return fmt.Errorf("failed to marshal saga context: %w", err)
	}
	meta := saga.Context().Metadata()

	_, err = p.db.Exec(ctx, upsertSagaSQL,
		saga.ID(),
		saga.Definition().Name(),
		string(saga.Status()),
		string(contextJSON),
		meta.CorrelationID,
		saga.CurrentStep(),
		saga.StartedAt(),
		meta.UpdatedAt,
		saga.CompletedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to save saga %s: %w", saga.ID(), err)
	}

	for _, h := range saga.GetHistory() {
		_, err = p.db.Exec(ctx, upsertHistorySQL,
			saga.ID(), h.Seq, h.StepName, string(h.Status), h.Error, h.RetryAttempt, h.StartedAt, h.CompletedAt)
		if err != nil {
			return fmt.Errorf("failed to save history of saga %s: %w", saga.ID(), err)
		}
	}
	return nil
}

func (p *PostgresPersistence) Load(ctx context.Context, sagaID string) (Saga, error) {
	row := p.db.QueryRow(ctx, selectSagaSQL+` WHERE id = $1`, sagaID)
	rec, err := scanSagaRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("saga %s: %w", sagaID, ErrSagaNotFound)
		}
		return nil, fmt.Errorf("failed to load saga %s: %w", sagaID, err)
	}

	history, err := p.GetHistory(ctx, sagaID)
	if err != nil {
		return nil, err
	}
	return p.restore(rec, history)
}

func (p *PostgresPersistence) LoadAll(ctx context.Context, status SagaStatus) ([]Saga, error) {
	rows, err := p.db.Query(ctx, selectSagaSQL+` WHERE status = $1 ORDER BY created_at ASC`, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to query sagas: %w", err)
	}

	var records []sagaRecord
	for rows.Next() {
		rec, err := scanSagaRecord(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan saga: %w", err)
		}
		records = append(records, rec)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sagas: %w", err)
	}

	sagas := make([]Saga, 0, len(records))
	for _, rec := range records {
		history, err := p.GetHistory(ctx, rec.id)
		if err != nil {
			return nil, err
		}
		saga, err := p.restore(rec, history)
		if err != nil {
			// определение могло быть удалено из кода, такие саги пропускаем
			continue
		}
		sagas = append(sagas, saga)
	}
	return sagas, nil
}

func (p *PostgresPersistence) Delete(ctx context.Context, sagaID string) error {
	if _, err := p.db.Exec(ctx, `DELETE FROM saga_history WHERE saga_id = $1`, sagaID); err != nil {
		return fmt.Errorf("failed to delete history of saga %s: %w", sagaID, err)
	}
	if _, err := p.db.Exec(ctx, `DELETE FROM saga_instances WHERE id = $1`, sagaID); err != nil {
		return fmt.Errorf("failed to delete saga %s: %w", sagaID, err)
	}
	return nil
}

func (p *PostgresPersistence) GetHistory(ctx context.Context, sagaID string) ([]SagaHistory, error) {
	rows, err := p.db.Query(ctx, `
		SELECT seq, step_name, status, error, retry_attempt, started_at, completed_at
		FROM saga_history
		WHERE saga_id = $1
		ORDER BY seq ASC`, sagaID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var history []SagaHistory
	for rows.Next() {
		var h SagaHistory
		var status string
		if err := rows.Scan(&h.Seq, &h.StepName, &status, &h.Error, &h.RetryAttempt, &h.StartedAt, &h.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		h.Status = StepStatus(status)
		history = append(history, h)
	}
	return history, rows.Err()
}

type sagaRecord struct {
	id             string
	definitionName string
	status         string
	contextJSON    string
	correlationID  string
	currentStep    string
	createdAt      time.Time
	updatedAt      time.Time
	completedAt    *time.Time
}

func scanSagaRecord(row pgx.Row) (sagaRecord, error) {
	var rec sagaRecord
	err := row.Scan(&rec.id, &rec.definitionName, &rec.status, &rec.contextJSON,
		&rec.correlationID, &rec.currentStep, &rec.createdAt, &rec.updatedAt, &rec.completedAt)
	return rec, err
}

func (p *PostgresPersistence) restore(rec sagaRecord, history []SagaHistory) (Saga, error) {
	definition, err := p.registry.GetSaga(rec.definitionName)
	if err != nil {
		return nil, err
	}

	data := make(map[string]interface{})
	dec := json.NewDecoder(bytes.NewReader([]byte(rec.contextJSON)))
	dec.UseNumber()
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal context of saga %s: %w", rec.id, err)
	}

	sagaCtx := NewSagaContext()
	sagaCtx.FromMap(data)
	sagaCtx.SetCorrelationID(rec.correlationID)
	sagaCtx.SetTimestamps(rec.createdAt, rec.updatedAt)

	return RestoreBaseSaga(rec.id, definition, sagaCtx, SagaStatus(rec.status), rec.currentStep,
		history, rec.createdAt, rec.completedAt, Options{Persistence: p})
}
