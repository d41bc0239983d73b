package repository

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"tradeagent/internal/store"
)

// ============================================================
// Хранение документа контекста в PostgreSQL
// ============================================================
//
// Документ контекста хранится целиком одной записью JSONB (id=1).
// Репозиторий реализует store.Persister: Save вызывается хранилищем
// синхронно на каждую мутацию, Load один раз при старте.

// ContextRepository - работа с таблицей pipeline_context
type ContextRepository struct {
	db *sql.DB
}

// NewContextRepository создает новый экземпляр репозитория
func NewContextRepository(db *sql.DB) *ContextRepository {
	return &ContextRepository{db: db}
}

// Save сохраняет документ контекста (upsert единственной записи)
func (r *ContextRepository) Save(ctx *store.Context) error {
	doc, err := json.Marshal(ctx)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO pipeline_context (id, document, version, updated_at)
		VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET document = EXCLUDED.document,
		    version = EXCLUDED.version,
		    updated_at = EXCLUDED.updated_at`

	_, err = r.db.Exec(query, doc, ctx.Version, time.Now())
	return err
}

// Load возвращает сохраненный документ контекста.
// Если записи еще нет, возвращает (nil, nil).
func (r *ContextRepository) Load() (*store.Context, error) {
	query := `SELECT document FROM pipeline_context WHERE id = 1`

	var doc []byte
	err := r.db.QueryRow(query).Scan(&doc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	if len(doc) == 0 {
		return nil, nil
	}

	ctx := &store.Context{}
	if err := json.Unmarshal(doc, ctx); err != nil {
		return nil, err
	}
	return ctx, nil
}
