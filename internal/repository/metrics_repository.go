package repository

import (
	"database/sql"
	"encoding/json"
	"time"
)

// ============================================================
// Хранение снимка показателей в PostgreSQL
// ============================================================
//
// Снимок показателей навыков и координатора хранится целиком одной
// записью JSONB (id=1) и перезаписывается после каждого цикла.

// MetricsRepository - работа с таблицей skill_metrics
type MetricsRepository struct {
	db *sql.DB
}

// NewMetricsRepository создает новый экземпляр репозитория
func NewMetricsRepository(db *sql.DB) *MetricsRepository {
	return &MetricsRepository{db: db}
}

// SaveMetrics сохраняет снимок показателей (upsert единственной записи)
func (r *MetricsRepository) SaveMetrics(document interface{}) error {
	doc, err := json.Marshal(document)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO skill_metrics (id, document, updated_at)
		VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE
		SET document = EXCLUDED.document,
		    updated_at = EXCLUDED.updated_at`

	_, err = r.db.Exec(query, doc, time.Now())
	return err
}
