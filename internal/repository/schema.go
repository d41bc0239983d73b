package repository

import "database/sql"

// Схема хранилища агента. Таблиц всего три, поэтому миграции
// выполняются прямо при старте без внешнего инструмента.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS pipeline_context (
		id INT PRIMARY KEY,
		document JSONB NOT NULL,
		version BIGINT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS decisions (
		id BIGSERIAL PRIMARY KEY,
		symbol TEXT NOT NULL,
		action TEXT NOT NULL,
		risk_score DOUBLE PRECISION NOT NULL,
		decision JSONB NOT NULL,
		execution JSONB,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_decisions_symbol_created
		ON decisions (symbol, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS skill_metrics (
		id INT PRIMARY KEY,
		document JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
}

// EnsureSchema создает таблицы агента, если их еще нет
func EnsureSchema(db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
