package repository

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"tradeagent/internal/models"
)

// Ошибки репозитория решений
var (
	ErrDecisionNotFound = errors.New("decision not found")
)

// DecisionRecord - запись журнала решений
type DecisionRecord struct {
	ID        int64                   `json:"id"`
	Symbol    string                  `json:"symbol"`
	Decision  models.TradingDecision  `json:"decision"`
	Execution *models.ExecutionReport `json:"execution,omitempty"`
	CreatedAt time.Time               `json:"created_at"`
}

// DecisionRepository - журнал итоговых решений циклов в таблице decisions
type DecisionRepository struct {
	db *sql.DB
}

// NewDecisionRepository создает новый экземпляр репозитория
func NewDecisionRepository(db *sql.DB) *DecisionRepository {
	return &DecisionRepository{db: db}
}

// Insert добавляет решение цикла в журнал. execution может быть nil,
// если цикл не дошел до исполнения.
func (r *DecisionRepository) Insert(symbol string, decision *models.TradingDecision, execution *models.ExecutionReport) (int64, error) {
	decisionJSON, err := json.Marshal(decision)
	if err != nil {
		return 0, err
	}

	var executionJSON []byte
	if execution != nil {
		executionJSON, err = json.Marshal(execution)
		if err != nil {
			return 0, err
		}
	}

	query := `
		INSERT INTO decisions (symbol, action, risk_score, decision, execution, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	var id int64
	err = r.db.QueryRow(query,
		symbol,
		decision.Action,
		decision.RiskScore,
		decisionJSON,
		executionJSON,
		time.Now(),
	).Scan(&id)
	if err != nil {
		return 0, err
	}

	return id, nil
}

// GetByID возвращает запись журнала по идентификатору
func (r *DecisionRepository) GetByID(id int64) (*DecisionRecord, error) {
	query := `
		SELECT id, symbol, decision, execution, created_at
		FROM decisions
		WHERE id = $1`

	record := &DecisionRecord{}
	var decisionJSON, executionJSON []byte
	err := r.db.QueryRow(query, id).Scan(
		&record.ID,
		&record.Symbol,
		&decisionJSON,
		&executionJSON,
		&record.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDecisionNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal(decisionJSON, &record.Decision); err != nil {
		return nil, err
	}
	if len(executionJSON) > 0 {
		record.Execution = &models.ExecutionReport{}
		if err := json.Unmarshal(executionJSON, record.Execution); err != nil {
			return nil, err
		}
	}

	return record, nil
}

// ListRecent возвращает последние записи журнала (новейшие первыми)
func (r *DecisionRepository) ListRecent(symbol string, limit int) ([]*DecisionRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, symbol, decision, execution, created_at
		FROM decisions
		WHERE symbol = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.db.Query(query, symbol, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []*DecisionRecord{}
	for rows.Next() {
		record := &DecisionRecord{}
		var decisionJSON, executionJSON []byte
		if err := rows.Scan(
			&record.ID,
			&record.Symbol,
			&decisionJSON,
			&executionJSON,
			&record.CreatedAt,
		); err != nil {
			return nil, err
		}

		if err := json.Unmarshal(decisionJSON, &record.Decision); err != nil {
			return nil, err
		}
		if len(executionJSON) > 0 {
			record.Execution = &models.ExecutionReport{}
			if err := json.Unmarshal(executionJSON, record.Execution); err != nil {
				return nil, err
			}
		}

		records = append(records, record)
	}

	return records, rows.Err()
}

// CountByAction возвращает количество решений по каждому действию
func (r *DecisionRepository) CountByAction(symbol string, since time.Time) (map[string]int, error) {
	query := `
		SELECT action, COUNT(*)
		FROM decisions
		WHERE symbol = $1 AND created_at >= $2
		GROUP BY action`

	rows, err := r.db.Query(query, symbol, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var action string
		var count int
		if err := rows.Scan(&action, &count); err != nil {
			return nil, err
		}
		counts[action] = count
	}

	return counts, rows.Err()
}

// DeleteOlderThan удаляет записи журнала старше указанного момента
func (r *DecisionRepository) DeleteOlderThan(cutoff time.Time) (int64, error) {
	query := `DELETE FROM decisions WHERE created_at < $1`

	result, err := r.db.Exec(query, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
