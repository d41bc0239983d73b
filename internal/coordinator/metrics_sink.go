package coordinator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileMetricsSink перезаписывает снимок показателей в JSON-файл.
// Используется при работе без базы данных.
type FileMetricsSink struct {
	path string
}

// NewFileMetricsSink создаёт приёмник, убеждаясь что директория существует
func NewFileMetricsSink(path string) (*FileMetricsSink, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create metrics directory %s: %w", dir, err)
	}
	return &FileMetricsSink{path: path}, nil
}

// SaveMetrics перезаписывает файл целиком текущим снимком
func (s *FileMetricsSink) SaveMetrics(document interface{}) error {
	data, err := json.MarshalIndent(document, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write metrics file: %w", err)
	}
	return nil
}
