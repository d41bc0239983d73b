package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FilePersister сохраняет документ контекста в JSON-файл.
// Используется в тестовом режиме и при работе без базы данных.
type FilePersister struct {
	path string
}

// NewFilePersister создаёт персистер, убеждаясь что директория существует
func NewFilePersister(path string) (*FilePersister, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create context directory %s: %w", dir, err)
	}
	return &FilePersister{path: path}, nil
}

// Save перезаписывает файл целиком текущим документом
func (p *FilePersister) Save(ctx *Context) error {
	data, err := json.MarshalIndent(ctx, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal context: %w", err)
	}
	if err := os.WriteFile(p.path, data, 0o644); err != nil {
		return fmt.Errorf("write context file: %w", err)
	}
	return nil
}

// Load читает сохранённый документ. Отсутствие файла - не ошибка.
func (p *FilePersister) Load() (*Context, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read context file: %w", err)
	}

	var ctx Context
	if err := json.Unmarshal(data, &ctx); err != nil {
		return nil, fmt.Errorf("unmarshal context: %w", err)
	}
	return &ctx, nil
}
