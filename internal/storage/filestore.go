package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/skalibog/acre/pkg/models"
)

// Имена файлов файлового хранилища
const (
	simulationFile = "simulation.json"
	ledgerFile     = "rebalance_ledger.jsonl"
	auditFile      = "guardrail_audit.jsonl"
	lockFile       = "rebalance.lock"
)

// FileStore файловое хранилище результатов симуляции, журнала
// ребалансировок и журнала аудита. Результат симуляции заменяется
// атомарно (запись во временный файл + переименование), журналы
// только дополняются.
type FileStore struct {
	dir string
}

// NewFileStore создает файловое хранилище в каталоге dir
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("ошибка создания каталога данных: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// SaveSimulation атомарно записывает результат симуляции
func (s *FileStore) SaveSimulation(result *models.SimulationResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("ошибка сериализации результата симуляции: %w", err)
	}

	// Частично записанный файл не должен быть виден читателям
	tmpPath := filepath.Join(s.dir, simulationFile+".tmp")
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("ошибка записи временного файла: %w", err)
	}
	if err := os.Rename(tmpPath, filepath.Join(s.dir, simulationFile)); err != nil {
		return fmt.Errorf("ошибка переименования файла симуляции: %w", err)
	}

	return nil
}

// LoadSimulation читает сохраненный результат симуляции.
// Отсутствие файла не считается ошибкой: возвращается (nil, nil).
func (s *FileStore) LoadSimulation() (*models.SimulationResult, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, simulationFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла симуляции: %w", err)
	}

	var result models.SimulationResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("ошибка разбора файла симуляции: %w", err)
	}

	return &result, nil
}

// AppendLedger дописывает запись в журнал ребалансировок
func (s *FileStore) AppendLedger(rec models.LedgerRecord) error {
	return s.appendJSON(ledgerFile, rec)
}

// Record дописывает запись проверки guardrail в журнал аудита
func (s *FileStore) Record(rec models.AuditRecord) error {
	return s.appendJSON(auditFile, rec)
}

// appendJSON дописывает одну JSON-строку в файл журнала
func (s *FileStore) appendJSON(name string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("ошибка сериализации записи журнала: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("ошибка открытия журнала %s: %w", name, err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("ошибка записи в журнал %s: %w", name, err)
	}

	return nil
}

// AcquireLock берет консультативную блокировку на один запуск
// ребалансировки. Два одновременных запуска гоняются за файлом
// симуляции и журналом, поэтому второй запуск должен быть отклонен.
// Возвращает функцию освобождения блокировки.
func (s *FileStore) AcquireLock() (func(), error) {
	path := filepath.Join(s.dir, lockFile)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("блокировка %s уже занята другим запуском", path)
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка создания файла блокировки: %w", err)
	}

	fmt.Fprintf(f, "%d\n", os.Getpid())
	f.Close()

	return func() {
		os.Remove(path)
	}, nil
}
