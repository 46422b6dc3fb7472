package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

const (
	defaultFilePerm = 0600
	defaultDirPerm  = 0700
)

// File хранит ключи в JSON-файле. Запись выполняется под эксклюзивной
// файловой блокировкой <path>.lock, поэтому несколько процессов клиента
// (TUI и команды CLI) не затирают ключи друг друга.
type File struct {
	mu       sync.Mutex
	path     string
	fileLock *flock.Flock
	data     map[string]string
	closed   bool
}

// Убедимся, что File удовлетворяет интерфейсу Storage.
var _ Storage = (*File)(nil)

// OpenFile открывает (или подготавливает к созданию) файловое хранилище.
func OpenFile(path string) (*File, error) {
	if path == "" {
		return nil, errors.New("путь к файлу состояния не может быть пустым")
	}
	if err := os.MkdirAll(filepath.Dir(path), defaultDirPerm); err != nil {
		return nil, fmt.Errorf("ошибка создания директории для '%s': %w", path, err)
	}

	f := &File{
		path:     path,
		fileLock: flock.New(path + ".lock"),
		data:     make(map[string]string),
	}

	// Читаем под разделяемой блокировкой, чтобы не поймать файл в момент записи
	if err := f.fileLock.RLock(); err != nil {
		return nil, fmt.Errorf("ошибка блокировки файла состояния '%s': %w", path, err)
	}
	data, err := readStateFile(path)
	if unlockErr := f.fileLock.Unlock(); unlockErr != nil {
		slog.Warn("Не удалось снять блокировку файла состояния", "path", path, "error", unlockErr)
	}
	if err != nil {
		return nil, err
	}
	f.data = data

	slog.Debug("Файловое хранилище открыто", "path", path, "keys", len(data))
	return f, nil
}

func (f *File) Get(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return v, ok
}

func (f *File) Set(key, value string) error {
	return f.modify(func(data map[string]string) {
		data[key] = value
	})
}

func (f *File) Remove(key string) error {
	return f.modify(func(data map[string]string) {
		delete(data, key)
	})
}

func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return f.fileLock.Close()
}

// modify перечитывает файл под эксклюзивной блокировкой, применяет изменение
// и атомарно перезаписывает файл через временный файл.
func (f *File) modify(change func(map[string]string)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}

	if err := f.fileLock.Lock(); err != nil {
		return fmt.Errorf("ошибка блокировки файла состояния '%s': %w", f.path, err)
	}
	defer func() {
		if err := f.fileLock.Unlock(); err != nil {
			slog.Warn("Не удалось снять блокировку файла состояния", "path", f.path, "error", err)
		}
	}()

	// Другой процесс мог изменить чужие ключи - берем свежую версию
	data, err := readStateFile(f.path)
	if err != nil {
		return err
	}
	change(data)

	if err = writeStateFile(f.path, data); err != nil {
		return err
	}
	f.data = data
	return nil
}

func readStateFile(path string) (map[string]string, error) {
	data := make(map[string]string)
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return data, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла состояния '%s': %w", path, err)
	}
	if len(raw) == 0 {
		return data, nil
	}
	if err = json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("ошибка декодирования файла состояния '%s': %w", path, err)
	}
	return data, nil
}

func writeStateFile(path string, data map[string]string) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("ошибка кодирования состояния: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("ошибка создания временного файла: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // После успешного Rename файла уже нет, ошибка игнорируется

	if _, err = tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("ошибка записи временного файла: %w", err)
	}
	if err = tmp.Chmod(defaultFilePerm); err != nil {
		tmp.Close()
		return fmt.Errorf("ошибка установки прав файла состояния: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("ошибка закрытия временного файла: %w", err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("ошибка замены файла состояния '%s': %w", path, err)
	}
	return nil
}
