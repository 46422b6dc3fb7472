// Package storage реализует долговременное хранилище клиента "ключ-значение"
// (аналог localStorage): токен аутентификации и выбранный факультет.
package storage

import (
	"errors"
	"fmt"
	"sync"
)

// Ключи долговременного хранилища. У каждого ключа ровно один владелец:
// токен пишет только session, факультет - только faculty.
const (
	KeyAuthToken         = "authToken"
	KeySelectedFacultyID = "selectedFacultyId"
)

// ErrClosed возвращается при записи в закрытое хранилище.
var ErrClosed = errors.New("хранилище закрыто")

// Storage определяет интерфейс долговременного хранилища.
type Storage interface {
	// Get возвращает значение по ключу и признак его наличия.
	Get(key string) (string, bool)
	// Set сохраняет значение по ключу.
	Set(key, value string) error
	// Remove удаляет ключ. Удаление отсутствующего ключа не является ошибкой.
	Remove(key string) error
	// Close освобождает ресурсы хранилища.
	Close() error
}

// Memory - хранилище в памяти, используется в тестах и при --ephemeral.
type Memory struct {
	mu     sync.RWMutex
	data   map[string]string
	closed bool
}

// Убедимся, что Memory удовлетворяет интерфейсу Storage.
var _ Storage = (*Memory)(nil)

// NewMemory создает пустое хранилище в памяти.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

func (m *Memory) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok
}

func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.data[key] = value
	return nil
}

func (m *Memory) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.data, key)
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Open открывает хранилище указанного типа: "file" (JSON) или "keepass" (KDBX).
func Open(backend, path, password string) (Storage, error) {
	switch backend {
	case "", "file":
		return OpenFile(path)
	case "keepass":
		return OpenKeePass(path, password)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("неизвестный тип хранилища: %q", backend)
	}
}
