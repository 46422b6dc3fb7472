package storage

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/tobischo/gokeepasslib/v3"
	"github.com/tobischo/gokeepasslib/v3/wrappers"
)

// customDataPrefix отделяет ключи клиента от чужих CustomData в KDBX.
const customDataPrefix = "faduweb."

// KeePass хранит ключи в метаданных (Meta.CustomData) зашифрованной базы KDBX.
// Токен не лежит на диске в открытом виде.
type KeePass struct {
	mu       sync.Mutex
	path     string
	password string
	db       *gokeepasslib.Database
	fileLock *flock.Flock
	closed   bool
}

// Убедимся, что KeePass удовлетворяет интерфейсу Storage.
var _ Storage = (*KeePass)(nil)

// OpenKeePass открывает базу KDBX по пути и паролю.
// Если файла нет, создается новая пустая база.
func OpenKeePass(path, password string) (*KeePass, error) {
	if password == "" {
		return nil, errors.New("пароль KDBX не может быть пустым")
	}

	k := &KeePass{
		path:     path,
		password: password,
		fileLock: flock.New(path + ".lock"),
	}

	_, statErr := os.Stat(path)
	switch {
	case errors.Is(statErr, os.ErrNotExist):
		slog.Info("Файл KDBX не найден, создаем новый", "path", path)
		k.db = newDatabase(password)
		if err := k.save(); err != nil {
			return nil, err
		}
	case statErr != nil:
		return nil, fmt.Errorf("ошибка доступа к файлу '%s': %w", path, statErr)
	default:
		db, err := openDatabase(path, password)
		if err != nil {
			return nil, err
		}
		k.db = db
	}

	return k, nil
}

func (k *KeePass) Get(key string) (string, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.db == nil || k.db.Content == nil || k.db.Content.Meta == nil {
		return "", false
	}
	for _, item := range k.db.Content.Meta.CustomData {
		if item.Key == customDataPrefix+key {
			return item.Value, true
		}
	}
	return "", false
}

func (k *KeePass) Set(key, value string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return ErrClosed
	}
	meta := k.db.Content.Meta
	meta.CustomData = setCustomDataValue(meta.CustomData, customDataPrefix+key, value)
	touchRootGroup(k.db)
	return k.save()
}

func (k *KeePass) Remove(key string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return ErrClosed
	}
	meta := k.db.Content.Meta
	before := len(meta.CustomData)
	meta.CustomData = removeCustomDataValue(meta.CustomData, customDataPrefix+key)
	if len(meta.CustomData) == before {
		return nil // Нечего сохранять
	}
	touchRootGroup(k.db)
	return k.save()
}

func (k *KeePass) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.closed = true
	return k.fileLock.Close()
}

// save кодирует базу и перезаписывает файл под эксклюзивной блокировкой.
func (k *KeePass) save() error {
	if err := k.fileLock.Lock(); err != nil {
		return fmt.Errorf("ошибка блокировки файла '%s': %w", k.path, err)
	}
	defer func() {
		if err := k.fileLock.Unlock(); err != nil {
			slog.Warn("Не удалось снять блокировку файла KDBX", "path", k.path, "error", err)
		}
	}()

	if k.db.Credentials == nil {
		k.db.Credentials = gokeepasslib.NewPasswordCredentials(k.password)
	}

	// Перед сохранением нужно заблокировать защищенные поля
	if err := k.db.LockProtectedEntries(); err != nil {
		slog.Warn("Не удалось заблокировать поля перед сохранением", "error", err)
	}
	defer func() {
		if err := k.db.UnlockProtectedEntries(); err != nil {
			slog.Warn("Не удалось разблокировать поля после сохранения", "error", err)
		}
	}()

	file, err := os.OpenFile(k.path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, defaultFilePerm)
	if err != nil {
		return fmt.Errorf("ошибка создания/открытия файла '%s' для записи: %w", k.path, err)
	}
	defer file.Close()

	if err = gokeepasslib.NewEncoder(file).Encode(k.db); err != nil {
		return fmt.Errorf("ошибка кодирования и записи БД в файл '%s': %w", k.path, err)
	}
	return nil
}

// openDatabase открывает и дешифрует KDBX файл.
func openDatabase(path, password string) (*gokeepasslib.Database, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия файла '%s': %w", path, err)
	}
	defer file.Close()

	db := gokeepasslib.NewDatabase()
	db.Credentials = gokeepasslib.NewPasswordCredentials(password)
	if err = gokeepasslib.NewDecoder(file).Decode(db); err != nil {
		return nil, fmt.Errorf("ошибка дешифрования файла '%s': %w", path, err)
	}
	if err = db.UnlockProtectedEntries(); err != nil {
		return nil, fmt.Errorf("ошибка разблокировки защищенных полей: %w", err)
	}
	if db.Content.Meta == nil {
		return nil, errors.New("в базе KDBX отсутствуют метаданные")
	}
	return db, nil
}

// newDatabase создает пустую базу с корневой группой.
func newDatabase(password string) *gokeepasslib.Database {
	db := gokeepasslib.NewDatabase()
	db.Credentials = gokeepasslib.NewPasswordCredentials(password)
	db.Content.Meta.CustomData = []gokeepasslib.CustomData{}
	if db.Content.Root == nil || len(db.Content.Root.Groups) == 0 {
		rootGroup := gokeepasslib.NewGroup()
		rootGroup.Name = "Root"
		db.Content.Root = &gokeepasslib.RootData{Groups: []gokeepasslib.Group{rootGroup}}
	}
	return db
}

// setCustomDataValue обновляет или добавляет значение в слайс CustomData.
func setCustomDataValue(customData []gokeepasslib.CustomData, key, value string) []gokeepasslib.CustomData {
	for i := range customData {
		if customData[i].Key == key {
			customData[i].Value = value
			return customData
		}
	}
	return append(customData, gokeepasslib.CustomData{Key: key, Value: value})
}

// removeCustomDataValue удаляет значение из слайса CustomData по ключу.
func removeCustomDataValue(customData []gokeepasslib.CustomData, key string) []gokeepasslib.CustomData {
	result := make([]gokeepasslib.CustomData, 0, len(customData))
	for _, item := range customData {
		if item.Key != key {
			result = append(result, item)
		}
	}
	return result
}

// touchRootGroup обновляет время модификации корневой группы.
func touchRootGroup(db *gokeepasslib.Database) {
	if db.Content == nil || db.Content.Root == nil || len(db.Content.Root.Groups) == 0 {
		slog.Warn("Не удалось обновить LastModificationTime: корневая группа отсутствует")
		return
	}
	modTime := wrappers.TimeWrapper{Time: time.Now().UTC()}
	db.Content.Root.Groups[0].Times.LastModificationTime = &modTime
}
