package storage_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WilhelmDev/faduweb/internal/storage"
)

const testPassword = "test-kdbx-password"

// checkStorageContract проверяет общее поведение любой реализации Storage.
func checkStorageContract(t *testing.T, s storage.Storage) {
	t.Helper()

	_, ok := s.Get(storage.KeyAuthToken)
	assert.False(t, ok, "Ключ не должен существовать изначально")

	require.NoError(t, s.Set(storage.KeyAuthToken, "token-1"))
	v, ok := s.Get(storage.KeyAuthToken)
	require.True(t, ok)
	assert.Equal(t, "token-1", v)

	require.NoError(t, s.Set(storage.KeyAuthToken, "token-2"))
	v, _ = s.Get(storage.KeyAuthToken)
	assert.Equal(t, "token-2", v, "Повторная запись должна заменять значение")

	require.NoError(t, s.Set(storage.KeySelectedFacultyID, "7"))
	require.NoError(t, s.Remove(storage.KeyAuthToken))
	_, ok = s.Get(storage.KeyAuthToken)
	assert.False(t, ok, "Ключ должен быть удален")

	v, ok = s.Get(storage.KeySelectedFacultyID)
	require.True(t, ok, "Удаление одного ключа не должно затрагивать другие")
	assert.Equal(t, "7", v)

	require.NoError(t, s.Remove("missing"), "Удаление отсутствующего ключа не является ошибкой")
}

func TestMemory(t *testing.T) {
	m := storage.NewMemory()
	checkStorageContract(t, m)

	require.NoError(t, m.Close())
	require.ErrorIs(t, m.Set("k", "v"), storage.ErrClosed)
}

func TestFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state", "faduweb-state.json")

	t.Run("Контракт", func(t *testing.T) {
		f, err := storage.OpenFile(path)
		require.NoError(t, err)
		defer f.Close()
		checkStorageContract(t, f)
	})

	t.Run("ЗначенияПереживаютПереоткрытие", func(t *testing.T) {
		f, err := storage.OpenFile(path)
		require.NoError(t, err)
		require.NoError(t, f.Set(storage.KeyAuthToken, "persisted"))
		require.NoError(t, f.Close())

		reopened, err := storage.OpenFile(path)
		require.NoError(t, err)
		defer reopened.Close()
		v, ok := reopened.Get(storage.KeyAuthToken)
		require.True(t, ok)
		assert.Equal(t, "persisted", v)
	})

	t.Run("ДваЭкземпляраНеЗатираютЧужиеКлючи", func(t *testing.T) {
		sharedPath := filepath.Join(dir, "shared.json")
		first, err := storage.OpenFile(sharedPath)
		require.NoError(t, err)
		defer first.Close()
		second, err := storage.OpenFile(sharedPath)
		require.NoError(t, err)
		defer second.Close()

		require.NoError(t, first.Set(storage.KeyAuthToken, "from-first"))
		require.NoError(t, second.Set(storage.KeySelectedFacultyID, "5"))

		check, err := storage.OpenFile(sharedPath)
		require.NoError(t, err)
		defer check.Close()
		token, ok := check.Get(storage.KeyAuthToken)
		require.True(t, ok, "Запись второго экземпляра не должна терять ключ первого")
		assert.Equal(t, "from-first", token)
		faculty, _ := check.Get(storage.KeySelectedFacultyID)
		assert.Equal(t, "5", faculty)
	})

	t.Run("ПоврежденныйФайл", func(t *testing.T) {
		brokenPath := filepath.Join(dir, "broken.json")
		require.NoError(t, os.WriteFile(brokenPath, []byte("{не json"), 0600))
		_, err := storage.OpenFile(brokenPath)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ошибка декодирования файла состояния")
	})

	t.Run("ПустойПуть", func(t *testing.T) {
		_, err := storage.OpenFile("")
		require.Error(t, err)
	})
}

func TestKeePass(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "faduweb.kdbx")

	t.Run("СозданиеИКонтракт", func(t *testing.T) {
		k, err := storage.OpenKeePass(path, testPassword)
		require.NoError(t, err)
		defer k.Close()

		_, statErr := os.Stat(path)
		require.NoError(t, statErr, "Новая база должна быть сохранена на диск")

		checkStorageContract(t, k)
	})

	t.Run("ТокенЧитаетсяПослеПереоткрытия", func(t *testing.T) {
		k, err := storage.OpenKeePass(path, testPassword)
		require.NoError(t, err)
		require.NoError(t, k.Set(storage.KeyAuthToken, "secret-token"))
		require.NoError(t, k.Close())

		reopened, err := storage.OpenKeePass(path, testPassword)
		require.NoError(t, err)
		defer reopened.Close()
		v, ok := reopened.Get(storage.KeyAuthToken)
		require.True(t, ok)
		assert.Equal(t, "secret-token", v)

		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.NotContains(t, string(raw), "secret-token", "Токен не должен храниться открытым текстом")
	})

	t.Run("НеверныйПароль", func(t *testing.T) {
		_, err := storage.OpenKeePass(path, "wrong-password")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ошибка дешифрования")
	})

	t.Run("ПустойПароль", func(t *testing.T) {
		_, err := storage.OpenKeePass(filepath.Join(dir, "other.kdbx"), "")
		require.Error(t, err)
	})
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		backend string
		path    string
		wantErr bool
	}{
		{name: "Файл", backend: "file", path: filepath.Join(dir, "state.json")},
		{name: "Тип по умолчанию", backend: "", path: filepath.Join(dir, "default.json")},
		{name: "KeePass", backend: "keepass", path: filepath.Join(dir, "state.kdbx")},
		{name: "Память", backend: "memory"},
		{name: "Неизвестный тип", backend: "redis", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := storage.Open(tt.backend, tt.path, "clave-maestra")
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer st.Close()

			require.NoError(t, st.Set(storage.KeyAuthToken, "tok"))
			got, ok := st.Get(storage.KeyAuthToken)
			assert.True(t, ok)
			assert.Equal(t, "tok", got)
		})
	}
}
