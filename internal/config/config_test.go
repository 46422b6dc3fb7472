package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WilhelmDev/faduweb/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := config.Load(config.New(), "")
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:3000", cfg.APIURL)
	assert.Equal(t, 15*time.Second, cfg.Timeout)
	assert.Equal(t, 10, cfg.PageSize)
	assert.Equal(t, 400*time.Millisecond, cfg.Debounce)
	assert.Equal(t, 500*time.Millisecond, cfg.FacultySettle)
	assert.Equal(t, config.BackendFile, cfg.Storage.Backend)
	assert.Equal(t, "faduweb-state.json", cfg.Storage.StoragePath())
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.False(t, cfg.Analytics.Enabled)
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	file := filepath.Join(dir, "faduweb.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
api_url: http://files.example:4000
page_size: 20
storage:
  backend: keepass
  password: desde-archivo
log:
  level: info
`), 0o600))

	t.Run("Файл переопределяет значения по умолчанию", func(t *testing.T) {
		cfg, err := config.Load(config.New(), "")
		require.NoError(t, err)
		assert.Equal(t, "http://files.example:4000", cfg.APIURL)
		assert.Equal(t, 20, cfg.PageSize)
		assert.Equal(t, "faduweb.kdbx", cfg.Storage.StoragePath())
		assert.Equal(t, "info", cfg.Log.Level)
	})

	t.Run("Окружение переопределяет файл", func(t *testing.T) {
		t.Setenv("FADUWEB_API_URL", "http://env.example:5000")
		t.Setenv("FADUWEB_STORAGE_PASSWORD", "desde-entorno")

		cfg, err := config.Load(config.New(), file)
		require.NoError(t, err)
		assert.Equal(t, "http://env.example:5000", cfg.APIURL)
		assert.Equal(t, "desde-entorno", cfg.Storage.Password)
		assert.Equal(t, 20, cfg.PageSize)
	})

	t.Run("Явное значение переопределяет окружение", func(t *testing.T) {
		t.Setenv("FADUWEB_API_URL", "http://env.example:5000")
		v := config.New()
		v.Set("api_url", "http://flag.example:6000")

		cfg, err := config.Load(v, file)
		require.NoError(t, err)
		assert.Equal(t, "http://flag.example:6000", cfg.APIURL)
	})
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "KeePass без пароля", env: map[string]string{"FADUWEB_STORAGE_BACKEND": "keepass"}},
		{name: "Неизвестное хранилище", env: map[string]string{"FADUWEB_STORAGE_BACKEND": "redis"}},
		{name: "Некорректный URL", env: map[string]string{"FADUWEB_API_URL": "no es url"}},
		{name: "Нулевой размер страницы", env: map[string]string{"FADUWEB_PAGE_SIZE": "0"}},
		{name: "Неизвестный уровень журнала", env: map[string]string{"FADUWEB_LOG_LEVEL": "trace"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := config.Load(config.New(), "")
			assert.ErrorContains(t, err, "некорректная конфигурация")
		})
	}

	t.Run("Явно указанный файл отсутствует", func(t *testing.T) {
		_, err := config.Load(config.New(), filepath.Join(t.TempDir(), "nope.yaml"))
		assert.ErrorContains(t, err, "ошибка чтения файла конфигурации")
	})
}
