// Package config загружает настройки клиента из флагов, окружения,
// файла конфигурации и значений по умолчанию.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix - префикс переменных окружения (FADUWEB_API_URL и т.д.).
	EnvPrefix = "FADUWEB"

	BackendFile    = "file"
	BackendKeePass = "keepass"
)

// Config - настройки клиента.
type Config struct {
	APIURL        string          `mapstructure:"api_url" validate:"required,url"`
	Timeout       time.Duration   `mapstructure:"timeout" validate:"gt=0"`
	PageSize      int             `mapstructure:"page_size" validate:"gt=0,lte=100"`
	Debounce      time.Duration   `mapstructure:"debounce" validate:"gte=0"`
	FacultySettle time.Duration   `mapstructure:"faculty_settle" validate:"gte=0"`
	Storage       StorageConfig   `mapstructure:"storage"`
	Log           LogConfig       `mapstructure:"log"`
	Analytics     AnalyticsConfig `mapstructure:"analytics"`
}

// StorageConfig описывает долговременное хранилище клиента.
type StorageConfig struct {
	Backend  string `mapstructure:"backend" validate:"oneof=file keepass"`
	Path     string `mapstructure:"path"`
	Password string `mapstructure:"password" validate:"required_if=Backend keepass"`
}

// LogConfig описывает журнал клиента.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Dir   string `mapstructure:"dir" validate:"required"`
}

// AnalyticsConfig включает запись событий аналитики.
type AnalyticsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// StoragePath возвращает путь к хранилищу с учетом типа по умолчанию.
func (c StorageConfig) StoragePath() string {
	if c.Path != "" {
		return c.Path
	}
	if c.Backend == BackendKeePass {
		return "faduweb.kdbx"
	}
	return "faduweb-state.json"
}

// New создает экземпляр viper с привязкой к окружению и значениями по умолчанию.
// Флаги командной строки привязываются к нему вызывающей стороной.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Load читает файл конфигурации (если есть) и собирает итоговые настройки.
// Пустой file означает поиск faduweb.yaml в текущей директории
// и в $HOME/.config/faduweb.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("faduweb")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/faduweb")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("ошибка чтения файла конфигурации: %w", err)
		}
		// Файла нет: используем окружение и значения по умолчанию
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("ошибка разбора конфигурации: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate проверяет согласованность настроек.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("некорректная конфигурация: %w", err)
	}
	return nil
}

// setDefaults задает значения по умолчанию для всех настроек.
func setDefaults(v *viper.Viper) {
	v.SetDefault("api_url", "http://localhost:3000")
	v.SetDefault("timeout", "15s")
	v.SetDefault("page_size", 10)
	v.SetDefault("debounce", "400ms")
	v.SetDefault("faculty_settle", "500ms")

	v.SetDefault("storage.backend", BackendFile)
	v.SetDefault("storage.path", "")
	v.SetDefault("storage.password", "")

	v.SetDefault("log.level", "debug")
	v.SetDefault("log.dir", "logs")

	v.SetDefault("analytics.enabled", false)
}
