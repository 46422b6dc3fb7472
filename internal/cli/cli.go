// Package cli реализует командную строку клиента: подкоманды для входа,
// каталога факультетов и поиска отзывов, а также запуск TUI по умолчанию.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/WilhelmDev/faduweb/internal/app"
	"github.com/WilhelmDev/faduweb/internal/config"
	"github.com/WilhelmDev/faduweb/internal/storage"
	"github.com/WilhelmDev/faduweb/internal/tui"
)

const (
	logFileName        = "client.log"
	logFilePermissions = 0o666
)

// BuildInfo - сведения о сборке, передаваемые через ldflags.
type BuildInfo struct {
	Version    string
	BuildDate  string
	CommitHash string
}

// env - общее состояние одного запуска командной строки.
type env struct {
	v          *viper.Viper
	configFile string
	output     string
	ephemeral  bool

	cfg     *config.Config
	app     *app.App
	logFile *os.File
	prevLog *slog.Logger

	appOpts []app.Option
	build   BuildInfo
	in      io.Reader
	out     io.Writer
	errOut  io.Writer
}

// Option настраивает запуск командной строки.
type Option func(*env)

// WithIO подменяет стандартные потоки ввода-вывода.
func WithIO(in io.Reader, out, errOut io.Writer) Option {
	return func(e *env) {
		e.in, e.out, e.errOut = in, out, errOut
	}
}

// WithAppOptions передает настройки в app.New.
func WithAppOptions(opts ...app.Option) Option {
	return func(e *env) {
		e.appOpts = append(e.appOpts, opts...)
	}
}

// WithBuildInfo задает сведения о сборке для команды version.
func WithBuildInfo(info BuildInfo) Option {
	return func(e *env) {
		e.build = info
	}
}

// Execute выполняет командную строку с аргументами процесса
// и возвращает код завершения.
func Execute(info BuildInfo) int {
	err := Run(context.Background(), os.Args[1:], WithBuildInfo(info))
	if err != nil {
		fmt.Fprintln(os.Stderr, "Ошибка:", err)
		return 1
	}
	return 0
}

// Run выполняет одну команду. Приложение и журнал закрываются
// независимо от результата команды.
func Run(ctx context.Context, args []string, opts ...Option) error {
	e := &env{
		v:      config.New(),
		build:  BuildInfo{Version: "dev", BuildDate: "unknown", CommitHash: "N/A"},
		in:     os.Stdin,
		out:    os.Stdout,
		errOut: os.Stderr,
	}
	for _, opt := range opts {
		opt(e)
	}

	root := e.newRootCmd()
	root.SetArgs(args)
	root.SetIn(e.in)
	root.SetOut(e.out)
	root.SetErr(e.errOut)

	err := root.ExecuteContext(ctx)
	if closeErr := e.teardown(); closeErr != nil {
		err = errors.Join(err, closeErr)
	}
	return err
}

// annotationNoApp помечает команды, которым не нужно приложение.
const annotationNoApp = "faduweb/no-app"

func (e *env) newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "faduweb",
		Short: "Клиент платформы отзывов о предметах",
		Long: `faduweb - клиент платформы, где студенты публикуют и ищут отзывы
о предметах своих факультетов.

Без подкоманды запускается интерактивный интерфейс.

Примеры:
  # Войти и выбрать факультет
  faduweb login student@example.com
  faduweb faculties select 2

  # Найти отзывы по тексту и карьере
  faduweb search "análisis" --career 3 -o json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[annotationNoApp] != "" {
				return nil
			}
			return e.setup()
		},
		RunE: e.runTUI,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&e.configFile, "config", "", "Путь к файлу конфигурации (по умолчанию faduweb.yaml)")
	flags.StringVarP(&e.output, "output", "o", outputTable, "Формат вывода: table, json или yaml")
	flags.BoolVar(&e.ephemeral, "ephemeral", false, "Не сохранять сессию и выбор факультета между запусками")
	flags.String("api-url", "", "Адрес API сервера")
	flags.String("storage-backend", "", "Хранилище состояния: file или keepass")
	flags.String("storage-path", "", "Путь к файлу хранилища")
	flags.String("log-level", "", "Уровень журнала: debug, info, warn, error")
	flags.String("log-dir", "", "Директория журнала")
	flags.Int("page-size", 0, "Размер страницы отзывов")

	for key, name := range map[string]string{
		"api_url":         "api-url",
		"storage.backend": "storage-backend",
		"storage.path":    "storage-path",
		"log.level":       "log-level",
		"log.dir":         "log-dir",
		"page_size":       "page-size",
	} {
		// Ошибка возможна только при отсутствии флага
		_ = e.v.BindPFlag(key, flags.Lookup(name))
	}

	root.AddCommand(
		e.newVersionCmd(),
		e.newLoginCmd(),
		e.newRegisterCmd(),
		e.newLogoutCmd(),
		e.newWhoamiCmd(),
		e.newFacultiesCmd(),
		e.newCareersCmd(),
		e.newSubjectsCmd(),
		e.newSearchCmd(),
		e.newOpinionsCmd(),
		e.newOpinionCmd(),
		e.newProfileCmd(),
		e.newTUICmd(),
	)
	return root
}

// setup загружает конфигурацию, настраивает журнал и собирает приложение.
func (e *env) setup() error {
	if err := validateOutput(e.output); err != nil {
		return err
	}
	cfg, err := config.Load(e.v, e.configFile)
	if err != nil {
		return err
	}
	e.cfg = cfg

	if err = e.setupLogging(cfg.Log); err != nil {
		return err
	}

	opts := e.appOpts
	if e.ephemeral {
		opts = append([]app.Option{app.WithStorage(storage.NewMemory())}, opts...)
	}
	a, err := app.New(cfg, opts...)
	if err != nil {
		return err
	}
	e.app = a
	slog.Info("Клиент запущен", "api_url", cfg.APIURL, "storage", cfg.Storage.Backend, "ephemeral", e.ephemeral)
	return nil
}

// setupLogging направляет журнал в <log.dir>/client.log.
func (e *env) setupLogging(cfg config.LogConfig) error {
	if err := os.MkdirAll(cfg.Dir, os.ModePerm); err != nil {
		return fmt.Errorf("не удалось создать директорию для логов: %w", err)
	}
	logPath := filepath.Join(cfg.Dir, logFileName)
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermissions)
	if err != nil {
		return fmt.Errorf("не удалось открыть лог-файл: %w", err)
	}

	var level slog.Level
	if err = level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelDebug
	}

	e.logFile = logFile
	e.prevLog = slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(logFile, &slog.HandlerOptions{Level: level})))
	slog.Info("Логгер инициализирован", "path", logPath, "level", level.String())
	return nil
}

// teardown закрывает приложение и журнал. Повторный вызов ничего не делает.
func (e *env) teardown() error {
	var err error
	if e.app != nil {
		err = e.app.Dispose()
		e.app = nil
	}
	if e.logFile != nil {
		slog.SetDefault(e.prevLog)
		err = errors.Join(err, e.logFile.Close())
		e.logFile = nil
	}
	return err
}

func (e *env) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Показать версию и дату сборки",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationNoApp: "true"},
		RunE: func(_ *cobra.Command, _ []string) error {
			if err := validateOutput(e.output); err != nil {
				return err
			}
			return e.print(e.build, func(t *table) {
				t.row("Version:", e.build.Version)
				t.row("Build Date:", e.build.BuildDate)
				t.row("Commit Hash:", e.build.CommitHash)
			})
		},
	}
}

func (e *env) newTUICmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Запустить интерактивный интерфейс",
		Args:  cobra.NoArgs,
		RunE:  e.runTUI,
	}
}

func (e *env) runTUI(cmd *cobra.Command, _ []string) error {
	return tui.Run(cmd.Context(), e.app)
}
