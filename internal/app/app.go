// Package app собирает клиентские хранилища, API клиент и поиск в одно
// приложение и явно связывает их подписками:
// сессия -> выбор факультета -> поиск отзывов.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/WilhelmDev/faduweb/internal/analytics"
	"github.com/WilhelmDev/faduweb/internal/api"
	"github.com/WilhelmDev/faduweb/internal/config"
	"github.com/WilhelmDev/faduweb/internal/faculty"
	"github.com/WilhelmDev/faduweb/internal/modal"
	"github.com/WilhelmDev/faduweb/internal/search"
	"github.com/WilhelmDev/faduweb/internal/session"
	"github.com/WilhelmDev/faduweb/internal/storage"
	"github.com/WilhelmDev/faduweb/internal/store"
	"github.com/WilhelmDev/faduweb/models"
)

// ErrNotAuthenticated возвращается операциями, требующими входа.
var ErrNotAuthenticated = errors.New("требуется вход в систему")

// Уровни уведомлений.
const (
	NoticeInfo  = "info"
	NoticeError = "error"
)

// Notice - уведомление для пользователя (например, об истечении сессии).
type Notice struct {
	Seq   uint64
	Level string
	Text  string
}

// App - корень композиции клиента.
type App struct {
	Storage   storage.Storage
	Session   *session.Store
	API       api.Client
	Faculties *faculty.Store
	Modals    *modal.Coordinator
	Search    *search.Controller
	Tracker   analytics.Tracker

	notices *store.Store[Notice]

	ctx      context.Context
	cancel   context.CancelFunc
	reselect chan struct{}
	wg       sync.WaitGroup
	unsubs   []func()
	closed   sync.Once
}

type options struct {
	storage storage.Storage
	tracker analytics.Tracker
	apiOpts []api.Option
}

// Option настраивает App.
type Option func(*options)

// WithStorage подменяет хранилище, открываемое по конфигурации.
func WithStorage(st storage.Storage) Option {
	return func(o *options) {
		o.storage = st
	}
}

// WithTracker подменяет трекер аналитики.
func WithTracker(t analytics.Tracker) Option {
	return func(o *options) {
		o.tracker = t
	}
}

// WithAPIOptions передает дополнительные настройки API клиенту.
func WithAPIOptions(opts ...api.Option) Option {
	return func(o *options) {
		o.apiOpts = append(o.apiOpts, opts...)
	}
}

// New создает приложение и связывает компоненты подписками.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	st := o.storage
	if st == nil {
		var err error
		st, err = storage.Open(cfg.Storage.Backend, cfg.Storage.StoragePath(), cfg.Storage.Password)
		if err != nil {
			return nil, fmt.Errorf("ошибка открытия хранилища: %w", err)
		}
	}

	tracker := o.tracker
	if tracker == nil {
		tracker = analytics.Noop{}
		if cfg.Analytics.Enabled {
			tracker = analytics.NewSlogTracker(nil)
		}
	}

	a := &App{
		Storage:  st,
		Tracker:  tracker,
		Modals:   modal.New(),
		notices:  store.New(Notice{}),
		reselect: make(chan struct{}, 1),
	}
	a.ctx, a.cancel = context.WithCancel(context.Background())

	a.Session = session.New(st)
	apiOpts := append([]api.Option{
		api.WithTimeout(cfg.Timeout),
		api.WithSessionExpiredHandler(a.onSessionExpired),
	}, o.apiOpts...)
	a.API = api.NewHTTPClient(cfg.APIURL, a.Session, apiOpts...)
	a.Faculties = faculty.New(a.API, a.Session, st, faculty.WithSettleInterval(cfg.FacultySettle))
	a.Search = search.New(a.API,
		search.WithPageSize(cfg.PageSize),
		search.WithDebounce(cfg.Debounce),
		search.WithTracker(tracker),
	)

	a.wire()
	return a, nil
}

// wire подписывает выбор факультета на сессию, а поиск - на выбор факультета.
func (a *App) wire() {
	type identity struct {
		authenticated bool
		facultyID     int64
		hasFaculty    bool
	}
	identityOf := func(s session.Session) identity {
		id := identity{authenticated: s.Authenticated}
		if s.User != nil && s.User.FacultyID != nil {
			id.facultyID, id.hasFaculty = *s.User.FacultyID, true
		}
		return id
	}

	var mu sync.Mutex
	var last *identity
	a.unsubs = append(a.unsubs, a.Session.Subscribe(func(s session.Session) {
		if !s.Authenticated && a.Modals.Active() == modal.CreateOpinion {
			a.Modals.CloseAll()
		}
		cur := identityOf(s)
		mu.Lock()
		changed := last != nil && *last != cur
		last = &cur
		mu.Unlock()
		if changed {
			// Повторный выбор выполняется в фоне: он может обращаться к сети
			select {
			case a.reselect <- struct{}{}:
			default:
			}
		}
	}))

	a.unsubs = append(a.unsubs, a.Faculties.Subscribe(func(s faculty.State) {
		if s.Selected != nil {
			a.Search.SetFaculty(s.SelectedID())
		}
	}))

	a.wg.Add(1)
	go a.reselectLoop()
}

func (a *App) reselectLoop() {
	defer a.wg.Done()
	for {
		select {
		case <-a.ctx.Done():
			return
		case <-a.reselect:
			slog.Info("Сессия изменилась, повторный выбор факультета")
			if err := a.Faculties.InitSelection(a.ctx); err != nil {
				slog.Error("Ошибка повторного выбора факультета", "error", err)
			}
		}
	}
}

// Init восстанавливает сессию на сервере и выбирает факультет.
// Ошибка загрузки факультетов не мешает поиску: он запускается без фильтра.
func (a *App) Init(ctx context.Context) error {
	if a.Session.Authenticated() {
		a.revalidate(ctx)
	}

	if err := a.Faculties.InitSelection(ctx); err != nil {
		a.Search.Refresh()
		return fmt.Errorf("ошибка инициализации факультета: %w", err)
	}
	if a.Faculties.Get().Selected == nil {
		a.Search.Refresh()
	}
	return nil
}

// revalidate обновляет токен сохраненной сессии. Отказ сервера завершает
// сессию через API клиент; сетевые ошибки оставляют сессию как есть.
func (a *App) revalidate(ctx context.Context) {
	token, err := a.API.ValidateToken(ctx)
	switch {
	case err == nil:
		if err = a.Session.Login(token); err != nil {
			slog.Error("Не удалось обновить токен", "error", err)
			return
		}
		a.Faculties.Reselect()
	case errors.Is(err, api.ErrAuthorization):
		slog.Info("Сохраненная сессия недействительна")
	default:
		slog.Warn("Не удалось проверить токен, продолжаем с сохраненным", "error", err)
	}
}

// Login выполняет вход и закрывает модальные окна.
func (a *App) Login(ctx context.Context, userOrEmail, password string) error {
	token, err := a.API.Login(ctx, userOrEmail, password)
	if err != nil {
		return err
	}
	if err = a.Session.Login(token); err != nil {
		return err
	}
	a.Faculties.Reselect()
	a.Modals.CloseAll()
	return nil
}

// Register регистрирует студента и сразу выполняет вход.
func (a *App) Register(ctx context.Context, req models.RegisterRequest) error {
	token, err := a.API.Register(ctx, req)
	if err != nil {
		return err
	}
	if err = a.Session.Login(token); err != nil {
		return err
	}
	a.Faculties.Reselect()
	a.Modals.CloseAll()
	a.Notify(NoticeInfo, "Регистрация прошла успешно")
	return nil
}

// Logout завершает сессию.
func (a *App) Logout() {
	a.Session.Logout()
	a.Faculties.Reselect()
}

// CompleteProfile сохраняет данные онбординга, получает свежий токен
// с обновленным профилем и входит с ним.
func (a *App) CompleteProfile(ctx context.Context, upd models.ProfileUpdate) error {
	user := a.Session.CurrentUser()
	if user == nil {
		return ErrNotAuthenticated
	}
	if _, err := a.API.UpdateUser(ctx, user.ID, upd); err != nil {
		return err
	}
	token, err := a.API.ValidateToken(ctx)
	if err != nil {
		return err
	}
	if err = a.Session.Login(token); err != nil {
		return err
	}
	a.Faculties.Reselect()
	return nil
}

// CreateOpinion публикует отзыв и обновляет результаты поиска.
func (a *App) CreateOpinion(ctx context.Context, payload models.OpinionPayload) (*models.Opinion, error) {
	if !a.Session.Authenticated() {
		a.Modals.OpenLogin()
		return nil, ErrNotAuthenticated
	}
	opinion, err := a.API.CreateOpinion(ctx, payload)
	if err != nil {
		return nil, err
	}
	a.Modals.CloseAll()
	a.Search.Refresh()
	a.Notify(NoticeInfo, "Отзыв опубликован")
	return opinion, nil
}

// MyOpinions возвращает отзывы текущего пользователя.
func (a *App) MyOpinions(ctx context.Context, offset int) ([]models.Opinion, error) {
	user := a.Session.CurrentUser()
	if user == nil {
		return nil, ErrNotAuthenticated
	}
	return a.API.ListOpinionsByStudent(ctx, user.ID, offset)
}

// Notices возвращает последнее уведомление.
func (a *App) Notices() Notice {
	return a.notices.Get()
}

// SubscribeNotices подписывает fn на уведомления.
// Начальное значение с Seq == 0 уведомлением не является.
func (a *App) SubscribeNotices(fn func(Notice)) func() {
	return a.notices.Subscribe(fn)
}

// Notify публикует уведомление.
func (a *App) Notify(level, text string) {
	a.notices.Update(func(n Notice) Notice {
		return Notice{Seq: n.Seq + 1, Level: level, Text: text}
	})
}

func (a *App) onSessionExpired() {
	a.Notify(NoticeError, "Сессия истекла, войдите снова")
}

// Dispose останавливает фоновые процессы и закрывает хранилище.
func (a *App) Dispose() error {
	var err error
	a.closed.Do(func() {
		for _, unsubscribe := range a.unsubs {
			unsubscribe()
		}
		a.cancel()
		a.wg.Wait()
		a.Search.Dispose()
		a.Faculties.Dispose()
		err = a.Storage.Close()
	})
	return err
}
