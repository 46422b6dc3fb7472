// Package search реализует поиск отзывов с фильтрами, отложенным вводом
// текста и постраничной подгрузкой.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/WilhelmDev/faduweb/internal/analytics"
	"github.com/WilhelmDev/faduweb/internal/api"
	"github.com/WilhelmDev/faduweb/internal/store"
	"github.com/WilhelmDev/faduweb/models"
)

const (
	// DefaultPageSize - размер страницы отзывов.
	DefaultPageSize = 10
	// DefaultDebounce - задержка запроса после ввода текста.
	DefaultDebounce = 400 * time.Millisecond
	// AllID - значение фильтра "все карьеры" / "все предметы".
	AllID = "0"
)

var (
	// ErrNoMorePages - больше страниц нет.
	ErrNoMorePages = errors.New("больше отзывов нет")
	// ErrFetchInFlight - предыдущий запрос еще выполняется.
	ErrFetchInFlight = errors.New("запрос уже выполняется")
	// ErrDisposed - контроллер остановлен.
	ErrDisposed = errors.New("поиск остановлен")
	// ErrInvalidFilter - идентификатор фильтра не является числом.
	ErrInvalidFilter = errors.New("некорректный идентификатор фильтра")
)

// Fetcher загружает страницу отзывов.
type Fetcher interface {
	ListOpinions(ctx context.Context, q models.OpinionQuery) (*models.OpinionPage, error)
}

// Phase - стадия текущего поколения фильтров.
type Phase int

const (
	Idle Phase = iota
	Loading
	Loaded
	Exhausted
	Failed
)

func (p Phase) String() string {
	switch p {
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Exhausted:
		return "exhausted"
	case Failed:
		return "failed"
	default:
		return "idle"
	}
}

// Filters - текущие значения фильтров. Nil означает "все".
type Filters struct {
	CareerID   *int64
	SubjectID  *int64
	FacultyID  *int64
	SearchText string
}

func (f Filters) equal(o Filters) bool {
	return f.SearchText == o.SearchText &&
		sameID(f.CareerID, o.CareerID) &&
		sameID(f.SubjectID, o.SubjectID) &&
		sameID(f.FacultyID, o.FacultyID)
}

// Snapshot - наблюдаемое состояние поиска.
type Snapshot struct {
	Filters       Filters
	Generation    uint64 // Растет при каждой смене фильтров
	Items         []models.Opinion
	Page          int // Номер последней запрошенной страницы, с нуля
	PageSize      int
	TotalElements int
	HasMore       bool
	Phase         Phase
	Fetching      bool // Запрос текущего поколения выполняется
	LoadingMore   bool
	Err           error
}

// Controller сводит фильтры в запрос и накапливает страницы результатов.
//
// Все переходы выполняются внутри state.UpdateIf, поэтому timer и disposed
// читаются и изменяются только там.
type Controller struct {
	fetcher  Fetcher
	tracker  analytics.Tracker
	pageSize int
	debounce time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	state    *store.Store[Snapshot]
	timer    *time.Timer
	disposed bool
}

// Option настраивает Controller.
type Option func(*Controller)

// WithPageSize задает размер страницы.
func WithPageSize(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithDebounce задает задержку для текстового поиска.
func WithDebounce(d time.Duration) Option {
	return func(c *Controller) {
		c.debounce = d
	}
}

// WithTracker подключает аналитику.
func WithTracker(t analytics.Tracker) Option {
	return func(c *Controller) {
		c.tracker = t
	}
}

// New создает контроллер в состоянии Idle. Первый запрос выполняется
// при первой установке фильтра или вызове Refresh.
func New(fetcher Fetcher, opts ...Option) *Controller {
	c := &Controller{
		fetcher:  fetcher,
		tracker:  analytics.Noop{},
		pageSize: DefaultPageSize,
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.state = store.New(Snapshot{PageSize: c.pageSize})
	return c
}

// Get возвращает текущее состояние.
func (c *Controller) Get() Snapshot {
	return c.state.Get()
}

// Subscribe подписывает fn на изменения состояния.
func (c *Controller) Subscribe(fn func(Snapshot)) func() {
	return c.state.Subscribe(fn)
}

// SetSearchText меняет текст поиска. Запрос выполняется после паузы во вводе.
func (c *Controller) SetSearchText(text string) {
	if c.reset(func(f *Filters) { f.SearchText = text }, true) {
		analytics.TrackFilterChange(c.tracker, analytics.FilterSearch, text, "")
	}
}

// SetCareer выбирает карьеру по строковому идентификатору ("0" - все карьеры).
func (c *Controller) SetCareer(id, label string) error {
	parsed, err := ParseFilterID(id)
	if err != nil {
		return err
	}
	if c.reset(func(f *Filters) { f.CareerID = parsed }, false) {
		analytics.TrackFilterChange(c.tracker, analytics.FilterCareer, idOrAll(id), label)
	}
	return nil
}

// SetSubject выбирает предмет по строковому идентификатору ("0" - все предметы).
func (c *Controller) SetSubject(id, label string) error {
	parsed, err := ParseFilterID(id)
	if err != nil {
		return err
	}
	if c.reset(func(f *Filters) { f.SubjectID = parsed }, false) {
		analytics.TrackFilterChange(c.tracker, analytics.FilterSubject, idOrAll(id), label)
	}
	return nil
}

// SetFaculty применяет выбранный факультет.
func (c *Controller) SetFaculty(id *int64) {
	if c.reset(func(f *Filters) { f.FacultyID = copyID(id) }, false) {
		value := AllID
		if id != nil {
			value = strconv.FormatInt(*id, 10)
		}
		analytics.TrackFilterChange(c.tracker, analytics.FilterFaculty, idOrAll(value), "")
	}
}

// Apply заменяет все фильтры сразу и выполняет запрос без задержки.
func (c *Controller) Apply(f Filters) {
	c.reset(func(cur *Filters) {
		*cur = Filters{
			CareerID:   copyID(f.CareerID),
			SubjectID:  copyID(f.SubjectID),
			FacultyID:  copyID(f.FacultyID),
			SearchText: f.SearchText,
		}
	}, false)
}

// Refresh перезапрашивает первую страницу с текущими фильтрами.
func (c *Controller) Refresh() {
	c.restart(func(*Filters) {}, false, true)
}

// LoadMore запрашивает следующую страницу. Допустимо, только если
// есть еще страницы и никакой запрос не выполняется.
func (c *Controller) LoadMore() error {
	var rejected error
	c.state.UpdateIf(func(s Snapshot) (Snapshot, bool) {
		switch {
		case c.disposed:
			rejected = ErrDisposed
		case s.Fetching:
			rejected = ErrFetchInFlight
		case !s.HasMore:
			rejected = ErrNoMorePages
		}
		if rejected != nil {
			return s, false
		}
		s.Page++
		s.Fetching = true
		s.LoadingMore = true
		s.Err = nil
		go c.fetch(s.Generation, s.Page, s.Filters, false)
		return s, true
	})
	return rejected
}

// Dispose останавливает таймер и отменяет выполняемые запросы.
// Ответы, пришедшие после Dispose, игнорируются.
func (c *Controller) Dispose() {
	c.state.UpdateIf(func(s Snapshot) (Snapshot, bool) {
		c.stopTimer()
		c.disposed = true
		return s, false
	})
	c.cancel()
}

// reset применяет изменение фильтров и начинает новое поколение,
// если фильтры изменились (или поиск еще не запускался).
func (c *Controller) reset(mutate func(*Filters), debounce bool) bool {
	return c.restart(mutate, debounce, false)
}

func (c *Controller) restart(mutate func(*Filters), debounce, force bool) bool {
	_, changed := c.state.UpdateIf(func(s Snapshot) (Snapshot, bool) {
		if c.disposed {
			return s, false
		}
		next := s.Filters
		mutate(&next)
		if !force && s.Phase != Idle && next.equal(s.Filters) {
			return s, false
		}

		c.stopTimer()
		s.Filters = next
		s.Generation++
		s.Page = 0
		s.Items = nil
		s.TotalElements = 0
		s.HasMore = false
		s.Phase = Loading
		s.LoadingMore = false
		s.Err = nil

		gen := s.Generation
		if debounce && c.debounce > 0 {
			s.Fetching = false
			c.timer = time.AfterFunc(c.debounce, func() { c.fire(gen) })
			return s, true
		}
		s.Fetching = true
		go c.fetch(gen, 0, next, false)
		return s, true
	})
	return changed
}

// fire запускает отложенный запрос, если поколение не сменилось.
func (c *Controller) fire(gen uint64) {
	c.state.UpdateIf(func(s Snapshot) (Snapshot, bool) {
		if c.disposed || s.Generation != gen || s.Fetching {
			return s, false
		}
		c.timer = nil
		s.Fetching = true
		go c.fetch(gen, 0, s.Filters, false)
		return s, true
	})
}

// fetch загружает страницу поколения gen. Отказ в авторизации уже завершил
// сессию в API клиенте, поэтому страница один раз запрашивается повторно
// анонимно; ошибка авторизации в снимок не попадает.
func (c *Controller) fetch(gen uint64, page int, filters Filters, retried bool) {
	q := c.query(filters, page)
	if page == 0 && !retried {
		c.trackSearch(filters)
	}
	slog.Debug("Запрос отзывов", "generation", gen, "page", page, "search", q.Search)

	res, err := c.fetcher.ListOpinions(c.ctx, q)

	c.state.UpdateIf(func(s Snapshot) (Snapshot, bool) {
		if c.disposed {
			return s, false
		}
		if s.Generation != gen {
			slog.Debug("Устаревший ответ отброшен", "generation", gen, "current", s.Generation)
			return s, false
		}
		if errors.Is(err, api.ErrAuthorization) {
			if !retried {
				slog.Info("Сессия отклонена, повторный запрос без токена", "generation", gen, "page", page)
				go c.fetch(gen, page, filters, true)
				return s, false
			}
			slog.Warn("Повторный запрос отклонен сервером", "generation", gen, "page", page)
			s.Fetching = false
			s.LoadingMore = false
			s.Err = nil
			if page > 0 {
				s.Page--
				return s, true
			}
			s.Phase = Idle
			return s, true
		}

		s.Fetching = false
		s.LoadingMore = false

		if err != nil {
			slog.Warn("Ошибка загрузки отзывов", "generation", gen, "page", page, "error", err)
			s.Err = fmt.Errorf("ошибка поиска отзывов: %w", err)
			s.Phase = Failed
			if page > 0 {
				// Страницу можно запросить повторно
				s.Page--
			}
			return s, true
		}

		if page == 0 {
			s.Items = res.Data
		} else {
			s.Items = append(slices.Clip(s.Items), res.Data...)
		}
		s.HasMore = len(res.Data) == c.pageSize
		s.TotalElements = res.Meta.TotalElements
		s.Err = nil
		s.Phase = Loaded
		if !s.HasMore {
			s.Phase = Exhausted
		}
		return s, true
	})
}

// query собирает параметры запроса страницы.
func (c *Controller) query(f Filters, page int) models.OpinionQuery {
	return models.OpinionQuery{
		Limit:     c.pageSize,
		Offset:    page * c.pageSize,
		Search:    strings.TrimSpace(f.SearchText),
		CareerID:  copyID(f.CareerID),
		SubjectID: copyID(f.SubjectID),
		FacultyID: copyID(f.FacultyID),
	}
}

func (c *Controller) trackSearch(f Filters) {
	analytics.TrackOpinionSearch(c.tracker, analytics.SearchParams{
		SearchTerm: strings.TrimSpace(f.SearchText),
		CareerID:   formatID(f.CareerID),
		SubjectID:  formatID(f.SubjectID),
		FacultyID:  copyID(f.FacultyID),
	})
}

func (c *Controller) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// ParseFilterID разбирает идентификатор фильтра. Пустая строка и любая
// запись нуля ("0", "00", "+0") означают "все" и дают nil.
func ParseFilterID(raw string) (*int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFilter, raw)
	}
	if id == 0 {
		return nil, nil
	}
	return &id, nil
}

// idOrAll нормализует идентификатор для аналитики.
func idOrAll(raw string) string {
	id, err := ParseFilterID(raw)
	if err != nil || id == nil {
		return "all"
	}
	return strconv.FormatInt(*id, 10)
}

func formatID(id *int64) string {
	if id == nil {
		return ""
	}
	return strconv.FormatInt(*id, 10)
}

func copyID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func sameID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
