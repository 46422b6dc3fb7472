// Package faculty управляет списком факультетов и выбранным факультетом.
package faculty

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/WilhelmDev/faduweb/internal/storage"
	"github.com/WilhelmDev/faduweb/internal/store"
	"github.com/WilhelmDev/faduweb/models"
)

// DefaultSettleInterval - время, на которое SetFaculty выставляет флаг загрузки.
const DefaultSettleInterval = 500 * time.Millisecond

var (
	// ErrSelectionLocked возвращается при попытке сменить факультет,
	// закрепленный за пользователем.
	ErrSelectionLocked = errors.New("факультет закреплен за пользователем")
	// ErrUnknownFaculty возвращается, если факультет отсутствует в загруженном списке.
	ErrUnknownFaculty = errors.New("неизвестный факультет")
)

// Lister загружает список факультетов.
type Lister interface {
	ListFaculties(ctx context.Context) ([]models.Faculty, error)
}

// UserSource отдает текущего пользователя сессии (nil для анонимного).
type UserSource interface {
	CurrentUser() *models.User
}

// State - снимок состояния выбора факультета.
type State struct {
	Faculties []models.Faculty
	Selected  *models.Faculty
	Loading   bool
	Locked    bool // Выбор закреплен за пользователем и не меняется вручную
}

// SelectedID возвращает идентификатор выбранного факультета или nil.
func (s State) SelectedID() *int64 {
	if s.Selected == nil {
		return nil
	}
	id := s.Selected.ID
	return &id
}

// Store хранит список факультетов и выбор пользователя.
type Store struct {
	lister  Lister
	users   UserSource
	storage storage.Storage
	settle  time.Duration

	state *store.Store[State]
	group singleflight.Group

	fetching atomic.Int32
	settling atomic.Bool

	mu        sync.Mutex
	settleTmr *time.Timer
	settleSeq uint64
}

// Option настраивает Store.
type Option func(*Store)

// WithSettleInterval задает длительность флага загрузки после ручного выбора.
func WithSettleInterval(d time.Duration) Option {
	return func(s *Store) {
		s.settle = d
	}
}

// New создает хранилище выбора факультета.
func New(lister Lister, users UserSource, st storage.Storage, opts ...Option) *Store {
	s := &Store{
		lister:  lister,
		users:   users,
		storage: st,
		settle:  DefaultSettleInterval,
		state:   store.New(State{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get возвращает текущее состояние.
func (s *Store) Get() State {
	return s.state.Get()
}

// Subscribe подписывает fn на изменения состояния.
func (s *Store) Subscribe(fn func(State)) func() {
	return s.state.Subscribe(fn)
}

// FetchFaculties загружает список факультетов. Одновременные вызовы
// разделяют один сетевой запрос.
func (s *Store) FetchFaculties(ctx context.Context) ([]models.Faculty, error) {
	res, err, shared := s.group.Do("faculties", func() (any, error) {
		s.fetching.Add(1)
		s.refreshLoading()
		defer func() {
			s.fetching.Add(-1)
			s.refreshLoading()
		}()

		list, err := s.lister.ListFaculties(ctx)
		if err != nil {
			return nil, err
		}
		s.state.Update(func(v State) State {
			v.Faculties = list
			// Выбранный факультет должен ссылаться на элемент нового списка
			if v.Selected != nil {
				v.Selected = findByID(list, v.Selected.ID)
			}
			return v
		})
		return list, nil
	})
	if err != nil {
		slog.Error("Ошибка загрузки факультетов", "error", err)
		return nil, fmt.Errorf("ошибка загрузки факультетов: %w", err)
	}
	slog.Debug("Факультеты загружены", "shared", shared)
	return res.([]models.Faculty), nil
}

// InitSelection определяет выбранный факультет по приоритету:
// закрепленный за пользователем, сохраненный ранее, первый в списке.
func (s *Store) InitSelection(ctx context.Context) error {
	if len(s.state.Get().Faculties) == 0 {
		if _, err := s.FetchFaculties(ctx); err != nil {
			return err
		}
	}

	s.Reselect()
	return nil
}

// Reselect заново применяет приоритет выбора к уже загруженному списку
// без обращения к сети. При пустом списке выбор сбрасывается.
func (s *Store) Reselect() {
	assigned := s.assignedID()
	persisted, hasPersisted := s.persistedID()

	next, changed := s.state.UpdateIf(func(v State) (State, bool) {
		stale := v.Selected != nil || v.Locked
		v.Selected, v.Locked = nil, false
		if len(v.Faculties) == 0 {
			return v, stale
		}
		if assigned != nil {
			if f := findByID(v.Faculties, *assigned); f != nil {
				v.Selected, v.Locked = f, true
				return v, true
			}
		}
		if hasPersisted {
			if f := findByID(v.Faculties, persisted); f != nil {
				v.Selected = f
				return v, true
			}
		}
		first := v.Faculties[0]
		v.Selected = &first
		return v, true
	})
	if !changed {
		return
	}

	if assigned != nil && !next.Locked && len(next.Faculties) > 0 {
		slog.Warn("Факультет пользователя отсутствует в списке", "faculty_id", *assigned)
	}
	if next.Selected != nil {
		slog.Info("Факультет выбран", "faculty_id", next.Selected.ID, "locked", next.Locked)
	}
}

// SetFaculty выбирает факультет вручную, сохраняет выбор и на короткое
// время выставляет флаг загрузки.
func (s *Store) SetFaculty(f models.Faculty) error {
	assigned := s.assignedID()
	var rejected error
	s.state.UpdateIf(func(v State) (State, bool) {
		// Закрепление проверяется и по текущему пользователю: состояние
		// может еще не отражать только что выполненный вход
		if v.Locked || (assigned != nil && findByID(v.Faculties, *assigned) != nil) {
			rejected = ErrSelectionLocked
			return v, false
		}
		known := findByID(v.Faculties, f.ID)
		if known == nil {
			rejected = fmt.Errorf("%w: %d", ErrUnknownFaculty, f.ID)
			return v, false
		}
		v.Selected = known
		return v, true
	})
	if rejected != nil {
		return rejected
	}

	if err := s.storage.Set(storage.KeySelectedFacultyID, strconv.FormatInt(f.ID, 10)); err != nil {
		slog.Error("Не удалось сохранить выбранный факультет", "error", err)
	}
	s.startSettle()
	return nil
}

// Dispose останавливает таймер загрузки.
func (s *Store) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settleTmr != nil {
		s.settleTmr.Stop()
		s.settleTmr = nil
	}
	s.settleSeq++
	s.settling.Store(false)
}

func (s *Store) startSettle() {
	s.mu.Lock()
	if s.settleTmr != nil {
		s.settleTmr.Stop()
	}
	s.settleSeq++
	seq := s.settleSeq
	s.settling.Store(true)
	s.settleTmr = time.AfterFunc(s.settle, func() {
		s.mu.Lock()
		if seq != s.settleSeq {
			s.mu.Unlock()
			return
		}
		s.settleTmr = nil
		s.settling.Store(false)
		s.mu.Unlock()
		s.refreshLoading()
	})
	s.mu.Unlock()
	s.refreshLoading()
}

func (s *Store) refreshLoading() {
	s.state.Update(func(v State) State {
		v.Loading = s.fetching.Load() > 0 || s.settling.Load()
		return v
	})
}

func (s *Store) assignedID() *int64 {
	if user := s.users.CurrentUser(); user != nil && user.FacultyID != nil {
		id := *user.FacultyID
		return &id
	}
	return nil
}

func (s *Store) persistedID() (int64, bool) {
	raw, ok := s.storage.Get(storage.KeySelectedFacultyID)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		slog.Warn("Некорректный сохраненный факультет", "value", raw)
		return 0, false
	}
	return id, true
}

func findByID(list []models.Faculty, id int64) *models.Faculty {
	for i := range list {
		if list[i].ID == id {
			f := list[i]
			return &f
		}
	}
	return nil
}
