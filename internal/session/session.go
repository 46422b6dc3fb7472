// Package session владеет токеном аутентификации и снимком пользователя,
// декодированным из этого токена.
package session

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-jwt/jwt/v5"

	"github.com/WilhelmDev/faduweb/internal/storage"
	"github.com/WilhelmDev/faduweb/internal/store"
	"github.com/WilhelmDev/faduweb/models"
)

var (
	// ErrEmptyToken возвращается при попытке войти с пустым токеном.
	ErrEmptyToken = errors.New("пустой токен аутентификации")
	// ErrMalformedToken сигнализирует, что полезную нагрузку токена не удалось разобрать.
	ErrMalformedToken = errors.New("некорректный формат токена")
	// ErrNoUserData сигнализирует об отсутствии claim userData в токене.
	ErrNoUserData = errors.New("в токене нет данных пользователя")
)

// Session - снимок состояния сессии. Authenticated всегда равно Token != "".
type Session struct {
	Token         string
	User          *models.User // nil, если токен не декодирован
	Authenticated bool
}

// tokenClaims - структура полезной нагрузки токена платформы.
type tokenClaims struct {
	UserData *models.User `json:"userData"`
	jwt.RegisteredClaims
}

// Store хранит сессию и синхронизирует токен с долговременным хранилищем.
type Store struct {
	storage storage.Storage
	state   *store.Store[Session]
}

// New создает хранилище сессии и синхронно восстанавливает сохраненный токен,
// чтобы подписчики не увидели промежуточного состояния "не авторизован".
func New(st storage.Storage) *Store {
	s := &Store{storage: st}

	initial := Session{}
	if token, ok := st.Get(storage.KeyAuthToken); ok && token != "" {
		initial = sessionFromToken(token)
		slog.Info("Сессия восстановлена из хранилища", "user_decoded", initial.User != nil)
	}
	s.state = store.New(initial)
	return s
}

// Get возвращает текущий снимок сессии.
func (s *Store) Get() Session {
	return s.state.Get()
}

// Subscribe подписывает fn на изменения сессии (fn сразу получает текущее значение).
func (s *Store) Subscribe(fn func(Session)) func() {
	return s.state.Subscribe(fn)
}

// Token возвращает текущий токен или пустую строку.
func (s *Store) Token() string {
	return s.state.Get().Token
}

// Authenticated сообщает, выполнен ли вход.
func (s *Store) Authenticated() bool {
	return s.state.Get().Authenticated
}

// Login сохраняет токен и декодирует из него пользователя.
// Если токен не декодируется, пользователь считается отсутствующим,
// но сессия остается авторизованной: токен годится для запросов.
func (s *Store) Login(token string) error {
	if token == "" {
		return ErrEmptyToken
	}
	if err := s.storage.Set(storage.KeyAuthToken, token); err != nil {
		// Сессия продолжит работать в памяти процесса
		slog.Error("Не удалось сохранить токен в хранилище", "error", err)
	}
	next := sessionFromToken(token)
	s.state.Set(next)
	slog.Info("Вход выполнен", "user_decoded", next.User != nil)
	return nil
}

// Logout очищает хранилище и сбрасывает сессию. Повторный вызов ничего не меняет.
func (s *Store) Logout() {
	current := s.state.Get()
	if !current.Authenticated && current.User == nil {
		return
	}
	if err := s.storage.Remove(storage.KeyAuthToken); err != nil {
		slog.Error("Не удалось удалить токен из хранилища", "error", err)
	}
	s.state.Set(Session{})
	slog.Info("Выход выполнен")
}

// CurrentUser возвращает пользователя сессии. Если он еще не декодирован,
// выполняет декодирование токена и кэширует результат.
func (s *Store) CurrentUser() *models.User {
	current := s.state.Get()
	if current.User != nil {
		return current.User
	}
	if current.Token == "" {
		return nil
	}

	user, err := DecodeUser(current.Token)
	if err != nil {
		slog.Debug("Пользователь не декодирован из токена", "error", err)
		return nil
	}

	// Кэшируем, только если токен за это время не сменился
	s.state.Update(func(v Session) Session {
		if v.Token == current.Token && v.User == nil {
			v.User = user
		}
		return v
	})
	return user
}

// InOnboarding сообщает, что пользователь вошел, но еще не заполнил профиль
// (не выбрал карьеру).
func (s *Store) InOnboarding() bool {
	if !s.Authenticated() {
		return false
	}
	user := s.CurrentUser()
	return user != nil && user.CareerID == 0
}

// DecodeUser извлекает пользователя из полезной нагрузки токена без проверки подписи.
// Результат - только подсказка для интерфейса, а не основание для доверия.
func DecodeUser(token string) (*models.User, error) {
	claims := &tokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedToken, err)
	}
	if claims.UserData == nil {
		return nil, ErrNoUserData
	}
	return claims.UserData, nil
}

func sessionFromToken(token string) Session {
	user, err := DecodeUser(token)
	if err != nil {
		slog.Warn("Не удалось декодировать пользователя из токена", "error", err)
		user = nil
	}
	return Session{Token: token, User: user, Authenticated: true}
}
