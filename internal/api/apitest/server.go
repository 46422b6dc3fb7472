// Package apitest содержит поддельный сервер платформы для тестов клиента.
// Сервер хранит данные в памяти и позволяет управлять ответами:
// задерживать их, подменять статус и считать запросы.
package apitest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"

	"github.com/WilhelmDev/faduweb/models"
)

// Тип для ключа контекста.
type contextKey string

// Ключ для хранения ID пользователя в контексте.
const userIDKey contextKey = "userID"

// Claims - полезная нагрузка токенов, выдаваемых сервером.
type Claims struct {
	UserData *models.User `json:"userData"`
	jwt.RegisteredClaims
}

type account struct {
	user     models.User
	password string
}

type storedOpinion struct {
	opinion   models.Opinion
	facultyID int64
	careerID  int64
}

// Call - сведения о принятом запросе.
type Call struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
}

// Server - поддельный сервер платформы.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	secret    []byte
	accounts  map[int64]*account
	nextUser  int64
	faculties []models.Faculty
	careers   []models.Career
	subjects  []models.Subject
	opinions  []storedOpinion
	nextOp    int64

	calls    []Call
	statuses map[string]int
	delays   map[string]time.Duration
	holds    map[string]*hold
}

type hold struct {
	ch   chan struct{}
	once sync.Once
}

func (h *hold) release() {
	h.once.Do(func() { close(h.ch) })
}

// NewServer запускает поддельный сервер. Сервер останавливается вместе с тестом.
func NewServer(tb testing.TB) *Server {
	tb.Helper()
	s := &Server{
		secret:   []byte("apitest-secret"),
		accounts: make(map[int64]*account),
		statuses: make(map[string]int),
		delays:   make(map[string]time.Duration),
		holds:    make(map[string]*hold),
	}
	s.Server = httptest.NewServer(s.router())
	tb.Cleanup(func() {
		// Удерживаемые обработчики не дают серверу остановиться
		s.mu.Lock()
		for _, h := range s.holds {
			h.release()
		}
		s.mu.Unlock()
		s.Close()
	})
	return s
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.control)

	r.Post("/auth/login", s.handleLogin)
	r.Post("/auth/register", s.handleRegister)
	r.Get("/faculties", s.handleFaculties)
	r.Get("/career/all/web", s.handleCareers)
	r.Get("/subject/all/web", s.handleSubjects)
	r.Get("/subject/career/{careerID}", s.handleSubjectsByCareer)
	r.Get("/opinion/all/web", s.handleOpinions)

	// Маршруты, требующие аутентификации
	r.Group(func(r chi.Router) {
		r.Use(s.authenticator)
		r.Get("/auth/validate-token", s.handleValidateToken)
		r.Put("/auth/update/{userID}", s.handleUpdateUser)
		r.Get("/opinion/all", s.handleStudentOpinions)
		r.Post("/opinion/create", s.handleCreateOpinion)
	})
	return r
}

// --- Управление данными ---

// AddUser регистрирует пользователя с паролем и возвращает его с присвоенным ID.
func (s *Server) AddUser(u models.User, password string) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == 0 {
		s.nextUser++
		u.ID = s.nextUser
	} else if u.ID > s.nextUser {
		s.nextUser = u.ID
	}
	u.Email = strings.ToLower(u.Email)
	u.Active = true
	s.accounts[u.ID] = &account{user: u, password: password}
	return u
}

// User возвращает текущие данные пользователя.
func (s *Server) User(id int64) (models.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[id]
	if !ok {
		return models.User{}, false
	}
	return acc.user, true
}

// SetFaculties задает список факультетов.
func (s *Server) SetFaculties(list ...models.Faculty) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faculties = list
}

// SetCareers задает список карьер.
func (s *Server) SetCareers(list ...models.Career) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.careers = list
}

// SetSubjects задает список предметов.
func (s *Server) SetSubjects(list ...models.Subject) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subjects = list
}

// AddOpinion добавляет отзыв, привязанный к факультету и карьере.
func (s *Server) AddOpinion(o models.Opinion, facultyID, careerID int64) models.Opinion {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.ID == 0 {
		s.nextOp++
		o.ID = s.nextOp
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}
	s.opinions = append(s.opinions, storedOpinion{opinion: o, facultyID: facultyID, careerID: careerID})
	return o
}

// AddOpinions добавляет n однотипных отзывов с заголовком "<prefix> <номер>".
func (s *Server) AddOpinions(n int, prefix string, facultyID, careerID, subjectID int64) {
	for i := 1; i <= n; i++ {
		s.AddOpinion(models.Opinion{
			Title:     fmt.Sprintf("%s %d", prefix, i),
			SubjectID: subjectID,
		}, facultyID, careerID)
	}
}

// --- Токены ---

// Token выпускает токен пользователя с claim userData.
func (s *Server) Token(u models.User) string {
	s.mu.Lock()
	secret := s.secret
	s.mu.Unlock()
	return SignToken(secret, u, time.Hour)
}

// SignToken подписывает токен HS256 с данными пользователя.
func SignToken(secret []byte, u models.User, ttl time.Duration) string {
	user := u
	claims := Claims{
		UserData: &user,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprint(u.ID),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		panic(fmt.Sprintf("apitest: ошибка подписи токена: %v", err))
	}
	return signed
}

// ExpireTokens делает недействительными все выданные токены.
func (s *Server) ExpireTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secret = []byte(fmt.Sprintf("apitest-secret-%d", time.Now().UnixNano()))
}

// --- Управление ответами ---

// ForceStatus заставляет маршрут path отвечать статусом status.
// Нулевой статус отменяет подмену.
func (s *Server) ForceStatus(path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.statuses, path)
		return
	}
	s.statuses[path] = status
}

// Delay задерживает ответы маршрута path.
func (s *Server) Delay(path string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays[path] = d
}

// Hold задерживает ответы маршрута path до вызова возвращенной функции.
// Удержание действует на все запросы, пришедшие до освобождения.
func (s *Server) Hold(path string) (release func()) {
	h := &hold{ch: make(chan struct{})}
	s.mu.Lock()
	s.holds[path] = h
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		if s.holds[path] == h {
			delete(s.holds, path)
		}
		s.mu.Unlock()
		h.release()
	}
}

// Calls возвращает принятые запросы к path (все запросы, если path пуст).
func (s *Server) Calls(path string) []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Call
	for _, c := range s.calls {
		if path == "" || c.Path == path {
			out = append(out, c)
		}
	}
	return out
}

// CallCount возвращает число запросов к path.
func (s *Server) CallCount(path string) int {
	return len(s.Calls(path))
}

// control регистрирует запрос и применяет задержки и подмену статуса.
func (s *Server) control(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls = append(s.calls, Call{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.Query(),
			Header: r.Header.Clone(),
		})
		delay := s.delays[r.URL.Path]
		held := s.holds[r.URL.Path]
		status := s.statuses[r.URL.Path]
		s.mu.Unlock()

		if held != nil {
			select {
			case <-held.ch:
			case <-r.Context().Done():
				return
			}
		}
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		if status != 0 {
			writeError(w, status, http.StatusText(status))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authenticator проверяет JWT токен аутентификации.
func (s *Server) authenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || tokenString == "" {
			writeError(w, http.StatusUnauthorized, "Требуется аутентификация")
			return
		}

		s.mu.Lock()
		secret := s.secret
		s.mu.Unlock()

		claims := &Claims{}
		_, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (interface{}, error) {
			return secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || claims.UserData == nil {
			writeError(w, http.StatusUnauthorized, "Невалидный токен")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, claims.UserData.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"statusCode": status, "message": message})
}
