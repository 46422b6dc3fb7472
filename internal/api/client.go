// Package api реализует единственный канал связи клиента с сервером платформы.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/WilhelmDev/faduweb/models"
)

const (
	// DefaultTimeout - таймаут HTTP клиента по умолчанию.
	DefaultTimeout = 15 * time.Second
	// RequestIDHeader - заголовок с идентификатором запроса для корреляции логов.
	RequestIDHeader = "X-Request-ID"
	// studentRoleID - роль, назначаемая при регистрации через веб-клиент.
	studentRoleID = 2

	maxResponseSize = 4 << 20
)

// Session - источник токена, который клиент читает в момент отправки запроса.
type Session interface {
	Token() string
	Logout()
}

// Client определяет интерфейс для взаимодействия с API сервера.
type Client interface {
	// Login аутентифицирует пользователя и возвращает JWT токен.
	Login(ctx context.Context, userOrEmail, password string) (string, error)
	// Register регистрирует нового пользователя и возвращает JWT токен.
	Register(ctx context.Context, req models.RegisterRequest) (string, error)
	// ValidateToken проверяет текущий токен и возвращает обновленный.
	ValidateToken(ctx context.Context) (string, error)
	// UpdateUser сохраняет данные онбординга пользователя.
	UpdateUser(ctx context.Context, userID int64, upd models.ProfileUpdate) (*models.User, error)
	// ListFaculties возвращает все факультеты.
	ListFaculties(ctx context.Context) ([]models.Faculty, error)
	// ListCareers возвращает все карьеры.
	ListCareers(ctx context.Context) ([]models.Career, error)
	// ListSubjects возвращает все предметы.
	ListSubjects(ctx context.Context) ([]models.Subject, error)
	// ListSubjectsByCareer возвращает предметы карьеры.
	ListSubjectsByCareer(ctx context.Context, careerID int64) ([]models.Subject, error)
	// ListOpinions возвращает страницу отзывов по фильтрам.
	ListOpinions(ctx context.Context, q models.OpinionQuery) (*models.OpinionPage, error)
	// ListOpinionsByStudent возвращает отзывы студента.
	ListOpinionsByStudent(ctx context.Context, studentID int64, offset int) ([]models.Opinion, error)
	// CreateOpinion публикует новый отзыв.
	CreateOpinion(ctx context.Context, payload models.OpinionPayload) (*models.Opinion, error)
}

// httpClient реализует интерфейс Client для взаимодействия с сервером по HTTP.
type httpClient struct {
	baseURL    string       // Базовый URL сервера, например "http://localhost:3000"
	httpClient *http.Client // HTTP клиент для выполнения запросов
	session    Session      // Источник токена, может быть nil
	onExpired  func()       // Вызывается после принудительного выхода по 401
	timeout    time.Duration
	validate   *validator.Validate
}

// Убедимся, что httpClient удовлетворяет интерфейсу Client.
var _ Client = (*httpClient)(nil)

// Option настраивает HTTP клиент.
type Option func(*httpClient)

// WithHTTPClient подменяет используемый *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.httpClient = hc
	}
}

// WithTimeout задает таймаут запросов. Применяется и к клиенту из
// WithHTTPClient независимо от порядка опций; переданный клиент не меняется.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		c.timeout = d
	}
}

// WithSessionExpiredHandler задает обработчик истечения сессии.
func WithSessionExpiredHandler(fn func()) Option {
	return func(c *httpClient) {
		c.onExpired = fn
	}
}

// NewHTTPClient создает новый экземпляр API клиента.
func NewHTTPClient(baseURL string, session Session, opts ...Option) Client {
	c := &httpClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		session:    session,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 && c.httpClient.Timeout != c.timeout {
		hc := *c.httpClient
		hc.Timeout = c.timeout
		c.httpClient = &hc
	}
	return c
}

// request описывает один вызов API.
type request struct {
	method      string
	path        string
	query       url.Values
	body        io.Reader
	contentType string
	// Попытка входа: 401 означает неверные данные, а не истекшую сессию
	credentials bool
}

// Login отправляет запрос на вход на сервер.
func (c *httpClient) Login(ctx context.Context, userOrEmail, password string) (string, error) {
	payload := models.LoginRequest{UserOrEmail: strings.TrimSpace(userOrEmail), Password: password}
	if err := c.validate.Struct(payload); err != nil {
		return "", newValidationError(err)
	}

	req, err := jsonRequest(http.MethodPost, "/auth/login", payload)
	if err != nil {
		return "", err
	}
	req.credentials = true

	var resp models.LoginResponse
	err = c.do(ctx, req, &resp)
	var apiErr *Error
	if errors.As(err, &apiErr) &&
		(apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusBadRequest) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", fmt.Errorf("ошибка входа: %w", err)
	}
	if resp.Token == "" {
		return "", ErrEmptyToken
	}
	return resp.Token, nil
}

// Register отправляет запрос на регистрацию студента.
func (c *httpClient) Register(ctx context.Context, payload models.RegisterRequest) (string, error) {
	payload.Email = strings.ToLower(strings.TrimSpace(payload.Email))
	payload.AppleUser = false
	if payload.RoleID == 0 {
		payload.RoleID = studentRoleID
	}
	if err := c.validate.Struct(payload); err != nil {
		return "", newValidationError(err)
	}

	req, err := jsonRequest(http.MethodPost, "/auth/register", payload)
	if err != nil {
		return "", err
	}
	req.credentials = true

	var resp models.LoginResponse
	err = c.do(ctx, req, &resp)
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.IsBadRequest() {
		return "", fmt.Errorf("%w: %s", ErrEmailTaken, apiErr.Message)
	}
	if err != nil {
		return "", fmt.Errorf("ошибка регистрации: %w", err)
	}
	if resp.Token == "" {
		return "", ErrEmptyToken
	}
	return resp.Token, nil
}

// ValidateToken запрашивает у сервера свежий токен для текущей сессии.
func (c *httpClient) ValidateToken(ctx context.Context) (string, error) {
	var resp models.LoginResponse
	if err := c.do(ctx, request{method: http.MethodGet, path: "/auth/validate-token"}, &resp); err != nil {
		return "", fmt.Errorf("ошибка проверки токена: %w", err)
	}
	if resp.Token == "" {
		return "", ErrEmptyToken
	}
	return resp.Token, nil
}

// UpdateUser отправляет данные онбординга multipart-формой.
func (c *httpClient) UpdateUser(ctx context.Context, userID int64, upd models.ProfileUpdate) (*models.User, error) {
	upd.Username = strings.TrimSpace(upd.Username)
	if err := c.validate.Struct(upd); err != nil {
		return nil, newValidationError(err)
	}

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	fields := [][2]string{
		{"career_id", strconv.FormatInt(upd.CareerID, 10)},
		{"username", upd.Username},
	}
	if upd.Image != "" {
		fields = append(fields, [2]string{"image", upd.Image})
	}
	for _, f := range fields {
		if err := form.WriteField(f[0], f[1]); err != nil {
			return nil, fmt.Errorf("ошибка формирования формы профиля: %w", err)
		}
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("ошибка формирования формы профиля: %w", err)
	}

	req := request{
		method:      http.MethodPut,
		path:        "/auth/update/" + strconv.FormatInt(userID, 10),
		body:        &buf,
		contentType: form.FormDataContentType(),
	}
	var user models.User
	if err := c.do(ctx, req, &user); err != nil {
		return nil, fmt.Errorf("ошибка обновления профиля: %w", err)
	}
	return &user, nil
}

// ListFaculties получает список факультетов.
func (c *httpClient) ListFaculties(ctx context.Context) ([]models.Faculty, error) {
	var list []models.Faculty
	if err := c.do(ctx, request{method: http.MethodGet, path: "/faculties"}, &list); err != nil {
		return nil, fmt.Errorf("ошибка получения факультетов: %w", err)
	}
	return list, nil
}

// ListCareers получает список карьер.
func (c *httpClient) ListCareers(ctx context.Context) ([]models.Career, error) {
	var list []models.Career
	if err := c.do(ctx, request{method: http.MethodGet, path: "/career/all/web"}, &list); err != nil {
		return nil, fmt.Errorf("ошибка получения карьер: %w", err)
	}
	return list, nil
}

// ListSubjects получает список всех предметов.
func (c *httpClient) ListSubjects(ctx context.Context) ([]models.Subject, error) {
	var list []models.Subject
	if err := c.do(ctx, request{method: http.MethodGet, path: "/subject/all/web"}, &list); err != nil {
		return nil, fmt.Errorf("ошибка получения предметов: %w", err)
	}
	return list, nil
}

// ListSubjectsByCareer получает предметы указанной карьеры.
func (c *httpClient) ListSubjectsByCareer(ctx context.Context, careerID int64) ([]models.Subject, error) {
	var list []models.Subject
	path := "/subject/career/" + strconv.FormatInt(careerID, 10)
	if err := c.do(ctx, request{method: http.MethodGet, path: path}, &list); err != nil {
		return nil, fmt.Errorf("ошибка получения предметов карьеры: %w", err)
	}
	return list, nil
}

// ListOpinions получает страницу отзывов. Nil-фильтры в запрос не попадают.
func (c *httpClient) ListOpinions(ctx context.Context, q models.OpinionQuery) (*models.OpinionPage, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(q.Limit))
	query.Set("offset", strconv.Itoa(q.Offset))
	query.Set("search", q.Search)
	if q.CareerID != nil {
		query.Set("career_id", strconv.FormatInt(*q.CareerID, 10))
	}
	if q.SubjectID != nil {
		query.Set("subject_id", strconv.FormatInt(*q.SubjectID, 10))
	}
	if q.FacultyID != nil {
		query.Set("faculty_id", strconv.FormatInt(*q.FacultyID, 10))
	}

	var page models.OpinionPage
	if err := c.do(ctx, request{method: http.MethodGet, path: "/opinion/all/web", query: query}, &page); err != nil {
		return nil, fmt.Errorf("ошибка получения отзывов: %w", err)
	}
	return &page, nil
}

// ListOpinionsByStudent получает отзывы, написанные студентом.
func (c *httpClient) ListOpinionsByStudent(ctx context.Context, studentID int64, offset int) ([]models.Opinion, error) {
	query := url.Values{}
	query.Set("offset", strconv.Itoa(offset))
	query.Set("student_id", strconv.FormatInt(studentID, 10))

	var list []models.Opinion
	if err := c.do(ctx, request{method: http.MethodGet, path: "/opinion/all", query: query}, &list); err != nil {
		return nil, fmt.Errorf("ошибка получения отзывов студента: %w", err)
	}
	return list, nil
}

// CreateOpinion отправляет новый отзыв.
func (c *httpClient) CreateOpinion(ctx context.Context, payload models.OpinionPayload) (*models.Opinion, error) {
	if err := c.validate.Struct(payload); err != nil {
		return nil, newValidationError(err)
	}
	req, err := jsonRequest(http.MethodPost, "/opinion/create", payload)
	if err != nil {
		return nil, err
	}

	var opinion models.Opinion
	if err = c.do(ctx, req, &opinion); err != nil {
		return nil, fmt.Errorf("ошибка создания отзыва: %w", err)
	}
	return &opinion, nil
}

func jsonRequest(method, path string, payload any) (request, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return request{}, fmt.Errorf("ошибка кодирования данных запроса: %w", err)
	}
	return request{
		method:      method,
		path:        path,
		body:        bytes.NewReader(data),
		contentType: "application/json",
	}, nil
}

// do выполняет запрос: добавляет токен сессии, обрабатывает 401
// и декодирует JSON ответа в out (если out не nil).
func (c *httpClient) do(ctx context.Context, r request, out any) error {
	endpoint, err := url.JoinPath(c.baseURL, r.path)
	if err != nil {
		return fmt.Errorf("ошибка формирования URL %s: %w", r.path, err)
	}
	if len(r.query) > 0 {
		endpoint += "?" + r.query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, r.method, endpoint, r.body)
	if err != nil {
		return fmt.Errorf("ошибка создания запроса %s: %w", r.path, err)
	}
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	req.Header.Set("Accept", "application/json")
	requestID := uuid.NewString()
	req.Header.Set(RequestIDHeader, requestID)
	if c.session != nil {
		if token := c.session.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	log := slog.With("request_id", requestID, "method", r.method, "path", r.path)
	started := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Warn("Ошибка выполнения запроса", "error", err)
		return fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		log.Warn("Ошибка чтения ответа", "error", err)
		return fmt.Errorf("%w: чтение ответа: %w", ErrNetwork, err)
	}
	log.Debug("Ответ получен", "status", resp.StatusCode, "duration", time.Since(started))

	if resp.StatusCode == http.StatusUnauthorized && !r.credentials {
		c.expireSession()
		return ErrAuthorization
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseError(resp.StatusCode, body)
	}

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err = json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("ошибка декодирования ответа %s: %w", r.path, err)
	}
	return nil
}

// expireSession завершает сессию после отказа сервера в авторизации.
func (c *httpClient) expireSession() {
	slog.Warn("Сервер отклонил токен, сессия завершена")
	if c.session != nil {
		c.session.Logout()
	}
	if c.onExpired != nil {
		c.onExpired()
	}
}
