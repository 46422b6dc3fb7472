package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrAuthorization сигнализирует, что сервер отклонил токен (401).
	// Сессия к этому моменту уже завершена.
	ErrAuthorization = errors.New("ошибка авторизации")
	// ErrInvalidCredentials возвращается при неверном логине или пароле.
	ErrInvalidCredentials = errors.New("неверное имя пользователя или пароль")
	// ErrEmailTaken возвращается при регистрации уже занятого email.
	ErrEmailTaken = errors.New("email уже зарегистрирован")
	// ErrNetwork оборачивает ошибки транспорта (таймауты, недоступность сервера).
	ErrNetwork = errors.New("ошибка сети")
	// ErrEmptyToken возвращается, если сервер прислал пустой токен.
	ErrEmptyToken = errors.New("сервер вернул пустой токен")
	// ErrNoUser возвращается операциями, требующими пользователя сессии.
	ErrNoUser = errors.New("пользователь не определен")
)

// Error - ответ сервера с неуспешным статусом.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("ошибка сервера: статус %d", e.StatusCode)
	}
	return fmt.Sprintf("ошибка сервера: статус %d: %s", e.StatusCode, e.Message)
}

// IsNotFound сообщает, что ресурс не найден.
func (e *Error) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsBadRequest сообщает, что сервер отклонил данные запроса.
func (e *Error) IsBadRequest() bool {
	return e.StatusCode == http.StatusBadRequest
}

// ValidationError - данные формы не прошли проверку до отправки запроса.
type ValidationError struct {
	Fields []string // Имена полей с ошибками
	err    error
}

func (e *ValidationError) Error() string {
	return "некорректные данные: " + strings.Join(e.Fields, ", ")
}

func (e *ValidationError) Unwrap() error {
	return e.err
}

func newValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("ошибка проверки данных: %w", err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
	}
	return &ValidationError{Fields: fields, err: err}
}

// parseError извлекает сообщение из тела ответа об ошибке.
// Сервер отвечает {"message": "..."} или {"message": ["...", "..."]}.
func parseError(statusCode int, body []byte) error {
	var payload struct {
		Message json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && len(payload.Message) > 0 {
		var single string
		if json.Unmarshal(payload.Message, &single) == nil {
			return &Error{StatusCode: statusCode, Message: single}
		}
		var many []string
		if json.Unmarshal(payload.Message, &many) == nil {
			return &Error{StatusCode: statusCode, Message: strings.Join(many, "; ")}
		}
	}
	return &Error{StatusCode: statusCode, Message: strings.TrimSpace(string(body))}
}
