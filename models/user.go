package models

import "time"

// User представляет пользователя платформы.
// Клиент получает его снимок из полезной нагрузки JWT (claim userData)
// и никогда не изменяет локально.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Lastname  string    `json:"lastname"`
	Phone     string    `json:"phone,omitempty"`
	Instagram string    `json:"instagram,omitempty"`
	Web       string    `json:"web,omitempty"`
	Active    bool      `json:"active"`
	CareerID  int64     `json:"career_id"`
	FacultyID *int64    `json:"faculty_id"` // nil, если пользователь не привязан к факультету
	ImageID   int64     `json:"image_id,omitempty"`
	Image     *Image    `json:"image,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FullName возвращает имя и фамилию пользователя через пробел.
func (u User) FullName() string {
	switch {
	case u.Name != "" && u.Lastname != "":
		return u.Name + " " + u.Lastname
	case u.Name != "":
		return u.Name
	default:
		return u.Username
	}
}

// Image описывает изображение, прикрепленное к сущности.
type Image struct {
	ID  int64  `json:"id"`
	URL string `json:"url"`
}

// RegisterRequest представляет тело запроса на регистрацию.
type RegisterRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=6"`
	Name      string `json:"name" validate:"required"`
	Lastname  string `json:"lastname" validate:"required"`
	Username  string `json:"username" validate:"required"`
	AppleUser bool   `json:"apple_user"`
	RoleID    int    `json:"role_id"`
}

// LoginRequest представляет тело запроса на вход.
type LoginRequest struct {
	UserOrEmail string `json:"userOrEmail" validate:"required"`
	Password    string `json:"password" validate:"required"`
}

// LoginResponse представляет тело ответа с токеном
// (вход, регистрация и проверка токена отвечают одинаково).
type LoginResponse struct {
	Token string `json:"token"`
}

// ProfileUpdate описывает данные онбординга, отправляемые multipart-формой.
type ProfileUpdate struct {
	Username string `validate:"required,min=3"`
	CareerID int64  `validate:"required,gt=0"`
	// Image - уже подготовленное изображение (data URL); сжатие выполняется вне клиента.
	Image string
}
