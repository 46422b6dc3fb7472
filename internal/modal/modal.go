// Package modal координирует видимость модальных окон: в каждый момент
// открыто не больше одного окна.
package modal

import (
	"github.com/WilhelmDev/faduweb/internal/store"
)

// Kind - активное модальное окно.
type Kind int

const (
	None Kind = iota
	Login
	Register
	CreateOpinion
)

func (k Kind) String() string {
	switch k {
	case Login:
		return "login"
	case Register:
		return "register"
	case CreateOpinion:
		return "create-opinion"
	default:
		return "none"
	}
}

// Visibility - флаги видимости, выведенные из активного окна.
type Visibility struct {
	Login         bool
	Register      bool
	CreateOpinion bool
}

// Coordinator хранит активное модальное окно.
type Coordinator struct {
	active *store.Store[Kind]
}

// New создает координатор без открытых окон.
func New() *Coordinator {
	return &Coordinator{active: store.New(None)}
}

func (c *Coordinator) Active() Kind {
	return c.active.Get()
}

// Subscribe подписывает fn на смену активного окна.
func (c *Coordinator) Subscribe(fn func(Kind)) func() {
	return c.active.Subscribe(fn)
}

func (c *Coordinator) OpenLogin() {
	c.open(Login)
}

func (c *Coordinator) OpenRegister() {
	c.open(Register)
}

func (c *Coordinator) OpenCreateOpinion() {
	c.open(CreateOpinion)
}

// CloseAll закрывает любое открытое окно.
func (c *Coordinator) CloseAll() {
	c.open(None)
}

// RequestCreateOpinion открывает форму отзыва для авторизованного
// пользователя, а анонимному показывает окно входа.
// Возвращает true, если открыта форма отзыва.
func (c *Coordinator) RequestCreateOpinion(authenticated bool) bool {
	if !authenticated {
		c.OpenLogin()
		return false
	}
	c.OpenCreateOpinion()
	return true
}

// Visibility возвращает флаги видимости для текущего окна.
func (c *Coordinator) Visibility() Visibility {
	return VisibilityOf(c.Active())
}

// VisibilityOf переводит активное окно во флаги видимости.
func VisibilityOf(k Kind) Visibility {
	return Visibility{
		Login:         k == Login,
		Register:      k == Register,
		CreateOpinion: k == CreateOpinion,
	}
}

func (c *Coordinator) open(k Kind) {
	// Повторное открытие того же окна не уведомляет подписчиков
	c.active.UpdateIf(func(cur Kind) (Kind, bool) {
		return k, cur != k
	})
}
