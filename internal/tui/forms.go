package tui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/WilhelmDev/faduweb/internal/modal"
	"github.com/WilhelmDev/faduweb/models"
)

// form - набор полей ввода с общим фокусом.
type form struct {
	labels  []string
	inputs  []textinput.Model
	focused int
	err     error
	busy    bool
}

type field struct {
	label       string
	placeholder string
	password    bool
	value       string
}

func newForm(fields ...field) *form {
	f := &form{}
	for _, fd := range fields {
		ti := initField(fd.placeholder, fd.password)
		ti.SetValue(fd.value)
		f.labels = append(f.labels, fd.label)
		f.inputs = append(f.inputs, ti)
	}
	if len(f.inputs) > 0 {
		f.inputs[0].Focus()
	}
	return f
}

func (f *form) value(i int) string {
	return strings.TrimSpace(f.inputs[i].Value())
}

func (f *form) focus(i int) tea.Cmd {
	n := len(f.inputs)
	f.focused = (i%n + n) % n
	for j := range f.inputs {
		if j == f.focused {
			f.inputs[j].Focus()
		} else {
			f.inputs[j].Blur()
		}
	}
	return textinput.Blink
}

// update обрабатывает клавиши формы. submit вызывается по Enter
// на последнем поле; Enter на остальных полях переводит фокус дальше.
func (f *form) update(msg tea.Msg, submit func() tea.Cmd) tea.Cmd {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case keyTab, keyDown:
			return f.focus(f.focused + 1)
		case keyShiftTab, keyUp:
			return f.focus(f.focused - 1)
		case keyEnter:
			if f.focused < len(f.inputs)-1 {
				return f.focus(f.focused + 1)
			}
			if f.busy {
				return nil
			}
			f.err = nil
			return submit()
		}
	}
	var cmd tea.Cmd
	f.inputs[f.focused], cmd = f.inputs[f.focused].Update(msg)
	return cmd
}

func (f *form) view(title string) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(title))
	b.WriteString("\n\n")
	for i, in := range f.inputs {
		b.WriteString(mutedStyle.Render(f.labels[i]))
		b.WriteString("\n")
		b.WriteString(in.View())
		b.WriteString("\n")
	}
	if f.busy {
		b.WriteString("\n")
		b.WriteString(mutedStyle.Render("Выполняется..."))
	}
	if f.err != nil {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render(f.err.Error()))
	}
	return b.String()
}

// Поля форм модальных окон.
const (
	loginFieldUser = iota
	loginFieldPassword
)

const (
	registerFieldEmail = iota
	registerFieldPassword
	registerFieldName
	registerFieldLastname
	registerFieldUsername
)

const (
	opinionFieldTitle = iota
	opinionFieldDescription
	opinionFieldSubject
	opinionFieldYear
	opinionFieldProfessor
	opinionFieldAnonymous
	opinionFieldTags
)

const (
	profileFieldUsername = iota
	profileFieldCareer
	profileFieldImage
)

// setModal синхронизирует модель с активным модальным окном.
// Форма пересоздается только при смене вида окна.
func (m *model) setModal(k modal.Kind) {
	if k == m.activeModal && (k == modal.None || m.modalForm != nil) {
		return
	}
	m.activeModal = k
	switch k {
	case modal.Login:
		m.modalForm = newForm(
			field{label: "Имя пользователя или email", placeholder: "student@example.com"},
			field{label: "Пароль", placeholder: "Пароль", password: true},
		)
	case modal.Register:
		m.modalForm = newForm(
			field{label: "Email", placeholder: "student@example.com"},
			field{label: "Пароль", placeholder: "Не короче 6 символов", password: true},
			field{label: "Имя", placeholder: "Имя"},
			field{label: "Фамилия", placeholder: "Фамилия"},
			field{label: "Имя пользователя", placeholder: "username"},
		)
	case modal.CreateOpinion:
		subject := ""
		if m.subjectIdx >= 0 && m.subjectIdx < len(m.subjects) {
			subject = strconv.FormatInt(m.subjects[m.subjectIdx].ID, 10)
		}
		m.modalForm = newForm(
			field{label: "Заголовок", placeholder: "Коротко о предмете"},
			field{label: "Отзыв", placeholder: "Ваш опыт"},
			field{label: "ID предмета", placeholder: "например 12", value: subject},
			field{label: "Учебный год", placeholder: "2024"},
			field{label: "Кафедра (преподаватель)", placeholder: "необязательно"},
			field{label: "Анонимно (y/n)", placeholder: "n", value: "n"},
			field{label: "Теги (ID через запятую)", placeholder: "необязательно"},
		)
	default:
		m.modalForm = nil
	}
}

func (m *model) updateModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case keyEsc:
			m.app.Modals.CloseAll()
			m.setModal(m.app.Modals.Active())
			return m, nil
		case "ctrl+r":
			// Переключение между входом и регистрацией
			switch m.activeModal {
			case modal.Login:
				m.app.Modals.OpenRegister()
			case modal.Register:
				m.app.Modals.OpenLogin()
			}
			m.setModal(m.app.Modals.Active())
			return m, textinput.Blink
		}
	}
	return m, m.modalForm.update(msg, m.submitModal)
}

func (m *model) submitModal() tea.Cmd {
	f := m.modalForm
	switch m.activeModal {
	case modal.Login:
		user, password := f.value(loginFieldUser), f.inputs[loginFieldPassword].Value()
		if user == "" || password == "" {
			f.err = errors.New("введите имя пользователя и пароль")
			return nil
		}
		f.busy = true
		return actionCmd(func() error {
			return m.app.Login(m.ctx, user, password)
		}, "Вход выполнен")

	case modal.Register:
		req := models.RegisterRequest{
			Email:    f.value(registerFieldEmail),
			Password: f.inputs[registerFieldPassword].Value(),
			Name:     f.value(registerFieldName),
			Lastname: f.value(registerFieldLastname),
			Username: f.value(registerFieldUsername),
		}
		f.busy = true
		return actionCmd(func() error {
			return m.app.Register(m.ctx, req)
		}, "Регистрация прошла успешно")

	case modal.CreateOpinion:
		payload, err := opinionPayload(f)
		if err != nil {
			f.err = err
			return nil
		}
		f.busy = true
		return actionCmd(func() error {
			_, err := m.app.CreateOpinion(m.ctx, payload)
			return err
		}, "Отзыв опубликован")
	}
	return nil
}

// opinionPayload собирает тело отзыва из формы.
func opinionPayload(f *form) (models.OpinionPayload, error) {
	payload := models.OpinionPayload{
		Title:             f.value(opinionFieldTitle),
		Description:       f.value(opinionFieldDescription),
		CurrentSchoolYear: f.value(opinionFieldYear),
		Professor:         f.value(opinionFieldProfessor),
	}
	subjectID, err := strconv.ParseInt(f.value(opinionFieldSubject), 10, 64)
	if err != nil || subjectID <= 0 {
		return payload, errors.New("укажите числовой ID предмета")
	}
	payload.SubjectID = subjectID

	switch strings.ToLower(f.value(opinionFieldAnonymous)) {
	case "y", "yes", "д", "да", "s", "si", "sí":
		payload.Anonymous = 1
	}

	for _, raw := range strings.Split(f.value(opinionFieldTags), ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return payload, fmt.Errorf("некорректный тег %q", raw)
		}
		payload.Tags = append(payload.Tags, id)
	}
	return payload, nil
}

func (m *model) viewModal() string {
	var title, help string
	switch m.activeModal {
	case modal.Login:
		title, help = "Вход", "enter: войти • ctrl+r: регистрация • esc: закрыть"
	case modal.Register:
		title, help = "Регистрация", "enter: зарегистрироваться • ctrl+r: вход • esc: закрыть"
	case modal.CreateOpinion:
		title, help = "Новый отзыв", "tab: следующее поле • enter: опубликовать • esc: закрыть"
	}
	return modalStyle.Render(m.modalForm.view(title) + "\n\n" + mutedStyle.Render(help))
}

// openProfile открывает экран завершения профиля.
func (m *model) openProfile() tea.Cmd {
	user := m.app.Session.CurrentUser()
	if user == nil {
		m.app.Modals.OpenLogin()
		m.setModal(m.app.Modals.Active())
		return textinput.Blink
	}
	career := ""
	if user.CareerID > 0 {
		career = strconv.FormatInt(user.CareerID, 10)
	} else if m.careerIdx >= 0 && m.careerIdx < len(m.careers) {
		career = strconv.FormatInt(m.careers[m.careerIdx].ID, 10)
	}
	m.profileForm = newForm(
		field{label: "Имя пользователя", placeholder: "username", value: user.Username},
		field{label: "ID карьеры", placeholder: "например 3", value: career},
		field{label: "Изображение (data URL)", placeholder: "необязательно"},
	)
	m.state = profileScreen
	return textinput.Blink
}

func (m *model) updateProfileScreen(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.String() == keyEsc {
		m.state = browseScreen
		m.profileForm = nil
		return m, nil
	}
	return m, m.profileForm.update(msg, func() tea.Cmd {
		f := m.profileForm
		careerID, err := strconv.ParseInt(f.value(profileFieldCareer), 10, 64)
		if err != nil || careerID <= 0 {
			f.err = errors.New("укажите числовой ID карьеры")
			return nil
		}
		upd := models.ProfileUpdate{
			Username: f.value(profileFieldUsername),
			CareerID: careerID,
			Image:    f.value(profileFieldImage),
		}
		f.busy = true
		return actionCmd(func() error {
			return m.app.CompleteProfile(m.ctx, upd)
		}, "Профиль обновлен")
	})
}
