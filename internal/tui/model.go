package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/lipgloss"

	"github.com/WilhelmDev/faduweb/internal/app"
	"github.com/WilhelmDev/faduweb/internal/faculty"
	"github.com/WilhelmDev/faduweb/internal/modal"
	"github.com/WilhelmDev/faduweb/internal/search"
	"github.com/WilhelmDev/faduweb/internal/session"
	"github.com/WilhelmDev/faduweb/models"
)

// Состояния (экраны) приложения.
type screenState int

const (
	browseScreen  screenState = iota // Поиск и список отзывов
	facultyScreen                    // Выбор факультета
	detailScreen                     // Просмотр отзыва
	profileScreen                    // Завершение профиля
)

func (s screenState) String() string {
	switch s {
	case facultyScreen:
		return "faculty"
	case detailScreen:
		return "detail"
	case profileScreen:
		return "profile"
	default:
		return "browse"
	}
}

// Константы для TUI.
const (
	defaultListWidth  = 80
	defaultListHeight = 20

	keyEnter    = "enter"
	keyQuit     = "q"
	keyBack     = "b"
	keyEsc      = "esc"
	keyTab      = "tab"
	keyShiftTab = "shift+tab"
	keyUp       = "up"
	keyDown     = "down"
)

// opinionItem представляет отзыв в списке.
// Реализует интерфейс list.Item.
type opinionItem struct {
	opinion models.Opinion
}

func (i opinionItem) Title() string {
	if i.opinion.Title == "" {
		return fmt.Sprintf("Отзыв #%d", i.opinion.ID)
	}
	return i.opinion.Title
}

func (i opinionItem) Description() string {
	parts := make([]string, 0, 3)
	if i.opinion.Subject != nil {
		parts = append(parts, i.opinion.Subject.Name)
	}
	if i.opinion.Professor != "" {
		parts = append(parts, "Кафедра: "+i.opinion.Professor)
	}
	parts = append(parts, fmt.Sprintf("Ответов: %d", i.opinion.AnswersCount))
	return strings.Join(parts, " | ")
}

func (i opinionItem) FilterValue() string { return i.Title() }

// facultyItem представляет факультет в списке выбора.
type facultyItem struct {
	faculty  models.Faculty
	selected bool
}

func (i facultyItem) Title() string {
	if i.selected {
		return "● " + i.faculty.Title
	}
	return i.faculty.Title
}

func (i facultyItem) Description() string { return i.faculty.Description }

func (i facultyItem) FilterValue() string { return i.faculty.Title }

// model представляет состояние TUI приложения.
type model struct {
	app *app.App
	ctx context.Context

	state        screenState
	searchInput  textinput.Model
	results      list.Model
	facultyList  list.Model
	selected     *models.Opinion
	profileForm  *form
	modalForm    *form
	activeModal  modal.Kind
	status       string
	statusSeq    int
	width        int
	height       int
	docStyle     lipgloss.Style
	initializing bool

	// Последние полученные состояния хранилищ
	snapshot search.Snapshot
	faculty  faculty.State
	session  session.Session

	// Каталог для переключения фильтров; индекс -1 означает "все"
	careers    []models.Career
	subjects   []models.Subject
	careerIdx  int
	subjectIdx int
}

// newModel создает модель с текущими состояниями хранилищ приложения.
func newModel(ctx context.Context, a *app.App) *model {
	m := &model{
		app:          a,
		ctx:          ctx,
		state:        browseScreen,
		searchInput:  initSearchInput(),
		results:      initOpinionList(),
		facultyList:  initFacultyList(),
		docStyle:     lipgloss.NewStyle().Margin(docStyleMarginVertical, docStyleMarginHorizontal),
		snapshot:     a.Search.Get(),
		faculty:      a.Faculties.Get(),
		session:      a.Session.Get(),
		activeModal:  a.Modals.Active(),
		careerIdx:    -1,
		subjectIdx:   -1,
		initializing: true,
	}
	m.results.SetSize(defaultListWidth, defaultListHeight)
	m.facultyList.SetSize(defaultListWidth, defaultListHeight)
	return m
}

// careerLabel возвращает название выбранной карьеры.
func (m *model) careerLabel() string {
	if m.careerIdx < 0 || m.careerIdx >= len(m.careers) {
		return "Все карьеры"
	}
	return m.careers[m.careerIdx].Name
}

// subjectLabel возвращает название выбранного предмета.
func (m *model) subjectLabel() string {
	if m.subjectIdx < 0 || m.subjectIdx >= len(m.subjects) {
		return "Все предметы"
	}
	return m.subjects[m.subjectIdx].Name
}

func (m *model) facultyLabel() string {
	if m.faculty.Selected == nil {
		if m.faculty.Loading {
			return "загрузка..."
		}
		return "все"
	}
	label := m.faculty.Selected.Title
	if m.faculty.Locked {
		label += " [закреплен]"
	}
	return label
}

func (m *model) userLabel() string {
	if !m.session.Authenticated {
		return "гость"
	}
	if m.session.User == nil {
		return "вход выполнен"
	}
	return m.session.User.FullName()
}
