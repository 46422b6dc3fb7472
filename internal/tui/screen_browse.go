package tui

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/WilhelmDev/faduweb/internal/search"
)

// updateBrowseScreen обрабатывает клавиши экрана поиска.
func (m *model) updateBrowseScreen(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, isKey := msg.(tea.KeyMsg)

	if m.searchInput.Focused() {
		if isKey {
			switch keyMsg.String() {
			case keyEnter, keyEsc, keyTab:
				m.searchInput.Blur()
				return m, nil
			}
		}
		before := m.searchInput.Value()
		var cmd tea.Cmd
		m.searchInput, cmd = m.searchInput.Update(msg)
		if text := m.searchInput.Value(); text != before {
			m.app.Search.SetSearchText(text)
		}
		return m, cmd
	}

	if !isKey {
		var cmd tea.Cmd
		m.results, cmd = m.results.Update(msg)
		return m, cmd
	}

	switch keyMsg.String() {
	case keyQuit:
		return m, tea.Quit
	case "/":
		m.searchInput.Focus()
		return m, textinput.Blink
	case "c":
		return m, m.cycleCareer(1)
	case "C":
		return m, m.cycleCareer(-1)
	case "s":
		return m, m.cycleSubject(1)
	case "S":
		return m, m.cycleSubject(-1)
	case "f":
		if m.faculty.Locked {
			return m, m.setStatusMessage("Факультет закреплен за вашим профилем")
		}
		if len(m.faculty.Faculties) == 0 {
			return m, m.setStatusMessage("Список факультетов недоступен")
		}
		m.state = facultyScreen
		return m, m.refreshFacultyList()
	case "m":
		return m, m.loadMore()
	case "r":
		m.app.Search.Refresh()
		return m, nil
	case "n":
		m.app.Modals.RequestCreateOpinion(m.app.Session.Authenticated())
		m.setModal(m.app.Modals.Active())
		return m, textinput.Blink
	case "l":
		if m.session.Authenticated {
			return m, m.setStatusMessage("Вход уже выполнен")
		}
		m.app.Modals.OpenLogin()
		m.setModal(m.app.Modals.Active())
		return m, textinput.Blink
	case "g":
		if m.session.Authenticated {
			return m, m.setStatusMessage("Вход уже выполнен")
		}
		m.app.Modals.OpenRegister()
		m.setModal(m.app.Modals.Active())
		return m, textinput.Blink
	case "o":
		if !m.session.Authenticated {
			return m, nil
		}
		m.app.Logout()
		return m, m.setStatusMessage("Выход выполнен")
	case "p":
		return m, m.openProfile()
	case keyEnter:
		if item, ok := m.results.SelectedItem().(opinionItem); ok {
			o := item.opinion
			m.selected = &o
			m.state = detailScreen
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.results, cmd = m.results.Update(msg)
	return m, cmd
}

// loadMore запрашивает следующую страницу результатов.
func (m *model) loadMore() tea.Cmd {
	err := m.app.Search.LoadMore()
	switch {
	case err == nil:
		return nil
	case errors.Is(err, search.ErrNoMorePages):
		return m.setStatusMessage("Больше отзывов нет")
	case errors.Is(err, search.ErrFetchInFlight):
		return nil
	default:
		return m.setStatusMessage(errorStyle.Render(err.Error()))
	}
}

// cycleCareer переключает фильтр карьеры по кругу ("все" -> карьеры -> "все").
// Фильтр предмета сбрасывается, список предметов перезагружается.
func (m *model) cycleCareer(step int) tea.Cmd {
	if len(m.careers) == 0 {
		return m.setStatusMessage("Список карьер недоступен")
	}
	m.careerIdx = cycle(m.careerIdx, step, len(m.careers))
	m.subjectIdx = -1
	m.subjects = nil

	id, label := search.AllID, ""
	if m.careerIdx >= 0 {
		c := m.careers[m.careerIdx]
		id, label = strconv.FormatInt(c.ID, 10), c.Name
	}
	if err := m.app.Search.SetSubject(search.AllID, ""); err != nil {
		return m.setStatusMessage(errorStyle.Render(err.Error()))
	}
	if err := m.app.Search.SetCareer(id, label); err != nil {
		return m.setStatusMessage(errorStyle.Render(err.Error()))
	}
	return loadSubjectsCmd(m.ctx, m.app, m.currentCareerID())
}

// cycleSubject переключает фильтр предмета по кругу.
func (m *model) cycleSubject(step int) tea.Cmd {
	if len(m.subjects) == 0 {
		return m.setStatusMessage("Список предметов недоступен")
	}
	m.subjectIdx = cycle(m.subjectIdx, step, len(m.subjects))

	id, label := search.AllID, ""
	if m.subjectIdx >= 0 {
		s := m.subjects[m.subjectIdx]
		id, label = strconv.FormatInt(s.ID, 10), s.Name
	}
	if err := m.app.Search.SetSubject(id, label); err != nil {
		return m.setStatusMessage(errorStyle.Render(err.Error()))
	}
	return nil
}

// cycle сдвигает индекс по кругу из n элементов и позиции -1 ("все").
func cycle(idx, step, n int) int {
	total := n + 1
	pos := (idx + 1 + step) % total
	if pos < 0 {
		pos += total
	}
	return pos - 1
}

func (m *model) viewBrowseScreen() string {
	filters := fmt.Sprintf("Карьера: %s • Предмет: %s", m.careerLabel(), m.subjectLabel())
	return fmt.Sprintf("%s\n%s\n\n%s\n%s",
		mutedStyle.Render(filters),
		m.searchInput.View(),
		m.results.View(),
		m.phaseLine(),
	)
}

func (m *model) browseHelp() string {
	if m.searchInput.Focused() {
		return "enter/esc: к списку"
	}
	auth := "l: вход • g: регистрация"
	if m.session.Authenticated {
		auth = "o: выход • p: профиль"
	}
	return "/: поиск • c/C: карьера • s/S: предмет • f: факультет • m: еще • r: обновить • n: отзыв • " +
		auth + " • q: выход"
}
