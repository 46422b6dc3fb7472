package tui

import (
	"errors"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/WilhelmDev/faduweb/internal/faculty"
)

// refreshFacultyList перестраивает список факультетов по последнему состоянию.
func (m *model) refreshFacultyList() tea.Cmd {
	items := make([]list.Item, 0, len(m.faculty.Faculties))
	cursor := 0
	for i, f := range m.faculty.Faculties {
		selected := m.faculty.Selected != nil && m.faculty.Selected.ID == f.ID
		if selected {
			cursor = i
		}
		items = append(items, facultyItem{faculty: f, selected: selected})
	}
	cmd := m.facultyList.SetItems(items)
	if m.state != facultyScreen {
		m.facultyList.Select(cursor)
	}
	return cmd
}

func (m *model) updateFacultyScreen(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case keyEsc, keyBack:
			m.state = browseScreen
			return m, nil
		case keyEnter:
			item, ok := m.facultyList.SelectedItem().(facultyItem)
			if !ok {
				return m, nil
			}
			m.state = browseScreen
			if err := m.app.Faculties.SetFaculty(item.faculty); err != nil {
				if errors.Is(err, faculty.ErrSelectionLocked) {
					return m, m.setStatusMessage("Факультет закреплен за вашим профилем")
				}
				return m, m.setStatusMessage(errorStyle.Render(err.Error()))
			}
			return m, m.setStatusMessage("Выбран факультет: " + item.faculty.Title)
		}
	}
	var cmd tea.Cmd
	m.facultyList, cmd = m.facultyList.Update(msg)
	return m, cmd
}
