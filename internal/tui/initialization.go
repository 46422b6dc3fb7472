package tui

import (
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/lipgloss"
)

// Константы, используемые при инициализации.
const (
	initSearchCharLimit = 256
	initSearchWidth     = 40
	initFieldCharLimit  = 512
	initFieldWidth      = 50
)

func initSearchInput() textinput.Model {
	ti := textinput.New()
	ti.Placeholder = "Поиск по отзывам (/)"
	ti.CharLimit = initSearchCharLimit
	ti.Width = initSearchWidth
	return ti
}

func initField(placeholder string, password bool) textinput.Model {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.CharLimit = initFieldCharLimit
	ti.Width = initFieldWidth
	if password {
		ti.EchoMode = textinput.EchoPassword
	}
	return ti
}

func styledDelegate() list.DefaultDelegate {
	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.
		Foreground(lipgloss.Color("212")).
		BorderLeftForeground(lipgloss.Color("212"))
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.
		Foreground(lipgloss.Color("240")).
		BorderLeftForeground(lipgloss.Color("212"))
	return delegate
}

// initOpinionList инициализирует список результатов поиска.
func initOpinionList() list.Model {
	l := list.New([]list.Item{}, styledDelegate(), 0, 0)
	l.Title = "Отзывы"
	l.SetShowHelp(false)
	l.SetShowStatusBar(false)
	// Фильтрация выполняется сервером
	l.SetFilteringEnabled(false)
	l.Styles.Title = list.DefaultStyles().Title.Bold(true)
	return l
}

// initFacultyList инициализирует список выбора факультета.
func initFacultyList() list.Model {
	l := list.New([]list.Item{}, styledDelegate(), 0, 0)
	l.Title = "Факультеты"
	l.SetShowHelp(false)
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = list.DefaultStyles().Title.Bold(true)
	return l
}
