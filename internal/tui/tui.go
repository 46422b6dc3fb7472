// Package tui реализует интерактивный интерфейс поиска и публикации отзывов.
package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/WilhelmDev/faduweb/internal/app"
	"github.com/WilhelmDev/faduweb/internal/modal"
	"github.com/WilhelmDev/faduweb/internal/search"
)

const (
	helpStatusHeightOffset   = 6 // Заголовок, фильтры, статус и помощь
	docStyleMarginVertical   = 1
	docStyleMarginHorizontal = 2
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	modalStyle  = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("212")).
			Padding(1, 2)
)

// Run запускает интерфейс и блокируется до выхода пользователя или отмены ctx.
func Run(ctx context.Context, a *app.App) error {
	if a == nil {
		return errors.New("приложение не инициализировано")
	}
	m := newModel(ctx, a)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	b := newBridge()
	unsubscribe := b.subscribe(a)
	defer unsubscribe()

	bridgeCtx, stop := context.WithCancel(ctx)
	defer stop()
	go b.run(bridgeCtx, p.Send)

	slog.Info("Запуск интерфейса")
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		slog.Error("Ошибка при работе интерфейса", "error", err)
		return fmt.Errorf("ошибка интерфейса: %w", err)
	}
	slog.Info("Интерфейс завершен")
	return nil
}

// Init - команда, выполняемая при запуске приложения.
func (m *model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		initAppCmd(m.ctx, m.app),
		loadCareersCmd(m.ctx, m.app),
		loadSubjectsCmd(m.ctx, m.app, 0),
	)
}

// setStatusMessage показывает статус и планирует его очистку.
func (m *model) setStatusMessage(status string) tea.Cmd {
	m.status = status
	m.statusSeq++
	return clearStatusCmd(m.statusSeq)
}

// View отрисовывает пользовательский интерфейс.
func (m *model) View() string {
	if m.activeModal != modal.None && m.modalForm != nil {
		return m.docStyle.Render(m.viewModal())
	}

	var content, help string
	switch m.state {
	case facultyScreen:
		content = m.facultyList.View()
		help = "enter: выбрать • esc: назад"
	case detailScreen:
		content = m.viewDetailScreen()
		help = "esc/b: назад • n: написать отзыв"
	case profileScreen:
		content = m.profileForm.view("Завершение профиля")
		help = "tab: следующее поле • enter: сохранить • esc: отмена"
	default:
		content = m.viewBrowseScreen()
		help = m.browseHelp()
	}

	var footer strings.Builder
	if m.status != "" {
		footer.WriteString("\n")
		footer.WriteString(m.status)
	}
	return fmt.Sprintf("%s\n%s%s", m.docStyle.Render(m.header()+"\n"+content), mutedStyle.Render(help), footer.String())
}

func (m *model) header() string {
	line := fmt.Sprintf("FaduWeb • Факультет: %s • %s", m.facultyLabel(), m.userLabel())
	if m.session.Authenticated && m.app.Session.InOnboarding() {
		line += " • профиль не завершен (p)"
	}
	return headerStyle.Render(line)
}

// phaseLine описывает состояние поиска под списком.
func (m *model) phaseLine() string {
	s := m.snapshot
	switch {
	case m.initializing && s.Phase == search.Idle:
		return mutedStyle.Render("Инициализация...")
	case s.Phase == search.Failed && s.Err != nil:
		return errorStyle.Render(s.Err.Error() + " (r: повторить)")
	case s.LoadingMore:
		return mutedStyle.Render("Загрузка следующей страницы...")
	case s.Phase == search.Loading:
		return mutedStyle.Render("Загрузка...")
	case s.Phase == search.Loaded:
		return mutedStyle.Render(fmt.Sprintf("Показано %d из %d • m: еще", len(s.Items), s.TotalElements))
	case s.Phase == search.Exhausted && len(s.Items) == 0:
		return mutedStyle.Render("Отзывы не найдены")
	case s.Phase == search.Exhausted:
		return mutedStyle.Render(fmt.Sprintf("Показаны все отзывы: %d", len(s.Items)))
	default:
		return ""
	}
}
