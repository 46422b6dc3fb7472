package tui

import (
	"fmt"
	"log/slog"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/WilhelmDev/faduweb/internal/app"
	"github.com/WilhelmDev/faduweb/internal/faculty"
	"github.com/WilhelmDev/faduweb/internal/modal"
	"github.com/WilhelmDev/faduweb/internal/search"
	"github.com/WilhelmDev/faduweb/internal/session"
)

// Update обрабатывает входящие сообщения.
func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	// == Глобальные сообщения (не зависят от экрана) ==
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		h, v := m.docStyle.GetFrameSize()
		m.results.SetSize(msg.Width-h, msg.Height-v-helpStatusHeightOffset)
		m.facultyList.SetSize(msg.Width-h, msg.Height-v-helpStatusHeightOffset)
		return m, nil

	case snapshotMsg:
		m.snapshot = search.Snapshot(msg)
		items := make([]list.Item, 0, len(msg.Items))
		for _, o := range msg.Items {
			items = append(items, opinionItem{opinion: o})
		}
		return m, m.results.SetItems(items)

	case facultyMsg:
		m.faculty = faculty.State(msg)
		return m, m.refreshFacultyList()

	case sessionMsg:
		m.session = session.Session(msg)
		if !msg.Authenticated && m.state == profileScreen {
			m.state = browseScreen
			m.profileForm = nil
		}
		return m, nil

	case modalMsg:
		m.setModal(modal.Kind(msg))
		return m, nil

	case noticeMsg:
		n := app.Notice(msg)
		if n.Level == app.NoticeError {
			return m, m.setStatusMessage(errorStyle.Render(n.Text))
		}
		return m, m.setStatusMessage(n.Text)

	case initDoneMsg:
		m.initializing = false
		if msg.err != nil {
			slog.Warn("Инициализация завершилась с ошибкой", "error", msg.err)
			return m, m.setStatusMessage(errorStyle.Render("Факультеты недоступны, показаны все отзывы"))
		}
		return m, nil

	case careersMsg:
		if msg.err != nil {
			return m, m.setStatusMessage(errorStyle.Render(fmt.Sprintf("Не удалось загрузить карьеры: %v", msg.err)))
		}
		m.careers = msg.careers
		return m, nil

	case subjectsMsg:
		if msg.careerID != m.currentCareerID() {
			// Ответ для уже смененной карьеры
			return m, nil
		}
		if msg.err != nil {
			return m, m.setStatusMessage(errorStyle.Render(fmt.Sprintf("Не удалось загрузить предметы: %v", msg.err)))
		}
		m.subjects = msg.subjects
		return m, nil

	case actionDoneMsg:
		if m.modalForm != nil {
			m.modalForm.busy = false
		}
		if m.state == profileScreen {
			m.state = browseScreen
			m.profileForm = nil
		}
		m.setModal(m.app.Modals.Active())
		return m, m.setStatusMessage(msg.status)

	case actionErrMsg:
		switch {
		case m.activeModal != modal.None && m.modalForm != nil:
			m.modalForm.busy = false
			m.modalForm.err = msg.err
			// Анонимная попытка публикации переключает на вход
			m.setModal(m.app.Modals.Active())
		case m.state == profileScreen && m.profileForm != nil:
			m.profileForm.busy = false
			m.profileForm.err = msg.err
		default:
			return m, m.setStatusMessage(errorStyle.Render(msg.err.Error()))
		}
		return m, nil

	case actionExpiredMsg:
		if m.modalForm != nil {
			m.modalForm.busy = false
		}
		if m.profileForm != nil {
			m.profileForm.busy = false
		}
		m.setModal(m.app.Modals.Active())
		return m, nil

	case clearStatusMsg:
		if msg.seq == m.statusSeq {
			m.status = ""
		}
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	}

	if m.activeModal != modal.None && m.modalForm != nil {
		return m.updateModal(msg)
	}

	switch m.state {
	case facultyScreen:
		return m.updateFacultyScreen(msg)
	case detailScreen:
		return m.updateDetailScreen(msg)
	case profileScreen:
		return m.updateProfileScreen(msg)
	default:
		return m.updateBrowseScreen(msg)
	}
}

// currentCareerID возвращает ID выбранной карьеры или 0.
func (m *model) currentCareerID() int64 {
	if m.careerIdx < 0 || m.careerIdx >= len(m.careers) {
		return 0
	}
	return m.careers[m.careerIdx].ID
}
