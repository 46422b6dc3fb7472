package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

func (m *model) updateDetailScreen(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case keyEsc, keyBack:
			m.state = browseScreen
			m.selected = nil
		case "n":
			m.app.Modals.RequestCreateOpinion(m.app.Session.Authenticated())
			m.setModal(m.app.Modals.Active())
			return m, textinput.Blink
		case keyQuit:
			return m, tea.Quit
		}
	}
	return m, nil
}

// viewDetailScreen отображает отзыв целиком.
func (m *model) viewDetailScreen() string {
	if m.selected == nil {
		return "Отзыв не выбран"
	}
	o := m.selected

	var b strings.Builder
	b.WriteString(headerStyle.Render(opinionItem{opinion: *o}.Title()))
	b.WriteString("\n\n")
	if o.Subject != nil {
		fmt.Fprintf(&b, "Предмет: %s\n", o.Subject.Name)
	}
	if o.Professor != "" {
		fmt.Fprintf(&b, "Кафедра: %s\n", o.Professor)
	}
	author := "аноним"
	if o.Student != nil {
		author = o.Student.FullName()
	}
	fmt.Fprintf(&b, "Автор: %s\n", author)
	if !o.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "Опубликован: %s\n", o.CreatedAt.Format("02.01.2006"))
	}
	if len(o.OpinionTags) > 0 {
		tags := make([]string, 0, len(o.OpinionTags))
		for _, t := range o.OpinionTags {
			tags = append(tags, "#"+t.Tag.Name)
		}
		fmt.Fprintf(&b, "Теги: %s\n", strings.Join(tags, " "))
	}
	fmt.Fprintf(&b, "Ответов: %d\n\n", o.AnswersCount)
	b.WriteString(o.Description)
	return b.String()
}
