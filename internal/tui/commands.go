package tui

import (
	"context"
	"errors"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/WilhelmDev/faduweb/internal/api"
	"github.com/WilhelmDev/faduweb/internal/app"
	"github.com/WilhelmDev/faduweb/internal/faculty"
	"github.com/WilhelmDev/faduweb/internal/modal"
	"github.com/WilhelmDev/faduweb/internal/search"
	"github.com/WilhelmDev/faduweb/internal/session"
	"github.com/WilhelmDev/faduweb/models"
)

// Сообщения об изменении хранилищ приложения.
type (
	snapshotMsg search.Snapshot
	facultyMsg  faculty.State
	sessionMsg  session.Session
	modalMsg    modal.Kind
	noticeMsg   app.Notice
)

// initDoneMsg - результат начальной инициализации приложения.
type initDoneMsg struct {
	err error
}

// careersMsg - загруженный список карьер.
type careersMsg struct {
	careers []models.Career
	err     error
}

// subjectsMsg - загруженный список предметов выбранной карьеры.
type subjectsMsg struct {
	careerID int64 // 0 - предметы всех карьер
	subjects []models.Subject
	err      error
}

// actionDoneMsg - успешное завершение действия из формы.
type actionDoneMsg struct {
	status string
}

// actionErrMsg - ошибка действия из формы.
type actionErrMsg struct {
	err error
}

// actionExpiredMsg - действие отклонено из-за истекшей сессии.
type actionExpiredMsg struct{}

// clearStatusMsg очищает строку статуса, если с тех пор не было нового статуса.
type clearStatusMsg struct {
	seq int
}

const statusMessageTimeout = 3 * time.Second

func clearStatusCmd(seq int) tea.Cmd {
	return tea.Tick(statusMessageTimeout, func(time.Time) tea.Msg {
		return clearStatusMsg{seq: seq}
	})
}

func initAppCmd(ctx context.Context, a *app.App) tea.Cmd {
	return func() tea.Msg {
		return initDoneMsg{err: a.Init(ctx)}
	}
}

func loadCareersCmd(ctx context.Context, a *app.App) tea.Cmd {
	return func() tea.Msg {
		careers, err := a.API.ListCareers(ctx)
		return careersMsg{careers: careers, err: err}
	}
}

func loadSubjectsCmd(ctx context.Context, a *app.App, careerID int64) tea.Cmd {
	return func() tea.Msg {
		var (
			subjects []models.Subject
			err      error
		)
		if careerID > 0 {
			subjects, err = a.API.ListSubjectsByCareer(ctx, careerID)
		} else {
			subjects, err = a.API.ListSubjects(ctx)
		}
		return subjectsMsg{careerID: careerID, subjects: subjects, err: err}
	}
}

// actionCmd выполняет fn вне цикла обработки сообщений.
func actionCmd(fn func() error, status string) tea.Cmd {
	return func() tea.Msg {
		if err := fn(); err != nil {
			if errors.Is(err, api.ErrAuthorization) {
				// Выход и уведомление уже выполнены API клиентом
				return actionExpiredMsg{}
			}
			return actionErrMsg{err: err}
		}
		return actionDoneMsg{status: status}
	}
}

// bridge пересылает уведомления хранилищ в программу, не блокируя
// публикующую сторону. Порядок сообщений сохраняется.
type bridge struct {
	mu     sync.Mutex
	queue  []tea.Msg
	signal chan struct{}
}

func newBridge() *bridge {
	return &bridge{signal: make(chan struct{}, 1)}
}

func (b *bridge) push(msg tea.Msg) {
	b.mu.Lock()
	b.queue = append(b.queue, msg)
	b.mu.Unlock()
	select {
	case b.signal <- struct{}{}:
	default:
	}
}

// run доставляет накопленные сообщения через send, пока ctx не отменен.
func (b *bridge) run(ctx context.Context, send func(tea.Msg)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.signal:
		}
		b.mu.Lock()
		batch := b.queue
		b.queue = nil
		b.mu.Unlock()
		for _, msg := range batch {
			if ctx.Err() != nil {
				return
			}
			send(msg)
		}
	}
}

// subscribe подписывает мост на хранилища приложения.
func (b *bridge) subscribe(a *app.App) func() {
	unsubs := []func(){
		a.Search.Subscribe(func(s search.Snapshot) { b.push(snapshotMsg(s)) }),
		a.Faculties.Subscribe(func(s faculty.State) { b.push(facultyMsg(s)) }),
		a.Session.Subscribe(func(s session.Session) { b.push(sessionMsg(s)) }),
		a.Modals.Subscribe(func(k modal.Kind) { b.push(modalMsg(k)) }),
		a.SubscribeNotices(func(n app.Notice) {
			if n.Seq > 0 {
				b.push(noticeMsg(n))
			}
		}),
	}
	return func() {
		for _, unsubscribe := range unsubs {
			unsubscribe()
		}
	}
}
