// Package analytics отправляет события использования фильтров и поиска.
package analytics

import (
	"log/slog"
	"slices"
	"strconv"
	"sync"
)

// Имена событий.
const (
	EventFilterChange  = "filter_change"
	EventSearchOpinion = "search_opinions"
)

// Типы фильтров для события filter_change.
const (
	FilterCareer  = "career"
	FilterSubject = "subject"
	FilterSearch  = "search"
	FilterFaculty = "faculty"
)

// Event - событие аналитики с плоским набором параметров.
type Event struct {
	Name   string
	Params map[string]string
}

// Tracker принимает события аналитики.
type Tracker interface {
	Track(e Event)
}

// SearchParams описывает состояние фильтров на момент поиска.
type SearchParams struct {
	SearchTerm  string
	CareerID    string
	CareerName  string
	SubjectID   string
	SubjectName string
	FacultyID   *int64
	FacultyName string
}

// TrackFilterChange сообщает о смене одного фильтра.
func TrackFilterChange(t Tracker, filterType, value, label string) {
	if label == "" {
		label = value
	}
	t.Track(Event{
		Name: EventFilterChange,
		Params: map[string]string{
			"filter_type":  filterType,
			"filter_value": value,
			"filter_label": label,
		},
	})
}

// TrackOpinionSearch сообщает о выполненном поиске отзывов.
// Пустые значения заменяются метками "все".
func TrackOpinionSearch(t Tracker, p SearchParams) {
	faculty := "all"
	if p.FacultyID != nil {
		faculty = strconv.FormatInt(*p.FacultyID, 10)
	}
	t.Track(Event{
		Name: EventSearchOpinion,
		Params: map[string]string{
			"search_term":  or(p.SearchTerm, "none"),
			"career_id":    or(p.CareerID, "all"),
			"career_name":  or(p.CareerName, "Todas las Carreras"),
			"subject_id":   or(p.SubjectID, "all"),
			"subject_name": or(p.SubjectName, "Todas las Materias"),
			"faculty_id":   faculty,
			"faculty_name": or(p.FacultyName, "Todas las Facultades"),
		},
	})
}

func or(v, def string) string {
	if v == "" || v == "0" {
		return def
	}
	return v
}

// SlogTracker пишет события в журнал.
type SlogTracker struct {
	log *slog.Logger
}

// NewSlogTracker создает трекер поверх логгера (nil - логгер по умолчанию).
func NewSlogTracker(log *slog.Logger) *SlogTracker {
	if log == nil {
		log = slog.Default()
	}
	return &SlogTracker{log: log.With("component", "analytics")}
}

func (t *SlogTracker) Track(e Event) {
	keys := make([]string, 0, len(e.Params))
	for k := range e.Params {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	attrs := make([]any, 0, len(keys)*2+2)
	attrs = append(attrs, "event", e.Name)
	for _, k := range keys {
		attrs = append(attrs, k, e.Params[k])
	}
	t.log.Info("Событие аналитики", attrs...)
}

// Noop отбрасывает события (аналитика отключена).
type Noop struct{}

func (Noop) Track(Event) {}

// Recorder запоминает события в памяти.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Track(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events возвращает копию записанных событий.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

// Убедимся, что реализации удовлетворяют интерфейсу Tracker.
var (
	_ Tracker = (*SlogTracker)(nil)
	_ Tracker = Noop{}
	_ Tracker = (*Recorder)(nil)
)
