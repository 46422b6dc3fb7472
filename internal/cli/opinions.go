package cli

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/WilhelmDev/faduweb/internal/search"
	"github.com/WilhelmDev/faduweb/models"
)

// searchResult - вывод команды search.
type searchResult struct {
	Items         []models.Opinion `json:"items" yaml:"items"`
	TotalElements int              `json:"total_elements" yaml:"total_elements"`
	HasMore       bool             `json:"has_more" yaml:"has_more"`
}

func (e *env) newSearchCmd() *cobra.Command {
	var (
		career, subject string
		facultyID       int64
		pages           int
	)
	cmd := &cobra.Command{
		Use:   "search [text]",
		Short: "Найти отзывы",
		Long: `Найти отзывы по тексту, карьере и предмету в выбранном факультете.

Флаг --faculty переключает текущий факультет так же, как faculties select.
Флаг --pages подгружает несколько страниц подряд.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filters := search.Filters{}
			if len(args) == 1 {
				filters.SearchText = args[0]
			}
			var err error
			if filters.CareerID, err = search.ParseFilterID(career); err != nil {
				return err
			}
			if filters.SubjectID, err = search.ParseFilterID(subject); err != nil {
				return err
			}
			if pages < 1 {
				return errors.New("--pages должно быть не меньше 1")
			}

			if err = e.app.Init(cmd.Context()); err != nil {
				slog.Warn("Поиск без выбора факультета", "error", err)
				fmt.Fprintln(e.errOut, "Внимание: факультеты недоступны, поиск по всем факультетам")
			}
			if cmd.Flags().Changed("faculty") {
				if _, err = e.selectFaculty(cmd, facultyID); err != nil {
					return err
				}
			}
			filters.FacultyID = e.app.Faculties.Get().SelectedID()

			snap, err := e.runSearch(cmd.Context(), filters, pages)
			if err != nil {
				return err
			}
			res := searchResult{Items: snap.Items, TotalElements: snap.TotalElements, HasMore: snap.HasMore}
			return e.print(res, func(t *table) {
				renderOpinions(t, res.Items)
				switch {
				case len(res.Items) == 0:
					t.row("Отзывы не найдены")
				case res.HasMore:
					t.row(fmt.Sprintf("Показано %d из %d, используйте --pages %d", len(res.Items), res.TotalElements, pages+1))
				}
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&career, "career", search.AllID, "Идентификатор карьеры (0 - все)")
	flags.StringVar(&subject, "subject", search.AllID, "Идентификатор предмета (0 - все)")
	flags.Int64Var(&facultyID, "faculty", 0, "Выбрать факультет перед поиском")
	flags.IntVar(&pages, "pages", 1, "Количество страниц")
	return cmd
}

var errSearchRejected = errors.New("сессия истекла, войдите снова")

// runSearch применяет фильтры и подгружает до pages страниц.
func (e *env) runSearch(ctx context.Context, filters search.Filters, pages int) (search.Snapshot, error) {
	c := e.app.Search
	c.Apply(filters)
	snap, err := waitSettled(ctx, c)
	if err != nil {
		return snap, err
	}
	for i := 1; i < pages && snap.HasMore; i++ {
		if err = c.LoadMore(); err != nil {
			return snap, err
		}
		if snap, err = waitSettled(ctx, c); err != nil {
			return snap, err
		}
	}
	return snap, nil
}

// waitSettled ждет, пока текущее поколение поиска завершит запрос.
func waitSettled(ctx context.Context, c *search.Controller) (search.Snapshot, error) {
	target := c.Get().Generation
	done := make(chan search.Snapshot, 1)
	unsubscribe := c.Subscribe(func(s search.Snapshot) {
		if s.Generation < target || s.Fetching {
			return
		}
		switch s.Phase {
		case search.Idle, search.Loaded, search.Exhausted, search.Failed:
			select {
			case done <- s:
			default:
			}
		}
	})
	defer unsubscribe()

	select {
	case s := <-done:
		switch s.Phase {
		case search.Failed:
			return s, s.Err
		case search.Idle:
			// Поиск сброшен после повторного отказа в авторизации
			return s, errSearchRejected
		}
		return s, nil
	case <-ctx.Done():
		return search.Snapshot{}, ctx.Err()
	}
}

func renderOpinions(t *table, items []models.Opinion) {
	if len(items) == 0 {
		return
	}
	t.header("ID", "TITLE", "SUBJECT", "PROFESSOR", "ANSWERS", "TAGS")
	for _, o := range items {
		subject := strconv.FormatInt(o.SubjectID, 10)
		if o.Subject != nil {
			subject = o.Subject.Name
		}
		tags := make([]string, 0, len(o.OpinionTags))
		for _, ot := range o.OpinionTags {
			tags = append(tags, ot.Tag.Name)
		}
		t.row(
			strconv.FormatInt(o.ID, 10),
			truncate(o.Title, 40),
			truncate(subject, 30),
			o.Professor,
			strconv.Itoa(o.AnswersCount),
			strings.Join(tags, ", "),
		)
	}
}

func (e *env) newOpinionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "opinions",
		Short: "Отзывы текущего пользователя",
	}
	var offset int
	mine := &cobra.Command{
		Use:   "mine",
		Short: "Показать мои отзывы",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			items, err := e.app.MyOpinions(cmd.Context(), offset)
			if err != nil {
				return err
			}
			return e.print(items, func(t *table) {
				if len(items) == 0 {
					t.row("Вы еще не публиковали отзывы")
					return
				}
				renderOpinions(t, items)
			})
		},
	}
	mine.Flags().IntVar(&offset, "offset", 0, "Смещение")
	cmd.AddCommand(mine)
	return cmd
}

func (e *env) newOpinionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "opinion",
		Short: "Работа с отзывами",
	}

	var (
		payload   models.OpinionPayload
		anonymous bool
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Опубликовать отзыв о предмете",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if anonymous {
				payload.Anonymous = 1
			}
			opinion, err := e.app.CreateOpinion(cmd.Context(), payload)
			if err != nil {
				return err
			}
			return e.print(opinion, func(t *table) {
				t.row("Отзыв опубликован:", strconv.FormatInt(opinion.ID, 10), opinion.Title)
			})
		},
	}
	flags := create.Flags()
	flags.StringVar(&payload.Title, "title", "", "Заголовок")
	flags.StringVar(&payload.Description, "description", "", "Текст отзыва")
	flags.Int64Var(&payload.SubjectID, "subject", 0, "Идентификатор предмета")
	flags.StringVar(&payload.CurrentSchoolYear, "year", "", "Учебный год")
	flags.StringVar(&payload.Professor, "professor", "", "Преподаватель (кафедра)")
	flags.BoolVar(&anonymous, "anonymous", false, "Опубликовать анонимно")
	flags.Int64SliceVar(&payload.Tags, "tag", nil, "Идентификаторы тегов")
	for _, name := range []string{"title", "description", "subject", "year"} {
		_ = create.MarkFlagRequired(name)
	}
	cmd.AddCommand(create)
	return cmd
}

func (e *env) newProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Профиль студента",
	}

	var (
		upd   models.ProfileUpdate
		image string
	)
	update := &cobra.Command{
		Use:   "update",
		Short: "Завершить профиль: имя пользователя, карьера и фото",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if image != "" {
				var err error
				if upd.Image, err = imageDataURL(image); err != nil {
					return err
				}
			}
			if err := e.app.CompleteProfile(cmd.Context(), upd); err != nil {
				return err
			}
			return e.message("Профиль обновлен")
		},
	}
	flags := update.Flags()
	flags.StringVar(&upd.Username, "username", "", "Имя пользователя")
	flags.Int64Var(&upd.CareerID, "career", 0, "Идентификатор карьеры")
	flags.StringVar(&image, "image", "", "Путь к изображению профиля или data URL")
	_ = update.MarkFlagRequired("username")
	_ = update.MarkFlagRequired("career")
	cmd.AddCommand(update)
	return cmd
}

// imageDataURL читает файл изображения и кодирует его в data URL.
// Готовый data URL возвращается как есть.
func imageDataURL(src string) (string, error) {
	if strings.HasPrefix(src, "data:") {
		return src, nil
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return "", fmt.Errorf("не удалось прочитать изображение: %w", err)
	}
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return "", fmt.Errorf("файл %s не является изображением (%s)", src, mime)
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
