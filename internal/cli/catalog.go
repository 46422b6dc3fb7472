package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/WilhelmDev/faduweb/internal/faculty"
	"github.com/WilhelmDev/faduweb/models"
)

// facultyRow - строка списка факультетов.
type facultyRow struct {
	models.Faculty `yaml:",inline"`
	Selected       bool `json:"selected" yaml:"selected"`
}

func (e *env) newFacultiesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "faculties",
		Aliases: []string{"faculty"},
		Short:   "Список факультетов и выбор текущего",
		Args:    cobra.NoArgs,
		RunE:    e.runFacultiesList,
	}

	selectCmd := &cobra.Command{
		Use:   "select <id>",
		Short: "Выбрать факультет для поиска отзывов",
		Long: `Выбрать факультет для поиска отзывов. Выбор сохраняется между запусками.
Студенту, привязанному к факультету, сменить его нельзя.`,
		Args: cobra.ExactArgs(1),
		RunE: e.runFacultiesSelect,
	}
	cmd.AddCommand(selectCmd)
	return cmd
}

func (e *env) runFacultiesList(cmd *cobra.Command, _ []string) error {
	if err := e.app.Faculties.InitSelection(cmd.Context()); err != nil {
		return err
	}
	state := e.app.Faculties.Get()
	rows := make([]facultyRow, 0, len(state.Faculties))
	for _, f := range state.Faculties {
		rows = append(rows, facultyRow{Faculty: f, Selected: state.Selected != nil && state.Selected.ID == f.ID})
	}

	return e.print(rows, func(t *table) {
		t.header("", "ID", "FACULTY", "DESCRIPTION")
		for _, r := range rows {
			mark := ""
			if r.Selected {
				mark = "*"
				if state.Locked {
					mark = "*L"
				}
			}
			t.row(mark, strconv.FormatInt(r.ID, 10), r.Title, truncate(r.Description, 60))
		}
	})
}

func (e *env) runFacultiesSelect(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("некорректный идентификатор факультета %q", args[0])
	}
	f, err := e.selectFaculty(cmd, id)
	if err != nil {
		return err
	}
	return e.message("Выбран факультет: %s", f.Title)
}

// selectFaculty инициализирует выбор и переключает факультет на id.
func (e *env) selectFaculty(cmd *cobra.Command, id int64) (models.Faculty, error) {
	if err := e.app.Faculties.InitSelection(cmd.Context()); err != nil {
		return models.Faculty{}, err
	}
	for _, f := range e.app.Faculties.Get().Faculties {
		if f.ID != id {
			continue
		}
		if err := e.app.Faculties.SetFaculty(f); err != nil {
			return models.Faculty{}, err
		}
		return f, nil
	}
	return models.Faculty{}, fmt.Errorf("%w: %d", faculty.ErrUnknownFaculty, id)
}

func (e *env) newCareersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "careers",
		Short: "Список карьер",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			careers, err := e.app.API.ListCareers(cmd.Context())
			if err != nil {
				return err
			}
			return e.print(careers, func(t *table) {
				t.header("ID", "CAREER")
				for _, c := range careers {
					t.row(strconv.FormatInt(c.ID, 10), c.Name)
				}
			})
		},
	}
}

func (e *env) newSubjectsCmd() *cobra.Command {
	var careerID int64
	cmd := &cobra.Command{
		Use:   "subjects",
		Short: "Список предметов",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				subjects []models.Subject
				err      error
			)
			if careerID > 0 {
				subjects, err = e.app.API.ListSubjectsByCareer(cmd.Context(), careerID)
			} else {
				subjects, err = e.app.API.ListSubjects(cmd.Context())
			}
			if err != nil {
				return err
			}
			return e.print(subjects, func(t *table) {
				t.header("ID", "SUBJECT", "CHAIRS")
				for _, s := range subjects {
					t.row(strconv.FormatInt(s.ID, 10), s.Name, strings.Join(s.Chairs, ", "))
				}
			})
		},
	}
	cmd.Flags().Int64Var(&careerID, "career", 0, "Только предметы карьеры")
	return cmd
}
