package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/WilhelmDev/faduweb/internal/app"
	"github.com/WilhelmDev/faduweb/models"
)

func (e *env) newLoginCmd() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "login <user-or-email>",
		Short: "Войти по имени пользователя или email",
		Long: `Войти по имени пользователя или email. Пароль берется из флага --password,
иначе читается первой строкой стандартного ввода.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				var err error
				if password, err = e.readSecret("Пароль: "); err != nil {
					return err
				}
			}
			if err := e.app.Login(cmd.Context(), args[0], password); err != nil {
				return err
			}
			user := e.app.Session.CurrentUser()
			if user == nil {
				return e.message("Вход выполнен")
			}
			return e.message("Вход выполнен: %s", user.FullName())
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "Пароль")
	return cmd
}

func (e *env) newRegisterCmd() *cobra.Command {
	var req models.RegisterRequest
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Зарегистрироваться как студент и войти",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if req.Password == "" {
				var err error
				if req.Password, err = e.readSecret("Пароль: "); err != nil {
					return err
				}
			}
			if err := e.app.Register(cmd.Context(), req); err != nil {
				return err
			}
			return e.message("Регистрация прошла успешно. Завершите профиль: faduweb profile update")
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&req.Email, "email", "", "Email")
	flags.StringVarP(&req.Password, "password", "p", "", "Пароль (не короче 6 символов)")
	flags.StringVar(&req.Name, "name", "", "Имя")
	flags.StringVar(&req.Lastname, "lastname", "", "Фамилия")
	flags.StringVar(&req.Username, "username", "", "Имя пользователя")
	for _, name := range []string{"email", "name", "lastname", "username"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func (e *env) newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Выйти из системы",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			e.app.Logout()
			return e.message("Выход выполнен")
		},
	}
}

// whoami - вывод сведений о текущем пользователе.
type whoami struct {
	Authenticated bool         `json:"authenticated" yaml:"authenticated"`
	Onboarding    bool         `json:"onboarding" yaml:"onboarding"`
	User          *models.User `json:"user,omitempty" yaml:"user,omitempty"`
}

func (e *env) newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Показать текущего пользователя",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if !e.app.Session.Authenticated() {
				return app.ErrNotAuthenticated
			}
			res := whoami{
				Authenticated: true,
				Onboarding:    e.app.Session.InOnboarding(),
				User:          e.app.Session.CurrentUser(),
			}
			return e.print(res, func(t *table) {
				if res.User == nil {
					t.row("Данные пользователя недоступны")
					return
				}
				t.row("ID:", strconv.FormatInt(res.User.ID, 10))
				t.row("Пользователь:", res.User.Username)
				t.row("Имя:", res.User.FullName())
				t.row("Email:", res.User.Email)
				t.row("Факультет:", formatOptionalID(res.User.FacultyID))
				if res.Onboarding {
					t.row("Профиль:", "не завершен")
				}
			})
		},
	}
}

// readSecret читает строку из стандартного ввода.
func (e *env) readSecret(prompt string) (string, error) {
	fmt.Fprint(e.errOut, prompt)
	line, err := bufio.NewReader(e.in).ReadString('\n')
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		if err != nil {
			return "", fmt.Errorf("не удалось прочитать пароль: %w", err)
		}
		return "", errors.New("пароль не может быть пустым")
	}
	return line, nil
}

func formatOptionalID(id *int64) string {
	if id == nil {
		return "-"
	}
	return strconv.FormatInt(*id, 10)
}
