package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WilhelmDev/faduweb/internal/api"
	"github.com/WilhelmDev/faduweb/internal/api/apitest"
	"github.com/WilhelmDev/faduweb/internal/app"
	"github.com/WilhelmDev/faduweb/internal/config"
	"github.com/WilhelmDev/faduweb/internal/faculty"
	"github.com/WilhelmDev/faduweb/internal/modal"
	"github.com/WilhelmDev/faduweb/internal/search"
	"github.com/WilhelmDev/faduweb/internal/storage"
	"github.com/WilhelmDev/faduweb/models"
)

const waitTimeout = 2 * time.Second

func testConfig(url string) *config.Config {
	return &config.Config{
		APIURL:        url,
		Timeout:       5 * time.Second,
		PageSize:      10,
		Debounce:      10 * time.Millisecond,
		FacultySettle: 10 * time.Millisecond,
		Storage:       config.StorageConfig{Backend: config.BackendFile},
		Log:           config.LogConfig{Level: "debug", Dir: "logs"},
	}
}

func newServer(t *testing.T) *apitest.Server {
	t.Helper()
	srv := apitest.NewServer(t)
	srv.SetFaculties(
		models.Faculty{ID: 1, Title: "FADU"},
		models.Faculty{ID: 2, Title: "FCEN"},
	)
	srv.AddOpinions(12, "Diseño", 1, 10, 100)
	srv.AddOpinions(4, "Física", 2, 20, 200)
	return srv
}

func newApp(t *testing.T, srv *apitest.Server, st storage.Storage) *app.App {
	t.Helper()
	a, err := app.New(testConfig(srv.URL), app.WithStorage(st))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Dispose() })
	return a
}

func lastFacultyParam(srv *apitest.Server) string {
	calls := srv.Calls("/opinion/all/web")
	if len(calls) == 0 {
		return ""
	}
	return calls[len(calls)-1].Query.Get("faculty_id")
}

func waitSearch(t *testing.T, a *app.App, cond func(s search.Snapshot) bool) search.Snapshot {
	t.Helper()
	require.Eventually(t, func() bool { return cond(a.Search.Get()) }, waitTimeout, 5*time.Millisecond)
	return a.Search.Get()
}

func loaded(s search.Snapshot) bool {
	return !s.Fetching && (s.Phase == search.Loaded || s.Phase == search.Exhausted)
}

func TestInit_Anonymous(t *testing.T) {
	srv := newServer(t)
	a := newApp(t, srv, storage.NewMemory())

	require.NoError(t, a.Init(context.Background()))

	state := a.Faculties.Get()
	require.NotNil(t, state.Selected)
	assert.Equal(t, int64(1), state.Selected.ID)
	assert.False(t, state.Locked)

	s := waitSearch(t, a, loaded)
	assert.Len(t, s.Items, 10)
	assert.True(t, s.HasMore)
	assert.Equal(t, 12, s.TotalElements)
	assert.Equal(t, "1", lastFacultyParam(srv))
	assert.Zero(t, srv.CallCount("/auth/validate-token"))
}

func TestInit_PersistedFaculty(t *testing.T) {
	srv := newServer(t)
	st := storage.NewMemory()
	require.NoError(t, st.Set(storage.KeySelectedFacultyID, "2"))
	a := newApp(t, srv, st)

	require.NoError(t, a.Init(context.Background()))

	s := waitSearch(t, a, loaded)
	assert.Len(t, s.Items, 4)
	assert.Equal(t, "2", lastFacultyParam(srv))
}

func TestInit_RestoredSession(t *testing.T) {
	srv := newServer(t)
	facultyID := int64(2)
	u := srv.AddUser(models.User{Username: "ana", Email: "ana@fadu.uba.ar", CareerID: 20, FacultyID: &facultyID}, "secreto1")
	st := storage.NewMemory()
	require.NoError(t, st.Set(storage.KeyAuthToken, srv.Token(u)))
	require.NoError(t, st.Set(storage.KeySelectedFacultyID, "1"))
	a := newApp(t, srv, st)

	require.NoError(t, a.Init(context.Background()))

	assert.Equal(t, 1, srv.CallCount("/auth/validate-token"))
	assert.True(t, a.Session.Authenticated())
	state := a.Faculties.Get()
	require.NotNil(t, state.Selected)
	assert.Equal(t, int64(2), state.Selected.ID, "факультет пользователя важнее сохраненного")
	assert.True(t, state.Locked)

	waitSearch(t, a, loaded)
	assert.Equal(t, "2", lastFacultyParam(srv))

	calls := srv.Calls("/opinion/all/web")
	assert.Equal(t, "Bearer "+a.Session.Token(), calls[len(calls)-1].Header.Get("Authorization"))
}

func TestInit_ExpiredSession(t *testing.T) {
	srv := newServer(t)
	u := srv.AddUser(models.User{Username: "ana", Email: "ana@fadu.uba.ar"}, "secreto1")
	st := storage.NewMemory()
	require.NoError(t, st.Set(storage.KeyAuthToken, srv.Token(u)))
	srv.ExpireTokens()
	a := newApp(t, srv, st)

	require.NoError(t, a.Init(context.Background()))

	assert.False(t, a.Session.Authenticated())
	_, ok := st.Get(storage.KeyAuthToken)
	assert.False(t, ok)
	notice := a.Notices()
	assert.Equal(t, uint64(1), notice.Seq)
	assert.Equal(t, app.NoticeError, notice.Level)
}

func TestInit_FacultiesUnavailable(t *testing.T) {
	srv := newServer(t)
	srv.ForceStatus("/faculties", 500)
	a := newApp(t, srv, storage.NewMemory())

	err := a.Init(context.Background())

	require.Error(t, err)
	s := waitSearch(t, a, loaded)
	assert.Len(t, s.Items, 10)
	assert.Empty(t, lastFacultyParam(srv))
}

func TestLogin_ReselectsFaculty(t *testing.T) {
	srv := newServer(t)
	facultyID := int64(2)
	srv.AddUser(models.User{Username: "ana", Email: "ana@fadu.uba.ar", CareerID: 20, FacultyID: &facultyID}, "secreto1")
	a := newApp(t, srv, storage.NewMemory())
	require.NoError(t, a.Init(context.Background()))
	waitSearch(t, a, loaded)
	require.Equal(t, int64(1), a.Faculties.Get().Selected.ID)

	a.Modals.OpenLogin()
	require.NoError(t, a.Login(context.Background(), "ana", "secreto1"))

	assert.Equal(t, modal.None, a.Modals.Active())
	require.Eventually(t, func() bool {
		st := a.Faculties.Get()
		return st.Selected != nil && st.Selected.ID == 2 && st.Locked
	}, waitTimeout, 5*time.Millisecond)
	require.Eventually(t, func() bool { return lastFacultyParam(srv) == "2" }, waitTimeout, 5*time.Millisecond)
	s := waitSearch(t, a, loaded)
	assert.Len(t, s.Items, 4)

	t.Run("Выход снимает закрепление", func(t *testing.T) {
		a.Logout()
		require.Eventually(t, func() bool { return !a.Faculties.Get().Locked }, waitTimeout, 5*time.Millisecond)
		assert.NoError(t, a.Faculties.SetFaculty(models.Faculty{ID: 1}))
	})
}

func TestLogin_InvalidCredentials(t *testing.T) {
	srv := newServer(t)
	a := newApp(t, srv, storage.NewMemory())
	a.Modals.OpenLogin()

	err := a.Login(context.Background(), "nadie", "secreto1")

	require.ErrorIs(t, err, api.ErrInvalidCredentials)
	assert.False(t, a.Session.Authenticated())
	assert.Equal(t, modal.Login, a.Modals.Active(), "окно входа остается открытым")
}

func TestRegisterAndCompleteProfile(t *testing.T) {
	srv := newServer(t)
	a := newApp(t, srv, storage.NewMemory())
	ctx := context.Background()

	require.NoError(t, a.Register(ctx, models.RegisterRequest{
		Email:    "nuevo@fadu.uba.ar",
		Password: "secreto1",
		Name:     "Juan",
		Lastname: "Pérez",
		Username: "juanp",
	}))
	require.True(t, a.Session.Authenticated())
	assert.True(t, a.Session.InOnboarding())

	require.NoError(t, a.CompleteProfile(ctx, models.ProfileUpdate{Username: "juan.arq", CareerID: 10}))

	assert.False(t, a.Session.InOnboarding())
	user := a.Session.CurrentUser()
	require.NotNil(t, user)
	assert.Equal(t, "juan.arq", user.Username)
	assert.Equal(t, int64(10), user.CareerID)
}

func TestCompleteProfile_Anonymous(t *testing.T) {
	srv := newServer(t)
	a := newApp(t, srv, storage.NewMemory())

	err := a.CompleteProfile(context.Background(), models.ProfileUpdate{Username: "x", CareerID: 1})
	assert.ErrorIs(t, err, app.ErrNotAuthenticated)
}

func TestCreateOpinion(t *testing.T) {
	srv := newServer(t)
	facultyID := int64(1)
	srv.AddUser(models.User{Username: "ana", Email: "ana@fadu.uba.ar", CareerID: 10, FacultyID: &facultyID}, "secreto1")
	a := newApp(t, srv, storage.NewMemory())
	ctx := context.Background()
	require.NoError(t, a.Init(ctx))
	waitSearch(t, a, loaded)

	payload := models.OpinionPayload{
		Title:             "Excelente taller",
		Description:       "Muy exigente pero vale la pena",
		SubjectID:         100,
		CurrentSchoolYear: "2024",
		Anonymous:         0,
	}

	t.Run("Анонимный пользователь направляется ко входу", func(t *testing.T) {
		_, err := a.CreateOpinion(ctx, payload)
		assert.ErrorIs(t, err, app.ErrNotAuthenticated)
		assert.Equal(t, modal.Login, a.Modals.Active())
	})

	t.Run("Отзыв публикуется и поиск обновляется", func(t *testing.T) {
		require.NoError(t, a.Login(ctx, "ana", "secreto1"))
		a.Modals.OpenCreateOpinion()
		before := srv.CallCount("/opinion/all/web")

		created, err := a.CreateOpinion(ctx, payload)
		require.NoError(t, err)
		assert.Equal(t, "Excelente taller", created.Title)
		assert.Equal(t, modal.None, a.Modals.Active())

		require.Eventually(t, func() bool { return srv.CallCount("/opinion/all/web") > before }, waitTimeout, 5*time.Millisecond)
		s := waitSearch(t, a, func(s search.Snapshot) bool { return loaded(s) && s.TotalElements == 13 })
		assert.Equal(t, 13, s.TotalElements)

		mine, err := a.MyOpinions(ctx, 0)
		require.NoError(t, err)
		require.Len(t, mine, 1)
		assert.Equal(t, created.ID, mine[0].ID)
	})

	t.Run("Выход закрывает форму отзыва", func(t *testing.T) {
		a.Modals.OpenCreateOpinion()
		a.Logout()
		assert.Equal(t, modal.None, a.Modals.Active())
	})
}

func TestDispose(t *testing.T) {
	srv := newServer(t)
	st := storage.NewMemory()
	a, err := app.New(testConfig(srv.URL), app.WithStorage(st))
	require.NoError(t, err)

	require.NoError(t, a.Dispose())
	require.NoError(t, a.Dispose())
	assert.ErrorIs(t, st.Set("k", "v"), storage.ErrClosed)
}

func TestLogin_AssignedFacultyLockedImmediately(t *testing.T) {
	srv := newServer(t)
	facultyID := int64(2)
	srv.AddUser(models.User{Username: "ana", Email: "ana@fadu.uba.ar", CareerID: 20, FacultyID: &facultyID}, "secreto1")
	st := storage.NewMemory()
	a := newApp(t, srv, st)
	require.NoError(t, a.Init(context.Background()))
	waitSearch(t, a, loaded)

	require.NoError(t, a.Login(context.Background(), "ana", "secreto1"))

	// Без ожидания фонового повторного выбора
	state := a.Faculties.Get()
	require.NotNil(t, state.Selected)
	assert.Equal(t, int64(2), state.Selected.ID)
	assert.True(t, state.Locked)
	filter := a.Search.Get().Filters.FacultyID
	require.NotNil(t, filter)
	assert.Equal(t, int64(2), *filter)

	err := a.Faculties.SetFaculty(models.Faculty{ID: 1})
	require.ErrorIs(t, err, faculty.ErrSelectionLocked)
	_, persisted := st.Get(storage.KeySelectedFacultyID)
	assert.False(t, persisted)

	a.Logout()
	assert.False(t, a.Faculties.Get().Locked)
}
