package faculty_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WilhelmDev/faduweb/internal/faculty"
	"github.com/WilhelmDev/faduweb/internal/storage"
	"github.com/WilhelmDev/faduweb/models"
)

type fakeLister struct {
	list  []models.Faculty
	err   error
	calls atomic.Int32
	gate  chan struct{} // если не nil, ответ ждет закрытия канала
}

func (f *fakeLister) ListFaculties(ctx context.Context) ([]models.Faculty, error) {
	f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.list, f.err
}

type fakeUsers struct {
	user *models.User
}

func (f fakeUsers) CurrentUser() *models.User {
	return f.user
}

// switchableUsers позволяет сменить пользователя после создания хранилища.
type switchableUsers struct {
	user atomic.Pointer[models.User]
}

func (f *switchableUsers) CurrentUser() *models.User {
	return f.user.Load()
}

func faculties(ids ...int64) []models.Faculty {
	list := make([]models.Faculty, 0, len(ids))
	for _, id := range ids {
		list = append(list, models.Faculty{ID: id, Title: "Факультет"})
	}
	return list
}

func ptr(v int64) *int64 {
	return &v
}

func TestInitSelection(t *testing.T) {
	tests := []struct {
		name       string
		user       *models.User
		persisted  string
		list       []models.Faculty
		wantID     *int64
		wantLocked bool
	}{
		{
			name:       "Факультет пользователя важнее сохраненного",
			user:       &models.User{ID: 1, FacultyID: ptr(7)},
			persisted:  "5",
			list:       faculties(5, 7),
			wantID:     ptr(7),
			wantLocked: true,
		},
		{
			name:      "Анонимный пользователь получает сохраненный факультет",
			persisted: "5",
			list:      faculties(5, 7),
			wantID:    ptr(5),
		},
		{
			name:   "Без сохраненного выбирается первый",
			list:   faculties(5, 7),
			wantID: ptr(5),
		},
		{
			name:      "Неизвестный сохраненный факультет заменяется первым",
			persisted: "42",
			list:      faculties(5, 7),
			wantID:    ptr(5),
		},
		{
			name:      "Испорченное значение в хранилище игнорируется",
			persisted: "abc",
			list:      faculties(9),
			wantID:    ptr(9),
		},
		{
			name:      "Пользователь без факультета выбирает свободно",
			user:      &models.User{ID: 1},
			persisted: "7",
			list:      faculties(5, 7),
			wantID:    ptr(7),
		},
		{
			name:      "Факультет пользователя отсутствует в списке",
			user:      &models.User{ID: 1, FacultyID: ptr(99)},
			persisted: "7",
			list:      faculties(5, 7),
			wantID:    ptr(7),
		},
		{
			name: "Пустой список",
			list: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := storage.NewMemory()
			if tt.persisted != "" {
				require.NoError(t, st.Set(storage.KeySelectedFacultyID, tt.persisted))
			}
			lister := &fakeLister{list: tt.list}
			s := faculty.New(lister, fakeUsers{user: tt.user}, st)

			require.NoError(t, s.InitSelection(context.Background()))

			got := s.Get()
			assert.Equal(t, tt.wantID, got.SelectedID())
			assert.Equal(t, tt.wantLocked, got.Locked)
			assert.False(t, got.Loading)
			assert.Equal(t, int32(1), lister.calls.Load())
		})
	}

	t.Run("Повторная инициализация не загружает список заново", func(t *testing.T) {
		lister := &fakeLister{list: faculties(1, 2)}
		s := faculty.New(lister, fakeUsers{}, storage.NewMemory())

		require.NoError(t, s.InitSelection(context.Background()))
		require.NoError(t, s.InitSelection(context.Background()))

		assert.Equal(t, int32(1), lister.calls.Load())
	})

	t.Run("Ошибка загрузки", func(t *testing.T) {
		lister := &fakeLister{err: errors.New("сеть недоступна")}
		s := faculty.New(lister, fakeUsers{}, storage.NewMemory())

		err := s.InitSelection(context.Background())

		require.Error(t, err)
		assert.Nil(t, s.Get().Selected)
		assert.False(t, s.Get().Loading)
	})
}

func TestSetFaculty(t *testing.T) {
	t.Run("Выбор сохраняется и включает временную загрузку", func(t *testing.T) {
		st := storage.NewMemory()
		s := faculty.New(&fakeLister{list: faculties(5, 7)}, fakeUsers{}, st,
			faculty.WithSettleInterval(20*time.Millisecond))
		require.NoError(t, s.InitSelection(context.Background()))

		require.NoError(t, s.SetFaculty(models.Faculty{ID: 7}))

		got := s.Get()
		assert.Equal(t, ptr(7), got.SelectedID())
		assert.True(t, got.Loading)
		persisted, ok := st.Get(storage.KeySelectedFacultyID)
		assert.True(t, ok)
		assert.Equal(t, "7", persisted)

		assert.Eventually(t, func() bool { return !s.Get().Loading }, time.Second, 5*time.Millisecond)
	})

	t.Run("Закрепленный факультет не меняется", func(t *testing.T) {
		st := storage.NewMemory()
		s := faculty.New(&fakeLister{list: faculties(5, 7)},
			fakeUsers{user: &models.User{ID: 1, FacultyID: ptr(7)}}, st)
		require.NoError(t, s.InitSelection(context.Background()))

		err := s.SetFaculty(models.Faculty{ID: 5})

		assert.ErrorIs(t, err, faculty.ErrSelectionLocked)
		assert.Equal(t, ptr(7), s.Get().SelectedID())
		_, ok := st.Get(storage.KeySelectedFacultyID)
		assert.False(t, ok)
	})

	t.Run("Закрепление действует сразу после входа", func(t *testing.T) {
		st := storage.NewMemory()
		users := &switchableUsers{}
		s := faculty.New(&fakeLister{list: faculties(5, 7)}, users, st)
		require.NoError(t, s.InitSelection(context.Background()))
		require.False(t, s.Get().Locked)

		users.user.Store(&models.User{ID: 1, FacultyID: ptr(7)})
		err := s.SetFaculty(models.Faculty{ID: 5})

		assert.ErrorIs(t, err, faculty.ErrSelectionLocked)
		_, ok := st.Get(storage.KeySelectedFacultyID)
		assert.False(t, ok)
	})

	t.Run("Отказ не уведомляет подписчиков", func(t *testing.T) {
		s := faculty.New(&fakeLister{list: faculties(5, 7)},
			fakeUsers{user: &models.User{ID: 1, FacultyID: ptr(7)}}, storage.NewMemory())
		require.NoError(t, s.InitSelection(context.Background()))

		var calls atomic.Int32
		unsubscribe := s.Subscribe(func(faculty.State) { calls.Add(1) })
		defer unsubscribe()

		assert.ErrorIs(t, s.SetFaculty(models.Faculty{ID: 5}), faculty.ErrSelectionLocked)
		assert.ErrorIs(t, s.SetFaculty(models.Faculty{ID: 100}), faculty.ErrSelectionLocked)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("Неизвестный факультет", func(t *testing.T) {
		s := faculty.New(&fakeLister{list: faculties(5)}, fakeUsers{}, storage.NewMemory())
		require.NoError(t, s.InitSelection(context.Background()))

		err := s.SetFaculty(models.Faculty{ID: 100})

		assert.ErrorIs(t, err, faculty.ErrUnknownFaculty)
		assert.Equal(t, ptr(5), s.Get().SelectedID())
	})

	t.Run("Повторный выбор продлевает загрузку", func(t *testing.T) {
		s := faculty.New(&fakeLister{list: faculties(5, 7)}, fakeUsers{}, storage.NewMemory(),
			faculty.WithSettleInterval(50*time.Millisecond))
		require.NoError(t, s.InitSelection(context.Background()))

		require.NoError(t, s.SetFaculty(models.Faculty{ID: 7}))
		time.Sleep(30 * time.Millisecond)
		require.NoError(t, s.SetFaculty(models.Faculty{ID: 5}))
		time.Sleep(30 * time.Millisecond)

		assert.True(t, s.Get().Loading)
		assert.Eventually(t, func() bool { return !s.Get().Loading }, time.Second, 5*time.Millisecond)
		s.Dispose()
	})
}

func TestFetchFaculties(t *testing.T) {
	t.Run("Одновременные вызовы делают один запрос", func(t *testing.T) {
		lister := &fakeLister{list: faculties(1, 2, 3), gate: make(chan struct{})}
		s := faculty.New(lister, fakeUsers{}, storage.NewMemory())

		var wg sync.WaitGroup
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				list, err := s.FetchFaculties(context.Background())
				assert.NoError(t, err)
				assert.Len(t, list, 3)
			}()
		}

		assert.Eventually(t, func() bool { return s.Get().Loading }, time.Second, time.Millisecond)
		// Даем остальным вызовам присоединиться к запросу
		time.Sleep(20 * time.Millisecond)
		close(lister.gate)
		wg.Wait()

		assert.Equal(t, int32(1), lister.calls.Load())
		assert.Len(t, s.Get().Faculties, 3)
		assert.False(t, s.Get().Loading)
	})

	t.Run("Подписчик видит флаг загрузки", func(t *testing.T) {
		s := faculty.New(&fakeLister{list: faculties(1)}, fakeUsers{}, storage.NewMemory())

		var mu sync.Mutex
		var loadingSeen []bool
		unsubscribe := s.Subscribe(func(v faculty.State) {
			mu.Lock()
			defer mu.Unlock()
			loadingSeen = append(loadingSeen, v.Loading)
		})
		defer unsubscribe()

		_, err := s.FetchFaculties(context.Background())
		require.NoError(t, err)

		mu.Lock()
		defer mu.Unlock()
		assert.Contains(t, loadingSeen, true)
		assert.False(t, loadingSeen[len(loadingSeen)-1])
	})
}

func TestReselect(t *testing.T) {
	t.Run("Вход закрепляет факультет без сетевого запроса", func(t *testing.T) {
		lister := &fakeLister{list: faculties(5, 7)}
		users := &switchableUsers{}
		s := faculty.New(lister, users, storage.NewMemory())
		require.NoError(t, s.InitSelection(context.Background()))
		require.Equal(t, ptr(5), s.Get().SelectedID())

		users.user.Store(&models.User{ID: 1, FacultyID: ptr(7)})
		s.Reselect()

		got := s.Get()
		assert.Equal(t, ptr(7), got.SelectedID())
		assert.True(t, got.Locked)
		assert.Equal(t, int32(1), lister.calls.Load())
	})

	t.Run("Выход снимает закрепление", func(t *testing.T) {
		users := &switchableUsers{}
		users.user.Store(&models.User{ID: 1, FacultyID: ptr(7)})
		s := faculty.New(&fakeLister{list: faculties(5, 7)}, users, storage.NewMemory())
		require.NoError(t, s.InitSelection(context.Background()))
		require.True(t, s.Get().Locked)

		users.user.Store(nil)
		s.Reselect()

		got := s.Get()
		assert.False(t, got.Locked)
		assert.Equal(t, ptr(5), got.SelectedID())
	})

	t.Run("Пустой список", func(t *testing.T) {
		s := faculty.New(&fakeLister{}, fakeUsers{}, storage.NewMemory())
		s.Reselect()
		assert.Nil(t, s.Get().Selected)
	})
}
