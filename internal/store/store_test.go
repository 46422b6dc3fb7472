package store_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WilhelmDev/faduweb/internal/store"
)

func TestStore_GetSet(t *testing.T) {
	s := store.New(1)
	assert.Equal(t, 1, s.Get())

	s.Set(5)
	assert.Equal(t, 5, s.Get(), "Get должен возвращать последнее записанное значение")
}

func TestStore_SubscribeReceivesCurrentValueImmediately(t *testing.T) {
	s := store.New("начальное")

	var got []string
	unsubscribe := s.Subscribe(func(v string) { got = append(got, v) })
	defer unsubscribe()

	require.Equal(t, []string{"начальное"}, got, "Подписчик должен сразу получить текущее значение")

	s.Set("второе")
	s.Set("третье")
	assert.Equal(t, []string{"начальное", "второе", "третье"}, got)
}

func TestStore_NotifiesInSubscriptionOrder(t *testing.T) {
	s := store.New(0)

	var order []string
	s.Subscribe(func(v int) {
		if v > 0 {
			order = append(order, "первый")
		}
	})
	s.Subscribe(func(v int) {
		if v > 0 {
			order = append(order, "второй")
		}
	})
	s.Subscribe(func(v int) {
		if v > 0 {
			order = append(order, "третий")
		}
	})

	s.Set(1)
	assert.Equal(t, []string{"первый", "второй", "третий"}, order)
}

func TestStore_Unsubscribe(t *testing.T) {
	s := store.New(0)

	calls := 0
	unsubscribe := s.Subscribe(func(int) { calls++ })
	require.Equal(t, 1, calls)

	unsubscribe()
	s.Set(42)
	assert.Equal(t, 1, calls, "После отписки обработчик не должен вызываться")

	// Повторная отписка безопасна
	unsubscribe()
}

func TestStore_ReentrantSetFromSubscriber(t *testing.T) {
	source := store.New(0)
	derived := store.New(0)

	source.Subscribe(func(v int) { derived.Set(v * 2) })

	source.Set(21)
	assert.Equal(t, 42, derived.Get(), "Подписчик может синхронно менять другое хранилище")

	// Запись в то же хранилище из подписчика не должна приводить к взаимной блокировке
	source.Subscribe(func(v int) {
		if v == 1 {
			source.Set(2)
		}
	})
	source.Set(1)
	assert.Equal(t, 2, source.Get())
}

func TestStore_UpdateIsAtomic(t *testing.T) {
	s := store.New(0)

	const workers = 50
	var wg sync.WaitGroup
	wg.Add(workers)
	for range workers {
		go func() {
			defer wg.Done()
			s.Update(func(v int) int { return v + 1 })
		}()
	}
	wg.Wait()

	assert.Equal(t, workers, s.Get())
}

func TestStore_SubscriberNeverSeesOlderValue(t *testing.T) {
	s := store.New(0)

	var mu sync.Mutex
	last := -1
	regressions := 0
	s.Subscribe(func(v int) {
		mu.Lock()
		defer mu.Unlock()
		if v < last {
			regressions++
		}
		last = v
	})

	// Update выдает строго возрастающие значения вместе с версиями
	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Update(func(v int) int { return v + 1 })
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, regressions, "Подписчик не должен получать значения старше уже полученных")
	assert.Equal(t, 100, s.Get())
}

func TestStore_UpdateIf(t *testing.T) {
	s := store.New(1)
	var calls int
	s.Subscribe(func(int) { calls++ })

	v, changed := s.UpdateIf(func(v int) (int, bool) { return v, false })
	assert.False(t, changed)
	assert.Equal(t, 1, v)

	v, changed = s.UpdateIf(func(v int) (int, bool) { return v + 1, true })
	assert.True(t, changed)
	assert.Equal(t, 2, v)

	// Немедленная доставка плюс одно изменение
	assert.Equal(t, 2, calls)
}
