// Package store содержит минимальный реактивный контейнер значения,
// на котором построены все клиентские хранилища состояния.
package store

import (
	"slices"
	"sync"
)

// Store хранит значение типа T и синхронно уведомляет подписчиков о каждом изменении.
// Подписчик никогда не получает значение старше уже полученного.
type Store[T any] struct {
	mu      sync.Mutex
	value   T
	version uint64 // Монотонный номер версии значения, начинается с 1
	nextID  uint64
	subs    []*subscriber[T]
}

type subscriber[T any] struct {
	id       uint64
	fn       func(T)
	mu       sync.Mutex
	pending  []delivery[T]
	draining bool   // Обработчик сейчас вызывается; новые значения ставятся в очередь
	seen     uint64 // Последняя доставленная версия
	active   bool
}

type delivery[T any] struct {
	value   T
	version uint64
}

// New создает хранилище с начальным значением.
func New[T any](initial T) *Store[T] {
	return &Store[T]{value: initial, version: 1}
}

// Get возвращает текущее значение.
func (s *Store[T]) Get() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Set заменяет значение и уведомляет подписчиков в порядке подписки.
func (s *Store[T]) Set(v T) {
	s.mu.Lock()
	s.value = v
	s.version++
	ver := s.version
	subs := slices.Clone(s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.deliver(v, ver)
	}
}

// Update атомарно применяет fn к текущему значению и публикует результат.
// fn выполняется под блокировкой и не должна обращаться к этому же хранилищу.
func (s *Store[T]) Update(fn func(T) T) T {
	s.mu.Lock()
	v := fn(s.value)
	s.value = v
	s.version++
	ver := s.version
	subs := slices.Clone(s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.deliver(v, ver)
	}
	return v
}

// UpdateIf работает как Update, но публикует результат, только если fn
// вернула changed == true. Иначе значение и версия не меняются.
func (s *Store[T]) UpdateIf(fn func(T) (T, bool)) (T, bool) {
	s.mu.Lock()
	v, changed := fn(s.value)
	if !changed {
		cur := s.value
		s.mu.Unlock()
		return cur, false
	}
	s.value = v
	s.version++
	ver := s.version
	subs := slices.Clone(s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.deliver(v, ver)
	}
	return v, true
}

// Subscribe регистрирует fn: она вызывается сразу с текущим значением
// и затем при каждом изменении. Возвращает функцию отписки.
func (s *Store[T]) Subscribe(fn func(T)) func() {
	s.mu.Lock()
	s.nextID++
	sub := &subscriber[T]{id: s.nextID, fn: fn, active: true}
	s.subs = append(s.subs, sub)
	v, ver := s.value, s.version
	s.mu.Unlock()

	sub.deliver(v, ver)

	return func() {
		s.mu.Lock()
		s.subs = slices.DeleteFunc(s.subs, func(x *subscriber[T]) bool { return x.id == sub.id })
		s.mu.Unlock()

		sub.mu.Lock()
		sub.active = false
		sub.pending = nil
		sub.mu.Unlock()
	}
}

// deliver вызывает обработчик для значений новее уже доставленного.
// Вызовы одного подписчика не пересекаются: значение, пришедшее во время
// работы обработчика (в том числе из него самого), доставляется сразу после
// его завершения тем же вызовом. Обработчик работает вне блокировок.
func (sub *subscriber[T]) deliver(v T, ver uint64) {
	sub.mu.Lock()
	if !sub.active {
		sub.mu.Unlock()
		return
	}
	sub.pending = append(sub.pending, delivery[T]{value: v, version: ver})
	if sub.draining {
		sub.mu.Unlock()
		return
	}
	sub.draining = true
	for len(sub.pending) > 0 {
		next := sub.pending[0]
		sub.pending = sub.pending[1:]
		if !sub.active || next.version <= sub.seen {
			continue
		}
		sub.seen = next.version
		sub.mu.Unlock()
		sub.fn(next.value)
		sub.mu.Lock()
	}
	sub.draining = false
	sub.mu.Unlock()
}
