// Package sync_ adds typed wrappers around the primitives of the standard sync package.
package sync_

import "sync"

type RMutexer[T any] interface {
	// Locked runs f with the lock held.
	Locked(f func(T) error) error
	// Get returns a copy of the inner value.
	Get() T
}

type Mutexer[T any] interface {
	RMutexer[T]
	// Set overwrites the inner value.
	Set(value T)
	// Swap overwrites the inner value, returning the previous one.
	Swap(value T) T
	// Update lets f modify the inner value in place.
	Update(f func(*T))
}

// Mutexed is a value only reachable with its lock held.
type Mutexed[T any] struct {
	mu    sync.Mutex
	value T
}

func NewMutexed[T any](value T) *Mutexed[T] {
	return &Mutexed[T]{value: value}
}

func (m *Mutexed[T]) Locked(f func(T) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return f(m.value)
}

func (m *Mutexed[T]) Get() (value T) {
	m.Update(func(v *T) { value = *v })
	return value
}

func (m *Mutexed[T]) Set(value T) {
	m.Update(func(v *T) { *v = value })
}

func (m *Mutexed[T]) Swap(value T) (old T) {
	m.Update(func(v *T) { old, *v = *v, value })
	return old
}

func (m *Mutexed[T]) Update(f func(*T)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f(&m.value)
}

// RWMutexed is Mutexed with a read-write lock: Get and RMutexer only take the read lock.
type RWMutexed[T any] struct {
	mu    sync.RWMutex
	value T
}

func NewRWMutexed[T any](value T) *RWMutexed[T] {
	return &RWMutexed[T]{value: value}
}

func (m *RWMutexed[T]) Locked(f func(T) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return f(m.value)
}

// RLocked runs f with only the read lock held, so f must not modify the value.
func (m *RWMutexed[T]) RLocked(f func(T) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return f(m.value)
}

func (m *RWMutexed[T]) Get() T {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.value
}

func (m *RWMutexed[T]) Set(value T) {
	m.Update(func(v *T) { *v = value })
}

func (m *RWMutexed[T]) Swap(value T) (old T) {
	m.Update(func(v *T) { old, *v = *v, value })
	return old
}

func (m *RWMutexed[T]) Update(f func(*T)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f(&m.value)
}

// RMutexer is a read-only view of the value.
func (m *RWMutexed[T]) RMutexer() RMutexer[T] {
	return readOnly[T]{m}
}

type readOnly[T any] struct {
	m *RWMutexed[T]
}

func (r readOnly[T]) Locked(f func(T) error) error {
	return r.m.RLocked(f)
}

func (r readOnly[T]) Get() T {
	return r.m.Get()
}
