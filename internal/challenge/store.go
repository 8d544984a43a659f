// Package challenge guarda desafios de registro e login com expiração.
// Cada desafio é consumido no máximo uma vez (Take lê e apaga atomicamente).
package challenge

import (
	"sync"
	"time"
)

type entry[T any] struct {
	value     T
	expiresAt time.Time
}

// Store é um cache chave-valor com TTL por entrada
type Store[T any] struct {
	mu      sync.Mutex
	entries map[string]entry[T]
	now     func() time.Time

	stop chan struct{}
	once sync.Once
}

// Option configura o Store
type Option[T any] func(*Store[T])

// WithClock troca o relógio (usado em testes)
func WithClock[T any](now func() time.Time) Option[T] {
	return func(s *Store[T]) { s.now = now }
}

// NewStore cria um Store vazio. Sem janitor, a expiração é preguiçosa.
func NewStore[T any](opts ...Option[T]) *Store[T] {
	s := &Store[T]{
		entries: make(map[string]entry[T]),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put grava o valor sob a chave com o TTL informado (sobrescreve)
func (s *Store[T]) Put(key string, value T, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = entry[T]{value: value, expiresAt: s.now().Add(ttl)}
}

// Take lê e apaga a entrada. Ausente ou expirada devolve ok=false.
func (s *Store[T]) Take(key string) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	e, ok := s.entries[key]
	if !ok {
		return zero, false
	}
	delete(s.entries, key)
	if !s.now().Before(e.expiresAt) {
		return zero, false
	}
	return e.value, true
}

// Len conta as entradas ainda não removidas (inclui expiradas não varridas)
func (s *Store[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep remove as entradas expiradas e devolve quantas removeu
func (s *Store[T]) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for k, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}

// StartJanitor varre o store periodicamente até Close
func (s *Store[T]) StartJanitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Sweep()
			case <-s.stop:
				return
			}
		}
	}()
}

// Close para o janitor; pode ser chamado mais de uma vez
func (s *Store[T]) Close() {
	s.once.Do(func() { close(s.stop) })
}
