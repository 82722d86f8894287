package storage

import (
	"sync"

	"github.com/pkg/errors"
)

// ErrNotFound is returned by a Backend that has no document yet
var ErrNotFound = errors.New("settings document not found")

// Backend persists the serialized settings document
type Backend interface {
	Load() ([]byte, error)
	Save(data []byte) error
}

// MemoryBackend keeps every saved document in memory, in save order
type MemoryBackend struct {
	mu     sync.Mutex
	saves  [][]byte
	failOn func(n int) error
}

// NewMemoryBackend returns a backend preloaded with $initial, nil means no document
func NewMemoryBackend(initial []byte) *MemoryBackend {
	b := &MemoryBackend{}
	if initial != nil {
		b.saves = append(b.saves, initial)
	}
	return b
}

func (b *MemoryBackend) Load() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.saves) == 0 {
		return nil, ErrNotFound
	}
	return b.saves[len(b.saves)-1], nil
}

func (b *MemoryBackend) Save(data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failOn != nil {
		if err := b.failOn(len(b.saves)); err != nil {
			return err
		}
	}
	c := make([]byte, len(data))
	copy(c, data)
	b.saves = append(b.saves, c)
	return nil
}

// Saves returns every document saved so far, oldest first
func (b *MemoryBackend) Saves() [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([][]byte(nil), b.saves...)
}

// FailWith makes Save return the error produced by $fn, $fn receives the number of stored documents
func (b *MemoryBackend) FailWith(fn func(n int) error) {
	b.mu.Lock()
	b.failOn = fn
	b.mu.Unlock()
}
