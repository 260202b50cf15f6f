package storage

import (
	"sort"
	"strings"
	"sync"

	"github.com/opd-ai/paytrust/crypto"
	"github.com/opd-ai/paytrust/interfaces"
)

// Memory is an in-process ISecureStorage. Values are copied in and out and
// wiped when deleted or when the store is closed.
type Memory struct {
	mu     sync.RWMutex
	values map[string][]byte
}

var _ interfaces.ISecureStorage = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string][]byte)}
}

// Put stores a copy of value under key.
func (m *Memory) Put(key string, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values == nil {
		return ErrClosed
	}
	if old, ok := m.values[key]; ok {
		crypto.ZeroBytes(old)
	}
	m.values[key] = append([]byte(nil), value...)
	return nil
}

// Get returns a copy of the value for key.
func (m *Memory) Get(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.values == nil {
		return nil, ErrClosed
	}
	v, ok := m.values[key]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Delete wipes and removes key.
func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values == nil {
		return ErrClosed
	}
	if v, ok := m.values[key]; ok {
		crypto.ZeroBytes(v)
		delete(m.values, key)
	}
	return nil
}

// List returns the sorted keys starting with prefix.
func (m *Memory) List(prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.values == nil {
		return nil, ErrClosed
	}
	var keys []string
	for k := range m.values {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Close wipes every value. Safe to call more than once.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.values {
		crypto.ZeroBytes(v)
	}
	m.values = nil
	return nil
}
