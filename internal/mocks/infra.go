package mocks

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// MockCache is a mock implementation of the Cache interface
type MockCache struct {
	mu   sync.Mutex
	data map[string]string
	sets map[string]map[string]struct{}

	GetFunc func(ctx context.Context, key string) (string, error)
	SetFunc func(ctx context.Context, key string, value string, expiration time.Duration) error
}

func NewMockCache() *MockCache {
	return &MockCache{
		data: make(map[string]string),
		sets: make(map[string]map[string]struct{}),
	}
}

func (m *MockCache) Get(ctx context.Context, key string) (string, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key], nil
}

func (m *MockCache) Set(ctx context.Context, key string, value string, expiration time.Duration) error {
	if m.SetFunc != nil {
		return m.SetFunc(ctx, key, value, expiration)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *MockCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	delete(m.sets, key)
	return nil
}

func (m *MockCache) SAdd(ctx context.Context, key string, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.sets[key]
	if !ok {
		set = make(map[string]struct{})
		m.sets[key] = set
	}
	set[member] = struct{}{}
	return nil
}

func (m *MockCache) SRem(ctx context.Context, key string, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if set, ok := m.sets[key]; ok {
		delete(set, member)
	}
	return nil
}

func (m *MockCache) SMembers(ctx context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var members []string
	for member := range m.sets[key] {
		members = append(members, member)
	}
	return members, nil
}

func (m *MockCache) Ping() error  { return nil }
func (m *MockCache) Close() error { return nil }

// MockMessageQueue is a mock implementation of MessageQueue that records
// published messages.
type MockMessageQueue struct {
	mu        sync.Mutex
	published map[string][][]byte
	handlers  map[string][]func(data []byte) error
}

func NewMockMessageQueue() *MockMessageQueue {
	return &MockMessageQueue{
		published: make(map[string][][]byte),
		handlers:  make(map[string][]func(data []byte) error),
	}
}

func (m *MockMessageQueue) Publish(subject string, data []byte) error {
	m.mu.Lock()
	m.published[subject] = append(m.published[subject], data)
	handlers := append([]func(data []byte) error(nil), m.handlers[subject]...)
	m.mu.Unlock()
	for _, h := range handlers {
		h(data)
	}
	return nil
}

func (m *MockMessageQueue) Subscribe(subject string, handler func(data []byte) error) error {
	m.mu.Lock()
	m.handlers[subject] = append(m.handlers[subject], handler)
	m.mu.Unlock()
	return nil
}

func (m *MockMessageQueue) Close() error { return nil }

// Published returns the messages recorded for a subject.
func (m *MockMessageQueue) Published(subject string) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.published[subject]...)
}

// PublishedJSON decodes the i-th message on a subject into a map.
func (m *MockMessageQueue) PublishedJSON(subject string, i int) map[string]interface{} {
	msgs := m.Published(subject)
	if i >= len(msgs) {
		return nil
	}
	var out map[string]interface{}
	json.Unmarshal(msgs[i], &out)
	return out
}

// MockDispatcher is a mock implementation of the Dispatcher port
type MockDispatcher struct {
	DispatchFunc func(ctx context.Context, chargerID, action string, payload interface{}, timeout time.Duration) (json.RawMessage, error)
	IsOnlineFunc func(chargerID string) bool
}

func (m *MockDispatcher) Dispatch(ctx context.Context, chargerID, action string, payload interface{}, timeout time.Duration) (json.RawMessage, error) {
	if m.DispatchFunc != nil {
		return m.DispatchFunc(ctx, chargerID, action, payload, timeout)
	}
	return json.RawMessage(`{"status":"Accepted"}`), nil
}

func (m *MockDispatcher) IsOnline(chargerID string) bool {
	if m.IsOnlineFunc != nil {
		return m.IsOnlineFunc(chargerID)
	}
	return true
}
