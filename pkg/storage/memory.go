package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/getmockd/mockfleet/pkg/definition"
	"github.com/getmockd/mockfleet/pkg/requestlog"
)

// Memory is a process-local Storage. Definitions are stored serialized so
// callers never share a value with the store.
type Memory struct {
	mu       sync.RWMutex
	services map[string][]byte
	logs     []*requestlog.Entry
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{services: make(map[string][]byte)}
}

// SaveService stores def under its name, replacing any previous copy.
func (m *Memory) SaveService(_ context.Context, def *definition.ServiceDefinition) error {
	data, err := definition.Marshal(def)
	if err != nil {
		return fmt.Errorf("marshal service %s: %w", def.Name, err)
	}
	m.mu.Lock()
	m.services[def.Name] = data
	m.mu.Unlock()
	return nil
}

// LoadService returns the stored definition or ErrNotFound.
func (m *Memory) LoadService(_ context.Context, name string) (*definition.ServiceDefinition, error) {
	m.mu.RLock()
	data, ok := m.services[name]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("service %s: %w", name, ErrNotFound)
	}
	return definition.Unmarshal(data)
}

// AppendLog records entry, dropping the oldest beyond MaxLogs.
func (m *Memory) AppendLog(_ context.Context, entry *requestlog.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.logs) >= MaxLogs {
		m.logs = m.logs[1:]
	}
	m.logs = append(m.logs, entry)
	return nil
}

// QueryLogs implements Storage.
func (m *Memory) QueryLogs(_ context.Context, q LogQuery) ([]*requestlog.Entry, error) {
	m.mu.RLock()
	newestFirst := make([]*requestlog.Entry, 0, len(m.logs))
	for i := len(m.logs) - 1; i >= 0; i-- {
		newestFirst = append(newestFirst, m.logs[i])
	}
	m.mu.RUnlock()
	return SelectNewest(newestFirst, q), nil
}

// ClearLogs drops every log entry.
func (m *Memory) ClearLogs(context.Context) error {
	m.mu.Lock()
	m.logs = nil
	m.mu.Unlock()
	return nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }
