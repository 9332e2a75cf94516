// Package redisstore is a Storage backed by Redis, for several mockfleet
// processes sharing one log and service catalogue.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/getmockd/mockfleet/pkg/definition"
	"github.com/getmockd/mockfleet/pkg/requestlog"
	"github.com/getmockd/mockfleet/pkg/storage"
)

// DefaultPrefix namespaces keys when none is given.
const DefaultPrefix = "mockfleet"

// Store implements storage.Storage on Redis. Services live in the hash
// <prefix>:services and logs in the list <prefix>:logs, newest at the head.
type Store struct {
	client *redis.Client
	prefix string
}

var _ storage.Storage = (*Store)(nil)

// New wraps an existing client. The store closes it on Close.
func New(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix}
}

// Open connects to addr and verifies the connection with PING.
func Open(ctx context.Context, addr, prefix string) (*Store, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis unavailable at %s: %w", addr, err)
	}
	return New(client, prefix), nil
}

func (s *Store) servicesKey() string { return s.prefix + ":services" }
func (s *Store) logsKey() string     { return s.prefix + ":logs" }

// SaveService stores def in the services hash.
func (s *Store) SaveService(ctx context.Context, def *definition.ServiceDefinition) error {
	data, err := definition.Marshal(def)
	if err != nil {
		return fmt.Errorf("marshal service %s: %w", def.Name, err)
	}
	if err := s.client.HSet(ctx, s.servicesKey(), def.Name, data).Err(); err != nil {
		return fmt.Errorf("save service %s: %w", def.Name, err)
	}
	return nil
}

// LoadService returns the stored definition or storage.ErrNotFound.
func (s *Store) LoadService(ctx context.Context, name string) (*definition.ServiceDefinition, error) {
	data, err := s.client.HGet(ctx, s.servicesKey(), name).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("service %s: %w", name, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load service %s: %w", name, err)
	}
	return definition.Unmarshal(data)
}

// AppendLog pushes entry and caps the list at storage.MaxLogs.
func (s *Store) AppendLog(ctx context.Context, entry *requestlog.Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal log entry: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, s.logsKey(), data)
		pipe.LTrim(ctx, s.logsKey(), 0, storage.MaxLogs-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	return nil
}

// QueryLogs implements storage.Storage. Filtering happens client side.
func (s *Store) QueryLogs(ctx context.Context, q storage.LogQuery) ([]*requestlog.Entry, error) {
	raw, err := s.client.LRange(ctx, s.logsKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("query logs: %w", err)
	}
	newestFirst := make([]*requestlog.Entry, 0, len(raw))
	for _, item := range raw {
		var e requestlog.Entry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, fmt.Errorf("decode log: %w", err)
		}
		newestFirst = append(newestFirst, &e)
	}
	return storage.SelectNewest(newestFirst, q), nil
}

// ClearLogs deletes the log list.
func (s *Store) ClearLogs(ctx context.Context) error {
	if err := s.client.Del(ctx, s.logsKey()).Err(); err != nil {
		return fmt.Errorf("clear logs: %w", err)
	}
	return nil
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}
