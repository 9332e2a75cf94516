// Package storage defines the persistence contract used by the registry and
// service instances, plus an in-memory implementation.
//
// Durable backends live in subpackages: sqlite (single process, on disk)
// and redisstore (shared between processes).
package storage

import (
	"context"
	"errors"

	"github.com/getmockd/mockfleet/pkg/definition"
	"github.com/getmockd/mockfleet/pkg/requestlog"
)

// ErrNotFound is returned by LoadService for an unknown name.
var ErrNotFound = errors.New("not found")

// MaxLogs is how many log entries a backend keeps before dropping the oldest.
const MaxLogs = 10000

// Storage persists service definitions and request logs. Implementations
// are safe for concurrent use.
type Storage interface {
	SaveService(ctx context.Context, def *definition.ServiceDefinition) error
	LoadService(ctx context.Context, name string) (*definition.ServiceDefinition, error)
	AppendLog(ctx context.Context, entry *requestlog.Entry) error
	// QueryLogs selects the newest matching entries and returns them
	// oldest first.
	QueryLogs(ctx context.Context, q LogQuery) ([]*requestlog.Entry, error)
	ClearLogs(ctx context.Context) error
	Close() error
}

// LogQuery filters QueryLogs. Zero fields match everything.
type LogQuery struct {
	Service string
	Route   string
	Method  string
	Status  int
	Limit   int
}

// Filter converts the query to a requestlog filter.
func (q LogQuery) Filter() requestlog.Filter {
	return requestlog.Filter{
		Service: q.Service,
		Route:   q.Route,
		Method:  q.Method,
		Status:  q.Status,
		Limit:   q.Limit,
	}
}

// SelectNewest applies q to entries given newest first and returns the
// result oldest first.
func SelectNewest(newestFirst []*requestlog.Entry, q LogQuery) []*requestlog.Entry {
	f := q.Filter()
	out := make([]*requestlog.Entry, 0)
	for _, e := range newestFirst {
		if !f.Matches(e) {
			continue
		}
		out = append(out, e)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
