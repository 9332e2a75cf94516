// Package storagetest is a conformance suite run against every Storage
// backend.
package storagetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/mockfleet/pkg/definition"
	"github.com/getmockd/mockfleet/pkg/requestlog"
	"github.com/getmockd/mockfleet/pkg/storage"
)

// Run exercises newStore. Each subtest gets a fresh, empty store.
func Run(t *testing.T, newStore func(t *testing.T) storage.Storage) {
	t.Run("services round trip", func(t *testing.T) { testServices(t, newStore(t)) })
	t.Run("missing service", func(t *testing.T) { testMissing(t, newStore(t)) })
	t.Run("log ordering and limit", func(t *testing.T) { testLogOrder(t, newStore(t)) })
	t.Run("log filters", func(t *testing.T) { testLogFilters(t, newStore(t)) })
	t.Run("clear logs", func(t *testing.T) { testClear(t, newStore(t)) })
	t.Run("concurrent appends", func(t *testing.T) { testConcurrent(t, newStore(t)) })
}

func sampleDefinition() *definition.ServiceDefinition {
	return &definition.ServiceDefinition{
		Name:   "users",
		Server: definition.ServerConfig{Port: 9001, BasePath: "/api"},
		Bucket: map[string]any{"counter": 1},
		Endpoints: []definition.EndpointDefinition{{
			Kind:   definition.KindHTTP,
			Method: "GET",
			Path:   "/users/{id}",
			Responses: map[int]definition.ResponseDefinition{
				200: {ContentType: "application/json", Body: `{"id":"{{ params.id }}"}`},
			},
		}},
	}
}

func logEntry(service, method, path string, status int, at time.Time) *requestlog.Entry {
	e := requestlog.NewEntry(service, method, path)
	e.Status = status
	e.Timestamp = at
	return e
}

func testServices(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	def := sampleDefinition()
	require.NoError(t, s.SaveService(ctx, def))

	got, err := s.LoadService(ctx, "users")
	require.NoError(t, err)
	assert.True(t, definition.Equal(def, got), definition.Diff(def, got))

	def.Endpoints[0].Path = "/people/{id}"
	require.NoError(t, s.SaveService(ctx, def))
	got, err = s.LoadService(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, "/people/{id}", got.Endpoints[0].Path)
}

func testMissing(t *testing.T, s storage.Storage) {
	_, err := s.LoadService(context.Background(), "ghost")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func testLogOrder(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	base := time.Now().Truncate(time.Millisecond)
	for i, p := range []string{"/a", "/b", "/c", "/d"} {
		require.NoError(t, s.AppendLog(ctx, logEntry("svc", "GET", p, 200, base.Add(time.Duration(i)*time.Second))))
	}

	all, err := s.QueryLogs(ctx, storage.LogQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{"/a", "/b", "/c", "/d"}, paths(all))

	newest, err := s.QueryLogs(ctx, storage.LogQuery{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"/c", "/d"}, paths(newest))
	assert.True(t, newest[0].Timestamp.Equal(base.Add(2*time.Second)))
}

func testLogFilters(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	now := time.Now()
	idx := 0
	matched := logEntry("a", "GET", "/users/1", 200, now)
	matched.Endpoint = &idx
	require.NoError(t, s.AppendLog(ctx, matched))
	require.NoError(t, s.AppendLog(ctx, logEntry("a", "POST", "/users", 201, now)))
	require.NoError(t, s.AppendLog(ctx, logEntry("b", "GET", "/orders", 404, now)))

	tests := []struct {
		name string
		q    storage.LogQuery
		want []string
	}{
		{"service", storage.LogQuery{Service: "b"}, []string{"/orders"}},
		{"method", storage.LogQuery{Method: "POST"}, []string{"/users"}},
		{"route prefix", storage.LogQuery{Route: "/users"}, []string{"/users/1", "/users"}},
		{"status", storage.LogQuery{Status: 404}, []string{"/orders"}},
		{"combined", storage.LogQuery{Service: "a", Method: "GET"}, []string{"/users/1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.QueryLogs(ctx, tt.q)
			require.NoError(t, err)
			assert.Equal(t, tt.want, paths(got))
		})
	}

	got, err := s.QueryLogs(ctx, storage.LogQuery{Service: "a", Method: "GET"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].Endpoint)
	assert.Equal(t, 0, *got[0].Endpoint)
}

func testClear(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	require.NoError(t, s.AppendLog(ctx, logEntry("a", "GET", "/", 200, time.Now())))
	require.NoError(t, s.ClearLogs(ctx))

	got, err := s.QueryLogs(ctx, storage.LogQuery{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testConcurrent(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.AppendLog(ctx, logEntry("c", "GET", "/x", 200, time.Now())))
		}()
	}
	wg.Wait()

	got, err := s.QueryLogs(ctx, storage.LogQuery{Service: "c"})
	require.NoError(t, err)
	assert.Len(t, got, 20)
}

func paths(entries []*requestlog.Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Path)
	}
	return out
}
