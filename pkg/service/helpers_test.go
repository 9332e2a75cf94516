package service

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/getmockd/mockfleet/pkg/definition"
	"github.com/getmockd/mockfleet/pkg/requestlog"
)

func parseDef(t *testing.T, src string) *definition.ServiceDefinition {
	t.Helper()
	def, err := definition.Parse([]byte(src), "")
	require.NoError(t, err)
	return def
}

func newTestInstance(t *testing.T, src string, opts ...Option) *Instance {
	t.Helper()
	inst, err := New(parseDef(t, src), 0, opts...)
	require.NoError(t, err)
	return inst
}

// serve runs one request through ServeHTTP. Extra arguments are header
// name/value pairs.
func serve(inst *Instance, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	for n := 0; n+1 < len(headers); n += 2 {
		req.Header.Set(headers[n], headers[n+1])
	}
	rec := httptest.NewRecorder()
	inst.ServeHTTP(rec, req)
	return rec
}

type sinkSpy struct {
	mu      sync.Mutex
	entries []*requestlog.Entry
}

func (s *sinkSpy) Publish(e *requestlog.Entry) {
	s.mu.Lock()
	s.entries = append(s.entries, e)
	s.mu.Unlock()
}

func (s *sinkSpy) all() []*requestlog.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*requestlog.Entry(nil), s.entries...)
}

type recorderSpy struct {
	mu       sync.Mutex
	statuses []int
}

func (r *recorderSpy) ObserveRequest(_, _ string, status int, _ time.Duration) {
	r.mu.Lock()
	r.statuses = append(r.statuses, status)
	r.mu.Unlock()
}

func httpGet(t *testing.T, client *http.Client, url string) (int, string) {
	t.Helper()
	resp, err := client.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}
