package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/getmockd/mockfleet/pkg/requestlog"
)

// adminClient talks to the admin API of a running process.
type adminClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newAdminClient(baseURL, token string) *adminClient {
	return &adminClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// apiError is a non-2xx admin response.
type apiError struct {
	Status  int
	Code    string `json:"error"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	switch e.Status {
	case http.StatusUnauthorized:
		return "admin API rejected the request: no token (set --token or MOCKFLEET_ADMIN_TOKEN)"
	case http.StatusForbidden:
		return "admin API rejected the token"
	}
	if e.Message != "" {
		return fmt.Sprintf("admin API: %s (HTTP %d)", e.Message, e.Status)
	}
	return fmt.Sprintf("admin API: HTTP %d", e.Status)
}

func (c *adminClient) do(ctx context.Context, method, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("cannot reach admin API at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &apiError{Status: resp.StatusCode}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(apiErr)
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *adminClient) logs(ctx context.Context, limit int) ([]*requestlog.Entry, error) {
	var entries []*requestlog.Entry
	q := url.Values{"limit": {fmt.Sprint(limit)}}
	return entries, c.do(ctx, http.MethodGet, "/mockfleet-admin/logs", q, &entries)
}

func (c *adminClient) history(ctx context.Context, service string, limit int) ([]*requestlog.Entry, error) {
	var entries []*requestlog.Entry
	q := url.Values{"limit": {fmt.Sprint(limit)}}
	if service != "" {
		q.Set("service", service)
	}
	return entries, c.do(ctx, http.MethodGet, "/mockfleet-admin/logs/history", q, &entries)
}

func (c *adminClient) clearLogs(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/mockfleet-admin/logs", nil, nil)
}

// streamURL is the websocket address of the live log stream.
func (c *adminClient) streamURL() (string, error) {
	u, err := url.Parse(c.baseURL + "/mockfleet-admin/logs/stream")
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return u.String(), nil
}
