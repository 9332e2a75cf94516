package service

import (
	"net/http"
	"strconv"

	"github.com/getmockd/mockfleet/pkg/httputil"
	"github.com/getmockd/mockfleet/pkg/requestlog"
)

// logsPath is served below the base path of every service.
const logsPath = "/__mockfleet/logs"

// serveLogs answers the internal logs endpoint. Its own requests are not
// logged.
func (i *Instance) serveLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := requestlog.Filter{
		Method: q.Get("method"),
		Route:  q.Get("route"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			httputil.WriteBadRequest(w, "invalid_limit", "limit must be a non-negative integer")
			return
		}
		f.Limit = n
	}
	if v := q.Get("status"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			httputil.WriteBadRequest(w, "invalid_status", "status must be an integer")
			return
		}
		f.Status = n
	}
	entries := i.ring.Query(f)
	if entries == nil {
		entries = []*requestlog.Entry{}
	}
	httputil.WriteOK(w, entries)
}
